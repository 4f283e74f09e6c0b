package agent

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/adapter"
	"github.com/marketmind/marketmind/pkg/model"
	"github.com/marketmind/marketmind/pkg/repository"
	"github.com/marketmind/marketmind/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/system.md
var systemPromptRaw string

//go:embed prompt/answer.md
var answerPromptRaw string

var answerPromptTmpl = template.Must(template.New("answer").Parse(answerPromptRaw))

const (
	offlineSentinel       = "Test mode: market data unavailable."
	searchFailureSentinel = "Live market search unavailable; proceeding with existing knowledge."
	noLiveData            = "No live data found."
	noVectorContext       = "None"
	apologyAnswer         = "I encountered an internal error while generating a response."
	pipelineFailure       = "Agent pipeline failed"
	missingAnswer         = "I was unable to generate an answer."

	maxSearchResults = 3
	memoryNeighbors  = 4

	vectorContextSeparator = "\n---\n"
)

// Agent orchestrates the response pipeline: live market search, vector
// memory retrieval, and answer composition, in that fixed order.
type Agent struct {
	gemini  adapter.Gemini
	search  adapter.MarketSearch
	memory  repository.MemoryStore
	offline bool
}

// NewInput contains the dependencies for an Agent. Gemini is mandatory;
// Search and Memory may be nil, in which case their stages degrade.
type NewInput struct {
	Gemini adapter.Gemini
	Search adapter.MarketSearch
	Memory repository.MemoryStore

	// Offline disables the live search call so pipeline output stays
	// deterministic without network access.
	Offline bool
}

func New(input NewInput) (*Agent, error) {
	if input.Gemini == nil {
		return nil, goerr.New("language model adapter is required")
	}

	return &Agent{
		gemini:  input.Gemini,
		search:  input.Search,
		memory:  input.Memory,
		offline: input.Offline,
	}, nil
}

// GenerateInput is one response request.
type GenerateInput struct {
	Identity string
	History  string
	Prompt   string
}

// GenerateResponse runs the three-stage pipeline and always returns a
// result. Search and retrieval failures degrade inside their stage; only a
// composition failure reaches the outer boundary, where it is converted
// into an apologetic result instead of an error.
func (a *Agent) GenerateResponse(ctx context.Context, input GenerateInput) *model.AgentResult {
	logger := logging.From(ctx)

	state := &model.PipelineState{
		Question: input.Prompt,
		History:  input.History,
	}

	stages := []struct {
		name string
		run  func(context.Context, *model.PipelineState) error
	}{
		{"search_market", a.searchMarket},
		{"retrieve_memory", a.retrieveMemory},
		{"compose_answer", a.composeAnswer},
	}

	for _, stage := range stages {
		if err := stage.run(ctx, state); err != nil {
			logger.Error("agent pipeline failed",
				"stage", stage.name,
				"identity", input.Identity,
				"error", err,
			)
			return &model.AgentResult{
				Answer:        apologyAnswer,
				SearchResults: []string{pipelineFailure},
				VectorContext: noVectorContext,
			}
		}
	}

	answer := state.Answer
	if answer == "" {
		answer = missingAnswer
	}

	return &model.AgentResult{
		Answer:        answer,
		SearchResults: state.SearchResults,
		VectorContext: state.VectorContext,
	}
}

// searchMarket fills state.SearchResults. It never returns an error: any
// provider failure degrades to a single explanatory sentinel.
func (a *Agent) searchMarket(ctx context.Context, state *model.PipelineState) error {
	if a.offline {
		state.SearchResults = []string{offlineSentinel}
		return nil
	}

	if a.search == nil {
		state.SearchResults = []string{searchFailureSentinel}
		return nil
	}

	hits, err := a.search.Search(ctx, state.Question, maxSearchResults)
	if err != nil {
		logging.From(ctx).Warn("market search failed", "error", err)
		state.SearchResults = []string{searchFailureSentinel}
		return nil
	}

	var results []string
	for _, hit := range hits {
		if hit.Title == "" && hit.Snippet == "" {
			continue
		}
		results = append(results, hit.Title+" - "+hit.Snippet+" (source: "+hit.Source+")")
	}
	state.SearchResults = results
	return nil
}

// retrieveMemory fills state.VectorContext. Store failures, an absent
// store, and an empty question all degrade to "None".
func (a *Agent) retrieveMemory(ctx context.Context, state *model.PipelineState) error {
	state.VectorContext = noVectorContext

	if state.Question == "" || a.memory == nil {
		return nil
	}

	texts, err := a.memory.Query(ctx, state.Question, memoryNeighbors)
	if err != nil {
		logging.From(ctx).Warn("memory retrieval failed", "error", err)
		return nil
	}

	if len(texts) > 0 {
		state.VectorContext = strings.Join(texts, vectorContextSeparator)
	}
	return nil
}

// composeAnswer renders the prompt and calls the language model. Unlike the
// earlier stages its error propagates: without a completion there is no
// answer to degrade to.
func (a *Agent) composeAnswer(ctx context.Context, state *model.PipelineState) error {
	history := state.History
	if history == "" {
		history = "None"
	}
	searchResults := strings.Join(state.SearchResults, "\n")
	if searchResults == "" {
		searchResults = noLiveData
	}

	var rendered bytes.Buffer
	err := answerPromptTmpl.Execute(&rendered, map[string]string{
		"History":       history,
		"VectorContext": state.VectorContext,
		"SearchResults": searchResults,
		"Question":      state.Question,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to render answer prompt")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(rendered.String(), genai.RoleUser),
	}
	temperature := float32(0.2)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPromptRaw, ""),
		Temperature:       &temperature,
	}

	resp, err := a.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return goerr.Wrap(model.ErrCompletionFailed, "answer generation failed", goerr.V("cause", err.Error()))
	}

	state.Answer = responseText(resp)
	return nil
}

// responseText extracts the concatenated text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "")
}
