package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/model"
	"github.com/marketmind/marketmind/pkg/usecase/agent"
	"google.golang.org/genai"
)

// Mock Gemini
type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	calls        int
	lastPrompt   string
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{{Text: text}},
				},
			},
		},
	}
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		m.lastPrompt = contents[0].Parts[0].Text
	}
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return textResponse("placeholder answer"), nil
}

func (m *mockGemini) Embedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

// Mock MarketSearch
type mockSearch struct {
	searchFunc func(ctx context.Context, query string, limit int) ([]model.SearchHit, error)
}

func (m *mockSearch) Search(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, query, limit)
	}
	return nil, goerr.Wrap(model.ErrSourceUnavailable, "no search configured")
}

// Mock MemoryStore
type mockMemory struct {
	queryFunc  func(ctx context.Context, text string, k int) ([]string, error)
	upsertFunc func(ctx context.Context, rec model.MemoryRecord) error
	upserted   []model.MemoryRecord
}

func (m *mockMemory) Upsert(ctx context.Context, rec model.MemoryRecord) error {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, rec)
	}
	m.upserted = append(m.upserted, rec)
	return nil
}

func (m *mockMemory) Query(ctx context.Context, text string, k int) ([]string, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, text, k)
	}
	return nil, nil
}

func TestNewRequiresLanguageModel(t *testing.T) {
	_, err := agent.New(agent.NewInput{})
	gt.Error(t, err)

	_, err = agent.New(agent.NewInput{Gemini: &mockGemini{}})
	gt.NoError(t, err)
}

func TestGenerateResponseOffline(t *testing.T) {
	ctx := context.Background()

	a, err := agent.New(agent.NewInput{
		Gemini:  &mockGemini{},
		Memory:  &mockMemory{},
		Offline: true,
	})
	gt.NoError(t, err)

	result := a.GenerateResponse(ctx, agent.GenerateInput{
		Identity: "u1",
		History:  "",
		Prompt:   "BTC outlook?",
	})

	gt.Equal(t, result.Answer, "placeholder answer")
	gt.Equal(t, result.SearchResults, []string{"Test mode: market data unavailable."})
	gt.Equal(t, result.VectorContext, "None")
}

func TestGenerateResponseOfflineIsDeterministic(t *testing.T) {
	ctx := context.Background()

	a, err := agent.New(agent.NewInput{
		Gemini:  &mockGemini{},
		Offline: true,
		// A search adapter is present but must never be consulted.
		Search: &mockSearch{searchFunc: func(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
			t.Fatal("search must not be called in offline mode")
			return nil, nil
		}},
	})
	gt.NoError(t, err)

	for i := 0; i < 3; i++ {
		result := a.GenerateResponse(ctx, agent.GenerateInput{Prompt: "BTC outlook?"})
		gt.Equal(t, result.SearchResults, []string{"Test mode: market data unavailable."})
	}
}

func TestGenerateResponseFormatsSearchHits(t *testing.T) {
	ctx := context.Background()
	gemini := &mockGemini{}

	a, err := agent.New(agent.NewInput{
		Gemini: gemini,
		Search: &mockSearch{searchFunc: func(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
			gt.Equal(t, query, "BTC outlook?")
			gt.Equal(t, limit, 3)
			return []model.SearchHit{
				{Title: "Bitcoin rallies", Snippet: "BTC gains 5%", Source: "Reuters"},
				{Title: "", Snippet: "", Source: "Nowhere"},
				{Title: "ETF inflows", Snippet: "Funds keep buying", Source: "Bloomberg"},
			}, nil
		}},
	})
	gt.NoError(t, err)

	result := a.GenerateResponse(ctx, agent.GenerateInput{Prompt: "BTC outlook?"})

	gt.Equal(t, result.SearchResults, []string{
		"Bitcoin rallies - BTC gains 5% (source: Reuters)",
		"ETF inflows - Funds keep buying (source: Bloomberg)",
	})
	gt.S(t, gemini.lastPrompt).Contains("Bitcoin rallies - BTC gains 5% (source: Reuters)")
}

func TestGenerateResponseSearchFailureDegrades(t *testing.T) {
	ctx := context.Background()
	gemini := &mockGemini{}

	a, err := agent.New(agent.NewInput{
		Gemini: gemini,
		Search: &mockSearch{searchFunc: func(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
			return nil, goerr.Wrap(model.ErrSourceUnavailable, "connection refused")
		}},
	})
	gt.NoError(t, err)

	result := a.GenerateResponse(ctx, agent.GenerateInput{Prompt: "BTC outlook?"})

	gt.Equal(t, result.Answer, "placeholder answer")
	gt.Equal(t, result.SearchResults, []string{"Live market search unavailable; proceeding with existing knowledge."})
}

func TestGenerateResponseMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("joins retrieved texts", func(t *testing.T) {
		gemini := &mockGemini{}
		a, err := agent.New(agent.NewInput{
			Gemini:  gemini,
			Offline: true,
			Memory: &mockMemory{queryFunc: func(ctx context.Context, text string, k int) ([]string, error) {
				gt.Equal(t, k, 4)
				return []string{"user asked about BTC", "assistant warned of volatility"}, nil
			}},
		})
		gt.NoError(t, err)

		result := a.GenerateResponse(ctx, agent.GenerateInput{Prompt: "BTC outlook?"})
		gt.Equal(t, result.VectorContext, "user asked about BTC\n---\nassistant warned of volatility")
		gt.S(t, gemini.lastPrompt).Contains("user asked about BTC\n---\nassistant warned of volatility")
	})

	t.Run("store failure degrades to None", func(t *testing.T) {
		a, err := agent.New(agent.NewInput{
			Gemini:  &mockGemini{},
			Offline: true,
			Memory: &mockMemory{queryFunc: func(ctx context.Context, text string, k int) ([]string, error) {
				return nil, goerr.Wrap(model.ErrStoreUnavailable, "collection missing")
			}},
		})
		gt.NoError(t, err)

		result := a.GenerateResponse(ctx, agent.GenerateInput{Prompt: "BTC outlook?"})
		gt.Equal(t, result.VectorContext, "None")
	})

	t.Run("empty question skips retrieval", func(t *testing.T) {
		a, err := agent.New(agent.NewInput{
			Gemini:  &mockGemini{},
			Offline: true,
			Memory: &mockMemory{queryFunc: func(ctx context.Context, text string, k int) ([]string, error) {
				t.Fatal("memory must not be queried for an empty question")
				return nil, nil
			}},
		})
		gt.NoError(t, err)

		result := a.GenerateResponse(ctx, agent.GenerateInput{Prompt: ""})
		gt.Equal(t, result.VectorContext, "None")
	})
}

func TestGenerateResponseComposerFailure(t *testing.T) {
	ctx := context.Background()

	a, err := agent.New(agent.NewInput{
		Gemini: &mockGemini{generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("API error")
		}},
		Offline: true,
	})
	gt.NoError(t, err)

	result := a.GenerateResponse(ctx, agent.GenerateInput{Prompt: "BTC outlook?"})

	gt.Equal(t, result.Answer, "I encountered an internal error while generating a response.")
	gt.Equal(t, result.SearchResults, []string{"Agent pipeline failed"})
	gt.Equal(t, result.VectorContext, "None")
}

func TestGenerateResponseEmptyCompletion(t *testing.T) {
	ctx := context.Background()

	a, err := agent.New(agent.NewInput{
		Gemini: &mockGemini{generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		}},
		Offline: true,
	})
	gt.NoError(t, err)

	result := a.GenerateResponse(ctx, agent.GenerateInput{Prompt: "BTC outlook?"})
	gt.Equal(t, result.Answer, "I was unable to generate an answer.")
}

func TestGenerateResponsePromptDefaults(t *testing.T) {
	ctx := context.Background()
	gemini := &mockGemini{}

	a, err := agent.New(agent.NewInput{Gemini: gemini})
	gt.NoError(t, err)

	// No history, no search adapter, no memory: the prompt falls back to
	// its documented placeholders.
	_ = a.GenerateResponse(ctx, agent.GenerateInput{Prompt: "BTC outlook?"})

	gt.S(t, gemini.lastPrompt).Contains("Conversation so far:\nNone")
	gt.S(t, gemini.lastPrompt).Contains("Relevant knowledge base context:\nNone")
	gt.S(t, gemini.lastPrompt).Contains("User request: BTC outlook?")
}

func TestPersistMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("indexes the message", func(t *testing.T) {
		memory := &mockMemory{}
		a, err := agent.New(agent.NewInput{Gemini: &mockGemini{}, Memory: memory})
		gt.NoError(t, err)

		a.PersistMemory(ctx, model.ChatID("chat-1"), "user", "What about ETH?")

		gt.A(t, memory.upserted).Length(1)
		gt.Equal(t, memory.upserted[0], model.MemoryRecord{
			Text:   "What about ETH?",
			ChatID: model.ChatID("chat-1"),
			Role:   "user",
		})
	})

	t.Run("swallows store failures", func(t *testing.T) {
		a, err := agent.New(agent.NewInput{
			Gemini: &mockGemini{},
			Memory: &mockMemory{upsertFunc: func(ctx context.Context, rec model.MemoryRecord) error {
				return goerr.Wrap(model.ErrStoreUnavailable, "down")
			}},
		})
		gt.NoError(t, err)

		a.PersistMemory(ctx, model.ChatID("chat-1"), "user", "hello")
	})

	t.Run("no-op without a store", func(t *testing.T) {
		a, err := agent.New(agent.NewInput{Gemini: &mockGemini{}})
		gt.NoError(t, err)

		a.PersistMemory(ctx, model.ChatID("chat-1"), "user", "hello")
	})
}
