package agent

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/marketmind/marketmind/pkg/model"
	"github.com/marketmind/marketmind/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/title.md
var titlePromptRaw string

//go:embed prompt/title_system.md
var titleSystemPromptRaw string

var titlePromptTmpl = template.Must(template.New("title").Parse(titlePromptRaw))

const titleFallbackLimit = 60

// SuggestTitle reduces a transcript to a short label. It never fails: an
// empty transcript yields the default title without a model call, and a
// failed or empty completion falls back to the transcript's first line.
func (a *Agent) SuggestTitle(ctx context.Context, history string) string {
	if strings.TrimSpace(history) == "" {
		return model.DefaultChatTitle
	}

	title := a.completeTitle(ctx, history)
	if title == "" {
		title = truncate(firstLine(history), titleFallbackLimit)
	}
	if title == "" {
		return model.DefaultChatTitle
	}

	return firstLine(title)
}

func (a *Agent) completeTitle(ctx context.Context, history string) string {
	var rendered bytes.Buffer
	if err := titlePromptTmpl.Execute(&rendered, map[string]string{"History": history}); err != nil {
		logging.From(ctx).Warn("failed to render title prompt", "error", err)
		return ""
	}

	contents := []*genai.Content{
		genai.NewContentFromText(rendered.String(), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(titleSystemPromptRaw, ""),
	}

	resp, err := a.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		logging.From(ctx).Warn("title generation failed", "error", err)
		return ""
	}

	return strings.TrimSpace(responseText(resp))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
