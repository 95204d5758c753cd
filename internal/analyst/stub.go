package analyst

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const StubSQL = "SELECT * FROM customers LIMIT 10"

var stubSuggestions = []string{
	"Show me top customers",
	"Analyze revenue trends",
	"What are the KPIs?",
}

// Stub answers every capability locally. It generates StubSQL whenever the
// utterance mentions sql, data or query.
type Stub struct{}

var (
	_ Analyzer       = Stub{}
	_ Completer      = Stub{}
	_ FeedbackSender = Stub{}
)

func (Stub) Analyze(_ context.Context, req AnalysisRequest) (Analysis, error) {
	text := fmt.Sprintf("I received your message: '%s'\n\nThis is a stub analysis. A connected analysis service would interpret it against %s.",
		req.Utterance, req.SemanticModel)
	analysis := Analysis{
		RequestID:   "req-" + uuid.NewString(),
		Text:        text,
		Suggestions: append([]string(nil), stubSuggestions...),
		Content: []ContentBlock{
			{Type: "text", Text: text},
			{Type: "suggestions", Suggestions: append([]string(nil), stubSuggestions...)},
		},
	}

	lowered := strings.ToLower(req.Utterance)
	if strings.Contains(lowered, "sql") || strings.Contains(lowered, "data") || strings.Contains(lowered, "query") {
		analysis.GeneratedSQL = StubSQL
		analysis.Content = append(analysis.Content, ContentBlock{Type: "sql", Statement: StubSQL})
	}

	analysis.Raw = map[string]any{
		"request_id": analysis.RequestID,
		"message": map[string]any{
			"role":    RoleAnalyst,
			"content": analysis.Content,
		},
	}
	return analysis, nil
}

func (Stub) Complete(_ context.Context, req CompletionRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	firstLine, _, _ := strings.Cut(prompt, "\n")
	return "Stub answer. A connected completion service would respond to: " + firstLine, nil
}

func (Stub) SendFeedback(_ context.Context, req FeedbackRequest) error {
	if strings.TrimSpace(req.RequestID) == "" {
		return &FeedbackError{StatusCode: 400, ErrorCode: "INVALID_REQUEST", Message: "request_id is required"}
	}
	return nil
}
