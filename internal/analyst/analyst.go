package analyst

import (
	"context"
	"fmt"
	"strings"
)

const (
	RoleUser    = "user"
	RoleAnalyst = "analyst"
)

// Turn is one prior exchange replayed to the analysis service.
type Turn struct {
	Role string
	Text string
}

type AnalysisRequest struct {
	Utterance       string
	SemanticModel   string
	ServiceTopic    string
	DataDescription string
	History         []Turn
}

type ContentBlock struct {
	Type        string   `json:"type"`
	Text        string   `json:"text,omitempty"`
	Statement   string   `json:"statement,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Analysis is the decoded analysis payload. Raw keeps the full response so
// callers can surface fields this package does not interpret.
type Analysis struct {
	RequestID    string
	Text         string
	GeneratedSQL string
	Suggestions  []string
	Content      []ContentBlock
	Raw          map[string]any
}

// Usable reports whether the payload carries anything a completion can be
// grounded on.
func (a Analysis) Usable() bool {
	return strings.TrimSpace(a.Text) != "" || strings.TrimSpace(a.GeneratedSQL) != "" || len(a.Content) > 0
}

type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type FeedbackRequest struct {
	RequestID       string `json:"request_id"`
	Positive        bool   `json:"positive"`
	FeedbackMessage string `json:"feedback_message,omitempty"`
}

type SearchRequest struct {
	Database string
	Schema   string
	Service  string
	Query    string
	Columns  []string
	Limit    int
}

type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (Analysis, error)
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type FeedbackSender interface {
	SendFeedback(ctx context.Context, req FeedbackRequest) error
}

// TransportError reports that a remote capability could not be reached or
// answered with an error status.
type TransportError struct {
	Capability string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Capability, e.Err)
	}
	return fmt.Sprintf("%s request failed status=%d body=%s", e.Capability, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FeedbackError is a feedback rejection relayed from the remote service.
type FeedbackError struct {
	StatusCode int
	RequestID  string `json:"request_id"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

func (e *FeedbackError) Error() string {
	return fmt.Sprintf("feedback rejected status=%d error_code=%s: %s", e.StatusCode, e.ErrorCode, e.Message)
}

// EscapeQuotes backslash-escapes quote characters and backslashes so the
// utterance cannot terminate a quoted literal in the remote representation.
func EscapeQuotes(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch r {
		case '\\', '\'', '"':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
