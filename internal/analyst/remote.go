package analyst

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/analystproxy/analystproxy/internal/gateway"
)

type ClientConfig struct {
	Gateway  *gateway.Gateway
	ProxyURL string
	Model    string
	Timeout  time.Duration
}

// Client talks to the remote analysis, completion, feedback and search
// capabilities. Every call is a single attempt.
type Client struct {
	http    *resty.Client
	gateway *gateway.Gateway
	model   string
}

var (
	_ Analyzer       = (*Client)(nil)
	_ Completer      = (*Client)(nil)
	_ FeedbackSender = (*Client)(nil)
)

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", gateway.ErrConfiguration)
	}
	baseURL := cfg.Gateway.BaseURL()
	if cfg.Gateway.Embedded() {
		baseURL = strings.TrimRight(strings.TrimSpace(cfg.ProxyURL), "/")
		if baseURL == "" {
			return nil, fmt.Errorf("%w: embedded runtime requires a proxy url", gateway.ErrConfiguration)
		}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "mistral-large2"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 50 * time.Second
	}

	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("User-Agent", "analystproxy/1.0"),
		gateway: cfg.Gateway,
		model:   model,
	}, nil
}

func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (Analysis, error) {
	resp, err := c.post(ctx, gateway.Analysis, buildAnalysisBody(req))
	if err != nil {
		return Analysis{}, err
	}
	if resp.IsError() {
		return Analysis{}, &TransportError{Capability: "analysis", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	analysis, err := decodeAnalysis(resp.Body())
	if err != nil {
		return Analysis{}, fmt.Errorf("decode analysis response: %w", err)
	}
	return analysis, nil
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"stream": false,
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	resp, err := c.post(ctx, gateway.Completion, body)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", &TransportError{Capability: "completion", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	text, err := decodeCompletion(resp.Body())
	if err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	return text, nil
}

func (c *Client) SendFeedback(ctx context.Context, req FeedbackRequest) error {
	resp, err := c.post(ctx, gateway.Feedback, req)
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}

	feedbackErr := &FeedbackError{StatusCode: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), feedbackErr); err != nil {
		feedbackErr.ErrorCode = "UNPARSEABLE_RESPONSE"
		feedbackErr.Message = strings.TrimSpace(resp.String())
	}
	if feedbackErr.RequestID == "" {
		feedbackErr.RequestID = req.RequestID
	}
	return feedbackErr
}

// Search queries a search service and returns its result rows.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]map[string]any, error) {
	body := map[string]any{"query": req.Query}
	if len(req.Columns) > 0 {
		body["columns"] = req.Columns
	}
	if req.Limit > 0 {
		body["limit"] = req.Limit
	}

	resp, err := c.post(ctx, gateway.Search(req.Database, req.Schema, req.Service), body)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &TransportError{Capability: "search", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	var parsed struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Results, nil
}

func (c *Client) post(ctx context.Context, capability gateway.Capability, body any) (*resty.Response, error) {
	endpoint, err := c.gateway.EndpointFor(capability)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(c.gateway.HeadersFor(capability)).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, &TransportError{Capability: capability.String(), Err: err}
	}
	return resp, nil
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

// buildAnalysisBody replays history as alternating user/analyst turns ending
// with the current utterance. Topic and data description prefix the first
// user turn.
func buildAnalysisBody(req AnalysisRequest) map[string]any {
	turns := make([]Turn, 0, len(req.History)+1)
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		if len(turns) == 0 && turn.Role != RoleUser {
			continue
		}
		if len(turns) > 0 && turns[len(turns)-1].Role == turn.Role {
			turns[len(turns)-1].Text += "\n" + turn.Text
			continue
		}
		turns = append(turns, turn)
	}
	current := Turn{Role: RoleUser, Text: req.Utterance}
	if len(turns) > 0 && turns[len(turns)-1].Role == RoleUser {
		turns[len(turns)-1] = Turn{Role: RoleUser, Text: turns[len(turns)-1].Text + "\n" + current.Text}
	} else {
		turns = append(turns, current)
	}

	if preamble := contextPreamble(req.ServiceTopic, req.DataDescription); preamble != "" {
		turns[0].Text = preamble + "\n\n" + turns[0].Text
	}

	messages := make([]wireMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, wireMessage{
			Role:    turn.Role,
			Content: []wireContent{{Type: "text", Text: turn.Text}},
		})
	}
	return map[string]any{
		"messages":            messages,
		"semantic_model_file": semanticModelFile(req.SemanticModel),
	}
}

func contextPreamble(topic, description string) string {
	topic = strings.TrimSpace(topic)
	description = strings.TrimSpace(description)
	switch {
	case topic != "" && description != "":
		return fmt.Sprintf("Questions are about %s, answered from %s.", topic, description)
	case topic != "":
		return fmt.Sprintf("Questions are about %s.", topic)
	case description != "":
		return fmt.Sprintf("Questions are answered from %s.", description)
	default:
		return ""
	}
}

func semanticModelFile(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "@") {
		return path
	}
	return "@" + path
}

// decodeAnalysis accepts a JSON object or a JSON string holding one. SQL is
// taken from a top-level generated_sql or from the first sql content item.
func decodeAnalysis(raw []byte) (Analysis, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Analysis{}, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Analysis{}, err
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 {
			return Analysis{}, nil
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Analysis{}, err
	}

	analysis := Analysis{Raw: payload}
	analysis.RequestID, _ = payload["request_id"].(string)
	if sql, ok := payload["generated_sql"].(string); ok {
		analysis.GeneratedSQL = stripMarkdownSQL(sql)
	}

	items := contentItems(payload)
	texts := make([]string, 0, len(items))
	for _, item := range items {
		block := ContentBlock{}
		block.Type, _ = item["type"].(string)
		switch block.Type {
		case "text":
			block.Text, _ = item["text"].(string)
			if strings.TrimSpace(block.Text) != "" {
				texts = append(texts, block.Text)
			}
		case "sql":
			statement, _ := item["statement"].(string)
			block.Statement = stripMarkdownSQL(statement)
			if analysis.GeneratedSQL == "" {
				analysis.GeneratedSQL = block.Statement
			}
		case "suggestions":
			for _, value := range asSlice(item["suggestions"]) {
				if suggestion, ok := value.(string); ok {
					block.Suggestions = append(block.Suggestions, suggestion)
				}
			}
			analysis.Suggestions = append(analysis.Suggestions, block.Suggestions...)
		default:
			continue
		}
		analysis.Content = append(analysis.Content, block)
	}
	analysis.Text = strings.Join(texts, "\n\n")
	return analysis, nil
}

func contentItems(payload map[string]any) []map[string]any {
	source := payload["content"]
	if message, ok := payload["message"].(map[string]any); ok {
		source = message["content"]
	}
	items := make([]map[string]any, 0)
	for _, value := range asSlice(source) {
		if item, ok := value.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

func asSlice(value any) []any {
	items, _ := value.([]any)
	return items
}

// decodeCompletion reads either a single JSON completion or a server-sent
// event stream of deltas.
func decodeCompletion(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("empty completion response")
	}

	var text string
	if raw[0] == '{' {
		var parsed completionChunk
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return "", err
		}
		text = parsed.text()
	} else {
		var b strings.Builder
		scanner := bufio.NewScanner(bytes.NewReader(raw))
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				continue
			}
			var chunk completionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return "", fmt.Errorf("decode completion event: %w", err)
			}
			b.WriteString(chunk.text())
		}
		if err := scanner.Err(); err != nil {
			return "", err
		}
		text = b.String()
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("completion returned no text")
	}
	return strings.TrimSpace(text), nil
}

type completionChunk struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Messages string `json:"messages"`
		Delta    struct {
			Content string `json:"content"`
			Text    string `json:"text"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c completionChunk) text() string {
	if len(c.Choices) == 0 {
		return ""
	}
	choice := c.Choices[0]
	switch {
	case choice.Message.Content != "":
		return choice.Message.Content
	case choice.Messages != "":
		return choice.Messages
	case choice.Delta.Content != "":
		return choice.Delta.Content
	default:
		return choice.Delta.Text
	}
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
