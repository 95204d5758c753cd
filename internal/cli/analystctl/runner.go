package analystctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type call struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("analystctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8000"), "analyst API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	request, err := buildCall(strings.TrimSpace(fs.Arg(0)), fs.Args()[1:], stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	client := resty.New()
	if defaults.HTTPClient != nil {
		client = resty.NewWithClient(defaults.HTTPClient)
	}
	client.SetBaseURL(strings.TrimRight(*baseURL, "/")).
		SetTimeout(*timeout).
		SetHeader("Accept", "application/json")
	if key := strings.TrimSpace(*apiKey); key != "" {
		client.SetHeader("X-API-Key", key)
	}

	req := client.R().SetContext(ctx)
	if request.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(request.body)
	}
	resp, err := req.Execute(request.method, request.path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	responseBody := resp.Body()
	if resp.StatusCode() >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", resp.StatusCode(), strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildCall(command string, args []string, stderr io.Writer) (call, error) {
	switch command {
	case "health":
		return call{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return call{method: http.MethodGet, path: "/v1/ready"}, nil
	case "info":
		return call{method: http.MethodGet, path: "/v1/info"}, nil
	case "models":
		return call{method: http.MethodGet, path: "/v1/semantic-models"}, nil
	case "conversations":
		return call{method: http.MethodGet, path: "/v1/conversations"}, nil
	case "conversation", "delete":
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return call{}, fmt.Errorf("%s requires a conversation id", command)
		}
		method := http.MethodGet
		if command == "delete" {
			method = http.MethodDelete
		}
		return call{method: method, path: "/v1/conversations/" + url.PathEscape(strings.TrimSpace(args[0]))}, nil
	case "ask":
		return buildAsk(args, stderr)
	case "feedback":
		return buildFeedback(args)
	case "sql":
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return call{}, fmt.Errorf("sql requires a query")
		}
		return call{method: http.MethodPost, path: "/v1/execute-sql", body: map[string]any{"query": query}}, nil
	default:
		return call{}, fmt.Errorf("unknown command %q", command)
	}
}

func buildAsk(args []string, stderr io.Writer) (call, error) {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	conversationID := fs.String("conversation", "", "continue an existing conversation")
	model := fs.String("model", "", "semantic model path")

	words, err := parseInterleaved(fs, args)
	if err != nil {
		return call{}, err
	}
	message := strings.TrimSpace(strings.Join(words, " "))
	if message == "" {
		return call{}, fmt.Errorf("ask requires a message")
	}
	body := map[string]any{"message": message}
	if *conversationID != "" {
		body["conversation_id"] = *conversationID
	}
	if *model != "" {
		body["semantic_model"] = *model
	}
	return call{method: http.MethodPost, path: "/v1/messages", body: body}, nil
}

func buildFeedback(args []string) (call, error) {
	if len(args) < 2 {
		return call{}, fmt.Errorf("feedback requires <request_id> <up|down> [message]")
	}
	var positive bool
	switch strings.ToLower(strings.TrimSpace(args[1])) {
	case "up", "yes", "positive":
		positive = true
	case "down", "no", "negative":
		positive = false
	default:
		return call{}, fmt.Errorf("feedback verdict must be up or down, got %q", args[1])
	}
	body := map[string]any{"request_id": strings.TrimSpace(args[0]), "positive": positive}
	if message := strings.TrimSpace(strings.Join(args[2:], " ")); message != "" {
		body["feedback_message"] = message
	}
	return call{method: http.MethodPost, path: "/v1/feedback", body: body}, nil
}

// parseInterleaved allows flags before and after positional words.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: analystctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                                 GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                                  GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  info                                   GET /v1/info")
	_, _ = fmt.Fprintln(w, "  models                                 GET /v1/semantic-models")
	_, _ = fmt.Fprintln(w, "  ask <message> [-conversation id] [-model path]")
	_, _ = fmt.Fprintln(w, "                                         POST /v1/messages")
	_, _ = fmt.Fprintln(w, "  conversations                          GET /v1/conversations")
	_, _ = fmt.Fprintln(w, "  conversation <id>                      GET /v1/conversations/{id}")
	_, _ = fmt.Fprintln(w, "  delete <id>                            DELETE /v1/conversations/{id}")
	_, _ = fmt.Fprintln(w, "  feedback <request_id> <up|down> [msg]  POST /v1/feedback")
	_, _ = fmt.Fprintln(w, "  sql <query>                            POST /v1/execute-sql")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
