package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/analystproxy/analystproxy/internal/analyst"
	"github.com/analystproxy/analystproxy/internal/config"
	"github.com/analystproxy/analystproxy/internal/conversation"
	"github.com/analystproxy/analystproxy/internal/orchestrator"
	"github.com/analystproxy/analystproxy/internal/warehouse"
)

func TestPostMessageCreatesConversationAndReturnsAssistantMessage(t *testing.T) {
	store := conversation.NewMemoryStore()
	answerer := &fakeAnswerer{answer: orchestrator.Answer{
		Content: "Revenue is highest in the North.",
		Blocks:  []analyst.ContentBlock{{Type: "sql", Statement: "SELECT 1"}},
		Metadata: &orchestrator.Metadata{
			RequestID:    "req-1",
			GeneratedSQL: "SELECT 1",
			Columns:      []string{"x"},
			SQLResults:   []map[string]any{{"x": 1}},
		},
	}}
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Conversations: store, Answerer: answerer})

	rr := postMessage(t, h, `{"message":"  Show total revenue by region  "}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var message conversation.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &message); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if message.Role != conversation.RoleAssistant || message.Content != "Revenue is highest in the North." {
		t.Fatalf("unexpected message: %+v", message)
	}
	if message.Metadata["generated_sql"] != "SELECT 1" || message.Metadata["request_id"] != "req-1" {
		t.Fatalf("unexpected metadata: %v", message.Metadata)
	}
	if len(message.Blocks) != 1 || message.Blocks[0].Statement != "SELECT 1" {
		t.Fatalf("unexpected blocks: %+v", message.Blocks)
	}

	if len(answerer.requests) != 1 {
		t.Fatalf("answerer calls = %d", len(answerer.requests))
	}
	request := answerer.requests[0]
	if request.Utterance != "Show total revenue by region" {
		t.Fatalf("utterance = %q", request.Utterance)
	}
	if request.SemanticModel != "ANALYTICS.PUBLIC.SEMANTIC_STAGE/revenue.yaml" {
		t.Fatalf("semantic model = %q", request.SemanticModel)
	}
	if len(request.History) != 0 {
		t.Fatalf("history = %+v", request.History)
	}

	stored, err := store.Get(message.ConversationID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(stored.Messages) != 2 || stored.Title != "Show total revenue by region" {
		t.Fatalf("unexpected conversation: %+v", stored)
	}
}

func TestPostMessageReplaysHistoryForKnownConversation(t *testing.T) {
	store := conversation.NewMemoryStore()
	answerer := &fakeAnswerer{answer: orchestrator.Answer{Content: "answer"}}
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Conversations: store, Answerer: answerer})

	first := postMessage(t, h, `{"message":"first question"}`)
	var reply conversation.Message
	if err := json.Unmarshal(first.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}

	second := postMessage(t, h, `{"message":"follow up","conversation_id":"`+reply.ConversationID+`"}`)
	if second.Code != http.StatusCreated {
		t.Fatalf("status = %d", second.Code)
	}
	history := answerer.requests[1].History
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Role != analyst.RoleUser || history[0].Text != "first question" {
		t.Fatalf("history[0] = %+v", history[0])
	}
	if history[1].Role != analyst.RoleAnalyst || history[1].Text != "answer" {
		t.Fatalf("history[1] = %+v", history[1])
	}
	stored, _ := store.Get(reply.ConversationID)
	if len(stored.Messages) != 4 {
		t.Fatalf("messages = %d", len(stored.Messages))
	}
}

func TestPostMessageWithUnknownConversationStartsNewOne(t *testing.T) {
	store := conversation.NewMemoryStore()
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Conversations: store, Answerer: &fakeAnswerer{answer: orchestrator.Answer{Content: "ok"}}})

	rr := postMessage(t, h, `{"message":"hello","conversation_id":"missing"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	var message conversation.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &message); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if message.ConversationID == "" || message.ConversationID == "missing" {
		t.Fatalf("conversation id = %q", message.ConversationID)
	}
	if len(store.List()) != 1 {
		t.Fatalf("conversations = %d", len(store.List()))
	}
}

func TestPostMessageValidation(t *testing.T) {
	store := conversation.NewMemoryStore()
	answerer := &fakeAnswerer{answer: orchestrator.Answer{Content: "ok"}}
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Conversations: store, Answerer: answerer})

	cases := map[string]string{
		"empty message":   `{"message":"   "}`,
		"invalid json":    `{"message":`,
		"unknown field":   `{"message":"hi","tenant":"x"}`,
		"unknown model":   `{"message":"hi","semantic_model":"OTHER/model.yaml"}`,
		"missing message": `{}`,
	}
	for name, body := range cases {
		rr := postMessage(t, h, body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", name, rr.Code)
		}
	}
	if len(answerer.requests) != 0 {
		t.Fatalf("answerer should not be called, got %d calls", len(answerer.requests))
	}
	if len(store.List()) != 0 {
		t.Fatalf("no conversation should be created, got %d", len(store.List()))
	}
}

func TestConversationLifecycle(t *testing.T) {
	store := conversation.NewMemoryStore()
	h := NewHandler(loadTestConfig(t, nil), Dependencies{Conversations: store, Answerer: &fakeAnswerer{answer: orchestrator.Answer{Content: "ok"}}})

	rr := postMessage(t, h, `{"message":"What is the churn rate for the last quarter?"}`)
	var message conversation.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &message); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id := message.ConversationID

	list := httptest.NewRecorder()
	h.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	var conversations []conversation.Conversation
	if err := json.Unmarshal(list.Body.Bytes(), &conversations); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(conversations) != 1 || conversations[0].Title != "What is the churn rate for the…" {
		t.Fatalf("unexpected list: %+v", conversations)
	}

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/v1/conversations/"+id, nil))
	if get.Code != http.StatusOK {
		t.Fatalf("get status = %d", get.Code)
	}

	del := httptest.NewRecorder()
	h.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/v1/conversations/"+id, nil))
	if del.Code != http.StatusOK {
		t.Fatalf("delete status = %d", del.Code)
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/v1/conversations/"+id, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s after delete status = %d", method, rr.Code)
		}
		if decodeBody(t, rr)["error_code"] != "CONVERSATION_NOT_FOUND" {
			t.Fatalf("unexpected error body: %s", rr.Body.String())
		}
	}
}

func TestPostMessageEndToEndWithStubAndDuckDB(t *testing.T) {
	ctx := context.Background()
	conn, err := warehouse.Open(ctx, config.WarehouseConfig{Driver: "duckdb"})
	if err != nil {
		t.Fatalf("warehouse.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.DB().Close() })
	if err := warehouse.SeedDemo(ctx, conn.DB()); err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}

	stub := analyst.Stub{}
	executor := warehouse.NewExecutor(conn, 0)
	h := NewHandler(loadTestConfig(t, nil), Dependencies{
		Conversations: conversation.NewMemoryStore(),
		Answerer:      orchestrator.New(stub, stub, executor, nil, orchestrator.Config{ServiceTopic: "sales", DataDescription: "customers"}),
		Feedback:      stub,
		Executor:      executor,
	})

	rr := postMessage(t, h, `{"message":"show me the data"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var message conversation.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &message); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.TrimSpace(message.Content) == "" {
		t.Fatal("expected non-empty content")
	}
	if message.Metadata["generated_sql"] != analyst.StubSQL {
		t.Fatalf("generated_sql = %v", message.Metadata["generated_sql"])
	}
	rows, ok := message.Metadata["sql_results"].([]any)
	if !ok || len(rows) != 10 {
		t.Fatalf("sql_results = %v", message.Metadata["sql_results"])
	}
	requestID, _ := message.Metadata["request_id"].(string)
	if requestID == "" {
		t.Fatal("expected request id in metadata")
	}

	feedback := httptest.NewRecorder()
	h.ServeHTTP(feedback, httptest.NewRequest(http.MethodPost, "/v1/feedback", strings.NewReader(`{"request_id":"`+requestID+`","positive":true}`)))
	if feedback.Code != http.StatusOK {
		t.Fatalf("feedback status = %d body=%s", feedback.Code, feedback.Body.String())
	}
}

func postMessage(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body)))
	return rr
}

type fakeAnswerer struct {
	answer   orchestrator.Answer
	err      error
	requests []orchestrator.Request
}

func (f *fakeAnswerer) Answer(_ context.Context, req orchestrator.Request) (orchestrator.Answer, error) {
	f.requests = append(f.requests, req)
	return f.answer, f.err
}

type panickingAnswerer struct{}

func (panickingAnswerer) Answer(context.Context, orchestrator.Request) (orchestrator.Answer, error) {
	panic("answerer exploded")
}
