package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/analystproxy/analystproxy/internal/analyst"
	"github.com/analystproxy/analystproxy/internal/config"
	"github.com/analystproxy/analystproxy/internal/conversation"
	"github.com/analystproxy/analystproxy/internal/orchestrator"
)

type messageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	SemanticModel  string `json:"semantic_model"`
}

func handlePostMessage(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Conversations == nil || deps.Answerer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MESSAGES_NOT_CONFIGURED", "conversation dependencies are not configured", false, nil)
		return
	}

	var request messageRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid message request body", false, map[string]any{"details": err.Error()})
		return
	}
	text := strings.TrimSpace(request.Message)
	if text == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}
	model, ok := resolveSemanticModel(cfg, request.SemanticModel)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "UNKNOWN_SEMANTIC_MODEL", "semantic model is not configured", false, map[string]any{"semantic_model": request.SemanticModel})
		return
	}

	history := priorTurns(deps.Conversations, request.ConversationID)
	conversationID, _, err := deps.Conversations.AppendUserMessage(request.ConversationID, text)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REJECTED", err.Error(), false, nil)
		return
	}

	answer, err := deps.Answerer.Answer(r.Context(), orchestrator.Request{
		Utterance:     text,
		SemanticModel: model,
		History:       history,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyUtterance) {
			writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "ANSWER_FAILED", err.Error(), true, map[string]any{"conversation_id": conversationID})
		return
	}

	message, err := deps.Conversations.AppendAssistantMessage(conversationID, answer.Content, toConversationBlocks(answer.Blocks), answer.Metadata.Map())
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation was deleted while answering", false, map[string]any{"conversation_id": conversationID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "STORE_ERROR", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func handleListConversations(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Conversations == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONVERSATIONS_NOT_CONFIGURED", "conversation store is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Conversations.List())
}

func handleGetConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Conversations == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONVERSATIONS_NOT_CONFIGURED", "conversation store is not configured", false, nil)
		return
	}
	id := r.PathValue("id")
	item, err := deps.Conversations.Get(id)
	if err != nil {
		writeConversationError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func handleDeleteConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Conversations == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONVERSATIONS_NOT_CONFIGURED", "conversation store is not configured", false, nil)
		return
	}
	id := r.PathValue("id")
	if err := deps.Conversations.Delete(id); err != nil {
		writeConversationError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "conversation_id": id})
}

func writeConversationError(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation not found", false, map[string]any{"conversation_id": id})
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "STORE_ERROR", err.Error(), true, nil)
}

// priorTurns replays an existing conversation as analysis history. Unknown
// ids yield no history; the store will start a new conversation for them.
func priorTurns(store conversation.Store, conversationID string) []analyst.Turn {
	if conversationID == "" {
		return nil
	}
	item, err := store.Get(conversationID)
	if err != nil {
		return nil
	}
	turns := make([]analyst.Turn, 0, len(item.Messages))
	for _, message := range item.Messages {
		role := analyst.RoleUser
		if message.Role == conversation.RoleAssistant {
			role = analyst.RoleAnalyst
		}
		turns = append(turns, analyst.Turn{Role: role, Text: message.Content})
	}
	return turns
}

func toConversationBlocks(blocks []analyst.ContentBlock) []conversation.ContentBlock {
	if len(blocks) == 0 {
		return nil
	}
	out := make([]conversation.ContentBlock, 0, len(blocks))
	for _, block := range blocks {
		out = append(out, conversation.ContentBlock{
			Type:        block.Type,
			Text:        block.Text,
			Statement:   block.Statement,
			Suggestions: block.Suggestions,
		})
	}
	return out
}
