package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/analystproxy/analystproxy/internal/analyst"
	"github.com/analystproxy/analystproxy/internal/observability"
)

type feedbackRequest struct {
	RequestID       string `json:"request_id"`
	Positive        *bool  `json:"positive"`
	FeedbackMessage string `json:"feedback_message"`
}

// handleFeedback relays feedback on an analysis response. Rejections from the
// remote service keep their status code.
func handleFeedback(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Feedback == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FEEDBACK_NOT_CONFIGURED", "feedback sender is not configured", false, nil)
		return
	}

	var request feedbackRequest
	if err := decodeJSONBody(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid feedback request body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.Positive == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "POSITIVE_REQUIRED", "positive is required", false, nil)
		return
	}

	err := deps.Feedback.SendFeedback(r.Context(), analyst.FeedbackRequest{
		RequestID:       strings.TrimSpace(request.RequestID),
		Positive:        *request.Positive,
		FeedbackMessage: request.FeedbackMessage,
	})
	if err == nil {
		observability.ObserveFeedback(*request.Positive, http.StatusOK)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Feedback submitted successfully"})
		return
	}

	var rejected *analyst.FeedbackError
	if errors.As(err, &rejected) {
		status := rejected.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		requestID := rejected.RequestID
		if requestID == "" {
			requestID = request.RequestID
		}
		observability.ObserveFeedback(*request.Positive, status)
		writeJSON(w, status, map[string]any{
			"request_id": requestID,
			"error_code": rejected.ErrorCode,
			"message":    rejected.Message,
		})
		return
	}

	observability.ObserveFeedback(*request.Positive, http.StatusBadGateway)
	writeJSON(w, http.StatusBadGateway, map[string]any{
		"request_id": request.RequestID,
		"error_code": "FEEDBACK_UNAVAILABLE",
		"message":    err.Error(),
	})
}
