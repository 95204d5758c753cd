package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/analystproxy/analystproxy/internal/analyst"
	"github.com/analystproxy/analystproxy/internal/auth"
	"github.com/analystproxy/analystproxy/internal/config"
	"github.com/analystproxy/analystproxy/internal/conversation"
	"github.com/analystproxy/analystproxy/internal/observability"
	"github.com/analystproxy/analystproxy/internal/orchestrator"
	"github.com/analystproxy/analystproxy/internal/warehouse"
)

type ReadinessCheck func(ctx context.Context) error

// Answerer produces the assistant reply for one user message.
type Answerer interface {
	Answer(ctx context.Context, req orchestrator.Request) (orchestrator.Answer, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Version           string
	Conversations     conversation.Store
	Answerer          Answerer
	Feedback          analyst.FeedbackSender
	Executor          warehouse.Executor
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/info", func(w http.ResponseWriter, _ *http.Request) {
		handleInfo(cfg, deps, w)
	})
	mux.HandleFunc("GET /v1/semantic-models", func(w http.ResponseWriter, _ *http.Request) {
		handleSemanticModels(cfg, w)
	})

	protected := http.NewServeMux()
	protected.Handle("POST /v1/messages", auth.RequireRole(auth.RoleChat, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlePostMessage(cfg, deps, w, r)
	})))
	protected.Handle("GET /v1/conversations", auth.RequireRole(auth.RoleChat, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListConversations(deps, w, r)
	})))
	protected.Handle("GET /v1/conversations/{id}", auth.RequireRole(auth.RoleChat, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleGetConversation(deps, w, r)
	})))
	protected.Handle("DELETE /v1/conversations/{id}", auth.RequireRole(auth.RoleChat, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDeleteConversation(deps, w, r)
	})))
	protected.Handle("POST /v1/feedback", auth.RequireRole(auth.RoleChat, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleFeedback(deps, w, r)
	})))
	protected.Handle("POST /v1/execute-sql", auth.RequireRole(auth.RoleSQL, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleExecuteSQL(deps, w, r)
	})))

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/messages", protectedHandler)
	mux.Handle("GET /v1/conversations", protectedHandler)
	mux.Handle("GET /v1/conversations/{id}", protectedHandler)
	mux.Handle("DELETE /v1/conversations/{id}", protectedHandler)
	mux.Handle("POST /v1/feedback", protectedHandler)
	mux.Handle("POST /v1/execute-sql", protectedHandler)
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.RecoverMiddleware(logger),
		observability.CORSMiddleware(cfg.CORS.AllowedOrigins),
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func decodeJSONBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
