package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/analystproxy/analystproxy/internal/analyst"
	"github.com/analystproxy/analystproxy/internal/observability"
	"github.com/analystproxy/analystproxy/internal/warehouse"
)

var ErrEmptyUtterance = errors.New("utterance is required")

const ApologyMessage = "I'm sorry, I could not produce an answer right now. Please try again in a moment."

const defaultGroundingRows = 100

type Config struct {
	ServiceTopic     string
	DataDescription  string
	Temperature      float64
	MaxTokens        int
	MaxGroundingRows int
}

type Request struct {
	Utterance     string
	SemanticModel string
	History       []analyst.Turn
}

// Metadata describes how a grounded answer was produced. SQLResults is nil
// when no statement ran or the statement failed.
type Metadata struct {
	AnalysisData map[string]any
	RequestID    string
	GeneratedSQL string
	Columns      []string
	SQLResults   []map[string]any
	Truncated    bool
	QueryError   string
}

func (m *Metadata) Map() map[string]any {
	if m == nil {
		return nil
	}
	out := map[string]any{
		"analysis_data": m.AnalysisData,
		"sql_results":   m.SQLResults,
	}
	if m.RequestID != "" {
		out["request_id"] = m.RequestID
	}
	if m.GeneratedSQL != "" {
		out["generated_sql"] = m.GeneratedSQL
	}
	if m.Columns != nil {
		out["columns"] = m.Columns
	}
	if m.Truncated {
		out["sql_results_truncated"] = true
	}
	if m.QueryError != "" {
		out["query_error"] = m.QueryError
	}
	return out
}

// Answer always carries non-empty Content. Metadata is nil for the
// context-free fallback and for the apology.
type Answer struct {
	Content  string
	Blocks   []analyst.ContentBlock
	Metadata *Metadata
}

type Orchestrator struct {
	analyzer  analyst.Analyzer
	completer analyst.Completer
	executor  warehouse.Executor
	logger    *slog.Logger
	cfg       Config
}

func New(analyzer analyst.Analyzer, completer analyst.Completer, executor warehouse.Executor, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.MaxGroundingRows <= 0 {
		cfg.MaxGroundingRows = defaultGroundingRows
	}
	return &Orchestrator{
		analyzer:  analyzer,
		completer: completer,
		executor:  executor,
		logger:    logger,
		cfg:       cfg,
	}
}

// Answer runs analysis, optional SQL execution and a grounded completion.
// Remote and SQL failures degrade the answer; only an empty utterance is
// returned as an error.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Answer, error) {
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		return Answer{}, ErrEmptyUtterance
	}
	start := time.Now()

	analysis, err := o.analyze(ctx, req, utterance)
	if err != nil {
		o.warn(ctx, "analysis_unavailable", err)
		answer := o.fallback(ctx, utterance)
		observability.ObserveAnswer(outcomeOf(answer, observability.OutcomeFallback), time.Since(start))
		return answer, nil
	}

	metadata := &Metadata{
		AnalysisData: analysis.Raw,
		RequestID:    analysis.RequestID,
		GeneratedSQL: analysis.GeneratedSQL,
	}
	if analysis.GeneratedSQL != "" {
		o.execute(ctx, metadata)
	}

	text, err := o.complete(ctx, observability.StageCompletion, groundedPrompt(utterance, analysis, metadata, o.cfg.MaxGroundingRows))
	if err != nil {
		o.warn(ctx, "completion_failed", err)
		observability.ObserveAnswer(observability.OutcomeApology, time.Since(start))
		return Answer{Content: ApologyMessage}, nil
	}

	observability.ObserveAnswer(observability.OutcomeGrounded, time.Since(start))
	return Answer{Content: text, Blocks: analysis.Content, Metadata: metadata}, nil
}

func (o *Orchestrator) analyze(ctx context.Context, req Request, utterance string) (analyst.Analysis, error) {
	if o.analyzer == nil {
		return analyst.Analysis{}, fmt.Errorf("analysis capability is not configured")
	}
	start := time.Now()
	analysis, err := o.analyzer.Analyze(ctx, analyst.AnalysisRequest{
		Utterance:       analyst.EscapeQuotes(utterance),
		SemanticModel:   req.SemanticModel,
		ServiceTopic:    o.cfg.ServiceTopic,
		DataDescription: o.cfg.DataDescription,
		History:         req.History,
	})
	if err == nil && !analysis.Usable() {
		err = fmt.Errorf("analysis returned no usable payload")
	}
	observability.ObserveStage(observability.StageAnalysis, err, time.Since(start))
	return analysis, err
}

func (o *Orchestrator) execute(ctx context.Context, metadata *Metadata) {
	if o.executor == nil {
		metadata.QueryError = "no warehouse is configured to run the generated query"
		return
	}
	start := time.Now()
	result, err := o.executor.Execute(ctx, metadata.GeneratedSQL)
	observability.ObserveStage(observability.StageQuery, err, time.Since(start))
	if err != nil {
		o.warn(ctx, "query_failed", err, slog.String("sql", metadata.GeneratedSQL))
		metadata.QueryError = err.Error()
		return
	}
	observability.AddQueryRows(len(result.Rows))
	metadata.Columns = result.Columns
	metadata.SQLResults = result.Rows
	metadata.Truncated = result.Truncated
}

func (o *Orchestrator) fallback(ctx context.Context, utterance string) Answer {
	text, err := o.complete(ctx, observability.StageFallback, fallbackPrompt(utterance))
	if err != nil {
		o.warn(ctx, "fallback_failed", err)
		return Answer{Content: ApologyMessage}
	}
	return Answer{Content: text}
}

func (o *Orchestrator) complete(ctx context.Context, stage, prompt string) (string, error) {
	if o.completer == nil {
		return "", fmt.Errorf("completion capability is not configured")
	}
	start := time.Now()
	text, err := o.completer.Complete(ctx, analyst.CompletionRequest{
		Prompt:      prompt,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("completion returned empty text")
	}
	observability.ObserveStage(stage, err, time.Since(start))
	return strings.TrimSpace(text), err
}

func (o *Orchestrator) warn(ctx context.Context, event string, err error, attrs ...any) {
	args := append([]any{slog.String("error", err.Error())}, attrs...)
	observability.WithTraceID(ctx, o.logger).WarnContext(ctx, event, args...)
}

func outcomeOf(answer Answer, success string) string {
	if answer.Content == ApologyMessage {
		return observability.OutcomeApology
	}
	return success
}

func fallbackPrompt(utterance string) string {
	return "Question: " + utterance + "\n\n" +
		"The data analysis service is unavailable, so no data can be consulted. " +
		"Answer the question as helpfully as you can and say clearly when it needs data you do not have."
}

func groundedPrompt(utterance string, analysis analyst.Analysis, metadata *Metadata, maxRows int) string {
	var b strings.Builder
	b.WriteString("Question: " + utterance + "\n\n")
	b.WriteString("Answer the question above using only the grounding data below. ")
	b.WriteString("If the data does not answer it, say so instead of guessing.\n")

	if text := strings.TrimSpace(analysis.Text); text != "" {
		b.WriteString("\nAnalysis:\n" + text + "\n")
	}
	if metadata.GeneratedSQL != "" {
		b.WriteString("\nGenerated SQL:\n" + metadata.GeneratedSQL + "\n")
	}
	switch {
	case metadata.QueryError != "":
		b.WriteString("\nThe generated SQL could not be executed: " + metadata.QueryError + "\n")
	case metadata.SQLResults != nil:
		rows := metadata.SQLResults
		if len(rows) > maxRows {
			rows = rows[:maxRows]
		}
		encoded, err := json.Marshal(rows)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", rows))
		}
		fmt.Fprintf(&b, "\nQuery results (%d rows, showing %d):\n%s\n", len(metadata.SQLResults), len(rows), encoded)
		if metadata.Truncated {
			b.WriteString("The query returned more rows than were fetched; the results above are incomplete.\n")
		}
	case analysis.Text == "" && metadata.GeneratedSQL == "":
		encoded, err := json.Marshal(analysis.Raw)
		if err == nil {
			b.WriteString("\nAnalysis payload:\n" + string(encoded) + "\n")
		}
	}
	return b.String()
}
