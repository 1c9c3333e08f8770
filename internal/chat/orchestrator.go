package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deniscovei/fraudchat/internal/llm"
	"github.com/deniscovei/fraudchat/internal/observability"
	"github.com/deniscovei/fraudchat/internal/schema"
	"github.com/deniscovei/fraudchat/internal/sqlexec"
	"github.com/deniscovei/fraudchat/internal/sqlguard"
)

// ErrRequestTimeout reports that the per-request wall-clock budget was
// exhausted before a reply could be produced.
var ErrRequestTimeout = errors.New("chat request budget exhausted")

type SQLGenerator interface {
	Generate(ctx context.Context, question string, history []Turn, tables []schema.Table) (Candidate, error)
}

type ResultExplainer interface {
	Explain(ctx context.Context, question string, summary ResultSummary) *Explanation
}

type StatementValidator interface {
	Validate(statement string) sqlguard.Verdict
}

type StatementExecutor interface {
	Execute(ctx context.Context, statement string, rowCap int, timeout time.Duration) (sqlexec.Result, error)
}

type SchemaProvider interface {
	Tables(ctx context.Context) ([]schema.Table, error)
}

// Response is the complete outcome of one chat turn. SQL is set whenever a
// statement was extracted, even if validation or execution stopped it;
// SQLExecuted reports whether Result holds data.
type Response struct {
	Reply        string
	SQL          string
	SQLExecuted  bool
	Result       *sqlexec.Result
	Explanation  *Explanation
	Conversation []Turn
}

type OrchestratorConfig struct {
	RowCap            int
	QueryTimeout      time.Duration
	RequestTimeout    time.Duration
	ExplainSampleRows int
}

// Orchestrator drives one chat turn end to end: schema lookup, generation,
// validation, execution, explanation. Every turn attempts generation; the
// validator decides what may run. A turn fails (non-nil error) only on
// upstream auth failure or when the request budget runs out — everything else
// degrades to a conversational reply.
type Orchestrator struct {
	generator SQLGenerator
	explainer ResultExplainer
	validator StatementValidator
	executor  StatementExecutor
	schemas   SchemaProvider
	logger    *slog.Logger
	cfg       OrchestratorConfig
}

func NewOrchestrator(
	generator SQLGenerator,
	explainer ResultExplainer,
	validator StatementValidator,
	executor StatementExecutor,
	schemas SchemaProvider,
	logger *slog.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.RowCap <= 0 {
		cfg.RowCap = sqlexec.DefaultRowCap
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.ExplainSampleRows <= 0 {
		cfg.ExplainSampleRows = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator: generator,
		explainer: explainer,
		validator: validator,
		executor:  executor,
		schemas:   schemas,
		logger:    logger,
		cfg:       cfg,
	}
}

func (o *Orchestrator) Respond(ctx context.Context, message string, history []Turn) (Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Response{}, fmt.Errorf("message is required")
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	resp, err := o.respond(ctx, message, history)
	if err != nil {
		observability.ObserveChatOutcome("failed")
		return Response{}, err
	}
	resp.Conversation = appendTurns(history, message, resp.Reply)
	return resp, nil
}

func (o *Orchestrator) respond(ctx context.Context, message string, history []Turn) (Response, error) {
	tables, err := o.schemas.Tables(ctx)
	if err != nil {
		// Generation still works without schema context, just less well.
		o.logger.Warn("schema lookup failed, prompting without table context", "error", err)
		tables = nil
	}

	candidate, err := o.generator.Generate(ctx, message, history, tables)
	if err != nil {
		return o.handleGenerationFailure(ctx, err)
	}

	verdict := o.validator.Validate(candidate.Normalized)
	if !verdict.Accepted {
		observability.IncrementValidationRejection(verdict.Rule)
		observability.ObserveChatOutcome("rejected")
		o.logger.Info("generated statement rejected", "rule", verdict.Rule, "reason", verdict.Reason)
		return Response{
			Reply: fmt.Sprintf("I generated a query, but it was blocked by the read-only safety policy: %s. Try rephrasing the question.", verdict.Reason),
			SQL:   candidate.Normalized,
		}, nil
	}

	result, err := o.executor.Execute(ctx, candidate.Normalized, o.cfg.RowCap, o.cfg.QueryTimeout)
	if err != nil {
		if budgetErr := requestBudgetExhausted(ctx); budgetErr != nil {
			return Response{}, budgetErr
		}
		observability.ObserveChatOutcome("execution_error")
		o.logger.Info("query execution failed", "error", err)
		cause := err
		var execErr *sqlexec.ExecutionError
		if errors.As(err, &execErr) {
			cause = execErr.Err
		}
		return Response{
			Reply: fmt.Sprintf("The generated query could not be executed: %v. Try rephrasing the question.", cause),
			SQL:   candidate.Normalized,
		}, nil
	}
	observability.ObserveQueryExecution(result.Elapsed, result.Truncated)

	explanation := o.explainer.Explain(ctx, message, summarize(result, o.cfg.ExplainSampleRows))
	reply := fallbackReply(result)
	if explanation != nil {
		reply = explanation.Text
	}

	observability.ObserveChatOutcome("answered")
	return Response{
		Reply:       reply,
		SQL:         candidate.Normalized,
		SQLExecuted: true,
		Result:      &result,
		Explanation: explanation,
	}, nil
}

// handleGenerationFailure sorts generation errors into the three terminal
// shapes: plain-text answer, degraded apology, or hard failure.
func (o *Orchestrator) handleGenerationFailure(ctx context.Context, err error) (Response, error) {
	var genErr *GenerationError
	if errors.As(err, &genErr) && genErr.Reply != "" {
		observability.ObserveChatOutcome("conversational")
		return Response{Reply: genErr.Reply}, nil
	}

	if budgetErr := requestBudgetExhausted(ctx); budgetErr != nil {
		return Response{}, budgetErr
	}
	var gwErr *llm.GatewayError
	if errors.As(err, &gwErr) && gwErr.Kind == llm.KindAuthFailure {
		return Response{}, fmt.Errorf("language model unavailable: %w", err)
	}

	observability.ObserveChatOutcome("generation_error")
	o.logger.Info("sql generation failed", "error", err)
	return Response{
		Reply: "I could not produce a query for that question right now. Please try again.",
	}, nil
}

func requestBudgetExhausted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrRequestTimeout
	}
	return nil
}

func summarize(result sqlexec.Result, sampleRows int) ResultSummary {
	if sampleRows > len(result.Rows) {
		sampleRows = len(result.Rows)
	}
	return ResultSummary{
		Columns:    result.Columns,
		RowCount:   result.RowCount,
		SampleRows: result.Rows[:sampleRows],
		Truncated:  result.Truncated,
	}
}

func fallbackReply(result sqlexec.Result) string {
	if result.Truncated {
		return fmt.Sprintf("The query returned the first %d matching rows.", result.RowCount)
	}
	switch result.RowCount {
	case 0:
		return "The query returned no rows."
	case 1:
		return "The query returned 1 row."
	default:
		return fmt.Sprintf("The query returned %d rows.", result.RowCount)
	}
}

func appendTurns(history []Turn, message, reply string) []Turn {
	now := time.Now().UTC()
	conversation := make([]Turn, 0, len(history)+2)
	conversation = append(conversation, history...)
	conversation = append(conversation,
		Turn{Role: RoleUser, Content: message, Timestamp: now},
		Turn{Role: RoleAssistant, Content: reply, Timestamp: now},
	)
	return conversation
}
