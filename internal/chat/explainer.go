package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deniscovei/fraudchat/internal/llm"
	"github.com/deniscovei/fraudchat/internal/observability"
)

// ResultSummary is the compact framing of an executed query that the
// explainer sees: shape and a handful of sample rows, never the full result.
type ResultSummary struct {
	Columns    []string
	RowCount   int
	SampleRows [][]any
	Truncated  bool
}

type Explanation struct {
	Text string
}

type ExplainerConfig struct {
	MaxTokens int
}

// Explainer narrates a query result in plain language. Explanation is best
// effort: a gateway failure yields nil rather than an error so the chat turn
// still completes with the raw result.
type Explainer struct {
	client llm.Client
	logger *slog.Logger
	cfg    ExplainerConfig
}

func NewExplainer(client llm.Client, logger *slog.Logger, cfg ExplainerConfig) *Explainer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{client: client, logger: logger, cfg: cfg}
}

func (e *Explainer) Explain(ctx context.Context, question string, summary ResultSummary) *Explanation {
	prompt, err := buildExplainPrompt(question, summary)
	if err != nil {
		e.logger.Warn("explainer prompt build failed", "error", err)
		observability.IncrementExplanationAbsent()
		return nil
	}

	completion, err := e.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You summarize SQL query results for a fraud analyst. Answer the analyst's question from the result shape and sample rows in two or three sentences of plain language. Do not emit SQL."},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens: e.cfg.MaxTokens,
	})
	if err != nil {
		e.logger.Warn("explanation unavailable", "error", err)
		observability.IncrementExplanationAbsent()
		return nil
	}

	text := strings.TrimSpace(completion)
	if text == "" {
		observability.IncrementExplanationAbsent()
		return nil
	}
	return &Explanation{Text: text}
}

func buildExplainPrompt(question string, summary ResultSummary) (string, error) {
	sample, err := json.Marshal(summary.SampleRows)
	if err != nil {
		return "", fmt.Errorf("marshal sample rows: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(summary.Columns, ", "))
	fmt.Fprintf(&b, "Row count: %d\n", summary.RowCount)
	if summary.Truncated {
		b.WriteString("The result was truncated at the row cap; more rows matched.\n")
	}
	fmt.Fprintf(&b, "Sample rows (JSON): %s\n", sample)
	return b.String(), nil
}
