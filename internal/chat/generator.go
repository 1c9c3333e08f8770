package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/deniscovei/fraudchat/internal/llm"
	"github.com/deniscovei/fraudchat/internal/observability"
	"github.com/deniscovei/fraudchat/internal/schema"
	"github.com/deniscovei/fraudchat/internal/sqlguard"
)

// Candidate is one extracted SQL statement. Raw is the text as the model
// produced it, Normalized has surrounding whitespace and the trailing
// semicolon stripped.
type Candidate struct {
	Raw        string
	Normalized string
}

// GenerationError reports that no SQL statement could be extracted from the
// completion. Reply carries the completion text when it is usable as a
// conversational answer; it is empty when the gateway call itself failed.
type GenerationError struct {
	Reply string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("sql generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type GeneratorConfig struct {
	MaxTokens int
}

// Generator asks the model for a single read-only SELECT against the known
// schema. Prompts carry table and column structure only, never row data.
type Generator struct {
	client llm.Client
	cfg    GeneratorConfig
}

func NewGenerator(client llm.Client, cfg GeneratorConfig) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Generator{client: client, cfg: cfg}
}

func (g *Generator) Generate(ctx context.Context, question string, history []Turn, tables []schema.Table) (Candidate, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: generationSystemPrompt(tables)})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	completion, err := g.client.Complete(ctx, llm.Request{
		Messages:  messages,
		MaxTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("generate sql: %w", err)
	}

	statement, ok := extractSQL(completion)
	if !ok {
		return Candidate{}, &GenerationError{
			Reply: strings.TrimSpace(completion),
			Err:   fmt.Errorf("completion contains no SQL statement"),
		}
	}

	observability.IncrementStatementGenerated()
	return Candidate{
		Raw:        statement,
		Normalized: sqlguard.Normalize(statement),
	}, nil
}

func generationSystemPrompt(tables []schema.Table) string {
	var b strings.Builder
	b.WriteString("You are a fraud analysis assistant for a PostgreSQL transactions database.\n")
	b.WriteString("When the user asks a question answerable from the data, respond with exactly one read-only SELECT statement inside a ```sql fenced block. ")
	b.WriteString("Never use INSERT, UPDATE, DELETE, DROP or any other write statement, and never emit more than one statement.\n")
	b.WriteString("When the question is conversational and needs no data, answer in plain text without any SQL.\n\n")
	b.WriteString("Schema:\n")
	for _, table := range tables {
		b.WriteString(table.Name)
		b.WriteString(" (")
		for i, column := range table.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(column.Name)
			b.WriteString(" ")
			b.WriteString(column.DataType)
		}
		b.WriteString(")\n")
	}
	return b.String()
}

var (
	fencedSQLPattern = regexp.MustCompile("(?s)```sql\\s*(.*?)```")
	fencedAnyPattern = regexp.MustCompile("(?s)```\\s*(.*?)```")
	bareSQLPattern   = regexp.MustCompile(`(?is)\b(select|with)\b.*`)
)

// extractSQL pulls the statement out of a completion: the first ```sql fenced
// block wins, then any fenced block that starts with SELECT or WITH, then the
// first bare SELECT/WITH token through the final semicolon or end of text.
func extractSQL(completion string) (string, bool) {
	if m := fencedSQLPattern.FindStringSubmatch(completion); m != nil {
		if statement := strings.TrimSpace(m[1]); statement != "" {
			return statement, true
		}
	}
	if m := fencedAnyPattern.FindStringSubmatch(completion); m != nil {
		statement := strings.TrimSpace(m[1])
		if startsWithSQL(statement) {
			return statement, true
		}
	}
	if m := bareSQLPattern.FindString(completion); m != "" {
		statement := strings.TrimSpace(m)
		if i := strings.LastIndex(statement, ";"); i >= 0 {
			statement = statement[:i+1]
		}
		return strings.TrimSpace(statement), true
	}
	return "", false
}

func startsWithSQL(statement string) bool {
	lower := strings.ToLower(statement)
	return strings.HasPrefix(lower, "select") || strings.HasPrefix(lower, "with")
}
