package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/deniscovei/fraudchat/internal/llm"
	"github.com/deniscovei/fraudchat/internal/schema"
)

type stubLLM struct {
	completion string
	err        error
	lastReq    llm.Request
}

func (s *stubLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return s.completion, nil
}

func sampleTables() []schema.Table {
	return []schema.Table{
		{
			Name: "transactions",
			Columns: []schema.Column{
				{Name: "accountnumber", DataType: "bigint"},
				{Name: "transactionamount", DataType: "numeric"},
				{Name: "isfraud", DataType: "boolean"},
			},
		},
	}
}

func TestGenerateExtractsFencedSQL(t *testing.T) {
	stub := &stubLLM{completion: "Here is the query:\n```sql\nSELECT COUNT(*) FROM transactions WHERE isfraud = true;\n```\nLet me know if you need more."}
	gen := NewGenerator(stub, GeneratorConfig{})

	candidate, err := gen.Generate(context.Background(), "how many fraudulent transactions?", nil, sampleTables())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if candidate.Normalized != "SELECT COUNT(*) FROM transactions WHERE isfraud = true" {
		t.Fatalf("Normalized = %q", candidate.Normalized)
	}
	if !strings.HasSuffix(candidate.Raw, ";") {
		t.Fatalf("Raw = %q, want trailing semicolon preserved", candidate.Raw)
	}
}

func TestGenerateExtractsBareSQL(t *testing.T) {
	stub := &stubLLM{completion: "You can run SELECT merchantname FROM transactions LIMIT 5; to see merchants."}
	gen := NewGenerator(stub, GeneratorConfig{})

	candidate, err := gen.Generate(context.Background(), "show merchants", nil, sampleTables())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if candidate.Normalized != "SELECT merchantname FROM transactions LIMIT 5" {
		t.Fatalf("Normalized = %q", candidate.Normalized)
	}
}

func TestGenerateExtractsUnlabeledFence(t *testing.T) {
	stub := &stubLLM{completion: "```\nWITH t AS (SELECT 1) SELECT * FROM t\n```"}
	gen := NewGenerator(stub, GeneratorConfig{})

	candidate, err := gen.Generate(context.Background(), "anything", nil, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if candidate.Normalized != "WITH t AS (SELECT 1) SELECT * FROM t" {
		t.Fatalf("Normalized = %q", candidate.Normalized)
	}
}

func TestGenerateReturnsConversationalReply(t *testing.T) {
	stub := &stubLLM{completion: "Hello! Ask me about the transactions data and I will query it for you."}
	gen := NewGenerator(stub, GeneratorConfig{})

	_, err := gen.Generate(context.Background(), "hi", nil, sampleTables())
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
	if genErr.Reply != stub.completion {
		t.Fatalf("Reply = %q", genErr.Reply)
	}
}

func TestGeneratePropagatesGatewayError(t *testing.T) {
	stub := &stubLLM{err: &llm.GatewayError{Kind: llm.KindAuthFailure, Err: errors.New("401")}}
	gen := NewGenerator(stub, GeneratorConfig{})

	_, err := gen.Generate(context.Background(), "how many rows?", nil, sampleTables())
	var gwErr *llm.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("error = %T, want wrapped *GatewayError", err)
	}
	if gwErr.Kind != llm.KindAuthFailure {
		t.Fatalf("Kind = %q", gwErr.Kind)
	}
}

func TestGeneratePromptCarriesSchemaAndHistory(t *testing.T) {
	stub := &stubLLM{completion: "```sql\nSELECT 1\n```"}
	gen := NewGenerator(stub, GeneratorConfig{MaxTokens: 333})

	history := []Turn{
		{Role: RoleUser, Content: "how many transactions?"},
		{Role: RoleAssistant, Content: "There are 786363 transactions."},
	}
	if _, err := gen.Generate(context.Background(), "how many are fraud?", history, sampleTables()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req := stub.lastReq
	if req.MaxTokens != 333 {
		t.Fatalf("MaxTokens = %d", req.MaxTokens)
	}
	if len(req.Messages) != 4 {
		t.Fatalf("messages = %d, want system + 2 history + question", len(req.Messages))
	}
	system := req.Messages[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first message role = %q", system.Role)
	}
	if !strings.Contains(system.Content, "transactions (accountnumber bigint, transactionamount numeric, isfraud boolean)") {
		t.Fatalf("system prompt missing schema: %q", system.Content)
	}
	if strings.Contains(system.Content, "786363") {
		t.Fatal("system prompt must not contain row data")
	}
	if req.Messages[1].Content != "how many transactions?" || req.Messages[2].Role != string(RoleAssistant) {
		t.Fatalf("history not forwarded: %+v", req.Messages[1:3])
	}
	if req.Messages[3].Content != "how many are fraud?" {
		t.Fatalf("question = %q", req.Messages[3].Content)
	}
}
