// fraudchat-cli is a terminal chat client for the fraudchat API. It keeps the
// conversation locally and replays it on every request, matching the server's
// stateless contract.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
	History []turn `json:"history,omitempty"`
}

type chatResponse struct {
	Response     string  `json:"response"`
	SQLQuery     *string `json:"sql_query"`
	SQLExecuted  bool    `json:"sql_executed"`
	QueryResults *struct {
		Columns   []string `json:"columns"`
		Rows      [][]any  `json:"rows"`
		RowCount  int      `json:"row_count"`
		Truncated bool     `json:"truncated"`
	} `json:"query_results"`
	FinalResponse string `json:"final_response"`
	Conversation  []turn `json:"conversation"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

const previewRows = 10

func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", envOr("FRAUDCHAT_SERVER_URL", "http://localhost:8080"), "fraudchat API base URL")
	apiKey := flag.String("api-key", os.Getenv("FRAUDCHAT_API_KEY"), "API key for protected deployments")
	showSQL := flag.Bool("show-sql", true, "print the generated SQL for each answer")
	flag.Parse()

	client := &http.Client{Timeout: 90 * time.Second}
	base := strings.TrimRight(*serverURL, "/")

	fmt.Println("fraudchat — ask questions about the transactions data. Type 'exit' to quit.")
	var history []turn
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			break
		}

		resp, err := sendChat(client, base, *apiKey, chatRequest{Message: message, History: history})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		if *showSQL && resp.SQLQuery != nil {
			fmt.Printf("\n[sql] %s\n", *resp.SQLQuery)
		}
		if resp.QueryResults != nil {
			printResultPreview(resp.QueryResults.Columns, resp.QueryResults.Rows, resp.QueryResults.RowCount, resp.QueryResults.Truncated)
		}
		fmt.Printf("\n%s\n\n", resp.FinalResponse)

		history = resp.Conversation
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}
}

func sendChat(client *http.Client, base, apiKey string, req chatRequest) (chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return chatResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, base+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return chatResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("X-API-Key", apiKey)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return chatResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return chatResponse{}, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Message != "" {
			return chatResponse{}, fmt.Errorf("%s (%s)", errResp.Message, errResp.ErrorCode)
		}
		return chatResponse{}, fmt.Errorf("server returned status %d", httpResp.StatusCode)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return chatResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func printResultPreview(columns []string, rows [][]any, rowCount int, truncated bool) {
	fmt.Printf("[result] %s\n", strings.Join(columns, " | "))
	shown := len(rows)
	if shown > previewRows {
		shown = previewRows
	}
	for _, row := range rows[:shown] {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprintf("%v", cell)
		}
		fmt.Printf("         %s\n", strings.Join(cells, " | "))
	}
	if shown < rowCount {
		fmt.Printf("         ... %d rows total\n", rowCount)
	}
	if truncated {
		fmt.Println("         (result truncated at the server row cap)")
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
