package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("fraudchat-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Database.MaxOpenConns != 20 {
		t.Fatalf("Database.MaxOpenConns = %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Chat.RowCap != 50 {
		t.Fatalf("Chat.RowCap = %d", cfg.Chat.RowCap)
	}
	if cfg.Chat.QueryTimeout != 10*time.Second {
		t.Fatalf("Chat.QueryTimeout = %s", cfg.Chat.QueryTimeout)
	}
	if cfg.Chat.RequestTimeout != 60*time.Second {
		t.Fatalf("Chat.RequestTimeout = %s", cfg.Chat.RequestTimeout)
	}
	if cfg.Chat.ExplainSampleRows != 5 {
		t.Fatalf("Chat.ExplainSampleRows = %d", cfg.Chat.ExplainSampleRows)
	}
	if cfg.LLM.Model != "gpt-5" {
		t.Fatalf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxRetries != 3 {
		t.Fatalf("LLM.MaxRetries = %d", cfg.LLM.MaxRetries)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"FRAUDCHAT_PROFILE": "prod"})
	cfg, err := Load("fraudchat-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"FRAUDCHAT_PROFILE":                   "test",
		"FRAUDCHAT_SERVICE_NAME":              "fraudchat-custom",
		"FRAUDCHAT_HTTP_ADDR":                 ":9999",
		"FRAUDCHAT_HTTP_READ_TIMEOUT":         "2s",
		"FRAUDCHAT_HTTP_WRITE_TIMEOUT":        "3s",
		"FRAUDCHAT_DATABASE_DSN":              "postgres://example",
		"FRAUDCHAT_DATABASE_MAX_OPEN_CONNS":   "42",
		"FRAUDCHAT_DATABASE_MAX_IDLE_CONNS":   "17",
		"FRAUDCHAT_LLM_BASE_URL":              "https://api.example.com",
		"FRAUDCHAT_LLM_API_KEY":               "secret-key",
		"FRAUDCHAT_LLM_MODEL":                 "gpt-5.2",
		"FRAUDCHAT_LLM_TEMPERATURE":           "0.3",
		"FRAUDCHAT_LLM_TIMEOUT":               "21s",
		"FRAUDCHAT_LLM_MAX_RETRIES":           "5",
		"FRAUDCHAT_LLM_RETRY_BASE_DELAY":      "250ms",
		"FRAUDCHAT_CHAT_ROW_CAP":              "100",
		"FRAUDCHAT_CHAT_QUERY_TIMEOUT":        "4s",
		"FRAUDCHAT_CHAT_REQUEST_TIMEOUT":      "45s",
		"FRAUDCHAT_CHAT_MAX_STATEMENT_LENGTH": "2048",
		"FRAUDCHAT_CHAT_EXPLAIN_SAMPLE_ROWS":  "3",
		"FRAUDCHAT_CHAT_SCHEMA_CACHE_TTL":     "90s",
		"FRAUDCHAT_LOG_LEVEL":                 "error",
		"FRAUDCHAT_AUTH_REQUIRED":             "true",
		"FRAUDCHAT_AUTH_STATIC_KEYS":          "k1:analyst:chat_user",
	})
	cfg, err := Load("fraudchat-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "fraudchat-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Database.DSN != "postgres://example" {
		t.Fatalf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.Database.MaxOpenConns != 42 {
		t.Fatalf("Database.MaxOpenConns = %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 17 {
		t.Fatalf("Database.MaxIdleConns = %d", cfg.Database.MaxIdleConns)
	}
	if cfg.LLM.BaseURL != "https://api.example.com" {
		t.Fatalf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.APIKey != "secret-key" {
		t.Fatalf("LLM.APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "gpt-5.2" {
		t.Fatalf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Fatalf("LLM.Temperature = %f", cfg.LLM.Temperature)
	}
	if cfg.LLM.Timeout != 21*time.Second {
		t.Fatalf("LLM.Timeout = %s", cfg.LLM.Timeout)
	}
	if cfg.LLM.MaxRetries != 5 {
		t.Fatalf("LLM.MaxRetries = %d", cfg.LLM.MaxRetries)
	}
	if cfg.LLM.RetryBaseDelay != 250*time.Millisecond {
		t.Fatalf("LLM.RetryBaseDelay = %s", cfg.LLM.RetryBaseDelay)
	}
	if cfg.Chat.RowCap != 100 {
		t.Fatalf("Chat.RowCap = %d", cfg.Chat.RowCap)
	}
	if cfg.Chat.QueryTimeout != 4*time.Second {
		t.Fatalf("Chat.QueryTimeout = %s", cfg.Chat.QueryTimeout)
	}
	if cfg.Chat.RequestTimeout != 45*time.Second {
		t.Fatalf("Chat.RequestTimeout = %s", cfg.Chat.RequestTimeout)
	}
	if cfg.Chat.MaxStatementLength != 2048 {
		t.Fatalf("Chat.MaxStatementLength = %d", cfg.Chat.MaxStatementLength)
	}
	if cfg.Chat.ExplainSampleRows != 3 {
		t.Fatalf("Chat.ExplainSampleRows = %d", cfg.Chat.ExplainSampleRows)
	}
	if cfg.Chat.SchemaCacheTTL != 90*time.Second {
		t.Fatalf("Chat.SchemaCacheTTL = %s", cfg.Chat.SchemaCacheTTL)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticKeys != "k1:analyst:chat_user" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"FRAUDCHAT_PROFILE": "oops"},
		{"FRAUDCHAT_HTTP_READ_TIMEOUT": "NaN"},
		{"FRAUDCHAT_DATABASE_MAX_OPEN_CONNS": "oops"},
		{"FRAUDCHAT_LLM_TEMPERATURE": "bad"},
		{"FRAUDCHAT_LLM_MAX_RETRIES": "many"},
		{"FRAUDCHAT_CHAT_ROW_CAP": "0"},
		{"FRAUDCHAT_CHAT_MAX_STATEMENT_LENGTH": "-1"},
		{"FRAUDCHAT_AUTH_REQUIRED": "not-bool"},
		{"FRAUDCHAT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("fraudchat-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
