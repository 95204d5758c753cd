package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("analyst-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8000" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Analyst.Backend != BackendStub {
		t.Fatalf("Analyst.Backend = %q", cfg.Analyst.Backend)
	}
	if cfg.Analyst.Timeout != 50*time.Second {
		t.Fatalf("Analyst.Timeout = %s", cfg.Analyst.Timeout)
	}
	if cfg.Analyst.DefaultModel != cfg.Analyst.SemanticModels[0] {
		t.Fatalf("Analyst.DefaultModel = %q", cfg.Analyst.DefaultModel)
	}
	if cfg.Warehouse.Driver != "duckdb" {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Warehouse.RowLimit != 1000 {
		t.Fatalf("Warehouse.RowLimit = %d", cfg.Warehouse.RowLimit)
	}
	if cfg.Snapshot.Backend != SnapshotNone {
		t.Fatalf("Snapshot.Backend = %q", cfg.Snapshot.Backend)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "*" {
		t.Fatalf("CORS.AllowedOrigins = %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"ANALYST_PROFILE": "prod"})
	cfg, err := Load("analyst-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Analyst.Backend != BackendRemote {
		t.Fatalf("Analyst.Backend = %q", cfg.Analyst.Backend)
	}
	if cfg.Warehouse.Driver != "pgx" {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if len(cfg.CORS.AllowedOrigins) != 0 {
		t.Fatalf("CORS.AllowedOrigins = %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"ANALYST_PROFILE":                        "test",
		"ANALYST_HTTP_ADDR":                      ":9999",
		"ANALYST_HTTP_READ_TIMEOUT":              "2s",
		"ANALYST_LOG_LEVEL":                      "error",
		"ANALYST_AUTH_REQUIRED":                  "true",
		"ANALYST_AUTH_STATIC_KEYS":               "k1:alice:analyst_user",
		"ANALYST_SERVICE_NAME":                   "analyst-custom",
		"ANALYST_WAREHOUSE_DRIVER":               "PGX",
		"ANALYST_WAREHOUSE_DSN":                  "postgres://example",
		"ANALYST_WAREHOUSE_HOST":                 "ACME_ORG.example.com",
		"ANALYST_WAREHOUSE_TOKEN":                "tok",
		"ANALYST_WAREHOUSE_ROW_LIMIT":            "50",
		"ANALYST_WAREHOUSE_MAX_OPEN_CONNS":       "42",
		"ANALYST_BACKEND":                        "remote",
		"ANALYST_SEMANTIC_MODELS":                "DB.SCHEMA.STAGE/a.yaml, DB.SCHEMA.STAGE/b.yaml",
		"ANALYST_DEFAULT_SEMANTIC_MODEL":         "DB.SCHEMA.STAGE/b.yaml",
		"ANALYST_SERVICE_TOPIC":                  "sales",
		"ANALYST_COMPLETION_MODEL":               "llama3.1-70b",
		"ANALYST_COMPLETION_TEMPERATURE":         "0.5",
		"ANALYST_COMPLETION_MAX_TOKENS":          "256",
		"ANALYST_REMOTE_TIMEOUT":                 "21s",
		"ANALYST_EMBEDDED_PROXY_URL":             "http://localhost:9001",
		"ANALYST_SNAPSHOT_BACKEND":               "S3",
		"ANALYST_SNAPSHOT_OBJECT_KEY":            "snap/conv.parquet",
		"ANALYST_OBJECTSTORE_ENDPOINT":           "s3.example.com",
		"ANALYST_OBJECTSTORE_BUCKET":             "analyst-prod",
		"ANALYST_OBJECTSTORE_USE_SSL":            "true",
		"ANALYST_REDIS_DB":                       "3",
		"ANALYST_CORS_ALLOWED_ORIGINS":           "https://a.example.com,https://b.example.com",
		"ANALYST_OBJECTSTORE_PREFIX":             "root",
		"ANALYST_HTTP_WRITE_TIMEOUT":             "3s",
		"ANALYST_WAREHOUSE_MAX_IDLE_CONNS":       "17",
		"ANALYST_WAREHOUSE_TOKEN_TYPE":           "KEYPAIR_JWT",
		"ANALYST_OBJECTSTORE_REGION":             "us-west-2",
		"ANALYST_OBJECTSTORE_ACCESS_KEY":         "abc",
		"ANALYST_OBJECTSTORE_SECRET_KEY":         "def",
		"ANALYST_WAREHOUSE_SCHEME":               "http",
		"ANALYST_SNAPSHOT_TIMEOUT":               "4s",
		"ANALYST_DATA_DESCRIPTION":               "order history",
		"ANALYST_WAREHOUSE_TOKEN_FILE":           "/tmp/token",
		"ANALYST_OBJECTSTORE_AUTO_CREATE_BUCKET": "false",
	})
	cfg, err := Load("analyst-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "analyst-custom" {
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
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Warehouse.Driver != "pgx" {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Warehouse.Host != "ACME_ORG.example.com" {
		t.Fatalf("Warehouse.Host = %q", cfg.Warehouse.Host)
	}
	if cfg.Warehouse.RowLimit != 50 {
		t.Fatalf("Warehouse.RowLimit = %d", cfg.Warehouse.RowLimit)
	}
	if cfg.Warehouse.MaxOpenConns != 42 || cfg.Warehouse.MaxIdleConns != 17 {
		t.Fatalf("Warehouse pool = %d/%d", cfg.Warehouse.MaxOpenConns, cfg.Warehouse.MaxIdleConns)
	}
	if cfg.Warehouse.TokenType != "KEYPAIR_JWT" {
		t.Fatalf("Warehouse.TokenType = %q", cfg.Warehouse.TokenType)
	}
	if cfg.Analyst.Backend != BackendRemote {
		t.Fatalf("Analyst.Backend = %q", cfg.Analyst.Backend)
	}
	if len(cfg.Analyst.SemanticModels) != 2 || cfg.Analyst.SemanticModels[1] != "DB.SCHEMA.STAGE/b.yaml" {
		t.Fatalf("Analyst.SemanticModels = %#v", cfg.Analyst.SemanticModels)
	}
	if cfg.Analyst.DefaultModel != "DB.SCHEMA.STAGE/b.yaml" {
		t.Fatalf("Analyst.DefaultModel = %q", cfg.Analyst.DefaultModel)
	}
	if cfg.Analyst.Temperature != 0.5 {
		t.Fatalf("Analyst.Temperature = %f", cfg.Analyst.Temperature)
	}
	if cfg.Analyst.MaxTokens != 256 {
		t.Fatalf("Analyst.MaxTokens = %d", cfg.Analyst.MaxTokens)
	}
	if cfg.Analyst.Timeout != 21*time.Second {
		t.Fatalf("Analyst.Timeout = %s", cfg.Analyst.Timeout)
	}
	if cfg.Analyst.EmbeddedProxyURL != "http://localhost:9001" {
		t.Fatalf("Analyst.EmbeddedProxyURL = %q", cfg.Analyst.EmbeddedProxyURL)
	}
	if cfg.Snapshot.Backend != SnapshotS3 {
		t.Fatalf("Snapshot.Backend = %q", cfg.Snapshot.Backend)
	}
	if cfg.Snapshot.ObjectKey != "snap/conv.parquet" {
		t.Fatalf("Snapshot.ObjectKey = %q", cfg.Snapshot.ObjectKey)
	}
	if cfg.ObjectStore.Bucket != "analyst-prod" || !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("Redis.DB = %d", cfg.Redis.DB)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("CORS.AllowedOrigins = %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"ANALYST_PROFILE": "oops"},
		{"ANALYST_HTTP_READ_TIMEOUT": "NaN"},
		{"ANALYST_WAREHOUSE_MAX_OPEN_CONNS": "oops"},
		{"ANALYST_WAREHOUSE_DRIVER": "oracle"},
		{"ANALYST_BACKEND": "mock"},
		{"ANALYST_SNAPSHOT_BACKEND": "tape"},
		{"ANALYST_SEMANTIC_MODELS": " , "},
		{"ANALYST_DEFAULT_SEMANTIC_MODEL": "missing.yaml"},
		{"ANALYST_REMOTE_TIMEOUT": "0s"},
		{"ANALYST_COMPLETION_TEMPERATURE": "bad"},
		{"ANALYST_AUTH_REQUIRED": "not-bool"},
		{"ANALYST_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("analyst-api", mapLookup(env))
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
