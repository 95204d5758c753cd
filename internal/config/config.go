package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	BackendRemote = "remote"
	BackendStub   = "stub"
)

const (
	SnapshotNone     = "none"
	SnapshotFile     = "file"
	SnapshotPostgres = "postgres"
	SnapshotS3       = "s3"
	SnapshotRedis    = "redis"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	Analyst       AnalystConfig
	Snapshot      SnapshotConfig
	ObjectStore   ObjectStoreConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WarehouseConfig struct {
	Driver          string
	DSN             string
	Host            string
	Scheme          string
	Token           string
	TokenFile       string
	TokenType       string
	RowLimit        int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type AnalystConfig struct {
	Backend          string
	SemanticModels   []string
	DefaultModel     string
	ServiceTopic     string
	DataDescription  string
	CompletionModel  string
	Temperature      float64
	MaxTokens        int
	Timeout          time.Duration
	EmbeddedProxyURL string
}

type SnapshotConfig struct {
	Backend   string
	FilePath  string
	DSN       string
	ObjectKey string
	RedisKey  string
	Timeout   time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ANALYST_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ANALYST_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "ANALYST_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ANALYST_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ANALYST_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ANALYST_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_WAREHOUSE_DSN", &cfg.Warehouse.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_WAREHOUSE_HOST", &cfg.Warehouse.Host); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_WAREHOUSE_SCHEME", &cfg.Warehouse.Scheme); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_WAREHOUSE_TOKEN", &cfg.Warehouse.Token); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_WAREHOUSE_TOKEN_FILE", &cfg.Warehouse.TokenFile); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_WAREHOUSE_TOKEN_TYPE", &cfg.Warehouse.TokenType); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ANALYST_WAREHOUSE_ROW_LIMIT", &cfg.Warehouse.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ANALYST_WAREHOUSE_MAX_OPEN_CONNS", &cfg.Warehouse.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ANALYST_WAREHOUSE_MAX_IDLE_CONNS", &cfg.Warehouse.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ANALYST_WAREHOUSE_CONN_MAX_IDLE_TIME", &cfg.Warehouse.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ANALYST_WAREHOUSE_CONN_MAX_LIFETIME", &cfg.Warehouse.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_BACKEND", &cfg.Analyst.Backend); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "ANALYST_SEMANTIC_MODELS", &cfg.Analyst.SemanticModels); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_DEFAULT_SEMANTIC_MODEL", &cfg.Analyst.DefaultModel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_SERVICE_TOPIC", &cfg.Analyst.ServiceTopic); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_DATA_DESCRIPTION", &cfg.Analyst.DataDescription); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_COMPLETION_MODEL", &cfg.Analyst.CompletionModel); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "ANALYST_COMPLETION_TEMPERATURE", &cfg.Analyst.Temperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ANALYST_COMPLETION_MAX_TOKENS", &cfg.Analyst.MaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ANALYST_REMOTE_TIMEOUT", &cfg.Analyst.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_EMBEDDED_PROXY_URL", &cfg.Analyst.EmbeddedProxyURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_SNAPSHOT_BACKEND", &cfg.Snapshot.Backend); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_SNAPSHOT_FILE", &cfg.Snapshot.FilePath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_SNAPSHOT_DSN", &cfg.Snapshot.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_SNAPSHOT_OBJECT_KEY", &cfg.Snapshot.ObjectKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_SNAPSHOT_REDIS_KEY", &cfg.Snapshot.RedisKey); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ANALYST_SNAPSHOT_TIMEOUT", &cfg.Snapshot.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ANALYST_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ANALYST_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_REDIS_ADDR", &cfg.Redis.Addr); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_REDIS_PASSWORD", &cfg.Redis.Password); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ANALYST_REDIS_DB", &cfg.Redis.DB); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "ANALYST_CORS_ALLOWED_ORIGINS", &cfg.CORS.AllowedOrigins); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ANALYST_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "ANALYST_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ANALYST_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ANALYST_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}

	cfg.Analyst.Backend = strings.ToLower(cfg.Analyst.Backend)
	switch cfg.Analyst.Backend {
	case BackendRemote, BackendStub:
	default:
		return fmt.Errorf("invalid ANALYST_BACKEND: %q", cfg.Analyst.Backend)
	}

	cfg.Snapshot.Backend = strings.ToLower(cfg.Snapshot.Backend)
	switch cfg.Snapshot.Backend {
	case SnapshotNone, SnapshotFile, SnapshotPostgres, SnapshotS3, SnapshotRedis:
	default:
		return fmt.Errorf("invalid ANALYST_SNAPSHOT_BACKEND: %q", cfg.Snapshot.Backend)
	}

	cfg.Warehouse.Driver = strings.ToLower(cfg.Warehouse.Driver)
	switch cfg.Warehouse.Driver {
	case "pgx", "duckdb":
	default:
		return fmt.Errorf("invalid ANALYST_WAREHOUSE_DRIVER: %q", cfg.Warehouse.Driver)
	}

	if len(cfg.Analyst.SemanticModels) == 0 {
		return fmt.Errorf("at least one semantic model is required")
	}
	if cfg.Analyst.DefaultModel == "" {
		cfg.Analyst.DefaultModel = cfg.Analyst.SemanticModels[0]
	}
	if !containsString(cfg.Analyst.SemanticModels, cfg.Analyst.DefaultModel) {
		return fmt.Errorf("default semantic model %q is not in ANALYST_SEMANTIC_MODELS", cfg.Analyst.DefaultModel)
	}
	if cfg.Analyst.Timeout <= 0 {
		return fmt.Errorf("ANALYST_REMOTE_TIMEOUT must be positive")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "analyst-api"},
		HTTP: HTTPConfig{
			Address:      ":8000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Driver:          "duckdb",
			DSN:             "",
			Scheme:          "https",
			TokenFile:       "/snowflake/session/token",
			TokenType:       "OAUTH",
			RowLimit:        1000,
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Analyst: AnalystConfig{
			Backend:         BackendStub,
			SemanticModels:  []string{"ANALYTICS.PUBLIC.SEMANTIC_STAGE/revenue.yaml"},
			ServiceTopic:    "data",
			DataDescription: "the source data",
			CompletionModel: "mistral-large2",
			Temperature:     0.2,
			MaxTokens:       1024,
			Timeout:         50 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Backend:   SnapshotNone,
			FilePath:  "conversations.json",
			ObjectKey: "snapshots/conversations.parquet",
			RedisKey:  "analyst:conversations",
			Timeout:   10 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "analyst",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Analyst.Backend = BackendRemote
		cfg.Warehouse.Driver = "pgx"
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.CORS.AllowedOrigins = nil
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		values = append(values, part)
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
