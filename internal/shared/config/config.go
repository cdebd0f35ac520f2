package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"interview-agent/internal/gate"
)

// ErrConfiguration matches every invalid or missing setting.
var ErrConfiguration = errors.New("configuration error")

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	DatabaseURL     string
	Env             string

	LLMAPIKey    string
	LLMBaseURL   string
	LLMModel     string
	TavilyAPIKey string

	MaxConcurrent            int
	MaxRetries               int
	InitialBackoff           time.Duration
	PerCallTimeout           time.Duration
	GateAdaptive             bool
	SearchMaxResultsOverride int

	RunsPerIPPerDay int
	RunsPerDay      int
}

// Load reads configuration from environment variables with sensible
// defaults. When CONFIG_FILE names a YAML file its values replace the
// defaults; environment variables still win.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	p := parser{}
	cfg := Config{
		Port:            getEnv("PORT", file.Server.Port, "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", strings.Join(file.Server.CORSAllowOrigins, ","), "http://localhost:5173")),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", file.Storage.ObjectStore, "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", file.Storage.LocalDir, "./data"),
		AWSRegion:       getEnv("AWS_REGION", file.Storage.AWSRegion, ""),
		S3Bucket:        getEnv("S3_BUCKET", file.Storage.S3Bucket, ""),
		S3Prefix:        getEnv("S3_PREFIX", file.Storage.S3Prefix, ""),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Env:             normalizeEnv(getEnv("ENV", file.Env, "dev")),

		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		LLMBaseURL:   getEnv("LLM_BASE_URL", file.LLM.BaseURL, ""),
		LLMModel:     getEnv("LLM_MODEL", file.LLM.Model, "gpt-4o-mini"),
		TavilyAPIKey: os.Getenv("TAVILY_API_KEY"),

		MaxConcurrent:            p.intVal("MAX_CONCURRENT", file.Gate.MaxConcurrent, 3),
		MaxRetries:               p.intVal("MAX_RETRIES", file.Gate.MaxRetries, 3),
		InitialBackoff:           p.seconds("INITIAL_BACKOFF_SECONDS", file.Gate.InitialBackoffSeconds, 1.0),
		PerCallTimeout:           p.seconds("PER_CALL_TIMEOUT_SECONDS", file.Gate.PerCallTimeoutSeconds, 120),
		GateAdaptive:             p.boolVal("GATE_ADAPTIVE", file.Gate.Adaptive, false),
		SearchMaxResultsOverride: p.intVal("SEARCH_MAX_RESULTS_OVERRIDE", file.Search.MaxResultsOverride, 0),

		RunsPerIPPerDay: p.intVal("RUNS_PER_IP_PER_DAY", file.Quota.RunsPerIPPerDay, 5),
		RunsPerDay:      p.intVal("RUNS_PER_DAY", file.Quota.RunsPerDay, 100),
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return cfg, nil
}

// Validate checks settings every binary depends on.
func (c Config) Validate() error {
	var errs []error
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT must be >= 1, got %d", c.MaxConcurrent))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be >= 0, got %d", c.MaxRetries))
	}
	if c.InitialBackoff <= 0 {
		errs = append(errs, fmt.Errorf("INITIAL_BACKOFF_SECONDS must be > 0, got %s", c.InitialBackoff))
	}
	if c.PerCallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PER_CALL_TIMEOUT_SECONDS must be > 0, got %s", c.PerCallTimeout))
	}
	if c.SearchMaxResultsOverride < 0 {
		errs = append(errs, fmt.Errorf("SEARCH_MAX_RESULTS_OVERRIDE must be >= 0, got %d", c.SearchMaxResultsOverride))
	}
	if c.ObjectStoreType == "s3" && c.S3Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required when OBJECT_STORE=s3"))
	}
	if c.Env == "production" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// ValidateCredentials checks the upstream API keys a pipeline run needs.
func (c Config) ValidateCredentials() error {
	var errs []error
	if c.LLMAPIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required"))
	}
	if c.TavilyAPIKey == "" {
		errs = append(errs, errors.New("TAVILY_API_KEY is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// GateConfig maps the settings onto the concurrency gate.
func (c Config) GateConfig() gate.Config {
	g := gate.DefaultConfig()
	g.MaxConcurrent = c.MaxConcurrent
	g.MaxRetries = c.MaxRetries
	g.InitialBackoff = c.InitialBackoff
	g.CallTimeout = c.PerCallTimeout
	g.Adaptive = c.GateAdaptive
	return g
}

func getEnv(key, fileVal, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if fileVal != "" {
		return fileVal
	}
	return def
}

type parser struct {
	errs []error
}

func (p *parser) intVal(key string, fileVal *int, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		if fileVal != nil {
			return *fileVal
		}
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return def
	}
	return v
}

func (p *parser) seconds(key string, fileVal *float64, def float64) time.Duration {
	secs := def
	raw := os.Getenv(key)
	switch {
	case raw != "":
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, raw))
			break
		}
		secs = v
	case fileVal != nil:
		secs = *fileVal
	}
	return time.Duration(secs * float64(time.Second))
}

func (p *parser) boolVal(key string, fileVal *bool, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		if fileVal != nil {
			return *fileVal
		}
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		return def
	}
	return v
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
