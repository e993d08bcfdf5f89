package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/user/alttext-service/internal/entity"
)

// ErrInvalidConfig is returned for values that cannot be interpreted.
var ErrInvalidConfig = errors.New("invalid configuration")

// AIKeyEnv overrides AI_KEY when set.
const AIKeyEnv = "ALTTEXT_AI_KEY"

// InjectionMethod selects how alt text reaches the rendered page.
type InjectionMethod string

const (
	InjectServerBuffer InjectionMethod = "serverBuffer"
	InjectClientScript InjectionMethod = "clientScript"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort         string `mapstructure:"SERVER_PORT"`
	AppLogLevel        string `mapstructure:"APP_LOG_LEVEL"`
	StorageDriver      string `mapstructure:"STORAGE_DRIVER"`
	PostgresURL        string `mapstructure:"POSTGRES_URL"`
	SQLitePath         string `mapstructure:"SQLITE_PATH"`
	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int    `mapstructure:"REDIS_DB"`
	PruneIntervalHours int    `mapstructure:"PRUNE_INTERVAL_HOURS"`
	AITimeoutSeconds   int    `mapstructure:"AI_TIMEOUT_SECONDS"`
	AIModel            string `mapstructure:"AI_MODEL"`

	Enabled           bool   `mapstructure:"ENABLED"`
	AltSource         string `mapstructure:"ALT_SOURCE"`
	InjectionMethod   string `mapstructure:"INJECTION_METHOD"`
	MaxAltLength      int    `mapstructure:"MAX_ALT_LENGTH"`
	CacheAIResults    bool   `mapstructure:"CACHE_AI_RESULTS"`
	AICacheTTLDays    int    `mapstructure:"AI_CACHE_TTL_DAYS"`
	BatchSize         int    `mapstructure:"BATCH_SIZE"`
	BulkScope         string `mapstructure:"BULK_SCOPE"`
	ForceUpdate       bool   `mapstructure:"FORCE_UPDATE"`
	LoggingEnabled    bool   `mapstructure:"LOGGING_ENABLED"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	LogRetentionDays  int    `mapstructure:"LOG_RETENTION_DAYS"`
	AIEndpoint        string `mapstructure:"AI_ENDPOINT"`
	AIMethod          string `mapstructure:"AI_METHOD"`
	AIHeaders         string `mapstructure:"AI_HEADERS"`
	AIKey             string `mapstructure:"AI_KEY"`
	AIRequestTemplate string `mapstructure:"AI_REQUEST_TEMPLATE"`
	AIResponsePath    string `mapstructure:"AI_RESPONSE_PATH"`
}

// Settings is the validated, immutable view of Config that is passed to the
// pipeline. Nothing below the constructors reads configuration directly.
type Settings struct {
	Enabled          bool
	AltSource        entity.AltSource
	InjectionMethod  InjectionMethod
	MaxAltLength     int
	CacheAIResults   bool
	AICacheTTL       time.Duration
	BatchSize        int
	BulkScope        entity.BulkScope
	ForceUpdate      bool
	LoggingEnabled   bool
	LogLevel         entity.Severity
	LogRetentionDays int

	AI AISettings
}

// AISettings describes the provider.
type AISettings struct {
	Endpoint        string
	Method          string
	Headers         map[string]string
	Key             string
	RequestTemplate string
	ResponsePath    string
	Model           string
	TimeoutSeconds  int
}

var defaults = map[string]any{
	"SERVER_PORT":          "8080",
	"APP_LOG_LEVEL":        "info",
	"STORAGE_DRIVER":       "sqlite",
	"POSTGRES_URL":         "",
	"SQLITE_PATH":          "alttext.db",
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"PRUNE_INTERVAL_HOURS": 24,
	"AI_TIMEOUT_SECONDS":   15,
	"AI_MODEL":             "",
	"ENABLED":              true,
	"ALT_SOURCE":           string(entity.AltSourceHeuristic),
	"INJECTION_METHOD":     string(InjectServerBuffer),
	"MAX_ALT_LENGTH":       125,
	"CACHE_AI_RESULTS":     true,
	"AI_CACHE_TTL_DAYS":    90,
	"BATCH_SIZE":           50,
	"BULK_SCOPE":           string(entity.ScopeAll),
	"FORCE_UPDATE":         false,
	"LOGGING_ENABLED":      true,
	"LOG_LEVEL":            string(entity.SeverityInfo),
	"LOG_RETENTION_DAYS":   30,
	"AI_ENDPOINT":          "",
	"AI_METHOD":            "POST",
	"AI_HEADERS":           "",
	"AI_KEY":               "",
	"AI_REQUEST_TEMPLATE":  "",
	"AI_RESPONSE_PATH":     "",
}

// Load reads configuration from file or environment variables. With an
// empty path an optional .env in the working directory is used; an explicit
// path must exist and may be any format viper understands.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		// Not fatal: production configures purely through the environment.
		_ = v.ReadInConfig()
	} else {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if key, ok := os.LookupEnv(AIKeyEnv); ok && strings.TrimSpace(key) != "" {
		cfg.AIKey = key
	}
	return &cfg, nil
}

// Settings validates enums, clamps numeric ranges and parses AI_HEADERS.
func (c *Config) Settings() (Settings, error) {
	s := Settings{
		Enabled:          c.Enabled,
		MaxAltLength:     clamp(c.MaxAltLength, 50, 500),
		CacheAIResults:   c.CacheAIResults,
		AICacheTTL:       time.Duration(clamp(c.AICacheTTLDays, 1, 365)) * 24 * time.Hour,
		BatchSize:        clamp(c.BatchSize, 10, 500),
		ForceUpdate:      c.ForceUpdate,
		LoggingEnabled:   c.LoggingEnabled,
		LogRetentionDays: clamp(c.LogRetentionDays, 7, 365),
	}

	switch source := entity.AltSource(strings.ToLower(strings.TrimSpace(c.AltSource))); source {
	case "", entity.AltSourceHeuristic:
		s.AltSource = entity.AltSourceHeuristic
	case entity.AltSourceAI:
		s.AltSource = entity.AltSourceAI
	default:
		return Settings{}, fmt.Errorf("%w: ALT_SOURCE %q", ErrInvalidConfig, c.AltSource)
	}

	switch method := InjectionMethod(strings.TrimSpace(c.InjectionMethod)); method {
	case "", InjectServerBuffer:
		s.InjectionMethod = InjectServerBuffer
	case InjectClientScript:
		s.InjectionMethod = InjectClientScript
	default:
		return Settings{}, fmt.Errorf("%w: INJECTION_METHOD %q", ErrInvalidConfig, c.InjectionMethod)
	}

	scope, err := entity.ParseBulkScope(strings.TrimSpace(c.BulkScope))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	s.BulkScope = scope

	level := entity.SeverityInfo
	if strings.TrimSpace(c.LogLevel) != "" {
		if level, err = entity.ParseSeverity(c.LogLevel); err != nil {
			return Settings{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	s.LogLevel = level

	method := strings.ToUpper(strings.TrimSpace(c.AIMethod))
	switch method {
	case "":
		method = "POST"
	case "GET", "POST":
	default:
		return Settings{}, fmt.Errorf("%w: AI_METHOD %q", ErrInvalidConfig, c.AIMethod)
	}

	headers, err := parseHeaders(c.AIHeaders)
	if err != nil {
		return Settings{}, err
	}

	s.AI = AISettings{
		Endpoint:        strings.TrimSpace(c.AIEndpoint),
		Method:          method,
		Headers:         headers,
		Key:             strings.TrimSpace(c.AIKey),
		RequestTemplate: c.AIRequestTemplate,
		ResponsePath:    strings.TrimSpace(c.AIResponsePath),
		Model:           strings.TrimSpace(c.AIModel),
		TimeoutSeconds:  c.AITimeoutSeconds,
	}
	return s, nil
}

// PruneInterval returns the scheduled prune period; zero disables it.
func (c *Config) PruneInterval() time.Duration {
	if c.PruneIntervalHours <= 0 {
		return 0
	}
	return time.Duration(c.PruneIntervalHours) * time.Hour
}

func parseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]string{}, nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, fmt.Errorf("%w: AI_HEADERS must be a JSON object of strings: %v", ErrInvalidConfig, err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	return headers, nil
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
