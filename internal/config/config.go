package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the repository-local config file looked up by default.
	FileName = ".revgate.yaml"

	envPrefix = "REVGATE"

	PolicyFailClosed = "failClosed"
	PolicyFailOpen   = "failOpen"
)

// ErrInvalid marks a configuration that cannot start a run.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the revgate configuration.
type Config struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	Model             string  `mapstructure:"model" yaml:"model"`
	Endpoint          string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxResponseTokens int     `mapstructure:"maxResponseTokens" yaml:"maxResponseTokens"`

	CriticalPatterns []string   `mapstructure:"criticalPatterns" yaml:"criticalPatterns,omitempty"`
	SkipPatterns     []string   `mapstructure:"skipPatterns" yaml:"skipPatterns"`
	Rules            []RuleSpec `mapstructure:"rules" yaml:"rules"`
	SkipLineCutoff   int        `mapstructure:"skipLineCutoff" yaml:"skipLineCutoff"`
	SizeThreshold    int        `mapstructure:"sizeThreshold" yaml:"sizeThreshold"`
	CriticalScore    int        `mapstructure:"criticalScore" yaml:"criticalScore"`

	BatchThreshold       int `mapstructure:"batchThreshold" yaml:"batchThreshold"`
	MaxBatchSize         int `mapstructure:"maxBatchSize" yaml:"maxBatchSize"`
	MaxPayloadChars      int `mapstructure:"maxPayloadChars" yaml:"maxPayloadChars"`
	MaxBatchPayloadChars int `mapstructure:"maxBatchPayloadChars" yaml:"maxBatchPayloadChars"`

	TimeoutSeconds     int      `mapstructure:"timeoutSeconds" yaml:"timeoutSeconds"`
	Retries            int      `mapstructure:"retries" yaml:"retries"`
	Concurrency        int      `mapstructure:"concurrency" yaml:"concurrency"`
	FetchConcurrency   int      `mapstructure:"fetchConcurrency" yaml:"fetchConcurrency"`
	RequestsPerSecond  float64  `mapstructure:"requestsPerSecond" yaml:"requestsPerSecond"`
	InconclusivePolicy string   `mapstructure:"inconclusivePolicy" yaml:"inconclusivePolicy"`
	RejectKeywords     []string `mapstructure:"rejectKeywords" yaml:"rejectKeywords"`
	ApproveKeywords    []string `mapstructure:"approveKeywords" yaml:"approveKeywords"`

	Include               []string `mapstructure:"include" yaml:"include"`
	Exclude               []string `mapstructure:"exclude" yaml:"exclude"`
	PushBase              string   `mapstructure:"pushBase" yaml:"pushBase"`
	FallbackToFileContent bool     `mapstructure:"fallbackToFileContent" yaml:"fallbackToFileContent"`

	ReportDir    string `mapstructure:"reportDir" yaml:"reportDir"`
	ReportFormat string `mapstructure:"reportFormat" yaml:"reportFormat"`

	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Privacy PrivacyConfig `mapstructure:"privacy" yaml:"privacy"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// RuleSpec is a classifier rule as written in the config file.
type RuleSpec struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Category string `mapstructure:"category" yaml:"category"`
	Pattern  string `mapstructure:"pattern" yaml:"pattern"`
	Weight   int    `mapstructure:"weight" yaml:"weight"`
}

// CacheConfig controls caching of backend responses.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir        string `mapstructure:"dir" yaml:"dir,omitempty"`
	TTLSeconds int    `mapstructure:"ttlSeconds" yaml:"ttlSeconds"`
}

// PrivacyConfig controls redaction of payloads.
type PrivacyConfig struct {
	RedactSecrets bool     `mapstructure:"redactSecrets" yaml:"redactSecrets"`
	RedactPaths   []string `mapstructure:"redactPaths" yaml:"redactPaths,omitempty"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	Level      string `mapstructure:"level" yaml:"level"`
	MaxSize    int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultRules returns the built-in scoring rules: the four critical keyword
// groups followed by the weighted structural patterns.
func DefaultRules() []RuleSpec {
	return []RuleSpec{
		{ID: "security", Category: "security", Pattern: `(?i)security|auth|encrypt|decrypt|password|token`, Weight: 1},
		{ID: "data-access", Category: "data-access", Pattern: `(?i)sql|database|query|injection`, Weight: 1},
		{ID: "concurrency", Category: "concurrency", Pattern: `(?i)async|await|task|thread`, Weight: 1},
		{ID: "resource-lifecycle", Category: "resource-lifecycle", Pattern: `(?i)memory|dispose|using|gc`, Weight: 1},
		{ID: "member-declaration", Category: "structural", Pattern: `\b(public|private|protected|internal)\s+\w+.*?\(`, Weight: 2},
		{ID: "sql-statement", Category: "structural", Pattern: `(?i)\b(SELECT|INSERT|UPDATE|DELETE)\b`, Weight: 3},
		{ID: "async-await", Category: "structural", Pattern: `\b(async|await)\b`, Weight: 2},
		{ID: "query-chain", Category: "structural", Pattern: `\.(Where|Select|FirstOrDefault|Any|All)\(`, Weight: 1},
		{ID: "exception-flow", Category: "structural", Pattern: `\b(try|catch|throw)\b`, Weight: 2},
	}
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:          "copilot",
		Model:             "gpt-4",
		Temperature:       0.2,
		MaxResponseTokens: 1500,
		SkipPatterns: []string{
			`^(using|import|package)\s+`,
			`^from\s+\S+\s+import\s+`,
			`^\s*(//|#|/\*|\*)`,
			`^\s*\[.*\]\s*$`,
			`^\s*@\w+`,
			`^\s*$`,
		},
		Rules:                DefaultRules(),
		SkipLineCutoff:       3,
		SizeThreshold:        20,
		CriticalScore:        10,
		BatchThreshold:       5,
		MaxBatchSize:         0,
		MaxPayloadChars:      3000,
		MaxBatchPayloadChars: 8000,
		TimeoutSeconds:       30,
		Retries:              3,
		Concurrency:          1,
		FetchConcurrency:     8,
		InconclusivePolicy:   PolicyFailClosed,
		RejectKeywords:       []string{"REJECT", "ВІДХИЛИТИ"},
		ApproveKeywords:      []string{"APPROVE", "ACCEPT", "ПРИЙНЯТИ"},
		Include:              []string{"**/*"},
		Exclude:              []string{"vendor/**", "**/*.gen.go", "**/dist/**"},
		PushBase:             "@{upstream}",
		ReportDir:            ".pre-commit-reviews",
		ReportFormat:         "markdown",
		Cache: CacheConfig{
			Enabled:    false,
			TTLSeconds: 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(".revgate", "history.db"),
		},
		Log: LogConfig{
			Filename:   ".revgate.log",
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
	}
}

// NewViper returns a viper instance seeded with defaults, the config file
// (path, or FileName in dir when path is empty) and REVGATE_* env vars.
// A missing default config file is not an error.
func NewViper(dir, path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("provider", d.Provider)
	v.SetDefault("model", d.Model)
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("temperature", d.Temperature)
	v.SetDefault("maxResponseTokens", d.MaxResponseTokens)
	v.SetDefault("criticalPatterns", d.CriticalPatterns)
	v.SetDefault("skipPatterns", d.SkipPatterns)
	v.SetDefault("rules", d.Rules)
	v.SetDefault("skipLineCutoff", d.SkipLineCutoff)
	v.SetDefault("sizeThreshold", d.SizeThreshold)
	v.SetDefault("criticalScore", d.CriticalScore)
	v.SetDefault("batchThreshold", d.BatchThreshold)
	v.SetDefault("maxBatchSize", d.MaxBatchSize)
	v.SetDefault("maxPayloadChars", d.MaxPayloadChars)
	v.SetDefault("maxBatchPayloadChars", d.MaxBatchPayloadChars)
	v.SetDefault("timeoutSeconds", d.TimeoutSeconds)
	v.SetDefault("retries", d.Retries)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("fetchConcurrency", d.FetchConcurrency)
	v.SetDefault("requestsPerSecond", d.RequestsPerSecond)
	v.SetDefault("inconclusivePolicy", d.InconclusivePolicy)
	v.SetDefault("rejectKeywords", d.RejectKeywords)
	v.SetDefault("approveKeywords", d.ApproveKeywords)
	v.SetDefault("include", d.Include)
	v.SetDefault("exclude", d.Exclude)
	v.SetDefault("pushBase", d.PushBase)
	v.SetDefault("fallbackToFileContent", d.FallbackToFileContent)
	v.SetDefault("reportDir", d.ReportDir)
	v.SetDefault("reportFormat", d.ReportFormat)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttlSeconds", d.Cache.TTLSeconds)
	v.SetDefault("privacy.redactSecrets", d.Privacy.RedactSecrets)
	v.SetDefault("privacy.redactPaths", d.Privacy.RedactPaths)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("log.filename", d.Log.Filename)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.maxSize", d.Log.MaxSize)
	v.SetDefault("log.maxBackups", d.Log.MaxBackups)
	v.SetDefault("log.maxAge", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
}

// Load decodes and validates the effective config held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decoding: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first problem that would make a run meaningless.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	switch c.Provider {
	case "copilot", "openai", "anthropic", "gemini", "ollama", "lmstudio":
	default:
		return invalid("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return invalid("model is required")
	}
	for name, n := range map[string]int{
		"skipLineCutoff":       c.SkipLineCutoff,
		"sizeThreshold":        c.SizeThreshold,
		"batchThreshold":       c.BatchThreshold,
		"maxPayloadChars":      c.MaxPayloadChars,
		"maxBatchPayloadChars": c.MaxBatchPayloadChars,
		"timeoutSeconds":       c.TimeoutSeconds,
		"concurrency":          c.Concurrency,
		"fetchConcurrency":     c.FetchConcurrency,
		"maxResponseTokens":    c.MaxResponseTokens,
	} {
		if n <= 0 {
			return invalid("%s must be positive, got %d", name, n)
		}
	}
	if c.MaxBatchSize < 0 || c.CriticalScore < 0 || c.Retries < 0 || c.RequestsPerSecond < 0 {
		return invalid("maxBatchSize, criticalScore, retries and requestsPerSecond must not be negative")
	}
	switch c.InconclusivePolicy {
	case PolicyFailClosed, PolicyFailOpen:
	default:
		return invalid("inconclusivePolicy must be %s or %s, got %q", PolicyFailClosed, PolicyFailOpen, c.InconclusivePolicy)
	}
	if len(c.RejectKeywords) == 0 {
		return invalid("rejectKeywords must not be empty")
	}
	for _, p := range c.SkipPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return invalid("skip pattern %q: %v", p, err)
		}
	}
	for _, p := range c.CriticalPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return invalid("critical pattern %q: %v", p, err)
		}
	}
	for _, r := range c.Rules {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return invalid("rule %q: %v", r.ID, err)
		}
	}
	switch c.ReportFormat {
	case "markdown", "json", "sarif", "none":
	default:
		return invalid("reportFormat must be markdown, json, sarif or none, got %q", c.ReportFormat)
	}
	return nil
}

// Save writes cfg as YAML to path.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// SetField sets a single scalar config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return n, nil
	}

	var err error
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "endpoint":
		cfg.Endpoint = value
	case "temperature":
		cfg.Temperature, err = strconv.ParseFloat(value, 64)
	case "requestsPerSecond":
		cfg.RequestsPerSecond, err = strconv.ParseFloat(value, 64)
	case "maxResponseTokens":
		cfg.MaxResponseTokens, err = atoi()
	case "skipLineCutoff":
		cfg.SkipLineCutoff, err = atoi()
	case "sizeThreshold":
		cfg.SizeThreshold, err = atoi()
	case "criticalScore":
		cfg.CriticalScore, err = atoi()
	case "batchThreshold":
		cfg.BatchThreshold, err = atoi()
	case "maxBatchSize":
		cfg.MaxBatchSize, err = atoi()
	case "maxPayloadChars":
		cfg.MaxPayloadChars, err = atoi()
	case "maxBatchPayloadChars":
		cfg.MaxBatchPayloadChars, err = atoi()
	case "timeoutSeconds":
		cfg.TimeoutSeconds, err = atoi()
	case "retries":
		cfg.Retries, err = atoi()
	case "concurrency":
		cfg.Concurrency, err = atoi()
	case "fetchConcurrency":
		cfg.FetchConcurrency, err = atoi()
	case "inconclusivePolicy":
		cfg.InconclusivePolicy = value
	case "pushBase":
		cfg.PushBase = value
	case "reportDir":
		cfg.ReportDir = value
	case "reportFormat":
		cfg.ReportFormat = value
	case "fallbackToFileContent":
		cfg.FallbackToFileContent, err = strconv.ParseBool(value)
	case "cache.enabled":
		cfg.Cache.Enabled, err = strconv.ParseBool(value)
	case "history.enabled":
		cfg.History.Enabled, err = strconv.ParseBool(value)
	case "privacy.redactSecrets":
		cfg.Privacy.RedactSecrets, err = strconv.ParseBool(value)
	case "log.level":
		cfg.Log.Level = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
