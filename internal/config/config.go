package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

type Config struct {
	DataDir       string `json:"data_dir" yaml:"data_dir"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	LogFormat     string `json:"log_format" yaml:"log_format"`
	MaxConcurrent int    `json:"max_concurrent" yaml:"max_concurrent"`
	HTTP          struct {
		Listen string `json:"listen" yaml:"listen"`
	} `json:"http" yaml:"http"`
	LLM struct {
		BaseURL          string  `json:"base_url" yaml:"base_url"`
		APIKey           string  `json:"api_key" yaml:"api_key"`
		Model            string  `json:"model" yaml:"model"`
		MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
		Temperature      float64 `json:"temperature" yaml:"temperature"`
		TimeoutSeconds   int     `json:"timeout_seconds" yaml:"timeout_seconds"`
		MaxRetries       int     `json:"max_retries" yaml:"max_retries"`
		MaxContextTokens int     `json:"max_context_tokens" yaml:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve" yaml:"output_reserve"`
	} `json:"llm" yaml:"llm"`
	Session struct {
		TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
		SweepSchedule  string `json:"sweep_schedule" yaml:"sweep_schedule"`
		MaxMessages    int    `json:"max_messages" yaml:"max_messages"`
		MaxBytes       int    `json:"max_bytes" yaml:"max_bytes"`
	} `json:"session" yaml:"session"`
	Database struct {
		Path string `json:"path" yaml:"path"`
	} `json:"database" yaml:"database"`
	Redis struct {
		Host           string `json:"host" yaml:"host"`
		Port           int    `json:"port" yaml:"port"`
		DB             int    `json:"db" yaml:"db"`
		Password       string `json:"password" yaml:"password"`
		TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	} `json:"redis" yaml:"redis"`
	Telegram struct {
		Token string `json:"token" yaml:"token"`
	} `json:"telegram" yaml:"telegram"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".axiomos"),
		LogLevel:      "info",
		LogFormat:     "text",
		MaxConcurrent: 16,
	}
	cfg.HTTP.Listen = ":8000"
	cfg.LLM.BaseURL = DefaultBaseURL
	cfg.LLM.Model = "llama-3.1-8b-instant"
	cfg.LLM.MaxTokens = 1000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.TimeoutSeconds = 60
	cfg.LLM.MaxRetries = 2
	cfg.LLM.MaxContextTokens = 8192
	cfg.LLM.OutputReserve = 1024
	cfg.Session.TimeoutSeconds = 3600
	cfg.Session.SweepSchedule = "@every 5m"
	cfg.Session.MaxMessages = 20
	cfg.Session.MaxBytes = 32 << 10
	cfg.Redis.Port = 6379
	cfg.Redis.TimeoutSeconds = 5
	return cfg
}

// Load reads the config file at path, writing defaults when it does not
// exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"GROQ_API_KEY", &cfg.LLM.APIKey},
		{"GROQ_BASE_URL", &cfg.LLM.BaseURL},
		{"GROQ_MODEL", &cfg.LLM.Model},
		{"REDIS_HOST", &cfg.Redis.Host},
		{"REDIS_PASSWORD", &cfg.Redis.Password},
		{"DB_PATH", &cfg.Database.Path},
		{"LOG_LEVEL", &cfg.LogLevel},
		{"LOG_FORMAT", &cfg.LogFormat},
		{"HTTP_LISTEN", &cfg.HTTP.Listen},
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token},
	}
	for _, s := range strs {
		if v := os.Getenv(s.name); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"GROQ_MAX_TOKENS", &cfg.LLM.MaxTokens},
		{"SESSION_TIMEOUT", &cfg.Session.TimeoutSeconds},
		{"REDIS_PORT", &cfg.Redis.Port},
		{"REDIS_DB", &cfg.Redis.DB},
		{"MAX_CONCURRENT", &cfg.MaxConcurrent},
	}
	for _, i := range ints {
		v := os.Getenv(i.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", i.name, v, err)
		}
		*i.dst = n
	}

	if v := os.Getenv("GROQ_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid GROQ_TEMPERATURE %q: %w", v, err)
		}
		cfg.LLM.Temperature = f
	}
	return nil
}

// Validate checks the settings needed to serve traffic.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required (set GROQ_API_KEY)"))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature))
	}
	if c.Session.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("session.timeout_seconds must be positive, got %d", c.Session.TimeoutSeconds))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent))
	}
	return errors.Join(errs...)
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSeconds) * time.Second
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func (c *Config) RedisTimeout() time.Duration {
	return time.Duration(c.Redis.TimeoutSeconds) * time.Second
}

// PIDFile is where a running server records its process id.
func (c *Config) PIDFile() string {
	return filepath.Join(c.DataDir, "axiomos.pid")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func unmarshal(path string, data []byte, v any) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func marshal(path string, v any) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes cfg to path atomically, in YAML when the path ends in .yaml
// or .yml and JSON otherwise.
func Save(path string, cfg *Config) error {
	return writeFile(path, cfg)
}

func writeFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := marshal(path, v)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into a generic nested map using its JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns the flattened config, with secrets masked when mask
// is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value stored under a dot-separated key in the file.
// A missing file is created with defaults first.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readMap(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under key in an existing config file. Values that
// parse as JSON (numbers, booleans) keep their type; anything else is a
// string.
func SetValue(path, key, value string) error {
	m, err := readMap(path)
	if err != nil {
		return err
	}
	flat := Flatten(m)
	flat[key] = parseValue(value)
	return writeFile(path, Unflatten(flat))
}

func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		switch v.(type) {
		case float64, bool:
			return v
		}
	}
	return s
}

func readMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	m := map[string]any{}
	if err := unmarshal(path, data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return m, nil
}
