package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrMissingCredential is returned when the inference provider has no API key.
var ErrMissingCredential = errors.New("api credential not configured")

// Config represents runtime configuration for the service.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Upload   UploadConfig   `json:"upload"`
	Cache    CacheConfig    `json:"cache"`
	Redis    RedisConfig    `json:"redis"`
	Workers  WorkerConfig   `json:"workers"`
	Log      LogConfig      `json:"log"`
}

type ServerConfig struct {
	Address     string `json:"address"`
	MaxUploadMB int64  `json:"max_upload_mb"`
}

// ProviderConfig selects the hosted model. APIKey is never read from the file,
// only from the environment variable named by APIKeyEnv.
type ProviderConfig struct {
	Name           string `json:"name"`
	Model          string `json:"model"`
	BaseURL        string `json:"base_url"`
	APIKeyEnv      string `json:"api_key_env"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	APIKey         string `json:"-"`
}

type UploadConfig struct {
	Dir                  string `json:"dir"`
	SweepIntervalMinutes int    `json:"sweep_interval_minutes"`
	MaxAgeMinutes        int    `json:"max_age_minutes"`
}

// CacheConfig controls the insight memo. ArchiveCapacity bounds the separate store
// that keeps handed-out reports downloadable after memo eviction or expiry.
type CacheConfig struct {
	Backend         string `json:"backend"`
	Capacity        int    `json:"capacity"`
	TTLMinutes      int    `json:"ttl_minutes"`
	ArchiveCapacity int    `json:"archive_capacity"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type WorkerConfig struct {
	Size      int `json:"size"`
	QueueSize int `json:"queue_size"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	defaultConfigFile = "config.json"
)

var defaultKeyEnv = map[string]string{
	ProviderGemini: "GEMINI_API_KEY",
	ProviderOpenAI: "OPENAI_API_KEY",
	ProviderClaude: "ANTHROPIC_API_KEY",
}

var providerLabels = map[string]string{
	ProviderGemini: "Gemini",
	ProviderOpenAI: "OpenAI",
	ProviderClaude: "Anthropic",
}

var defaultModels = map[string]string{
	ProviderGemini: "gemini-2.5-flash",
	ProviderOpenAI: "gpt-4o-mini",
	ProviderClaude: "claude-3-5-haiku-latest",
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:     ":8090",
			MaxUploadMB: 10,
		},
		Provider: ProviderConfig{
			Name: ProviderGemini,
		},
		Upload: UploadConfig{
			Dir:                  filepath.Join(os.TempDir(), "finsight"),
			SweepIntervalMinutes: 10,
			MaxAgeMinutes:        60,
		},
		Cache: CacheConfig{
			Backend:         CacheMemory,
			ArchiveCapacity: 1024,
		},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
		},
		Workers: WorkerConfig{
			Size:      4,
			QueueSize: 16,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json when it
// exists), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if cfg.Upload.Dir != "" && !filepath.IsAbs(cfg.Upload.Dir) {
			cfg.Upload.Dir = filepath.Join(filepath.Dir(absPath), cfg.Upload.Dir)
		}
	case explicit || !os.IsNotExist(err):
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FINSIGHT_ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FINSIGHT_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("FINSIGHT_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("FINSIGHT_UPLOAD_DIR"); v != "" {
		cfg.Upload.Dir = v
	}
	if v := os.Getenv("FINSIGHT_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("FINSIGHT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FINSIGHT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Size = n
		}
	}

	cfg.Provider.Name = strings.ToLower(strings.TrimSpace(cfg.Provider.Name))
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = defaultKeyEnv[cfg.Provider.Name]
	}
	if cfg.Provider.APIKeyEnv != "" {
		cfg.Provider.APIKey = strings.TrimSpace(os.Getenv(cfg.Provider.APIKeyEnv))
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = defaultModels[cfg.Provider.Name]
	}
}

func (c *Config) validate() error {
	if _, ok := defaultKeyEnv[c.Provider.Name]; !ok {
		return fmt.Errorf("unsupported provider: %q", c.Provider.Name)
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("%w: %s API key not found. Please set the %s environment variable.",
			ErrMissingCredential, providerLabels[c.Provider.Name], c.Provider.APIKeyEnv)
	}
	if c.Upload.Dir == "" {
		return errors.New("upload.dir must be configured")
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unsupported cache backend: %q", c.Cache.Backend)
	}
	if c.Cache.ArchiveCapacity <= 0 {
		c.Cache.ArchiveCapacity = 1024
	}
	if c.Workers.Size <= 0 {
		c.Workers.Size = 1
	}
	if c.Workers.QueueSize < 0 {
		c.Workers.QueueSize = 0
	}
	return nil
}

// MaxUploadBytes reports the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
