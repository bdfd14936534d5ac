package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string `yaml:"server_port"`

	// Filesystem root holding datasets/ and runs/
	ContentRoot string `yaml:"content_root"`

	// Optional event journal; empty disables it
	DatabaseURL string `yaml:"database_url"`

	// Trainer process
	TrainerCommand string `yaml:"trainer_command"`
	TrainerScript  string `yaml:"trainer_script"`

	// Model daemon
	RegisterCommand string `yaml:"register_command"`
	OllamaURL       string `yaml:"ollama_url"`

	LogTailBytes    int64         `yaml:"log_tail_bytes"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		ServerPort:      "8080",
		ContentRoot:     ".",
		TrainerCommand:  "python",
		TrainerScript:   "train.py",
		RegisterCommand: "ollama",
		OllamaURL:       "http://localhost:11434",
		LogTailBytes:    16 * 1024,
		MonitorInterval: 30 * time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if any, then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.ContentRoot = getEnv("CONTENT_ROOT", cfg.ContentRoot)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.TrainerCommand = getEnv("TRAINER_COMMAND", cfg.TrainerCommand)
	cfg.TrainerScript = getEnv("TRAINER_SCRIPT", cfg.TrainerScript)
	cfg.RegisterCommand = getEnv("REGISTER_COMMAND", cfg.RegisterCommand)
	cfg.OllamaURL = getEnv("OLLAMA_URL", cfg.OllamaURL)

	var err error
	if cfg.LogTailBytes, err = getEnvInt("LOG_TAIL_BYTES", cfg.LogTailBytes); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval, err = getEnvDuration("MONITOR_INTERVAL", cfg.MonitorInterval); err != nil {
		return nil, err
	}

	if abs, err := filepath.Abs(cfg.ContentRoot); err == nil {
		cfg.ContentRoot = abs
	}
	return cfg, nil
}

// DatasetsRoot is where uploaded datasets are stored
func (c *Config) DatasetsRoot() string {
	return filepath.Join(c.ContentRoot, "datasets")
}

// RunsRoot is where run directories are created
func (c *Config) RunsRoot() string {
	return filepath.Join(c.ContentRoot, "runs")
}

// TrainerArgs returns the arguments placed before --config
func (c *Config) TrainerArgs() []string {
	if c.TrainerScript == "" {
		return nil
	}
	return []string{c.TrainerScript}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
