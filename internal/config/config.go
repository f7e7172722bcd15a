package config

import (
	"errors"
	"os"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server        ServerConfig `mapstructure:"server"`
	Ollama        OllamaConfig `mapstructure:"ollama"`
	Log           LogConfig    `mapstructure:"log"`
	ContextWindow int          `mapstructure:"context_window"`
	Cloud         bool         `mapstructure:"cloud"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// OllamaConfig holds the upstream inference server configuration
type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config.yaml from the working directory (or the file named
// by CONFIG_PATH) and applies defaults. A missing config file is fine;
// defaults and environment variables carry the day.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.api_key", "")
	v.SetDefault("ollama.default_model", "llama3.1:8b")
	v.SetDefault("context_window", 20)
	v.SetDefault("log.level", "info")

	_ = v.BindEnv("ollama.host", "OLLAMA_HOST")
	_ = v.BindEnv("ollama.api_key", "OLLAMA_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
