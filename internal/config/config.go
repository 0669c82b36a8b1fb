// Package config loads Companion's runtime configuration.
// Priority (highest to lowest): CLI flags > environment variables > .env file > defaults.
// Flags are bound into viper by the CLI layer; this package only reads the
// merged view and validates it.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"companion/internal/logger"
)

// Config holds all runtime settings for Companion.
type Config struct {
	// Model server settings
	BaseURL string // OpenAI-compatible base URL of the local server
	APIKey  string
	Model   string

	// Generation parameters
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64

	// Conversation settings
	MaxWindow   int    // Turns resent to the model per request; 0 means unbounded
	Style       string // Personality style for the default system prompt
	SessionsDir string
	Autosave    bool

	Debug bool
}

// Keys used for viper lookups and flag binding. The CLI layer binds its
// override flags to these same keys.
const (
	KeyBaseURL          = "base_url"
	KeyAPIKey           = "api_key"
	KeyModel            = "model"
	KeyMaxTokens        = "max_tokens"
	KeyTemperature      = "temperature"
	KeyTopP             = "top_p"
	KeyFrequencyPenalty = "frequency_penalty"
	KeyPresencePenalty  = "presence_penalty"
	KeyMaxWindow        = "max_window"
	KeyStyle            = "style"
	KeySessionsDir      = "sessions_dir"
	KeyAutosave         = "autosave"
	KeyDebug            = "debug"
)

func setDefaults() {
	viper.SetDefault(KeyBaseURL, "http://localhost:1234/v1")
	viper.SetDefault(KeyAPIKey, "")
	viper.SetDefault(KeyModel, "local-model")
	viper.SetDefault(KeyMaxTokens, 2048)
	viper.SetDefault(KeyTemperature, 0.7)
	viper.SetDefault(KeyTopP, 0.9)
	viper.SetDefault(KeyFrequencyPenalty, 0.0)
	viper.SetDefault(KeyPresencePenalty, 0.0)
	viper.SetDefault(KeyMaxWindow, 50)
	viper.SetDefault(KeyStyle, "friend")
	viper.SetDefault(KeySessionsDir, "data/sessions")
	viper.SetDefault(KeyAutosave, true)
	viper.SetDefault(KeyDebug, false)
}

// Load builds the merged configuration. envFile is an optional .env path; when
// empty, a .env in the working directory is loaded if present. Values already
// set in the process environment win over the .env file.
func Load(envFile string) (*Config, error) {
	setDefaults()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		logger.Debug("Loaded env file", "path", envFile)
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			logger.Warn("Failed to load .env file", "error", err)
		} else {
			logger.Debug("Loaded .env file from working directory")
		}
	}

	viper.SetEnvPrefix("COMPANION")
	viper.AutomaticEnv()
	for _, key := range []string{
		KeyBaseURL, KeyAPIKey, KeyModel, KeyMaxTokens, KeyTemperature,
		KeyTopP, KeyFrequencyPenalty, KeyPresencePenalty, KeyMaxWindow,
		KeyStyle, KeySessionsDir, KeyAutosave, KeyDebug,
	} {
		// BindEnv with the default COMPANION_<KEY> name
		if err := viper.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	cfg := &Config{
		BaseURL:          viper.GetString(KeyBaseURL),
		APIKey:           viper.GetString(KeyAPIKey),
		Model:            viper.GetString(KeyModel),
		MaxTokens:        viper.GetInt(KeyMaxTokens),
		Temperature:      viper.GetFloat64(KeyTemperature),
		TopP:             viper.GetFloat64(KeyTopP),
		FrequencyPenalty: viper.GetFloat64(KeyFrequencyPenalty),
		PresencePenalty:  viper.GetFloat64(KeyPresencePenalty),
		MaxWindow:        viper.GetInt(KeyMaxWindow),
		Style:            viper.GetString(KeyStyle),
		SessionsDir:      viper.GetString(KeySessionsDir),
		Autosave:         viper.GetBool(KeyAutosave),
		Debug:            viper.GetBool(KeyDebug),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks parameter ranges before any request is made.
func (c *Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1, got %g", c.TopP)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative, got %d", c.MaxTokens)
	}
	if c.MaxWindow < 0 {
		return fmt.Errorf("max_window cannot be negative, got %d", c.MaxWindow)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	return nil
}
