package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"gemmachat/internal/session"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Model is a path, or an id resolved against ModelsDir.
	Model    string `json:"model" yaml:"model" toml:"model"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	Engine session.EngineOptions `json:"engine" yaml:"engine" toml:"engine"`

	MaxBodyBytes       int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	ChatTimeoutSeconds int64 `json:"chat_timeout_seconds" yaml:"chat_timeout_seconds" toml:"chat_timeout_seconds"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, errors.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no component could honor.
func (c Config) Validate() error {
	switch {
	case c.Engine.MaxTokens < 0:
		return errors.Errorf("engine.max_tokens must be >= 0, got %d", c.Engine.MaxTokens)
	case c.Engine.TopK < 0:
		return errors.Errorf("engine.top_k must be >= 0, got %d", c.Engine.TopK)
	case c.Engine.Temperature != nil && *c.Engine.Temperature < 0:
		return errors.Errorf("engine.temperature must be >= 0, got %v", *c.Engine.Temperature)
	case c.MaxBodyBytes < 0:
		return errors.Errorf("max_body_bytes must be >= 0, got %d", c.MaxBodyBytes)
	case c.ChatTimeoutSeconds < 0:
		return errors.Errorf("chat_timeout_seconds must be >= 0, got %d", c.ChatTimeoutSeconds)
	}
	return nil
}
