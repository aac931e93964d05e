package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gemmachat/internal/config"
	"gemmachat/internal/session"
)

// options mirrors the persistent flags. Flags the user set win over the
// config file, which wins over defaults.
type options struct {
	configPath string
	addr       string
	modelsDir  string
	model      string
	logLevel   string

	maxTokens   int
	topK        int
	temperature float32
	seed        int
	ctxSize     int
	threads     int

	maxBodyBytes int64
	chatTimeout  int64

	cors        bool
	corsOrigins string
	corsMethods string
	corsHeaders string
}

func newRootCmd() *cobra.Command { return newRootCmdWith(&options{}) }

func newRootCmdWith(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "gemmachat",
		Short:         "Chat with an on-device model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultAddr := "127.0.0.1:8080"
	if v := os.Getenv("GEMMACHAT_ADDR"); v != "" {
		defaultAddr = v
	}
	f := root.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "Path to config file (.yaml/.yml/.json/.toml)")
	f.StringVar(&o.addr, "addr", defaultAddr, "HTTP listen address")
	f.StringVar(&o.modelsDir, "models-dir", "~/models/llm", "Directory to scan for model files")
	f.StringVar(&o.model, "model", "", "Model file path or id within --models-dir")
	f.StringVar(&o.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	f.IntVar(&o.maxTokens, "max-tokens", session.DefaultMaxTokens, "Maximum tokens per reply")
	f.IntVar(&o.topK, "top-k", session.DefaultTopK, "Top-K sampling")
	f.Float32Var(&o.temperature, "temperature", session.DefaultTemperature, "Sampling temperature")
	f.IntVar(&o.seed, "seed", session.DefaultSeed, "Sampling seed")
	f.IntVar(&o.ctxSize, "ctx-size", 0, "Context window in tokens (0=engine default)")
	f.IntVar(&o.threads, "threads", 0, "Inference threads (0=engine default)")
	f.Int64Var(&o.maxBodyBytes, "max-body-bytes", 1<<20, "Maximum JSON request body size")
	f.Int64Var(&o.chatTimeout, "chat-timeout", 0, "Chat stream timeout in seconds (0=none)")
	f.BoolVar(&o.cors, "cors-enabled", false, "Enable CORS on the HTTP API")
	f.StringVar(&o.corsOrigins, "cors-origins", "", "Comma-separated allowed origins")
	f.StringVar(&o.corsMethods, "cors-methods", "GET,POST,OPTIONS", "Comma-separated allowed methods")
	f.StringVar(&o.corsHeaders, "cors-headers", "Content-Type", "Comma-separated allowed headers")

	root.AddCommand(newServeCmd(o), newChatCmd(o), newModelsCmd(o))
	return root
}

// resolveConfig merges defaults, the config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, o *options) (config.Config, error) {
	cfg := config.Config{
		Addr:               o.addr,
		ModelsDir:          o.modelsDir,
		Model:              o.model,
		LogLevel:           o.logLevel,
		MaxBodyBytes:       o.maxBodyBytes,
		ChatTimeoutSeconds: o.chatTimeout,
		Engine: session.EngineOptions{
			MaxTokens:   o.maxTokens,
			TopK:        o.topK,
			Temperature: session.Float32(o.temperature),
			Seed:        session.Int(o.seed),
			ContextSize: o.ctxSize,
			Threads:     o.threads,
		},
		CORSEnabled:        o.cors,
		CORSAllowedOrigins: splitCSV(o.corsOrigins),
		CORSAllowedMethods: splitCSV(o.corsMethods),
		CORSAllowedHeaders: splitCSV(o.corsHeaders),
	}
	if o.configPath == "" {
		return cfg, cfg.Validate()
	}
	fc, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	changed := cmd.Flags().Changed
	pickStr := func(flag string, dst *string, v string) {
		if !changed(flag) && v != "" {
			*dst = v
		}
	}
	pickInt := func(flag string, dst *int, v int) {
		if !changed(flag) && v != 0 {
			*dst = v
		}
	}
	pickInt64 := func(flag string, dst *int64, v int64) {
		if !changed(flag) && v != 0 {
			*dst = v
		}
	}
	pickStrs := func(flag string, dst *[]string, v []string) {
		if !changed(flag) && len(v) > 0 {
			*dst = v
		}
	}
	pickStr("addr", &cfg.Addr, fc.Addr)
	pickStr("models-dir", &cfg.ModelsDir, fc.ModelsDir)
	pickStr("model", &cfg.Model, fc.Model)
	pickStr("log-level", &cfg.LogLevel, fc.LogLevel)
	pickInt("max-tokens", &cfg.Engine.MaxTokens, fc.Engine.MaxTokens)
	pickInt("top-k", &cfg.Engine.TopK, fc.Engine.TopK)
	pickInt("ctx-size", &cfg.Engine.ContextSize, fc.Engine.ContextSize)
	pickInt("threads", &cfg.Engine.Threads, fc.Engine.Threads)
	if !changed("temperature") && fc.Engine.Temperature != nil {
		cfg.Engine.Temperature = fc.Engine.Temperature
	}
	if !changed("seed") && fc.Engine.Seed != nil {
		cfg.Engine.Seed = fc.Engine.Seed
	}
	pickInt64("max-body-bytes", &cfg.MaxBodyBytes, fc.MaxBodyBytes)
	pickInt64("chat-timeout", &cfg.ChatTimeoutSeconds, fc.ChatTimeoutSeconds)
	if !changed("cors-enabled") && fc.CORSEnabled {
		cfg.CORSEnabled = true
	}
	pickStrs("cors-origins", &cfg.CORSAllowedOrigins, fc.CORSAllowedOrigins)
	pickStrs("cors-methods", &cfg.CORSAllowedMethods, fc.CORSAllowedMethods)
	pickStrs("cors-headers", &cfg.CORSAllowedHeaders, fc.CORSAllowedHeaders)
	return cfg, cfg.Validate()
}

// newLogger writes human-readable lines to stderr at level.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
