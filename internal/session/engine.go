package session

import "context"

// Loader constructs engine handles. Concrete implementations (e.g., llama.cpp)
// should satisfy this interface. Load may block for a long time; it should
// return early when ctx is canceled.
type Loader interface {
	Load(ctx context.Context, modelPath string, opts EngineOptions) (Handle, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, modelPath string, opts EngineOptions) (Handle, error)

func (f LoaderFunc) Load(ctx context.Context, modelPath string, opts EngineOptions) (Handle, error) {
	return f(ctx, modelPath, opts)
}

// Handle is a loaded model. It is not reentrant: the manager never calls
// Submit while another generation is in flight, and calls Release at most once.
type Handle interface {
	// Submit starts generation for prompt and returns without waiting for it.
	// The stream of tokens followed by exactly one done or error event is
	// reported through emit, typically from an engine worker goroutine.
	Submit(prompt string, emit func(Event)) error
	// Release frees the model. No events are expected afterwards; any that
	// still arrive are discarded by the manager.
	Release() error
}

// EngineOptions captures generation parameters passed through to the engine
// unmodified.
type EngineOptions struct {
	// MaxTokens bounds the response length; larger values raise worst-case latency.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	// TopK limits sampling to the K most likely tokens.
	TopK int `json:"top_k" yaml:"top_k" toml:"top_k"`
	// Temperature scales randomness; higher is more varied. Nil selects
	// DefaultTemperature; 0 is greedy decoding.
	Temperature *float32 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	// Seed makes sampling deterministic for a given prompt. Nil selects DefaultSeed.
	Seed *int `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
	// Backend-specific knobs; zero lets the backend choose.
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads     int `json:"threads" yaml:"threads" toml:"threads"`
}

// TemperatureValue returns Temperature, or DefaultTemperature when unset.
func (o EngineOptions) TemperatureValue() float32 {
	if o.Temperature == nil {
		return DefaultTemperature
	}
	return *o.Temperature
}

// SeedValue returns Seed, or DefaultSeed when unset.
func (o EngineOptions) SeedValue() int {
	if o.Seed == nil {
		return DefaultSeed
	}
	return *o.Seed
}

// Float32 returns a pointer to v, for EngineOptions.Temperature.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v, for EngineOptions.Seed.
func Int(v int) *int { return &v }
