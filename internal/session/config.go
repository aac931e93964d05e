package session

import (
	"github.com/rs/zerolog"
)

// Defaults applied when corresponding EngineOptions fields are unset.
const (
	DefaultMaxTokens   = 1024
	DefaultTopK        = 40
	DefaultTemperature = float32(0.8)
	DefaultSeed        = 101

	defaultEventBuffer = 64
)

// DegradedMessage is streamed as the whole reply when the engine is not ready.
const DegradedMessage = "I'm sorry, but the AI model is not available at the moment. " +
	"Please check your device compatibility or try again later."

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// ModelPath is checked for existence before the loader is called.
	ModelPath string
	Engine    EngineOptions
	// Loader defaults to the llama loader selected by build tags.
	Loader Loader
	// Dispatcher runs every listener and waiter; defaults to a SerialDispatcher.
	Dispatcher Dispatcher
	Publisher  EventPublisher
	Logger     *zerolog.Logger
	// EventBuffer sizes the channel between engine callbacks and the pump.
	EventBuffer int
}

// WithDefaults fills unset engine options. Zero MaxTokens and TopK mean
// unset; Temperature and Seed are unset only when nil, so 0 passes through.
func (o EngineOptions) WithDefaults() EngineOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Temperature == nil {
		o.Temperature = Float32(DefaultTemperature)
	}
	if o.Seed == nil {
		o.Seed = Int(DefaultSeed)
	}
	return o
}

// NewWithConfig constructs a Manager from ManagerConfig and starts its event pump.
func NewWithConfig(cfg ManagerConfig) *Manager {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "session").Logger()
	}
	m := &Manager{
		state:     StateUninitialized,
		modelPath: cfg.ModelPath,
		opts:      cfg.Engine.WithDefaults(),
		loader:    cfg.Loader,
		dispatch:  cfg.Dispatcher,
		publisher: cfg.Publisher,
		log:       log,
		done:      make(chan struct{}),
	}
	if m.loader == nil {
		m.loader = NewLlamaLoader()
	}
	if m.dispatch == nil {
		m.dispatch = NewSerialDispatcher(&m.log)
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	m.events = make(chan taggedEvent, buf)
	go m.pump()
	return m
}
