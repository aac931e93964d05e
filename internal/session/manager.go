package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the engine handle of one chat session. It deduplicates
// initialization, admits at most one generation at a time and forwards the
// engine's event stream to the admitted listener.
type Manager struct {
	mu      sync.Mutex
	state   State
	reason  error
	handle  Handle
	slot    *generation
	nextGen uint64
	waiters []func(Outcome)
	// cancels the in-flight load; nil outside StateInitializing
	initCancel func()

	// hmu serializes calls into the handle against its release.
	hmu      sync.Mutex
	released bool

	lastTokenAt time.Time
	generations uint64
	rejections  uint64
	degraded    uint64
	stale       uint64

	modelPath string
	opts      EngineOptions
	loader    Loader
	dispatch  Dispatcher
	publisher EventPublisher
	log       zerolog.Logger

	events chan taggedEvent
	done   chan struct{} // closed by Shutdown
}

// New constructs a Manager for the model at modelPath using the default loader.
func New(modelPath string, opts EngineOptions) *Manager {
	return NewWithConfig(ManagerConfig{ModelPath: modelPath, Engine: opts})
}

// IsReady reports whether generations reach the engine.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady
}

// LastError returns the reason initialization failed, or nil.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Options returns the engine options in effect.
func (m *Manager) Options() EngineOptions { return m.opts }

// ModelPath returns the model resource this session loads.
func (m *Manager) ModelPath() string { return m.modelPath }

func (m *Manager) publish(name string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	m.publisher.Publish(LifecycleEvent{Name: name, Fields: fields})
}
