package session

import "fmt"

// Shutdown moves the session to its terminal state. It cancels a running
// load, releases the engine handle once, and abandons an in-flight generation
// without calling its listener. Waiters still pending receive ErrShutDown.
// Calling Shutdown again is a no-op.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.state == StateShutDown {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = StateShutDown
	if m.initCancel != nil {
		m.initCancel()
		m.initCancel = nil
	}
	h := m.handle
	m.handle = nil
	abandoned := m.slot
	if abandoned != nil {
		abandoned.abandoned.Store(true)
		m.slot = nil
		generationInflight.Set(0)
	}
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	close(m.done)
	if abandoned != nil {
		generationsTotal.WithLabelValues("abandoned").Inc()
	}

	m.hmu.Lock()
	m.released = true
	if h != nil {
		m.releaseHandle(h)
	}
	m.hmu.Unlock()

	m.notify(waiters, Outcome{Err: ErrShutDown})
	fields := map[string]any{"from": string(prev)}
	if abandoned != nil {
		fields["abandoned_gen"] = abandoned.id
	}
	m.log.Info().Str("event", "shutdown").Str("from", string(prev)).Bool("abandoned", abandoned != nil).Msg("session shut down")
	m.publish("shutdown", fields)
}

// Close implements io.Closer.
func (m *Manager) Close() error {
	m.Shutdown()
	return nil
}

func (m *Manager) releaseHandle(h Handle) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("event", "release_panic").Str("panic", fmt.Sprint(r)).Msg("engine release panicked")
		}
	}()
	if err := h.Release(); err != nil {
		m.log.Warn().Err(err).Str("event", "release_error").Msg("engine release failed")
	}
}
