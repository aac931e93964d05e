package session

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"gemmachat/internal/common/fsutil"
)

// RequestInit starts loading the engine unless a load already ran or is
// running. It is idempotent: only the first call from StateUninitialized
// starts a load. Supplied waiters are registered as with AddWaiter.
func (m *Manager) RequestInit(waiters ...func(Outcome)) {
	m.mu.Lock()
	switch m.state {
	case StateUninitialized:
		m.state = StateInitializing
		m.waiters = append(m.waiters, waiters...)
		ctx, cancel := context.WithCancel(context.Background())
		m.initCancel = cancel
		m.mu.Unlock()
		m.log.Info().Str("event", "init_start").Str("model", m.modelPath).Msg("initializing engine")
		m.publish("init_start", map[string]any{"model": m.modelPath})
		go m.load(ctx, cancel)
		return
	case StateInitializing:
		m.waiters = append(m.waiters, waiters...)
		m.mu.Unlock()
		m.log.Debug().Str("event", "init_in_progress").Msg("initialization already in progress")
		return
	default:
		out := m.outcomeLocked()
		m.mu.Unlock()
		m.notify(waiters, out)
	}
}

// AddWaiter registers fn to be called exactly once with the initialization
// outcome. If the outcome is already known fn is still invoked asynchronously
// on the dispatcher, never from the caller's stack.
func (m *Manager) AddWaiter(fn func(Outcome)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	if !m.state.Terminal() {
		m.waiters = append(m.waiters, fn)
		m.mu.Unlock()
		return
	}
	out := m.outcomeLocked()
	m.mu.Unlock()
	m.notify([]func(Outcome){fn}, out)
}

// Wait blocks until initialization has an outcome or ctx is done.
func (m *Manager) Wait(ctx context.Context) (Outcome, error) {
	ch := make(chan Outcome, 1)
	m.AddWaiter(func(o Outcome) { ch <- o })
	select {
	case o := <-ch:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (m *Manager) outcomeLocked() Outcome {
	switch m.state {
	case StateReady:
		return Outcome{Ready: true}
	case StateFailed:
		return Outcome{Err: m.reason}
	default:
		return Outcome{Err: ErrShutDown}
	}
}

// notify hands out to each waiter on the dispatcher. Never call with m.mu held.
func (m *Manager) notify(waiters []func(Outcome), out Outcome) {
	for _, w := range waiters {
		if w == nil {
			continue
		}
		w := w
		m.dispatch.Dispatch(func() { w(out) })
	}
}

// load runs once per manager, off the caller's goroutine.
func (m *Manager) load(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	start := time.Now()
	h, err := m.construct(ctx)

	m.mu.Lock()
	if m.state != StateInitializing {
		// Shutdown won the race; it already notified the waiters.
		m.mu.Unlock()
		if h != nil {
			m.log.Info().Str("event", "init_discarded").Msg("releasing engine loaded after shutdown")
			m.releaseHandle(h)
		}
		return
	}
	m.initCancel = nil
	if err != nil {
		m.state = StateFailed
		m.reason = err
	} else {
		m.state = StateReady
		m.handle = h
	}
	out := m.outcomeLocked()
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	dur := time.Since(start)
	if err != nil {
		initOutcomes.WithLabelValues("failed").Inc()
		m.log.Error().Err(err).Str("event", "init_failed").Dur("dur", dur).Msg("engine initialization failed")
		m.publish("init_failed", map[string]any{"error": err.Error(), "dur_ms": int(dur / time.Millisecond)})
	} else {
		initOutcomes.WithLabelValues("ready").Inc()
		m.log.Info().Str("event", "init_ready").Dur("dur", dur).Msg("engine ready")
		m.publish("init_ready", map[string]any{"dur_ms": int(dur / time.Millisecond)})
	}
	m.notify(waiters, out)
}

// construct checks the model resource and calls the loader, converting every
// failure mode, panics included, into a typed error.
func (m *Manager) construct(ctx context.Context) (h Handle, err error) {
	if err := fsutil.CheckReadable(m.modelPath); err != nil {
		return nil, ErrResourceUnavailable(m.modelPath, err)
	}
	defer func() {
		if r := recover(); r != nil {
			h = nil
			err = engineConstructionError{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	h, err = m.loader.Load(ctx, m.modelPath, m.opts)
	if err != nil {
		if h != nil {
			m.releaseHandle(h)
		}
		if IsResourceUnavailable(err) {
			return nil, err
		}
		return nil, engineConstructionError{err: err}
	}
	if isNilHandle(h) {
		return nil, engineConstructionError{err: fmt.Errorf("loader returned no handle")}
	}
	return h, nil
}

// isNilHandle reports whether h is nil or an interface wrapping a nil value.
func isNilHandle(h Handle) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
