package session

import (
	"errors"
	"fmt"
	"time"
)

// Generate submits prompt to the engine and streams the reply to l.
// It never blocks on the engine: results arrive later on the dispatcher.
//
// When the session is not Ready the reply is DegradedMessage followed by
// OnDone, and the engine is not touched. When another generation occupies the
// slot, l.OnError receives a busy error, which is also returned; requests are
// never queued. Any other failure reaches l.OnError only.
func (m *Manager) Generate(prompt string, l Listener) error {
	m.mu.Lock()
	if m.state != StateReady {
		st := m.state
		m.degraded++
		m.mu.Unlock()
		generationsTotal.WithLabelValues("degraded").Inc()
		m.log.Warn().Str("event", "generate_degraded").Str("state", string(st)).Msg("engine not ready; sending fallback reply")
		m.publish("generate_degraded", map[string]any{"state": string(st)})
		m.dispatch.Dispatch(func() {
			l.token(DegradedMessage)
			l.done()
		})
		return nil
	}
	if cur := m.slot; cur != nil {
		m.rejections++
		err := busyError{inflight: cur.id}
		m.mu.Unlock()
		generationsTotal.WithLabelValues("busy").Inc()
		m.log.Warn().Str("event", "generate_busy").Uint64("inflight", cur.id).Msg(err.Error())
		m.publish("generate_busy", map[string]any{"inflight": cur.id})
		m.dispatch.Dispatch(func() { l.fail(err) })
		return err
	}
	m.nextGen++
	g := &generation{id: m.nextGen, listener: l, startedAt: time.Now()}
	m.slot = g
	m.generations++
	generationInflight.Set(1)
	h := m.handle
	m.mu.Unlock()

	m.log.Debug().Str("event", "generate_start").Uint64("gen", g.id).Int("prompt_len", len(prompt)).Msg("generation admitted")
	m.publish("generate_start", map[string]any{"gen": g.id})

	emit := m.emitter(g.id)
	if err := m.submit(g.id, h, prompt, emit); err != nil {
		emit(ErrorEvent(err))
	}
	return nil
}

// submit calls into the handle unless Shutdown has released it or generation
// id no longer holds the slot. hmu is held across the call so Release waits.
func (m *Manager) submit(id uint64, h Handle, prompt string, emit func(Event)) (err error) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	if m.released {
		return nil
	}
	m.mu.Lock()
	owned := m.state == StateReady && m.slot != nil && m.slot.id == id
	m.mu.Unlock()
	if !owned {
		m.log.Debug().Str("event", "submit_skipped").Uint64("gen", id).Msg("slot cleared before submit")
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine submit panic: %v", r)
		}
	}()
	return h.Submit(prompt, emit)
}

// emitter returns the callback the engine reports generation id through.
// It is safe to call from any goroutine, including after Shutdown.
func (m *Manager) emitter(id uint64) func(Event) {
	return func(ev Event) {
		select {
		case <-m.done:
			m.discard(taggedEvent{gen: id, ev: ev}, "shutdown")
			return
		default:
		}
		select {
		case m.events <- taggedEvent{gen: id, ev: ev}:
		case <-m.done:
			m.discard(taggedEvent{gen: id, ev: ev}, "shutdown")
		}
	}
}

// pump is the single consumer of engine events.
func (m *Manager) pump() {
	for {
		select {
		case <-m.done:
			return
		case te := <-m.events:
			m.deliver(te)
		}
	}
}

func (m *Manager) deliver(te taggedEvent) {
	m.mu.Lock()
	g := m.slot
	if g == nil || g.id != te.gen {
		m.mu.Unlock()
		m.discard(te, "slot_cleared")
		return
	}
	l := g.listener
	switch te.ev.Kind {
	case EventToken:
		if te.ev.Text == "" {
			m.mu.Unlock()
			return
		}
		g.tokens++
		m.lastTokenAt = time.Now()
		m.mu.Unlock()
		tokensTotal.Inc()
		text := te.ev.Text
		m.dispatch.Dispatch(func() {
			if !g.abandoned.Load() {
				l.token(text)
			}
		})
	case EventDone:
		m.slot = nil
		generationInflight.Set(0)
		m.mu.Unlock()
		m.finish(g, "done", nil)
		m.dispatch.Dispatch(func() {
			if !g.abandoned.Load() {
				l.done()
			}
		})
	case EventError:
		m.slot = nil
		generationInflight.Set(0)
		m.mu.Unlock()
		cause := te.ev.Err
		if cause == nil {
			cause = errors.New("unknown engine error")
		}
		err := engineRuntimeError{err: cause}
		m.finish(g, "error", err)
		m.dispatch.Dispatch(func() {
			if !g.abandoned.Load() {
				l.fail(err)
			}
		})
	default:
		m.mu.Unlock()
		m.discard(te, "unknown_kind")
	}
}

// finish records a terminal event after the slot has been cleared.
func (m *Manager) finish(g *generation, result string, err error) {
	dur := time.Since(g.startedAt)
	generationsTotal.WithLabelValues(result).Inc()
	generationDuration.Observe(dur.Seconds())
	fields := map[string]any{"gen": g.id, "tokens": g.tokens, "dur_ms": int(dur / time.Millisecond)}
	if err != nil {
		fields["error"] = err.Error()
		m.log.Error().Err(err).Str("event", "generate_error").Uint64("gen", g.id).Int("tokens", g.tokens).Dur("dur", dur).Msg("generation failed")
	} else {
		m.log.Debug().Str("event", "generate_done").Uint64("gen", g.id).Int("tokens", g.tokens).Dur("dur", dur).Msg("generation complete")
	}
	m.publish("generate_"+result, fields)
}

func (m *Manager) discard(te taggedEvent, why string) {
	m.mu.Lock()
	m.stale++
	m.mu.Unlock()
	staleEventsTotal.Inc()
	m.log.Debug().Str("event", "stale_event").Uint64("gen", te.gen).Str("kind", te.ev.Kind.String()).Str("reason", why).Msg("discarding engine event")
	m.publish("stale_event", map[string]any{"gen": te.gen, "kind": te.ev.Kind.String(), "reason": why})
}
