package session

import (
	"time"

	"gemmachat/pkg/types"
)

// Snapshot returns a read-only view of the session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		State:       m.state,
		ModelPath:   m.modelPath,
		LastTokenAt: m.lastTokenAt,
		Generations: m.generations,
		Rejections:  m.rejections,
		Degraded:    m.degraded,
		StaleEvents: m.stale,
	}
	if m.reason != nil {
		s.Reason = m.reason.Error()
	}
	if g := m.slot; g != nil {
		s.Busy = true
		s.GenerationID = g.id
		s.GenerationStartedAt = g.startedAt
	}
	return s
}

// Status builds the status payload served by the HTTP API.
func (m *Manager) Status() types.StatusResponse {
	s := m.Snapshot()
	resp := types.StatusResponse{
		State:          string(s.State),
		Ready:          s.State == StateReady,
		Busy:           s.Busy,
		Error:          s.Reason,
		ModelPath:      s.ModelPath,
		EngineBuilt:    llamaBuilt,
		Generations:    s.Generations,
		Rejections:     s.Rejections,
		Degraded:       s.Degraded,
		StaleEvents:    s.StaleEvents,
		ServerTimeUnix: time.Now().Unix(),
	}
	if s.Busy {
		resp.GenerationStartedUnix = s.GenerationStartedAt.Unix()
	}
	if !s.LastTokenAt.IsZero() {
		resp.LastTokenUnix = s.LastTokenAt.Unix()
	}
	return resp
}
