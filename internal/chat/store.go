package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gemmachat/pkg/types"
)

// Store is the in-memory conversation. It is safe for concurrent use; the
// controller is its only writer in practice.
type Store struct {
	mu    sync.RWMutex
	msgs  []types.Message
	index map[string]int
}

// NewStore returns an empty conversation.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Append adds a message and returns it with its assigned id.
func (s *Store) Append(role types.Role, content string) types.Message {
	msg := types.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.index[msg.ID] = len(s.msgs)
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return msg
}

// AppendContent extends the content of message id. It reports false when id is unknown.
func (s *Store) AppendContent(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.msgs[i].Content += text
	return true
}

// Patch replaces the content of message id.
func (s *Store) Patch(id, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.msgs[i].Content = content
	return true
}

func (s *Store) Get(id string) (types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return types.Message{}, false
	}
	return s.msgs[i], true
}

// Messages returns a copy of the conversation in insertion order.
func (s *Store) Messages() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
