package chat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gemmachat/pkg/types"
)

func TestStore_AppendAndMutate(t *testing.T) {
	s := NewStore()
	a := s.Append(types.RoleUser, "hi")
	b := s.Append(types.RoleAssistant, "")
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, 2, s.Len())

	require.True(t, s.AppendContent(b.ID, "he"))
	require.True(t, s.AppendContent(b.ID, "llo"))
	got, ok := s.Get(b.ID)
	require.True(t, ok)
	require.Equal(t, "hello", got.Content)

	require.True(t, s.Patch(a.ID, "hey"))
	require.False(t, s.Patch("missing", "x"))
	require.False(t, s.AppendContent("missing", "x"))
	_, ok = s.Get("missing")
	require.False(t, ok)

	msgs := s.Messages()
	msgs[0].Content = "mutated"
	again, _ := s.Get(a.ID)
	require.Equal(t, "hey", again.Content)
}
