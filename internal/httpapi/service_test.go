package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gemmachat/internal/chat"
	"gemmachat/internal/session"
	"gemmachat/pkg/types"
)

// scriptedHandle replays script on every submit from its own goroutine.
// A nil script leaves the generation open.
type scriptedHandle struct {
	script []session.Event
}

func (h *scriptedHandle) Submit(prompt string, emit func(session.Event)) error {
	if h.script == nil {
		return nil
	}
	go func() {
		for _, ev := range h.script {
			emit(ev)
		}
	}()
	return nil
}

func (h *scriptedHandle) Release() error { return nil }

// newReadySession returns an initialized session whose engine replays script.
func newReadySession(t *testing.T, script []session.Event) (*session.Manager, *scriptedHandle) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gemma.gguf")
	require.NoError(t, os.WriteFile(p, []byte("gguf"), 0o644))
	h := &scriptedHandle{script: script}
	m := session.NewWithConfig(session.ManagerConfig{
		ModelPath: p,
		Loader: session.LoaderFunc(func(ctx context.Context, _ string, _ session.EngineOptions) (session.Handle, error) {
			return h, nil
		}),
	})
	t.Cleanup(m.Shutdown)
	m.RequestInit()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := m.Wait(ctx)
	require.NoError(t, err)
	require.True(t, out.Ready)
	return m, h
}

func readChunks(t *testing.T, body string) []types.ChatChunk {
	t.Helper()
	var out []types.ChatChunk
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		var c types.ChatChunk
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		out = append(out, c)
	}
	return out
}

func TestChatService_StreamsReplyAndRecordsConversation(t *testing.T) {
	m, _ := newReadySession(t, []session.Event{
		session.TokenEvent("Hel"), session.TokenEvent("lo"), session.DoneEvent(),
	})
	ctrl := chat.NewController(m, chat.NewStore(), nil)
	svc := NewChatService(ctrl, m, []types.Model{{ID: "gemma.gguf"}})
	h := NewMux(svc)

	w := postChat(h, `{"prompt":"hi"}`, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	chunks := readChunks(t, w.Body.String())
	require.Len(t, chunks, 3)
	require.Equal(t, "Hel", chunks[0].Token)
	require.Equal(t, "lo", chunks[1].Token)
	require.True(t, chunks[2].Done)
	require.NotEmpty(t, chunks[2].MessageID)

	msgs := svc.Messages()
	require.Len(t, msgs.Messages, 2)
	require.Equal(t, "hi", msgs.Messages[0].Content)
	require.Equal(t, "Hello", msgs.Messages[1].Content)
	require.Equal(t, chunks[2].MessageID, msgs.Messages[1].ID)
	require.False(t, msgs.Processing)

	st := svc.Status()
	require.Equal(t, "ready", st.State)
	require.True(t, svc.Ready())
	require.Len(t, svc.ListModels(), 1)
}

func TestChatService_EngineErrorEndsStream(t *testing.T) {
	m, _ := newReadySession(t, []session.Event{
		session.TokenEvent("part"), session.ErrorEvent(context.DeadlineExceeded),
	})
	ctrl := chat.NewController(m, nil, nil)
	svc := NewChatService(ctrl, m, nil)

	w := postChat(NewMux(svc), `{"prompt":"hi"}`, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	chunks := readChunks(t, w.Body.String())
	require.Len(t, chunks, 2)
	require.Equal(t, context.DeadlineExceeded.Error(), chunks[1].Error)

	msgs := svc.Messages()
	require.Equal(t, "part [Error: "+context.DeadlineExceeded.Error()+"]", msgs.Messages[1].Content)
	require.NotEmpty(t, msgs.Error)
}

func TestChatService_SecondChatWhileStreamingIs409(t *testing.T) {
	// nil script: the first generation never completes.
	m, _ := newReadySession(t, nil)
	ctrl := chat.NewController(m, nil, nil)
	svc := NewChatService(ctrl, m, nil)
	h := NewMux(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var sink strings.Builder
	err := svc.Chat(ctx, types.ChatRequest{Prompt: "first"}, &sink, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, ctrl.Processing())

	w := postChat(h, `{"prompt":"second"}`, "application/json")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestChatService_DegradedWhenNotReady(t *testing.T) {
	m := session.NewWithConfig(session.ManagerConfig{ModelPath: "/does/not/exist.gguf"})
	t.Cleanup(m.Shutdown)
	ctrl := chat.NewController(m, nil, nil)
	svc := NewChatService(ctrl, m, nil)

	w := postChat(NewMux(svc), `{"prompt":"hi"}`, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	chunks := readChunks(t, w.Body.String())
	require.Len(t, chunks, 2)
	require.Equal(t, session.DegradedMessage, chunks[0].Token)
	require.True(t, chunks[1].Done)
	require.False(t, svc.Ready())
}

// gatedWriter blocks every Write until gate is closed.
type gatedWriter struct {
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
	mu      sync.Mutex
	buf     bytes.Buffer
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.started) })
	<-w.gate
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func TestChatService_SlowReaderDoesNotStallSession(t *testing.T) {
	const n = 4 * chunkBuffer
	script := make([]session.Event, 0, n+1)
	for i := 0; i < n; i++ {
		script = append(script, session.TokenEvent("t"))
	}
	m, _ := newReadySession(t, append(script, session.DoneEvent()))
	ctrl := chat.NewController(m, nil, nil)
	svc := NewChatService(ctrl, m, nil)

	w := &gatedWriter{gate: make(chan struct{}), started: make(chan struct{})}
	result := make(chan error, 1)
	go func() { result <- svc.Chat(context.Background(), types.ChatRequest{Prompt: "hi"}, w, nil) }()

	select {
	case <-w.started:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never started writing")
	}
	// The whole generation completes while the writer is stuck.
	require.Eventually(t, func() bool { return !ctrl.Processing() }, 2*time.Second, 5*time.Millisecond)
	require.False(t, m.Snapshot().Busy)

	close(w.gate)
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("chat did not return")
	}
	chunks := readChunks(t, w.buf.String())
	require.Less(t, len(chunks), n+1)
	last := chunks[len(chunks)-1]
	require.Equal(t, ErrSlowClient.Error(), last.Error)
	require.NotEmpty(t, last.MessageID)

	msgs := svc.Messages().Messages
	require.Equal(t, strings.Repeat("t", n), msgs[1].Content)
}
