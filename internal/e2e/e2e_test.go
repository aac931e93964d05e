package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gemmachat/internal/session"
	"gemmachat/pkg/types"
)

func postChat(t *testing.T, url, prompt string) (*http.Response, []types.ChatChunk) {
	t.Helper()
	body, _ := json.Marshal(types.ChatRequest{Prompt: prompt})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url+"/chat", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var chunks []types.ChatChunk
	if resp.StatusCode != http.StatusOK {
		return resp, nil
	}
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var c types.ChatChunk
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		chunks = append(chunks, c)
	}
	return resp, chunks
}

func TestE2E_ModelsAndChat(t *testing.T) {
	dir, models := createTempModelsDir(t, "alpha.gguf", "beta.bin")
	eng := &engine{script: []session.Event{session.TokenEvent("Hi"), session.TokenEvent("!"), session.DoneEvent()}}
	st := newStack(t, dir, models[0], eng, false)
	require.Eventually(t, st.sess.IsReady, 2*time.Second, 5*time.Millisecond)

	resp, b := httpGet(t, st.srv.URL+"/models")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mr types.ModelsResponse
	require.NoError(t, json.Unmarshal(b, &mr))
	require.Len(t, mr.Models, 2)

	resp, chunks := postChat(t, st.srv.URL, "hello")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, chunks, 3)
	require.True(t, chunks[2].Done)

	resp, b = httpGet(t, st.srv.URL+"/messages")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs types.MessagesResponse
	require.NoError(t, json.Unmarshal(b, &msgs))
	require.Len(t, msgs.Messages, 2)
	require.Equal(t, "Hi!", msgs.Messages[1].Content)

	resp, b = httpGet(t, st.srv.URL+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status types.StatusResponse
	require.NoError(t, json.Unmarshal(b, &status))
	require.Equal(t, "ready", status.State)
	require.EqualValues(t, 1, status.Generations)
}

// TestE2E_ReadyzFollowsInitialization checks 503 "loading" until the load
// completes, and the fallback reply meanwhile.
func TestE2E_ReadyzFollowsInitialization(t *testing.T) {
	dir, models := createTempModelsDir(t, "alpha.gguf")
	eng := &engine{script: []session.Event{session.DoneEvent()}}
	st := newStack(t, dir, models[0], eng, true)

	resp, b := httpGet(t, st.srv.URL+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "loading", string(b))

	resp, chunks := postChat(t, st.srv.URL, "early")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, session.DegradedMessage, chunks[0].Token)

	close(st.loaded)
	require.Eventually(t, func() bool {
		r, _ := httpGet(t, st.srv.URL+"/readyz")
		return r.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
}

// TestE2E_ConcurrentChatIs409 holds the first reply open and checks a second
// request is turned away rather than queued.
func TestE2E_ConcurrentChatIs409(t *testing.T) {
	dir, models := createTempModelsDir(t, "alpha.gguf")
	eng := &engine{
		script:  []session.Event{session.TokenEvent("slow"), session.DoneEvent()},
		release: make(chan struct{}),
	}
	st := newStack(t, dir, models[0], eng, false)
	require.Eventually(t, st.sess.IsReady, 2*time.Second, 5*time.Millisecond)

	first := make(chan int, 1)
	go func() {
		resp, _ := postChat(t, st.srv.URL, "one")
		first <- resp.StatusCode
	}()
	require.Eventually(t, st.ctrl.Processing, 2*time.Second, 5*time.Millisecond)

	resp, _ := postChat(t, st.srv.URL, "two")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	close(eng.release)
	select {
	case code := <-first:
		require.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("first chat never completed")
	}
}

// TestE2E_ShutdownReleasesEngineOnce shuts the session down mid-reply; the
// engine is released once and the abandoned reply never completes.
func TestE2E_ShutdownReleasesEngineOnce(t *testing.T) {
	dir, models := createTempModelsDir(t, "alpha.gguf")
	eng := &engine{script: []session.Event{session.TokenEvent("late"), session.DoneEvent()}, release: make(chan struct{})}
	st := newStack(t, dir, models[0], eng, false)
	require.Eventually(t, st.sess.IsReady, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	body, _ := json.Marshal(types.ChatRequest{Prompt: "hang"})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, st.srv.URL+"/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if resp, err := http.DefaultClient.Do(req); err == nil {
		resp.Body.Close()
	}

	st.sess.Shutdown()
	st.sess.Shutdown()
	close(eng.release)
	require.Equal(t, 1, eng.Releases())
	require.Equal(t, session.StateShutDown, st.sess.State())

	resp, b := httpGet(t, st.srv.URL+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status types.StatusResponse
	require.NoError(t, json.Unmarshal(b, &status))
	require.Equal(t, "shutdown", status.State)
	require.False(t, status.Busy)
}
