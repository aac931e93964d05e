package e2e

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gemmachat/internal/chat"
	"gemmachat/internal/httpapi"
	"gemmachat/internal/registry"
	"gemmachat/internal/session"
)

// createTempModelsDir creates a temporary directory populated with small model files
// and returns the directory path and the list of model IDs (filenames).
func createTempModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir, names
}

// engine is a scripted Handle. Each Submit waits for a value on release (if
// set) and then replays script.
type engine struct {
	mu       sync.Mutex
	script   []session.Event
	release  chan struct{}
	submits  int
	releases int
}

func (e *engine) Submit(prompt string, emit func(session.Event)) error {
	e.mu.Lock()
	e.submits++
	script, release := e.script, e.release
	e.mu.Unlock()
	go func() {
		if release != nil {
			<-release
		}
		for _, ev := range script {
			emit(ev)
		}
	}()
	return nil
}

func (e *engine) Release() error {
	e.mu.Lock()
	e.releases++
	e.mu.Unlock()
	return nil
}

func (e *engine) Releases() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releases
}

type stack struct {
	srv  *httptest.Server
	sess *session.Manager
	ctrl *chat.Controller
	eng  *engine
	// closed to let a blocked load finish
	loaded chan struct{}
}

// newStack wires registry, session, controller and HTTP API the way serve does.
// With blockLoad the engine stays initializing until loaded is closed.
func newStack(t *testing.T, modelsDir, model string, eng *engine, blockLoad bool) *stack {
	t.Helper()
	models, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	m, err := registry.Resolve(models, model)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	st := &stack{eng: eng, loaded: make(chan struct{})}
	if !blockLoad {
		close(st.loaded)
	}
	st.sess = session.NewWithConfig(session.ManagerConfig{
		ModelPath: m.Path,
		Loader: session.LoaderFunc(func(ctx context.Context, _ string, _ session.EngineOptions) (session.Handle, error) {
			select {
			case <-st.loaded:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return eng, nil
		}),
	})
	st.ctrl = chat.NewController(st.sess, chat.NewStore(), nil)
	st.sess.RequestInit(st.ctrl.InitWaiter())
	st.srv = httptest.NewServer(httpapi.NewMux(httpapi.NewChatService(st.ctrl, st.sess, models)))
	t.Cleanup(st.srv.Close)
	t.Cleanup(st.sess.Shutdown)
	return st
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}
