package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createModelFile writes a small placeholder model file and returns its path.
func createModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

// fakeLoader is an in-memory loader. If block is set, Load waits for it to be
// closed, ignoring cancellation, so tests can race shutdown against a load.
type fakeLoader struct {
	mu       sync.Mutex
	calls    int
	err      error
	panicVal any
	block    chan struct{}
	handle   *fakeHandle
	gotOpts  EngineOptions
}

func (f *fakeLoader) Load(ctx context.Context, modelPath string, opts EngineOptions) (Handle, error) {
	f.mu.Lock()
	f.calls++
	f.gotOpts = opts
	block, err, pv, h := f.block, f.err, f.panicVal, f.handle
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if pv != nil {
		panic(pv)
	}
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	return h, nil
}

func (f *fakeLoader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeHandle records submissions. With script set, each Submit replays the
// script from a separate goroutine the way an engine worker would.
type fakeHandle struct {
	mu          sync.Mutex
	prompts     []string
	emits       []func(Event)
	releases    int
	submitErr   error
	submitPanic any
	script      []Event
}

func (h *fakeHandle) Submit(prompt string, emit func(Event)) error {
	h.mu.Lock()
	h.prompts = append(h.prompts, prompt)
	h.emits = append(h.emits, emit)
	script, err, pv := h.script, h.submitErr, h.submitPanic
	h.mu.Unlock()
	if pv != nil {
		panic(pv)
	}
	if err != nil {
		return err
	}
	if script != nil {
		go func() {
			for _, ev := range script {
				emit(ev)
			}
		}()
	}
	return nil
}

func (h *fakeHandle) Release() error {
	h.mu.Lock()
	h.releases++
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Submits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.prompts)
}

func (h *fakeHandle) Releases() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releases
}

// emit returns the emit callback of the i-th submission.
func (h *fakeHandle) emit(i int) func(Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.emits[i]
}

// manualDispatcher queues tasks until RunAll, making delivery order and
// timing deterministic.
type manualDispatcher struct {
	mu    sync.Mutex
	tasks []func()
}

func (d *manualDispatcher) Dispatch(task func()) {
	d.mu.Lock()
	d.tasks = append(d.tasks, task)
	d.mu.Unlock()
}

func (d *manualDispatcher) RunAll() int {
	n := 0
	for {
		d.mu.Lock()
		if len(d.tasks) == 0 {
			d.mu.Unlock()
			return n
		}
		task := d.tasks[0]
		d.tasks = d.tasks[1:]
		d.mu.Unlock()
		task()
		n++
	}
}

// recorder collects what a Listener observed.
type recorder struct {
	mu       sync.Mutex
	tokens   []string
	done     int
	errs     []error
	terminal chan struct{}
}

func newRecorder() *recorder { return &recorder{terminal: make(chan struct{}, 8)} }

func (r *recorder) listener() Listener {
	return Listener{
		OnToken: func(tok string) {
			r.mu.Lock()
			r.tokens = append(r.tokens, tok)
			r.mu.Unlock()
		},
		OnDone: func() {
			r.mu.Lock()
			r.done++
			r.mu.Unlock()
			r.terminal <- struct{}{}
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.terminal <- struct{}{}
		},
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.terminal:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for terminal callback")
	}
}

func (r *recorder) counts() (tokens []string, done int, errs []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...), r.done, append([]error(nil), r.errs...)
}

type testEnv struct {
	m      *Manager
	loader *fakeLoader
	handle *fakeHandle
	disp   *SerialDispatcher
	pub    *MemoryPublisher
}

// newEnv builds a manager over a fake loader and a real model file.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	h := &fakeHandle{}
	env := &testEnv{
		loader: &fakeLoader{handle: h},
		handle: h,
		disp:   NewSerialDispatcher(nil),
		pub:    NewMemoryPublisher(),
	}
	env.m = NewWithConfig(ManagerConfig{
		ModelPath:  createModelFile(t, t.TempDir(), "gemma.gguf"),
		Loader:     env.loader,
		Dispatcher: env.disp,
		Publisher:  env.pub,
	})
	t.Cleanup(env.m.Shutdown)
	return env
}

// ready initializes env and waits for a successful outcome.
func (env *testEnv) ready(t *testing.T) {
	t.Helper()
	env.m.RequestInit()
	out, err := env.m.Wait(testCtx(t))
	require.NoError(t, err)
	require.True(t, out.Ready, "init outcome: %v", out.Err)
}
