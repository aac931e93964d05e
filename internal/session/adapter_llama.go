//go:build llama

package session

import (
	"context"
	"sync"
	"sync/atomic"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/pkg/errors"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

const errLlamaNotBuilt = ""

type llamaLoader struct{}

func NewLlamaLoader() Loader { return llamaLoader{} }

// llamaHandle owns the loaded model. mu is held for the whole of a Predict
// call so Release waits for the native side to return before freeing.
type llamaHandle struct {
	mu       sync.Mutex
	model    *llama.LLama
	opts     EngineOptions
	released atomic.Bool
}

func (llamaLoader) Load(ctx context.Context, modelPath string, opts EngineOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{}
	if opts.ContextSize > 0 {
		mo = append(mo, llama.SetContext(opts.ContextSize))
	}
	m, err := llama.New(modelPath, mo...)
	if err != nil {
		return nil, errors.Wrap(err, "llama: load model")
	}
	// The load is not interruptible; honor a cancel that arrived meanwhile.
	if err := ctx.Err(); err != nil {
		m.Free()
		return nil, err
	}
	return &llamaHandle{model: m, opts: opts}, nil
}

func (h *llamaHandle) Submit(prompt string, emit func(Event)) error {
	if h.released.Load() {
		return errors.New("llama: model released")
	}
	go h.predict(prompt, emit)
	return nil
}

func (h *llamaHandle) predict(prompt string, emit func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		emit(ErrorEvent(errors.New("llama: model released")))
		return
	}
	h.model.SetTokenCallback(func(tok string) bool {
		// Returning false stops prediction early.
		if h.released.Load() {
			return false
		}
		emit(TokenEvent(tok))
		return true
	})
	if _, err := h.model.Predict(prompt, predictOptions(h.opts)...); err != nil {
		emit(ErrorEvent(errors.Wrap(err, "llama: predict")))
		return
	}
	emit(DoneEvent())
}

func (h *llamaHandle) Release() error {
	h.released.Store(true)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts EngineOptions into go-llama.cpp options.
func predictOptions(o EngineOptions) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(o.MaxTokens, DefaultMaxTokens)),
		llama.SetTopK(zn(o.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(o.TemperatureValue()),
		llama.SetSeed(o.SeedValue()),
	}
	if o.Threads > 0 {
		po = append(po, llama.SetThreads(o.Threads))
	}
	return po
}
