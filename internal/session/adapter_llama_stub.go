//go:build !llama

package session

// This file provides a no-CGO stub for the llama loader. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real loader lives in adapter_llama.go (tagged 'llama').

import (
	"context"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

const errLlamaNotBuilt = "llama support not built (missing 'llama' build tag)"

// llamaLoader refuses to construct an engine so initialization ends Failed
// and chats fall back to the degraded reply.
type llamaLoader struct{}

func NewLlamaLoader() Loader { return llamaLoader{} }

func (llamaLoader) Load(ctx context.Context, modelPath string, opts EngineOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrDependencyUnavailable(errLlamaNotBuilt)
}
