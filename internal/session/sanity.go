package session

import (
	"gemmachat/internal/common/fsutil"
)

// SanityReport describes runtime checks for the model resource and the
// engine binding.
type SanityReport struct {
	LlamaBuilt    bool   `json:"llama_built"`
	ModelPath     string `json:"model_path"`
	ModelReadable bool   `json:"model_readable"`
	Error         string `json:"error,omitempty"`
}

// SanityCheck validates that the model file is usable and that the binary was
// built with an engine. It does not mutate state and is safe to call at any time.
func SanityCheck(modelPath string) SanityReport {
	r := SanityReport{LlamaBuilt: llamaBuilt, ModelPath: modelPath}
	if err := fsutil.CheckReadable(modelPath); err != nil {
		r.Error = err.Error()
		return r
	}
	r.ModelReadable = true
	if !llamaBuilt {
		r.Error = errLlamaNotBuilt
	}
	return r
}
