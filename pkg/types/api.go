package types

// ChatRequest is the payload of POST /chat.
type ChatRequest struct {
	// Required user message.
	Prompt string `json:"prompt"`
}

// ChatChunk is one NDJSON line of the /chat stream. A stream is a run of
// token chunks ended by exactly one chunk with Done or Error set.
type ChatChunk struct {
	Token     string `json:"token,omitempty"`
	Done      bool   `json:"done,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// MessagesResponse is returned by GET /messages.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
	// True while an assistant reply is streaming.
	Processing bool `json:"processing"`
	// Last user-facing error, cleared by the next successful send.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Session lifecycle state (uninitialized, initializing, ready, failed, shutdown).
	State string `json:"state"`
	Ready bool   `json:"ready"`
	// True while a generation occupies the slot.
	Busy bool `json:"busy"`
	// Initialization failure reason, if any.
	Error     string `json:"error,omitempty"`
	ModelPath string `json:"model_path"`
	// Whether this binary carries the llama engine.
	EngineBuilt           bool   `json:"engine_built"`
	GenerationStartedUnix int64  `json:"generation_started_unix,omitempty"`
	LastTokenUnix         int64  `json:"last_token_unix,omitempty"`
	Generations           uint64 `json:"generations_total"`
	Rejections            uint64 `json:"busy_rejections_total"`
	Degraded              uint64 `json:"degraded_total"`
	StaleEvents           uint64 `json:"stale_events_total"`
	UptimeSeconds         int64  `json:"uptime_seconds"`
	ServerTimeUnix        int64  `json:"server_time_unix"`
}
