// Package session owns the on-device inference engine for one chat session.
// It is structured into small files by concern:
//
//   - manager.go: Manager type, constructor, pure queries (IsReady, LastError).
//   - config.go: ManagerConfig, engine option defaults; NewWithConfig applies them.
//   - types.go: lifecycle State, Outcome, Listener, the generation slot, Snapshot.
//   - events.go: tagged engine events (token, done, error).
//   - lifecycle.go: lifecycle notices and the EventPublisher hook.
//   - engine.go: Loader/Handle contract of the model runtime.
//   - gate.go: RequestInit/AddWaiter; single load with one-shot fan-out.
//   - generate.go: admission, degraded mode and the event pump.
//   - shutdown.go: terminal teardown.
//   - dispatch.go: delivery context for listener callbacks.
//   - status.go: Snapshot/Status reporting helpers.
//   - sanity.go: SanityCheck for the model file and engine build.
//   - errors.go: error types and helpers (IsBusy, IsResourceUnavailable, ...).
//
// Build tags and runtimes:
//
//   - In-process llama: uses the go-llama.cpp binding. Enabled with
//     `-tags=llama`. Files: adapter_llama.go, llama_cgo.go.
//     A no-CGO stub is compiled otherwise: adapter_llama_stub.go. With the
//     stub every initialization ends Failed and chats run in degraded mode.
//
// All mutable state lives behind one mutex. Engine callbacks never touch it
// directly: they push tagged events into a channel drained by a single pump
// goroutine, and every listener runs on the configured Dispatcher.
package session
