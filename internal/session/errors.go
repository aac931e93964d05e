package session

import (
	"errors"
	"fmt"
)

// ErrShutDown is the outcome reported to waiters once the session is shut down.
var ErrShutDown = errors.New("session shut down")

// busyError rejects a generation while another one is in flight.
type busyError struct{ inflight uint64 }

func (e busyError) Error() string { return "already processing a request" }

// IsBusy reports whether err rejected a generation because the slot was occupied.
func IsBusy(err error) bool {
	var be busyError
	return errors.As(err, &be)
}

// resourceUnavailableError signals a missing or unreadable model resource.
type resourceUnavailableError struct {
	path string
	err  error
}

func (e resourceUnavailableError) Error() string {
	return fmt.Sprintf("model resource unavailable: %s: %v", e.path, e.err)
}

func (e resourceUnavailableError) Unwrap() error { return e.err }

// ErrResourceUnavailable constructs a resourceUnavailableError.
func ErrResourceUnavailable(path string, err error) error {
	return resourceUnavailableError{path: path, err: err}
}

// IsResourceUnavailable reports whether err indicates the model file could not be used.
func IsResourceUnavailable(err error) bool {
	var re resourceUnavailableError
	return errors.As(err, &re)
}

// engineConstructionError wraps any failure of Loader.Load, panics included.
type engineConstructionError struct{ err error }

func (e engineConstructionError) Error() string {
	return "failed to create inference engine: " + e.err.Error()
}

func (e engineConstructionError) Unwrap() error { return e.err }

// IsEngineConstruction reports whether err came from constructing the engine.
func IsEngineConstruction(err error) bool {
	var ce engineConstructionError
	return errors.As(err, &ce)
}

// engineRuntimeError is an error event emitted mid-generation.
type engineRuntimeError struct{ err error }

func (e engineRuntimeError) Error() string { return e.err.Error() }

func (e engineRuntimeError) Unwrap() error { return e.err }

// IsEngineRuntime reports whether err was raised by the engine during generation.
func IsEngineRuntime(err error) bool {
	var re engineRuntimeError
	return errors.As(err, &re)
}

// dependencyUnavailableError signals a missing runtime dependency (e.g., a
// binary built without llama support).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var de dependencyUnavailableError
	return errors.As(err, &de)
}
