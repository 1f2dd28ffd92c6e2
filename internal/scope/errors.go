package scope

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadyAcquiring is returned by Start while a session is running.
	ErrAlreadyAcquiring = errors.New("scope: already acquiring")
	// ErrNotAcquiring is returned by Stop when no session is running.
	ErrNotAcquiring = errors.New("scope: not acquiring")
)

// HardwareError reports that the line source could not be claimed at session
// start. The session never begins.
type HardwareError struct {
	Err error
}

func (e *HardwareError) Error() string {
	return "scope: hardware unavailable: " + e.Err.Error()
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// IoFault reports a failed line read during an active session. It aborts the
// session: skipping samples would break the channel alignment invariant.
type IoFault struct {
	Err error
}

func (e *IoFault) Error() string {
	return "scope: line read fault: " + e.Err.Error()
}

func (e *IoFault) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid acquisition or trigger parameter. It is
// returned synchronously, before any state is mutated.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scope: invalid %s: %s", e.Field, e.Reason)
}
