// Package brokererr defines the closed set of error kinds the broker and
// helper use to classify failures, per the propagation policy of a
// privilege-separated login broker: most failures are fatal to the current
// login attempt but recoverable for the process, while a handful
// (privilege-drop failure, channel closure) are fatal to the process itself.
package brokererr

import (
	"errors"
	"fmt"
)

// Kind classifies a broker/helper failure.
type Kind int

const (
	// ConfigMissing means the session descriptor resolved to an empty command.
	ConfigMissing Kind = iota
	// UserUnknown means the passwd lookup for the target user failed.
	UserUnknown
	// AuthRejected means the credential provider denied the login.
	AuthRejected
	// ProviderError means a credential-provider transaction step failed.
	ProviderError
	// PrivilegeDropFailed means initgroups/setgid/setuid/setsid/chdir failed
	// in the session child.
	PrivilegeDropFailed
	// SpawnFailed means the session child did not start.
	SpawnFailed
	// ProtocolError means an unexpected or malformed wire message arrived.
	ProtocolError
	// ChannelClosed means the framed pipe hit EOF.
	ChannelClosed
)

// String returns the kind's name, used in log lines and error messages.
func (k Kind) String() string {
	switch k {
	case ConfigMissing:
		return "ConfigMissing"
	case UserUnknown:
		return "UserUnknown"
	case AuthRejected:
		return "AuthRejected"
	case ProviderError:
		return "ProviderError"
	case PrivilegeDropFailed:
		return "PrivilegeDropFailed"
	case SpawnFailed:
		return "SpawnFailed"
	case ProtocolError:
		return "ProtocolError"
	case ChannelClosed:
		return "ChannelClosed"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a classification kind.
type Error struct {
	Kind Kind
	Op   string // operation in which the error occurred, e.g. "authenticate"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error, wrapping err (which may be nil) under op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a brokererr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == kind
}
