// Package credential implements the pluggable credential-checking backend
// used by the authenticator helper: a PAM-backed provider for the common
// case, and a shadow-password fallback for systems built without PAM.
//
// Both backends drive the same monotonic state machine — Clean, Started,
// SessionOpened — and the same teardown discipline: Cleanup walks the
// state backward to a target, invoking the inverse of whatever operation
// advanced it forward. This mirrors the PamService state machine in the
// system this package replaces, generalized to a Provider interface so
// the shadow backend can share the walk-back logic.
package credential

import "context"

// State is a point in the monotonic credential lifecycle. Operations only
// ever move a Provider forward; Cleanup is the only way to move backward.
type State int

const (
	// Clean is the initial state: no service context exists yet.
	Clean State = iota
	// Started means the service context was created (pam_start, or the
	// shadow backend's equivalent bookkeeping) but no session is open.
	Started
	// SessionOpened means a session was opened on top of established
	// credentials; this is the only state a session child may be
	// launched from.
	SessionOpened
)

func (s State) String() string {
	switch s {
	case Clean:
		return "Clean"
	case Started:
		return "Started"
	case SessionOpened:
		return "SessionOpened"
	default:
		return "Unknown"
	}
}

// Conversation answers prompts a credential backend raises during
// authentication. Implementations must clear any sensitive value (the
// password) from their own storage immediately after returning it, the
// way the session's Start message is consumed exactly once.
type Conversation interface {
	// Prompt is called once per backend-raised prompt. echo reports
	// whether the expected reply is suitable for echoing (a login name)
	// as opposed to a secret (a password).
	Prompt(ctx context.Context, echo bool, message string) (string, error)
	// Info is called for informational or error text the backend wants
	// surfaced; it carries no reply.
	Info(ctx context.Context, isError bool, message string)
}

// Request carries what a Provider needs to authenticate one login
// attempt, corresponding to the Start message's payload.
type Request struct {
	User         string
	Session      string
	Password     string
	Passwordless bool
	// Display is the X display name, fetched from the broker once up
	// front so it can be handed to the backend before authentication
	// (PAM_TTY / PAM_XDISPLAY) as well as into the session environment.
	Display string
}

// Provider is a credential-checking backend. Every method that advances
// the state machine is idempotent with respect to Cleanup: calling
// Cleanup(Clean) after any sequence of successful calls always leaves the
// backend ready for reuse or destruction.
type Provider interface {
	// State reports the backend's current position in the lifecycle.
	State() State

	// Authenticate verifies req's credentials, prompting via conv if the
	// backend needs to. It does not change State beyond recording that a
	// service context now exists (Started); PAM semantics separate
	// "credentials verified" from "credentials established".
	Authenticate(ctx context.Context, req Request, conv Conversation) error

	// AccountValid performs account-validity checks (expiry, access time
	// restrictions) after a successful Authenticate. Some backends need
	// to re-prompt for a new token here; conv serves that prompt.
	AccountValid(ctx context.Context, conv Conversation) error

	// EstablishCredentials makes the verified credentials active for the
	// session about to be opened (pam_setcred ESTABLISH, or a no-op for
	// the shadow backend).
	EstablishCredentials(ctx context.Context) error

	// OpenSession opens a session on top of established credentials and
	// advances State to SessionOpened.
	OpenSession(ctx context.Context) error

	// ReinitializeCredentials re-establishes credentials once the
	// session is open (pam_setcred REINITIALIZE_CRED, or a no-op for
	// the shadow backend). Called once per login, after OpenSession.
	ReinitializeCredentials(ctx context.Context) error

	// MappedUser returns the user name the backend is authenticating
	// as, which may differ from the name passed to Authenticate if a
	// module rewrote it (pam_get_item(PAM_USER), or the original
	// request's user for the shadow backend, which never rewrites).
	MappedUser(ctx context.Context) (string, error)

	// PutEnv injects a name=value pair into the backend's environment
	// view, for variables the session launcher wants the backend (and
	// therefore GetEnv) to know about.
	PutEnv(ctx context.Context, nameValue string) error

	// Env returns every environment variable the backend accumulated —
	// from modules/config plus whatever PutEnv added — as name=value
	// pairs.
	Env(ctx context.Context) ([]string, error)

	// Cleanup walks State backward to target, invoking the inverse of
	// every operation that advanced it past target. Calling Cleanup with
	// target >= State() is a no-op. Every inverse step is attempted even
	// if an earlier one failed, so no credential-releasing step is ever
	// skipped; Cleanup returns the first error encountered, if any.
	Cleanup(ctx context.Context, target State) error
}
