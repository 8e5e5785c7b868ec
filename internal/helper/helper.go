// Package helper implements the authenticator helper: the short-lived
// child process that runs the credential check and becomes the user's
// session. It is the mirror image of internal/broker — where the broker
// drives Start/End outward and answers Request* messages, the helper
// drives Start/End inward and issues the Request* messages, blocking for
// each matching reply before it proceeds. See spec.md §4.1, §4.2, §4.3.
package helper

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gascity-labs/authbroker/internal/brokererr"
	"github.com/gascity-labs/authbroker/internal/credential"
	"github.com/gascity-labs/authbroker/internal/launcher"
	"github.com/gascity-labs/authbroker/internal/protocol"
	"github.com/gascity-labs/authbroker/internal/telemetry"
	"github.com/gascity-labs/authbroker/internal/wire"
)

// Logger is the helper's diagnostic seam; cmd/authenticator-helper
// supplies a stderr-backed implementation.
type Logger interface {
	Logf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Logf(string, ...any) {}

// Helper drives exactly one framed channel for the lifetime of the
// process: it receives Start, runs the credential engine and the session
// launcher, reports LoginSucceeded/LoginFailed, then waits for either an
// explicit End or the session process exiting on its own, tearing down
// credentials either way before the process exits.
type Helper struct {
	ch       *wire.Channel
	provider credential.Provider
	cfg      launcher.Config
	log      Logger

	// exit is called once, when the helper has nothing left to do. The
	// zero value calls os.Exit(0); tests substitute a channel signal.
	exit func()

	active *launcher.Result
}

// New builds a Helper around rw (typically stdin/stdout, inherited from
// the broker that spawned this process).
func New(rw io.ReadWriter, provider credential.Provider, cfg launcher.Config, log Logger, exit func()) *Helper {
	if log == nil {
		log = nopLogger{}
	}
	if exit == nil {
		exit = func() { os.Exit(0) }
	}
	return &Helper{
		ch:       wire.New(rw),
		provider: provider,
		cfg:      cfg,
		log:      log,
		exit:     exit,
	}
}

// Run blocks, servicing messages until the channel closes or the helper
// decides it is done (End received, or the session process exited).
// Callers run this on the process's only goroutine of consequence; any
// background waiting this package does (watching the session process)
// reports back by calling exit, never by touching the channel from
// another goroutine — wire.Channel is not safe for concurrent use.
func (h *Helper) Run(ctx context.Context) {
	for {
		msg, err := h.ch.Receive()
		if err != nil {
			h.log.Logf("helper: channel closed: %v", err)
			return
		}
		if done := h.dispatchTopLevel(ctx, msg); done {
			return
		}
	}
}

func (h *Helper) dispatchTopLevel(ctx context.Context, msg protocol.Message) (done bool) {
	switch msg.Tag {
	case protocol.Start:
		h.handleStart(ctx, msg)
		return false
	case protocol.End:
		h.handleEnd(ctx)
		return true
	default:
		h.log.Logf("helper: dropping unexpected top-level tag %v", msg.Tag)
		return false
	}
}

// handleStart runs the ordering contract from spec.md §4.1: authenticate,
// validate the account, establish credentials, open the session, launch
// it, and report the outcome. Any failure along the way is reported as
// LoginFailed and rolls the credential engine back to Clean; it never
// aborts the process, so the helper stays ready for another Start.
func (h *Helper) handleStart(ctx context.Context, msg protocol.Message) {
	reqr := &helperRequester{h: h}

	displayName, err := reqr.RequestDisplay(ctx)
	if err != nil {
		h.failLogin(ctx, "request_display", err)
		return
	}

	req := credential.Request{
		User:         msg.User,
		Session:      msg.Session,
		Password:     msg.Password,
		Passwordless: msg.Passwordless,
		Display:      displayName,
	}
	conv := &promptConversation{password: req.Password, user: req.User, passwordless: req.Passwordless, log: h.log}

	if err := h.provider.Authenticate(ctx, req, conv); err != nil {
		h.failLogin(ctx, "authenticate", err)
		return
	}
	if err := h.provider.AccountValid(ctx, conv); err != nil {
		h.failLogin(ctx, "account_valid", err)
		return
	}
	if err := h.provider.EstablishCredentials(ctx); err != nil {
		h.failLogin(ctx, "establish_credentials", err)
		return
	}
	if err := h.provider.OpenSession(ctx); err != nil {
		h.failLogin(ctx, "open_session", err)
		return
	}

	result, err := launcher.Launch(ctx, req, h.provider, reqr, h.cfg)
	if err != nil {
		h.failLogin(ctx, "launch", err)
		return
	}
	h.active = &result

	if err := h.ch.Send(protocol.Message{Tag: protocol.LoginSucceeded, SessionName: result.SessionName, User: result.MappedUser}); err != nil {
		h.log.Logf("helper: send LoginSucceeded: %v", err)
		return
	}

	go h.watchSession(ctx, result)
}

func (h *Helper) failLogin(ctx context.Context, op string, err error) {
	h.log.Logf("helper: login failed at %s: %v", op, err)
	telemetry.RecordCredentialFailure(ctx, op, err)
	if sendErr := h.ch.Send(protocol.Message{Tag: protocol.LoginFailed}); sendErr != nil {
		h.log.Logf("helper: send LoginFailed: %v", sendErr)
	}
	if cleanupErr := h.provider.Cleanup(ctx, credential.Clean); cleanupErr != nil {
		h.log.Logf("helper: cleanup after failed login: %v", cleanupErr)
	}
}

// watchSession waits for the session process to exit on its own (no
// explicit End from the broker) and tears down credentials the same way
// handleEnd does, per spec.md §4.2 step 10. It never touches h.ch — that
// would race with Run's own Receive loop — it only calls h.exit.
func (h *Helper) watchSession(ctx context.Context, result launcher.Result) {
	_ = result.Wait()
	if err := h.provider.Cleanup(ctx, credential.Clean); err != nil {
		h.log.Logf("helper: cleanup after session exit: %v", err)
	}
	telemetry.RecordSessionClose(ctx, result.SessionName, "process_exited")
	h.exit()
}

// handleEnd implements the broker-initiated teardown path: terminate the
// session process (SIGTERM, then SIGKILL after killGrace), then run the
// same credential teardown, per spec.md §5's cancellation clause.
func (h *Helper) handleEnd(ctx context.Context) {
	if h.active == nil {
		h.exit()
		return
	}
	done := make(chan struct{})
	go func() {
		_ = h.active.Wait()
		close(done)
	}()
	h.active.Terminate(done)
	<-done

	if err := h.provider.Cleanup(ctx, credential.Clean); err != nil {
		h.log.Logf("helper: cleanup on end: %v", err)
	}
	telemetry.RecordSessionClose(ctx, h.active.SessionName, "end_received")
	h.exit()
}

// helperRequester implements launcher.Requester by issuing a Request* and
// blocking for its one matching reply, per the "one reply per request"
// testable property in spec.md §8.
type helperRequester struct {
	h *Helper
}

func (r *helperRequester) RequestSessionID(ctx context.Context) (int32, error) {
	reply, ok := r.h.request(protocol.Message{Tag: protocol.RequestSessionID}, protocol.SessionID)
	if !ok {
		return 0, brokererr.New(brokererr.ProtocolError, "request_session_id", fmt.Errorf("no matching SessionID reply"))
	}
	return reply.ID, nil
}

func (r *helperRequester) RequestCookieLink(ctx context.Context, path, user string) error {
	_, ok := r.h.request(protocol.Message{Tag: protocol.RequestCookieLink, Path: path, User: user}, protocol.CookieLink)
	if !ok {
		return brokererr.New(brokererr.ProtocolError, "request_cookie_link", fmt.Errorf("no matching CookieLink reply"))
	}
	return nil
}

func (r *helperRequester) RequestEnv(ctx context.Context, user string) ([]string, error) {
	reply, ok := r.h.request(protocol.Message{Tag: protocol.RequestEnv, User: user}, protocol.Env)
	if !ok {
		// spec.md §8 scenario 6: abandon the pending request and hand the
		// caller an empty environment rather than failing the whole login.
		return nil, nil
	}
	return reply.EnvList, nil
}

func (r *helperRequester) RequestDisplay(ctx context.Context) (string, error) {
	reply, ok := r.h.request(protocol.Message{Tag: protocol.RequestDisplay}, protocol.Display)
	if !ok {
		return "", brokererr.New(brokererr.ProtocolError, "request_display", fmt.Errorf("no matching Display reply"))
	}
	return reply.DisplayName, nil
}

// request sends msg and blocks for exactly one reply. If that reply is
// not tagged want, it logs a protocol error, feeds the unexpected message
// into the top-level dispatcher (it might be a legitimate Start/End that
// arrived out of turn), and reports failure to the caller — mirroring
// spec.md §8 scenario 6 exactly.
func (h *Helper) request(msg protocol.Message, want protocol.Tag) (protocol.Message, bool) {
	if err := h.ch.Send(msg); err != nil {
		h.log.Logf("helper: send %v: %v", msg.Tag, err)
		return protocol.Message{}, false
	}
	reply, err := h.ch.Receive()
	if err != nil {
		h.log.Logf("helper: receive reply to %v: %v", msg.Tag, err)
		return protocol.Message{}, false
	}
	if reply.Tag != want {
		h.log.Logf("helper: protocol error: expected %v, got %v", want, reply.Tag)
		telemetry.RecordProtocolError(context.Background(), "helper.request", reply.Tag.String(), want.String())
		h.dispatchTopLevel(context.Background(), reply)
		return protocol.Message{}, false
	}
	return reply, true
}

// promptConversation answers PAM-style prompts for exactly one Start
// request, reproducing the original conversation callback's exact switch
// (spec.md §4.1, §11): an echo-off prompt gets the password, an echo-on
// prompt gets the user name, each handed over exactly once and cleared
// immediately after. Under passwordless, only informational prompts are
// accepted — any real prompt fails the conversation.
type promptConversation struct {
	password         string
	passwordConsumed bool
	user             string
	userConsumed     bool
	passwordless     bool
	log              Logger
}

func (c *promptConversation) Prompt(ctx context.Context, echo bool, message string) (string, error) {
	if c.passwordless {
		return "", fmt.Errorf("helper: passwordless login received a real prompt: %q", message)
	}
	if !echo {
		if c.passwordConsumed {
			return "", fmt.Errorf("helper: password prompt raised twice")
		}
		c.passwordConsumed = true
		pw := c.password
		c.password = ""
		return pw, nil
	}
	if c.userConsumed {
		return "", fmt.Errorf("helper: user-name prompt raised twice")
	}
	c.userConsumed = true
	return c.user, nil
}

func (c *promptConversation) Info(ctx context.Context, isError bool, message string) {
	c.log.Logf("helper: provider info (error=%v): %s", isError, message)
}

var _ credential.Conversation = (*promptConversation)(nil)
