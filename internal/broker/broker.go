// Package broker implements the Session Broker: it owns the helper
// process, drives the framed channel to it, and mediates between the
// helper's requests and the rest of the daemon (the display, the login
// service, the seat). See spec.md §4.3.
package broker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/gascity-labs/authbroker/internal/audit"
	"github.com/gascity-labs/authbroker/internal/brokererr"
	"github.com/gascity-labs/authbroker/internal/display"
	"github.com/gascity-labs/authbroker/internal/loginservice"
	"github.com/gascity-labs/authbroker/internal/protocol"
	"github.com/gascity-labs/authbroker/internal/telemetry"
	"github.com/gascity-labs/authbroker/internal/wire"
)

// Outcome is delivered to Broker.Start's caller exactly once per call,
// matching the "one outcome per Start" property in spec.md §8.
type Outcome struct {
	Succeeded bool
	// SessionName and MappedUser are set only when Succeeded.
	SessionName string
	MappedUser  string
}

// Logger is the minimal structured-logging seam the broker writes
// diagnostics through; cmd/authbrokerctl supplies a stderr-backed
// implementation.
type Logger interface {
	Logf(format string, args ...any)
}

// nopLogger discards everything; used when no Logger is supplied.
type nopLogger struct{}

func (nopLogger) Logf(string, ...any) {}

// Broker owns one helper process for one seat's display. It is not safe
// for concurrent Start/Stop calls — spec.md §5 assumes a single
// event-driven loop per process — but the dispatch loop itself runs on
// its own goroutine so Start can block its caller until the matching
// outcome arrives.
type Broker struct {
	seatName string
	display  display.Display
	login    loginservice.Service
	audit    audit.Recorder

	cmd *exec.Cmd
	ch  *wire.Channel

	nextSessionID atomic.Int32

	mu         sync.Mutex
	pending    chan Outcome // set while a Start is outstanding; nil otherwise
	active     string       // session name of the currently registered session, "" if none
	activeUser string       // mapped user of the currently registered session

	log Logger
}

// New spawns helperPath with stdin/stdout wired to a fresh Channel and
// stderr forwarded line-by-line to stderrSink (may be nil to discard).
// env is appended to the helper's inherited environment (nil to inherit
// only); authbrokerctl uses it to pass the seat's credential/launcher
// settings to the authenticator-helper process.
func New(ctx context.Context, helperPath string, seatName string, disp display.Display, login loginservice.Service, rec audit.Recorder, stderrSink io.Writer, log Logger, env []string) (*Broker, error) {
	if log == nil {
		log = nopLogger{}
	}
	cmd := exec.CommandContext(ctx, helperPath)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, brokererr.New(brokererr.SpawnFailed, "helper_stdin_pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, brokererr.New(brokererr.SpawnFailed, "helper_stdout_pipe", err)
	}
	if stderrSink != nil {
		cmd.Stderr = stderrSink
	}
	if err := cmd.Start(); err != nil {
		return nil, brokererr.New(brokererr.SpawnFailed, "helper_start", err)
	}

	b := newBroker(seatName, disp, login, rec, log, pipePair{stdout, stdin})
	b.cmd = cmd
	return b, nil
}

// newBroker builds a Broker around an already-established channel
// endpoint and starts its dispatch loop. Exported New wraps this around
// a real spawned helper; tests wrap it around an in-memory pipe.
func newBroker(seatName string, disp display.Display, login loginservice.Service, rec audit.Recorder, log Logger, rw io.ReadWriter) *Broker {
	if log == nil {
		log = nopLogger{}
	}
	if rec == nil {
		rec = audit.NewNop()
	}
	b := &Broker{
		seatName: seatName,
		display:  disp,
		login:    login,
		audit:    rec,
		ch:       wire.New(rw),
		log:      log,
	}
	go b.dispatchLoop()
	return b
}

// pipePair adapts a separate reader and writer (stdout/stdin pipes) to
// the io.ReadWriter the framed Channel expects.
type pipePair struct {
	io.Reader
	io.Writer
}

// Start sends Start(user, session, password, passwordless) and blocks
// until the matching LoginSucceeded or LoginFailed arrives.
func (b *Broker) Start(user, session, password string, passwordless bool) (Outcome, error) {
	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return Outcome{}, brokererr.New(brokererr.ProtocolError, "start", fmt.Errorf("broker: a login is already in progress"))
	}
	outcome := make(chan Outcome, 1)
	b.pending = outcome
	b.mu.Unlock()

	telemetry.RecordLoginAttempt(context.Background(), b.seatName, user)

	if err := b.ch.Send(protocol.Message{
		Tag:          protocol.Start,
		User:         user,
		Session:      session,
		Password:     password,
		Passwordless: passwordless,
	}); err != nil {
		b.mu.Lock()
		b.pending = nil
		b.mu.Unlock()
		return Outcome{}, brokererr.New(brokererr.ChannelClosed, "start_send", err)
	}

	out := <-outcome
	return out, nil
}

// Stop sends End and unregisters the active session from the login
// service, if one is registered.
func (b *Broker) Stop() error {
	if err := b.ch.Send(protocol.Message{Tag: protocol.End}); err != nil {
		return brokererr.New(brokererr.ChannelClosed, "stop_send", err)
	}

	b.mu.Lock()
	name := b.active
	b.active = ""
	b.activeUser = ""
	b.mu.Unlock()

	if name == "" {
		return nil
	}
	if err := b.audit.SessionEnded(context.Background(), name); err != nil {
		b.log.Logf("broker: audit session ended %s: %v", name, err)
	}
	telemetry.RecordSessionClose(context.Background(), name, "broker_stop")
	return b.login.RemoveSession(name)
}

// dispatchLoop decodes one message at a time and routes it, for as long
// as the channel stays open. On EOF it treats any outstanding Start as a
// failure and any registered session as torn down, per spec.md §5's
// "broker observes pipe EOF" clause.
func (b *Broker) dispatchLoop() {
	for {
		msg, err := b.ch.Receive()
		if err != nil {
			b.handleChannelClosed()
			return
		}
		b.dispatch(msg)
	}
}

func (b *Broker) handleChannelClosed() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	name := b.active
	b.active = ""
	b.activeUser = ""
	b.mu.Unlock()

	if pending != nil {
		pending <- Outcome{Succeeded: false}
	}
	if name != "" {
		if err := b.audit.SessionEnded(context.Background(), name); err != nil {
			b.log.Logf("broker: audit session ended %s: %v", name, err)
		}
		telemetry.RecordSessionClose(context.Background(), name, "channel_closed")
		_ = b.login.RemoveSession(name)
	}
}

// dispatch implements the response handler table in spec.md §4.3. It is
// also the re-entry point for the out-of-order handling scenario: a
// helper request arriving while a different helper request is logically
// still outstanding feeds back in here rather than being dropped.
func (b *Broker) dispatch(msg protocol.Message) {
	switch msg.Tag {
	case protocol.RequestEnv:
		env := b.display.Environment(msg.User)
		b.reply(protocol.Message{Tag: protocol.Env, EnvList: env})

	case protocol.RequestSessionID:
		id := b.nextSessionID.Add(1)
		b.reply(protocol.Message{Tag: protocol.SessionID, ID: id})

	case protocol.RequestCookieLink:
		if err := b.display.AddCookie(msg.Path); err != nil {
			b.log.Logf("broker: add cookie %s: %v", msg.Path, err)
			return
		}
		b.reply(protocol.Message{Tag: protocol.CookieLink})

	case protocol.RequestDisplay:
		b.reply(protocol.Message{Tag: protocol.Display, DisplayName: b.display.Name()})

	case protocol.LoginFailed:
		telemetry.RecordLoginOutcome(context.Background(), b.seatName, "", false)
		b.completeStart(Outcome{Succeeded: false})

	case protocol.LoginSucceeded:
		b.mu.Lock()
		b.active = msg.SessionName
		b.activeUser = msg.User
		b.mu.Unlock()
		if err := b.login.AddSession(msg.SessionName, b.seatName, msg.User); err != nil {
			b.log.Logf("broker: AddSession(%s): %v", msg.SessionName, err)
		}
		if err := b.audit.SessionStarted(context.Background(), msg.SessionName, b.seatName, msg.User); err != nil {
			b.log.Logf("broker: audit session started %s: %v", msg.SessionName, err)
		}
		telemetry.RecordLoginOutcome(context.Background(), b.seatName, msg.User, true)
		telemetry.RecordSessionOpen(context.Background(), msg.SessionName, msg.User, nil)
		b.completeStart(Outcome{Succeeded: true, SessionName: msg.SessionName, MappedUser: msg.User})

	default:
		b.log.Logf("broker: dropping unexpected tag %v", msg.Tag)
	}
}

func (b *Broker) reply(msg protocol.Message) {
	if err := b.ch.Send(msg); err != nil {
		b.log.Logf("broker: reply %v: %v", msg.Tag, err)
	}
}

// SeatName returns the seat this broker was constructed for.
func (b *Broker) SeatName() string { return b.seatName }

// ActiveSession returns the currently registered session's name and
// mapped user, and whether a session is registered at all. Used by
// "authbrokerctl session list" to report live state.
func (b *Broker) ActiveSession() (name, user string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.activeUser, b.active != ""
}

func (b *Broker) completeStart(out Outcome) {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()
	if pending != nil {
		pending <- out
	}
}
