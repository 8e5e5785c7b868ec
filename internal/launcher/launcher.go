// Package launcher implements the Session Launcher: it turns an
// authenticated (user, session descriptor) pair into a running,
// privilege-dropped user process, coordinating with the broker over a
// Requester for the pieces only the broker can provide (a session id,
// the X authority cookie, the environment, the display name).
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/gascity-labs/authbroker/internal/brokererr"
	"github.com/gascity-labs/authbroker/internal/credential"
	"github.com/gascity-labs/authbroker/internal/desktopentry"
	"github.com/gascity-labs/authbroker/internal/identity"
)

// killGrace is the wait between SIGTERM and SIGKILL when a session is
// torn down, per SPEC_FULL.md §5.
const killGrace = 5 * time.Second

// Requester is everything the launcher asks the broker for while
// launching one session. Each method corresponds to one request/reply
// pair on the wire (RequestSessionID/SessionID, RequestCookieLink/
// CookieLink, RequestEnv/Env, RequestDisplay/Display).
type Requester interface {
	RequestSessionID(ctx context.Context) (int32, error)
	RequestCookieLink(ctx context.Context, path, user string) error
	RequestEnv(ctx context.Context, user string) ([]string, error)
	RequestDisplay(ctx context.Context) (string, error)
}

// Config carries the per-seat settings the launcher needs that do not
// come from the broker: where to find .desktop files, the program that
// wraps the resolved command, the default PATH, passwd/shells file
// locations, and a testing-mode escape hatch that skips the privilege
// transition (for tests only, per spec.md §6).
type Config struct {
	SessionsDir    string
	SessionCommand string
	DefaultPath    string
	PasswdFile     string
	ShellsFile     string
	TestingMode    bool
}

// Result is what a successful Launch returns: the session name to report
// in LoginSucceeded and a handle to wait on the child.
type Result struct {
	SessionName string
	MappedUser  string
	Wait        func() error // blocks until the child process exits
	process     *os.Process
}

// Launch runs the algorithm in spec.md §4.2: resolve the session
// descriptor and the user identity, ask the broker for a session id and
// a cookie file, compose the environment, fork under the target
// identity, and exec the session command.
func Launch(ctx context.Context, req credential.Request, provider credential.Provider, reqr Requester, cfg Config) (Result, error) {
	desc, err := desktopentry.Resolve(cfg.SessionsDir, req.Session)
	if err != nil || desc.Command == "" {
		return Result{}, brokererr.New(brokererr.ConfigMissing, "resolve_session", err)
	}

	mappedUser, err := provider.MappedUser(ctx)
	if err != nil {
		return Result{}, brokererr.New(brokererr.ProviderError, "mapped_user", err)
	}

	ident, err := identity.Lookup(cfg.PasswdFile, cfg.ShellsFile, mappedUser)
	if err != nil {
		return Result{}, brokererr.New(brokererr.UserUnknown, "lookup_identity", err)
	}

	id, err := reqr.RequestSessionID(ctx)
	if err != nil {
		return Result{}, brokererr.New(brokererr.ProtocolError, "request_session_id", err)
	}
	sessionName := fmt.Sprintf("Session%d", id)

	cookiePath := ident.XAuthorityPath()
	if err := reqr.RequestCookieLink(ctx, cookiePath, ident.Name); err != nil {
		return Result{}, brokererr.New(brokererr.ProviderError, "request_cookie_link", err)
	}

	env, err := composeEnvironment(ctx, reqr, provider, ident, cookiePath, desc.Name, req.Display, cfg.DefaultPath)
	if err != nil {
		return Result{}, err
	}

	cmd := buildCommand(cfg.SessionCommand, desc.Command, ident, env, cfg.TestingMode)
	cmd.Stderr, err = os.OpenFile(ident.XSessionErrorsPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return Result{}, brokererr.New(brokererr.SpawnFailed, "open_xsession_errors", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, brokererr.New(brokererr.SpawnFailed, "exec_session", err)
	}

	if err := provider.ReinitializeCredentials(ctx); err != nil {
		return Result{}, err
	}

	return Result{
		SessionName: sessionName,
		MappedUser:  ident.Name,
		Wait:        cmd.Wait,
		process:     cmd.Process,
	}, nil
}

// Terminate sends SIGTERM to the session process and escalates to
// SIGKILL if it has not exited within killGrace, mirroring
// terminateProc's SIGTERM→wait→SIGKILL sequence. done must be closed
// once the process has actually exited (typically by the caller's own
// goroutine watching Result.Wait).
func (r Result) Terminate(done <-chan struct{}) {
	if r.process == nil {
		return
	}
	_ = r.process.Signal(syscall.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(killGrace):
	}

	_ = r.process.Kill()
}

// composeEnvironment seeds the environment from the provider (PAM
// modules or the shadow backend's accumulated PutEnv calls), then
// overwrites/appends the fields the launcher itself owns, then feeds the
// combined view back to the provider so any subsequent provider call
// sees the same environment — matching setupEnvironment()'s
// env.insert(pam->getEnv()); pam->putEnv(env) round trip. displayName was
// already fetched once, before Authenticate, so the PAM TTY/XDISPLAY
// items and this session's DISPLAY variable agree on the same value.
func composeEnvironment(ctx context.Context, reqr Requester, provider credential.Provider, ident identity.UserIdentity, cookiePath, sessionDisplayName, displayName, defaultPath string) ([]string, error) {
	providerEnv, err := provider.Env(ctx)
	if err != nil {
		return nil, err
	}

	brokerEnv, err := reqr.RequestEnv(ctx, ident.Name)
	if err != nil {
		return nil, brokererr.New(brokererr.ProtocolError, "request_env", err)
	}

	merged := map[string]string{}
	for _, kv := range providerEnv {
		setEnvKV(merged, kv)
	}
	for _, kv := range brokerEnv {
		setEnvKV(merged, kv)
	}

	merged["HOME"] = ident.Home
	merged["PWD"] = ident.Home
	merged["SHELL"] = ident.Shell
	merged["USER"] = ident.Name
	merged["LOGNAME"] = ident.Name
	merged["PATH"] = defaultPath
	merged["DISPLAY"] = displayName
	merged["XAUTHORITY"] = cookiePath
	merged["DESKTOP_SESSION"] = sessionDisplayName
	merged["GDMSESSION"] = sessionDisplayName

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		entry := k + "=" + v
		env = append(env, entry)
		if err := provider.PutEnv(ctx, entry); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func setEnvKV(m map[string]string, kv string) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			m[kv[:i]] = kv[i+1:]
			return
		}
	}
}

// buildCommand constructs the exec.Cmd for the session process. The
// privilege-dropping syscalls (initgroups, setsid, setgid, setuid) are
// expressed through SysProcAttr rather than a raw fork: the Go runtime
// is multi-threaded, so an explicit syscall.Fork in application code is
// unsafe, and os/exec already performs fork+exec atomically in the
// child before any Go code runs there. chdir is passed as cmd.Dir,
// applied by the same child-setup path. XDG_SEAT/XDG_SEAT_PATH/
// XDG_SESSION_PATH/XDG_VTNR are seat/session-bus concerns outside this
// package's contract (see internal/seat, internal/loginservice) and are
// expected to already be present in env when a multi-seat deployment
// needs them.
func buildCommand(sessionCommand, resolvedCommand string, ident identity.UserIdentity, env []string, testingMode bool) *exec.Cmd {
	cmd := exec.Command(sessionCommand, resolvedCommand)
	cmd.Env = env
	cmd.Dir = ident.Home

	if testingMode {
		return cmd
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid:    ident.UID,
			Gid:    ident.GID,
			Groups: supplementaryGroups(ident.Name),
		},
		Setsid: true,
	}
	return cmd
}

// supplementaryGroups resolves the full supplementary-group list for
// name, the way initgroups(3) would, so SysProcAttr.Credential.Groups
// carries the same membership a real initgroups call would install.
// Resolution failure is not fatal here — it degrades to "no
// supplementary groups" rather than aborting the launch; the exec call
// itself still runs under the correct uid/gid.
func supplementaryGroups(name string) []uint32 {
	u, err := user.Lookup(name)
	if err != nil {
		return nil
	}
	gidStrs, err := u.GroupIds()
	if err != nil {
		return nil
	}
	groups := make([]uint32, 0, len(gidStrs))
	for _, s := range gidStrs {
		gid, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			continue
		}
		groups = append(groups, uint32(gid))
	}
	return groups
}
