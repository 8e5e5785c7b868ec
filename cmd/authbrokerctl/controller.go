package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/gascity-labs/authbroker/internal/audit"
	"github.com/gascity-labs/authbroker/internal/broker"
	"github.com/gascity-labs/authbroker/internal/config"
	"github.com/gascity-labs/authbroker/internal/display"
	"github.com/gascity-labs/authbroker/internal/fsys"
	"github.com/gascity-labs/authbroker/internal/helperenv"
	"github.com/gascity-labs/authbroker/internal/loginservice"
	"github.com/gascity-labs/authbroker/internal/telemetry"
)

// cmdContext returns the base context daemon commands run under.
func cmdContext() context.Context { return context.Background() }

// stderrLogger adapts an io.Writer to the broker.Logger / helper.Logger
// shape, matching the teacher's "accept an io.Writer, don't import a
// logging framework" style (SPEC_FULL.md §7).
type stderrLogger struct{ w io.Writer }

func (l stderrLogger) Logf(format string, args ...any) {
	fmt.Fprintf(l.w, format+"\n", args...) //nolint:errcheck // best-effort stderr
}

// lockPath, pidPath, sockPath derive the daemon's control files from its
// configured (or defaulted) PID file path.
func pidPath(cfg *config.Config) string {
	if cfg.Daemon.PIDFile != "" {
		return cfg.Daemon.PIDFile
	}
	return "/run/authbroker/authbrokerctl.pid"
}

func lockPath(cfg *config.Config) string { return pidPath(cfg) + ".lock" }
func sockPath(cfg *config.Config) string { return pidPath(cfg) + ".sock" }

// acquireControllerLock takes an exclusive, non-blocking flock so only
// one authbrokerctl daemon runs against a given config at a time.
func acquireControllerLock(cfg *config.Config) (*flock.Flock, error) {
	path := lockPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring controller lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("authbroker daemon already running (%s held)", path)
	}
	return lock, nil
}

// writePIDFile writes the current process's PID to cfg's PID file path.
func writePIDFile(cfg *config.Config) error {
	path := pidPath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func readPIDFile(cfg *config.Config) int {
	data, err := os.ReadFile(pidPath(cfg))
	if err != nil {
		return 0
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0
	}
	return pid
}

// seatRunner pairs one seat's broker with the resources it needs to
// shut down cleanly.
type seatRunner struct {
	seat config.Seat
	b    *broker.Broker
}

// controller owns every running seatRunner plus the shared audit
// recorder, and answers "stop"/"list" requests from the control socket.
type controller struct {
	mu    sync.Mutex
	seats map[string]*seatRunner
	rec   audit.Recorder
}

func newController() *controller {
	return &controller{seats: make(map[string]*seatRunner)}
}

func (c *controller) replace(seats map[string]*seatRunner, rec audit.Recorder) (old map[string]*seatRunner, oldRec audit.Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, oldRec = c.seats, c.rec
	c.seats = seats
	c.rec = rec
	return old, oldRec
}

func (c *controller) snapshot() []*broker.Broker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*broker.Broker, 0, len(c.seats))
	for _, r := range c.seats {
		out = append(out, r.b)
	}
	return out
}

func stopAll(seats map[string]*seatRunner, rec audit.Recorder, stderr io.Writer) {
	for _, r := range seats {
		if err := r.b.Stop(); err != nil {
			fmt.Fprintf(stderr, "authbrokerctl: stopping seat %s: %v\n", r.seat.Name, err) //nolint:errcheck // best-effort stderr
		}
	}
	if rec != nil {
		rec.Close() //nolint:errcheck // best-effort cleanup
	}
}

// buildSeats constructs one Broker per configured seat.
func buildSeats(ctx context.Context, cfg *config.Config, rec audit.Recorder, stderr io.Writer, log broker.Logger) (map[string]*seatRunner, error) {
	paths := cfg.Paths.EffectivePaths()
	seats := make(map[string]*seatRunner, len(cfg.Seats))
	for _, s := range cfg.Seats {
		if s.HelperPath == "" {
			return nil, fmt.Errorf("seat %q: helper_path is required", s.Name)
		}
		b, err := broker.New(ctx, s.HelperPath, s.Name,
			display.NewLocal(s.Name), loginservice.Noop{}, rec, stderr, log,
			seatEnv(s, paths))
		if err != nil {
			return nil, fmt.Errorf("seat %q: %w", s.Name, err)
		}
		seats[s.Name] = &seatRunner{seat: s, b: b}
	}
	return seats, nil
}

// seatEnv builds the environment authenticator-helper reads via
// internal/helperenv for one seat.
func seatEnv(s config.Seat, paths config.PathsConfig) []string {
	env := []string{
		helperenv.Seat + "=" + s.Name,
		helperenv.SessionsDir + "=" + s.SessionsDir,
		helperenv.SessionCommand + "=" + s.SessionCommand,
		helperenv.DefaultPath + "=" + s.DefaultPath,
		helperenv.PasswdFile + "=" + paths.PasswdFile,
		helperenv.ShellsFile + "=" + paths.ShellsFile,
		helperenv.ShadowFile + "=" + paths.ShadowFile,
	}
	if s.PAMService != "" {
		env = append(env, helperenv.PAMService+"="+s.PAMService)
	}
	if s.ShadowFallback {
		env = append(env, helperenv.ShadowFallback+"="+helperenv.BoolTrue)
	}
	if s.TestingMode {
		env = append(env, helperenv.TestingMode+"="+helperenv.BoolTrue)
	}
	return env
}

func openAudit(ctx context.Context, cfg *config.Config) (audit.Recorder, error) {
	if cfg.Audit.DSN == "" {
		return audit.NewNop(), nil
	}
	return audit.Open(ctx, cfg.Audit.DSN)
}

// debounceDelay is the coalesce window for config-directory fsnotify
// events, matching the teacher's vim/atomic-save-safe watch pattern.
var debounceDelay = 200 * time.Millisecond

// watchConfigFile watches the directory containing path (not path
// itself, so editors that replace-by-rename are still observed) and
// calls onChange after a debounce window following any event.
func watchConfigFile(path string, onChange func(), stderr io.Writer) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl: config watcher: %v (hot reload disabled)\n", err) //nolint:errcheck // best-effort stderr
		return func() {}
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		fmt.Fprintf(stderr, "authbrokerctl: config watcher: %v (hot reload disabled)\n", err) //nolint:errcheck // best-effort stderr
		watcher.Close() //nolint:errcheck // best-effort cleanup
		return func() {}
	}
	go func() {
		var debounce *time.Timer
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, onChange)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return func() { watcher.Close() } //nolint:errcheck // best-effort cleanup
}

// startControlSocket listens on a Unix socket for two one-line commands:
// "stop" (calls cancelFn) and "list" (writes one "seat\tsession\tuser"
// line per seat with an active session, then a blank line).
func startControlSocket(cfg *config.Config, ctrl *controller, cancelFn context.CancelFunc) (net.Listener, error) {
	path := sockPath(cfg)
	os.Remove(path) //nolint:errcheck // stale socket cleanup
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on control socket: %w", err)
	}
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go handleControlConn(conn, ctrl, cancelFn)
		}
	}()
	return lis, nil
}

func handleControlConn(conn net.Conn, ctrl *controller, cancelFn context.CancelFunc) {
	defer conn.Close() //nolint:errcheck // best-effort cleanup
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	switch scanner.Text() {
	case "stop":
		cancelFn()
		fmt.Fprintln(conn, "ok") //nolint:errcheck // best-effort ack
	case "list":
		for _, b := range ctrl.snapshot() {
			if name, user, ok := b.ActiveSession(); ok {
				fmt.Fprintf(conn, "%s\t%s\t%s\n", b.SeatName(), name, user) //nolint:errcheck // best-effort write
			}
		}
		fmt.Fprintln(conn) //nolint:errcheck // best-effort terminator
	}
}

// sendControlCommand dials the control socket and returns its reply
// lines, used by "daemon stop" and "session list" against an already
// running daemon.
func sendControlCommand(cfg *config.Config, cmd string) ([]string, error) {
	conn, err := net.Dial("unix", sockPath(cfg))
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck // best-effort cleanup

	if _, err := fmt.Fprintln(conn, cmd); err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// runController loads the config, spawns one broker per seat, serves the
// control socket, and blocks until a stop request or signal arrives,
// reloading seats whenever the config file changes.
func runController(ctx context.Context, cfgPath string, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(fsys.OSFS{}, cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	lock, err := acquireControllerLock(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer lock.Unlock() //nolint:errcheck // best-effort cleanup

	if err := writePIDFile(cfg); err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer os.Remove(pidPath(cfg)) //nolint:errcheck // best-effort cleanup

	shutdownTelemetry, err := telemetry.Init(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: telemetry: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	defer shutdownTelemetry(context.Background()) //nolint:errcheck // best-effort cleanup

	log := stderrLogger{stderr}
	ctrl := newController()

	rec, err := openAudit(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: audit: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	seats, err := buildSeats(ctx, cfg, rec, stderr, log)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: %v\n", err) //nolint:errcheck // best-effort stderr
		rec.Close() //nolint:errcheck // best-effort cleanup
		return 1
	}
	ctrl.replace(seats, rec)
	fmt.Fprintf(stdout, "authbroker daemon started (PID %d, %d seat(s))\n", os.Getpid(), len(seats)) //nolint:errcheck // best-effort stdout

	reload := func() {
		fmt.Fprintln(stderr, "authbrokerctl: config changed, reloading seats") //nolint:errcheck // best-effort stderr
		newCfg, err := config.Load(fsys.OSFS{}, cfgPath)
		if err != nil {
			fmt.Fprintf(stderr, "authbrokerctl: reload: %v\n", err) //nolint:errcheck // best-effort stderr
			return
		}
		if err := config.Validate(newCfg); err != nil {
			fmt.Fprintf(stderr, "authbrokerctl: reload: %v\n", err) //nolint:errcheck // best-effort stderr
			return
		}
		newRec, err := openAudit(ctx, newCfg)
		if err != nil {
			fmt.Fprintf(stderr, "authbrokerctl: reload: audit: %v\n", err) //nolint:errcheck // best-effort stderr
			return
		}
		newSeats, err := buildSeats(ctx, newCfg, newRec, stderr, log)
		if err != nil {
			fmt.Fprintf(stderr, "authbrokerctl: reload: %v\n", err) //nolint:errcheck // best-effort stderr
			newRec.Close() //nolint:errcheck // best-effort cleanup
			return
		}
		oldSeats, oldRec := ctrl.replace(newSeats, newRec)
		stopAll(oldSeats, oldRec, stderr)
		fmt.Fprintf(stderr, "authbrokerctl: reloaded, %d seat(s)\n", len(newSeats)) //nolint:errcheck // best-effort stderr
	}
	stopWatch := watchConfigFile(cfgPath, reload, stderr)
	defer stopWatch()

	lis, err := startControlSocket(cfg, ctrl, cancel)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: %v\n", err) //nolint:errcheck // best-effort stderr
		stopAll(ctrl.seats, ctrl.rec, stderr)
		return 1
	}
	defer lis.Close()             //nolint:errcheck // best-effort cleanup
	defer os.Remove(sockPath(cfg)) //nolint:errcheck // best-effort cleanup

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
	case <-ctx.Done():
	}

	finalSeats, finalRec := ctrl.replace(nil, nil)
	stopAll(finalSeats, finalRec, stderr)
	fmt.Fprintln(stdout, "authbroker daemon stopped") //nolint:errcheck // best-effort stdout
	return 0
}
