package display

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/gascity-labs/authbroker/internal/xauth"
)

// Local is the no-bus Display a single-seat deployment runs with: it
// names one local display, answers RequestEnv with a fixed environment
// snippet, and materializes the cookie file xauth.WriteCookie writes,
// chowning it to whoever owns the cookie's parent directory (the target
// user's home, which the Session Launcher created XAUTHORITY under)
// rather than requiring a uid/gid to be threaded through the Display
// contract itself.
type Local struct {
	DisplayName string
	Env         []string
}

var _ Display = (*Local)(nil)

// NewLocal returns a Local display named name.
func NewLocal(name string) *Local {
	return &Local{DisplayName: name}
}

func (l *Local) Name() string { return l.DisplayName }

func (l *Local) Environment(user string) []string { return l.Env }

func (l *Local) AddCookie(path string) error {
	uid, gid, err := ownerOf(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("display: resolve owner of %s: %w", filepath.Dir(path), err)
	}
	return xauth.WriteCookie(path, uid, gid)
}

// ownerOf returns the uid/gid that own dir, so a freshly created cookie
// file can be chowned to match the home directory it lives in.
func ownerOf(dir string) (uid, gid uint32, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, fmt.Errorf("display: %s: no syscall.Stat_t (unsupported platform)", dir)
	}
	return stat.Uid, stat.Gid, nil
}
