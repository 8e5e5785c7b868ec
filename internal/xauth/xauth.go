// Package xauth creates and owns the per-session X authority cookie
// file the broker materializes in response to RequestCookieLink.
package xauth

import (
	"crypto/rand"
	"fmt"
	"os"
)

// cookieBytes is the size of the random cookie value written to the
// authority file.
const cookieBytes = 16

// WriteCookie creates (or truncates) path with a freshly generated
// random cookie and chowns it to uid/gid, so only the target user can
// read it once privileges are dropped in the session child.
func WriteCookie(path string, uid, gid uint32) error {
	cookie := make([]byte, cookieBytes)
	if _, err := rand.Read(cookie); err != nil {
		return fmt.Errorf("xauth: generate cookie: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("xauth: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(cookie); err != nil {
		return fmt.Errorf("xauth: write %s: %w", path, err)
	}
	if err := os.Chown(path, int(uid), int(gid)); err != nil {
		return fmt.Errorf("xauth: chown %s: %w", path, err)
	}
	return nil
}
