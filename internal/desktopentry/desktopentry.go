// Package desktopentry resolves a session identifier from the Start
// message into the command line to execute and the display name to
// report back to the login service.
//
// It mirrors the reference buildSessionName(): a session argument ending
// in ".desktop" names a file under the configured sessions directory
// whose "Exec=" line supplies the command, with the file's base name
// (extension stripped) used as the session's display name; anything else
// is treated as a literal command and doubles as its own display name.
package desktopentry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Descriptor is the resolved session: what to execute and what to call
// it in LoginSucceeded.
type Descriptor struct {
	Name    string // e.g. "plasma" — reported as SessionName
	Command string // e.g. "/usr/bin/startplasma-x11"
}

// Resolve resolves session (the Start message's Session field) against
// sessionsDir (for ".desktop" entries).
func Resolve(sessionsDir, session string) (Descriptor, error) {
	if !strings.HasSuffix(session, ".desktop") {
		return Descriptor{Name: session, Command: session}, nil
	}

	path := filepath.Join(sessionsDir, session)
	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("desktopentry: open %s: %w", path, err)
	}
	defer f.Close()

	var command string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Exec=") {
			command = strings.TrimPrefix(line, "Exec=")
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return Descriptor{}, fmt.Errorf("desktopentry: read %s: %w", path, err)
	}
	if command == "" {
		return Descriptor{}, fmt.Errorf("desktopentry: %s has no Exec= line", path)
	}

	name := strings.TrimSuffix(session, filepath.Ext(session))
	return Descriptor{Name: name, Command: command}, nil
}
