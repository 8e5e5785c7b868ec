// Package loginservice defines the contract the Session Broker uses to
// register sessions with the system login service. The real
// implementation lives outside the core (systemd-logind or an
// equivalent bus service); this package only specifies the boundary and
// offers a Fake spy for tests.
package loginservice

import "fmt"

// Service is the external login-service contract: register and
// unregister sessions, and resolve bus object paths for seats/sessions.
type Service interface {
	AddSession(sessionName, seatName, userName string) error
	RemoveSession(sessionName string) error
	SeatPath(seatName string) string
	SessionPath(sessionName string) string
}

// Fake is an in-memory Service for tests. It records every call so tests
// can assert registration parity (an Add/Remove pair per session name,
// never a bare Remove).
type Fake struct {
	Added   []string
	Removed []string
	active  map[string]bool
}

var _ Service = (*Fake)(nil)

// NewFake returns a ready-to-use Fake.
func NewFake() *Fake {
	return &Fake{active: make(map[string]bool)}
}

func (f *Fake) AddSession(sessionName, seatName, userName string) error {
	if f.active == nil {
		f.active = make(map[string]bool)
	}
	f.Added = append(f.Added, sessionName)
	f.active[sessionName] = true
	return nil
}

func (f *Fake) RemoveSession(sessionName string) error {
	if !f.active[sessionName] {
		return fmt.Errorf("loginservice: RemoveSession(%q) without a prior AddSession", sessionName)
	}
	f.Removed = append(f.Removed, sessionName)
	delete(f.active, sessionName)
	return nil
}

func (f *Fake) SeatPath(seatName string) string {
	return "/org/freedesktop/login1/seat/" + seatName
}

func (f *Fake) SessionPath(sessionName string) string {
	return "/org/freedesktop/login1/session/" + sessionName
}

// Noop is the Service a single-seat, no-bus deployment runs with: it
// accepts every Add/Remove without recording or validating anything, so
// a broker can be constructed and driven without a logind connection.
// Unlike Fake it keeps no call history and does not enforce
// registration parity — it is production wiring, not a test double.
type Noop struct{}

var _ Service = Noop{}

func (Noop) AddSession(sessionName, seatName, userName string) error { return nil }

func (Noop) RemoveSession(sessionName string) error { return nil }

func (Noop) SeatPath(seatName string) string { return "/org/freedesktop/login1/seat/" + seatName }

func (Noop) SessionPath(sessionName string) string {
	return "/org/freedesktop/login1/session/" + sessionName
}
