// Package seat defines the external seat-watcher contract: a source of
// "seat became graphical" / "seat no longer graphical" events keyed by
// seat name. Seat and display discovery are out of scope for the core
// (see SPEC_FULL.md §1); this package only fixes the boundary the broker
// depends on.
package seat

// Event reports a seat's graphical-readiness transition.
type Event struct {
	SeatName  string
	Graphical bool
}

// Watcher is the external seat-discovery contract.
type Watcher interface {
	// Events returns a channel of seat transitions. The channel is closed
	// when the watcher is stopped.
	Events() <-chan Event
	// Stop releases the watcher's resources.
	Stop()
}
