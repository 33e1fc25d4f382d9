package scraper

import (
	"fmt"

	"github.com/aluiziolira/citybike-scraper/models"
)

// State is the lifecycle position of a scrape run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is published after every change to a run: once when it starts, once
// per matched network, and once when it completes or fails.
type Event struct {
	State   State                   `json:"state"`
	Country string                  `json:"country"`
	Rows    []models.NetworkSummary `json:"rows"`
	Scanned int                     `json:"scanned"`
	Total   int                     `json:"total"`
	Err     error                   `json:"-"`
	Error   string                  `json:"error,omitempty"`
}

// Fraction is Scanned/Total clamped to [0, 1]. A completed run is always 1.
func (e Event) Fraction() float64 {
	if e.State == StateCompleted {
		return 1
	}
	if e.Total <= 0 {
		return 0
	}
	f := float64(e.Scanned) / float64(e.Total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Observer receives run events. Publish is called synchronously from the
// run; a slow observer slows the run.
type Observer interface {
	Publish(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Publish calls f(e).
func (f ObserverFunc) Publish(e Event) {
	f(e)
}

type nopObserver struct{}

func (nopObserver) Publish(Event) {}
