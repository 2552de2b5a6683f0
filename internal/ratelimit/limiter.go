// Package ratelimit provides per-connection, per-event-class sliding-window
// counters for the gateway. A rejected event is dropped before it reaches
// any coordinator.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a connection exhausts its budget for an
// event class within the current window.
var ErrRateLimited = errors.New("rate limit exceeded, slow down")

// Class buckets inbound events for budgeting purposes.
type Class string

const (
	ClassCreate   Class = "create"
	ClassJoin     Class = "join"
	ClassGameplay Class = "gameplay"
	ClassChat     Class = "chat"
	ClassDefault  Class = "default"
)

// Window is the budget period shared by all classes.
const Window = 60 * time.Second

var budgets = map[Class]int{
	ClassCreate:   5,
	ClassJoin:     10,
	ClassGameplay: 100,
	ClassChat:     30,
	ClassDefault:  30,
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter tracks (connection, class) windows. Construct one per process and
// inject it; there is no package-level instance.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]map[Class]*window

	// now is swappable in tests.
	now func() time.Time
}

// New returns an empty limiter.
func New() *Limiter {
	return &Limiter{
		entries: make(map[string]map[Class]*window),
		now:     time.Now,
	}
}

// Allow checks and consumes one unit of the connection's budget for the
// class. Returns ErrRateLimited when the budget is spent.
func (l *Limiter) Allow(connectionID string, c Class) error {
	limit, ok := budgets[c]
	if !ok {
		limit = budgets[ClassDefault]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byClass, ok := l.entries[connectionID]
	if !ok {
		byClass = make(map[Class]*window)
		l.entries[connectionID] = byClass
	}

	now := l.now()
	w, ok := byClass[c]
	if !ok {
		w = &window{}
		byClass[c] = w
	}
	if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(Window)
	}
	if w.count >= limit {
		return ErrRateLimited
	}
	w.count++
	return nil
}

// Purge drops every window belonging to a connection. Called on disconnect.
func (l *Limiter) Purge(connectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, connectionID)
}

// Sweep removes idle windows: expired and unused this window. Runs on a
// fixed background interval.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for conn, byClass := range l.entries {
		for c, w := range byClass {
			if w.count == 0 || !now.Before(w.resetAt) {
				delete(byClass, c)
			}
		}
		if len(byClass) == 0 {
			delete(l.entries, conn)
		}
	}
}

// Run sweeps on the given interval until stop is closed.
func (l *Limiter) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
