package lobby

import (
	"sync"
	"time"

	"github.com/barrage-gg/barrage/internal/models"
)

// Registry is the in-memory session store: code -> lobby, plus a secondary
// connection -> code index for O(1) "which lobby am I in" lookups. It holds
// no business rules; every mutator keeps the two maps consistent under one
// lock acquisition so no caller can observe a half-applied change.
type Registry struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby
	byConn  map[string]string
}

// NewRegistry returns an empty registry. Construct one per process (or per
// test) and inject it; there is no package-level instance.
func NewRegistry() *Registry {
	return &Registry{
		lobbies: make(map[string]*Lobby),
		byConn:  make(map[string]string),
	}
}

// Insert registers a freshly constructed lobby and indexes its sole member
// (the host). Fails with ErrDuplicateCode if the code is occupied and
// ErrAlreadyInLobby if the host connection is already indexed elsewhere.
func (r *Registry) Insert(l *Lobby) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lobbies[l.Code]; exists {
		return ErrDuplicateCode
	}
	if _, mapped := r.byConn[l.HostConnectionID]; mapped {
		return ErrAlreadyInLobby
	}
	r.lobbies[l.Code] = l
	r.byConn[l.HostConnectionID] = l.Code
	return nil
}

// Get returns the lobby for code, or ErrLobbyNotFound.
func (r *Registry) Get(code string) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[code]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return l, nil
}

// GetByConnection returns the lobby the connection belongs to, or
// ErrNotInLobby.
func (r *Registry) GetByConnection(connectionID string) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.byConn[connectionID]
	if !ok {
		return nil, ErrNotInLobby
	}
	l, ok := r.lobbies[code]
	if !ok {
		// Index says the connection is in a lobby that no longer exists;
		// heal the index rather than report a phantom membership.
		delete(r.byConn, connectionID)
		return nil, ErrNotInLobby
	}
	return l, nil
}

// Bind reserves the connection -> code mapping for a joiner. The check and
// the write are one atomic step, which is what enforces the global
// one-lobby-per-connection invariant under concurrent joins.
func (r *Registry) Bind(connectionID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, mapped := r.byConn[connectionID]; mapped {
		return ErrAlreadyInLobby
	}
	if _, exists := r.lobbies[code]; !exists {
		return ErrLobbyNotFound
	}
	r.byConn[connectionID] = code
	return nil
}

// Unbind drops a single connection's index entry. Used when a reserved join
// fails validation, and when a member leaves a lobby that stays alive.
func (r *Registry) Unbind(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, connectionID)
}

// Remove deletes the lobby and every member's index entry in the same
// step. Codes become reusable immediately after.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lobbies[code]; !ok {
		return
	}
	delete(r.lobbies, code)
	for conn, c := range r.byConn {
		if c == code {
			delete(r.byConn, conn)
		}
	}
}

// RemoveIfCurrent deletes the lobby only if this exact instance is still
// the one registered under its code, reporting whether it did. Callers hold
// l.Mu across their removal decision and this call, which closes the window
// where a concurrent join could slip a member into a lobby already judged
// empty, or where a swept code could have been reused by a fresh lobby.
func (r *Registry) RemoveIfCurrent(l *Lobby) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lobbies[l.Code] != l {
		return false
	}
	delete(r.lobbies, l.Code)
	for conn, c := range r.byConn {
		if c == l.Code {
			delete(r.byConn, conn)
		}
	}
	return true
}

// ListPublic returns discovery listings for public lobbies that are still
// waiting and have room.
func (r *Registry) ListPublic() []models.LobbyListing {
	r.mu.Lock()
	candidates := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		if !l.Private {
			candidates = append(candidates, l)
		}
	}
	r.mu.Unlock()

	listings := make([]models.LobbyListing, 0, len(candidates))
	for _, l := range candidates {
		l.Mu.Lock()
		if l.Status == StatusWaiting && len(l.Members) < l.MaxMembers {
			listings = append(listings, l.ListingUnsafe())
		}
		l.Mu.Unlock()
	}
	return listings
}

// SweepIdle removes lobbies created before the idle cutoff that are not in
// an active game, returning the evicted codes so the caller can unbind any
// straggling channels. Runs on a fixed background interval.
func (r *Registry) SweepIdle(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	candidates := make([]*Lobby, 0)
	for _, l := range r.lobbies {
		if l.CreatedAt.Before(cutoff) {
			candidates = append(candidates, l)
		}
	}
	r.mu.Unlock()

	evicted := make([]string, 0, len(candidates))
	for _, l := range candidates {
		l.Mu.Lock()
		removed := false
		if l.Status != StatusInProgress {
			l.CancelCountdownUnsafe()
			removed = r.RemoveIfCurrent(l)
		}
		l.Mu.Unlock()
		if removed {
			evicted = append(evicted, l.Code)
		}
	}
	return evicted
}

// Len reports the number of registered lobbies.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}
