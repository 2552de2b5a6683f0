package lobby

import (
	"sync"
	"time"

	"github.com/barrage-gg/barrage/internal/models"
)

// Status is the lobby's lifecycle phase. Progression is forward-only except
// for the completed -> waiting reset between rounds.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusStarting   Status = "starting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Lobby is the party aggregate: membership, host designation, shared config
// and start state. All mutation goes through the Coordinator and the
// StartProtocol; handlers never write fields directly. Mu guards every
// field below it.
type Lobby struct {
	Code       string
	GameMode   string
	MapType    string
	MaxMembers int
	Private    bool
	CreatedAt  time.Time

	Mu               sync.Mutex
	HostConnectionID string
	Members          []*models.Player // join order; host is first at creation
	Status           Status
	StartedAt        time.Time

	// Countdown task state. The countdown is owned by the lobby so that
	// deleting the lobby mid-countdown deterministically cancels it instead
	// of leaving a timer firing against deleted state.
	countdownGen   int
	countdownTimer *time.Timer
}

// NewLobby builds a lobby with the creator as sole member and host.
func NewLobby(code string, host *models.Player, gameMode, mapType string, maxMembers int, private bool) *Lobby {
	host.IsHost = true
	host.IsReady = true
	host.Connected = true
	return &Lobby{
		Code:             code,
		GameMode:         gameMode,
		MapType:          mapType,
		MaxMembers:       maxMembers,
		Private:          private,
		CreatedAt:        time.Now(),
		HostConnectionID: host.ConnectionID,
		Members:          []*models.Player{host},
		Status:           StatusWaiting,
	}
}

// MemberUnsafe returns the member with the given connection id, or nil.
// Assumes Mu is held.
func (l *Lobby) MemberUnsafe(connectionID string) *models.Player {
	for _, p := range l.Members {
		if p.ConnectionID == connectionID {
			return p
		}
	}
	return nil
}

// removeMemberUnsafe drops the member from the ordered slice, preserving
// join order of the remainder. Returns the removed player, or nil.
// Assumes Mu is held.
func (l *Lobby) removeMemberUnsafe(connectionID string) *models.Player {
	for i, p := range l.Members {
		if p.ConnectionID == connectionID {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			return p
		}
	}
	return nil
}

// AllReadyUnsafe reports whether every member is effectively ready.
// Assumes Mu is held.
func (l *Lobby) AllReadyUnsafe() bool {
	for _, p := range l.Members {
		if !p.EffectiveReady() {
			return false
		}
	}
	return true
}

// AllClassesSelectedUnsafe reports whether every member, host included, has
// picked a tank class. Assumes Mu is held.
func (l *Lobby) AllClassesSelectedUnsafe() bool {
	for _, p := range l.Members {
		if p.TankClass == "" {
			return false
		}
	}
	return true
}

// SnapshotUnsafe builds the client-facing read model. Assumes Mu is held.
func (l *Lobby) SnapshotUnsafe() models.LobbySnapshot {
	players := make([]models.Player, len(l.Members))
	for i, p := range l.Members {
		players[i] = *p
	}
	return models.LobbySnapshot{
		Code:       l.Code,
		HostID:     l.HostConnectionID,
		Players:    players,
		GameMode:   l.GameMode,
		MapType:    l.MapType,
		Status:     string(l.Status),
		MaxPlayers: l.MaxMembers,
		IsPrivate:  l.Private,
		CreatedAt:  l.CreatedAt,
	}
}

// Snapshot builds the client-facing read model. Acquires the lock.
func (l *Lobby) Snapshot() models.LobbySnapshot {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.SnapshotUnsafe()
}

// ListingUnsafe builds the discovery-list view. Assumes Mu is held.
func (l *Lobby) ListingUnsafe() models.LobbyListing {
	return models.LobbyListing{
		Code:        l.Code,
		GameMode:    l.GameMode,
		MapType:     l.MapType,
		PlayerCount: len(l.Members),
		MaxPlayers:  l.MaxMembers,
	}
}

// StartCountdownUnsafe schedules a tick chain: onTick(remaining) fires once
// per interval for remaining = from-1 .. 1, then onDone. Callbacks run
// without the lobby lock held; stale timers from a canceled countdown are
// fenced by the generation counter. Assumes Mu is held.
func (l *Lobby) StartCountdownUnsafe(from int, interval time.Duration, onTick func(remaining int), onDone func()) {
	l.countdownGen++
	gen := l.countdownGen
	remaining := from

	var schedule func()
	schedule = func() {
		l.countdownTimer = time.AfterFunc(interval, func() {
			l.Mu.Lock()
			if l.countdownGen != gen {
				l.Mu.Unlock()
				return
			}
			remaining--
			done := remaining <= 0
			if !done {
				schedule()
			} else {
				l.countdownTimer = nil
			}
			l.Mu.Unlock()

			if done {
				onDone()
			} else {
				onTick(remaining)
			}
		})
	}
	schedule()
}

// CancelCountdownUnsafe stops any pending countdown tick and fences stale
// timer callbacks. Assumes Mu is held.
func (l *Lobby) CancelCountdownUnsafe() {
	l.countdownGen++
	if l.countdownTimer != nil {
		l.countdownTimer.Stop()
		l.countdownTimer = nil
	}
}
