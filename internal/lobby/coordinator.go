package lobby

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/barrage-gg/barrage/internal/models"
)

// maxCodeAttempts bounds the duplicate-code retry loop. With a 32-character
// alphabet and 6 positions a collision streak this long means the registry
// is effectively exhausted.
const maxCodeAttempts = 100

// CreateOptions carries the host's requested shared config.
type CreateOptions struct {
	GameMode   string
	MapType    string
	MaxPlayers int
	Private    bool
}

// JoinResult is what the gateway needs to emit lobby-joined/player-joined.
type JoinResult struct {
	Lobby    *Lobby
	Player   models.Player
	Snapshot models.LobbySnapshot
}

// LeaveResult describes the outcome of a leave or a grace-window removal.
// Happened is false when the connection was not mapped to any lobby, which
// is a valid no-op rather than an error.
type LeaveResult struct {
	Happened bool
	Code     string
	Removed  models.Player
	NewHost  *models.Player
	Deleted  bool
	Lobby    *Lobby // nil when Deleted
	Snapshot models.LobbySnapshot
}

// DisconnectResult describes an ungraceful drop: the player is flagged
// not-connected and a delayed removal has been scheduled.
type DisconnectResult struct {
	Happened bool
	Code     string
	Player   models.Player
	Snapshot models.LobbySnapshot
}

// Coordinator enforces the join/leave/host-transfer/disconnect rules against
// the registry. It performs no I/O: operations return the data the gateway
// needs for its broadcasts. The one exception is the disconnect grace
// window, whose delayed removal reports through OnPlayerRemoved.
type Coordinator struct {
	reg    *Registry
	logger *logrus.Logger
	grace  time.Duration

	// OnPlayerRemoved fires when a disconnected player's grace window
	// elapses and the delayed removal executes. Assigned by the gateway so
	// the resulting player-left/lobby-updated broadcasts still happen.
	OnPlayerRemoved func(LeaveResult)

	mu      sync.Mutex
	reapers map[string]*time.Timer
}

// NewCoordinator wires a coordinator to its registry. grace is how long a
// dropped player survives before the delayed removal runs.
func NewCoordinator(reg *Registry, logger *logrus.Logger, grace time.Duration) *Coordinator {
	return &Coordinator{
		reg:     reg,
		logger:  logger,
		grace:   grace,
		reapers: make(map[string]*time.Timer),
	}
}

// Create validates the username, generates a unique code and registers a
// lobby with the creator as sole member and host.
func (c *Coordinator) Create(connectionID, username string, opts CreateOptions) (*Lobby, error) {
	if !ValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if opts.GameMode != "" && !ValidGameMode(opts.GameMode) {
		return nil, ErrInvalidGameMode
	}
	if opts.MapType != "" && !ValidMapType(opts.MapType) {
		return nil, ErrInvalidMapType
	}
	if opts.GameMode == "" {
		opts.GameMode = "deathmatch"
	}
	if opts.MapType == "" {
		opts.MapType = "grass"
	}

	host := &models.Player{
		ConnectionID: connectionID,
		Username:     username,
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := GenerateCode()
		l := NewLobby(code, host, opts.GameMode, opts.MapType, ClampMaxPlayers(opts.MaxPlayers), opts.Private)
		err := c.reg.Insert(l)
		if err == nil {
			c.logger.WithFields(logrus.Fields{
				"lobby": code,
				"host":  connectionID,
			}).Info("lobby created")
			return l, nil
		}
		if err == ErrDuplicateCode {
			continue
		}
		return nil, err
	}
	return nil, ErrDuplicateCode
}

// Join appends a new player to the lobby identified by code. The
// connection -> code reservation is made first so a connection can never
// end up in two lobbies, then membership rules are checked under the
// aggregate's lock; any failure rolls the reservation back.
func (c *Coordinator) Join(code, connectionID, username string) (JoinResult, error) {
	if !ValidCode(code) {
		return JoinResult{}, ErrInvalidLobbyCode
	}
	if !ValidUsername(username) {
		return JoinResult{}, ErrInvalidUsername
	}

	if err := c.reg.Bind(connectionID, code); err != nil {
		return JoinResult{}, err
	}
	l, err := c.reg.Get(code)
	if err != nil {
		c.reg.Unbind(connectionID)
		return JoinResult{}, ErrLobbyNotFound
	}

	l.Mu.Lock()
	// The lobby may have been deleted (and its code even reused) between the
	// reservation and here; confirm we locked the registered instance.
	if cur, getErr := c.reg.Get(code); getErr != nil || cur != l {
		l.Mu.Unlock()
		c.reg.Unbind(connectionID)
		return JoinResult{}, ErrLobbyNotFound
	}
	if l.Status != StatusWaiting {
		l.Mu.Unlock()
		c.reg.Unbind(connectionID)
		return JoinResult{}, ErrGameInProgress
	}
	if len(l.Members) >= l.MaxMembers {
		l.Mu.Unlock()
		c.reg.Unbind(connectionID)
		return JoinResult{}, ErrLobbyFull
	}

	p := &models.Player{
		ConnectionID: connectionID,
		Username:     username,
		Connected:    true,
	}
	l.Members = append(l.Members, p)
	joined := *p
	snap := l.SnapshotUnsafe()
	l.Mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"lobby":    code,
		"player":   connectionID,
		"username": username,
	}).Info("player joined lobby")

	return JoinResult{Lobby: l, Player: joined, Snapshot: snap}, nil
}

// Leave removes the player from their lobby. Host authority transfers to
// the earliest-joined remaining member; an emptied lobby is removed from
// the registry in the same operation. Calling Leave for an unmapped
// connection is a no-op, not an error.
func (c *Coordinator) Leave(connectionID string) LeaveResult {
	c.stopReaper(connectionID)

	l, err := c.reg.GetByConnection(connectionID)
	if err != nil {
		return LeaveResult{}
	}

	l.Mu.Lock()
	removed := l.removeMemberUnsafe(connectionID)
	if removed == nil {
		l.Mu.Unlock()
		c.reg.Unbind(connectionID)
		return LeaveResult{}
	}

	res := LeaveResult{
		Happened: true,
		Code:     l.Code,
		Removed:  *removed,
	}

	if len(l.Members) == 0 {
		l.CancelCountdownUnsafe()
		res.Deleted = true
		// Removal happens under l.Mu so a concurrent join cannot pass its
		// registered-instance re-check after the lobby was judged empty.
		c.reg.RemoveIfCurrent(l)
		l.Mu.Unlock()
		c.logger.WithField("lobby", res.Code).Info("lobby emptied and removed")
		return res
	}

	if removed.IsHost {
		next := l.Members[0]
		next.IsHost = true
		next.IsReady = true
		l.HostConnectionID = next.ConnectionID
		hostCopy := *next
		res.NewHost = &hostCopy
	}
	res.Lobby = l
	res.Snapshot = l.SnapshotUnsafe()
	l.Mu.Unlock()

	c.reg.Unbind(connectionID)
	return res
}

// UpdateReady sets a non-host member's ready flag. The host's readiness is
// definitional and attempts to toggle it are ignored.
func (c *Coordinator) UpdateReady(connectionID string, isReady bool) (models.LobbySnapshot, error) {
	l, err := c.reg.GetByConnection(connectionID)
	if err != nil {
		return models.LobbySnapshot{}, err
	}

	l.Mu.Lock()
	defer l.Mu.Unlock()
	p := l.MemberUnsafe(connectionID)
	if p == nil {
		return models.LobbySnapshot{}, ErrNotInLobby
	}
	if l.Status != StatusWaiting {
		return models.LobbySnapshot{}, ErrGameInProgress
	}
	if !p.IsHost {
		p.IsReady = isReady
	}
	return l.SnapshotUnsafe(), nil
}

// UpdateTankClass records the member's tank selection.
func (c *Coordinator) UpdateTankClass(connectionID, class string) (models.LobbySnapshot, error) {
	if !ValidTankClass(class) {
		return models.LobbySnapshot{}, ErrInvalidTankClass
	}
	l, err := c.reg.GetByConnection(connectionID)
	if err != nil {
		return models.LobbySnapshot{}, err
	}

	l.Mu.Lock()
	defer l.Mu.Unlock()
	p := l.MemberUnsafe(connectionID)
	if p == nil {
		return models.LobbySnapshot{}, ErrNotInLobby
	}
	if l.Status != StatusWaiting {
		return models.LobbySnapshot{}, ErrGameInProgress
	}
	p.TankClass = class
	return l.SnapshotUnsafe(), nil
}

// ChangeGameMode updates the shared config. Host only.
func (c *Coordinator) ChangeGameMode(connectionID, mode string) (models.LobbySnapshot, error) {
	if !ValidGameMode(mode) {
		return models.LobbySnapshot{}, ErrInvalidGameMode
	}
	return c.changeConfig(connectionID, func(l *Lobby) { l.GameMode = mode })
}

// ChangeMapType updates the shared config. Host only.
func (c *Coordinator) ChangeMapType(connectionID, mt string) (models.LobbySnapshot, error) {
	if !ValidMapType(mt) {
		return models.LobbySnapshot{}, ErrInvalidMapType
	}
	return c.changeConfig(connectionID, func(l *Lobby) { l.MapType = mt })
}

func (c *Coordinator) changeConfig(connectionID string, apply func(*Lobby)) (models.LobbySnapshot, error) {
	l, err := c.reg.GetByConnection(connectionID)
	if err != nil {
		return models.LobbySnapshot{}, err
	}

	l.Mu.Lock()
	defer l.Mu.Unlock()
	p := l.MemberUnsafe(connectionID)
	if p == nil {
		return models.LobbySnapshot{}, ErrNotInLobby
	}
	if !p.IsHost {
		return models.LobbySnapshot{}, ErrNotHost
	}
	if l.Status != StatusWaiting {
		return models.LobbySnapshot{}, ErrGameInProgress
	}
	apply(l)
	return l.SnapshotUnsafe(), nil
}

// Disconnect flags the player as dropped and schedules the delayed removal.
// There is no session resumption: a fresh connection is always a new join,
// so the reaper fires unless an explicit Leave got there first.
func (c *Coordinator) Disconnect(connectionID string) DisconnectResult {
	l, err := c.reg.GetByConnection(connectionID)
	if err != nil {
		return DisconnectResult{}
	}

	l.Mu.Lock()
	p := l.MemberUnsafe(connectionID)
	if p == nil {
		l.Mu.Unlock()
		return DisconnectResult{}
	}
	p.Connected = false
	res := DisconnectResult{
		Happened: true,
		Code:     l.Code,
		Player:   *p,
		Snapshot: l.SnapshotUnsafe(),
	}
	l.Mu.Unlock()

	c.mu.Lock()
	if old, ok := c.reapers[connectionID]; ok {
		old.Stop()
	}
	c.reapers[connectionID] = time.AfterFunc(c.grace, func() {
		c.stopReaper(connectionID)
		removed := c.Leave(connectionID)
		if removed.Happened {
			c.logger.WithFields(logrus.Fields{
				"lobby":  removed.Code,
				"player": connectionID,
			}).Info("disconnected player removed after grace window")
			if c.OnPlayerRemoved != nil {
				c.OnPlayerRemoved(removed)
			}
		}
	})
	c.mu.Unlock()

	return res
}

// Close stops all pending grace reapers. Called on process shutdown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.reapers {
		t.Stop()
		delete(c.reapers, id)
	}
}

func (c *Coordinator) stopReaper(connectionID string) {
	c.mu.Lock()
	if t, ok := c.reapers[connectionID]; ok {
		t.Stop()
		delete(c.reapers, connectionID)
	}
	c.mu.Unlock()
}
