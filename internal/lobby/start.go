package lobby

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/barrage-gg/barrage/internal/game"
	"github.com/barrage-gg/barrage/internal/models"
)

// Emitter is the broadcast surface the start protocol needs. The gateway
// implements it; the protocol itself never touches a socket.
type Emitter interface {
	BroadcastToLobby(code, event string, payload map[string]interface{})
}

// ResultSink receives finished-round records. The Redis history publisher
// implements it; tests substitute a recorder. May be nil.
type ResultSink interface {
	PublishMatchResult(ctx context.Context, res models.MatchResult) error
}

// StartProtocol drives the lobby's session lifecycle: the gated transition
// from waiting to starting, the server-authoritative countdown, the flip to
// in_progress, and the end-of-round completion back to waiting. Once a
// countdown is running no client input can restart or cancel it; only
// membership collapse (lobby deletion) aborts it.
type StartProtocol struct {
	reg     *Registry
	emit    Emitter
	results ResultSink
	logger  *logrus.Logger

	// CountdownFrom and TickInterval are fixed in production (3 ticks, one
	// second apart); tests shrink the interval.
	CountdownFrom int
	TickInterval  time.Duration
}

// NewStartProtocol wires the protocol to its collaborators. results may be
// nil when no history sink is configured.
func NewStartProtocol(reg *Registry, emit Emitter, results ResultSink, logger *logrus.Logger) *StartProtocol {
	return &StartProtocol{
		reg:           reg,
		emit:          emit,
		results:       results,
		logger:        logger,
		CountdownFrom: 3,
		TickInterval:  time.Second,
	}
}

// RequestStart validates start gating and, on success, moves the lobby to
// starting and kicks off the countdown. Host only; every member must be
// effectively ready and have a tank class.
func (s *StartProtocol) RequestStart(connectionID string) error {
	l, err := s.reg.GetByConnection(connectionID)
	if err != nil {
		return err
	}

	l.Mu.Lock()
	p := l.MemberUnsafe(connectionID)
	if p == nil {
		l.Mu.Unlock()
		return ErrNotInLobby
	}
	if !p.IsHost {
		l.Mu.Unlock()
		return ErrNotHost
	}
	if l.Status != StatusWaiting {
		l.Mu.Unlock()
		return ErrGameInProgress
	}
	if !l.AllReadyUnsafe() {
		l.Mu.Unlock()
		return ErrNotAllReady
	}
	if !l.AllClassesSelectedUnsafe() {
		l.Mu.Unlock()
		return ErrNotAllClassesSelected
	}

	l.Status = StatusStarting
	l.StartedAt = time.Now()
	snap := l.SnapshotUnsafe()
	from := s.CountdownFrom
	l.StartCountdownUnsafe(from, s.TickInterval,
		func(remaining int) {
			s.emit.BroadcastToLobby(l.Code, "game-countdown", map[string]interface{}{
				"countdown": remaining,
			})
		},
		func() { s.launch(l) },
	)
	l.Mu.Unlock()

	s.logger.WithField("lobby", l.Code).Info("game starting")
	s.emit.BroadcastToLobby(l.Code, "game-starting", map[string]interface{}{
		"lobby":     snap,
		"countdown": from,
	})
	s.emit.BroadcastToLobby(l.Code, "game-countdown", map[string]interface{}{
		"countdown": from,
	})
	return nil
}

// launch fires when the countdown reaches zero: flip to in_progress, seed
// the in-game state from the current membership and broadcast the initial
// snapshot.
func (s *StartProtocol) launch(l *Lobby) {
	l.Mu.Lock()
	if l.Status != StatusStarting {
		l.Mu.Unlock()
		return
	}
	l.Status = StatusInProgress
	game.InitRound(l.Members, l.MapType)
	snap := l.SnapshotUnsafe()
	state := game.Snapshot(l.Members, l.GameMode, l.MapType)
	l.Mu.Unlock()

	s.logger.WithField("lobby", l.Code).Info("game started")
	s.emit.BroadcastToLobby(l.Code, "game-started", map[string]interface{}{
		"lobby":     snap,
		"gameState": state,
	})
}

// completeRound runs the end-of-round transition. Assumes the caller holds
// no locks. Broadcasts results, queues them for the historian, resets
// readiness and returns the lobby to waiting for the next round.
func (s *StartProtocol) completeRound(l *Lobby) {
	l.Mu.Lock()
	if l.Status != StatusInProgress {
		l.Mu.Unlock()
		return
	}
	l.Status = StatusCompleted

	winner := game.Winner(l.Members)
	result := models.MatchResult{
		MatchID:   uuid.NewString(),
		LobbyCode: l.Code,
		GameMode:  l.GameMode,
		MapType:   l.MapType,
		Players:   game.BuildResults(l.Members, winner),
		EndedAt:   time.Now().UnixMilli(),
	}
	if winner != nil {
		result.WinnerID = winner.ConnectionID
	}

	// New round: everyone re-readies and the host starts again.
	for _, p := range l.Members {
		if !p.IsHost {
			p.IsReady = false
		}
	}
	l.Status = StatusWaiting
	snap := l.SnapshotUnsafe()
	l.Mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"lobby":  l.Code,
		"match":  result.MatchID,
		"winner": result.WinnerID,
	}).Info("round completed")

	s.emit.BroadcastToLobby(l.Code, "game-ended", map[string]interface{}{
		"results": result,
	})
	s.emit.BroadcastToLobby(l.Code, "lobby-updated", map[string]interface{}{
		"lobby": snap,
	})

	if s.results != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.results.PublishMatchResult(ctx, result); err != nil {
				s.logger.WithError(err).Warn("failed to queue match result")
			}
		}()
	}
}
