package lobby

import (
	"github.com/barrage-gg/barrage/internal/game"
)

// In-game event handling. Gameplay is broadcast-and-trust: the checks here
// are superficial (map bounds, damage cap) and the server's HP bookkeeping
// exists only to detect the end of a round.

// RecordMove stores a member's self-reported transform and returns the
// lobby code so the gateway can relay the update to the other members.
func (s *StartProtocol) RecordMove(connectionID string, x, y, rotation, turretRotation float64) (string, error) {
	l, err := s.reg.GetByConnection(connectionID)
	if err != nil {
		return "", err
	}

	l.Mu.Lock()
	defer l.Mu.Unlock()
	p := l.MemberUnsafe(connectionID)
	if p == nil {
		return "", ErrNotInLobby
	}
	if l.Status != StatusInProgress {
		return "", ErrGameNotInProgress
	}
	if !p.Alive {
		return "", ErrInvalidAction
	}
	if !game.InBounds(l.MapType, x, y) {
		return "", ErrInvalidAction
	}
	p.X = x
	p.Y = y
	p.Rotation = rotation
	p.TurretRotation = turretRotation
	return l.Code, nil
}

// ValidateShoot bounds-checks a projectile origin and returns the lobby
// code for relay. The projectile itself is client-simulated.
func (s *StartProtocol) ValidateShoot(connectionID string, x, y float64) (string, error) {
	l, err := s.reg.GetByConnection(connectionID)
	if err != nil {
		return "", err
	}

	l.Mu.Lock()
	defer l.Mu.Unlock()
	p := l.MemberUnsafe(connectionID)
	if p == nil {
		return "", ErrNotInLobby
	}
	if l.Status != StatusInProgress {
		return "", ErrGameNotInProgress
	}
	if !p.Alive {
		return "", ErrInvalidAction
	}
	if !game.InBounds(l.MapType, x, y) {
		return "", ErrInvalidAction
	}
	return l.Code, nil
}

// ReportHit applies a client-reported hit: damage bookkeeping, kill credit,
// a player-died broadcast when the target falls, and round completion when
// at most one member is left standing. Returns the lobby code for relaying
// the hit itself.
func (s *StartProtocol) ReportHit(shooterConnectionID, targetConnectionID string, damage int) (string, error) {
	if damage <= 0 || damage > game.MaxHitDamage {
		return "", ErrInvalidAction
	}

	l, err := s.reg.GetByConnection(shooterConnectionID)
	if err != nil {
		return "", err
	}

	l.Mu.Lock()
	shooter := l.MemberUnsafe(shooterConnectionID)
	if shooter == nil {
		l.Mu.Unlock()
		return "", ErrNotInLobby
	}
	if l.Status != StatusInProgress {
		l.Mu.Unlock()
		return "", ErrGameNotInProgress
	}
	if !shooter.Alive {
		l.Mu.Unlock()
		return "", ErrInvalidAction
	}
	target := l.MemberUnsafe(targetConnectionID)
	if target == nil || target.ConnectionID == shooter.ConnectionID {
		l.Mu.Unlock()
		return "", ErrInvalidAction
	}

	died := game.ApplyDamage(target, damage)
	var diedPayload map[string]interface{}
	if died {
		game.CreditKill(shooter)
		diedPayload = map[string]interface{}{
			"playerId":   target.ConnectionID,
			"playerName": target.Username,
			"killerId":   shooter.ConnectionID,
			"killerName": shooter.Username,
		}
	}
	roundOver := died && game.RoundOver(l.Members)
	code := l.Code
	l.Mu.Unlock()

	if diedPayload != nil {
		s.emit.BroadcastToLobby(code, "player-died", diedPayload)
	}
	if roundOver {
		s.completeRound(l)
	}
	return code, nil
}

// MemberDropped is called by the coordinator's removal path while a game is
// running; if the drop leaves at most one member standing the round ends.
func (s *StartProtocol) MemberDropped(code string) {
	l, err := s.reg.Get(code)
	if err != nil {
		return
	}
	l.Mu.Lock()
	over := l.Status == StatusInProgress && game.RoundOver(l.Members)
	l.Mu.Unlock()
	if over {
		s.completeRound(l)
	}
}
