package models

// Player is a member of a lobby. ConnectionID is the transport-level
// identity and the primary key for all lookups; a new connection after a
// drop is a new player (there is no reconnect-resume).
type Player struct {
	ConnectionID string `json:"id"`
	Username     string `json:"username"`
	IsHost       bool   `json:"isHost"`
	IsReady      bool   `json:"isReady"`

	// TankClass is empty until the player picks one. Every member must have
	// a class before the game can start.
	TankClass string `json:"tankClass,omitempty"`

	// Connected flips false on an ungraceful drop; the player is kept for a
	// grace window before removal.
	Connected bool `json:"connected"`

	// In-game state, only meaningful once the lobby is in_progress.
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Rotation       float64 `json:"rotation"`
	TurretRotation float64 `json:"turretRotation"`
	HP             int     `json:"hp"`
	Alive          bool    `json:"alive"`
	Kills          int     `json:"kills"`
	Deaths         int     `json:"deaths"`
	Score          int     `json:"score"`
}

// EffectiveReady reports whether the player counts as ready for the purpose
// of starting a game. The host is always ready; the flag is not
// independently settable for the host.
func (p *Player) EffectiveReady() bool {
	return p.IsHost || p.IsReady
}
