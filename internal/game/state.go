// Package game holds the in-game bookkeeping the session core needs:
// spawn layout, class stats, superficial bounds checks and round-end
// detection. Gameplay itself is broadcast-and-trust; nothing here is a
// physics authority.
package game

import (
	"math"

	"github.com/barrage-gg/barrage/internal/models"
)

// MaxHitDamage caps a single player-hit report. Anything above it is a
// malformed or dishonest client and the event is dropped.
const MaxHitDamage = 60

type mapBounds struct {
	width  float64
	height float64
}

var boundsByMap = map[string]mapBounds{
	"grass": {width: 2400, height: 1800},
	"sand":  {width: 2800, height: 2100},
	"urban": {width: 2000, height: 1600},
}

var hpByClass = map[string]int{
	"assault": 100,
	"sniper":  70,
	"heavy":   160,
	"scout":   60,
}

// ClassHP returns the starting hit points for a tank class.
func ClassHP(class string) int {
	if hp, ok := hpByClass[class]; ok {
		return hp
	}
	return 100
}

// InBounds reports whether a coordinate is inside the given map.
func InBounds(mapType string, x, y float64) bool {
	b, ok := boundsByMap[mapType]
	if !ok {
		return false
	}
	return x >= 0 && y >= 0 && x <= b.width && y <= b.height
}

// InitRound resets every member's in-game state and places them on an even
// ring around the map center, in join order.
func InitRound(players []*models.Player, mapType string) {
	b, ok := boundsByMap[mapType]
	if !ok {
		b = boundsByMap["grass"]
	}
	cx, cy := b.width/2, b.height/2
	radius := math.Min(b.width, b.height) * 0.35

	n := len(players)
	for i, p := range players {
		angle := 2 * math.Pi * float64(i) / float64(n)
		p.X = cx + radius*math.Cos(angle)
		p.Y = cy + radius*math.Sin(angle)
		p.Rotation = angle + math.Pi
		p.TurretRotation = p.Rotation
		p.HP = ClassHP(p.TankClass)
		p.Alive = true
		p.Kills = 0
		p.Deaths = 0
		p.Score = 0
	}
}

// ApplyDamage subtracts damage from the target and reports whether it died
// from this hit. Dead or absent targets are a no-op.
func ApplyDamage(target *models.Player, damage int) bool {
	if target == nil || !target.Alive {
		return false
	}
	target.HP -= damage
	if target.HP <= 0 {
		target.HP = 0
		target.Alive = false
		target.Deaths++
		return true
	}
	return false
}

// CreditKill awards the shooter for a confirmed kill.
func CreditKill(shooter *models.Player) {
	if shooter == nil {
		return
	}
	shooter.Kills++
	shooter.Score += 100
}

// aliveConnected counts members still alive and still connected. A player
// who dropped mid-round no longer holds the round open.
func aliveConnected(players []*models.Player) int {
	n := 0
	for _, p := range players {
		if p.Alive && p.Connected {
			n++
		}
	}
	return n
}

// RoundOver reports whether the round has reached its terminal condition:
// at most one member left standing.
func RoundOver(players []*models.Player) bool {
	return aliveConnected(players) <= 1
}

// Winner returns the last member standing, falling back to the highest
// score when nobody survived. Nil for an empty roster.
func Winner(players []*models.Player) *models.Player {
	var best *models.Player
	for _, p := range players {
		if p.Alive && p.Connected {
			return p
		}
		if best == nil || p.Score > best.Score {
			best = p
		}
	}
	return best
}

// BuildResults assembles the end-of-round result record.
func BuildResults(players []*models.Player, winner *models.Player) []models.PlayerResult {
	results := make([]models.PlayerResult, len(players))
	for i, p := range players {
		results[i] = models.PlayerResult{
			PlayerID: p.ConnectionID,
			Username: p.Username,
			Kills:    p.Kills,
			Deaths:   p.Deaths,
			Score:    p.Score,
			Won:      winner != nil && winner.ConnectionID == p.ConnectionID,
		}
	}
	return results
}

// Snapshot copies the players into a GameState payload.
func Snapshot(players []*models.Player, gameMode, mapType string) models.GameState {
	out := make([]models.Player, len(players))
	for i, p := range players {
		out[i] = *p
	}
	return models.GameState{
		MapType:  mapType,
		GameMode: gameMode,
		Players:  out,
	}
}
