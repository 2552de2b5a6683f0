package lobby

import "regexp"

// Shared validation for values that cross the wire. Usernames are checked
// once, at create/join time, and never revalidated after.

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

var validGameModes = map[string]bool{
	"deathmatch":      true,
	"team-deathmatch": true,
	"chaos":           true,
}

var validMapTypes = map[string]bool{
	"grass": true,
	"sand":  true,
	"urban": true,
}

var validTankClasses = map[string]bool{
	"assault": true,
	"sniper":  true,
	"heavy":   true,
	"scout":   true,
}

const (
	DefaultMaxPlayers = 4
	MaxMaxPlayers     = 8
	MinMaxPlayers     = 2
)

// ValidUsername reports whether the username is well-formed.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// ValidGameMode reports whether mode is one of the supported game modes.
func ValidGameMode(mode string) bool {
	return validGameModes[mode]
}

// ValidMapType reports whether mt is one of the supported maps.
func ValidMapType(mt string) bool {
	return validMapTypes[mt]
}

// ValidTankClass reports whether class is one of the supported tank classes.
func ValidTankClass(class string) bool {
	return validTankClasses[class]
}

// ClampMaxPlayers normalizes a requested capacity into the allowed range,
// substituting the default when unset.
func ClampMaxPlayers(n int) int {
	if n == 0 {
		return DefaultMaxPlayers
	}
	if n < MinMaxPlayers {
		return MinMaxPlayers
	}
	if n > MaxMaxPlayers {
		return MaxMaxPlayers
	}
	return n
}
