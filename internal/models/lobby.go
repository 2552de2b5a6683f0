package models

import "time"

// LobbySnapshot is the read model sent to clients in lobby-created,
// lobby-joined, lobby-updated and game-starting payloads. It is built under
// the aggregate's lock and safe to serialize afterwards.
type LobbySnapshot struct {
	Code       string    `json:"code"`
	HostID     string    `json:"hostId"`
	Players    []Player  `json:"players"`
	GameMode   string    `json:"gameMode"`
	MapType    string    `json:"mapType"`
	Status     string    `json:"status"`
	MaxPlayers int       `json:"maxPlayers"`
	IsPrivate  bool      `json:"isPrivate"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LobbyListing is the trimmed view returned by the public lobby discovery
// endpoint.
type LobbyListing struct {
	Code        string `json:"code"`
	GameMode    string `json:"gameMode"`
	MapType     string `json:"mapType"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// GameState is the initial in-game snapshot broadcast in game-started.
type GameState struct {
	MapType  string   `json:"mapType"`
	GameMode string   `json:"gameMode"`
	Players  []Player `json:"players"`
}

// MatchResult is one finished round, queued to Redis for the historian.
type MatchResult struct {
	MatchID   string         `json:"match_id"`
	LobbyCode string         `json:"lobby_code"`
	GameMode  string         `json:"game_mode"`
	MapType   string         `json:"map_type"`
	WinnerID  string         `json:"winner_id,omitempty"`
	Players   []PlayerResult `json:"players"`
	EndedAt   int64          `json:"ended_at"`
}

// PlayerResult is a single player's line in a MatchResult.
type PlayerResult struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	Score    int    `json:"score"`
	Won      bool   `json:"won"`
}
