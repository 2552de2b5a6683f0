package lobby

import "errors"

// Domain errors surfaced to the gateway. Every one of these turns into a
// socket-error {message} envelope on the originating connection; none of
// them mutate state.
var (
	ErrInvalidUsername  = errors.New("username must be 3-20 characters, letters, numbers and underscores only")
	ErrInvalidLobbyCode = errors.New("invalid lobby code")
	ErrInvalidGameMode  = errors.New("invalid game mode")
	ErrInvalidMapType   = errors.New("invalid map type")
	ErrInvalidTankClass = errors.New("invalid tank class")

	ErrAlreadyInLobby    = errors.New("already in a lobby")
	ErrLobbyNotFound     = errors.New("lobby not found")
	ErrNotInLobby        = errors.New("not in a lobby")
	ErrLobbyFull         = errors.New("lobby is full")
	ErrGameInProgress    = errors.New("game already in progress")
	ErrGameNotInProgress = errors.New("game is not in progress")
	ErrInvalidAction     = errors.New("invalid gameplay action")

	ErrNotHost = errors.New("only the host can do that")

	ErrNotAllReady           = errors.New("not all players are ready")
	ErrNotAllClassesSelected = errors.New("not all players have selected a tank class")

	// ErrDuplicateCode is internal to lobby creation: the coordinator
	// retries with a fresh code and never surfaces it to a client.
	ErrDuplicateCode = errors.New("lobby code already in use")
)
