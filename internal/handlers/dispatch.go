package handlers

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/barrage-gg/barrage/internal/lobby"
	"github.com/barrage-gg/barrage/internal/ratelimit"
)

// maxChatLength caps a single chat message.
const maxChatLength = 200

// classifyEvent buckets an inbound event into its rate-limit class.
func classifyEvent(event string) ratelimit.Class {
	switch event {
	case "create-lobby":
		return ratelimit.ClassCreate
	case "join-lobby":
		return ratelimit.ClassJoin
	case "player-update", "player-shoot", "player-hit":
		return ratelimit.ClassGameplay
	case "chat-message":
		return ratelimit.ClassChat
	default:
		return ratelimit.ClassDefault
	}
}

// dispatch routes one decoded inbound packet to the matching operation.
// Domain errors become socket-error envelopes on the sender; a panic in a
// single event is recovered so one bad packet cannot take down other
// lobbies' sessions.
func (gs *GatewayServer) dispatch(c *ClientConn, packet map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			gs.Logger.WithField("connection", c.ID).Errorf("recovered from panic handling event: %v", r)
			c.WriteError("internal error")
		}
	}()

	event, _ := packet["type"].(string)
	if event == "" {
		c.WriteError("missing event type")
		return
	}

	if err := gs.Limiter.Allow(c.ID, classifyEvent(event)); err != nil {
		c.WriteError(err.Error())
		return
	}

	switch event {
	case "create-lobby":
		gs.handleCreateLobby(c, packet)
	case "join-lobby":
		gs.handleJoinLobby(c, packet)
	case "leave-lobby":
		gs.handleLeaveLobby(c)
	case "update-ready-status":
		ready, _ := packet["isReady"].(bool)
		snap, err := gs.Coordinator.UpdateReady(c.ID, ready)
		if err != nil {
			c.WriteError(err.Error())
			return
		}
		gs.BroadcastToLobby(snap.Code, "lobby-updated", map[string]interface{}{"lobby": snap})
	case "select-tank-class":
		class, _ := packet["tankClass"].(string)
		snap, err := gs.Coordinator.UpdateTankClass(c.ID, class)
		if err != nil {
			c.WriteError(err.Error())
			return
		}
		gs.BroadcastToLobby(snap.Code, "lobby-updated", map[string]interface{}{"lobby": snap})
	case "change-game-mode":
		mode, _ := packet["gameMode"].(string)
		snap, err := gs.Coordinator.ChangeGameMode(c.ID, mode)
		if err != nil {
			c.WriteError(err.Error())
			return
		}
		gs.BroadcastToLobby(snap.Code, "lobby-updated", map[string]interface{}{"lobby": snap})
	case "change-map-type":
		mt, _ := packet["mapType"].(string)
		snap, err := gs.Coordinator.ChangeMapType(c.ID, mt)
		if err != nil {
			c.WriteError(err.Error())
			return
		}
		gs.BroadcastToLobby(snap.Code, "lobby-updated", map[string]interface{}{"lobby": snap})
	case "start-game":
		if err := gs.Start.RequestStart(c.ID); err != nil {
			c.WriteError(err.Error())
		}
	case "chat-message":
		gs.handleChat(c, packet)
	case "player-update":
		gs.handlePlayerUpdate(c, packet)
	case "player-shoot":
		gs.handlePlayerShoot(c, packet)
	case "player-hit":
		gs.handlePlayerHit(c, packet)
	case "ping":
		c.WriteEvent("pong", map[string]interface{}{
			"timestamp": time.Now().UnixMilli(),
		})
	default:
		c.WriteError("unknown event type: " + event)
	}
}

func (gs *GatewayServer) handleCreateLobby(c *ClientConn, packet map[string]interface{}) {
	username, _ := packet["username"].(string)
	gameMode, _ := packet["gameMode"].(string)
	mapType, _ := packet["mapType"].(string)
	maxPlayers, _ := packet["maxPlayers"].(float64)
	isPrivate, _ := packet["isPrivate"].(bool)

	l, err := gs.Coordinator.Create(c.ID, username, lobby.CreateOptions{
		GameMode:   gameMode,
		MapType:    mapType,
		MaxPlayers: int(maxPlayers),
		Private:    isPrivate,
	})
	if err != nil {
		c.WriteError(err.Error())
		return
	}
	snap := l.Snapshot()
	c.WriteEvent("lobby-created", map[string]interface{}{
		"lobbyId":   snap.Code,
		"lobbyCode": snap.Code,
		"lobby":     snap,
	})
}

func (gs *GatewayServer) handleJoinLobby(c *ClientConn, packet map[string]interface{}) {
	code, _ := packet["lobbyCode"].(string)
	username, _ := packet["username"].(string)

	res, err := gs.Coordinator.Join(strings.ToUpper(strings.TrimSpace(code)), c.ID, username)
	if err != nil {
		c.WriteError(err.Error())
		return
	}
	c.WriteEvent("lobby-joined", map[string]interface{}{
		"lobbyId": res.Snapshot.Code,
		"lobby":   res.Snapshot,
	})
	gs.broadcastExcept(res.Snapshot.Code, c.ID, "player-joined", map[string]interface{}{
		"player": res.Player,
	})
	gs.BroadcastToLobby(res.Snapshot.Code, "lobby-updated", map[string]interface{}{
		"lobby": res.Snapshot,
	})
}

func (gs *GatewayServer) handleLeaveLobby(c *ClientConn) {
	res := gs.Coordinator.Leave(c.ID)
	if !res.Happened || res.Deleted {
		return
	}
	gs.BroadcastToLobby(res.Code, "player-left", map[string]interface{}{
		"playerId":   res.Removed.ConnectionID,
		"playerName": res.Removed.Username,
	})
	gs.BroadcastToLobby(res.Code, "lobby-updated", map[string]interface{}{
		"lobby": res.Snapshot,
	})
	gs.Start.MemberDropped(res.Code)
}

func (gs *GatewayServer) handleChat(c *ClientConn, packet map[string]interface{}) {
	message, _ := packet["message"].(string)
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	if len(message) > maxChatLength {
		cut := maxChatLength
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}

	l, err := gs.Registry.GetByConnection(c.ID)
	if err != nil {
		c.WriteError(err.Error())
		return
	}
	l.Mu.Lock()
	p := l.MemberUnsafe(c.ID)
	code := l.Code
	l.Mu.Unlock()
	if p == nil {
		return
	}
	gs.BroadcastToLobby(code, "chat-message", map[string]interface{}{
		"playerId":   p.ConnectionID,
		"playerName": p.Username,
		"message":    message,
		"timestamp":  time.Now().UnixMilli(),
	})
}

func (gs *GatewayServer) handlePlayerUpdate(c *ClientConn, packet map[string]interface{}) {
	x, _ := packet["x"].(float64)
	y, _ := packet["y"].(float64)
	rotation, _ := packet["rotation"].(float64)
	turret, _ := packet["turretRotation"].(float64)

	code, err := gs.Start.RecordMove(c.ID, x, y, rotation, turret)
	if err != nil {
		c.WriteError(err.Error())
		return
	}
	gs.broadcastExcept(code, c.ID, "player-update", map[string]interface{}{
		"playerId":       c.ID,
		"x":              x,
		"y":              y,
		"rotation":       rotation,
		"turretRotation": turret,
	})
}

func (gs *GatewayServer) handlePlayerShoot(c *ClientConn, packet map[string]interface{}) {
	x, _ := packet["x"].(float64)
	y, _ := packet["y"].(float64)
	angle, _ := packet["angle"].(float64)

	code, err := gs.Start.ValidateShoot(c.ID, x, y)
	if err != nil {
		c.WriteError(err.Error())
		return
	}
	gs.broadcastExcept(code, c.ID, "player-shoot", map[string]interface{}{
		"playerId": c.ID,
		"x":        x,
		"y":        y,
		"angle":    angle,
	})
}

func (gs *GatewayServer) handlePlayerHit(c *ClientConn, packet map[string]interface{}) {
	targetID, _ := packet["targetId"].(string)
	damage, _ := packet["damage"].(float64)

	code, err := gs.Start.ReportHit(c.ID, targetID, int(damage))
	if err != nil {
		c.WriteError(err.Error())
		return
	}
	gs.broadcastExcept(code, c.ID, "player-hit", map[string]interface{}{
		"targetId":  targetID,
		"shooterId": c.ID,
		"damage":    int(damage),
	})
}
