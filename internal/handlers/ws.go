// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/barrage-gg/barrage/internal/auth"
	"github.com/barrage-gg/barrage/internal/middleware"
)

// WSHandler upgrades a client onto the gateway. Each connection gets a
// fresh connection id; after an ungraceful drop a reconnecting client is a
// brand new player.
func WSHandler(gs *GatewayServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		// Guest cookie must be settled before the upgrade writes the 101.
		guestID, err := auth.EnsureGuest(w, r)
		if err != nil {
			gs.Logger.Warnf("guest auth failed for %s: %v", remoteAddr, err)
			http.Error(w, "auth failure", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"barrage"},
			OriginPatterns: []string{gs.cfg.CORSOrigin},
		})
		if err != nil {
			gs.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "barrage" {
			c.Close(BadSubprotocolError, "client must speak the barrage subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &ClientConn{
			ID:      uuid.NewString(),
			GuestID: guestID,
			Cancel:  cancel,
			OutChan: make(chan map[string]interface{}, 32),
		}
		gs.register(conn)
		middleware.LogWebSocketConnect(gs.Logger, remoteAddr, r.URL.Path)

		go writePump(ctx, c, conn, gs)

		readPump(ctx, c, conn, gs)

		// ---- Cleanup after readPump exits ----
		cancel()
		gs.unregister(conn)
		gs.disconnected(conn)
		middleware.LogWebSocketDisconnect(gs.Logger, remoteAddr, r.URL.Path, nil)
	}
}

// disconnected runs the ungraceful-drop flow: flag the player, notify the
// remaining members and let the grace reaper take it from there.
func (gs *GatewayServer) disconnected(conn *ClientConn) {
	res := gs.Coordinator.Disconnect(conn.ID)
	if !res.Happened {
		return
	}
	gs.BroadcastToLobby(res.Code, "player-disconnected", map[string]interface{}{
		"playerId":   res.Player.ConnectionID,
		"playerName": res.Player.Username,
	})
	gs.BroadcastToLobby(res.Code, "lobby-updated", map[string]interface{}{
		"lobby": res.Snapshot,
	})
	// A drop mid-round can leave one tank standing.
	gs.Start.MemberDropped(res.Code)
}

// readPump decodes inbound frames and hands them to dispatch until the
// connection dies.
func readPump(ctx context.Context, c *websocket.Conn, conn *ClientConn, gs *GatewayServer) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				gs.Logger.Infof("websocket closed normally for connection %s", conn.ID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				gs.Logger.Warnf("read error for connection %s: %v", conn.ID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.WriteError("invalid JSON")
			continue
		}
		gs.dispatch(conn, packet)
	}
}

// writePump drains the connection's OutChan onto the socket and keeps the
// connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *ClientConn, gs *GatewayServer) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				gs.Logger.Warnf("failed to marshal outgoing msg for connection %s: %v", conn.ID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				gs.Logger.Warnf("failed to write to websocket for connection %s: %v", conn.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				gs.Logger.Warnf("failed to ping connection %s: %v. Assuming disconnect.", conn.ID, err)
				return
			}
		}
	}
}
