package handlers

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/barrage-gg/barrage/internal/lobby"
	"github.com/barrage-gg/barrage/internal/ratelimit"
)

// GatewayConfig carries the gateway's tunables out of the process config.
type GatewayConfig struct {
	CORSOrigin      string
	DisconnectGrace time.Duration
	SweepInterval   time.Duration
	LobbyIdleTTL    time.Duration
}

// GatewayServer is the connection gateway: it owns the live ClientConns,
// maps inbound named events onto coordinator/start-protocol operations,
// translates domain errors into socket-error envelopes and performs the
// broadcast fan-out the coordinators describe but do not perform.
type GatewayServer struct {
	Registry    *lobby.Registry
	Coordinator *lobby.Coordinator
	Start       *lobby.StartProtocol
	Limiter     *ratelimit.Limiter
	Logger      *logrus.Logger

	cfg GatewayConfig

	connsMu sync.Mutex
	conns   map[string]*ClientConn

	stop     chan struct{}
	stopOnce sync.Once
}

// NewGatewayServer constructs the full service graph: registry, coordinator,
// rate limiter and start protocol, wired to this gateway for broadcasts.
// results may be nil when no history queue is configured.
func NewGatewayServer(cfg GatewayConfig, logger *logrus.Logger, results lobby.ResultSink) *GatewayServer {
	gs := &GatewayServer{
		Logger:  logger,
		cfg:     cfg,
		conns:   make(map[string]*ClientConn),
		stop:    make(chan struct{}),
		Limiter: ratelimit.New(),
	}
	gs.Registry = lobby.NewRegistry()
	gs.Coordinator = lobby.NewCoordinator(gs.Registry, logger, cfg.DisconnectGrace)
	gs.Start = lobby.NewStartProtocol(gs.Registry, gs, results, logger)

	// Grace-window removals happen off any connection's read loop; the
	// coordinator hands the result back here so the remainder still hears
	// about it.
	gs.Coordinator.OnPlayerRemoved = gs.playerRemoved

	go gs.sweepLoop()
	go gs.Limiter.Run(time.Minute, gs.stop)

	return gs
}

// Close stops background sweeps and pending grace reapers. Called on
// process shutdown.
func (gs *GatewayServer) Close() {
	gs.stopOnce.Do(func() { close(gs.stop) })
	gs.Coordinator.Close()
}

// sweepLoop evicts idle lobbies on a fixed interval.
func (gs *GatewayServer) sweepLoop() {
	if gs.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(gs.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gs.stop:
			return
		case <-ticker.C:
			evicted := gs.Registry.SweepIdle(gs.cfg.LobbyIdleTTL)
			for _, code := range evicted {
				gs.Logger.WithField("lobby", code).Info("idle lobby evicted")
			}
		}
	}
}

// register adds a live connection.
func (gs *GatewayServer) register(c *ClientConn) {
	gs.connsMu.Lock()
	gs.conns[c.ID] = c
	gs.connsMu.Unlock()
}

// unregister drops a live connection and purges its rate-limit windows.
func (gs *GatewayServer) unregister(c *ClientConn) {
	gs.connsMu.Lock()
	delete(gs.conns, c.ID)
	gs.connsMu.Unlock()
	gs.Limiter.Purge(c.ID)
}

// conn returns the live connection for an id, or nil.
func (gs *GatewayServer) conn(connectionID string) *ClientConn {
	gs.connsMu.Lock()
	defer gs.connsMu.Unlock()
	return gs.conns[connectionID]
}

// memberIDs collects the current membership of a lobby.
func (gs *GatewayServer) memberIDs(code string) []string {
	l, err := gs.Registry.Get(code)
	if err != nil {
		return nil
	}
	l.Mu.Lock()
	ids := make([]string, len(l.Members))
	for i, p := range l.Members {
		ids[i] = p.ConnectionID
	}
	l.Mu.Unlock()
	return ids
}

// BroadcastToLobby sends a named event to every member of the lobby. This
// is the Emitter the start protocol broadcasts through.
func (gs *GatewayServer) BroadcastToLobby(code, event string, payload map[string]interface{}) {
	gs.broadcastExcept(code, "", event, payload)
}

// broadcastExcept fans an event out to every member except one connection
// (pass empty string to reach everyone).
func (gs *GatewayServer) broadcastExcept(code, exceptID, event string, payload map[string]interface{}) {
	for _, id := range gs.memberIDs(code) {
		if id == exceptID {
			continue
		}
		if c := gs.conn(id); c != nil {
			c.WriteEvent(event, payload)
		}
	}
}

// playerRemoved broadcasts the effects of a grace-window removal: same as
// an explicit leave, to whoever is left.
func (gs *GatewayServer) playerRemoved(res lobby.LeaveResult) {
	if res.Deleted {
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
