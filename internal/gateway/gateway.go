package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/audio"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/metrics"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/session"
)

// Options carries the gateway's tunable limits.
type Options struct {
	HeartbeatInterval     time.Duration
	MinMessageInterval    time.Duration
	MessageBurstCeiling   int
	MaxConnectionsPerUser int
	MaxConnections        int64
	AllowedOrigins        []string
	LatestTranscriptions  int
}

// Gateway terminates WebSocket upgrades, enforces capacity and rate limits,
// and owns the live connection table used for broadcast fan-out and audio
// delivery.
type Gateway struct {
	upgrader    websocket.Upgrader
	identity    domain.IdentityResolver
	registry    *session.Registry
	coordinator *audio.Coordinator
	recent      domain.RecentStore
	limiter     *GlobalLimiter
	clock       clockwork.Clock
	opts        Options

	mu    sync.Mutex
	conns map[uuid.UUID]*connection
}

// New creates a gateway. recent may be nil, which skips the connect-time
// backlog.
func New(identity domain.IdentityResolver, registry *session.Registry, coordinator *audio.Coordinator, recent domain.RecentStore, clock clockwork.Clock, opts Options) *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		identity:    identity,
		registry:    registry,
		coordinator: coordinator,
		recent:      recent,
		limiter:     NewGlobalLimiter(opts.MaxConnections),
		clock:       clock,
		opts:        opts,
		conns:       make(map[uuid.UUID]*connection),
	}
}

// HandleWS is the GET /ws handler. Protocol-version and origin failures are
// refused before the upgrade; identity and capacity failures are reported
// through distinct close codes after it, so clients can tell them apart.
func (g *Gateway) HandleWS(c echo.Context) error {
	if v := c.QueryParam("v"); v != "" && v != "1" {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported protocol version")
	}

	ws, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error (bad origin, bad handshake).
		metrics.GatewayConnectionsRejected.WithLabelValues("handshake").Inc()
		return nil
	}

	ctx := c.Request().Context()
	userID, err := g.identity.Resolve(ctx, c.QueryParam("token"))
	if err != nil {
		metrics.GatewayConnectionsRejected.WithLabelValues("unauthorized").Inc()
		g.refuse(ws, CloseUnauthorized, "unauthorized")
		return nil
	}

	if !g.limiter.TryAcquire() {
		metrics.GatewayConnectionsRejected.WithLabelValues("global_capacity").Inc()
		g.refuse(ws, CloseGlobalCapacity, "server at capacity")
		return nil
	}

	// The registry performs the per-user cap check and the insert as one
	// atomic step; a separate Count-then-register would let concurrent
	// upgrades for the same user all pass the check.
	connID := uuid.New()
	if !g.registry.TryConnect(userID, connID, g.opts.MaxConnectionsPerUser) {
		g.limiter.Release()
		metrics.GatewayConnectionsRejected.WithLabelValues("user_capacity").Inc()
		g.refuse(ws, CloseUserCapacity, "too many connections")
		return nil
	}

	conn := newConnection(connID, ws, userID, g.clock, g.opts.HeartbeatInterval)
	g.addConn(conn)
	metrics.GatewayConnectionsTotal.WithLabelValues("accepted").Inc()
	metrics.GatewayConnectionsCurrent.Inc()
	slog.Info("Connection opened", "connection_id", conn.id.String(), "user_id", userID.String())

	g.sendBacklog(c, conn)
	g.readLoop(conn)

	g.unregister(conn)
	conn.close(websocket.CloseNormalClosure, "")
	g.limiter.Release()
	metrics.GatewayConnectionsCurrent.Dec()
	slog.Info("Connection closed", "connection_id", conn.id.String(), "user_id", userID.String())
	return nil
}

func (g *Gateway) addConn(conn *connection) {
	g.mu.Lock()
	g.conns[conn.id] = conn
	g.mu.Unlock()
}

func (g *Gateway) unregister(conn *connection) {
	g.mu.Lock()
	delete(g.conns, conn.id)
	g.mu.Unlock()
	g.registry.OnDisconnect(conn.userID, conn.id)
}

// sendBacklog pushes the latestTranscriptions batch right after connect.
func (g *Gateway) sendBacklog(c echo.Context, conn *connection) {
	if g.recent == nil {
		return
	}
	latest, err := g.recent.Latest(c.Request().Context(), g.opts.LatestTranscriptions)
	if err != nil {
		slog.Warn("Failed to load recent transcriptions", "error", err)
		return
	}
	conn.Send(latestBatch{Action: "latestTranscriptions", Data: latest})
}

func (g *Gateway) readLoop(conn *connection) {
	for {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		if !conn.allowMessage(g.opts.MinMessageInterval, g.opts.MessageBurstCeiling) {
			metrics.GatewayRateLimitCloses.Inc()
			slog.Warn("Closing connection for message flooding", "connection_id", conn.id.String())
			conn.close(CloseRateLimited, "message rate exceeded")
			return
		}

		g.handleMessage(conn, payload)
	}
}

func (g *Gateway) handleMessage(conn *connection, payload []byte) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		metrics.GatewayMalformedMessages.Inc()
		slog.Debug("Dropping malformed message", "connection_id", conn.id.String())
		return
	}

	switch envelope.Action {
	case "autoplayStatus":
		metrics.GatewayMessagesTotal.WithLabelValues("autoplay_status").Inc()
		conn.latchDevice(envelope.DeviceID)
		enabled := envelope.Autoplay != nil && *envelope.Autoplay
		g.coordinator.SetAutoplay(conn.userID, conn.DeviceID(), enabled)
		conn.Send(autoplayConfirmation{Action: "autoplayStatusConfirmed", Autoplay: enabled})
	case "requestNextAudio":
		// Legacy client message. Accepted for compatibility, no response.
		metrics.GatewayMessagesTotal.WithLabelValues("request_next_audio").Inc()
	default:
		metrics.GatewayMessagesTotal.WithLabelValues("ignored").Inc()
		slog.Debug("Ignoring unrecognized message", "connection_id", conn.id.String(), "action", envelope.Action)
	}
}

// refuse closes a just-upgraded socket with a client-distinguishable code.
func (g *Gateway) refuse(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.SetWriteDeadline(g.clock.Now().Add(writeDeadline))
	_ = ws.WriteMessage(websocket.CloseMessage, msg)
	_ = ws.Close()
}

// Broadcast fans a message out to every open connection.
func (g *Gateway) Broadcast(v any) {
	g.mu.Lock()
	conns := make([]*connection, 0, len(g.conns))
	for _, conn := range g.conns {
		conns = append(conns, conn)
	}
	g.mu.Unlock()

	for _, conn := range conns {
		conn.Send(v)
	}
}

// Connections returns the open connections as the audio coordinator's view.
func (g *Gateway) Connections() []audio.Conn {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]audio.Conn, 0, len(g.conns))
	for _, conn := range g.conns {
		out = append(out, conn)
	}
	return out
}
