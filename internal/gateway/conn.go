package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/metrics"
)

const (
	writeDeadline  = 5 * time.Second
	sendBufferSize = 32
)

// Close codes sent to clients. Each rejection reason gets its own code so the
// client can tell them apart.
const (
	CloseUnauthorized   = 4001
	CloseUserCapacity   = 4002
	CloseGlobalCapacity = 4003
	CloseRateLimited    = 4008
)

// connection owns one WebSocket. All frame writes go through a single writer
// goroutine fed by a buffered channel; a client that cannot drain its buffer
// is evicted rather than allowed to block fan-out.
type connection struct {
	id     uuid.UUID
	userID uuid.UUID
	ws     *websocket.Conn
	clock  clockwork.Clock

	heartbeat time.Duration

	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu           sync.Mutex
	deviceID     string
	awaitingPong bool

	// burst limiter state, touched only by the read loop
	lastMessageAt time.Time
	burst         int
}

func newConnection(id uuid.UUID, ws *websocket.Conn, userID uuid.UUID, clock clockwork.Clock, heartbeat time.Duration) *connection {
	c := &connection{
		id:        id,
		userID:    userID,
		ws:        ws,
		clock:     clock,
		heartbeat: heartbeat,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *connection) UserID() uuid.UUID { return c.userID }

func (c *connection) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// latchDevice records the device id the first time the client announces one.
func (c *connection) latchDevice(deviceID string) {
	if deviceID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deviceID == "" {
		c.deviceID = deviceID
	}
}

// Send queues a JSON message for the writer goroutine. Returns false when the
// connection is closing or the client is too slow to keep its buffer drained,
// in which case the connection is evicted.
func (c *connection) Send(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal outbound message", "error", err)
		return false
	}

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		metrics.GatewaySlowClientsEvicted.Inc()
		slog.Warn("Evicting slow client", "connection_id", c.id.String(), "user_id", c.userID.String())
		go c.close(websocket.CloseNormalClosure, "send buffer full")
		return false
	}
}

func (c *connection) run() {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.Chan():
			c.mu.Lock()
			unanswered := c.awaitingPong
			c.awaitingPong = true
			c.mu.Unlock()

			if unanswered {
				// The previous ping was never answered; drop the half-open
				// socket so the read loop unblocks and cleans up.
				metrics.GatewayPingTerminations.Inc()
				slog.Info("Terminating unresponsive connection", "connection_id", c.id.String())
				_ = c.ws.Close()
				return
			}

			c.updateWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) configurePongHandler() {
	c.updateReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.awaitingPong = false
		c.mu.Unlock()
		c.updateReadDeadline()
		return nil
	})
}

func (c *connection) updateWriteDeadline() {
	_ = c.ws.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *connection) updateReadDeadline() {
	_ = c.ws.SetReadDeadline(c.clock.Now().Add(2 * c.heartbeat))
}

// allowMessage applies the inbound burst limiter. Two messages closer together
// than minInterval grow the burst counter; a message after a quiet gap resets
// it. Returns false once the counter exceeds the ceiling.
func (c *connection) allowMessage(minInterval time.Duration, ceiling int) bool {
	now := c.clock.Now()
	if !c.lastMessageAt.IsZero() && now.Sub(c.lastMessageAt) < minInterval {
		c.burst++
	} else {
		c.burst = 0
	}
	c.lastMessageAt = now
	return c.burst <= ceiling
}

// close sends a close frame with the given code and shuts the socket down.
// Must not be called from the writer goroutine.
func (c *connection) close(code int, reason string) {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()

		msg := websocket.FormatCloseMessage(code, reason)
		c.updateWriteDeadline()
		_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
		_ = c.ws.Close()
	})
}
