package audio

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/metrics"
)

// Conn is the coordinator's view of a live connection. Implemented by the
// gateway's connection type.
type Conn interface {
	UserID() uuid.UUID
	DeviceID() string
	Send(v any) bool
}

// ConnSource lists the currently open connections.
type ConnSource interface {
	Connections() []Conn
}

// ConnSourceFunc adapts a function to the ConnSource interface, letting the
// coordinator be constructed before the gateway that feeds it.
type ConnSourceFunc func() []Conn

func (f ConnSourceFunc) Connections() []Conn { return f() }

// Available is the audioAvailable push payload.
type Available struct {
	Action      string `json:"action"`
	Path        string `json:"path"`
	TalkgroupID int64  `json:"talkgroupId"`
	QueueLength int    `json:"queueLength"`
}

type prefKey struct {
	userID   uuid.UUID
	deviceID string
}

// Coordinator maintains bounded per-user audio announcement queues and
// device-scoped autoplay preferences. Delivery is push-only: the moment an
// item is enqueued it is sent to every autoplay-enabled connection of the
// owning user, and consumed from the queue once a connection accepts it.
// Items for users without an autoplay-enabled connection wait in the queue
// until the session tears down.
type Coordinator struct {
	mu       sync.Mutex
	queues   map[uuid.UUID][]domain.AudioQueueItem
	autoplay map[prefKey]bool
	capacity int
	conns    ConnSource
}

// NewCoordinator creates a coordinator with the given per-user queue capacity.
func NewCoordinator(capacity int, conns ConnSource) *Coordinator {
	return &Coordinator{
		queues:   make(map[uuid.UUID][]domain.AudioQueueItem),
		autoplay: make(map[prefKey]bool),
		capacity: capacity,
		conns:    conns,
	}
}

// OnAudioReady fans a new audio item out to every connected user's queue and
// pushes an audioAvailable notification to autoplay-enabled connections. Only
// items that actually entered a queue are announced; a successfully delivered
// item is consumed from that user's queue.
func (c *Coordinator) OnAudioReady(path string, talkgroupID int64) {
	item := domain.AudioQueueItem{Path: path, TalkgroupID: talkgroupID}
	conns := c.conns.Connections()

	c.mu.Lock()
	enqueued := make(map[uuid.UUID]bool)
	lengths := make(map[uuid.UUID]int)
	for _, conn := range conns {
		userID := conn.UserID()
		if _, done := enqueued[userID]; done {
			continue
		}
		enqueued[userID] = c.enqueueLocked(userID, item)
		if enqueued[userID] {
			lengths[userID] = len(c.queues[userID])
		}
	}
	c.mu.Unlock()

	delivered := make(map[uuid.UUID]struct{})
	for _, conn := range conns {
		userID := conn.UserID()
		if !enqueued[userID] {
			continue
		}
		if !c.AutoplayEnabled(userID, conn.DeviceID()) {
			continue
		}
		msg := Available{
			Action:      "audioAvailable",
			Path:        path,
			TalkgroupID: talkgroupID,
			QueueLength: lengths[userID],
		}
		if conn.Send(msg) {
			metrics.AudioItemsPushed.Inc()
			delivered[userID] = struct{}{}
		}
	}

	for userID := range delivered {
		c.Consume(userID, path)
	}
}

// Enqueue adds an item to a single user's queue, deduplicating by path and
// dropping the item if the queue is at capacity.
func (c *Coordinator) Enqueue(userID uuid.UUID, item domain.AudioQueueItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(userID, item)
}

// enqueueLocked reports whether the item entered the queue; duplicates and
// overflow drops return false.
func (c *Coordinator) enqueueLocked(userID uuid.UUID, item domain.AudioQueueItem) bool {
	queue := c.queues[userID]
	for _, queued := range queue {
		if queued.Path == item.Path {
			return false
		}
	}
	if len(queue) >= c.capacity {
		metrics.AudioQueueOverflows.Inc()
		slog.Debug("Audio queue full, dropping item", "user_id", userID.String(), "path", item.Path)
		return false
	}
	c.queues[userID] = append(queue, item)
	metrics.AudioItemsEnqueued.Inc()
	return true
}

// Consume removes a delivered (or expired) item from a user's queue.
func (c *Coordinator) Consume(userID uuid.UUID, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue := c.queues[userID]
	for i, queued := range queue {
		if queued.Path == path {
			c.queues[userID] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

// Queue returns a copy of a user's pending items in enqueue order.
func (c *Coordinator) Queue(userID uuid.UUID) []domain.AudioQueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue := c.queues[userID]
	out := make([]domain.AudioQueueItem, len(queue))
	copy(out, queue)
	return out
}

// SetAutoplay records the autoplay preference for (userID, deviceID). An empty
// device id sets the user-level fallback key.
func (c *Coordinator) SetAutoplay(userID uuid.UUID, deviceID string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoplay[prefKey{userID: userID, deviceID: deviceID}] = enabled
}

// AutoplayEnabled reports the device-scoped preference, falling back to the
// user-level key when the device has no explicit setting.
func (c *Coordinator) AutoplayEnabled(userID uuid.UUID, deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deviceID != "" {
		if enabled, ok := c.autoplay[prefKey{userID: userID, deviceID: deviceID}]; ok {
			return enabled
		}
	}
	return c.autoplay[prefKey{userID: userID}]
}

// Teardown removes a user's queue and all of their autoplay preference
// entries. Called by the session registry when the reconnect grace expires.
func (c *Coordinator) Teardown(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.queues, userID)
	for key := range c.autoplay {
		if key.userID == userID {
			delete(c.autoplay, key)
		}
	}
}
