package gateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/audio"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/session"
)

type stubResolver struct {
	userID uuid.UUID
	err    error
}

func (s *stubResolver) Resolve(_ context.Context, _ string) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return s.userID, nil
}

type stubRecent struct {
	latest []domain.EnrichedTranscription
}

func (s *stubRecent) Append(_ context.Context, _ domain.EnrichedTranscription) error { return nil }

func (s *stubRecent) Latest(_ context.Context, _ int) ([]domain.EnrichedTranscription, error) {
	return s.latest, nil
}

func defaultOptions() Options {
	return Options{
		HeartbeatInterval:     30 * time.Second,
		MinMessageInterval:    100 * time.Millisecond,
		MessageBurstCeiling:   50,
		MaxConnectionsPerUser: 8,
		MaxConnections:        100,
		LatestTranscriptions:  30,
	}
}

type testHarness struct {
	gateway     *Gateway
	coordinator *audio.Coordinator
	registry    *session.Registry
	wsURL       string
}

func newHarness(t *testing.T, resolver domain.IdentityResolver, recent domain.RecentStore, opts Options) *testHarness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Now())
	registry := session.NewRegistry(clock, 5*time.Minute, nil)

	var gw *Gateway
	coordinator := audio.NewCoordinator(10, audio.ConnSourceFunc(func() []audio.Conn {
		return gw.Connections()
	}))
	gw = New(resolver, registry, coordinator, recent, clock, opts)

	e := echo.New()
	e.GET("/ws", gw.HandleWS)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	return &testHarness{
		gateway:     gw,
		coordinator: coordinator,
		registry:    registry,
		wsURL:       "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
	}
}

func dial(t *testing.T, url string) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// confirmRoundtrip sends an autoplayStatus message and waits for the echo,
// which also guarantees the server side finished registering the connection.
func confirmRoundtrip(t *testing.T, conn *ws.Conn, enabled bool, deviceID string) {
	t.Helper()

	msg := map[string]any{"action": "autoplayStatus", "autoplay": enabled}
	if deviceID != "" {
		msg["deviceId"] = deviceID
	}
	require.NoError(t, conn.WriteJSON(msg))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply autoplayConfirmation
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "autoplayStatusConfirmed", reply.Action)
	assert.Equal(t, enabled, reply.Autoplay)
}

func expectClose(t *testing.T, conn *ws.Conn, code int) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *ws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, code, closeErr.Code)
}

func TestGateway_UnauthorizedGetsDistinctCloseCode(t *testing.T) {
	harness := newHarness(t, &stubResolver{err: domain.ErrUnauthorized}, nil, defaultOptions())

	conn := dial(t, harness.wsURL)
	expectClose(t, conn, CloseUnauthorized)
}

func TestGateway_UnsupportedProtocolVersionRefusedBeforeUpgrade(t *testing.T) {
	harness := newHarness(t, &stubResolver{userID: uuid.New()}, nil, defaultOptions())

	_, resp, err := ws.DefaultDialer.Dial(harness.wsURL+"?v=2", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestGateway_PerUserCapGetsDistinctCloseCode(t *testing.T) {
	opts := defaultOptions()
	opts.MaxConnectionsPerUser = 1
	userID := uuid.New()
	harness := newHarness(t, &stubResolver{userID: userID}, nil, opts)

	first := dial(t, harness.wsURL)
	confirmRoundtrip(t, first, true, "")
	require.Equal(t, 1, harness.registry.Count(userID))

	second := dial(t, harness.wsURL)
	expectClose(t, second, CloseUserCapacity)
}

// barrierResolver holds every Resolve call until release is closed, forcing
// concurrent upgrades to race the admission check together.
type barrierResolver struct {
	userID  uuid.UUID
	arrived chan struct{}
	release chan struct{}
}

func (b *barrierResolver) Resolve(_ context.Context, _ string) (uuid.UUID, error) {
	b.arrived <- struct{}{}
	<-b.release
	return b.userID, nil
}

func TestGateway_ConcurrentUpgradesRespectPerUserCap(t *testing.T) {
	const dialers = 4
	opts := defaultOptions()
	opts.MaxConnectionsPerUser = 1
	userID := uuid.New()
	resolver := &barrierResolver{
		userID:  userID,
		arrived: make(chan struct{}, dialers),
		release: make(chan struct{}),
	}
	// The backlog gives the one admitted connection a frame to read, so the
	// outcomes can be told apart without waiting out a deadline.
	recent := &stubRecent{latest: []domain.EnrichedTranscription{
		{TranscriptionEvent: domain.TranscriptionEvent{ID: uuid.New(), Text: "call"}},
	}}
	harness := newHarness(t, resolver, recent, opts)

	conns := make([]*ws.Conn, dialers)
	for i := range conns {
		conns[i] = dial(t, harness.wsURL)
	}
	for i := 0; i < dialers; i++ {
		<-resolver.arrived
	}
	close(resolver.release)

	admitted, refused := 0, 0
	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		if err == nil {
			admitted++
			continue
		}
		var closeErr *ws.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, CloseUserCapacity, closeErr.Code)
		refused++
	}

	assert.Equal(t, 1, admitted)
	assert.Equal(t, dialers-1, refused)
	assert.Equal(t, 1, harness.registry.Count(userID))
}

func TestGateway_GlobalCapGetsDistinctCloseCode(t *testing.T) {
	opts := defaultOptions()
	opts.MaxConnections = 1
	harness := newHarness(t, &stubResolver{userID: uuid.New()}, nil, opts)

	first := dial(t, harness.wsURL)
	confirmRoundtrip(t, first, true, "")

	second := dial(t, harness.wsURL)
	expectClose(t, second, CloseGlobalCapacity)
}

func TestGateway_AutoplayStatusLatchesDeviceAndUpdatesPreference(t *testing.T) {
	userID := uuid.New()
	harness := newHarness(t, &stubResolver{userID: userID}, nil, defaultOptions())

	conn := dial(t, harness.wsURL)
	confirmRoundtrip(t, conn, true, "D1")

	assert.True(t, harness.coordinator.AutoplayEnabled(userID, "D1"))
	assert.False(t, harness.coordinator.AutoplayEnabled(userID, "D2"))

	confirmRoundtrip(t, conn, false, "")
	assert.False(t, harness.coordinator.AutoplayEnabled(userID, "D1"))
}

func TestGateway_RequestNextAudioProducesNoResponse(t *testing.T) {
	harness := newHarness(t, &stubResolver{userID: uuid.New()}, nil, defaultOptions())

	conn := dial(t, harness.wsURL)
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "requestNextAudio"}))

	// The next frame the client sees is the echo of the follow-up message,
	// proving the legacy no-op stayed silent.
	confirmRoundtrip(t, conn, true, "")
}

func TestGateway_MalformedAndUnknownMessagesIgnored(t *testing.T) {
	harness := newHarness(t, &stubResolver{userID: uuid.New()}, nil, defaultOptions())

	conn := dial(t, harness.wsURL)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "doesNotExist"}))

	confirmRoundtrip(t, conn, true, "")
}

func TestGateway_MessageFloodClosesWithRateLimitCode(t *testing.T) {
	opts := defaultOptions()
	opts.MessageBurstCeiling = 2
	harness := newHarness(t, &stubResolver{userID: uuid.New()}, nil, opts)

	conn := dial(t, harness.wsURL)

	// The fake clock never advances, so every message is inside the minimum
	// interval and the burst counter grows until the ceiling trips.
	for i := 0; i < 5; i++ {
		_ = conn.WriteJSON(map[string]string{"action": "requestNextAudio"})
	}
	expectClose(t, conn, CloseRateLimited)
}

func TestGateway_SendsLatestTranscriptionsOnConnect(t *testing.T) {
	recent := &stubRecent{latest: []domain.EnrichedTranscription{
		{TranscriptionEvent: domain.TranscriptionEvent{ID: uuid.New(), Text: "fire on Main St"}},
		{TranscriptionEvent: domain.TranscriptionEvent{ID: uuid.New(), Text: "second call"}},
	}}
	harness := newHarness(t, &stubResolver{userID: uuid.New()}, recent, defaultOptions())

	conn := dial(t, harness.wsURL)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var batch struct {
		Action string                         `json:"action"`
		Data   []domain.EnrichedTranscription `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&batch))
	assert.Equal(t, "latestTranscriptions", batch.Action)
	require.Len(t, batch.Data, 2)
	assert.Equal(t, "fire on Main St", batch.Data[0].Text)
}

func TestGateway_BroadcastReachesAllConnections(t *testing.T) {
	harness := newHarness(t, &stubResolver{userID: uuid.New()}, nil, defaultOptions())

	first := dial(t, harness.wsURL)
	confirmRoundtrip(t, first, true, "")
	second := dial(t, harness.wsURL)
	confirmRoundtrip(t, second, true, "")

	harness.gateway.Broadcast(map[string]string{"action": "newTranscription"})

	for _, conn := range []*ws.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]string
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "newTranscription", msg["action"])
	}
}

func TestGateway_DisconnectUpdatesRegistry(t *testing.T) {
	userID := uuid.New()
	harness := newHarness(t, &stubResolver{userID: userID}, nil, defaultOptions())

	conn := dial(t, harness.wsURL)
	confirmRoundtrip(t, conn, true, "")
	require.Equal(t, 1, harness.registry.Count(userID))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return harness.registry.Count(userID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
