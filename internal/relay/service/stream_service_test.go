package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/internal/relay/audit"
	"github.com/cb3tech/moshcast-live/internal/relay/hub"
	"github.com/cb3tech/moshcast-live/internal/relay/store"
	"github.com/cb3tech/moshcast-live/pkg/jwt"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 8192,
	}
}

func newTestService(t *testing.T, tokens *jwt.Manager) (StreamService, *hub.Hub) {
	t.Helper()
	h := hub.NewHub(testWSConfig())
	go h.Run()

	svc := NewStreamService(h, store.NewMemoryStore(), audit.NewNopRecorder(), tokens, config.SyncConfig{
		MaxListeners: 3,
	})
	return svc, h
}

// newTestClient builds a registered client whose outbound queue the
// test reads directly; no real socket is involved.
func newTestClient(t *testing.T, h *hub.Hub, id string) *hub.Client {
	t.Helper()
	c := hub.NewClient(id, h, nil, testWSConfig())
	h.Register(c)
	return c
}

// recv waits for the next queued message and returns its type and raw
// payload.
func recv(t *testing.T, c *hub.Client) (string, []byte) {
	t.Helper()
	select {
	case data := <-c.Send:
		var base domain.BaseMessage
		require.NoError(t, json.Unmarshal(data, &base))
		return base.Type, data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return "", nil
	}
}

func recvExpect(t *testing.T, c *hub.Client, msgType string) []byte {
	t.Helper()
	got, data := recv(t, c)
	require.Equal(t, msgType, got, "unexpected message: %s", data)
	return data
}

func startSession(t *testing.T, svc StreamService, host *hub.Client, hostID string) {
	t.Helper()
	require.NoError(t, svc.HandleHostStart(context.Background(), host, domain.HostStartMessage{
		Type:   domain.MsgTypeHostStart,
		HostID: hostID,
		Track: &domain.Track{
			ID:       "track-1",
			Title:    "Set Opener",
			MediaURL: "https://media.example.com/1.mp3",
			Duration: 180,
		},
	}))
	recvExpect(t, host, domain.MsgTypeHostStarted)
}

func joinSession(t *testing.T, svc StreamService, c *hub.Client, hostID, name string) domain.StreamStateMessage {
	t.Helper()
	require.NoError(t, svc.HandleListenerJoin(context.Background(), c, domain.ListenerJoinMessage{
		Type:        domain.MsgTypeListenerJoin,
		HostID:      hostID,
		DisplayName: name,
	}))
	var state domain.StreamStateMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, c, domain.MsgTypeStreamState), &state))
	return state
}

func TestHostStartAndListenerJoin(t *testing.T) {
	svc, h := newTestService(t, nil)
	host := newTestClient(t, h, "conn-host")
	listener := newTestClient(t, h, "conn-listener")

	startSession(t, svc, host, "host-1")

	state := joinSession(t, svc, listener, "host-1", "ana")
	assert.Equal(t, "host-1", state.Snapshot.HostID)
	require.NotNil(t, state.Snapshot.Track)
	assert.Equal(t, "https://media.example.com/1.mp3", state.Snapshot.Track.MediaURL)
	assert.True(t, state.Snapshot.IsPlaying)
	assert.Equal(t, 1, state.Snapshot.ListenerCount)
	assert.NotZero(t, state.Snapshot.TimestampMS, "relay must stamp the sample time")

	// The host sees the roster change and the system notice.
	var listeners domain.StreamListenersMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, host, domain.MsgTypeStreamListeners), &listeners))
	assert.Equal(t, 1, listeners.Count)

	var notice domain.ChatMessageOut
	require.NoError(t, json.Unmarshal(recvExpect(t, host, domain.MsgTypeChatMessage), &notice))
	assert.True(t, notice.System)
	assert.Contains(t, notice.Text, "ana")
}

func TestJoinNotLive(t *testing.T) {
	svc, h := newTestService(t, nil)
	listener := newTestClient(t, h, "conn-listener")

	require.NoError(t, svc.HandleListenerJoin(context.Background(), listener, domain.ListenerJoinMessage{
		Type:   domain.MsgTypeListenerJoin,
		HostID: "host-away",
	}))

	var errMsg domain.StreamErrorMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, listener, domain.MsgTypeStreamError), &errMsg))
	assert.Equal(t, domain.ErrCodeNotLive, errMsg.Code)
}

func TestJoinSessionFull(t *testing.T) {
	h := hub.NewHub(testWSConfig())
	go h.Run()
	svc := NewStreamService(h, store.NewMemoryStore(), audit.NewNopRecorder(), nil, config.SyncConfig{
		MaxListeners: 1,
	})

	host := newTestClient(t, h, "conn-host")
	first := newTestClient(t, h, "conn-1")
	second := newTestClient(t, h, "conn-2")

	startSession(t, svc, host, "host-1")
	joinSession(t, svc, first, "host-1", "first")

	require.NoError(t, svc.HandleListenerJoin(context.Background(), second, domain.ListenerJoinMessage{
		Type:   domain.MsgTypeListenerJoin,
		HostID: "host-1",
	}))

	var errMsg domain.StreamErrorMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, second, domain.MsgTypeStreamError), &errMsg))
	assert.Equal(t, domain.ErrCodeSessionFull, errMsg.Code)
}

func TestHostUpdateFanOut(t *testing.T) {
	svc, h := newTestService(t, nil)
	host := newTestClient(t, h, "conn-host")
	listener := newTestClient(t, h, "conn-listener")

	startSession(t, svc, host, "host-1")
	joinSession(t, svc, listener, "host-1", "ana")
	recvExpect(t, listener, domain.MsgTypeStreamListeners)
	recvExpect(t, listener, domain.MsgTypeChatMessage)
	recvExpect(t, host, domain.MsgTypeStreamListeners)
	recvExpect(t, host, domain.MsgTypeChatMessage)

	pos := 42.5
	playing := true
	require.NoError(t, svc.HandleHostUpdate(context.Background(), host, domain.HostUpdateMessage{
		Type:      domain.MsgTypeHostUpdate,
		Position:  &pos,
		IsPlaying: &playing,
	}))

	var update domain.StreamUpdateMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, listener, domain.MsgTypeStreamUpdate), &update))
	require.NotNil(t, update.Update.Position)
	assert.InDelta(t, 42.5, *update.Update.Position, 0.001)
	assert.NotZero(t, update.Update.TimestampMS)

	// The host never receives its own updates back.
	select {
	case data := <-host.Send:
		t.Fatalf("host received unexpected message: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHostUpdateFromNonHost(t *testing.T) {
	svc, h := newTestService(t, nil)
	c := newTestClient(t, h, "conn-random")

	pos := 10.0
	require.NoError(t, svc.HandleHostUpdate(context.Background(), c, domain.HostUpdateMessage{
		Type:     domain.MsgTypeHostUpdate,
		Position: &pos,
	}))

	var errMsg domain.StreamErrorMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, c, domain.MsgTypeStreamError), &errMsg))
	assert.Equal(t, domain.ErrCodeBadRequest, errMsg.Code)
}

func TestHostEndNotifiesListeners(t *testing.T) {
	svc, h := newTestService(t, nil)
	host := newTestClient(t, h, "conn-host")
	listener := newTestClient(t, h, "conn-listener")

	startSession(t, svc, host, "host-1")
	joinSession(t, svc, listener, "host-1", "ana")
	recvExpect(t, listener, domain.MsgTypeStreamListeners)
	recvExpect(t, listener, domain.MsgTypeChatMessage)

	require.NoError(t, svc.HandleHostEnd(context.Background(), host))

	var ended domain.StreamEndedMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, listener, domain.MsgTypeStreamEnded), &ended))
	assert.NotEmpty(t, ended.Message)

	active, err := svc.ActiveSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestHostDisconnectEndsSession(t *testing.T) {
	svc, h := newTestService(t, nil)
	host := newTestClient(t, h, "conn-host")
	listener := newTestClient(t, h, "conn-listener")

	startSession(t, svc, host, "host-1")
	joinSession(t, svc, listener, "host-1", "ana")
	recvExpect(t, listener, domain.MsgTypeStreamListeners)
	recvExpect(t, listener, domain.MsgTypeChatMessage)

	require.NoError(t, svc.HandleDisconnect(context.Background(), host))

	recvExpect(t, listener, domain.MsgTypeStreamEnded)

	active, err := svc.ActiveSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

// Teardown tears the session group out of the hub synchronously, so
// the ended notice must not depend on the group still existing when a
// queued broadcast drains. Loop to shake out ordering flakes.
func TestSessionTeardownAlwaysNotifies(t *testing.T) {
	svc, h := newTestService(t, nil)

	for i := 0; i < 50; i++ {
		hostID := fmt.Sprintf("host-%d", i)
		host := newTestClient(t, h, fmt.Sprintf("conn-host-%d", i))
		listener := newTestClient(t, h, fmt.Sprintf("conn-listener-%d", i))

		startSession(t, svc, host, hostID)
		joinSession(t, svc, listener, hostID, "ana")
		recvExpect(t, listener, domain.MsgTypeStreamListeners)
		recvExpect(t, listener, domain.MsgTypeChatMessage)

		require.NoError(t, svc.HandleHostEnd(context.Background(), host))
		recvExpect(t, listener, domain.MsgTypeStreamEnded)
	}
}

func TestListenerLeaveUpdatesRoster(t *testing.T) {
	svc, h := newTestService(t, nil)
	host := newTestClient(t, h, "conn-host")
	first := newTestClient(t, h, "conn-1")
	second := newTestClient(t, h, "conn-2")

	startSession(t, svc, host, "host-1")
	joinSession(t, svc, first, "host-1", "first")
	joinSession(t, svc, second, "host-1", "second")

	// Drain the joins.
	recvExpect(t, host, domain.MsgTypeStreamListeners)
	recvExpect(t, host, domain.MsgTypeChatMessage)
	recvExpect(t, host, domain.MsgTypeStreamListeners)
	recvExpect(t, host, domain.MsgTypeChatMessage)

	require.NoError(t, svc.HandleListenerLeave(context.Background(), first))

	var listeners domain.StreamListenersMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, host, domain.MsgTypeStreamListeners), &listeners))
	assert.Equal(t, 1, listeners.Count)

	var notice domain.ChatMessageOut
	require.NoError(t, json.Unmarshal(recvExpect(t, host, domain.MsgTypeChatMessage), &notice))
	assert.True(t, notice.System)
	assert.Contains(t, notice.Text, "first")
}

func TestChatEchoIncludesSender(t *testing.T) {
	svc, h := newTestService(t, nil)
	host := newTestClient(t, h, "conn-host")
	listener := newTestClient(t, h, "conn-listener")

	startSession(t, svc, host, "host-1")
	joinSession(t, svc, listener, "host-1", "ana")
	recvExpect(t, listener, domain.MsgTypeStreamListeners)
	recvExpect(t, listener, domain.MsgTypeChatMessage)
	recvExpect(t, host, domain.MsgTypeStreamListeners)
	recvExpect(t, host, domain.MsgTypeChatMessage)

	require.NoError(t, svc.HandleChat(context.Background(), listener, "great set!"))

	for _, c := range []*hub.Client{host, listener} {
		var msg domain.ChatMessageOut
		require.NoError(t, json.Unmarshal(recvExpect(t, c, domain.MsgTypeChatMessage), &msg))
		assert.Equal(t, "conn-listener", msg.SenderID)
		assert.Equal(t, "ana", msg.SenderLabel)
		assert.Equal(t, "great set!", msg.Text)
		assert.False(t, msg.System)
		assert.NotEmpty(t, msg.MessageID)
	}
}

func TestChatOutsideSession(t *testing.T) {
	svc, h := newTestService(t, nil)
	c := newTestClient(t, h, "conn-lonely")

	require.NoError(t, svc.HandleChat(context.Background(), c, "anyone?"))

	var errMsg domain.StreamErrorMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, c, domain.MsgTypeStreamError), &errMsg))
	assert.Equal(t, domain.ErrCodeBadRequest, errMsg.Code)
}

func TestHostRestartSupersedesConnection(t *testing.T) {
	svc, h := newTestService(t, nil)
	oldConn := newTestClient(t, h, "conn-old")
	newConn := newTestClient(t, h, "conn-new")
	listener := newTestClient(t, h, "conn-listener")

	startSession(t, svc, oldConn, "host-1")
	joinSession(t, svc, listener, "host-1", "ana")
	recvExpect(t, listener, domain.MsgTypeStreamListeners)
	recvExpect(t, listener, domain.MsgTypeChatMessage)
	recvExpect(t, oldConn, domain.MsgTypeStreamListeners)
	recvExpect(t, oldConn, domain.MsgTypeChatMessage)

	startSession(t, svc, newConn, "host-1")

	// The old connection is told it no longer hosts anything; the
	// listener resyncs from the fresh snapshot.
	recvExpect(t, oldConn, domain.MsgTypeStreamEnded)
	var state domain.StreamStateMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, listener, domain.MsgTypeStreamState), &state))
	assert.Equal(t, "host-1", state.Snapshot.HostID)
}

func TestAuth(t *testing.T) {
	tokens := jwt.NewManager("test-secret", time.Hour, "moshcast")
	svc, h := newTestService(t, tokens)
	c := newTestClient(t, h, "conn-1")

	token, err := tokens.Generate("user-1", "ana")
	require.NoError(t, err)

	require.NoError(t, svc.HandleAuth(context.Background(), c, token))
	var result domain.AuthResultMessage
	require.NoError(t, json.Unmarshal(recvExpect(t, c, domain.MsgTypeAuthResult), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, "ana", result.Username)

	require.Error(t, svc.HandleAuth(context.Background(), c, "garbage"))
	require.NoError(t, json.Unmarshal(recvExpect(t, c, domain.MsgTypeAuthResult), &result))
	assert.False(t, result.Success)
}
