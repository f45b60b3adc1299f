package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cb3tech/moshcast-live/internal/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// relayStub is a minimal relay: greets with hello, records inbound
// messages, and lets tests push messages or kill the connection.
type relayStub struct {
	mu       sync.Mutex
	conns    []*websocket.Conn
	received chan []byte
	server   *httptest.Server
}

func newRelayStub(t *testing.T) *relayStub {
	t.Helper()
	s := &relayStub{received: make(chan []byte, 16)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		n := len(s.conns)
		s.mu.Unlock()

		conn.WriteJSON(map[string]string{"type": domain.MsgTypeHello, "conn_id": "conn-" + string(rune('0'+n))})

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.received <- data
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *relayStub) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *relayStub) send(t *testing.T, v interface{}) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns)
	require.NoError(t, s.conns[len(s.conns)-1].WriteJSON(v))
}

func (s *relayStub) dropCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) > 0 {
		s.conns[len(s.conns)-1].Close()
	}
}

func (s *relayStub) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func testOptions() Options {
	return Options{
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
		DialTimeout:  time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectReceivesHello(t *testing.T) {
	stub := newRelayStub(t)
	ch := New(stub.wsURL(), testOptions())
	defer ch.Disconnect()

	require.NoError(t, ch.Connect(context.Background()))
	waitFor(t, func() bool { return ch.ConnID() != "" }, "no hello received")
	assert.True(t, ch.Connected())
}

func TestDispatchByEventName(t *testing.T) {
	stub := newRelayStub(t)
	ch := New(stub.wsURL(), testOptions())
	defer ch.Disconnect()

	got := make(chan []byte, 1)
	ch.On(domain.MsgTypeStreamListeners, func(data []byte) { got <- data })

	require.NoError(t, ch.Connect(context.Background()))
	waitFor(t, func() bool { return ch.Connected() }, "not connected")

	stub.send(t, domain.StreamListenersMessage{Type: domain.MsgTypeStreamListeners, Count: 3})

	select {
	case data := <-got:
		assert.Contains(t, string(data), `"count":3`)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}
}

func TestEmitWhileDisconnectedFailsFast(t *testing.T) {
	ch := New("ws://127.0.0.1:1/ws", testOptions())
	err := ch.Emit(domain.MsgTypePing, domain.BaseMessage{Type: domain.MsgTypePing})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestHandlersSurviveReconnect(t *testing.T) {
	stub := newRelayStub(t)
	ch := New(stub.wsURL(), testOptions())
	defer ch.Disconnect()

	var mu sync.Mutex
	var fired int
	ch.On(domain.MsgTypeStreamEnded, func([]byte) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	drops := make(chan struct{}, 4)
	ch.OnDisconnect(func() { drops <- struct{}{} })

	require.NoError(t, ch.Connect(context.Background()))
	waitFor(t, func() bool { return ch.Connected() }, "not connected")

	stub.dropCurrent()
	<-drops
	waitFor(t, func() bool { return stub.connCount() >= 2 && ch.Connected() }, "never reconnected")

	stub.send(t, domain.StreamEndedMessage{Type: domain.MsgTypeStreamEnded, Message: "bye"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired > 0
	}, "handler lost across reconnect")

	mu.Lock()
	assert.Equal(t, 1, fired, "message must be dispatched exactly once")
	mu.Unlock()
}

func TestDisconnectStopsReconnecting(t *testing.T) {
	stub := newRelayStub(t)
	ch := New(stub.wsURL(), testOptions())

	require.NoError(t, ch.Connect(context.Background()))
	waitFor(t, func() bool { return ch.Connected() }, "not connected")

	ch.Disconnect()
	waitFor(t, func() bool { return !ch.Connected() }, "still connected after Disconnect")

	before := stub.connCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, stub.connCount(), "channel redialed after Disconnect")
}

func TestEmitRoundTrip(t *testing.T) {
	stub := newRelayStub(t)
	ch := New(stub.wsURL(), testOptions())
	defer ch.Disconnect()

	require.NoError(t, ch.Connect(context.Background()))
	waitFor(t, func() bool { return ch.Connected() }, "not connected")

	require.NoError(t, ch.Emit(domain.MsgTypeChatSend,
		domain.ChatSendMessage{Type: domain.MsgTypeChatSend, Text: "hi"}))

	select {
	case data := <-stub.received:
		assert.Contains(t, string(data), `"chat:send"`)
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received the message")
	}
}
