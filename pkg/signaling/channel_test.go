package signaling

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/floppyhammer/rstream/pkg/input"
)

func wsURL(hs *httptest.Server) string {
	return "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
}

func newTestServer(handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(websocket.Handler(handler))
}

func TestConnectNotifiesConnectedOnce(t *testing.T) {
	accepted := make(chan *websocket.Conn, 1)
	hs := newTestServer(func(ws *websocket.Conn) {
		accepted <- ws
		// Hold the connection open until the test finishes.
		var buf [1]byte
		_, _ = ws.Read(buf[:])
	})
	defer hs.Close()

	c := NewChannel()
	var connects int32
	connected := make(chan struct{})
	c.OnConnected(func() {
		if atomic.AddInt32(&connects, 1) == 1 {
			close(connected)
		}
	})
	c.OnFailed(func(err error) {
		t.Errorf("failed notification fired on a healthy endpoint: %+v", err)
	})

	c.Connect(context.Background(), wsURL(hs))
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connected notification")
	}
	<-accepted
	assert.Equal(t, int32(1), atomic.LoadInt32(&connects))
	c.Close()
}

func TestConnectFailureNotifiesFailedOnce(t *testing.T) {
	c := NewChannel()
	var fails int32
	failed := make(chan struct{})
	c.OnConnected(func() { t.Error("connected fired for an unreachable endpoint") })
	c.OnFailed(func(err error) {
		if atomic.AddInt32(&fails, 1) == 1 {
			close(failed)
		}
	})

	// Nobody listens on this port.
	c.Connect(context.Background(), "ws://127.0.0.1:1/ws")
	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for failed notification")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fails))
	// Close after a failed connect is a no-op.
	c.Close()
}

func TestCloseCancelsInFlightConnect(t *testing.T) {
	release := make(chan struct{})
	hs := newTestServer(func(ws *websocket.Conn) {
		<-release
	})
	defer hs.Close()

	c := NewChannel()
	c.OnConnected(func() { t.Error("connected fired after cancellation") })
	c.OnFailed(func(err error) { t.Error("failed fired after cancellation") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Connect(ctx, wsURL(hs))
	// Neither notification may act on the stale attempt.
	time.Sleep(200 * time.Millisecond)
	close(release)
	c.Close()
}

func TestMessageDispatch(t *testing.T) {
	serverReady := make(chan *websocket.Conn, 1)
	hs := newTestServer(func(ws *websocket.Conn) {
		serverReady <- ws
		var buf [1]byte
		_, _ = ws.Read(buf[:])
	})
	defer hs.Close()

	c := NewChannel()
	connected := make(chan struct{})
	c.OnConnected(func() { close(connected) })
	msgs := make(chan *Message, 8)
	c.OnMessage(func(msg *Message) { msgs <- msg })

	c.Connect(context.Background(), wsURL(hs))
	<-connected
	ws := <-serverReady

	require.NoError(t, websocket.JSON.Send(ws, map[string]interface{}{
		"msg": "offer",
		"sdp": "v=0\r\n",
	}))
	select {
	case msg := <-msgs:
		assert.Equal(t, MessageOffer, msg.Msg)
		require.NotNil(t, msg.Offer)
		assert.Equal(t, "v=0\r\n", msg.Offer.SDP)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for offer")
	}

	index := uint16(0)
	require.NoError(t, websocket.JSON.Send(ws, map[string]interface{}{
		"msg": "candidate",
		"candidate": map[string]interface{}{
			"candidate":     "candidate:1 1 UDP 1 10.0.0.5 7777 typ host",
			"sdpMLineIndex": index,
		},
	}))
	select {
	case msg := <-msgs:
		assert.Equal(t, MessageCandidate, msg.Msg)
		require.NotNil(t, msg.Candidate)
		require.NotNil(t, msg.Candidate.SDPMLineIndex)
		assert.Equal(t, index, *msg.Candidate.SDPMLineIndex)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for candidate")
	}

	// Malformed and unknown messages are dropped without reaching the owner.
	require.NoError(t, websocket.Message.Send(ws, "{not json"))
	require.NoError(t, websocket.JSON.Send(ws, map[string]interface{}{"msg": "bogus"}))
	select {
	case msg := <-msgs:
		t.Fatalf("unexpected message dispatched: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}

	c.Close()
}

func TestSendInputEventLegacyJSON(t *testing.T) {
	got := make(chan inputEventMessage, 1)
	hs := newTestServer(func(ws *websocket.Conn) {
		var msg inputEventMessage
		if err := websocket.JSON.Receive(ws, &msg); err == nil {
			got <- msg
		}
	})
	defer hs.Close()

	c := NewChannel()
	assert.Equal(t, errNotConnected, c.SendInputEvent(input.CursorMove, 0.5, 0.5))

	connected := make(chan struct{})
	c.OnConnected(func() { close(connected) })
	c.Connect(context.Background(), wsURL(hs))
	<-connected

	require.NoError(t, c.SendInputEvent(input.CursorMove, 0.25, 0.75))
	select {
	case msg := <-got:
		assert.Equal(t, "input", msg.MsgType)
		assert.Equal(t, int(input.CursorMove), msg.InputType)
		assert.Equal(t, 0.25, msg.X)
		assert.Equal(t, 0.75, msg.Y)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for input message")
	}
	c.Close()
}
