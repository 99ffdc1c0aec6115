// Package signaling implements the websocket control channel used to
// bootstrap a streaming session before media flows.
package signaling

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"golang.org/x/net/websocket"

	"github.com/floppyhammer/rstream/pkg/input"
)

var errNotConnected = errors.New("not connected")

// Channel is an asynchronous websocket client. Connect resolves into exactly
// one of the connected or failed notifications, unless cancelled first, in
// which case neither fires.
type Channel struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	callbackMu  sync.Mutex
	onConnected func()
	onFailed    func(err error)
	onClosed    func(err error)
	onMessage   func(msg *Message)
}

func NewChannel() *Channel {
	return &Channel{}
}

// OnConnected registers a handler invoked once the websocket is established.
func (c *Channel) OnConnected(f func()) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onConnected = f
}

// OnFailed registers a handler invoked when the connect attempt fails.
func (c *Channel) OnFailed(f func(err error)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onFailed = f
}

// OnClosed registers a handler invoked when an established connection is
// closed by the remote side.
func (c *Channel) OnClosed(f func(err error)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onClosed = f
}

// OnMessage registers a handler for decoded control messages.
func (c *Channel) OnMessage(f func(msg *Message)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onMessage = f
}

// Connect asynchronously opens a connection to uri. The result arrives via
// the connected or failed notification; cancelling ctx (or calling Close)
// before the dial resolves suppresses both.
func (c *Channel) Connect(ctx context.Context, uri string) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	log.Printf("connecting to signaling server: %s", uri)
	go func() {
		conn, err := websocket.Dial(uri, "", uri)
		if ctx.Err() != nil {
			// Cancelled mid-dial: act on nothing.
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			log.Printf("websocket connection failed: %+v", err)
			c.callbackMu.Lock()
			h := c.onFailed
			c.callbackMu.Unlock()
			if h != nil {
				h(err)
			}
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		log.Printf("websocket connected")

		c.callbackMu.Lock()
		h := c.onConnected
		c.callbackMu.Unlock()
		if h != nil {
			h()
		}

		c.recv(ctx, conn)
	}()
}

// Close cancels any in-flight connect attempt and closes the socket.
// Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		log.Printf("closing websocket connection")
		conn.Close()
	}
}

// SendInputEvent sends one input event over the legacy JSON path.
// Deprecated: the binary event channel supersedes this; kept for hosts that
// only speak the control channel.
func (c *Channel) SendInputEvent(t input.Type, x, y float32) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	return websocket.JSON.Send(conn, &inputEventMessage{
		MsgType:   "input",
		InputType: int(t),
		X:         float64(x),
		Y:         float64(y),
	})
}

func (c *Channel) recv(ctx context.Context, conn *websocket.Conn) {
	for {
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			if ctx.Err() != nil {
				// Local close in progress.
				return
			}
			log.Printf("websocket closed: %+v", err)
			c.callbackMu.Lock()
			h := c.onClosed
			c.callbackMu.Unlock()
			if h != nil {
				h(err)
			}
			return
		}
		c.handleMessage(raw)
	}
}

// handleMessage decodes one control message. Malformed or unrecognized
// messages are dropped with a log, no state change.
func (c *Channel) handleMessage(raw json.RawMessage) {
	var msg receivedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("error parsing message: %+v", err)
		return
	}

	out := &Message{Msg: msg.Msg, Raw: msg.Payload}
	switch msg.Msg {
	case MessageOffer:
		var offer offerMessage
		if err := json.Unmarshal(msg.Payload, &offer); err != nil {
			log.Printf("failed to unmarshal offer: %+v", err)
			return
		}
		out.Offer = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	case MessageCandidate:
		var cand candidateMessage
		if err := json.Unmarshal(msg.Payload, &cand); err != nil {
			log.Printf("failed to unmarshal candidate: %+v", err)
			return
		}
		if cand.Candidate == nil {
			log.Printf("received nil candidate")
			return
		}
		out.Candidate = cand.Candidate
	case MessageSession:
		// Session messages stay raw; the schema is still settling.
	default:
		log.Printf("unknown message type received: %q", msg.Msg)
		return
	}

	c.callbackMu.Lock()
	h := c.onMessage
	c.callbackMu.Unlock()
	if h != nil {
		h(out)
	}
}
