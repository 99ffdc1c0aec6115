// Package session drives the streaming connection lifecycle: it owns the
// signaling and event channels, the active decode pipeline, and the single
// authoritative connection status.
package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/floppyhammer/rstream/pkg/input"
)

const (
	// DefaultSignalingPort carries the websocket control channel.
	DefaultSignalingPort = 5600
	// SignalingPath is the control channel's websocket path.
	SignalingPath = "/ws"
	// EventPort is the fixed data port for the unreliable event channel.
	EventPort = 7777
)

// SignalingURI derives the control channel endpoint from the host address.
func SignalingURI(hostAddress string) string {
	return fmt.Sprintf("ws://%s:%d%s", hostAddress, DefaultSignalingPort, SignalingPath)
}

// Signaling is the control channel the session bootstraps through.
// Implemented by signaling.Channel.
type Signaling interface {
	Connect(ctx context.Context, uri string)
	Close()
	OnConnected(f func())
	OnFailed(f func(err error))
	OnClosed(f func(err error))
}

// EventChannel is the low-latency input transport.
// Implemented by eventch.Channel.
type EventChannel interface {
	Connect(host string, port uint16)
	Disconnect()
	Send(cmd input.Command)
	Connected() bool
	OnConnect(f func())
	OnDisconnect(f func())
}

// Pipeline is the active decode graph. Exclusively owned by the session once
// handed over; at most one is live at a time.
type Pipeline interface {
	Play() error
	Stop()
}

// Session coordinates one connection attempt to a host. Recreate (or
// reconnect) per attempt; Connect and Disconnect are idempotent so an owner
// can build retry policy on top.
type Session struct {
	id           string
	hostAddress  string
	signalingURI string

	signaling Signaling
	events    EventChannel

	mu       sync.Mutex
	status   Status
	pipeline Pipeline
	cancel   context.CancelFunc

	callbackMu     sync.Mutex
	onNeedPipeline func()
	onDropPipeline func()
	onStatusChange func(status Status)
}

// New creates a session for one host. The websocket URI and event port are
// both derived from the host address.
func New(hostAddress string, sig Signaling, events EventChannel) *Session {
	s := &Session{
		id:           uuid.New().String(),
		hostAddress:  hostAddress,
		signalingURI: SignalingURI(hostAddress),
		signaling:    sig,
		events:       events,
	}
	log.Printf("new session %s (host: %s)", s.id, hostAddress)

	sig.OnConnected(s.handleSignalingConnected)
	sig.OnFailed(s.handleSignalingFailed)
	sig.OnClosed(s.handleSignalingClosed)
	events.OnConnect(s.handleEventConnected)
	events.OnDisconnect(s.handleEventDisconnected)
	return s
}

// OnNeedPipeline registers the owner's pipeline factory notification. The
// handler must call SetPipeline before returning; leaving the pipeline unset
// is treated as a fatal setup failure and disconnects the session.
func (s *Session) OnNeedPipeline(f func()) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onNeedPipeline = f
}

// OnDropPipeline registers the notification on which the owner must release
// any pipeline references retained from the need-pipeline handler.
func (s *Session) OnDropPipeline(f func()) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onDropPipeline = f
}

// OnStatusChange registers an observer for status transitions.
func (s *Session) OnStatusChange(f func(status Status)) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.onStatusChange = f
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Connect resets any previous session state and starts both channels. The
// two channels connect and fail independently; only Disconnect tears both
// down.
func (s *Session) Connect(ctx context.Context) {
	s.Disconnect()

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.signaling.Connect(ctx, s.signalingURI)
	s.setStatus(StatusConnecting)

	s.events.Connect(s.hostAddress, EventPort)
}

// Disconnect cancels any in-flight connect attempt, notifies the owner to
// drop pipeline references, halts the pipeline, and tears down both
// channels. Every step runs even if an earlier one had nothing to do.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	log.Printf("session %s: emitting drop-pipeline", s.id)
	s.callbackMu.Lock()
	h := s.onDropPipeline
	s.callbackMu.Unlock()
	if h != nil {
		h()
	}

	s.mu.Lock()
	p := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()
	if p != nil {
		p.Stop()
	}

	s.signaling.Close()
	s.events.Disconnect()
	s.setStatus(StatusIdle)
}

// SetPipeline hands a pipeline over to the session. Any existing pipeline is
// fully halted first, then the new one is started. Valid in response to (or
// any time after) a need-pipeline notification; callers on multiple threads
// must serialize externally.
func (s *Session) SetPipeline(p Pipeline) {
	s.mu.Lock()
	old := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()
	if old != nil {
		log.Printf("session %s: stopping previous pipeline", s.id)
		old.Stop()
	}
	if p == nil {
		return
	}

	s.mu.Lock()
	s.pipeline = p
	s.mu.Unlock()

	log.Printf("session %s: starting pipeline", s.id)
	if err := p.Play(); err != nil {
		// A client without a decode pipeline is not a supported mode.
		log.Fatalf("failed to start pipeline: %+v", err)
	}
}

// SendInput encodes a cursor or stick event and routes it to the event
// channel. Dropped with a log when the event channel is not connected.
func (s *Session) SendInput(t input.Type, x, y float32) {
	if !s.events.Connected() {
		log.Printf("cannot send input %s: event channel not connected", t)
		return
	}
	s.events.Send(input.NewAxisCommand(t, x, y))
}

// SendButton routes a discrete press or release to the event channel.
func (s *Session) SendButton(t input.Type, pressed bool) {
	if !s.events.Connected() {
		log.Printf("cannot send input %s: event channel not connected", t)
		return
	}
	s.events.Send(input.NewButtonCommand(t, pressed))
}

func (s *Session) handleSignalingConnected() {
	s.setStatus(StatusNegotiating)

	log.Printf("session %s: requesting pipeline from owner", s.id)
	s.callbackMu.Lock()
	h := s.onNeedPipeline
	s.callbackMu.Unlock()
	if h != nil {
		h()
	}

	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	if p == nil {
		log.Printf("need-pipeline notification did not produce a pipeline")
		s.Disconnect()
		return
	}

	if s.events.Connected() {
		s.setStatus(StatusConnected)
	} else {
		s.setStatus(StatusConnectedNoData)
	}
}

func (s *Session) handleSignalingFailed(err error) {
	log.Printf("session %s: signaling failed: %+v", s.id, err)
	s.setStatus(StatusSignalingFailed)
}

func (s *Session) handleSignalingClosed(err error) {
	if err == io.EOF {
		s.setStatus(StatusDisconnectedRemote)
		return
	}
	s.setStatus(StatusDisconnectedError)
}

func (s *Session) handleEventConnected() {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	if st == StatusConnectedNoData {
		s.setStatus(StatusConnected)
	}
}

func (s *Session) handleEventDisconnected() {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	if st == StatusConnected || st == StatusConnectedNoData {
		s.setStatus(StatusDisconnectedRemote)
	}
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	if status == s.status {
		s.mu.Unlock()
		return
	}
	old := s.status
	s.status = status
	s.mu.Unlock()
	log.Printf("session %s: status %s -> %s", s.id, old, status)

	s.callbackMu.Lock()
	h := s.onStatusChange
	s.callbackMu.Unlock()
	if h != nil {
		h(status)
	}
}
