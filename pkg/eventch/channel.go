// Package eventch maintains a connection-oriented, partially unreliable
// channel to the host, used solely for input events. Continuous motion goes
// out unsequenced; discrete presses go out reliable and ordered.
package eventch

import (
	"log"
	"sync"
	"time"

	"github.com/codecat/go-enet"
	"github.com/tevino/abool"

	"github.com/floppyhammer/rstream/pkg/input"
)

const (
	// Input events travel on channel 0; channel 1 is reserved for the host.
	sendChannelID    = 0
	channelCount     = 2
	serviceTimeoutMs = 10

	disconnectGrace = 3 * time.Second
)

type outPacket struct {
	data  []byte
	flags enet.PacketFlags
}

// Channel is the ENet transport session. Sends are enqueued from any thread
// and flushed by a single background service goroutine, because the
// transport is not safe for concurrent send and service.
type Channel struct {
	mu   sync.Mutex
	host enet.Host
	peer enet.Peer
	done chan struct{}
	wg   sync.WaitGroup

	queueMu sync.Mutex
	queue   []outPacket

	connected *abool.AtomicBool

	// quickShutdown skips the graceful disconnect handshake and resets the
	// peer immediately.
	quickShutdown bool

	callbackMu   sync.Mutex
	onConnect    func()
	onDisconnect func()
}

func NewChannel() *Channel {
	return &Channel{
		connected:     abool.New(),
		quickShutdown: true,
	}
}

// OnConnect registers a handler invoked from the service goroutine when the
// connect handshake completes.
func (c *Channel) OnConnect(f func()) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onConnect = f
}

// OnDisconnect registers a handler invoked from the service goroutine when
// the peer disconnects.
func (c *Channel) OnDisconnect(f func()) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onDisconnect = f
}

// Connected reports whether the connect handshake has completed.
func (c *Channel) Connected() bool {
	return c.connected.IsSet()
}

// Connect tears down any previous session and initiates a new connect
// handshake to host:port. The transport context is mandatory infrastructure:
// failing to create it aborts the process.
func (c *Channel) Connect(host string, port uint16) {
	c.Disconnect()

	enet.Initialize()
	// A client host with exactly one outgoing peer and two channels.
	client, err := enet.NewHost(nil, 1, channelCount, 0, 0)
	if err != nil {
		log.Fatalf("failed to create ENet client host: %+v", err)
	}
	peer, err := client.Connect(enet.NewAddress(host, port), channelCount, 0)
	if err != nil {
		log.Fatalf("no available peers for initiating an ENet connection: %+v", err)
	}
	log.Printf("ENet connecting to %s:%d", host, port)

	done := make(chan struct{})
	c.mu.Lock()
	c.host = client
	c.peer = peer
	c.done = done
	c.mu.Unlock()

	c.wg.Add(1)
	go c.serviceLoop(client, peer, done)
}

// Send classifies the command by type and enqueues its encoded packet. It
// never blocks and never touches the socket from the caller's thread.
func (c *Channel) Send(cmd input.Command) {
	flags := enet.PacketFlagReliable
	if input.ClassOf(cmd.Type) == input.Unsequenced {
		flags = enet.PacketFlagUnsequenced
	}
	c.queueMu.Lock()
	c.queue = append(c.queue, outPacket{data: cmd.Marshal(), flags: flags})
	c.queueMu.Unlock()
}

// Disconnect stops the service goroutine, disconnects the peer, drops any
// unsent packets and destroys the transport context. Safe to call twice or
// with no active connection.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	host := c.host
	peer := c.peer
	done := c.done
	c.host = nil
	c.peer = nil
	c.done = nil
	c.mu.Unlock()
	if host == nil {
		return
	}

	// The transport is single-threaded: the service goroutine must be out of
	// Service before the disconnect sequence below may touch the host.
	close(done)
	c.wg.Wait()

	if c.quickShutdown {
		peer.DisconnectNow(0)
	} else {
		c.gracefulDisconnect(host, peer)
	}
	c.connected.UnSet()

	if dropped := c.drainQueue(); len(dropped) > 0 {
		log.Printf("dropping %d unsent input packets", len(dropped))
	}

	host.Destroy()
	enet.Deinitialize()
	log.Printf("ENet session destroyed")
}

// gracefulDisconnect requests a peer disconnect and waits a bounded grace
// period for the acknowledgment, resetting the peer if it never arrives.
func (c *Channel) gracefulDisconnect(host enet.Host, peer enet.Peer) {
	peer.Disconnect(0)

	deadline := time.Now().Add(disconnectGrace)
	for time.Now().Before(deadline) {
		ev := host.Service(serviceTimeoutMs)
		switch ev.GetType() {
		case enet.EventReceive:
			// Drop packets received while shutting down.
			ev.GetPacket().Destroy()
		case enet.EventDisconnect:
			log.Printf("ENet disconnected cleanly")
			return
		}
	}
	log.Printf("ENet disconnect timed out, resetting peer")
	peer.DisconnectNow(0)
}

// serviceLoop drains the send queue and services the transport at a bounded
// cadence until told to stop. It is the only goroutine that may block on
// network I/O.
func (c *Channel) serviceLoop(host enet.Host, peer enet.Peer, done chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-done:
			return
		default:
		}

		for _, p := range c.drainQueue() {
			if err := peer.SendBytes(p.data, sendChannelID, p.flags); err != nil {
				// Discard rather than retry so the queue cannot grow without
				// bound under sustained failure.
				log.Printf("ENet send error, packet dropped: %+v", err)
			}
		}

		// Service doubles as the flush of anything queued above, so input
		// latency is not batched. Block for up to 10ms waiting for events,
		// then drain any backlog without blocking.
		ev := host.Service(serviceTimeoutMs)
		for ev.GetType() != enet.EventNone {
			c.handleEvent(ev)
			ev = host.Service(0)
		}
	}
}

func (c *Channel) handleEvent(ev enet.Event) {
	switch ev.GetType() {
	case enet.EventConnect:
		log.Printf("ENet connected")
		c.connected.Set()
		c.callbackMu.Lock()
		h := c.onConnect
		c.callbackMu.Unlock()
		if h != nil {
			h()
		}
	case enet.EventDisconnect:
		log.Printf("ENet disconnected")
		c.connected.UnSet()
		c.callbackMu.Lock()
		h := c.onDisconnect
		c.callbackMu.Unlock()
		if h != nil {
			h()
		}
	case enet.EventReceive:
		// Nothing consumes host data at this layer yet.
		log.Printf("ENet received a packet")
		ev.GetPacket().Destroy()
	}
}

func (c *Channel) drainQueue() []outPacket {
	c.queueMu.Lock()
	q := c.queue
	c.queue = nil
	c.queueMu.Unlock()
	return q
}
