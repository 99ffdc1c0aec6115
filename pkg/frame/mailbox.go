package frame

import "sync"

// Mailbox is a single-slot hand-off cell between the decode thread and the
// render thread. Only the freshest frame is kept: publishing over an
// unconsumed frame displaces it, it is never queued behind it. The consumer
// polls once per display refresh, so a backlog would only add latency.
//
// The lock is held for the swap only; decoding and rendering happen outside.
type Mailbox struct {
	mu    sync.Mutex
	frame *Frame
}

func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Publish stores f as the current frame and returns the displaced occupant,
// if any. The caller owns the returned frame and must release it.
func (m *Mailbox) Publish(f *Frame) *Frame {
	m.mu.Lock()
	prev := m.frame
	m.frame = f
	m.mu.Unlock()
	return prev
}

// TryTake removes and returns the current frame, or nil when none is ready.
// The caller must release the returned frame exactly once.
func (m *Mailbox) TryTake() *Frame {
	m.mu.Lock()
	f := m.frame
	m.frame = nil
	m.mu.Unlock()
	return f
}
