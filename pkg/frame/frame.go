package frame

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

// TextureTarget is the GL texture target kind the decoder negotiated.
type TextureTarget int

const (
	Texture2D TextureTarget = iota
	TextureExternalOES
)

func (t TextureTarget) String() string {
	switch t {
	case Texture2D:
		return "2D"
	case TextureExternalOES:
		return "external-oes"
	default:
		return fmt.Sprintf("TextureTarget(%d)", int(t))
	}
}

// Frame is one decoded video sample: a GPU texture handle plus the target it
// must be bound to. Frames are reference counted because they cross the
// pipeline/render thread boundary; the backing GPU resource is released
// through the hook exactly once, when the count drops to zero. GPU teardown
// must run deterministically, so frame lifetime is never left to the GC.
type Frame struct {
	TextureID uint32
	Target    TextureTarget

	// DecodeEnd is the moment decoding finished, carried for latency
	// instrumentation. It does not affect control flow.
	DecodeEnd time.Time

	refs    int32
	release func()
}

// New creates a frame with a reference count of one, owned by the caller.
// release runs once when the last reference is dropped; it may be nil.
func New(textureID uint32, target TextureTarget, decodeEnd time.Time, release func()) *Frame {
	return &Frame{
		TextureID: textureID,
		Target:    target,
		DecodeEnd: decodeEnd,
		refs:      1,
		release:   release,
	}
}

// Retain takes an additional reference.
func (f *Frame) Retain() {
	atomic.AddInt32(&f.refs, 1)
}

// Release drops one reference and runs the release hook when none remain.
func (f *Frame) Release() {
	n := atomic.AddInt32(&f.refs, -1)
	if n < 0 {
		log.Printf("frame %d over-released (refs=%d)", f.TextureID, n)
		return
	}
	if n == 0 && f.release != nil {
		f.release()
	}
}
