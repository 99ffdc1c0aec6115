// Package stream builds and supervises the video decode pipeline. The graph
// is network source, jitter buffer, decoder, GL-backed sink; completed
// frames land in a single-slot mailbox drained by the render loop.
package stream

import (
	"fmt"
	"log"
	"sync"

	"github.com/floppyhammer/rstream/pkg/frame"
	"github.com/floppyhammer/rstream/pkg/session"
)

// GLContext exposes the render thread's GL objects so the decoder can share
// textures with it. Implemented by the platform layer.
type GLContext interface {
	Display() uintptr
	Context() uintptr
	Surface() uintptr
}

// Renderer consumes decoded frames. Implemented by the platform layer as a
// single textured-quad blit.
type Renderer interface {
	Draw(textureID uint32, target frame.TextureTarget)
}

// Config describes the decode graph. The geometry is the negotiated stream
// geometry; it feeds coordinate mapping, not the pipeline caps.
type Config struct {
	// Port is the UDP port the RTP video stream arrives on.
	Port int
	// BufferSize is the udpsrc kernel receive buffer, in bytes.
	BufferSize int
	// JitterLatencyMs is the jitter buffer depth.
	JitterLatencyMs int
	Width           int
	Height          int
	Target          frame.TextureTarget
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 5600
	}
	if c.BufferSize == 0 {
		c.BufferSize = 10000000
	}
	if c.JitterLatencyMs == 0 {
		c.JitterLatencyMs = 5
	}
	if c.Width == 0 {
		c.Width = 1280
	}
	if c.Height == 0 {
		c.Height = 720
	}
	return c
}

// Controller reacts to the session's need-pipeline and drop-pipeline
// notifications: it constructs the decode graph, hands it to the session,
// and releases its references when the session tears the graph down.
type Controller struct {
	conf    Config
	mailbox *frame.Mailbox

	mu       sync.Mutex
	pipeline *Pipeline
	glctx    GLContext
}

func NewController(conf Config, mailbox *frame.Mailbox) *Controller {
	return &Controller{
		conf:    conf.withDefaults(),
		mailbox: mailbox,
	}
}

// SetGLContext hands over the render context the decode side shares
// textures with. Must be set before the first need-pipeline notification on
// platforms where the decoder outputs external-oes textures.
func (c *Controller) SetGLContext(ctx GLContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.glctx = ctx
	log.Printf("wrapping GL context (display %#x)", ctx.Display())
}

// Attach registers the controller on the session's pipeline notifications.
func (c *Controller) Attach(s *session.Session) {
	s.OnNeedPipeline(func() {
		c.handleNeedPipeline(s)
	})
	s.OnDropPipeline(c.handleDropPipeline)
}

// TryPullFrame returns the freshest decoded frame, or nil when none is
// ready. The caller must release the frame exactly once.
func (c *Controller) TryPullFrame() *frame.Frame {
	return c.mailbox.TryTake()
}

// VideoWidth returns the negotiated stream width, for mapping screen-space
// input coordinates into video space.
func (c *Controller) VideoWidth() int {
	return c.conf.Width
}

// VideoHeight returns the negotiated stream height.
func (c *Controller) VideoHeight() int {
	return c.conf.Height
}

func (c *Controller) handleNeedPipeline(s *session.Session) {
	p, err := newPipeline(launchString(c.conf), c.mailbox, c.conf.Target)
	if err != nil {
		// No pipeline, no product.
		log.Fatalf("failed to create decode pipeline: %+v", err)
	}
	c.mu.Lock()
	c.pipeline = p
	c.mu.Unlock()
	// The session stops any previous pipeline and starts this one.
	s.SetPipeline(p)
}

// handleDropPipeline releases the controller's pipeline reference. The
// session halts the graph itself; anything still parked in the mailbox is
// released here so no frame outlives the session.
func (c *Controller) handleDropPipeline() {
	c.mu.Lock()
	c.pipeline = nil
	c.mu.Unlock()
	if f := c.mailbox.TryTake(); f != nil {
		f.Release()
	}
}

func launchString(conf Config) string {
	return fmt.Sprintf(
		"udpsrc port=%d buffer-size=%d "+
			`caps="application/x-rtp,media=video,clock-rate=90000,encoding-name=H264" ! `+
			"rtpjitterbuffer do-lost=1 latency=%d ! "+
			"decodebin3 ! "+
			`glsinkbin sink="appsink name=%s max-buffers=1 drop=true caps=video/x-raw(memory:GLMemory),format=RGBA,texture-target=%s"`,
		conf.Port, conf.BufferSize, conf.JitterLatencyMs, sinkName, conf.Target)
}
