package stream

import (
	"encoding/binary"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notedit/gst"
	"github.com/pkg/errors"

	"github.com/floppyhammer/rstream/pkg/frame"
)

const (
	sinkName = "out"

	statsInterval = 3 * time.Second
)

// Pipeline owns one GStreamer decode graph and the goroutine pumping its
// decoded samples into the frame mailbox. It satisfies session.Pipeline.
type Pipeline struct {
	pipeline *gst.Pipeline
	sink     *gst.Element
	mailbox  *frame.Mailbox
	target   frame.TextureTarget

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup

	published   uint64
	dropped     uint64
	outstanding int64
}

func newPipeline(launch string, mailbox *frame.Mailbox, target frame.TextureTarget) (*Pipeline, error) {
	log.Printf("creating decode pipeline: %s", launch)
	pipeline, err := gst.ParseLaunch(launch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse pipeline")
	}
	sink := pipeline.GetByName(sinkName)
	if sink == nil {
		return nil, errors.Errorf("pipeline has no %q element", sinkName)
	}
	return &Pipeline{
		pipeline: pipeline,
		sink:     sink,
		mailbox:  mailbox,
		target:   target,
		stopped:  make(chan struct{}),
	}, nil
}

// Play transitions the graph to playing and starts the sample pump, the bus
// watch and the stats ticker.
func (p *Pipeline) Play() error {
	if err := p.setState(gst.StatePlaying); err != nil {
		return err
	}
	p.wg.Add(2)
	go p.pumpSamples()
	go p.logStats()
	// Not joined on Stop: the bus pull only ever returns for a fatal error.
	go p.watchBus()
	return nil
}

// Stop halts the graph to a fully stopped state and joins the pump. After
// Stop returns no frame reaches the mailbox, and any frame still parked
// there has been released.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
	if err := p.setState(gst.StateNull); err != nil {
		log.Printf("failed to stop pipeline: %+v", err)
	}
	p.wg.Wait()

	if f := p.mailbox.TryTake(); f != nil {
		f.Release()
	}
	log.Printf("pipeline stopped")
}

func (p *Pipeline) setState(state gst.StateOptions) error {
	ret := p.pipeline.SetState(state)
	switch ret {
	case gst.StateChangeSuccess:
		return nil
	case gst.StateChangeAsync:
		// Block until the transition settles.
		p.pipeline.GetBus().Pull(gst.MessageAsyncDone)
		return nil
	default:
		return errors.Errorf("failed to change pipeline state (return: %v)", ret)
	}
}

// pumpSamples pulls decoded samples as they complete and publishes them as
// frames, freshest-wins. With GLMemory caps the mapped sample data is the GL
// texture name, not pixels; decoding stays zero-copy on the GPU.
func (p *Pipeline) pumpSamples() {
	defer p.wg.Done()
	for {
		sample, err := p.sink.PullSample()
		if err != nil {
			select {
			case <-p.stopped:
				return
			default:
			}
			if p.sink.IsEOS() {
				// The host never ends the stream on purpose.
				log.Fatalf("received EOS when trying to pull sample")
			}
			log.Printf("failed to pull sample: %+v", err)
			return
		}
		if len(sample.Data) < 4 {
			log.Printf("short sample (%d bytes), discarded", len(sample.Data))
			continue
		}
		textureID := binary.LittleEndian.Uint32(sample.Data[:4])

		atomic.AddInt64(&p.outstanding, 1)
		f := frame.New(textureID, p.target, time.Now(), func() {
			atomic.AddInt64(&p.outstanding, -1)
		})
		atomic.AddUint64(&p.published, 1)
		if prev := p.mailbox.Publish(f); prev != nil {
			// Displaced before a consumer saw it.
			atomic.AddUint64(&p.dropped, 1)
			prev.Release()
		}
	}
}

// watchBus turns pipeline bus errors into process termination. Decoding is
// core to the product; partial operation is not a supported mode.
func (p *Pipeline) watchBus() {
	msg := p.pipeline.GetBus().Pull(gst.MessageError)
	select {
	case <-p.stopped:
		return
	default:
	}
	log.Fatalf("pipeline error: %s", msg.GetName())
}

func (p *Pipeline) logStats() {
	defer p.wg.Done()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopped:
			return
		case <-ticker.C:
			log.Printf("frame stats: published %d, dropped %d, in flight %d",
				atomic.LoadUint64(&p.published),
				atomic.LoadUint64(&p.dropped),
				atomic.LoadInt64(&p.outstanding))
		}
	}
}
