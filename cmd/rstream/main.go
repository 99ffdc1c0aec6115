package main

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/floppyhammer/rstream/pkg/eventch"
	"github.com/floppyhammer/rstream/pkg/frame"
	"github.com/floppyhammer/rstream/pkg/session"
	"github.com/floppyhammer/rstream/pkg/signaling"
	"github.com/floppyhammer/rstream/pkg/stream"
)

type config struct {
	// Host is the single user-supplied host address; signaling and event
	// channel endpoints are both derived from it.
	Host        string `envconfig:"HOST"`
	ConfigFile  string `envconfig:"CONFIG_FILE"`
	VideoPort   int    `envconfig:"VIDEO_PORT" default:"5600"`
	VideoWidth  int    `envconfig:"VIDEO_WIDTH" default:"1280"`
	VideoHeight int    `envconfig:"VIDEO_HEIGHT" default:"720"`
	ExternalOES bool   `envconfig:"EXTERNAL_OES" default:"false"`
}

type fileConfig struct {
	Host string `yaml:"host"`
}

func main() {
	var conf config
	if err := envconfig.Process("", &conf); err != nil {
		log.Fatalf("failed to process envconfig: %+v", err)
	}
	if conf.ConfigFile != "" {
		var fc fileConfig
		body, err := ioutil.ReadFile(conf.ConfigFile)
		if err != nil {
			log.Fatalf("failed to read config file: %+v", err)
		}
		if err := yaml.Unmarshal(body, &fc); err != nil {
			log.Fatalf("failed to parse config file: %+v", err)
		}
		// Env wins over file.
		if conf.Host == "" {
			conf.Host = fc.Host
		}
	}
	if conf.Host == "" {
		log.Fatalf("no host address configured (set HOST or CONFIG_FILE)")
	}

	target := frame.Texture2D
	if conf.ExternalOES {
		target = frame.TextureExternalOES
	}

	mailbox := frame.NewMailbox()
	events := eventch.NewChannel()
	sig := signaling.NewChannel()
	sess := session.New(conf.Host, sig, events)
	controller := stream.NewController(stream.Config{
		Port:   conf.VideoPort,
		Width:  conf.VideoWidth,
		Height: conf.VideoHeight,
		Target: target,
	}, mailbox)
	controller.Attach(sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.Connect(ctx)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			log.Printf("received signal: %v", s)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	eg.Go(func() error {
		return renderLoop(ctx, controller, &logRenderer{})
	})
	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Printf("run error: %+v", err)
	}

	sess.Disconnect()
	log.Printf("disconnected")
}

// renderLoop stands in for the platform render thread: it polls the frame
// mailbox once per vsync-equivalent tick and never sleeps waiting for a
// frame.
func renderLoop(ctx context.Context, c *stream.Controller, r stream.Renderer) error {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f := c.TryPullFrame()
			if f == nil {
				continue
			}
			r.Draw(f.TextureID, f.Target)
			f.Release()
		}
	}
}

// logRenderer is a placeholder for the platform GL blit; it only reports
// that frames are flowing.
type logRenderer struct {
	drawn uint64
}

func (r *logRenderer) Draw(textureID uint32, target frame.TextureTarget) {
	if r.drawn == 0 {
		log.Printf("first frame received (texture %d, target %s)", textureID, target)
	}
	r.drawn++
}
