package eventch

import (
	"sync"
	"testing"
	"time"

	"github.com/codecat/go-enet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floppyhammer/rstream/pkg/input"
	"github.com/floppyhammer/rstream/pkg/testutils"
)

// testHost is a minimal ENet server pumping events on its own goroutine.
type testHost struct {
	host enet.Host
	done chan struct{}
	wg   sync.WaitGroup

	mu          sync.Mutex
	received    [][]byte
	connects    int
	disconnects int
}

func startTestHost(t *testing.T, port uint16) *testHost {
	enet.Initialize()
	host, err := enet.NewHost(enet.NewListenAddress(port), 32, channelCount, 0, 0)
	require.NoError(t, err)
	th := &testHost{host: host, done: make(chan struct{})}
	th.wg.Add(1)
	go func() {
		defer th.wg.Done()
		for {
			select {
			case <-th.done:
				return
			default:
			}
			ev := host.Service(serviceTimeoutMs)
			switch ev.GetType() {
			case enet.EventConnect:
				th.mu.Lock()
				th.connects++
				th.mu.Unlock()
			case enet.EventDisconnect:
				th.mu.Lock()
				th.disconnects++
				th.mu.Unlock()
			case enet.EventReceive:
				pkt := ev.GetPacket()
				data := make([]byte, len(pkt.GetData()))
				copy(data, pkt.GetData())
				th.mu.Lock()
				th.received = append(th.received, data)
				th.mu.Unlock()
				pkt.Destroy()
			}
		}
	}()
	return th
}

func (th *testHost) stop() {
	close(th.done)
	th.wg.Wait()
	th.host.Destroy()
	enet.Deinitialize()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestChannelConnectSendDisconnect(t *testing.T) {
	port := testutils.RandomUDPPort(t)
	th := startTestHost(t, port)
	defer th.stop()

	ch := NewChannel()
	connected := make(chan struct{})
	ch.OnConnect(func() { close(connected) })
	ch.Connect("127.0.0.1", port)

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ENet connect")
	}
	assert.True(t, ch.Connected())

	down := input.NewButtonCommand(input.CursorLeftDown, true)
	up := input.NewButtonCommand(input.CursorLeftUp, false)
	ch.Send(down)
	ch.Send(up)

	waitFor(t, 5*time.Second, func() bool {
		th.mu.Lock()
		defer th.mu.Unlock()
		return len(th.received) >= 2
	})

	th.mu.Lock()
	first, err := input.Unmarshal(th.received[0])
	th.mu.Unlock()
	require.NoError(t, err)
	// Reliable commands arrive in program order.
	assert.Equal(t, down, first)

	ch.Disconnect()
	assert.False(t, ch.Connected())
	// Idempotent: a second disconnect on a torn-down channel is a no-op.
	ch.Disconnect()

	waitFor(t, 5*time.Second, func() bool {
		th.mu.Lock()
		defer th.mu.Unlock()
		return th.disconnects >= 1
	})
}

func TestSendQueuesWithoutBlocking(t *testing.T) {
	ch := NewChannel()
	// No connection at all: enqueue must still return immediately.
	for i := 0; i < 1000; i++ {
		ch.Send(input.NewAxisCommand(input.CursorMove, float32(i), 0))
	}
	q := ch.drainQueue()
	assert.Len(t, q, 1000)
	// Motion is unsequenced, latest-value semantics.
	assert.Equal(t, enet.PacketFlagUnsequenced, q[0].flags)

	down := input.NewButtonCommand(input.GamepadButtonA, true)
	ch.Send(down)
	q = ch.drainQueue()
	assert.Len(t, q, 1)
	assert.Equal(t, enet.PacketFlagReliable, q[0].flags)
	assert.Equal(t, down.Marshal(), q[0].data)
}
