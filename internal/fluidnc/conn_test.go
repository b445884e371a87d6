package fluidnc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/fluidnc-position-led/internal/types"
)

// fakeController accepts telnet connections and records the first line each
// client sends.
type fakeController struct {
	ln       net.Listener
	received chan string
	conns    chan net.Conn
}

func newFakeController(t *testing.T) *fakeController {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fc := &fakeController{
		ln:       ln,
		received: make(chan string, 10),
		conns:    make(chan net.Conn, 10),
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			line, err := bufio.NewReader(c).ReadString('\n')
			if err == nil {
				fc.received <- line
			}
			fc.conns <- c
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return fc
}

func (fc *fakeController) dialer() TCPDialer {
	return TCPDialer{Addr: fc.ln.Addr().String(), Timeout: time.Second}
}

func (fc *fakeController) accept(t *testing.T) net.Conn {
	select {
	case c := <-fc.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not see a connection")
		return nil
	}
}

// flakyDialer fails a fixed number of times before delegating to next. Without
// next it always fails.
type flakyDialer struct {
	next     Dialer
	failures int32
	calls    int32
}

func (d *flakyDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	n := atomic.AddInt32(&d.calls, 1)
	if n <= d.failures || d.next == nil {
		return nil, errors.New("connection refused")
	}
	return d.next.Dial(ctx)
}

func (d *flakyDialer) String() string { return "flaky" }

func TestHandshake(t *testing.T) {
	assert.Equal(t, "$Report/Interval=200\n", Handshake(DefaultReportInterval))
	assert.Equal(t, "$Report/Interval=50\n", Handshake(50*time.Millisecond))
}

func TestManager_ConnectRetries(t *testing.T) {
	fc := newFakeController(t)
	d := &flakyDialer{next: fc.dialer(), failures: 2}
	m := NewManager(d, WithBackoff(10*time.Millisecond))
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))

	assert.Equal(t, types.Connected, m.State())
	assert.Equal(t, 3, m.Attempts())
	assert.Equal(t, "$Report/Interval=200\n", <-fc.received)
}

func TestManager_ConnectCancelled(t *testing.T) {
	d := &flakyDialer{failures: 1 << 30}
	m := NewManager(d, WithBackoff(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.Disconnected, m.State())
	assert.Greater(t, m.Attempts(), 1)
}

func TestManager_PollStateMachine(t *testing.T) {
	fc := newFakeController(t)

	var mu sync.Mutex
	var states []types.ConnectionState
	hook := func(s types.ConnectionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	m := NewManager(fc.dialer(), WithStateHook(hook), WithReportInterval(100*time.Millisecond))
	defer m.Close()
	ctx := context.Background()

	assert.Equal(t, types.Disconnected, m.State())
	assert.Nil(t, m.Drain())

	require.Eventually(t, func() bool {
		return m.Poll(ctx) == types.Connected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "$Report/Interval=100\n", <-fc.received)

	c := fc.accept(t)
	_, err := c.Write([]byte("<Idle|MPos:1.000,0,0|FS:0,0>\n<Run|"))
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		got = append(got, m.Drain()...)
		return len(got) == len("<Idle|MPos:1.000,0,0|FS:0,0>\n<Run|")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "<Idle|MPos:1.000,0,0|FS:0,0>\n<Run|", string(got))

	mu.Lock()
	assert.Equal(t, []types.ConnectionState{types.Connecting, types.Connected}, states)
	mu.Unlock()
}

func TestManager_DetectsDroppedConnection(t *testing.T) {
	fc := newFakeController(t)
	now := time.Unix(1000, 0)
	m := NewManager(fc.dialer(), WithClock(func() time.Time { return now }), WithBackoff(time.Second))
	defer m.Close()
	ctx := context.Background()

	require.Eventually(t, func() bool {
		return m.Poll(ctx) == types.Connected
	}, 2*time.Second, 5*time.Millisecond)

	c := fc.accept(t)
	_, err := c.Write([]byte("<Jog|MPos:4.0,0,0|FS:0,0>\n"))
	require.NoError(t, err)
	c.Close()

	var got []byte
	require.Eventually(t, func() bool {
		got = append(got, m.Drain()...)
		return m.State() == types.Disconnected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "<Jog|MPos:4.0,0,0|FS:0,0>\n", string(got))

	// retry waits for the backoff
	assert.Equal(t, types.Disconnected, m.Poll(ctx))
	now = now.Add(time.Second)
	assert.Equal(t, types.Connecting, m.Poll(ctx))
}

func TestManager_FailedDialBacksOff(t *testing.T) {
	now := time.Unix(1000, 0)
	d := &flakyDialer{failures: 1}
	m := NewManager(d, WithClock(func() time.Time { return now }), WithBackoff(500*time.Millisecond))
	ctx := context.Background()

	assert.Equal(t, types.Connecting, m.Poll(ctx))
	require.Eventually(t, func() bool {
		return m.Poll(ctx) == types.Disconnected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Attempts())

	now = now.Add(499 * time.Millisecond)
	assert.Equal(t, types.Disconnected, m.Poll(ctx))
	assert.Equal(t, 1, m.Attempts())

	// a network-up event skips the remaining wait
	m.Kick()
	assert.Equal(t, types.Connecting, m.Poll(ctx))
	assert.Equal(t, 2, m.Attempts())
	m.Close()
	assert.Equal(t, types.Disconnected, m.State())
}

func TestManager_IdleTimeout(t *testing.T) {
	fc := newFakeController(t)
	m := NewManager(fc.dialer(), WithIdleTimeout(50*time.Millisecond))
	defer m.Close()
	ctx := context.Background()

	require.Eventually(t, func() bool {
		return m.Poll(ctx) == types.Connected
	}, 2*time.Second, 5*time.Millisecond)
	fc.accept(t)

	// the controller stays silent
	require.Eventually(t, func() bool {
		m.Drain()
		return m.State() == types.Disconnected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_Write(t *testing.T) {
	m := NewManager(&flakyDialer{failures: 1})
	_, err := m.Write([]byte("?"))
	assert.ErrorIs(t, err, ErrNotConnected)
}
