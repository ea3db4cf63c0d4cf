package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a scripted transport connection: it answers CONNECT and
// PING automatically and records every frame the manager writes.
type fakeConn struct {
	rejectAuth bool

	in chan []byte

	mu     sync.Mutex
	writes []Frame

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(rejectAuth bool) *fakeConn {
	return &fakeConn{
		rejectAuth: rejectAuth,
		in:         make(chan []byte, 16),
		closed:     make(chan struct{}),
	}
}

func (c *fakeConn) Read() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *fakeConn) Write(data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}

	frame, err := DecodeFrame(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, frame)
	c.mu.Unlock()

	switch frame.Type {
	case FrameConnect:
		if c.rejectAuth {
			c.serverPush(Frame{Type: FrameError, Headers: map[string]string{"message": "bad token"}})
		} else {
			c.serverPush(Frame{Type: FrameConnected})
		}
	case FramePing:
		c.serverPush(Frame{Type: FramePong})
	}
	return nil
}

func (c *fakeConn) serverPush(f Frame) {
	data, _ := json.Marshal(f)
	select {
	case c.in <- data:
	case <-c.closed:
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) written(frameType string) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Frame
	for _, f := range c.writes {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

type fakeDialer struct {
	rejectAuth bool
	dialErr    error

	mu       sync.Mutex
	conns    []*fakeConn
	attempts int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	conn := newFakeConn(d.rejectAuth)
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func newTestManager(dialer Dialer) *Manager {
	return NewManager("ws://test", Options{
		Dialer:         dialer,
		ReconnectDelay: 10 * time.Millisecond,
		Heartbeat:      20 * time.Millisecond,
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestOpenEmptyCredential(t *testing.T) {
	m := newTestManager(&fakeDialer{})
	err := m.Open("  ")
	require.ErrorIs(t, err, ErrEmptyCredential)
	assert.Equal(t, StateIdle, m.State(), "no transition on empty credential")
}

func TestOpenHandshakeCarriesBearerToken(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.Open("tok-123"))
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected state")

	connects := dialer.conn(0).written(FrameConnect)
	require.Len(t, connects, 1)
	assert.Equal(t, "Bearer tok-123", connects[0].Headers["Authorization"])
}

func TestOpenTwiceFails(t *testing.T) {
	m := newTestManager(&fakeDialer{})
	defer m.Close()

	require.NoError(t, m.Open("tok"))
	assert.ErrorIs(t, m.Open("tok"), ErrAlreadyOpen)
}

func TestAuthRejectedIsTerminal(t *testing.T) {
	dialer := &fakeDialer{rejectAuth: true}
	m := newTestManager(dialer)

	require.NoError(t, m.Open("bad"))
	waitFor(t, func() bool { return m.State() == StateClosed }, "closed state")

	assert.ErrorIs(t, m.LastError(), ErrAuthRejected)
	assert.Equal(t, 1, dialer.dials(), "no retry on rejected credentials")
}

func TestDialFailureKeepsRetrying(t *testing.T) {
	dialer := &fakeDialer{dialErr: errors.New("connection refused")}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.Open("tok"))
	waitFor(t, func() bool { return m.State() == StateReconnecting }, "reconnecting state")
	waitFor(t, func() bool { return dialer.dials() >= 3 }, "repeated dial attempts")
}

func TestSendRequiresConnected(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	err := m.Send("/pub/chat/send", nil, []byte(`{}`))
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, dialer.dials(), "no transport contact")
}

func TestSendWritesExactlyOneFrame(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.Open("tok"))
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected state")

	headers := map[string]string{"Authorization": "Bearer tok"}
	require.NoError(t, m.Send("/pub/chat/send", headers, []byte(`{"roomId":1,"message":"hi"}`)))

	sends := dialer.conn(0).written(FrameSend)
	require.Len(t, sends, 1)
	assert.Equal(t, "/pub/chat/send", sends[0].Destination)
	assert.JSONEq(t, `{"roomId":1,"message":"hi"}`, string(sends[0].Body))
}

func TestSubscriptionDeliversFrames(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	sub, err := m.Subscribe("/sub/chat/room/5")
	require.NoError(t, err)

	require.NoError(t, m.Open("tok"))
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected state")

	dialer.conn(0).serverPush(Frame{
		Type:        FrameMessage,
		Destination: "/sub/chat/room/5",
		Body:        json.RawMessage(`{"message":"hello"}`),
	})

	select {
	case f := <-sub.Frames():
		assert.Equal(t, "/sub/chat/room/5", f.Destination)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestSubscribeTwiceSameDestinationFails(t *testing.T) {
	m := newTestManager(&fakeDialer{})
	defer m.Close()

	_, err := m.Subscribe("/sub/chat/room/5")
	require.NoError(t, err)
	_, err = m.Subscribe("/sub/chat/room/5")
	assert.Error(t, err)
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	sub, err := m.Subscribe("/sub/chat/room/7")
	require.NoError(t, err)

	require.NoError(t, m.Open("tok"))
	waitFor(t, func() bool { return m.State() == StateConnected }, "first connect")
	require.Len(t, dialer.conn(0).written(FrameSubscribe), 1)

	// Drop the connection out from under the manager.
	dialer.conn(0).Close()
	waitFor(t, func() bool { return dialer.dials() >= 2 && m.State() == StateConnected }, "reconnect")

	subs := dialer.conn(1).written(FrameSubscribe)
	require.Len(t, subs, 1, "subscription replayed exactly once")
	assert.Equal(t, "/sub/chat/room/7", subs[0].Destination)

	// The original stream handle keeps working after the reconnect.
	dialer.conn(1).serverPush(Frame{
		Type:        FrameMessage,
		Destination: "/sub/chat/room/7",
		Body:        json.RawMessage(`{"message":"back"}`),
	})
	select {
	case f := <-sub.Frames():
		var body map[string]string
		require.NoError(t, json.Unmarshal(f.Body, &body))
		assert.Equal(t, "back", body["message"])
	case <-time.After(2 * time.Second):
		t.Fatal("no frame after reconnect")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	sub, err := m.Subscribe("/sub/chat/room/9")
	require.NoError(t, err)
	require.NoError(t, m.Open("tok"))
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected state")

	require.NoError(t, sub.Close())
	waitFor(t, func() bool { return len(dialer.conn(0).written(FrameUnsubscribe)) == 1 }, "unsubscribe frame")

	dialer.conn(0).serverPush(Frame{Type: FrameMessage, Destination: "/sub/chat/room/9"})
	select {
	case <-sub.Frames():
		t.Fatal("frame delivered after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHeartbeatPings(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)
	defer m.Close()

	require.NoError(t, m.Open("tok"))
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected state")
	waitFor(t, func() bool { return len(dialer.conn(0).written(FramePing)) >= 2 }, "periodic pings")
}

func TestCloseIsIdempotentFromAnyState(t *testing.T) {
	dialer := &fakeDialer{}
	m := newTestManager(dialer)

	require.NoError(t, m.Open("tok"))
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected state")

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, StateClosed, m.State())

	assert.ErrorIs(t, m.Open("tok"), ErrClosed)
	assert.ErrorIs(t, m.Send("/pub/chat/send", nil, nil), ErrNotConnected)
}

func TestWatchSeedsCurrentState(t *testing.T) {
	m := newTestManager(&fakeDialer{})
	defer m.Close()

	states := m.Watch()
	assert.Equal(t, StateIdle, <-states)

	require.NoError(t, m.Open("tok"))
	waitFor(t, func() bool { return m.State() == StateConnected }, "connected state")

	var seen []State
	for done := false; !done; {
		select {
		case s := <-states:
			seen = append(seen, s)
			done = s == StateConnected
		case <-time.After(2 * time.Second):
			t.Fatal("never observed connected")
		}
	}
	assert.Contains(t, seen, StateConnecting)
	assert.Contains(t, seen, StateConnected)
}
