package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"chat-sync-client/internal/observability"
)

var (
	ErrEmptyCredential = errors.New("credential is empty")
	ErrNotConnected    = errors.New("not connected")
	ErrAuthRejected    = errors.New("handshake rejected by server")
	ErrClosed          = errors.New("connection manager closed")
	ErrAlreadyOpen     = errors.New("connection manager already open")
)

// State is the connection manager lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	// DefaultReconnectDelay matches the 5s reconnect delay the backend's
	// other clients use.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultHeartbeat matches the 4s heartbeat negotiated by the backend.
	DefaultHeartbeat = 4 * time.Second

	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

// Options tune a Manager. Zero values fall back to defaults.
type Options struct {
	Dialer         Dialer
	ReconnectDelay time.Duration
	Heartbeat      time.Duration
	Logger         *log.Logger
}

// Manager owns the single persistent connection to the messaging endpoint:
// connect, authenticated handshake, heartbeat, reconnect with a fixed
// delay, and subscription replay after every reconnect. One Manager exists
// per authenticated session; changing credentials means closing it and
// building a new one.
type Manager struct {
	url            string
	dialer         Dialer
	reconnectDelay time.Duration
	heartbeat      time.Duration
	log            *log.Logger
	sessionID      string

	mu         sync.Mutex
	wmu        sync.Mutex
	state      State
	lastErr    error
	credential string
	conn       Conn
	subs       map[string]*Subscription
	watchers   []chan State

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager builds a Manager for the given websocket URL. The connection
// is not established until Open is called.
func NewManager(url string, opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Manager{
		url:            url,
		dialer:         opts.Dialer,
		reconnectDelay: opts.ReconnectDelay,
		heartbeat:      opts.Heartbeat,
		log:            opts.Logger,
		sessionID:      newSessionID(),
		state:          StateIdle,
		subs:           make(map[string]*Subscription),
		done:           make(chan struct{}),
	}
}

// Open starts the connection loop with the given bearer credential. It
// fails synchronously on an empty credential and returns immediately
// otherwise; callers observe progress through State and Watch.
func (m *Manager) Open(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return ErrEmptyCredential
	}

	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateIdle:
	default:
		m.mu.Unlock()
		return ErrAlreadyOpen
	}
	m.credential = credential
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.run()
	return nil
}

// Close shuts the manager down from any state. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	alreadyClosed := m.state == StateClosed
	conn := m.conn
	m.conn = nil
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.subs = make(map[string]*Subscription)
	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	m.closeOnce.Do(func() { close(m.done) })
	if conn != nil {
		conn.Close()
	}
	for _, s := range subs {
		s.markClosed()
	}
	if !alreadyClosed {
		m.log.Printf("transport: closed session=%s", m.sessionID)
	}
	return nil
}

// Send writes exactly one SEND frame to the transport. It fails with
// ErrNotConnected in any state but Connected and never queues or retries
// the payload.
func (m *Manager) Send(destination string, headers map[string]string, body []byte) error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.mu.Unlock()

	err := m.write(Frame{Type: FrameSend, Destination: destination, Headers: headers, Body: body})
	if err != nil {
		return err
	}
	observability.IncSend()
	return nil
}

// Subscribe registers interest in a destination and returns the stream
// handle. The destination is re-issued to the backend after every
// reconnect, so the handle survives connection drops.
func (m *Manager) Subscribe(destination string) (*Subscription, error) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := m.subs[destination]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", destination)
	}
	sub := &Subscription{
		destination: destination,
		m:           m,
		frames:      make(chan Frame, subscriptionBuffer),
		done:        make(chan struct{}),
	}
	m.subs[destination] = sub
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected {
		if err := m.write(Frame{Type: FrameSubscribe, Destination: destination}); err != nil {
			// The replay on the next reconnect re-issues it.
			m.log.Printf("transport: subscribe %s: %v", destination, err)
		}
	}
	return sub, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent connection-level error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Watch returns a channel receiving state transitions, seeded with the
// current state. Transitions are dropped rather than blocking the manager
// if the receiver lags.
func (m *Manager) Watch() <-chan State {
	ch := make(chan State, 8)
	m.mu.Lock()
	ch <- m.state
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) run() {
	for {
		select {
		case <-m.done:
			return
		default:
		}

		conn, err := m.connect()
		if err != nil {
			if errors.Is(err, ErrAuthRejected) {
				// A bad credential will not get better by retrying; the
				// session has to be rebuilt with a new one.
				m.log.Printf("transport: %v", err)
				observability.IncWSEvent("auth_rejected")
				m.fail(err)
				return
			}
			if errors.Is(err, ErrClosed) {
				return
			}
			m.log.Printf("transport: connect failed: %v, retrying in %s", err, m.reconnectDelay)
			m.toReconnecting(err)
			if !m.sleep(m.reconnectDelay) {
				return
			}
			continue
		}

		m.log.Printf("transport: connected session=%s", m.sessionID)
		observability.IncWSEvent("connect")
		observability.PublishSessionEvent(context.Background(), "ws_connect", m.sessionID, "")

		err = m.readLoop(conn)
		select {
		case <-m.done:
			return
		default:
		}

		m.log.Printf("transport: connection lost: %v, reconnecting in %s", err, m.reconnectDelay)
		observability.IncWSEvent("disconnect")
		observability.IncReconnect()
		observability.PublishSessionEvent(context.Background(), "ws_disconnect", m.sessionID, err.Error())
		m.toReconnecting(err)
		if !m.sleep(m.reconnectDelay) {
			return
		}
	}
}

// connect dials and runs the authenticated handshake. On success the
// connection is installed and every registered subscription is replayed.
func (m *Manager) connect() (Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	m.mu.Lock()
	credential := m.credential
	m.mu.Unlock()

	hello := Frame{Type: FrameConnect, Headers: map[string]string{
		"Authorization": "Bearer " + credential,
	}}
	if err := writeConn(conn, hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	raw, err := conn.Read()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	reply, err := DecodeFrame(raw)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	switch reply.Type {
	case FrameConnected:
	case FrameError:
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthRejected, reply.Headers["message"])
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake frame %q", reply.Type)
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		conn.Close()
		return nil, ErrClosed
	}
	m.conn = conn
	m.lastErr = nil
	m.setStateLocked(StateConnected)
	destinations := make([]string, 0, len(m.subs))
	for d := range m.subs {
		destinations = append(destinations, d)
	}
	m.mu.Unlock()

	for _, d := range destinations {
		if err := m.write(Frame{Type: FrameSubscribe, Destination: d}); err != nil {
			m.dropConn(conn)
			conn.Close()
			return nil, fmt.Errorf("replay subscribe %s: %w", d, err)
		}
	}
	return conn, nil
}

func (m *Manager) readLoop(conn Conn) error {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go m.pingLoop(conn, stopPing)

	// Any inbound traffic counts as liveness; a quiet connection must at
	// least produce PONGs within this window.
	pongWait := 2*m.heartbeat + time.Second
	for {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		raw, err := conn.Read()
		if err != nil {
			conn.Close()
			m.dropConn(conn)
			return err
		}

		frame, err := DecodeFrame(raw)
		if err != nil {
			m.log.Printf("transport: dropping malformed frame: %v", err)
			continue
		}
		switch frame.Type {
		case FrameMessage:
			m.dispatch(frame)
		case FramePong:
			// Liveness only; the read deadline was already renewed.
		case FramePing:
			_ = m.write(Frame{Type: FramePong})
		case FrameError:
			m.log.Printf("transport: server error: %s", frame.Headers["message"])
			observability.IncWSEvent("server_error")
		default:
			m.log.Printf("transport: unexpected frame type %q", frame.Type)
		}
	}
}

func (m *Manager) pingLoop(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-m.done:
			return
		case <-ticker.C:
			if err := m.write(Frame{Type: FramePing}); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (m *Manager) dispatch(f Frame) {
	m.mu.Lock()
	sub := m.subs[f.Destination]
	m.mu.Unlock()
	if sub == nil {
		return
	}
	observability.IncWSEvent("message")
	sub.deliver(f)
}

func (m *Manager) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	current, ok := m.subs[sub.destination]
	if ok && current == sub {
		delete(m.subs, sub.destination)
	}
	connected := m.state == StateConnected
	m.mu.Unlock()

	if ok && connected {
		_ = m.write(Frame{Type: FrameUnsubscribe, Destination: sub.destination})
	}
}

// write marshals and writes one frame through the live connection. The
// write mutex keeps the single-writer contract of the underlying socket.
func (m *Manager) write(f Frame) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return writeConn(conn, f)
}

func writeConn(conn Conn, f Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.Write(data)
}

func (m *Manager) toReconnecting(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return
	}
	m.lastErr = err
	m.setStateLocked(StateReconnecting)
}

func (m *Manager) fail(err error) {
	m.mu.Lock()
	if m.state != StateClosed {
		m.lastErr = err
		m.setStateLocked(StateClosed)
	}
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.subs = make(map[string]*Subscription)
	m.mu.Unlock()

	m.closeOnce.Do(func() { close(m.done) })
	for _, s := range subs {
		s.markClosed()
	}
}

func (m *Manager) dropConn(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
}

// sleep waits for the reconnect delay, returning false if the manager was
// closed meanwhile.
func (m *Manager) sleep(d time.Duration) bool {
	select {
	case <-m.done:
		return false
	case <-time.After(d):
		return true
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	observability.SetConnectionState(s.String())
	for _, w := range m.watchers {
		select {
		case w <- s:
		default:
		}
	}
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
