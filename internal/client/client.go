// Package client is the caller-facing surface of the synchronization
// core: one Client per authenticated session coordinates room
// subscriptions and timelines over a single shared connection. An
// admin-style caller opens many rooms, an end-user caller opens one;
// both go through the same code path.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"chat-sync-client/internal/auth"
	"chat-sync-client/internal/history"
	"chat-sync-client/internal/models"
	"chat-sync-client/internal/observability"
	"chat-sync-client/internal/timeline"
	"chat-sync-client/internal/transport"
)

var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrClosed       = errors.New("client closed")
)

const (
	roomDestinationFmt = "/sub/chat/room/%d"
	sendDestination    = "/pub/chat/send"
)

// Conn is the connection surface the coordinator needs. *transport.Manager
// satisfies it through WrapManager; tests substitute a fake.
type Conn interface {
	Open(credential string) error
	Close() error
	Send(destination string, headers map[string]string, body []byte) error
	Subscribe(destination string) (EventStream, error)
	State() transport.State
	LastError() error
	Watch() <-chan transport.State
}

// EventStream is a live sequence of inbound frames for one destination.
type EventStream interface {
	Frames() <-chan transport.Frame
	Done() <-chan struct{}
	Close() error
}

// WrapManager adapts a transport.Manager to the Conn interface.
func WrapManager(m *transport.Manager) Conn {
	return managerConn{m}
}

type managerConn struct {
	*transport.Manager
}

func (c managerConn) Subscribe(destination string) (EventStream, error) {
	return c.Manager.Subscribe(destination)
}

// Client is the room coordinator. It owns the connection for one
// authenticated session and the table of open rooms.
type Client struct {
	conn    Conn
	fetcher history.Fetcher
	creds   auth.CredentialProvider
	log     *log.Logger

	mu     sync.Mutex
	rooms  map[int]*Room
	closed bool
}

// New builds a coordinator over an explicit connection. The connection is
// owned by the Client from here on; a credential change requires closing
// the Client and building a new one.
func New(conn Conn, fetcher history.Fetcher, creds auth.CredentialProvider, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		conn:    conn,
		fetcher: fetcher,
		creds:   creds,
		log:     logger,
		rooms:   make(map[int]*Room),
	}
}

// Connect obtains a credential and opens the connection. It returns
// synchronously; connection progress is observable via State and Watch.
func (c *Client) Connect() error {
	token, err := c.creds.Token()
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	return c.conn.Open(token)
}

// Close tears down every open room and the shared connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[int]*Room)
	c.mu.Unlock()

	for _, r := range rooms {
		r.close()
		observability.DecOpenRooms()
	}
	return c.conn.Close()
}

// OpenRoom opens a room: one subscription plus one timeline, with the
// history fetch and the live stream started concurrently. Opening an
// already-open room returns the existing handle; a duplicate subscription
// would double-deliver live events.
func (c *Client) OpenRoom(ctx context.Context, roomID int) (*Room, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if r, ok := c.rooms[roomID]; ok {
		c.mu.Unlock()
		return r, nil
	}

	stream, err := c.conn.Subscribe(fmt.Sprintf(roomDestinationFmt, roomID))
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe room %d: %w", roomID, err)
	}
	r := &Room{
		id:       roomID,
		client:   c,
		stream:   stream,
		timeline: timeline.New(),
		done:     make(chan struct{}),
	}
	c.rooms[roomID] = r
	c.mu.Unlock()

	observability.IncOpenRooms()
	go r.pump()
	go r.load(ctx)
	return r, nil
}

// CloseRoom releases the room's subscription and discards its timeline.
// The shared connection stays up for the other rooms. Closing a room that
// is not open is a no-op.
func (c *Client) CloseRoom(roomID int) {
	c.mu.Lock()
	r, ok := c.rooms[roomID]
	if ok {
		delete(c.rooms, roomID)
	}
	c.mu.Unlock()

	if ok {
		r.close()
		observability.DecOpenRooms()
	}
}

// Room returns the handle for an open room, or nil.
func (c *Client) Room(roomID int) *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

// Rooms lists the currently open rooms.
func (c *Client) Rooms() []*Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// State returns the shared connection's state.
func (c *Client) State() transport.State {
	return c.conn.State()
}

// LastError returns the most recent connection-level error, if any.
func (c *Client) LastError() error {
	return c.conn.LastError()
}

// Watch returns connection state transitions, seeded with the current
// state.
func (c *Client) Watch() <-chan transport.State {
	return c.conn.Watch()
}

// Send publishes one message to a room. Empty or whitespace-only text is
// rejected before any network contact, and a disconnected transport fails
// fast with transport.ErrNotConnected. The sent message is not appended
// locally: it arrives back through the room subscription with the
// backend's authoritative timestamp, like every other event.
func (c *Client) Send(roomID int, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	token, err := c.creds.Token()
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	body, err := json.Marshal(models.SendRequest{RoomID: roomID, Message: text})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}
	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"content-type":  "application/json",
	}
	return c.conn.Send(sendDestination, headers, body)
}
