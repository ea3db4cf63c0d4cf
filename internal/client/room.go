package client

import (
	"context"
	"encoding/json"
	"sync"

	"chat-sync-client/internal/history"
	"chat-sync-client/internal/models"
	"chat-sync-client/internal/timeline"
	"chat-sync-client/internal/transport"
)

// Room is the handle for one open room: its live subscription, its
// timeline, and its header metadata. Handles are owned by the Client and
// become inert once the room is closed.
type Room struct {
	id       int
	client   *Client
	stream   EventStream
	timeline *timeline.Timeline

	mu        sync.Mutex
	detail    models.RoomDetail
	hasDetail bool

	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the room id.
func (r *Room) ID() int { return r.id }

// Timeline returns the room's merged message view.
func (r *Room) Timeline() *timeline.Timeline { return r.timeline }

// Updates returns a channel receiving the ordered sequence after every
// merge step.
func (r *Room) Updates() <-chan []models.Message {
	return r.timeline.Watch()
}

// Detail returns the room header metadata and whether it has loaded.
func (r *Room) Detail() (models.RoomDetail, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detail, r.hasDetail
}

// State returns the shared connection's state; rooms have no connection
// of their own.
func (r *Room) State() transport.State {
	return r.client.conn.State()
}

// LastError surfaces the room's history fetch error if one occurred,
// otherwise the connection-level error, if any.
func (r *Room) LastError() error {
	if err := r.timeline.Err(); err != nil {
		return err
	}
	return r.client.conn.LastError()
}

// pump moves live frames from the subscription into the timeline. Events
// arriving before the history page resolves are buffered by the timeline,
// not dropped.
func (r *Room) pump() {
	for {
		select {
		case f := <-r.stream.Frames():
			var msg models.Message
			if err := json.Unmarshal(f.Body, &msg); err != nil {
				r.client.log.Printf("room %d: dropping malformed event: %v", r.id, err)
				continue
			}
			if msg.RoomID == 0 {
				msg.RoomID = r.id
			}
			r.timeline.Apply(msg)
		case <-r.stream.Done():
			return
		case <-r.done:
			return
		}
	}
}

// load fetches the room header and the history page. A failed history
// fetch leaves the timeline live-only with the error surfaced; it never
// blocks live events.
func (r *Room) load(ctx context.Context) {
	detail, err := r.client.fetcher.RoomDetail(ctx, r.id)
	if err != nil {
		r.client.log.Printf("room %d: detail fetch failed: %v", r.id, err)
	} else {
		r.mu.Lock()
		r.detail = detail
		r.hasDetail = true
		r.mu.Unlock()
	}

	page, err := r.client.fetcher.Messages(ctx, r.id, 0, history.DefaultPageSize, history.DefaultSort)
	if err != nil {
		r.client.log.Printf("room %d: history fetch failed: %v", r.id, err)
	}
	r.timeline.ApplyHistory(page, err)
}

func (r *Room) close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.stream.Close()
		r.timeline.Close()
	})
}
