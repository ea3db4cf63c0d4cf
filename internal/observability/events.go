package observability

import (
	"context"
	"time"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// PublishSessionEvent emits one connection lifecycle event (connect,
// disconnect, error) for the given session.
func PublishSessionEvent(ctx context.Context, name, sessionID, reason string) {
	_ = PublishEvent(ctx, "ws_events.sessions", EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"session_id":  sessionID,
			"event":       name,
			"reason":      reason,
			"occurred_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}, nil)
}
