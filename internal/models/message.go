package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// DeletedPlaceholder replaces the body of a deleted message at render time.
// The original text stays in the struct for auditing but is never displayed.
const DeletedPlaceholder = "[message deleted]"

// Message is a single chat message as delivered by the backend, either in a
// history page or over the live connection.
type Message struct {
	RoomID     int    `json:"roomId,omitempty" db:"room_id"`
	Sender     int    `json:"sender" db:"sender"`
	SenderName string `json:"senderName" db:"sender_name"`
	Text       string `json:"message" db:"body"`
	CreatedAt  Time   `json:"createdAt" db:"created_at"`
	Deleted    bool   `json:"deleted" db:"deleted"`
}

// Key is the identity of a message for de-duplication. The backend does not
// guarantee a unique id on the live stream, so identity is the tuple of
// room, sender, timestamp and body.
type Key struct {
	RoomID    int
	Sender    int
	CreatedAt int64
	Text      string
}

// Key returns the de-duplication identity of the message.
func (m Message) Key() Key {
	return Key{
		RoomID:    m.RoomID,
		Sender:    m.Sender,
		CreatedAt: m.CreatedAt.UnixNano(),
		Text:      m.Text,
	}
}

// DisplayText is the text to render: the placeholder for deleted messages,
// the original body otherwise.
func (m Message) DisplayText() string {
	if m.Deleted {
		return DeletedPlaceholder
	}
	return m.Text
}

// System reports whether the message was emitted by the backend itself
// rather than a user.
func (m Message) System() bool {
	return m.Sender == 0
}

// SendRequest is the payload published to the outbound send destination.
type SendRequest struct {
	RoomID  int    `json:"roomId"`
	Message string `json:"message"`
}

// Time wraps time.Time to tolerate the backend's zone-less timestamps.
// Spring serializes LocalDateTime without an offset, which the stdlib
// RFC 3339 parser rejects.
type Time struct {
	time.Time
}

const localLayout = "2006-01-02T15:04:05"

// NewTime builds a Time from a time.Time.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// UnmarshalJSON accepts RFC 3339 timestamps as well as zone-less ones,
// which are interpreted as UTC.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse(localLayout, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// MarshalJSON emits RFC 3339.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}

// Scan implements sql.Scanner for timestamp columns.
func (t *Time) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		t.Time = v
		return nil
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Time", value)
	}
}

// Value implements driver.Valuer.
func (t Time) Value() (driver.Value, error) {
	return t.Time, nil
}
