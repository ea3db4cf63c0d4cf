// Package archive persists observed messages to Postgres so an admin
// monitor keeps an auditable copy of every timeline it watched.
package archive

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"chat-sync-client/internal/models"
)

// Store is a sqlx-backed archive.
type Store struct {
	db  *sqlx.DB
	log *log.Logger
}

// Open connects to the archive database and applies the schema.
func Open(dsn string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect archive db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive db: %w", err)
	}
	return &Store{db: db, log: logger}, nil
}

func migrate(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS archived_messages (
            id SERIAL PRIMARY KEY,
            room_id INT NOT NULL,
            sender INT NOT NULL,
            sender_name TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT FALSE,
            archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(room_id, sender, created_at, body)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_archived_messages_room
            ON archived_messages (room_id, created_at);`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// SaveMessage stores one message, keyed by its identity tuple. A message
// already archived is a no-op; a later soft delete upgrades the flag but
// keeps the original body.
func (s *Store) SaveMessage(ctx context.Context, m models.Message) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO archived_messages
        (room_id, sender, sender_name, body, created_at, deleted)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (room_id, sender, created_at, body)
        DO UPDATE SET deleted = archived_messages.deleted OR EXCLUDED.deleted`,
		m.RoomID, m.Sender, m.SenderName, m.Text, m.CreatedAt.Time, m.Deleted)
	if err != nil {
		return fmt.Errorf("archive message: %w", err)
	}
	return nil
}

// RoomMessages returns the archived messages for one room in timestamp
// order.
func (s *Store) RoomMessages(ctx context.Context, roomID int) ([]models.Message, error) {
	var out []models.Message
	err := s.db.SelectContext(ctx, &out, `SELECT room_id, sender, sender_name, body, created_at, deleted
        FROM archived_messages WHERE room_id=$1 ORDER BY created_at ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("load archived messages: %w", err)
	}
	return out, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
