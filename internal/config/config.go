package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the monitor's runtime settings, read from the environment.
type Config struct {
	APIBaseURL string
	WSURL      string
	Token      string
	RoomIDs    []int

	ListenAddr   string
	DebugRoutes  bool
	AMQPURL      string
	AMQPExchange string
	ArchiveDSN   string

	Heartbeat      time.Duration
	ReconnectDelay time.Duration
}

// FromEnv builds a validated Config from the process environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIBaseURL:   getEnv("CHAT_API_URL", "http://localhost:8081"),
		WSURL:        getEnv("CHAT_WS_URL", "ws://localhost:8081/ws-chat"),
		Token:        os.Getenv("CHAT_ACCESS_TOKEN"),
		ListenAddr:   getEnv("LISTEN_ADDR", ":8090"),
		DebugRoutes:  getEnv("DEBUG_ROUTES", "false") == "true",
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chat_events"),
		ArchiveDSN:   os.Getenv("ARCHIVE_DSN"),
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("CHAT_API_URL cannot be empty")
	}
	if cfg.WSURL == "" {
		return nil, fmt.Errorf("CHAT_WS_URL cannot be empty")
	}

	rooms, err := parseRoomIDs(os.Getenv("CHAT_ROOM_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.RoomIDs = rooms

	cfg.Heartbeat, err = parseDuration("HEARTBEAT_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	cfg.ReconnectDelay, err = parseDuration("RECONNECT_DELAY", 0)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseRoomIDs parses a comma-separated room id list. Empty means the
// monitor discovers rooms from the backend instead.
func parseRoomIDs(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("CHAT_ROOM_IDS: invalid room id %q", p)
		}
		if id <= 0 {
			return nil, fmt.Errorf("CHAT_ROOM_IDS: room id must be positive, got %d", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
