package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8081", cfg.APIBaseURL)
	assert.Equal(t, "ws://localhost:8081/ws-chat", cfg.WSURL)
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Empty(t, cfg.RoomIDs)
	assert.Zero(t, cfg.Heartbeat)
	assert.False(t, cfg.DebugRoutes)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_API_URL", "https://chat.example.com")
	t.Setenv("CHAT_WS_URL", "wss://chat.example.com/ws-chat")
	t.Setenv("CHAT_ROOM_IDS", "1, 5, 12")
	t.Setenv("HEARTBEAT_INTERVAL", "2s")
	t.Setenv("RECONNECT_DELAY", "500ms")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.APIBaseURL)
	assert.Equal(t, []int{1, 5, 12}, cfg.RoomIDs)
	assert.Equal(t, 2*time.Second, cfg.Heartbeat)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectDelay)
	assert.True(t, cfg.DebugRoutes)
}

func TestFromEnvInvalidRoomIDs(t *testing.T) {
	t.Setenv("CHAT_ROOM_IDS", "1,abc")
	_, err := FromEnv()
	require.Error(t, err)

	t.Setenv("CHAT_ROOM_IDS", "0")
	_, err = FromEnv()
	require.Error(t, err)
}

func TestFromEnvInvalidDuration(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL", "soon")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvEmptyURLs(t *testing.T) {
	t.Setenv("CHAT_WS_URL", "")
	_, err := FromEnv()
	require.Error(t, err)
}
