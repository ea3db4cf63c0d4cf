package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-sync-client/internal/client"
	"chat-sync-client/internal/models"
	"chat-sync-client/internal/telemetry"
)

// StatusHandler exposes the monitor's local operational endpoints.
type StatusHandler struct {
	client *client.Client
}

// NewStatusHandler builds a StatusHandler.
func NewStatusHandler(c *client.Client) *StatusHandler {
	return &StatusHandler{client: c}
}

// Status reports the connection state and every open room.
func (h *StatusHandler) Status(c *gin.Context) {
	type roomStatus struct {
		RoomID       int    `json:"room_id"`
		Title        string `json:"title,omitempty"`
		Messages     int    `json:"messages"`
		HistoryReady bool   `json:"history_ready"`
		Error        string `json:"error,omitempty"`
	}

	rooms := h.client.Rooms()
	statuses := make([]roomStatus, 0, len(rooms))
	for _, r := range rooms {
		rs := roomStatus{
			RoomID:       r.ID(),
			Messages:     r.Timeline().Len(),
			HistoryReady: r.Timeline().Ready(),
		}
		if detail, ok := r.Detail(); ok {
			rs.Title = detail.Title
		}
		if err := r.Timeline().Err(); err != nil {
			rs.Error = err.Error()
		}
		statuses = append(statuses, rs)
	}

	resp := gin.H{
		"connection_state": h.client.State().String(),
		"rooms":            statuses,
	}
	if err := h.client.LastError(); err != nil {
		resp["last_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// RoomMessages returns the current timeline snapshot for one open room,
// with deleted bodies replaced by the render placeholder.
func (h *StatusHandler) RoomMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room := h.client.Room(roomID)
	if room == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not open"})
		return
	}

	type renderedMessage struct {
		Sender     int         `json:"sender"`
		SenderName string      `json:"senderName"`
		Text       string      `json:"message"`
		CreatedAt  models.Time `json:"createdAt"`
		Deleted    bool        `json:"deleted"`
	}

	snapshot := room.Timeline().Snapshot()
	rendered := make([]renderedMessage, 0, len(snapshot))
	for _, m := range snapshot {
		rendered = append(rendered, renderedMessage{
			Sender:     m.Sender,
			SenderName: m.SenderName,
			Text:       m.DisplayText(),
			CreatedAt:  m.CreatedAt,
			Deleted:    m.Deleted,
		})
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": rendered})
}

// RegisterRoutes wires the status, metrics and debug endpoints.
func RegisterRoutes(router *gin.Engine, h *StatusHandler, emitter *telemetry.AuditEmitter, debug bool) {
	router.GET("/status", h.Status)
	router.GET("/rooms/:room_id/messages", h.RoomMessages)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if debug {
		router.GET("/debug/audit-test", func(c *gin.Context) {
			if emitter == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
				return
			}
			emitter.Emit(c.Request.Context(), "INFO", "audit test", "", nil)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
}
