// Package history fetches point-in-time message pages and room metadata
// from the backend's REST API.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chat-sync-client/internal/auth"
	"chat-sync-client/internal/models"
	"chat-sync-client/internal/observability"
)

// Default page parameters, matching the query the room view issues.
const (
	DefaultPageSize = 100
	DefaultSort     = "createdAt,asc"
)

// Fetcher retrieves history pages and room metadata.
type Fetcher interface {
	Messages(ctx context.Context, roomID, page, size int, sort string) ([]models.Message, error)
	RoomDetail(ctx context.Context, roomID int) (models.RoomDetail, error)
	MyRooms(ctx context.Context) ([]models.RoomSummary, error)
}

// Client is an HTTP-backed Fetcher.
type Client struct {
	baseURL string
	creds   auth.CredentialProvider
	http    *http.Client
	tracer  trace.Tracer
}

// NewClient builds a Client for the given API base URL.
func NewClient(baseURL string, creds auth.CredentialProvider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    httpClient,
		tracer:  otel.Tracer("chat-sync-client/history"),
	}
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Messages fetches one ordered page of past messages for a room. A
// rejected request or failed transport yields an empty page plus the
// error; the caller decides how to surface it.
func (c *Client) Messages(ctx context.Context, roomID, page, size int, sort string) ([]models.Message, error) {
	ctx, span := c.tracer.Start(ctx, "history.messages",
		trace.WithAttributes(attribute.Int("room_id", roomID), attribute.Int("page", page)))
	defer span.End()

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))
	query.Set("sort", sort)

	var messages []models.Message
	err := c.get(ctx, fmt.Sprintf("/api/messages/%d?%s", roomID, query.Encode()), &messages)
	if err != nil {
		observability.IncHistoryFetch("error")
		return nil, err
	}
	for i := range messages {
		if messages[i].RoomID == 0 {
			messages[i].RoomID = roomID
		}
	}
	observability.IncHistoryFetch("ok")
	return messages, nil
}

// RoomDetail fetches the metadata rendered in a room header.
func (c *Client) RoomDetail(ctx context.Context, roomID int) (models.RoomDetail, error) {
	ctx, span := c.tracer.Start(ctx, "history.room_detail",
		trace.WithAttributes(attribute.Int("room_id", roomID)))
	defer span.End()

	var detail models.RoomDetail
	err := c.get(ctx, fmt.Sprintf("/api/chats/me/%d", roomID), &detail)
	return detail, err
}

// MyRooms lists the rooms visible to the authenticated caller.
func (c *Client) MyRooms(ctx context.Context) ([]models.RoomSummary, error) {
	ctx, span := c.tracer.Start(ctx, "history.my_rooms")
	defer span.End()

	var rooms []models.RoomSummary
	err := c.get(ctx, "/api/chats/me", &rooms)
	return rooms, err
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	token, err := c.creds.Token()
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if !env.Success {
		return fmt.Errorf("request %s rejected: %s", path, env.Message)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}
