// Package client is a typed HTTP client for the pixelmap backend. The
// editor and the watch daemon persist through it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError carries the backend's {"error": ...} payload with its status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Client talks to one backend with one bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New returns a client with a sane default timeout.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// User mirrors the backend user resource.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Map mirrors the backend map resource.
type Map struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
}

// Bounds is the sprite content rectangle as stored server-side.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Memory mirrors the backend memory resource, photos included.
type Memory struct {
	ID             int64   `json:"id"`
	MapID          int64   `json:"map_id"`
	SourceType     string  `json:"source_type"`
	SourceData     string  `json:"source_data,omitempty"`
	ProcessedImage string  `json:"processed_image,omitempty"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	ContentBounds  *Bounds `json:"content_bounds,omitempty"`
	Flipped        bool    `json:"flipped_horizontally"`
	Locked         bool    `json:"is_locked"`
	LogLocation    string  `json:"log_location"`
	LogDate        string  `json:"log_date"`
	LogMusings     string  `json:"log_musings"`
	Photos         []Photo `json:"photos"`
}

// Photo mirrors one stored photograph. PhotoData is base64.
type Photo struct {
	ID        int64  `json:"id"`
	MemoryID  int64  `json:"memory_id"`
	PhotoData string `json:"photo_data"`
	Filename  string `json:"filename"`
}

// MemoryPayload is the write shape for create and update calls. Pointer
// fields are omitted when nil so updates stay partial.
type MemoryPayload struct {
	SourceType     string   `json:"source_type,omitempty"`
	SourceData     *string  `json:"source_data,omitempty"`
	ProcessedImage *string  `json:"processed_image,omitempty"`
	Lat            *float64 `json:"lat,omitempty"`
	Lng            *float64 `json:"lng,omitempty"`
	Width          *int     `json:"width,omitempty"`
	Height         *int     `json:"height,omitempty"`
	ContentBounds  *Bounds  `json:"content_bounds,omitempty"`
	Flipped        *bool    `json:"flipped_horizontally,omitempty"`
	Locked         *bool    `json:"is_locked,omitempty"`
	LogLocation    *string  `json:"log_location,omitempty"`
	LogDate        *string  `json:"log_date,omitempty"`
	LogMusings     *string  `json:"log_musings,omitempty"`
}

// SyncUser registers the authenticated identity with the backend and
// returns the stored user row.
func (c *Client) SyncUser(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodPost, "/api/auth/sync", nil, &u)
	return u, err
}

// Maps lists the caller's maps, most recently updated first.
func (c *Client) Maps(ctx context.Context) ([]Map, error) {
	var maps []Map
	err := c.do(ctx, http.MethodGet, "/api/maps", nil, &maps)
	return maps, err
}

// DefaultMap returns the first existing map or creates one.
func (c *Client) DefaultMap(ctx context.Context) (Map, error) {
	maps, err := c.Maps(ctx)
	if err != nil {
		return Map{}, err
	}
	if len(maps) > 0 {
		return maps[0], nil
	}
	return c.CreateMap(ctx, "My Travel Map")
}

// CreateMap creates a named map.
func (c *Client) CreateMap(ctx context.Context, name string) (Map, error) {
	var m Map
	err := c.do(ctx, http.MethodPost, "/api/maps", map[string]string{"name": name}, &m)
	return m, err
}

// Memories lists every memory on a map.
func (c *Client) Memories(ctx context.Context, mapID int64) ([]Memory, error) {
	var out []Memory
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/maps/%d/memories", mapID), nil, &out)
	return out, err
}

// CreateMemory persists a new memory and returns the stored row.
func (c *Client) CreateMemory(ctx context.Context, mapID int64, payload MemoryPayload) (Memory, error) {
	var m Memory
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/maps/%d/memories", mapID), payload, &m)
	return m, err
}

// UpdateMemory applies a partial update.
func (c *Client) UpdateMemory(ctx context.Context, memoryID int64, payload MemoryPayload) (Memory, error) {
	var m Memory
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/memories/%d", memoryID), payload, &m)
	return m, err
}

// DeleteMemory removes a memory and its photos.
func (c *Client) DeleteMemory(ctx context.Context, memoryID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/memories/%d", memoryID), nil, nil)
}

// AddPhoto attaches a base64 photo to a memory.
func (c *Client) AddPhoto(ctx context.Context, memoryID int64, photoData, filename string) (Photo, error) {
	var p Photo
	body := map[string]string{"photo_data": photoData, "filename": filename}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/memories/%d/photos", memoryID), body, &p)
	return p, err
}

// DeletePhoto removes one photo.
func (c *Client) DeletePhoto(ctx context.Context, memoryID, photoID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/memories/%d/photos/%d", memoryID, photoID), nil, nil)
}

// Export downloads the portable snapshot of a map.
func (c *Client) Export(ctx context.Context, mapID int64) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/maps/%d/export", mapID), nil, &raw)
	return raw, err
}

// ImportResult reports how many memories an import created.
type ImportResult struct {
	Imported int `json:"imported"`
}

// Import uploads a snapshot into a map. clearExisting wipes the map first.
func (c *Client) Import(ctx context.Context, mapID int64, snapshot json.RawMessage, clearExisting bool) (ImportResult, error) {
	var res ImportResult
	body := map[string]any{"data": snapshot, "clear_existing": clearExisting}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/maps/%d/import", mapID), body, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		var payload struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
