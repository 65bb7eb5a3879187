package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Room is the slice of the room HTTP API the tools call.
type Room interface {
	Do(ctx context.Context, method, path, apiKey string, body json.RawMessage) (json.RawMessage, error)
}

// APIError is a failed envelope returned by the room.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("room: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("room: %s: %s", e.Code, e.Message)
}

type HTTPRoom struct {
	base string
	http *http.Client
}

func NewHTTPRoom(baseURL string, timeout time.Duration) *HTTPRoom {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRoom{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRoom) Do(ctx context.Context, method, path, apiKey string, body json.RawMessage) (json.RawMessage, error) {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, rd)
	if err != nil {
		return nil, err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Code    string          `json:"code"`
		Hint    string          `json:"hint"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "non-json response"}
	}
	if !env.Success {
		return nil, &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error, Hint: env.Hint}
	}
	return env.Data, nil
}
