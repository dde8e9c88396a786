package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/domain/model"
)

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Status int
	Code   string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// Client talks to the scoreboard HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client with the given per-request timeout.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

type submitBody struct {
	PlayerID  int64  `json:"player_id"`
	Score     int64  `json:"score"`
	RequestID string `json:"request_id,omitempty"`
}

// Ready calls /readyz.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

// Register creates a player.
func (c *Client) Register(ctx context.Context, name string) (model.Player, error) {
	var p model.Player
	err := c.do(ctx, http.MethodPost, "/api/players", map[string]string{"name": name}, &p)
	return p, err
}

// Submit adds delta to a player's total.
func (c *Client) Submit(ctx context.Context, playerID, delta int64, requestID string) (service.SubmitResult, error) {
	var res service.SubmitResult
	err := c.do(ctx, http.MethodPost, "/api/leaderboard/submit",
		submitBody{PlayerID: playerID, Score: delta, RequestID: requestID}, &res)
	return res, err
}

// Top reads the first n leaderboard rows.
func (c *Client) Top(ctx context.Context, n int) ([]model.Entry, error) {
	var entries []model.Entry
	q := url.Values{"limit": {strconv.Itoa(n)}}
	err := c.do(ctx, http.MethodGet, "/api/leaderboard/top?"+q.Encode(), nil, &entries)
	return entries, err
}

// Rank reads a player's standing.
func (c *Client) Rank(ctx context.Context, playerID int64) (model.Standing, error) {
	var st model.Standing
	err := c.do(ctx, http.MethodGet, "/api/leaderboard/rank/"+strconv.FormatInt(playerID, 10), nil, &st)
	return st, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode, Body: string(raw)}
		var e struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(raw, &e) == nil {
			se.Code = e.Code
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
