package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/models"
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unauthorized reports whether the server rejected the caller's identity.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// API calls the notification endpoints as one authenticated caller.
type API struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// List fetches the first page of notifications visible to the caller.
func (a *API) List(ctx context.Context) ([]models.Notification, error) {
	var out []models.Notification
	err := a.do(ctx, http.MethodGet, "/api/notifications", &out)
	return out, err
}

func (a *API) MarkRead(ctx context.Context, id uint) error {
	return a.do(ctx, http.MethodPatch, "/api/notifications/"+strconv.FormatUint(uint64(id), 10), nil)
}

func (a *API) MarkAllRead(ctx context.Context) error {
	return a.do(ctx, http.MethodPut, "/api/notifications", nil)
}

func (a *API) DeleteAll(ctx context.Context) error {
	return a.do(ctx, http.MethodDelete, "/api/notifications", nil)
}

// Metrics fetches the latest snapshot for the caller's scope.
func (a *API) Metrics(ctx context.Context) (events.MetricsSnapshot, error) {
	var snap events.MetricsSnapshot
	err := a.do(ctx, http.MethodGet, "/api/metrics", &snap)
	return snap, err
}

// Resync replaces f's content with the server's authoritative state.
func (a *API) Resync(ctx context.Context, f *Feed) error {
	list, err := a.List(ctx)
	if err != nil {
		return fmt.Errorf("resync notifications: %w", err)
	}
	f.Replace(list)
	if snap, err := a.Metrics(ctx); err == nil {
		f.SetMetrics(snap)
	}
	return nil
}

// MarkReadOptimistic marks id read in f right away and reverts it if the
// server refuses.
func (a *API) MarkReadOptimistic(ctx context.Context, f *Feed, id uint) error {
	return Execute(ctx, "mark read", MarkReadCommand(f, id), func(ctx context.Context) error {
		return a.MarkRead(ctx, id)
	})
}

func (a *API) MarkAllReadOptimistic(ctx context.Context, f *Feed) error {
	return Execute(ctx, "mark all read", MarkAllReadCommand(f), a.MarkAllRead)
}

func (a *API) DeleteAllOptimistic(ctx context.Context, f *Feed) error {
	return Execute(ctx, "delete all", DeleteAllCommand(f), a.DeleteAll)
}

func (a *API) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	req.Header.Set("Accept", "application/json")

	hc := a.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	var env apiResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}
