package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reliefdesk/internal/domain/notification"
	"reliefdesk/internal/pkg/response"
)

var ErrAPI = errors.New("notification api error")

// APIError is a non-2xx answer carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

// Retryable reports whether the server asked the caller to try again later.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusServiceUnavailable || e.Status == http.StatusTooManyRequests
}

const DefaultTimeout = 10 * time.Second

// API is a REST client for the notification endpoints under /api/v1.
type API struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewAPI(baseURL, token string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &API{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      strings.TrimSpace(token),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type ListOptions struct {
	IncludeRead bool
	Limit       int
	Cursor      string
}

func (a *API) List(ctx context.Context, opts ListOptions) (notification.ListResponse, error) {
	q := url.Values{}
	if opts.IncludeRead {
		q.Set("includeRead", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	path := "/api/v1/notifications/mine"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out notification.ListResponse
	err := a.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (a *API) UnreadCount(ctx context.Context) (int64, error) {
	var out notification.UnreadCountResponse
	if err := a.doJSON(ctx, http.MethodGet, "/api/v1/notifications/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

func (a *API) MarkRead(ctx context.Context, ids []int64) (notification.ReadState, error) {
	var out notification.ReadState
	err := a.doJSON(ctx, http.MethodPatch, "/api/v1/notifications/mark-read", notification.MarkReadRequest{IDs: ids}, &out)
	return out, err
}

func (a *API) MarkAllRead(ctx context.Context) (notification.ReadState, error) {
	var out notification.ReadState
	err := a.doJSON(ctx, http.MethodPatch, "/api/v1/notifications/mark-all-read", nil, &out)
	return out, err
}

func (a *API) Send(ctx context.Context, req notification.SendRequest) (notification.SendResponse, error) {
	var out notification.SendResponse
	err := a.doJSON(ctx, http.MethodPost, "/api/v1/notifications", req, &out)
	return out, err
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorBody `json:"error"`
}

func (a *API) doJSON(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
