// Package client - HTTP-клиент для регистрации тревоги на сервере.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shenikar/sos_broadcasting_system/internal/models"
)

const sosPath = "/api/v1/sos"

var (
	// ErrNotRecorded - сервер не смог сохранить инцидент, тревога не зарегистрирована
	ErrNotRecorded  = errors.New("client: incident was not recorded")
	ErrUnauthorized = errors.New("client: unauthorized")
)

// RateLimitedError возвращается, когда сервер отклонил запрос лимитом
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("client: rate limited, retry after %s", e.RetryAfter)
}

// StatusError - неожиданный ответ сервера
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: unexpected status %d: %s", e.Code, e.Message)
}

type locationBody struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type sosBody struct {
	GestureID       *uuid.UUID    `json:"gesture_id,omitempty"`
	Location        *locationBody `json:"location"`
	LocationFailure string        `json:"location_failure,omitempty"`
	TriggeredAt     *time.Time    `json:"triggered_at,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client отправляет тревогу на сервер. Идентичность пользователя берется
// сервером из токена, поля UserID запроса не передаются.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Dispatch выполняет ровно одну попытку. Повтор - решение вызывающего.
func (c *Client) Dispatch(ctx context.Context, req models.DispatchRequest) (*models.Acknowledgement, error) {
	body := sosBody{
		GestureID:       req.GestureID,
		LocationFailure: string(req.LocationFailure),
	}
	if req.Coordinates != nil {
		body.Location = &locationBody{Lat: req.Coordinates.Lat, Lng: req.Coordinates.Lng}
	}
	if !req.TriggeredAt.IsZero() {
		triggeredAt := req.TriggeredAt
		body.TriggeredAt = &triggeredAt
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("client: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sosPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("client: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var ack models.Acknowledgement
		if err := json.Unmarshal(raw, &ack); err != nil {
			return nil, fmt.Errorf("client: decode acknowledgement: %w", err)
		}
		return &ack, nil
	case http.StatusTooManyRequests:
		return nil, &RateLimitedError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case http.StatusServiceUnavailable:
		return nil, ErrNotRecorded
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return nil, &StatusError{Code: resp.StatusCode, Message: eb.Error}
	}
}

func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
