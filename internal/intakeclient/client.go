// Package intakeclient talks to the intake HTTP API.
package intakeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wolfman30/clinic-intake/internal/intake"
)

// ErrNotFound is returned when the server no longer knows the conversation.
var ErrNotFound = errors.New("intakeclient: conversation not found")

// APIError is a non-2xx response other than 404.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("intakeclient: server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("intakeclient: server returned %d: %s", e.StatusCode, e.Detail)
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Client is a thin typed wrapper over the REST routes.
type Client struct {
	http *resty.Client
}

// New builds a client for baseURL. A zero timeout leaves room for slow
// inference-backed turns.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	return &Client{http: c}
}

// Start opens a conversation.
func (c *Client) Start(ctx context.Context) (intake.StartResponse, error) {
	var out intake.StartResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&errorBody{}).Post("/conversations")
	if err := check(resp, err); err != nil {
		return intake.StartResponse{}, err
	}
	return out, nil
}

// Send submits one turn.
func (c *Client) Send(ctx context.Context, conversationID, input string) (intake.Reply, error) {
	var out intake.Reply
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("conversationID", conversationID).
		SetBody(intake.MessageRequest{UserInput: input}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/conversations/{conversationID}/messages")
	if err := check(resp, err); err != nil {
		return intake.Reply{}, err
	}
	return out, nil
}

// Conversation fetches the live session snapshot.
func (c *Client) Conversation(ctx context.Context, conversationID string) (intake.SessionView, error) {
	var out intake.SessionView
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("conversationID", conversationID).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/conversations/{conversationID}")
	if err := check(resp, err); err != nil {
		return intake.SessionView{}, err
	}
	return out, nil
}

// Transcript fetches chat history, from the session or the mirror.
func (c *Client) Transcript(ctx context.Context, conversationID string) (intake.TranscriptView, error) {
	var out intake.TranscriptView
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("conversationID", conversationID).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/conversations/{conversationID}/transcript")
	if err := check(resp, err); err != nil {
		return intake.TranscriptView{}, err
	}
	return out, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("intakeclient: request failed: %w", err)
	}
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Detail = body.Detail
	}
	if apiErr.Detail == "" {
		apiErr.Detail = strings.TrimSpace(resp.String())
	}
	return apiErr
}
