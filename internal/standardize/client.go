package standardize

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client calls the local LLM hosting service over HTTP.
type Client struct {
	http *resty.Client
}

// NewClient builds a Client for the service at endpoint. The timeout bounds
// each classification call; model loading on the service side can be slow,
// so generous values are normal.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	c := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c}
}

type canonizeRequest struct {
	Program    string `json:"program"`
	University string `json:"university"`
}

// Canonize posts one record's text to the service and returns its canonical
// labels. Any transport or status failure is returned as an error; the
// caller decides whether to pass the record through raw.
func (c *Client) Canonize(ctx context.Context, program, university string) (Canonical, error) {
	var out Canonical
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(canonizeRequest{Program: program, University: university}).
		SetResult(&out).
		Post("")
	if err != nil {
		return Canonical{}, fmt.Errorf("standardize call: %w", err)
	}
	if resp.IsError() {
		return Canonical{}, fmt.Errorf("standardize call: status %s", resp.Status())
	}
	return out, nil
}
