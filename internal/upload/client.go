// Package upload talks to the external image-hosting API that serves the
// final QR artifacts. Rendering and hosting are outside this service; we
// only ship payloads and record the returned URL.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client posts base64 image payloads to an imgbb-style upload endpoint.
type Client struct {
	endpoint   string
	key        string
	httpClient *http.Client
}

func NewClient(endpoint, key string) *Client {
	return &Client{
		endpoint:   endpoint,
		key:        key,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// UploadImage sends the base64 payload and returns the hosted image URL.
func (c *Client) UploadImage(ctx context.Context, data string) (string, error) {
	form := url.Values{}
	form.Set("key", c.key)
	form.Set("image", data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image host returned status %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !out.Success || out.Data.URL == "" {
		msg := out.Error.Message
		if msg == "" {
			msg = "unknown error"
		}
		return "", fmt.Errorf("image host rejected upload: %s", msg)
	}
	return out.Data.URL, nil
}
