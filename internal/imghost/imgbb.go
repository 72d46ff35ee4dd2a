// Package imghost implements the image hosting collaborator: a thin ImgBB
// client that turns a base64-encoded image into a publicly hosted URL.
// Handlers use it so homework photos and chat attachments can be passed to
// vision models by URL instead of inline payloads.
package imghost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.imgbb.com/1/upload"

// ErrUploadFailed indicates ImgBB rejected the upload or returned an
// unusable response.
var ErrUploadFailed = errors.New("image upload failed")

// Client uploads images to ImgBB. The API key is supplied per call because
// it comes from the mutable admin settings.
type Client struct {
	// Endpoint overrides the upload URL (tests point it at a fake).
	Endpoint string
	// HTTPClient overrides the underlying transport when non-nil.
	HTTPClient *http.Client
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

// Upload posts a base64 image payload and returns the hosted URL.
func (c *Client) Upload(ctx context.Context, apiKey, base64Image string) (string, error) {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	form := url.Values{}
	form.Set("key", apiKey)
	form.Set("image", base64Image)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUploadFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if !parsed.Success || parsed.Data.URL == "" {
		if parsed.Error.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrUploadFailed, parsed.Error.Message)
		}
		return "", ErrUploadFailed
	}
	return parsed.Data.URL, nil
}
