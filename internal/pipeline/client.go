package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bridgeml/bridge/pkg/config"
	"github.com/bridgeml/bridge/pkg/types"
)

// Client talks to the external compute service over JSON/HTTP. The service
// is a black box: any non-2xx status or undecodable body is an upstream
// failure.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a compute service client
func NewClient(cfg *config.ModelOPSConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// DownloadFiles asks the compute service to pull a user's labeled dataset
// from object storage into a server-side working directory
func (c *Client) DownloadFiles(ctx context.Context, req types.DownloadRequest) (*types.DownloadResponse, error) {
	var resp types.DownloadResponse
	if err := c.post(ctx, "/download_files", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CleanFiles runs the preprocessing step over a working directory
func (c *Client) CleanFiles(ctx context.Context, req types.CleaningRequest) (*types.CleaningResponse, error) {
	var resp types.CleaningResponse
	if err := c.post(ctx, "/clean_files", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrainModel runs training over a working directory. The success payload is
// passed through untouched.
func (c *Client) TrainModel(ctx context.Context, req types.TrainingRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.post(ctx, "/train_model", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to encode request: %v", types.ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s unreachable: %v", types.ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s returned status %d", types.ErrUpstream, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", types.ErrUpstream, path, err)
	}

	return nil
}
