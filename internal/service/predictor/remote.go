package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
)

// RemoteOptions tunes the HTTP client used by Remote.
type RemoteOptions struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Remote calls a model server speaking the common
// {"instances": [...]} -> {"predictions": [...]} protocol.
type Remote struct {
	endpoint string
	client   *http.Client
}

type remoteRequest struct {
	Instances []car.Record `json:"instances"`
}

type remoteResponse struct {
	Predictions []float64 `json:"predictions"`
	Error       string    `json:"error,omitempty"`
}

// NewRemote validates the endpoint and prepares a client.
func NewRemote(endpoint string, opts RemoteOptions) (*Remote, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid predictor url %q", endpoint)
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Remote{endpoint: endpoint, client: client}, nil
}

// Name identifies the remote model in logs.
func (r *Remote) Name() string {
	return "remote:" + r.endpoint
}

// Predict sends a single-instance request.
func (r *Remote) Predict(ctx context.Context, record car.Record) (float64, error) {
	body, err := json.Marshal(remoteRequest{Instances: []car.Record{record}})
	if err != nil {
		return 0, fmt.Errorf("encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call predictor: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read predictor response: %w", err)
	}

	var decoded remoteResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return 0, fmt.Errorf("decode predictor response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != "" {
			return 0, fmt.Errorf("predictor returned %d: %s", resp.StatusCode, decoded.Error)
		}
		return 0, fmt.Errorf("predictor returned %d", resp.StatusCode)
	}
	if len(decoded.Predictions) != 1 {
		return 0, fmt.Errorf("predictor returned %d predictions, want 1", len(decoded.Predictions))
	}
	return decoded.Predictions[0], nil
}
