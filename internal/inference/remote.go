package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gamepilot/internal/game"
)

// RemoteConfig configures a Remote backend.
type RemoteConfig struct {
	// URL is the endpoint base, e.g. http://127.0.0.1:9000.
	URL     string
	Timeout time.Duration
}

// Remote sends the preprocessed tensor to an HTTP inference server.
//
// Protocol:
//   - POST {URL}/infer  {"input": [...]}  ->  {"output": [...]}
//   - GET  {URL}/health  200 when ready
type Remote struct {
	httpClient *http.Client
	baseURL    string
}

// NewRemote creates a remote backend.
func NewRemote(cfg RemoteConfig) *Remote {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Remote{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
	}
}

type inferRequest struct {
	Input []float32 `json:"input"`
}

type inferResponse struct {
	Output []float32 `json:"output"`
}

func (r *Remote) Name() string { return "remote" }

// Load fails unless the server answers its health probe.
func (r *Remote) Load(ctx context.Context) error {
	if !r.IsAvailable(ctx) {
		return fmt.Errorf("inference: remote %s not available", r.baseURL)
	}
	return nil
}

func (r *Remote) Infer(ctx context.Context, frame *game.Frame) ([]float32, error) {
	body, err := json.Marshal(inferRequest{Input: Preprocess(frame)})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/infer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote returned status %d", resp.StatusCode)
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Output, nil
}

// IsAvailable probes GET /health with a 2s cap.
func (r *Remote) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (r *Remote) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}
