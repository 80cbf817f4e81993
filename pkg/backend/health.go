package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sentryhost/guardian/internal/utils"
	log "github.com/sirupsen/logrus"
)

// HealthClient probes the inference backend directly. Unlike the serving
// client it keeps a few retries: waiting out a cold start is exactly
// what the post-restart health gate is for.
type HealthClient struct {
	config Config
	client *retryablehttp.Client
	logger *log.Logger
}

func NewHealthClient(config Config, logger *log.Logger) *HealthClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = config.HealthTimeout
	client.Logger = &utils.LeveledLogrus{Logger: logger}

	return &HealthClient{
		config: config,
		client: client,
		logger: logger,
	}
}

// Healthy succeeds when the backend's basic health endpoint answers 2xx.
func (h *HealthClient) Healthy(ctx context.Context) error {
	url := h.config.ServerURL + h.config.HealthPath

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend health check failed, code: %d", resp.StatusCode)
	}

	return nil
}

// SmokeTest issues a minimal generate request. A failure here usually means
// the model is still loading; the kill sequence logs it and moves on.
func (h *HealthClient) SmokeTest(ctx context.Context) error {
	url := h.config.ServerURL + h.config.GeneratePath

	payload := map[string]interface{}{
		"model":  h.config.SmokeModel,
		"prompt": "ping",
		"stream": false,
		"options": map[string]interface{}{
			"num_predict": 1,
		},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.SmokeTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend smoke test: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		h.logger.Debugf("smoke test response body: %s", string(body))
		return fmt.Errorf("backend smoke test failed, code: %d", resp.StatusCode)
	}

	return nil
}
