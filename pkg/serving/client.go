package serving

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

// Client is the single port to the serving system. Every action is
// idempotent on the serving side and verified by response status; the
// guardian substitutes a fake in tests instead of constructing HTTP
// clients inline.
type Client interface {
	StopIntake(ctx context.Context) error
	ResumeIntake(ctx context.Context) error
	StopAllSessions(ctx context.Context) error
	SwitchModel(ctx context.Context, model string) error
	SetContextWindow(ctx context.Context, tokens int) error
	SetRAGTopK(ctx context.Context, topK int) error
	DisableTools(ctx context.Context, tools []string) error
	EnableAllTools(ctx context.Context) error
}

// HTTPClient talks to the serving system's admin API.
// RetryMax is 0 on purpose: a failed degradation call is retried by the
// control loop on the next tick, never inside the action itself.
type HTTPClient struct {
	urls   ServingURLs
	client *retryablehttp.Client
	logger *log.Logger
}

func NewHTTPClient(config Config, logger *log.Logger) *HTTPClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.HTTPClient.Timeout = config.CallTimeout
	client.Logger = &utils.LeveledLogrus{Logger: logger}

	return &HTTPClient{
		urls:   config.URLs(),
		client: client,
		logger: logger,
	}
}

func (c *HTTPClient) StopIntake(ctx context.Context) error {
	return c.post(ctx, c.urls.StopIntake(), nil)
}

func (c *HTTPClient) ResumeIntake(ctx context.Context) error {
	return c.post(ctx, c.urls.ResumeIntake(), nil)
}

func (c *HTTPClient) StopAllSessions(ctx context.Context) error {
	return c.post(ctx, c.urls.StopAllSessions(), nil)
}

func (c *HTTPClient) SwitchModel(ctx context.Context, model string) error {
	return c.post(ctx, c.urls.SwitchModel(), map[string]interface{}{"model": model})
}

func (c *HTTPClient) SetContextWindow(ctx context.Context, tokens int) error {
	return c.post(ctx, c.urls.SetContextWindow(), map[string]interface{}{"num_ctx": tokens})
}

func (c *HTTPClient) SetRAGTopK(ctx context.Context, topK int) error {
	return c.post(ctx, c.urls.SetRAGTopK(), map[string]interface{}{"top_k": topK})
}

func (c *HTTPClient) DisableTools(ctx context.Context, tools []string) error {
	return c.post(ctx, c.urls.DisableTools(), map[string]interface{}{"tools": tools})
}

func (c *HTTPClient) EnableAllTools(ctx context.Context) error {
	return c.post(ctx, c.urls.EnableAllTools(), nil)
}

// post sends a JSON body and treats anything outside 2xx as an error;
// a protocol-violating response is indistinguishable from an I/O failure
// for the caller.
func (c *HTTPClient) post(ctx context.Context, url string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Debugf("serving call %s failed, response body: %s", url, string(respBody))
		return fmt.Errorf("serving call %s failed, code: %d", url, resp.StatusCode)
	}

	return nil
}
