package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentryhost/guardian/pkg/guardian"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	status guardian.Status
}

func (p staticProvider) Status() guardian.Status { return p.status }

func TestGetStatus(t *testing.T) {
	provider := staticProvider{status: guardian.Status{
		State:          guardian.StateBrownout,
		StateEnteredAt: time.Now(),
	}}
	server := NewServer(Config{ListenAddr: "127.0.0.1:0"}, provider, logrus.New())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	server.httpSrv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BROWNOUT", body["state"])
	assert.Contains(t, body, "brownout")
	assert.Contains(t, body, "kill_sequence")
	assert.Contains(t, body, "rate_limiter")
}

func TestGetHealthz(t *testing.T) {
	server := NewServer(Config{ListenAddr: "127.0.0.1:0"}, staticProvider{}, logrus.New())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.httpSrv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "version")
}

func TestNoMutationRoutes(t *testing.T) {
	server := NewServer(Config{ListenAddr: "127.0.0.1:0"}, staticProvider{}, logrus.New())

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec := httptest.NewRecorder()
	server.httpSrv.Handler.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}
