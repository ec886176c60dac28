package panelclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xui-sub-backend/internal/config"
	"xui-sub-backend/internal/constants"
	apperrors "xui-sub-backend/internal/errors"
)

type fakePanel struct {
	mux          *http.ServeMux
	loginCount   int32
	addCount     int32
	loginOK      bool
	unauthorized func(attempt int32) bool
	lastAddBody  []byte
}

func newFakePanel(t *testing.T) (*fakePanel, *httptest.Server) {
	t.Helper()
	p := &fakePanel{mux: http.NewServeMux(), loginOK: true}

	p.mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.loginCount, 1)
		if !p.loginOK {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "msg": "bad credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: "session-token"})
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	p.mux.HandleFunc("/panel/api/inbounds/addClient", func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&p.addCount, 1)
		body, _ := io.ReadAll(r.Body)
		p.lastAddBody = body
		if p.unauthorized != nil && p.unauthorized(attempt) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	srv := httptest.NewServer(p.mux)
	t.Cleanup(srv.Close)
	return p, srv
}

func newTestClient(srvURL string) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(config.PanelConfig{
		User:         "admin",
		Password:     "secret",
		APIURL:       srvURL,
		SubURLPrefix: "https://vpn.example.com:2096",
		InboundID:    2,
	}, logger)
}

func TestCreateClientSuccess(t *testing.T) {
	panel, srv := newFakePanel(t)
	client := newTestClient(srv.URL)

	before := time.Now()
	result, err := client.CreateClient(context.Background(), 42, constants.TrialDurationHours*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&panel.loginCount))
	assert.Equal(t, int32(1), atomic.LoadInt32(&panel.addCount))

	assert.NotEmpty(t, result.CredentialID)
	assert.Len(t, result.SubID, 16)
	assert.NotEqual(t, result.CredentialID, result.SubID, "public token must not leak the upstream id")
	assert.Equal(t, "https://vpn.example.com:2096/sub/"+result.SubID, result.EndpointURL)

	wantExpiry := before.Add(constants.TrialDurationHours * time.Hour).UnixMilli()
	assert.InDelta(t, wantExpiry, result.ExpiryTime, float64(10*time.Second.Milliseconds()))

	// Verify the wire shape: inbound id plus a JSON-string settings payload
	var reqBody struct {
		ID       int    `json:"id"`
		Settings string `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(panel.lastAddBody, &reqBody))
	assert.Equal(t, 2, reqBody.ID)

	var settings struct {
		Clients []map[string]interface{} `json:"clients"`
	}
	require.NoError(t, json.Unmarshal([]byte(reqBody.Settings), &settings))
	require.Len(t, settings.Clients, 1)
	assert.Equal(t, result.CredentialID, settings.Clients[0]["id"])
	assert.Equal(t, result.SubID, settings.Clients[0]["subId"])
	assert.Equal(t, "42", settings.Clients[0]["tgId"])
	assert.Equal(t, true, settings.Clients[0]["enable"])
}

func TestCreateClientAuthRefreshRetry(t *testing.T) {
	panel, srv := newFakePanel(t)
	// First add-client attempt hits an expired session
	panel.unauthorized = func(attempt int32) bool { return attempt == 1 }
	client := newTestClient(srv.URL)

	result, err := client.CreateClient(context.Background(), 42, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, result.EndpointURL)

	assert.Equal(t, int32(2), atomic.LoadInt32(&panel.addCount), "exactly one retry of the failed call")
	assert.Equal(t, int32(2), atomic.LoadInt32(&panel.loginCount), "exactly one re-authentication")
}

func TestCreateClientAuthRefreshExhausted(t *testing.T) {
	panel, srv := newFakePanel(t)
	panel.unauthorized = func(int32) bool { return true }
	client := newTestClient(srv.URL)

	_, err := client.CreateClient(context.Background(), 42, time.Hour)
	require.Error(t, err)

	var unavailable *apperrors.UpstreamUnavailableError
	assert.True(t, errors.As(err, &unavailable))
	assert.Equal(t, int32(2), atomic.LoadInt32(&panel.addCount), "a second 401 must not trigger a further retry")
}

func TestCreateClientLoginFailure(t *testing.T) {
	panel, srv := newFakePanel(t)
	panel.loginOK = false
	client := newTestClient(srv.URL)

	_, err := client.CreateClient(context.Background(), 42, time.Hour)
	require.Error(t, err)

	var unavailable *apperrors.UpstreamUnavailableError
	assert.True(t, errors.As(err, &unavailable))
	assert.Equal(t, int32(0), atomic.LoadInt32(&panel.addCount))
}

func TestCreateClientRecoversFromEvictedSession(t *testing.T) {
	panel, srv := newFakePanel(t)
	client := newTestClient(srv.URL)

	require.NoError(t, client.Login(context.Background()))

	// The cached session can be evicted at any point between calls
	client.sessionCache.Delete(sessionKey)

	_, err := client.CreateClient(context.Background(), 42, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&panel.loginCount))
}

func TestLoginCachesSession(t *testing.T) {
	panel, srv := newFakePanel(t)
	client := newTestClient(srv.URL)

	require.NoError(t, client.Login(context.Background()))
	require.NoError(t, client.Login(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&panel.loginCount))
}
