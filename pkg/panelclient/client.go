package panelclient

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"xui-sub-backend/internal/config"
	"xui-sub-backend/internal/constants"
	apperrors "xui-sub-backend/internal/errors"
	"xui-sub-backend/internal/models"
)

const sessionKey = "session"

// Client represents a 3X-UI panel API client. A session cookie is obtained
// lazily on the first call and cached; on an authorization-expired response
// the session is dropped and the operation is retried exactly once.
type Client struct {
	httpClient   *resty.Client
	panelConfig  config.PanelConfig
	sessionCache *cache.Cache
	logger       *logrus.Logger
}

// PanelAPIResponse represents the response envelope of the panel API
type PanelAPIResponse struct {
	Success bool        `json:"success"`
	Msg     string      `json:"msg"`
	Obj     interface{} `json:"obj"`
}

// NewClient creates a new panel API client
func NewClient(panelConfig config.PanelConfig, logger *logrus.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(constants.PanelTimeout * time.Second).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})

	return &Client{
		httpClient:   httpClient,
		panelConfig:  panelConfig,
		sessionCache: cache.New(constants.SessionCacheExpiration*time.Minute, constants.SessionCacheCleanupInterval*time.Minute),
		logger:       logger,
	}
}

// Login logs in to the panel API
func (c *Client) Login(ctx context.Context) error {
	// Check if we already have a valid session
	if _, found := c.sessionCache.Get(sessionKey); found {
		return nil
	}

	c.logger.Infof("Logging in to panel API at %s", c.panelConfig.APIURL)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"username": c.panelConfig.User,
			"password": c.panelConfig.Password,
		}).
		Post(fmt.Sprintf("%s/login", c.panelConfig.APIURL))

	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		c.logger.Errorf("Login failed - URL: %s/login, Status: %d, Response: %s",
			c.panelConfig.APIURL, resp.StatusCode(), string(resp.Body()))
		return fmt.Errorf("login failed with status code: %d", resp.StatusCode())
	}

	var apiResp PanelAPIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}

	if !apiResp.Success {
		return fmt.Errorf("login failed: %s", apiResp.Msg)
	}

	// Store cookies for future requests
	cookies := resp.Cookies()
	if len(cookies) > 0 {
		c.sessionCache.Set(sessionKey, cookies, cache.DefaultExpiration)
		c.logger.Info("Successfully logged in to panel API")
		return nil
	}

	return errors.New("no session cookie received from server")
}

// CreateClient provisions a new client on the configured inbound and
// returns the normalized result with a stable public subscription URL.
// The short subscription token is distinct from the credential id so the
// public URL never leaks the upstream identifier.
func (c *Client) CreateClient(ctx context.Context, accountID int64, duration time.Duration) (*models.ProvisionResult, error) {
	credentialID := uuid.NewString()
	subID, err := newSubToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate subscription token: %w", err)
	}

	now := time.Now()
	expiry := now.Add(duration).UnixMilli()

	client := models.PanelClient{
		ID:         credentialID,
		Enable:     true,
		Flow:       "",
		Email:      fmt.Sprintf("user_%d_%d", accountID, now.UnixMilli()),
		TotalGB:    0,
		LimitIP:    constants.DefaultDeviceLimit,
		ExpiryTime: expiry,
		TgID:       strconv.FormatInt(accountID, 10),
		SubID:      subID,
	}

	if err := c.addClient(ctx, client, true); err != nil {
		return nil, &apperrors.UpstreamUnavailableError{Operation: "add client", Err: err}
	}

	c.logger.Infof("Provisioned panel client %s for account %d", client.Email, accountID)

	return &models.ProvisionResult{
		CredentialID: credentialID,
		SubID:        subID,
		Email:        client.Email,
		EndpointURL:  fmt.Sprintf("%s/sub/%s", c.panelConfig.SubURLPrefix, subID),
		ExpiryTime:   expiry,
	}, nil
}

// addClient submits the client definition to the panel. allowRefresh
// permits a single re-authentication on a 401/403 response; the retried
// call runs with allowRefresh=false so a second failure propagates.
func (c *Client) addClient(ctx context.Context, client models.PanelClient, allowRefresh bool) error {
	cookies, err := c.sessionCookies(ctx)
	if err != nil {
		return err
	}

	settingsJSON, err := json.Marshal(map[string]interface{}{
		"clients": []map[string]interface{}{client.ToDictionary()},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	requestBody := map[string]interface{}{
		"id":       c.panelConfig.InboundID,
		"settings": string(settingsJSON),
	}

	c.logger.Debugf("Adding client to inbound %d with email: %s", c.panelConfig.InboundID, client.Email)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetCookies(cookies).
		SetBody(requestBody).
		Post(fmt.Sprintf("%s/panel/api/inbounds/addClient", c.panelConfig.APIURL))

	if err != nil {
		return fmt.Errorf("add client request failed: %w", err)
	}

	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		c.sessionCache.Delete(sessionKey)
		if allowRefresh {
			c.logger.Warn("Panel session expired, re-authenticating")
			return c.addClient(ctx, client, false)
		}
		return fmt.Errorf("add client unauthorized after re-authentication, status code: %d", resp.StatusCode())
	}

	if resp.StatusCode() != http.StatusOK {
		c.logger.Errorf("Add client failed with status code %d, response body: %s", resp.StatusCode(), string(resp.Body()))
		return fmt.Errorf("add client failed with status code: %d", resp.StatusCode())
	}

	if len(resp.Body()) == 0 {
		return errors.New("empty response from server")
	}

	var apiResp PanelAPIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return fmt.Errorf("failed to parse add client response: %w", err)
	}

	if !apiResp.Success {
		return fmt.Errorf("add client failed: %s", apiResp.Msg)
	}

	return nil
}

// sessionCookies returns the cached session cookies, logging in first when
// no valid session exists. The cache entry can expire between any two
// lookups, so the cookies are read in the same step that confirms them.
func (c *Client) sessionCookies(ctx context.Context) ([]*http.Cookie, error) {
	if cached, found := c.sessionCache.Get(sessionKey); found {
		return cached.([]*http.Cookie), nil
	}

	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	cached, found := c.sessionCache.Get(sessionKey)
	if !found {
		return nil, errors.New("session cookies missing after login")
	}
	return cached.([]*http.Cookie), nil
}

// newSubToken generates the short random token used in the public
// subscription URL
func newSubToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
