package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "xui-sub-backend/internal/errors"
	"xui-sub-backend/internal/models"
)

// ProvisionService is the orchestrator operation exposed over HTTP
type ProvisionService interface {
	EnsureCredential(ctx context.Context, identity models.Identity) (*models.VpnCredential, error)
}

// ReferralStore answers referral stat queries
type ReferralStore interface {
	ReferralCount(ctx context.Context, accountID int64) (int, error)
}

// Handler serves the Mini App API
type Handler struct {
	provisioner     ProvisionService
	referrals       ReferralStore
	panelConfigured bool
	logger          *logrus.Logger
}

// NewHandler creates a new API handler
func NewHandler(provisioner ProvisionService, referrals ReferralStore, panelConfigured bool, logger *logrus.Logger) *Handler {
	return &Handler{
		provisioner:     provisioner,
		referrals:       referrals,
		panelConfigured: panelConfigured,
		logger:          logger,
	}
}

// NewRouter builds the gin router with the auth middleware applied to all
// user-facing routes
func NewRouter(h *Handler, botToken string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	router.GET("/health", h.health)

	authed := router.Group("/", InitDataAuth(botToken, logger))
	authed.GET("/vpn/key", h.getVpnKey)
	authed.GET("/referrals", h.getReferrals)

	return router
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"panel_configured": h.panelConfigured,
	})
}

// getVpnKey returns the caller's active credential, provisioning one on
// first request
func (h *Handler) getVpnKey(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	h.logger.Infof("VPN key requested by account %d", identity.AccountID)

	cred, err := h.provisioner.EnsureCredential(c.Request.Context(), identity)
	if err != nil {
		var unavailable *apperrors.UpstreamUnavailableError
		if errors.As(err, &unavailable) {
			h.logger.Errorf("Panel unavailable for account %d: %v", identity.AccountID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vpn panel unavailable"})
			return
		}
		h.logger.Errorf("Provisioning failed for account %d: %v", identity.AccountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"vpn_client": cred})
}

// getReferrals returns how many users the caller has referred
func (h *Handler) getReferrals(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	count, err := h.referrals.ReferralCount(c.Request.Context(), identity.AccountID)
	if err != nil {
		h.logger.Errorf("Referral count failed for account %d: %v", identity.AccountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}
