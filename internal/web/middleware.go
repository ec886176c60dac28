package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"xui-sub-backend/internal/constants"
	"xui-sub-backend/internal/models"
)

// InitDataHeader carries the raw Telegram Mini App init-data
const InitDataHeader = "X-Telegram-Init-Data"

const identityKey = "identity"

// RequestLogger logs every handled request with its status and latency
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// InitDataAuth validates the Telegram Mini App init-data header and stores
// the verified identity in the request context. Requests with a missing or
// invalid header are rejected with 401 and nothing is mutated.
func InitDataAuth(botToken string, logger *logrus.Logger) gin.HandlerFunc {
	expIn := constants.InitDataExpiresIn * time.Minute

	return func(c *gin.Context) {
		raw := c.GetHeader(InitDataHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing init data header"})
			return
		}

		if err := initdata.Validate(raw, botToken, expIn); err != nil {
			logger.Debugf("Init data validation failed: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid init data signature"})
			return
		}

		parsed, err := initdata.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed init data"})
			return
		}
		if parsed.User.ID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user data not found in init data"})
			return
		}

		c.Set(identityKey, models.Identity{
			AccountID: parsed.User.ID,
			Name:      parsed.User.FirstName,
			Handle:    parsed.User.Username,
		})
		c.Next()
	}
}

// identityFrom extracts the verified identity stored by InitDataAuth
func identityFrom(c *gin.Context) (models.Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return models.Identity{}, false
	}
	identity, ok := value.(models.Identity)
	return identity, ok
}
