package helpers

import (
	"fmt"
	"strings"
	"time"

	"xui-sub-backend/internal/constants"
	"xui-sub-backend/internal/models"
)

// FormatCredentialInfo formats a credential summary for a Telegram message
func FormatCredentialInfo(cred *models.VpnCredential) string {
	var sb strings.Builder
	sb.WriteString("<b>Your subscription</b>\n\n")
	sb.WriteString(fmt.Sprintf("Status: %s\n", statusLabel(cred.Status)))

	if cred.ExpiryTime == 0 {
		sb.WriteString("Expires: never\n")
	} else {
		sb.WriteString(fmt.Sprintf("Expires: %s\n",
			time.UnixMilli(cred.ExpiryTime).Format(constants.TimestampFormat)))
	}

	if cred.TotalTraffic > 0 {
		sb.WriteString(fmt.Sprintf("Traffic used: %s (↓ %s / ↑ %s)\n",
			FormatTraffic(cred.TotalTraffic),
			FormatTraffic(cred.Download),
			FormatTraffic(cred.Upload)))
	}

	if cred.EndpointURL != "" {
		sb.WriteString(fmt.Sprintf("\nLink to connect: %s", cred.EndpointURL))
	} else {
		sb.WriteString("\nYour access is being set up, the connection link will appear here shortly.")
	}

	return sb.String()
}

// FormatTraffic renders a byte count in gigabytes
func FormatTraffic(bytes int64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/constants.BytesInGB)
}

func statusLabel(status models.CredentialStatus) string {
	switch status {
	case models.StatusActive:
		return "🟢 active"
	case models.StatusSuspended:
		return "🟡 suspended"
	case models.StatusExpired:
		return "🔴 expired"
	default:
		return string(status)
	}
}
