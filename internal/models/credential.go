package models

import "time"

// CredentialStatus is the provisioning status of a VPN credential
type CredentialStatus string

const (
	StatusActive    CredentialStatus = "active"
	StatusSuspended CredentialStatus = "suspended"
	StatusExpired   CredentialStatus = "expired"
)

// VpnCredential represents a provisioned VPN access record owned by a user.
// EndpointURL and UpstreamRef are empty for local-fallback records that were
// created while the panel was unavailable.
type VpnCredential struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"user_id"`
	UUID             string           `json:"uuid"`
	Email            string           `json:"email"`
	SubID            string           `json:"sub_id,omitempty"`
	UpstreamRef      string           `json:"xui_client_id,omitempty"`
	InboundID        int              `json:"inbound_id"`
	Status           CredentialStatus `json:"status"`
	Upload           int64            `json:"upload"`
	Download         int64            `json:"download"`
	TotalTraffic     int64            `json:"total_traffic"`
	ExpiryTime       int64            `json:"expiry_time"` // unix millis, 0 = never expires
	EndpointURL      string           `json:"config_url,omitempty"`
	NotificationStep int              `json:"notification_step"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsProvisioned reports whether the credential is backed by a real panel client
func (c *VpnCredential) IsProvisioned() bool {
	return c.UpstreamRef != "" && c.EndpointURL != ""
}

// ExpiresAt returns the expiry instant, or the zero time for non-expiring credentials
func (c *VpnCredential) ExpiresAt() time.Time {
	if c.ExpiryTime == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpiryTime)
}

// ReminderCandidate is a credential joined with the owning user's Telegram
// account id, as selected by the reminder sweep
type ReminderCandidate struct {
	VpnCredential
	AccountID int64
}
