package models

// PanelClient represents a client definition submitted to the panel's
// add-client call
type PanelClient struct {
	ID         string `json:"id"`
	Enable     bool   `json:"enable"`
	Flow       string `json:"flow"`
	Email      string `json:"email"`
	TotalGB    int    `json:"totalGB"`
	LimitIP    int    `json:"limitIp"`
	ExpiryTime int64  `json:"expiryTime"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
}

// ToDictionary converts the client to a map for API requests
func (c *PanelClient) ToDictionary() map[string]interface{} {
	return map[string]interface{}{
		"id":         c.ID,
		"enable":     c.Enable,
		"flow":       c.Flow,
		"email":      c.Email,
		"totalGB":    c.TotalGB,
		"limitIp":    c.LimitIP,
		"expiryTime": c.ExpiryTime,
		"tgId":       c.TgID,
		"subId":      c.SubID,
	}
}

// ProvisionResult is the normalized outcome of a successful panel
// client creation
type ProvisionResult struct {
	CredentialID string
	SubID        string
	Email        string
	EndpointURL  string
	ExpiryTime   int64 // unix millis
}
