package models

import "fmt"

// Identity is a verified Telegram user identity produced by the inbound
// auth layer (Mini App init-data validation or the bot update itself)
type Identity struct {
	AccountID int64
	Name      string
	Handle    string
}

// ReferralPayload formats the identity as a /start referral payload
func (i Identity) ReferralPayload() string {
	return fmt.Sprintf("%d", i.AccountID)
}
