package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	telebot "gopkg.in/telebot.v3"

	apperrors "xui-sub-backend/internal/errors"
)

func TestProvisionFailureText(t *testing.T) {
	upstream := &apperrors.UpstreamUnavailableError{Operation: "add client", Err: errors.New("connection refused")}
	assert.Contains(t, provisionFailureText(upstream), "temporarily unavailable")

	storage := &apperrors.StorageError{Operation: "create credential", Err: errors.New("disk full")}
	assert.Contains(t, provisionFailureText(storage), "Something went wrong")
	assert.NotContains(t, provisionFailureText(storage), "panel")
}

func TestParseReferrer(t *testing.T) {
	tests := []struct {
		name   string
		msg    *telebot.Message
		selfID int64
		want   int64
		wantOK bool
	}{
		{name: "nil message", msg: nil, selfID: 100},
		{name: "no payload", msg: &telebot.Message{}, selfID: 100},
		{name: "non-numeric payload", msg: &telebot.Message{Payload: "promo2024"}, selfID: 100},
		{name: "negative id", msg: &telebot.Message{Payload: "-5"}, selfID: 100},
		{name: "zero id", msg: &telebot.Message{Payload: "0"}, selfID: 100},
		{name: "self referral", msg: &telebot.Message{Payload: "100"}, selfID: 100},
		{name: "valid referrer", msg: &telebot.Message{Payload: "200"}, selfID: 100, want: 200, wantOK: true},
		{name: "padded payload", msg: &telebot.Message{Payload: " 200 "}, selfID: 100, want: 200, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseReferrer(tt.msg, tt.selfID)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
