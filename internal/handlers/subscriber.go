package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"xui-sub-backend/internal/commands"
	"xui-sub-backend/internal/config"
	"xui-sub-backend/internal/constants"
	apperrors "xui-sub-backend/internal/errors"
	"xui-sub-backend/internal/helpers"
	"xui-sub-backend/internal/models"
	"xui-sub-backend/internal/services"
)

// SubscriberStore is the slice of the credential store the bot flow needs
type SubscriberStore interface {
	UpsertUser(ctx context.Context, identity models.Identity) (*models.User, error)
	SetReferrerOnce(ctx context.Context, accountID, referrerAccountID int64) (bool, error)
	ReferralCount(ctx context.Context, accountID int64) (int, error)
	LatestCredential(ctx context.Context, userID int64) (*models.VpnCredential, error)
}

// SubscriberHandler handles the subscriber conversation flow
type SubscriberHandler struct {
	BaseHandler
	commandHandlers map[string]func(context.Context, telebot.Context) error
}

// NewSubscriberHandler creates a new subscriber handler
func NewSubscriberHandler(
	provisioner *services.Provisioner,
	store SubscriberStore,
	qrService *services.QRService,
	config *config.Config,
	logger *logrus.Logger,
) *SubscriberHandler {
	handler := &SubscriberHandler{
		BaseHandler: NewBaseHandler(provisioner, store, qrService, config, logger),
	}

	handler.initializeCommands()
	return handler
}

// Handle handles a message from Telegram
func (h *SubscriberHandler) Handle(ctx context.Context, c telebot.Context) error {
	text := c.Text()
	if strings.HasPrefix(text, commands.Start) {
		return h.handleStart(ctx, c)
	}

	if handler, ok := h.commandHandlers[text]; ok {
		return handler(ctx, c)
	}

	// Unknown input falls back to the main menu
	return h.handleStart(ctx, c)
}

// initializeCommands initializes the command handlers
func (h *SubscriberHandler) initializeCommands() {
	h.commandHandlers = map[string]func(context.Context, telebot.Context) error{
		commands.GetAccess:        h.handleGetAccess,
		commands.Renew:            h.handleRenew,
		commands.MySubscription:   h.handleMySubscription,
		commands.InviteFriends:    h.handleInviteFriends,
		commands.Help:             h.handleHelp,
		commands.ReturnToMainMenu: h.handleStart,
	}
}

// handleStart handles the /start command, including referral payloads
func (h *SubscriberHandler) handleStart(ctx context.Context, c telebot.Context) error {
	identity := h.identityOf(c)

	if _, err := h.store.UpsertUser(ctx, identity); err != nil {
		h.logger.Errorf("Failed to upsert user %d: %v", identity.AccountID, err)
		return c.Send("Something went wrong. Please try again later.")
	}

	if referrer, ok := parseReferrer(c.Message(), identity.AccountID); ok {
		set, err := h.store.SetReferrerOnce(ctx, identity.AccountID, referrer)
		if err != nil {
			h.logger.Errorf("Failed to set referrer for %d: %v", identity.AccountID, err)
		} else if set {
			h.logger.Infof("Account %d was referred by %d", identity.AccountID, referrer)
		}
	}

	markup := h.createMainKeyboard()
	return h.sendTextMessage(c,
		fmt.Sprintf("Welcome, %s!\n\nGet your VPN access below, the first %d hours are free.",
			identity.Name, constants.TrialDurationHours),
		markup)
}

// handleGetAccess activates the trial or returns the existing credential
func (h *SubscriberHandler) handleGetAccess(ctx context.Context, c telebot.Context) error {
	identity := h.identityOf(c)

	cred, err := h.provisioner.EnsureCredential(ctx, identity)
	if err != nil {
		h.logger.Errorf("Provisioning failed for account %d: %v", identity.AccountID, err)
		return h.sendTextMessage(c, provisionFailureText(err), h.createMainKeyboard())
	}

	return h.replyWithCredential(c, cred)
}

// handleRenew provisions a paid credential when no active one exists
func (h *SubscriberHandler) handleRenew(ctx context.Context, c telebot.Context) error {
	identity := h.identityOf(c)

	cred, err := h.provisioner.Renew(ctx, identity, constants.RenewDurationDays*24*time.Hour)
	if err != nil {
		h.logger.Errorf("Renewal failed for account %d: %v", identity.AccountID, err)
		return h.sendTextMessage(c, provisionFailureText(err), h.createMainKeyboard())
	}

	return h.replyWithCredential(c, cred)
}

// handleMySubscription shows the most recent credential
func (h *SubscriberHandler) handleMySubscription(ctx context.Context, c telebot.Context) error {
	identity := h.identityOf(c)

	user, err := h.store.UpsertUser(ctx, identity)
	if err != nil {
		h.logger.Errorf("Failed to upsert user %d: %v", identity.AccountID, err)
		return c.Send("Something went wrong. Please try again later.")
	}

	cred, err := h.store.LatestCredential(ctx, user.ID)
	if err != nil {
		h.logger.Errorf("Failed to load credential for account %d: %v", identity.AccountID, err)
		return c.Send("Something went wrong. Please try again later.")
	}
	if cred == nil {
		return h.sendTextMessage(c,
			"You don't have a subscription yet. Tap \""+commands.GetAccess+"\" to start your free trial.",
			h.createMainKeyboard())
	}

	return h.sendTextMessage(c, helpers.FormatCredentialInfo(cred), h.createMainKeyboard())
}

// handleInviteFriends shows the referral link with stats
func (h *SubscriberHandler) handleInviteFriends(ctx context.Context, c telebot.Context) error {
	identity := h.identityOf(c)

	count, err := h.store.ReferralCount(ctx, identity.AccountID)
	if err != nil {
		h.logger.Errorf("Failed to count referrals for account %d: %v", identity.AccountID, err)
		return c.Send("Something went wrong. Please try again later.")
	}

	link := fmt.Sprintf("https://t.me/%s?start=%s", c.Bot().Me.Username, identity.ReferralPayload())
	return h.sendTextMessage(c,
		fmt.Sprintf("Share your personal link:\n%s\n\nFriends invited so far: <b>%d</b>", link, count),
		h.createMainKeyboard())
}

// handleHelp shows a short usage hint
func (h *SubscriberHandler) handleHelp(_ context.Context, c telebot.Context) error {
	return h.sendTextMessage(c,
		"Tap \""+commands.GetAccess+"\" to get your VPN connection link, "+
			"or \""+commands.MySubscription+"\" to check your current access.",
		h.createMainKeyboard())
}

// replyWithCredential sends the credential summary plus a QR code of the
// subscription URL
func (h *SubscriberHandler) replyWithCredential(c telebot.Context, cred *models.VpnCredential) error {
	if err := h.sendTextMessage(c, helpers.FormatCredentialInfo(cred), h.createMainKeyboard()); err != nil {
		return err
	}
	if cred.EndpointURL != "" {
		return h.sendQRCode(c, cred.EndpointURL)
	}
	return nil
}

// provisionFailureText picks the user-facing message for a failed
// provisioning attempt. Only genuine panel outages blame the panel.
func provisionFailureText(err error) string {
	var unavailable *apperrors.UpstreamUnavailableError
	if errors.As(err, &unavailable) {
		return "The VPN panel is temporarily unavailable. Please try again in a few minutes."
	}
	return "Something went wrong. Please try again later."
}

// parseReferrer extracts the referrer account id from a /start payload.
// Self-referrals and garbage payloads are ignored.
func parseReferrer(msg *telebot.Message, selfID int64) (int64, bool) {
	if msg == nil || msg.Payload == "" {
		return 0, false
	}
	referrer, err := strconv.ParseInt(strings.TrimSpace(msg.Payload), 10, 64)
	if err != nil || referrer <= 0 || referrer == selfID {
		return 0, false
	}
	return referrer, true
}
