package handlers

import (
	"bytes"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"xui-sub-backend/internal/commands"
	"xui-sub-backend/internal/config"
	"xui-sub-backend/internal/models"
	"xui-sub-backend/internal/services"
)

// BaseHandler provides common functionality for bot handlers
type BaseHandler struct {
	provisioner *services.Provisioner
	store       SubscriberStore
	qrService   *services.QRService
	config      *config.Config
	logger      *logrus.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(
	provisioner *services.Provisioner,
	store SubscriberStore,
	qrService *services.QRService,
	config *config.Config,
	logger *logrus.Logger,
) BaseHandler {
	return BaseHandler{
		provisioner: provisioner,
		store:       store,
		qrService:   qrService,
		config:      config,
		logger:      logger,
	}
}

// identityOf builds the verified identity from the message sender
func (h *BaseHandler) identityOf(c telebot.Context) models.Identity {
	sender := c.Sender()
	return models.Identity{
		AccountID: sender.ID,
		Name:      sender.FirstName,
		Handle:    sender.Username,
	}
}

// sendTextMessage sends a text message with optional markup
func (h *BaseHandler) sendTextMessage(c telebot.Context, text string, markup *telebot.ReplyMarkup) error {
	opts := &telebot.SendOptions{
		ParseMode: telebot.ModeHTML,
	}

	if markup != nil {
		opts.ReplyMarkup = markup
	}

	_, err := c.Bot().Send(c.Recipient(), text, opts)
	if err != nil {
		h.logger.Errorf("Failed to send message: %v", err)
	}
	return err
}

// sendQRCode sends a QR code for the given URL
func (h *BaseHandler) sendQRCode(c telebot.Context, url string) error {
	qrBytes, err := h.qrService.GenerateQR(url)
	if err != nil {
		h.logger.Errorf("Failed to generate QR code: %v", err)
		return err
	}

	reader := bytes.NewReader(qrBytes)
	photo := &telebot.Photo{File: telebot.FromReader(reader)}

	_, err = c.Bot().Send(c.Recipient(), photo)
	if err != nil {
		h.logger.Errorf("Failed to send QR code: %v", err)
	}
	return err
}

// createMainKeyboard creates the main subscriber keyboard
func (h *BaseHandler) createMainKeyboard() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard: true,
	}

	markup.Reply(
		telebot.Row{
			telebot.Btn{Text: commands.GetAccess},
			telebot.Btn{Text: commands.MySubscription},
		},
		telebot.Row{
			telebot.Btn{Text: commands.Renew},
			telebot.Btn{Text: commands.InviteFriends},
		},
		telebot.Row{
			telebot.Btn{Text: commands.Help},
		},
	)

	return markup
}
