package telegrambot

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"xui-sub-backend/internal/config"
	apperrors "xui-sub-backend/internal/errors"
	"xui-sub-backend/internal/handlers"
)

// Bot represents the subscriber-facing Telegram bot. It also serves as the
// outbound Notifier for the reminder sweeper.
type Bot struct {
	bot     *telebot.Bot
	config  *config.Config
	handler *handlers.SubscriberHandler
	logger  *logrus.Logger
}

// NewBot creates a new Telegram bot
func NewBot(
	cfg *config.Config,
	handler *handlers.SubscriberHandler,
	logger *logrus.Logger,
) (*Bot, error) {
	settings := telebot.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			logger.Errorf("Telegram bot error: %v", err)
			if c != nil {
				c.Send("An error occurred. Please try again later.")
			}
		},
	}

	b, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	bot := &Bot{
		bot:     b,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}

	bot.setupMiddleware()

	return bot, nil
}

// Start starts the bot and blocks until the context is cancelled
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting Telegram bot")

	go func() {
		<-ctx.Done()
		b.logger.Info("Stopping Telegram bot")
		b.bot.Stop()
	}()

	b.bot.Start()
	return nil
}

// SendMessage sends a plain text message to the given Telegram account.
// Used by the reminder sweeper; failures are reported as DeliveryError.
func (b *Bot) SendMessage(accountID int64, text string) error {
	_, err := b.bot.Send(&telebot.User{ID: accountID}, text)
	if err != nil {
		return &apperrors.DeliveryError{AccountID: accountID, Err: err}
	}
	return nil
}

// setupMiddleware sets up the bot middleware
func (b *Bot) setupMiddleware() {
	b.bot.Use(func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			b.logger.Infof("Received message from %d: %s", c.Sender().ID, c.Text())
			return next(c)
		}
	})

	b.bot.Handle(telebot.OnText, b.handleUpdate)
	b.bot.Handle(telebot.OnCallback, b.handleUpdate)
	b.bot.Handle("/start", b.handleUpdate)
}

// handleUpdate handles an update from Telegram
func (b *Bot) handleUpdate(c telebot.Context) error {
	ctx := context.Background()
	return b.handler.Handle(ctx, c)
}
