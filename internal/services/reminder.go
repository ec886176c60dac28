package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"xui-sub-backend/internal/constants"
	"xui-sub-backend/internal/models"
)

// ReminderStore is the slice of the credential store the sweeper needs
type ReminderStore interface {
	ListExpiredForReminder(ctx context.Context, now time.Time) ([]*models.ReminderCandidate, error)
	AdvanceNotificationStep(ctx context.Context, credentialID int64, step int) error
	SetCredentialStatus(ctx context.Context, credentialID int64, status models.CredentialStatus) error
}

// Notifier sends a text message to a Telegram account. Delivery is
// best-effort; failures are absorbed by the sweeper.
type Notifier interface {
	SendMessage(accountID int64, text string) error
}

// Reminder advances expired, un-notified credentials through the fixed
// three-step notification sequence, at most one step per sweep per
// credential. The step is persisted even when delivery fails so the state
// machine cannot get stuck on a user who blocked the bot.
type Reminder struct {
	store    ReminderStore
	notifier Notifier
	clock    Clock
	logger   *logrus.Logger
}

// NewReminder creates a new reminder sweeper
func NewReminder(store ReminderStore, notifier Notifier, clock Clock, logger *logrus.Logger) *Reminder {
	return &Reminder{
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Start runs one sweep shortly after startup and then one every hour until
// the context is cancelled
func (r *Reminder) Start(ctx context.Context) {
	startDelay := time.NewTimer(constants.SweepStartDelay * time.Minute)
	defer startDelay.Stop()

	select {
	case <-startDelay.C:
		r.sweepAndLog(ctx)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(constants.SweepInterval * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepAndLog(ctx)
		case <-ctx.Done():
			r.logger.Info("Reminder sweeper stopped")
			return
		}
	}
}

func (r *Reminder) sweepAndLog(ctx context.Context) {
	if err := r.Sweep(ctx, r.clock.Now()); err != nil {
		r.logger.Errorf("Reminder sweep failed: %v", err)
	}
}

// Sweep runs one full pass over expired credentials at the given instant
func (r *Reminder) Sweep(ctx context.Context, now time.Time) error {
	candidates, err := r.store.ListExpiredForReminder(ctx, now)
	if err != nil {
		return err
	}

	for _, cand := range candidates {
		// Non-expiring or not yet expired credentials are out of scope
		if cand.ExpiryTime == 0 || !time.UnixMilli(cand.ExpiryTime).Before(now) {
			continue
		}

		elapsed := now.Sub(time.UnixMilli(cand.ExpiryTime))
		next, message := nextReminderStep(cand.NotificationStep, elapsed)
		if next == 0 {
			continue
		}

		// The first reminder also moves the record out of active
		if cand.NotificationStep == 0 && cand.Status == models.StatusActive {
			if err := r.store.SetCredentialStatus(ctx, cand.ID, models.StatusExpired); err != nil {
				r.logger.Errorf("Failed to expire credential %d: %v", cand.ID, err)
				continue
			}
		}

		if err := r.notifier.SendMessage(cand.AccountID, message); err != nil {
			r.logger.Warnf("Reminder delivery failed for account %d (step %d): %v", cand.AccountID, next, err)
		}

		if err := r.store.AdvanceNotificationStep(ctx, cand.ID, next); err != nil {
			r.logger.Errorf("Failed to advance notification step for credential %d: %v", cand.ID, err)
			continue
		}

		r.logger.Infof("Sent reminder step %d to account %d for credential %d", next, cand.AccountID, cand.ID)
	}

	return nil
}

// nextReminderStep returns the step to advance to and the message to send,
// or 0 when no transition is due
func nextReminderStep(step int, elapsed time.Duration) (int, string) {
	switch step {
	case 0:
		return 1, msgAccessRestricted
	case 1:
		if elapsed >= constants.SecondReminderAfter*time.Hour {
			return 2, msgMissingOut
		}
	case 2:
		if elapsed >= constants.FinalReminderAfter*time.Hour {
			return constants.MaxNotificationStep, msgFinalReminder
		}
	}
	return 0, ""
}

const (
	msgAccessRestricted = "Your VPN access has expired and is now restricted. Renew your subscription to reconnect."
	msgMissingOut       = "You've been missing out on your VPN for two days now. Renew any time to get back online."
	msgFinalReminder    = "Final reminder: your VPN subscription expired five days ago. This is the last message we'll send about it."
)
