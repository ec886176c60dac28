package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xui-sub-backend/internal/models"
)

type fakeReminderStore struct {
	candidates []*models.ReminderCandidate
}

func (s *fakeReminderStore) ListExpiredForReminder(_ context.Context, now time.Time) ([]*models.ReminderCandidate, error) {
	var out []*models.ReminderCandidate
	for _, cand := range s.candidates {
		if cand.ExpiryTime != 0 && cand.ExpiryTime < now.UnixMilli() && cand.NotificationStep < 3 {
			out = append(out, cand)
		}
	}
	return out, nil
}

func (s *fakeReminderStore) AdvanceNotificationStep(_ context.Context, credentialID int64, step int) error {
	for _, cand := range s.candidates {
		if cand.ID == credentialID {
			cand.NotificationStep = step
		}
	}
	return nil
}

func (s *fakeReminderStore) SetCredentialStatus(_ context.Context, credentialID int64, status models.CredentialStatus) error {
	for _, cand := range s.candidates {
		if cand.ID == credentialID {
			cand.Status = status
		}
	}
	return nil
}

type sentMessage struct {
	accountID int64
	text      string
}

type fakeNotifier struct {
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) SendMessage(accountID int64, text string) error {
	n.sent = append(n.sent, sentMessage{accountID: accountID, text: text})
	return n.err
}

func expiredCandidate(id int64, step int, expiredFor time.Duration, now time.Time) *models.ReminderCandidate {
	return &models.ReminderCandidate{
		VpnCredential: models.VpnCredential{
			ID:               id,
			UserID:           id,
			UUID:             "cred",
			Status:           models.StatusActive,
			ExpiryTime:       now.Add(-expiredFor).UnixMilli(),
			NotificationStep: step,
		},
		AccountID: 1000 + id,
	}
}

func TestSweepSendsFirstReminderAndExpires(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{candidates: []*models.ReminderCandidate{
		// Long past expiry, but still only one step may be taken per sweep
		expiredCandidate(1, 0, 10*24*time.Hour, now),
	}}
	notifier := &fakeNotifier{}
	r := NewReminder(store, notifier, SystemClock(), testLogger())

	require.NoError(t, r.Sweep(context.Background(), now))

	assert.Equal(t, 1, store.candidates[0].NotificationStep)
	assert.Equal(t, models.StatusExpired, store.candidates[0].Status)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, int64(1001), notifier.sent[0].accountID)
	assert.Contains(t, notifier.sent[0].text, "expired")
}

func TestSweepSecondReminderThreshold(t *testing.T) {
	now := time.Now()

	// One day past expiry: the two-day threshold is not met
	store := &fakeReminderStore{candidates: []*models.ReminderCandidate{
		expiredCandidate(1, 1, 24*time.Hour, now),
	}}
	notifier := &fakeNotifier{}
	r := NewReminder(store, notifier, SystemClock(), testLogger())

	require.NoError(t, r.Sweep(context.Background(), now))
	assert.Equal(t, 1, store.candidates[0].NotificationStep)
	assert.Empty(t, notifier.sent)

	// Three days past expiry: advance to step 2 exactly once
	store.candidates[0].ExpiryTime = now.Add(-3 * 24 * time.Hour).UnixMilli()
	require.NoError(t, r.Sweep(context.Background(), now))
	assert.Equal(t, 2, store.candidates[0].NotificationStep)
	require.Len(t, notifier.sent, 1)

	// An immediate second sweep must not advance again
	require.NoError(t, r.Sweep(context.Background(), now))
	assert.Equal(t, 2, store.candidates[0].NotificationStep)
	assert.Len(t, notifier.sent, 1)
}

func TestSweepFinalReminderStopsSequence(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{candidates: []*models.ReminderCandidate{
		expiredCandidate(1, 2, 6*24*time.Hour, now),
	}}
	notifier := &fakeNotifier{}
	r := NewReminder(store, notifier, SystemClock(), testLogger())

	require.NoError(t, r.Sweep(context.Background(), now))
	assert.Equal(t, 3, store.candidates[0].NotificationStep)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].text, "Final reminder")

	// Step 3 credentials get no further messages
	require.NoError(t, r.Sweep(context.Background(), now))
	assert.Len(t, notifier.sent, 1)
}

func TestSweepAdvancesStepOnDeliveryFailure(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{candidates: []*models.ReminderCandidate{
		expiredCandidate(1, 0, time.Hour, now),
	}}
	notifier := &fakeNotifier{err: errors.New("bot was blocked by the user")}
	r := NewReminder(store, notifier, SystemClock(), testLogger())

	require.NoError(t, r.Sweep(context.Background(), now))

	assert.Equal(t, 1, store.candidates[0].NotificationStep, "delivery failure must not block the state transition")
}

func TestSweepSkipsFutureAndNonExpiring(t *testing.T) {
	now := time.Now()
	future := expiredCandidate(1, 0, time.Hour, now)
	future.ExpiryTime = now.Add(time.Hour).UnixMilli()
	forever := expiredCandidate(2, 0, time.Hour, now)
	forever.ExpiryTime = 0

	store := &fakeReminderStore{candidates: []*models.ReminderCandidate{future, forever}}
	notifier := &fakeNotifier{}
	r := NewReminder(store, notifier, SystemClock(), testLogger())

	require.NoError(t, r.Sweep(context.Background(), now))

	assert.Equal(t, 0, future.NotificationStep)
	assert.Equal(t, 0, forever.NotificationStep)
	assert.Empty(t, notifier.sent)
}
