package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"xui-sub-backend/internal/constants"
	"xui-sub-backend/internal/models"
)

// ProvisionStore is the slice of the credential store the provisioner needs
type ProvisionStore interface {
	UpsertUser(ctx context.Context, identity models.Identity) (*models.User, error)
	FindActiveCredential(ctx context.Context, userID int64) (*models.VpnCredential, error)
	CreateCredential(ctx context.Context, cred *models.VpnCredential) (*models.VpnCredential, error)
}

// PanelAPI provisions clients on the upstream VPN panel
type PanelAPI interface {
	CreateClient(ctx context.Context, accountID int64, duration time.Duration) (*models.ProvisionResult, error)
}

// Provisioner decides whether a user already has a VPN credential and
// provisions exactly one new credential otherwise. Provisioning is
// serialized per account id so concurrent duplicate requests cannot both
// observe "no credential" and create two.
type Provisioner struct {
	store     ProvisionStore
	panel     PanelAPI
	inboundID int
	fallback  bool
	logger    *logrus.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewProvisioner creates a new provisioner. fallback selects the policy for
// upstream failure: surface the error (false) or create a local-only
// credential record (true).
func NewProvisioner(store ProvisionStore, panel PanelAPI, inboundID int, fallback bool, logger *logrus.Logger) *Provisioner {
	return &Provisioner{
		store:     store,
		panel:     panel,
		inboundID: inboundID,
		fallback:  fallback,
		logger:    logger,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// EnsureCredential returns the user's existing active credential or
// provisions a trial one. Repeated calls for a user who already has an
// active credential never create a second one and never contact the panel.
func (p *Provisioner) EnsureCredential(ctx context.Context, identity models.Identity) (*models.VpnCredential, error) {
	return p.ensure(ctx, identity, constants.TrialDurationHours*time.Hour)
}

// Renew provisions a credential with the caller-supplied paid duration.
// If an active credential already exists it is returned unchanged.
func (p *Provisioner) Renew(ctx context.Context, identity models.Identity, duration time.Duration) (*models.VpnCredential, error) {
	return p.ensure(ctx, identity, duration)
}

func (p *Provisioner) ensure(ctx context.Context, identity models.Identity, duration time.Duration) (*models.VpnCredential, error) {
	user, err := p.store.UpsertUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	lock := p.accountLock(identity.AccountID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := p.store.FindActiveCredential(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		p.logger.Debugf("Account %d already has active credential %s", identity.AccountID, existing.UUID)
		return existing, nil
	}

	result, err := p.panel.CreateClient(ctx, identity.AccountID, duration)
	if err != nil {
		if !p.fallback {
			p.logger.Errorf("Provisioning failed for account %d: %v", identity.AccountID, err)
			return nil, err
		}
		p.logger.Warnf("Provisioning failed for account %d, creating local-only credential: %v", identity.AccountID, err)
		return p.createLocalCredential(ctx, user, duration)
	}

	cred, err := p.store.CreateCredential(ctx, &models.VpnCredential{
		UserID:      user.ID,
		UUID:        result.CredentialID,
		Email:       result.Email,
		SubID:       result.SubID,
		UpstreamRef: result.CredentialID,
		InboundID:   p.inboundID,
		Status:      models.StatusActive,
		ExpiryTime:  result.ExpiryTime,
		EndpointURL: result.EndpointURL,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Infof("Provisioned credential %s for account %d, expires %s",
		cred.UUID, identity.AccountID, time.UnixMilli(cred.ExpiryTime).Format(constants.TimestampFormat))
	return cred, nil
}

// createLocalCredential records a credential with no endpoint URL and no
// upstream reference so a later reconciliation pass can retry provisioning
func (p *Provisioner) createLocalCredential(ctx context.Context, user *models.User, duration time.Duration) (*models.VpnCredential, error) {
	now := time.Now()
	return p.store.CreateCredential(ctx, &models.VpnCredential{
		UserID:     user.ID,
		UUID:       uuid.NewString(),
		Email:      "",
		InboundID:  p.inboundID,
		Status:     models.StatusActive,
		ExpiryTime: now.Add(duration).UnixMilli(),
	})
}

// accountLock returns the mutex for the given account id. Entries are never
// evicted; the map grows by one small entry per distinct user.
func (p *Provisioner) accountLock(accountID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[accountID] = lock
	}
	return lock
}
