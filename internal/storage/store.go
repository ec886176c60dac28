package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"xui-sub-backend/internal/constants"
	apperrors "xui-sub-backend/internal/errors"
	"xui-sub-backend/internal/models"
)

// Store is the durable credential store backed by SQLite
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// New opens the SQLite database at the given path
func New(path string, logger *logrus.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// SQLite allows a single writer; one pooled connection avoids
	// SQLITE_BUSY under concurrent provisioning
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", path, err)
	}

	logger.Infof("Opened SQLite database at %s", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func storeErr(op string, err error) error {
	return &apperrors.StorageError{Operation: op, Err: err}
}

// FindUser returns the user with the given Telegram account id, or nil
func (s *Store) FindUser(ctx context.Context, accountID int64) (*models.User, error) {
	user, err := s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, tg_id, username, first_name, balance, referred_by, created_at, updated_at
		 FROM users WHERE tg_id = ?`, accountID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeErr("find user", err)
	}
	return user, nil
}

// UpsertUser creates the user on first contact and refreshes the display
// name and handle on every subsequent one. Balance and referrer are never
// touched here. The write is a single atomic statement so concurrent
// first-contact requests for the same account cannot race each other.
func (s *Store) UpsertUser(ctx context.Context, identity models.Identity) (*models.User, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (tg_id, username, first_name, balance, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?)
		 ON CONFLICT(tg_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   updated_at = excluded.updated_at`,
		identity.AccountID, identity.Handle, identity.Name, now, now)
	if err != nil {
		return nil, storeErr("upsert user", err)
	}

	return s.FindUser(ctx, identity.AccountID)
}

// SetReferrerOnce records the referrer for a user, but only if no referrer
// has been recorded before. Returns true when the referrer was written.
func (s *Store) SetReferrerOnce(ctx context.Context, accountID, referrerAccountID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET referred_by = ? WHERE tg_id = ? AND referred_by IS NULL`,
		referrerAccountID, accountID)
	if err != nil {
		return false, storeErr("set referrer", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("set referrer", err)
	}
	return affected > 0, nil
}

// ReferralCount returns how many users were referred by the given account
func (s *Store) ReferralCount(ctx context.Context, accountID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE referred_by = ?`, accountID).Scan(&count)
	if err != nil {
		return 0, storeErr("count referrals", err)
	}
	return count, nil
}

// FindActiveCredential returns the most recently created active credential
// for the user, or nil
func (s *Store) FindActiveCredential(ctx context.Context, userID int64) (*models.VpnCredential, error) {
	cred, err := s.scanCredential(s.db.QueryRowContext(ctx,
		credentialColumns+` WHERE user_id = ? AND status = ? ORDER BY id DESC LIMIT 1`,
		userID, models.StatusActive))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeErr("find active credential", err)
	}
	return cred, nil
}

// LatestCredential returns the most recently created credential for the
// user regardless of status, or nil
func (s *Store) LatestCredential(ctx context.Context, userID int64) (*models.VpnCredential, error) {
	cred, err := s.scanCredential(s.db.QueryRowContext(ctx,
		credentialColumns+` WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeErr("find latest credential", err)
	}
	return cred, nil
}

// CreateCredential inserts the credential and returns the stored row.
// The caller is responsible for having checked for an existing active
// credential first.
func (s *Store) CreateCredential(ctx context.Context, cred *models.VpnCredential) (*models.VpnCredential, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vpn_clients
		 (user_id, uuid, email, sub_id, xui_client_id, inbound_id, status,
		  upload, download, total_traffic, expiry_time, config_url, notification_step,
		  created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?, 0, ?, ?)`,
		cred.UserID, cred.UUID, cred.Email, nullString(cred.SubID), nullString(cred.UpstreamRef),
		cred.InboundID, cred.Status, cred.ExpiryTime, nullString(cred.EndpointURL), now, now)
	if err != nil {
		return nil, storeErr("create credential", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, storeErr("create credential", err)
	}

	stored, err := s.scanCredential(s.db.QueryRowContext(ctx, credentialColumns+` WHERE id = ?`, id))
	if err != nil {
		return nil, storeErr("create credential", err)
	}
	return stored, nil
}

// AdvanceNotificationStep sets the notification step; the caller guarantees
// monotonic increase
func (s *Store) AdvanceNotificationStep(ctx context.Context, credentialID int64, step int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vpn_clients SET notification_step = ?, updated_at = ? WHERE id = ?`,
		step, time.Now(), credentialID)
	if err != nil {
		return storeErr("advance notification step", err)
	}
	return nil
}

// SetCredentialStatus updates the provisioning status
func (s *Store) SetCredentialStatus(ctx context.Context, credentialID int64, status models.CredentialStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vpn_clients SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), credentialID)
	if err != nil {
		return storeErr("set credential status", err)
	}
	return nil
}

// UpdateTraffic refreshes the traffic counters of a credential
func (s *Store) UpdateTraffic(ctx context.Context, credentialID int64, upload, download int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vpn_clients
		 SET upload = MAX(upload, ?), download = MAX(download, ?),
		     total_traffic = MAX(total_traffic, ?), updated_at = ?
		 WHERE id = ?`,
		upload, download, upload+download, time.Now(), credentialID)
	if err != nil {
		return storeErr("update traffic", err)
	}
	return nil
}

// ListExpiredForReminder returns credentials whose expiry is set, in the
// past, and that still have reminder steps left, joined with the owning
// user's Telegram account id
func (s *Store) ListExpiredForReminder(ctx context.Context, now time.Time) ([]*models.ReminderCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.user_id, c.uuid, c.email, c.sub_id, c.xui_client_id, c.inbound_id,
		        c.status, c.upload, c.download, c.total_traffic, c.expiry_time, c.config_url,
		        c.notification_step, c.created_at, c.updated_at, u.tg_id
		 FROM vpn_clients c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.expiry_time != 0 AND c.expiry_time < ? AND c.notification_step < ?`,
		now.UnixMilli(), constants.MaxNotificationStep)
	if err != nil {
		return nil, storeErr("list expired credentials", err)
	}
	defer rows.Close()

	var candidates []*models.ReminderCandidate
	for rows.Next() {
		cand := &models.ReminderCandidate{}
		var subID, upstreamRef, endpoint sql.NullString
		err := rows.Scan(
			&cand.ID, &cand.UserID, &cand.UUID, &cand.Email, &subID, &upstreamRef,
			&cand.InboundID, &cand.Status, &cand.Upload, &cand.Download, &cand.TotalTraffic,
			&cand.ExpiryTime, &endpoint, &cand.NotificationStep,
			&cand.CreatedAt, &cand.UpdatedAt, &cand.AccountID,
		)
		if err != nil {
			return nil, storeErr("scan expired credential", err)
		}
		cand.SubID = subID.String
		cand.UpstreamRef = upstreamRef.String
		cand.EndpointURL = endpoint.String
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list expired credentials", err)
	}
	return candidates, nil
}

const credentialColumns = `SELECT id, user_id, uuid, email, sub_id, xui_client_id, inbound_id,
	status, upload, download, total_traffic, expiry_time, config_url,
	notification_step, created_at, updated_at FROM vpn_clients`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var referredBy sql.NullInt64
	err := row.Scan(&user.ID, &user.AccountID, &user.Handle, &user.Name,
		&user.Balance, &referredBy, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if referredBy.Valid {
		user.ReferredBy = &referredBy.Int64
	}
	return user, nil
}

func (s *Store) scanCredential(row rowScanner) (*models.VpnCredential, error) {
	cred := &models.VpnCredential{}
	var subID, upstreamRef, endpoint sql.NullString
	err := row.Scan(&cred.ID, &cred.UserID, &cred.UUID, &cred.Email, &subID, &upstreamRef,
		&cred.InboundID, &cred.Status, &cred.Upload, &cred.Download, &cred.TotalTraffic,
		&cred.ExpiryTime, &endpoint, &cred.NotificationStep, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cred.SubID = subID.String
	cred.UpstreamRef = upstreamRef.String
	cred.EndpointURL = endpoint.String
	return cred, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
