package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hoaworks/metergate/domain/tier"
	"github.com/hoaworks/metergate/domain/usage"
	"github.com/hoaworks/metergate/ports"
)

// AccountStore implements ports.AccountStore using SQLite. The version
// column carries the optimistic concurrency token: Update only writes
// rows whose stored version matches the caller's expectation, which
// makes every balance and counter mutation a single conditional
// statement rather than an unguarded read-modify-write pair.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates a new SQLite account store.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// GetByKey retrieves an account by email.
func (s *AccountStore) GetByKey(ctx context.Context, key string) (ports.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT email, subscription_tier, subscription_status, credit_balance,
		       usage_counters, reset_period_key, videos_this_month,
		       total_videos_generated, paddle_customer_id, paddle_subscription_id,
		       version, created_at, updated_at
		FROM accounts
		WHERE email = ?
	`, key)
	return scanAccount(row)
}

// Create stores a new account.
func (s *AccountStore) Create(ctx context.Context, a ports.Account) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	if a.Version == 0 {
		a.Version = 1
	}

	counters, err := encodeCounters(a.UsageCounters)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (email, subscription_tier, subscription_status,
			credit_balance, usage_counters, reset_period_key, videos_this_month,
			total_videos_generated, paddle_customer_id, paddle_subscription_id,
			version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Email, string(a.SubscriptionTier), string(a.SubscriptionStatus),
		a.CreditBalance, counters, a.ResetPeriodKey, a.VideosThisMonth,
		a.TotalVideosGenerated, nullString(a.PaddleCustomerID),
		nullString(a.PaddleSubscriptionID), a.Version, a.CreatedAt, a.UpdatedAt)

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Update conditionally persists the account. The WHERE clause carries
// the expected version; zero affected rows means either the account
// vanished or another writer bumped the version first.
func (s *AccountStore) Update(ctx context.Context, a ports.Account, expectedVersion int64) (ports.Account, error) {
	counters, err := encodeCounters(a.UsageCounters)
	if err != nil {
		return ports.Account{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET subscription_tier = ?, subscription_status = ?, credit_balance = ?,
		    usage_counters = ?, reset_period_key = ?, videos_this_month = ?,
		    total_videos_generated = ?, paddle_customer_id = ?,
		    paddle_subscription_id = ?, version = version + 1, updated_at = ?
		WHERE email = ? AND version = ?
	`, string(a.SubscriptionTier), string(a.SubscriptionStatus), a.CreditBalance,
		counters, a.ResetPeriodKey, a.VideosThisMonth, a.TotalVideosGenerated,
		nullString(a.PaddleCustomerID), nullString(a.PaddleSubscriptionID),
		a.UpdatedAt, a.Email, expectedVersion)
	if err != nil {
		return ports.Account{}, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ports.Account{}, err
	}
	if rows == 0 {
		// Distinguish a missing row from a lost race.
		if _, getErr := s.GetByKey(ctx, a.Email); getErr != nil {
			return ports.Account{}, getErr
		}
		return ports.Account{}, ports.ErrVersionConflict
	}

	a.Version = expectedVersion + 1
	return a, nil
}

// List returns accounts ordered by email with pagination.
func (s *AccountStore) List(ctx context.Context, limit, offset int) ([]ports.Account, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT email, subscription_tier, subscription_status, credit_balance,
		       usage_counters, reset_period_key, videos_this_month,
		       total_videos_generated, paddle_customer_id, paddle_subscription_id,
		       version, created_at, updated_at
		FROM accounts
		ORDER BY email
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (ports.Account, error) {
	var a ports.Account
	var tierStr, statusStr, countersJSON string
	var paddleCustomer, paddleSub sql.NullString

	err := row.Scan(
		&a.Email, &tierStr, &statusStr, &a.CreditBalance,
		&countersJSON, &a.ResetPeriodKey, &a.VideosThisMonth,
		&a.TotalVideosGenerated, &paddleCustomer, &paddleSub,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Account{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.Account{}, err
	}

	a.SubscriptionTier = tier.Tier(tierStr)
	a.SubscriptionStatus = tier.Status(statusStr)
	a.PaddleCustomerID = paddleCustomer.String
	a.PaddleSubscriptionID = paddleSub.String

	a.UsageCounters, err = decodeCounters(countersJSON)
	if err != nil {
		return ports.Account{}, fmt.Errorf("decode usage counters for %q: %w", a.Email, err)
	}
	return a, nil
}

func encodeCounters(c usage.Counters) (string, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode usage counters: %w", err)
	}
	return string(b), nil
}

func decodeCounters(s string) (usage.Counters, error) {
	if s == "" {
		return usage.Counters{}, nil
	}
	var c usage.Counters
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, err
	}
	if c == nil {
		c = usage.Counters{}
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Ensure interface compliance.
var _ ports.AccountStore = (*AccountStore)(nil)
