// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/hoaworks/metergate/domain/artifact"
	"github.com/hoaworks/metergate/domain/billing"
	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/domain/tier"
	"github.com/hoaworks/metergate/domain/usage"
)

// ErrNotFound is returned when an entity does not exist. A missing
// account is a client error; stores never create accounts implicitly.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated.
var ErrDuplicate = errors.New("already exists")

// ErrVersionConflict is returned when a conditional update lost a race
// against another writer. Callers retry the read-check-write sequence
// once before surfacing the failure.
var ErrVersionConflict = errors.New("version conflict")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// Account is the per-user billing record, keyed by email. CreditBalance
// must never go negative; UsageCounters are only meaningful together
// with ResetPeriodKey. Version is the optimistic concurrency token:
// every successful update increments it.
type Account struct {
	Email                string
	SubscriptionTier     tier.Tier
	SubscriptionStatus   tier.Status
	CreditBalance        int64
	UsageCounters        usage.Counters
	ResetPeriodKey       string
	VideosThisMonth      int64
	TotalVideosGenerated int64
	PaddleCustomerID     string
	PaddleSubscriptionID string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AccountStore persists account records. Update is the single
// serialization point for all mutations to a given account's balance
// and counters.
type AccountStore interface {
	// GetByKey retrieves an account by its stable key (email).
	GetByKey(ctx context.Context, key string) (Account, error)

	// Create stores a new account.
	Create(ctx context.Context, a Account) error

	// Update persists the account only if the stored Version still
	// equals expectedVersion, incrementing it on success. Returns
	// ErrVersionConflict when another writer got there first.
	Update(ctx context.Context, a Account, expectedVersion int64) (Account, error)

	// List returns accounts with pagination (admin tooling).
	List(ctx context.Context, limit, offset int) ([]Account, error)
}

// ArtifactStore persists generation records.
type ArtifactStore interface {
	// Create stores a new artifact.
	Create(ctx context.Context, a artifact.Artifact) error

	// Get retrieves an artifact by ID.
	Get(ctx context.Context, id string) (artifact.Artifact, error)

	// UpdateStatus moves an artifact along its lifecycle.
	UpdateStatus(ctx context.Context, id string, status artifact.Status, resultURL string, at time.Time) error

	// ListByAccount returns recent artifacts for an account.
	ListByAccount(ctx context.Context, accountKey string, limit int) ([]artifact.Artifact, error)
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// PaymentProvider interfaces with the payment processor (Paddle).
type PaymentProvider interface {
	// Name returns the provider name (e.g., "paddle").
	Name() string

	// ParseWebhook parses an incoming webhook payload into a
	// subscription event. Signature verification is the caller's
	// concern at the HTTP edge.
	ParseWebhook(payload []byte) (billing.SubscriptionEvent, error)
}

// Renderer executes the opaque generation action (letter text, video).
// The usage gate treats it as a black box invoked only after quota
// approval; calls carry a bounded timeout and fail with a typed error.
type Renderer interface {
	// Render produces the artifact content and returns its URL.
	Render(ctx context.Context, feature quota.Feature, params string) (resultURL string, err error)
}
