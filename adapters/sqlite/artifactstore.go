package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hoaworks/metergate/domain/artifact"
	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/ports"
)

// ArtifactStore implements ports.ArtifactStore using SQLite.
type ArtifactStore struct {
	db *DB
}

// NewArtifactStore creates a new SQLite artifact store.
func NewArtifactStore(db *DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// Create stores a new artifact.
func (s *ArtifactStore) Create(ctx context.Context, a artifact.Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, account_key, feature, status, params,
			result_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.AccountKey, string(a.Feature), string(a.Status), a.Params,
		a.ResultURL, a.CreatedAt, a.UpdatedAt)

	if err != nil && isUniqueConstraintError(err) {
		return ports.ErrDuplicate
	}
	return err
}

// Get retrieves an artifact by ID.
func (s *ArtifactStore) Get(ctx context.Context, id string) (artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_key, feature, status, params, result_url,
		       created_at, updated_at
		FROM artifacts
		WHERE id = ?
	`, id)
	return scanArtifact(row)
}

// UpdateStatus moves an artifact along its lifecycle. The legal
// source states are part of the WHERE clause so an illegal transition
// affects zero rows.
func (s *ArtifactStore) UpdateStatus(ctx context.Context, id string, status artifact.Status, resultURL string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE artifacts
		SET status = ?,
		    result_url = CASE WHEN ? != '' THEN ? ELSE result_url END,
		    updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, string(status), resultURL, resultURL, at, id,
		string(artifact.StatusPending), string(artifact.StatusProcessing))
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ports.ErrVersionConflict
	}
	return nil
}

// ListByAccount returns recent artifacts for an account, newest first.
func (s *ArtifactStore) ListByAccount(ctx context.Context, accountKey string, limit int) ([]artifact.Artifact, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_key, feature, status, params, result_url,
		       created_at, updated_at
		FROM artifacts
		WHERE account_key = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, accountKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []artifact.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArtifact(row scanner) (artifact.Artifact, error) {
	var a artifact.Artifact
	var feature, status string

	err := row.Scan(&a.ID, &a.AccountKey, &feature, &status, &a.Params,
		&a.ResultURL, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.Artifact{}, ports.ErrNotFound
	}
	if err != nil {
		return artifact.Artifact{}, err
	}

	a.Feature = quota.Feature(feature)
	a.Status = artifact.Status(status)
	return a, nil
}

// Ensure interface compliance.
var _ ports.ArtifactStore = (*ArtifactStore)(nil)
