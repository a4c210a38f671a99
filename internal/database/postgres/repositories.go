package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DevFeeAssignmentRepository persists dev-fee draw history. It
// satisfies devfee.Recorder without importing internal/devfee, keeping
// this package free of a dependency on the mining-domain package it
// serves.
type DevFeeAssignmentRepository struct {
	db *sql.DB
}

// NewDevFeeAssignmentRepository creates a repository over client's pool.
func NewDevFeeAssignmentRepository(client *Client) *DevFeeAssignmentRepository {
	return &DevFeeAssignmentRepository{db: client.db}
}

// RecordAssignment inserts one dev-fee draw into the audit history.
func (r *DevFeeAssignmentRepository) RecordAssignment(ctx context.Context, address, challengeID string) error {
	query := `
		INSERT INTO devfee_assignments (address, challenge_id, assigned_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, address, challengeID, time.Now()); err != nil {
		return fmt.Errorf("failed to record dev-fee assignment: %w", err)
	}
	return nil
}

// HasAssignment reports whether address was already drawn for
// challengeID, letting a restarted process reconstruct the collision
// history the in-memory skip cache would otherwise have lost.
func (r *DevFeeAssignmentRepository) HasAssignment(ctx context.Context, address, challengeID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM devfee_assignments WHERE address = $1 AND challenge_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, address, challengeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check dev-fee assignment: %w", err)
	}
	return exists, nil
}
