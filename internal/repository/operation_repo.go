package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"

	"github.com/banhbaoring/dns-broker/internal/models"
)

// OperationRepository stores the operation log backing last_operation
// polling and pipeline resumption. Create enforces that no instance ever
// has two operations in-progress at once.
type OperationRepository interface {
	Create(ctx context.Context, op *models.Operation) error
	GetByID(ctx context.Context, id int64) (*models.Operation, error)
	UpdateStepDescription(ctx context.Context, id int64, description string) error
	MarkSucceeded(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, description string) error
	// GetActiveByInstance returns the in-progress operation for instanceID,
	// or nil if none exists.
	GetActiveByInstance(ctx context.Context, instanceID string) (*models.Operation, error)
	// ListInProgress returns every operation still in-progress, used to
	// resume interrupted pipelines at startup.
	ListInProgress(ctx context.Context) ([]*models.Operation, error)
}

type operationRepo struct {
	pool *pgxpool.Pool
}

// NewOperationRepository creates a new operation repository.
func NewOperationRepository(pool *pgxpool.Pool) OperationRepository {
	return &operationRepo{pool: pool}
}

const operationColumns = `id, service_instance_id, action, state, step_description, correlation_id, created_at, updated_at`

// Create inserts a new in-progress operation for instanceID, failing with
// ErrActiveOperationExists if one is already in-progress. The existence
// check and insert run inside one transaction. When no in-progress row exists
// there is nothing to lock, so two concurrent requests can both pass the
// check; the partial unique index on in-progress operations then rejects the
// second insert, and that database error is returned as is.
func (r *operationRepo) Create(ctx context.Context, op *models.Operation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var activeID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM operations WHERE service_instance_id = $1 AND state = $2 LIMIT 1 FOR UPDATE`,
		op.ServiceInstanceID, models.OperationStateInProgress,
	).Scan(&activeID)
	if err == nil {
		return apierrors.ErrActiveOperationExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	query := `
		INSERT INTO operations (service_instance_id, action, state, step_description, correlation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	if err := tx.QueryRow(ctx, query,
		op.ServiceInstanceID, op.Action, op.State, op.StepDescription, op.CorrelationID,
	).Scan(&op.ID, &op.CreatedAt, &op.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *operationRepo) GetByID(ctx context.Context, id int64) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1`

	op, err := scanOperation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (r *operationRepo) UpdateStepDescription(ctx context.Context, id int64, description string) error {
	query := `UPDATE operations SET step_description = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.pool.Exec(ctx, query, description, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *operationRepo) MarkSucceeded(ctx context.Context, id int64) error {
	return r.setTerminalState(ctx, id, models.OperationStateSucceeded, "")
}

func (r *operationRepo) MarkFailed(ctx context.Context, id int64, description string) error {
	return r.setTerminalState(ctx, id, models.OperationStateFailed, description)
}

func (r *operationRepo) setTerminalState(ctx context.Context, id int64, state models.OperationState, description string) error {
	query := `
		UPDATE operations SET state = $1, step_description = COALESCE(NULLIF($2, ''), step_description), updated_at = NOW()
		WHERE id = $3`
	result, err := r.pool.Exec(ctx, query, state, description, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *operationRepo) GetActiveByInstance(ctx context.Context, instanceID string) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE service_instance_id = $1 AND state = $2 LIMIT 1`

	op, err := scanOperation(r.pool.QueryRow(ctx, query, instanceID, models.OperationStateInProgress))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (r *operationRepo) ListInProgress(ctx context.Context) ([]*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE state = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, models.OperationStateInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func scanOperation(row rowScanner) (*models.Operation, error) {
	var op models.Operation
	err := row.Scan(
		&op.ID,
		&op.ServiceInstanceID,
		&op.Action,
		&op.State,
		&op.StepDescription,
		&op.CorrelationID,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// Compile-time check to ensure operationRepo implements OperationRepository.
var _ OperationRepository = (*operationRepo)(nil)
