package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/dbx"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
)

const claimColumns = `id, item_id, borrower_id, created_at, resolved_at, outcome`

// PostgresRepository implements claim storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(row scanner) (*models.Claim, error) {
	var (
		c        models.Claim
		resolved sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.ItemID, &c.BorrowerID, &c.CreatedAt, &resolved, &c.Outcome); err != nil {
		return nil, err
	}
	if resolved.Valid {
		c.ResolvedAt = &resolved.Time
	}
	return &c, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidInput(err) {
		return common.ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, claim *models.Claim) (*models.Claim, error) {
	query := `
		INSERT INTO claims (item_id, borrower_id)
		VALUES ($1, $2)
		RETURNING ` + claimColumns

	created, err := scanClaim(r.db.QueryRowContext(ctx, query, claim.ItemID, claim.BorrowerID))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrVersionConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`

	c, err := scanClaim(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return c, nil
}

func (r *PostgresRepository) GetActiveByItem(ctx context.Context, itemID string) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE item_id = $1 AND outcome = 'active'`

	c, err := scanClaim(r.db.QueryRowContext(ctx, query, itemID))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return c, nil
}

func (r *PostgresRepository) Close(ctx context.Context, id string, outcome models.ClaimOutcome, resolvedAt time.Time) (*models.Claim, error) {
	if outcome == models.OutcomeActive {
		return nil, common.ErrInvalidTransition
	}

	query := `
		UPDATE claims SET outcome = $2, resolved_at = $3
		WHERE id = $1 AND outcome = 'active'
		RETURNING ` + claimColumns

	c, err := scanClaim(r.db.QueryRowContext(ctx, query, id, string(outcome), resolvedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrVersionConflict
		}
		return nil, notFoundOr(err)
	}
	return c, nil
}

func (r *PostgresRepository) ListByBorrower(ctx context.Context, borrowerID string) ([]*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE borrower_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select claims: %w", err)
	}
	defer rows.Close()

	var result []*models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
