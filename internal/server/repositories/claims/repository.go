// Package claims stores borrow episodes.
package claims

import (
	"context"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/server/models"
)

type Repository interface {
	// Create opens an active claim. A second active claim on the same item
	// fails with common.ErrVersionConflict.
	Create(ctx context.Context, claim *models.Claim) (*models.Claim, error)

	Get(ctx context.Context, id string) (*models.Claim, error)

	// GetActiveByItem returns common.ErrNotFound when the item is free.
	GetActiveByItem(ctx context.Context, itemID string) (*models.Claim, error)

	// Close resolves an active claim with outcome at resolvedAt. Closing a
	// claim that is no longer active fails with common.ErrVersionConflict.
	Close(ctx context.Context, id string, outcome models.ClaimOutcome, resolvedAt time.Time) (*models.Claim, error)

	ListByBorrower(ctx context.Context, borrowerID string) ([]*models.Claim, error)
}
