// Package items is the item registry: the catalog of shareable items and
// their lifecycle state.
package items

import (
	"context"
	"iter"

	"github.com/dmitrijs2005/itemshare/internal/server/models"
)

type Repository interface {
	// Create stores a new item as available, unheld, at version 0.
	Create(ctx context.Context, item *models.Item) (*models.Item, error)

	Get(ctx context.Context, id string) (*models.Item, error)

	// List lazily yields items matching filter in id order. The sequence
	// is finite and can be ranged over again to restart from filter.After.
	List(ctx context.Context, filter models.ItemFilter) iter.Seq2[*models.Item, error]

	// CompareAndTransition moves the item to newState with newHolder if its
	// version still equals expectedVersion, bumping the version by one. It
	// is the only way item state changes.
	CompareAndTransition(ctx context.Context, id string, expectedVersion int64,
		newState models.ItemState, newHolder *string) (*models.Item, error)
}
