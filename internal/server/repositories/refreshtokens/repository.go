// Package refreshtokens stores the rotating refresh tokens that back
// short-lived access tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/server/models"
)

type Repository interface {
	// Create stores token for userID, valid until expiresAt.
	Create(ctx context.Context, userID string, token string, expiresAt time.Time) error

	// Find returns common.ErrNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a single token. Deleting an unknown token reports
	// common.ErrNotFound so concurrent rotations cannot both succeed.
	Delete(ctx context.Context, token string) error

	// DeleteByUser drops every token of userID.
	DeleteByUser(ctx context.Context, userID string) error
}
