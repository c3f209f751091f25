package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/dbx"
	"github.com/dmitrijs2005/itemshare/internal/logging"
	"github.com/dmitrijs2005/itemshare/internal/server/metrics"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/repomanager"
)

// SharingService drives items through their lifecycle. Each operation reads
// the item, checks the caller's role and the state machine, and then writes
// the item transition and the claim change in one transaction. Races are
// settled by the item's version: the first commit wins and the loser gets
// common.ErrVersionConflict. Nothing is retried here.
type SharingService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	metrics     *metrics.Metrics
	logger      logging.Logger
	now         func() time.Time
}

// NewSharingService builds a SharingService. mx may be nil.
func NewSharingService(db *sql.DB, m repomanager.RepositoryManager, mx *metrics.Metrics, logger logging.Logger) *SharingService {
	return &SharingService{
		db:          db,
		repomanager: m,
		metrics:     mx,
		logger:      logger.With("module", "sharing"),
		now:         time.Now,
	}
}

func (s *SharingService) record(ctx context.Context, event models.Event, err error, args ...any) {
	s.metrics.RecordTransition(string(event), err)
	if errors.Is(err, common.ErrVersionConflict) {
		s.logger.Debug(ctx, "transition lost race", append(args, "event", event)...)
	}
}

// Borrow claims an available item for borrowerID and returns the new active
// claim. Owners cannot borrow their own items in any state.
func (s *SharingService) Borrow(ctx context.Context, itemID, borrowerID string) (claim *models.Claim, err error) {
	defer func() { s.record(ctx, models.EventClaim, err, "item_id", itemID) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		items := s.repomanager.Items(tx)

		item, err := items.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if models.RoleFor(borrowerID, item) == models.RoleOwner {
			return fmt.Errorf("%w: owner cannot borrow own item", common.ErrInvalidTransition)
		}
		to, ok := models.Transition(item.State, models.EventClaim)
		if !ok {
			return common.ErrItemUnavailable
		}

		holder := borrowerID
		if _, err := items.CompareAndTransition(ctx, item.ID, item.Version, to, &holder); err != nil {
			return err
		}

		claim, err = s.repomanager.Claims(tx).Create(ctx, &models.Claim{ItemID: item.ID, BorrowerID: borrowerID})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "item borrowed", "item_id", itemID, "claim_id", claim.ID, "borrower_id", borrowerID)
	return claim, nil
}

// ReturnItem ends an active claim as returned. The borrower or the item's
// owner may return it.
func (s *SharingService) ReturnItem(ctx context.Context, claimID, callerID string) (claim *models.Claim, err error) {
	defer func() { s.record(ctx, models.EventReturn, err, "claim_id", claimID) }()

	claim, err = s.closeClaim(ctx, claimID, callerID, models.EventReturn)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "item returned", "item_id", claim.ItemID, "claim_id", claim.ID, "caller_id", callerID)
	return claim, nil
}

// Cancel ends an active claim early. Only the item's owner may cancel.
func (s *SharingService) Cancel(ctx context.Context, claimID, callerID string) (claim *models.Claim, err error) {
	defer func() { s.record(ctx, models.EventCancel, err, "claim_id", claimID) }()

	claim, err = s.closeClaim(ctx, claimID, callerID, models.EventCancel)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "claim cancelled", "item_id", claim.ItemID, "claim_id", claim.ID, "caller_id", callerID)
	return claim, nil
}

func (s *SharingService) closeClaim(ctx context.Context, claimID, callerID string, event models.Event) (*models.Claim, error) {
	outcome := models.OutcomeReturned
	if event == models.EventCancel {
		outcome = models.OutcomeCancelled
	}

	var closed *models.Claim
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		claims := s.repomanager.Claims(tx)
		items := s.repomanager.Items(tx)

		claim, err := claims.Get(ctx, claimID)
		if err != nil {
			return err
		}
		item, err := items.Get(ctx, claim.ItemID)
		if err != nil {
			return err
		}

		isOwner := models.RoleFor(callerID, item) == models.RoleOwner
		switch event {
		case models.EventCancel:
			if !isOwner {
				return common.ErrAuthorizationDenied
			}
		default:
			if !isOwner && callerID != claim.BorrowerID {
				return common.ErrAuthorizationDenied
			}
		}

		if !claim.Active() {
			return fmt.Errorf("%w: claim is already %s", common.ErrInvalidTransition, claim.Outcome)
		}
		to, ok := models.Transition(item.State, event)
		if !ok {
			return fmt.Errorf("%w: item is %s", common.ErrInvalidTransition, item.State)
		}

		if _, err := items.CompareAndTransition(ctx, item.ID, item.Version, to, nil); err != nil {
			return err
		}
		closed, err = claims.Close(ctx, claim.ID, outcome, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// RetireItem takes an item out of circulation for good. Only the owner may
// retire, and only while nobody holds the item.
func (s *SharingService) RetireItem(ctx context.Context, itemID, callerID string) (retired *models.Item, err error) {
	defer func() { s.record(ctx, models.EventRetire, err, "item_id", itemID) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		items := s.repomanager.Items(tx)

		item, err := items.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if models.RoleFor(callerID, item) != models.RoleOwner {
			return common.ErrAuthorizationDenied
		}

		_, err = s.repomanager.Claims(tx).GetActiveByItem(ctx, item.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: item has an active claim", common.ErrInvalidTransition)
		case !errors.Is(err, common.ErrNotFound):
			return err
		}

		to, ok := models.Transition(item.State, models.EventRetire)
		if !ok {
			return fmt.Errorf("%w: item is %s", common.ErrInvalidTransition, item.State)
		}

		retired, err = items.CompareAndTransition(ctx, item.ID, item.Version, to, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "item retired", "item_id", itemID)
	return retired, nil
}

// GetClaim returns a claim to its borrower or to the owner of its item.
// Anyone else is denied.
func (s *SharingService) GetClaim(ctx context.Context, claimID, callerID string) (*models.Claim, error) {
	claim, err := s.repomanager.Claims(s.db).Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.BorrowerID == callerID {
		return claim, nil
	}

	item, err := s.repomanager.Items(s.db).Get(ctx, claim.ItemID)
	if err != nil {
		return nil, err
	}
	if models.RoleFor(callerID, item) != models.RoleOwner {
		return nil, common.ErrAuthorizationDenied
	}
	return claim, nil
}

// ListBorrowed returns every claim borrowerID has made, newest first.
func (s *SharingService) ListBorrowed(ctx context.Context, borrowerID string) ([]*models.Claim, error) {
	claims, err := s.repomanager.Claims(s.db).ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("error listing claims: %w", err)
	}
	return claims, nil
}
