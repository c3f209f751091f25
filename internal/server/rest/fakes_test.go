package rest

import (
	"context"
	"iter"
	"strings"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
	"github.com/dmitrijs2005/itemshare/internal/server/services"
)

// fakeUsers accepts "token-<user id>" as an access token.
type fakeUsers struct {
	registered *models.User
	err        error
	lastSecret string
}

func (f *fakeUsers) Authenticate(token string) (string, error) {
	id, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return "", common.ErrTokenMalformed
	}
	if id == "expired" {
		return "", common.ErrTokenExpired
	}
	return id, nil
}

func (f *fakeUsers) Register(_ context.Context, userName, displayName, secret string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastSecret = secret
	f.registered = &models.User{ID: "u1", UserName: userName, DisplayName: displayName, Active: true}
	return f.registered, nil
}

func (f *fakeUsers) Login(_ context.Context, userName, secret string) (*services.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	if secret != "correct horse" {
		return nil, common.ErrAuthenticationFailed
	}
	return &services.TokenPair{AccessToken: "token-" + userName, RefreshToken: "r1"}, nil
}

func (f *fakeUsers) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	if token != "r1" {
		return nil, common.ErrRefreshTokenExpired
	}
	return &services.TokenPair{AccessToken: "token-u1", RefreshToken: "r2"}, nil
}

func (f *fakeUsers) ChangeSecret(_ context.Context, _, oldSecret, newSecret string) error {
	if oldSecret != "correct horse" {
		return common.ErrAuthenticationFailed
	}
	f.lastSecret = newSecret
	return nil
}

func (f *fakeUsers) Deactivate(context.Context, string) error { return f.err }

func (f *fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: id, UserName: "alice", DisplayName: "Alice", Active: true}, nil
}

type fakeItems struct {
	items   []*models.Item
	created models.ItemDetails
	err     error
	filter  models.ItemFilter
}

func (f *fakeItems) CreateItem(_ context.Context, ownerID string, d models.ItemDetails, withImage bool) (*models.Item, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	f.created = d
	item := &models.Item{ID: "i1", OwnerID: ownerID, ItemDetails: d, State: models.StateAvailable}
	url := ""
	if withImage {
		url = "https://s3.test/put"
	}
	return item, url, nil
}

func (f *fakeItems) GetItem(_ context.Context, id string) (*services.ItemView, error) {
	for _, item := range f.items {
		if item.ID == id {
			return &services.ItemView{Item: item, ImageURL: "https://s3.test/get"}, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeItems) ListItems(_ context.Context, filter models.ItemFilter) (iter.Seq2[*models.Item, error], error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, common.ErrValidation
	}
	f.filter = filter
	return func(yield func(*models.Item, error) bool) {
		n := 0
		for _, item := range f.items {
			if item.ID <= filter.After {
				continue
			}
			if filter.Limit > 0 && n >= filter.Limit {
				return
			}
			n++
			if !yield(item, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}, nil
}

// fakeSharing returns err for every call when set.
type fakeSharing struct {
	err    error
	calls  []string
	claims []*models.Claim
}

func (f *fakeSharing) claim(id, itemID, borrower string, outcome models.ClaimOutcome) *models.Claim {
	return &models.Claim{ID: id, ItemID: itemID, BorrowerID: borrower, Outcome: outcome}
}

func (f *fakeSharing) Borrow(_ context.Context, itemID, borrowerID string) (*models.Claim, error) {
	f.calls = append(f.calls, "borrow "+itemID+" "+borrowerID)
	if f.err != nil {
		return nil, f.err
	}
	return f.claim("c1", itemID, borrowerID, models.OutcomeActive), nil
}

func (f *fakeSharing) ReturnItem(_ context.Context, claimID, callerID string) (*models.Claim, error) {
	f.calls = append(f.calls, "return "+claimID+" "+callerID)
	if f.err != nil {
		return nil, f.err
	}
	return f.claim(claimID, "i1", callerID, models.OutcomeReturned), nil
}

func (f *fakeSharing) Cancel(_ context.Context, claimID, callerID string) (*models.Claim, error) {
	f.calls = append(f.calls, "cancel "+claimID+" "+callerID)
	if f.err != nil {
		return nil, f.err
	}
	return f.claim(claimID, "i1", "bob", models.OutcomeCancelled), nil
}

func (f *fakeSharing) RetireItem(_ context.Context, itemID, callerID string) (*models.Item, error) {
	f.calls = append(f.calls, "retire "+itemID+" "+callerID)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Item{ID: itemID, OwnerID: callerID, State: models.StateRetired, Version: 1}, nil
}

func (f *fakeSharing) GetClaim(_ context.Context, claimID, callerID string) (*models.Claim, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claim(claimID, "i1", callerID, models.OutcomeActive), nil
}

func (f *fakeSharing) ListBorrowed(context.Context, string) ([]*models.Claim, error) {
	return f.claims, f.err
}
