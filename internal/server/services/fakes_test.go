package services

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/dbx"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/claims"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/items"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newTxDB returns an in-memory sqlite handle. The fakes below ignore the
// DBTX they are bound to; the handle only gives dbx.WithTx something to
// begin and commit.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// memStore is an in-memory RepositoryManager. Its item CAS and its active
// claim uniqueness behave like the Postgres repositories.
type memStore struct {
	mu      sync.Mutex
	seq     int
	users   map[string]*models.User
	tokens  map[string]*models.RefreshToken
	items   map[string]*models.Item
	claims  map[string]*models.Claim
	listErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*models.User{},
		tokens: map[string]*models.RefreshToken{},
		items:  map[string]*models.Item{},
		claims: map[string]*models.Claim{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%04d", prefix, m.seq)
}

func (m *memStore) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memStore) Users(dbx.DBTX) users.Repository               { return memUsers{m} }
func (m *memStore) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return memTokens{m}
}
func (m *memStore) Items(dbx.DBTX) items.Repository   { return memItems{m} }
func (m *memStore) Claims(dbx.DBTX) claims.Repository { return memClaims{m} }

// item returns a copy of the stored item.
func (m *memStore) item(id string) models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

func (m *memStore) activeClaims(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.claims {
		if c.ItemID == itemID && c.Active() {
			n++
		}
	}
	return n
}

type memUsers struct{ m *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.users {
		if existing.UserName == u.UserName {
			return nil, common.ErrDuplicateUser
		}
	}
	cp := *u
	cp.ID = r.m.nextID("user")
	cp.Active = true
	r.m.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.UserName == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) UpdatePasswordHash(_ context.Context, id string, hash []byte) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok || !u.Active {
		return common.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r memUsers) Deactivate(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok || !u.Active {
		return common.ErrNotFound
	}
	u.Active = false
	return nil
}

type memTokens struct{ m *memStore }

func (r memTokens) Create(_ context.Context, userID, token string, expiresAt time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expiresAt}
	return nil
}

func (r memTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t, ok := r.m.tokens[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTokens) Delete(_ context.Context, token string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.tokens[token]; !ok {
		return common.ErrNotFound
	}
	delete(r.m.tokens, token)
	return nil
}

func (r memTokens) DeleteByUser(_ context.Context, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for k, t := range r.m.tokens {
		if t.UserID == userID {
			delete(r.m.tokens, k)
		}
	}
	return nil
}

type memItems struct{ m *memStore }

func (r memItems) Create(_ context.Context, item *models.Item) (*models.Item, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[item.OwnerID]; !ok {
		return nil, common.ErrNotFound
	}
	cp := *item
	cp.ID = r.m.nextID("item")
	cp.State = models.StateAvailable
	cp.HolderID = nil
	cp.Version = 0
	r.m.items[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memItems) Get(_ context.Context, id string) (*models.Item, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	item, ok := r.m.items[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (r memItems) List(_ context.Context, f models.ItemFilter) iter.Seq2[*models.Item, error] {
	return func(yield func(*models.Item, error) bool) {
		r.m.mu.Lock()
		if r.m.listErr != nil {
			err := r.m.listErr
			r.m.mu.Unlock()
			yield(nil, err)
			return
		}
		var out []*models.Item
		for _, item := range r.m.items {
			if (f.OwnerID == "" || item.OwnerID == f.OwnerID) &&
				(f.State == "" || item.State == f.State) &&
				(f.Category == "" || item.Category == f.Category) &&
				(f.Condition == "" || item.Condition == f.Condition) &&
				item.ID > f.After {
				cp := *item
				out = append(out, &cp)
			}
		}
		r.m.mu.Unlock()

		slices.SortFunc(out, func(a, b *models.Item) int { return cmp.Compare(a.ID, b.ID) })
		for i, item := range out {
			if f.Limit > 0 && i >= f.Limit {
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (r memItems) CompareAndTransition(_ context.Context, id string, expectedVersion int64,
	newState models.ItemState, newHolder *string) (*models.Item, error) {
	from, ok := models.SourceState(newState)
	if !ok || !models.ValidHolder(newState, newHolder) {
		return nil, common.ErrInvalidTransition
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	item, ok := r.m.items[id]
	switch {
	case !ok:
		return nil, common.ErrNotFound
	case item.Version != expectedVersion:
		return nil, common.ErrVersionConflict
	case item.State != from:
		return nil, common.ErrInvalidTransition
	}

	item.State = newState
	item.HolderID = nil
	if newHolder != nil {
		h := *newHolder
		item.HolderID = &h
	}
	item.Version++
	cp := *item
	return &cp, nil
}

type memClaims struct{ m *memStore }

func (r memClaims) Create(_ context.Context, c *models.Claim) (*models.Claim, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.claims {
		if existing.ItemID == c.ItemID && existing.Active() {
			return nil, common.ErrVersionConflict
		}
	}
	cp := *c
	cp.ID = r.m.nextID("claim")
	cp.Outcome = models.OutcomeActive
	cp.CreatedAt = time.Now()
	r.m.claims[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memClaims) Get(_ context.Context, id string) (*models.Claim, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.claims[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memClaims) GetActiveByItem(_ context.Context, itemID string) (*models.Claim, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.claims {
		if c.ItemID == itemID && c.Active() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memClaims) Close(_ context.Context, id string, outcome models.ClaimOutcome, resolvedAt time.Time) (*models.Claim, error) {
	if outcome == models.OutcomeActive {
		return nil, common.ErrInvalidTransition
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.claims[id]
	if !ok || !c.Active() {
		return nil, common.ErrVersionConflict
	}
	c.Outcome = outcome
	c.ResolvedAt = &resolvedAt
	cp := *c
	return &cp, nil
}

func (r memClaims) ListByBorrower(_ context.Context, borrowerID string) ([]*models.Claim, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Claim
	for _, c := range r.m.claims {
		if c.BorrowerID == borrowerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Claim) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

// fakeImages is an ImageSigner that hands out predictable URLs.
type fakeImages struct {
	putErr error
	getErr error
}

func (f *fakeImages) NewImageKey() string { return "items/2025/01/02/key" }

func (f *fakeImages) PresignPut(_ context.Context, key string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	return "https://s3.test/put/" + key, nil
}

func (f *fakeImages) PresignGet(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return "https://s3.test/get/" + key, nil
}
