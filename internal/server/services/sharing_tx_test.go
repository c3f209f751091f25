package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/logging"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/repomanager"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run the sharing service over the real SQL repositories and a
// mocked connection, so the transaction boundary itself is observable.

var (
	itemCols  = []string{"id", "owner_id", "title", "description", "category", "condition", "image_key", "state", "holder_id", "version", "created_at", "updated_at"}
	claimCols = []string{"id", "item_id", "borrower_id", "created_at", "resolved_at", "outcome"}
)

const (
	itemGetQ     = `(?s)SELECT\s+id,\s*owner_id.*FROM\s+items\s+WHERE\s+id\s*=\s*\$1`
	itemCASQ     = `(?s)UPDATE\s+items\s+SET\s+state\s*=\s*\$3.*WHERE\s+id\s*=\s*\$1\s+AND\s+version\s*=\s*\$2`
	claimGetQ    = `(?s)SELECT\s+id,\s*item_id.*FROM\s+claims\s+WHERE\s+id\s*=\s*\$1`
	claimInsertQ = `(?s)INSERT\s+INTO\s+claims`
	claimCloseQ  = `(?s)UPDATE\s+claims\s+SET\s+outcome\s*=\s*\$2`
)

func newSharingWithMock(t *testing.T) (*SharingService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSharingService(db, repomanager.NewPostgresRepositoryManager(), nil, logging.Nop{}), mock
}

func itemRow(state string, holder any, version int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(itemCols).
		AddRow("item-1", "alice", "Drill", "", "tools", "used", "", state, holder, version, now, now)
}

func TestBorrow_CommitsBothWrites(t *testing.T) {
	s, mock := newSharingWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(itemGetQ).WithArgs("item-1").WillReturnRows(itemRow("available", nil, 3))
	mock.ExpectQuery(itemCASQ).
		WithArgs("item-1", int64(3), "claimed", sqlmock.AnyArg(), "available").
		WillReturnRows(itemRow("claimed", "bob", 4))
	mock.ExpectQuery(claimInsertQ).WithArgs("item-1", "bob").
		WillReturnRows(sqlmock.NewRows(claimCols).AddRow("c-1", "item-1", "bob", time.Now(), nil, "active"))
	mock.ExpectCommit()

	claim, err := s.Borrow(context.Background(), "item-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "c-1", claim.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBorrow_ClaimInsertFailureRollsBackTransition(t *testing.T) {
	s, mock := newSharingWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(itemGetQ).WithArgs("item-1").WillReturnRows(itemRow("available", nil, 3))
	mock.ExpectQuery(itemCASQ).
		WithArgs("item-1", int64(3), "claimed", sqlmock.AnyArg(), "available").
		WillReturnRows(itemRow("claimed", "bob", 4))
	mock.ExpectQuery(claimInsertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "claims_one_active_per_item"})
	mock.ExpectRollback()

	_, err := s.Borrow(context.Background(), "item-1", "bob")
	require.ErrorIs(t, err, common.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseClaim_CloseFailureRollsBackTransition(t *testing.T) {
	tests := []struct {
		name   string
		caller string
		run    func(s *SharingService, claimID, caller string) error
	}{
		{"return", "bob", func(s *SharingService, id, caller string) error {
			_, err := s.ReturnItem(context.Background(), id, caller)
			return err
		}},
		{"cancel", "alice", func(s *SharingService, id, caller string) error {
			_, err := s.Cancel(context.Background(), id, caller)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newSharingWithMock(t)
			lost := errors.New("connection reset by peer")

			mock.ExpectBegin()
			mock.ExpectQuery(claimGetQ).WithArgs("c-1").
				WillReturnRows(sqlmock.NewRows(claimCols).AddRow("c-1", "item-1", "bob", time.Now(), nil, "active"))
			mock.ExpectQuery(itemGetQ).WithArgs("item-1").WillReturnRows(itemRow("claimed", "bob", 4))
			mock.ExpectQuery(itemCASQ).
				WithArgs("item-1", int64(4), "available", nil, "claimed").
				WillReturnRows(itemRow("available", nil, 5))
			mock.ExpectQuery(claimCloseQ).WillReturnError(lost)
			mock.ExpectRollback()

			err := tt.run(s, "c-1", tt.caller)
			require.ErrorIs(t, err, lost)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
