package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/dbx"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
)

const DefaultPageSize = 50

const itemColumns = `id, owner_id, title, description, category, condition, image_key,
	state, holder_id, version, created_at, updated_at`

// PostgresRepository implements the registry over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*models.Item, error) {
	var (
		item   models.Item
		holder sql.NullString
	)
	err := row.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.Category,
		&item.Condition, &item.ImageKey, &item.State, &holder, &item.Version,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if holder.Valid {
		item.HolderID = &holder.String
	}
	return &item, nil
}

func (r *PostgresRepository) Create(ctx context.Context, item *models.Item) (*models.Item, error) {
	query := `
		INSERT INTO items (owner_id, title, description, category, condition, image_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + itemColumns

	created, err := scanItem(r.db.QueryRowContext(ctx, query,
		item.OwnerID, item.Title, item.Description, item.Category, string(item.Condition), item.ImageKey))
	if err != nil {
		if dbx.IsForeignKeyViolation(err) || dbx.IsInvalidInput(err) {
			return nil, fmt.Errorf("owner %q: %w", item.OwnerID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidInput(err) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

func (r *PostgresRepository) List(ctx context.Context, f models.ItemFilter) iter.Seq2[*models.Item, error] {
	return func(yield func(*models.Item, error) bool) {
		pageSize := f.PageSize
		if pageSize <= 0 {
			pageSize = DefaultPageSize
		}
		if f.Limit > 0 && f.Limit < pageSize {
			pageSize = f.Limit
		}

		cursor := f.After
		yielded := 0
		for {
			page, err := r.listPage(ctx, f, cursor, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
				yielded++
				if f.Limit > 0 && yielded >= f.Limit {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			cursor = page[len(page)-1].ID
		}
	}
}

func (r *PostgresRepository) listPage(ctx context.Context, f models.ItemFilter, cursor string, size int) ([]*models.Item, error) {
	var (
		conds []string
		args  []any
	)
	where := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.OwnerID != "" {
		where("owner_id = $%d", f.OwnerID)
	}
	if f.State != "" {
		where("state = $%d", string(f.State))
	}
	if f.Category != "" {
		where("category = $%d", f.Category)
	}
	if f.Condition != "" {
		where("condition = $%d", string(f.Condition))
	}
	if cursor != "" {
		where("id > $%d", cursor)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, size)
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		if dbx.IsInvalidInput(err) {
			return nil, fmt.Errorf("%w: malformed id in filter", common.ErrValidation)
		}
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var page []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

// CompareAndTransition performs the optimistic write. When nothing matched,
// the row is read back to tell a missing item (ErrNotFound) from a lost race
// (ErrVersionConflict) and from a state that does not allow the move
// (ErrInvalidTransition).
func (r *PostgresRepository) CompareAndTransition(ctx context.Context, id string, expectedVersion int64,
	newState models.ItemState, newHolder *string) (*models.Item, error) {

	from, ok := models.SourceState(newState)
	if !ok || !models.ValidHolder(newState, newHolder) {
		return nil, common.ErrInvalidTransition
	}

	query := `
		UPDATE items
		SET state = $3, holder_id = $4, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND state = $5
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRowContext(ctx, query, id, expectedVersion, string(newState), newHolder, string(from)))
	switch {
	case err == nil:
		return item, nil
	case dbx.IsInvalidInput(err):
		return nil, common.ErrNotFound
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("db error: %w", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, common.ErrVersionConflict
	}
	return nil, common.ErrInvalidTransition
}
