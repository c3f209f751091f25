package services

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/logging"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/repomanager"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 4000
	MaxCategoryLength    = 64
)

// ImageSigner presigns item image URLs. *ImageStore is the production one.
type ImageSigner interface {
	NewImageKey() string
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// ItemView is an item as shown to API callers.
type ItemView struct {
	*models.Item
	// ImageURL is a short-lived download link, empty when the item has no
	// image.
	ImageURL string
}

// ItemService is the catalog side of the item registry. It never changes
// lifecycle state; that is SharingService's job.
type ItemService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	images      ImageSigner
	logger      logging.Logger
}

// NewItemService builds an ItemService that presigns image URLs with images.
func NewItemService(db *sql.DB, m repomanager.RepositoryManager, images ImageSigner, logger logging.Logger) *ItemService {
	return &ItemService{
		db:          db,
		repomanager: m,
		images:      images,
		logger:      logger.With("module", "items"),
	}
}

func validateDetails(d *models.ItemDetails) error {
	d.Title = strings.TrimSpace(d.Title)
	d.Category = strings.TrimSpace(d.Category)

	switch {
	case d.Title == "":
		return fmt.Errorf("%w: title is required", common.ErrValidation)
	case utf8.RuneCountInString(d.Title) > MaxTitleLength:
		return fmt.Errorf("%w: title is longer than %d characters", common.ErrValidation, MaxTitleLength)
	case utf8.RuneCountInString(d.Description) > MaxDescriptionLength:
		return fmt.Errorf("%w: description is longer than %d characters", common.ErrValidation, MaxDescriptionLength)
	case utf8.RuneCountInString(d.Category) > MaxCategoryLength:
		return fmt.Errorf("%w: category is longer than %d characters", common.ErrValidation, MaxCategoryLength)
	case d.Condition != models.ConditionNew && d.Condition != models.ConditionUsed:
		return fmt.Errorf("%w: condition must be %q or %q", common.ErrValidation, models.ConditionNew, models.ConditionUsed)
	}
	return nil
}

// CreateItem lists a new available item owned by ownerID. With withImage an
// object key is reserved and a presigned upload URL is returned alongside.
func (s *ItemService) CreateItem(ctx context.Context, ownerID string, details models.ItemDetails, withImage bool) (*models.Item, string, error) {
	if err := validateDetails(&details); err != nil {
		return nil, "", err
	}

	item := &models.Item{OwnerID: ownerID, ItemDetails: details}

	var uploadURL string
	if withImage {
		key := s.images.NewImageKey()
		url, err := s.images.PresignPut(ctx, key)
		if err != nil {
			return nil, "", fmt.Errorf("presign upload: %w", err)
		}
		item.ImageKey = key
		uploadURL = url
	}

	created, err := s.repomanager.Items(s.db).Create(ctx, item)
	if err != nil {
		return nil, "", fmt.Errorf("error creating item: %w", err)
	}

	s.logger.Info(ctx, "item created", "item_id", created.ID, "owner_id", ownerID)
	return created, uploadURL, nil
}

// GetItem returns the item with a download URL for its image, if any.
func (s *ItemService) GetItem(ctx context.Context, id string) (*ItemView, error) {
	item, err := s.repomanager.Items(s.db).Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting item: %w", err)
	}

	view := &ItemView{Item: item}
	if item.ImageKey != "" {
		url, err := s.images.PresignGet(ctx, item.ImageKey)
		if err != nil {
			// the item is still useful without its picture
			s.logger.Warn(ctx, "presign image failed", "item_id", item.ID, "error", err)
		} else {
			view.ImageURL = url
		}
	}
	return view, nil
}

// ListItems lazily yields items matching filter. Rows are fetched page by
// page as the caller ranges.
func (s *ItemService) ListItems(ctx context.Context, filter models.ItemFilter) (iter.Seq2[*models.Item, error], error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", common.ErrValidation, filter.State)
	}
	if filter.Condition != "" && filter.Condition != models.ConditionNew && filter.Condition != models.ConditionUsed {
		return nil, fmt.Errorf("%w: unknown condition %q", common.ErrValidation, filter.Condition)
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", common.ErrValidation)
	}
	return s.repomanager.Items(s.db).List(ctx, filter), nil
}
