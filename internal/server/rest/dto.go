package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
	"github.com/dmitrijs2005/itemshare/internal/server/services"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	UserName    string `json:"username" validate:"required,min=3,max=64"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Secret      string `json:"secret" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	UserName string `json:"username" validate:"required"`
	Secret   string `json:"secret" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type changeSecretRequest struct {
	OldSecret string `json:"old_secret" validate:"required"`
	NewSecret string `json:"new_secret" validate:"required,min=8,max=72"`
}

type createItemRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Category    string `json:"category" validate:"max=64"`
	Condition   string `json:"condition" validate:"required,oneof=new used"`
	WithImage   bool   `json:"with_image"`
}

type userResponse struct {
	ID          string    `json:"id"`
	UserName    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func newTokenResponse(p *services.TokenPair) tokenResponse {
	return tokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "Bearer"}
}

type itemResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Condition   string    `json:"condition"`
	State       string    `json:"state"`
	HolderID    *string   `json:"holder_id"`
	Version     int64     `json:"version"`
	Role        string    `json:"role"`
	ImageURL    string    `json:"image_url,omitempty"`
	UploadURL   string    `json:"upload_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// newItemResponse renders item as seen by callerID.
func newItemResponse(item *models.Item, callerID string) itemResponse {
	return itemResponse{
		ID:          item.ID,
		OwnerID:     item.OwnerID,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Condition:   string(item.Condition),
		State:       string(item.State),
		HolderID:    item.HolderID,
		Version:     item.Version,
		Role:        string(models.RoleFor(callerID, item)),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

type listItemsResponse struct {
	Items []itemResponse `json:"items"`
	// Next is the cursor for the following page, empty on the last one.
	Next string `json:"next,omitempty"`
}

type claimResponse struct {
	ID         string     `json:"id"`
	ItemID     string     `json:"item_id"`
	BorrowerID string     `json:"borrower_id"`
	Outcome    string     `json:"outcome"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

func newClaimResponse(c *models.Claim) claimResponse {
	return claimResponse{
		ID:         c.ID,
		ItemID:     c.ItemID,
		BorrowerID: c.BorrowerID,
		Outcome:    string(c.Outcome),
		CreatedAt:  c.CreatedAt,
		ResolvedAt: c.ResolvedAt,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. Every failure is a
// common.ErrValidation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", common.ErrValidation)
		}
		return fmt.Errorf("%w: malformed JSON: %v", common.ErrValidation, err)
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
