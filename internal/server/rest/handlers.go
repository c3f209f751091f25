// Package rest is the HTTP API of the itemshare server: a chi router that
// authenticates callers, decodes and validates JSON requests, calls the
// services and maps their errors to RFC 7807 problem responses.
package rest

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/logging"
	"github.com/dmitrijs2005/itemshare/internal/server/metrics"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
	"github.com/dmitrijs2005/itemshare/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type Users interface {
	Authenticator
	Register(ctx context.Context, userName, displayName, secret string) (*models.User, error)
	Login(ctx context.Context, userName, secret string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	ChangeSecret(ctx context.Context, userID, oldSecret, newSecret string) error
	Deactivate(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

type Items interface {
	CreateItem(ctx context.Context, ownerID string, details models.ItemDetails, withImage bool) (*models.Item, string, error)
	GetItem(ctx context.Context, id string) (*services.ItemView, error)
	ListItems(ctx context.Context, filter models.ItemFilter) (iter.Seq2[*models.Item, error], error)
}

type Sharing interface {
	Borrow(ctx context.Context, itemID, borrowerID string) (*models.Claim, error)
	ReturnItem(ctx context.Context, claimID, callerID string) (*models.Claim, error)
	Cancel(ctx context.Context, claimID, callerID string) (*models.Claim, error)
	RetireItem(ctx context.Context, itemID, callerID string) (*models.Item, error)
	GetClaim(ctx context.Context, claimID, callerID string) (*models.Claim, error)
	ListBorrowed(ctx context.Context, borrowerID string) ([]*models.Claim, error)
}

type Handler struct {
	users    Users
	items    Items
	sharing  Sharing
	metrics  *metrics.Metrics
	logger   logging.Logger
	validate *validator.Validate
}

func NewHandler(users Users, items Items, sharing Sharing, mx *metrics.Metrics, logger logging.Logger) *Handler {
	return &Handler{
		users:    users,
		items:    items,
		sharing:  sharing,
		metrics:  mx,
		logger:   logger.With("module", "rest"),
		validate: newValidator(),
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(r.Context(), w, h.logger, err)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.UserName, req.DisplayName, req.Secret)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.users.Login(r.Context(), req.UserName, req.Secret)
	if err != nil {
		h.metrics.RecordLogin("failed")
		h.fail(w, r, err)
		return
	}
	h.metrics.RecordLogin("ok")
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	pair, err := h.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) ChangeSecret(w http.ResponseWriter, r *http.Request) {
	var req changeSecretRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.users.ChangeSecret(r.Context(), UserIDFromContext(r.Context()), req.OldSecret, req.NewSecret); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Deactivate(r.Context(), UserIDFromContext(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	callerID := UserIDFromContext(r.Context())
	item, uploadURL, err := h.items.CreateItem(r.Context(), callerID, models.ItemDetails{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Condition:   models.Condition(req.Condition),
	}, req.WithImage)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := newItemResponse(item, callerID)
	resp.UploadURL = uploadURL
	w.Header().Set("Location", "/api/items/"+item.ID)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.items.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := newItemResponse(view.Item, UserIDFromContext(r.Context()))
	resp.ImageURL = view.ImageURL
	writeJSON(w, http.StatusOK, resp)
}

// ListItems pages through the catalog with an id cursor: the response's
// next value goes into the following request's after parameter.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := DefaultListLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > MaxListLimit {
			h.fail(w, r, fmt.Errorf("%w: limit must be between 1 and %d", common.ErrValidation, MaxListLimit))
			return
		}
		limit = n
	}

	owner := q.Get("owner")
	if owner == "me" {
		owner = UserIDFromContext(r.Context())
	}

	// one extra row tells whether another page exists
	seq, err := h.items.ListItems(r.Context(), models.ItemFilter{
		OwnerID:   owner,
		State:     models.ItemState(q.Get("state")),
		Category:  q.Get("category"),
		Condition: models.Condition(q.Get("condition")),
		After:     q.Get("after"),
		Limit:     limit + 1,
		PageSize:  limit + 1,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	callerID := UserIDFromContext(r.Context())
	resp := listItemsResponse{Items: make([]itemResponse, 0, limit)}
	for item, err := range seq {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if len(resp.Items) == limit {
			resp.Next = resp.Items[limit-1].ID
			break
		}
		resp.Items = append(resp.Items, newItemResponse(item, callerID))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	claim, err := h.sharing.Borrow(r.Context(), chi.URLParam(r, "id"), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/claims/"+claim.ID)
	writeJSON(w, http.StatusCreated, newClaimResponse(claim))
}

func (h *Handler) Retire(w http.ResponseWriter, r *http.Request) {
	callerID := UserIDFromContext(r.Context())
	item, err := h.sharing.RetireItem(r.Context(), chi.URLParam(r, "id"), callerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item, callerID))
}

func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.sharing.ListBorrowed(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := make([]claimResponse, 0, len(claims))
	for _, c := range claims {
		resp = append(resp, newClaimResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.sharing.GetClaim(r.Context(), chi.URLParam(r, "id"), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newClaimResponse(claim))
}

func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	claim, err := h.sharing.ReturnItem(r.Context(), chi.URLParam(r, "id"), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newClaimResponse(claim))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	claim, err := h.sharing.Cancel(r.Context(), chi.URLParam(r, "id"), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newClaimResponse(claim))
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
