package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/logging"
)

// Problem is an RFC 7807 "problem details" body.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	// Retryable is set when repeating the request may succeed.
	Retryable bool `json:"retryable,omitempty"`
}

const ContentTypeProblemJSON = "application/problem+json"

// Problem type URIs for the lifecycle conflicts, which share status 409 and
// must stay distinguishable.
const (
	TypeItemUnavailable = "/problems/item-unavailable"
	TypeVersionConflict = "/problems/version-conflict"
	TypeDuplicateUser   = "/problems/duplicate-user"
)

func writeProblem(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// problemFor maps an error kind to its response. Unknown errors become a 500
// without detail.
func problemFor(err error) Problem {
	switch {
	case errors.Is(err, common.ErrAuthenticationFailed):
		return Problem{Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: err.Error()}
	case errors.Is(err, common.ErrAuthorizationDenied):
		return Problem{Title: "Forbidden", Status: http.StatusForbidden, Detail: err.Error()}
	case errors.Is(err, common.ErrNotFound):
		return Problem{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error()}
	case errors.Is(err, common.ErrVersionConflict):
		return Problem{Type: TypeVersionConflict, Title: "Version Conflict", Status: http.StatusConflict,
			Detail: "the item changed concurrently, retry the request", Retryable: true}
	case errors.Is(err, common.ErrItemUnavailable):
		return Problem{Type: TypeItemUnavailable, Title: "Item Unavailable", Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, common.ErrDuplicateUser):
		return Problem{Type: TypeDuplicateUser, Title: "Conflict", Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, common.ErrInvalidTransition):
		return Problem{Title: "Unprocessable Entity", Status: http.StatusUnprocessableEntity, Detail: err.Error()}
	case errors.Is(err, common.ErrValidation):
		return Problem{Title: "Bad Request", Status: http.StatusBadRequest, Detail: err.Error()}
	}
	return Problem{Title: "Internal Server Error", Status: http.StatusInternalServerError}
}

// writeError answers with the problem for err and logs server-side failures.
func writeError(ctx context.Context, w http.ResponseWriter, logger logging.Logger, err error) {
	p := problemFor(err)
	if p.Status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", "error", err)
	}
	if p.Retryable {
		w.Header().Set("Retry-After", "0")
	}
	writeProblem(w, p)
}
