package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options tunes the router. Zero values disable the corresponding limit.
type Options struct {
	RequestTimeout     time.Duration
	LoginRatePerMinute int
}

// NewRouter mounts the API:
//
//	POST   /api/users/register
//	POST   /api/users/login        (throttled per client IP)
//	POST   /api/users/refresh
//	GET    /api/users/me
//	PUT    /api/users/me/secret
//	DELETE /api/users/me
//	POST   /api/items
//	GET    /api/items
//	GET    /api/items/{id}
//	POST   /api/items/{id}/borrow
//	POST   /api/items/{id}/retire
//	GET    /api/claims
//	GET    /api/claims/{id}
//	POST   /api/claims/{id}/return
//	POST   /api/claims/{id}/cancel
//	GET    /healthz
//	GET    /metrics
func NewRouter(h *Handler, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger, h.metrics))
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	limiter := NewIPRateLimiter(opts.LoginRatePerMinute)

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.With(throttle(limiter, h.metrics)).Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(bearerAuth(h.users, h.logger))
				r.Get("/me", h.Me)
				r.Delete("/me", h.Deactivate)
				r.Put("/me/secret", h.ChangeSecret)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(h.users, h.logger))

			r.Route("/items", func(r chi.Router) {
				r.Post("/", h.CreateItem)
				r.Get("/", h.ListItems)
				r.Get("/{id}", h.GetItem)
				r.Post("/{id}/borrow", h.Borrow)
				r.Post("/{id}/retire", h.Retire)
			})

			r.Route("/claims", func(r chi.Router) {
				r.Get("/", h.ListClaims)
				r.Get("/{id}", h.GetClaim)
				r.Post("/{id}/return", h.Return)
				r.Post("/{id}/cancel", h.Cancel)
			})
		})
	})

	return r
}
