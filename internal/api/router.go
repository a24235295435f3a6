// Package api assembles the HTTP surface: routes, middleware and handlers.
package api

import (
	"net/http"

	"github.com/dvloznov/finance-admin/internal/api/handlers"
	"github.com/dvloznov/finance-admin/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Version is reported in the X-API-Version header.
const Version = "1"

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Users        *handlers.UsersHandler
	Transactions *handlers.TransactionsHandler
	Upload       *handlers.UploadHandler
	Stats        *handlers.StatsHandler
	Imports      *handlers.ImportsHandler
	Jobs         *handlers.JobsHandler
	Avatars      *handlers.AvatarsHandler
}

// NewRouter builds the router. Every API route is served under /api/v1 and
// under /api as an alias for existing clients.
func NewRouter(h Handlers, corsOrigin string, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Apply middleware (order matters: outer to inner)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(corsOrigin))
	r.Use(middleware.APIVersion(Version))

	r.Get("/health", handlers.Health)

	r.Get("/uploads/{name}", func(w http.ResponseWriter, r *http.Request) {
		h.Avatars.GetAvatar(w, r, chi.URLParam(r, "name"))
	})

	for _, prefix := range []string{"/api/v1", "/api"} {
		r.Route(prefix, func(r chi.Router) {
			mountAPI(r, h)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

func mountAPI(r chi.Router, h Handlers) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.Users.ListUsers)
		r.Post("/", h.Users.CreateUser)
		r.Get("/{id}", withParam("id", h.Users.GetUser))
		r.Put("/{id}", withParam("id", h.Users.UpdateUser))
		r.Delete("/{id}", withParam("id", h.Users.DeleteUser))
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.Transactions.ListTransactions)
		r.Post("/", h.Transactions.CreateTransaction)
		r.Get("/user/{userId}", withParam("userId", h.Transactions.ListUserTransactions))
		r.Get("/{id}", withParam("id", h.Transactions.GetTransaction))
		r.Put("/{id}", withParam("id", h.Transactions.UpdateTransaction))
		r.Delete("/{id}", withParam("id", h.Transactions.DeleteTransaction))
	})

	r.Post("/upload", h.Upload.Upload)
	r.Get("/stats", h.Stats.GetStats)
	r.Get("/imports", h.Imports.ListImports)

	r.Get("/jobs", h.Jobs.ListJobs)
	r.Get("/jobs/{id}", withParam("id", h.Jobs.GetJob))
}

// withParam adapts a handler taking a path parameter to an http.HandlerFunc.
func withParam(name string, fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, name))
	}
}
