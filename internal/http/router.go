package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"snaportho-caseprep/internal/handlers"
	"snaportho-caseprep/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Preparer    handlers.CasePreparer
	VectorStore vectorstore.VectorStore
	Collection  string
}

// NewRouter creates the HTTP router.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	casePrepHandler := handlers.NewCasePrepHandler(deps.Preparer)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Collection)

	r.Method(http.MethodPost, "/case-prep", casePrepHandler)
	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	// Liveness sanity check.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("SnapOrtho CasePrep API is running"))
	})

	return r
}
