package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docuquery/internal/handlers"
	"docuquery/internal/ingest"
	"docuquery/internal/registry"
	"docuquery/internal/router"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Registry    *registry.Registry
	Pipeline    *ingest.Pipeline
	Router      *router.Router
	Index       handlers.IndexChecker
	DefaultTopK int
}

// NewRouter creates the HTTP router with all API endpoints registered.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	ingestHandler := handlers.NewIngestHandler(deps.Pipeline)
	answerHandler := handlers.NewAnswerHandler(deps.Router, deps.DefaultTopK)
	documentsHandler := handlers.NewDocumentsHandler(deps.Registry, deps.Pipeline)
	healthHandler := handlers.NewHealthHandler(deps.Registry, deps.Index)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/documents", ingestHandler)
		r.Get("/documents", documentsHandler.List)
		r.Get("/documents/{documentID}/versions/{version}", documentsHandler.Get)
		r.Delete("/documents/{documentID}/versions/{version}", documentsHandler.Delete)
		r.Method(http.MethodPost, "/answer", answerHandler)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	return r
}
