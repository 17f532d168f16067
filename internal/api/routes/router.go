package routes

import (
	"net/http"

	"github.com/postocalmo/backend/internal/api/handlers"
	"github.com/postocalmo/backend/internal/api/middleware"
)

// Router holds all route handlers
type Router struct {
	mux          *http.ServeMux
	postoHandler *handlers.PostoHandler
}

// NewRouter creates a new router
func NewRouter(postoHandler *handlers.PostoHandler) *Router {
	return &Router{
		mux:          http.NewServeMux(),
		postoHandler: postoHandler,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Posto endpoints
	r.mux.HandleFunc("GET /api/postos", r.postoHandler.SearchPostos)
	r.mux.HandleFunc("POST /api/postos", r.postoHandler.CreatePosto)
	r.mux.HandleFunc("GET /api/postos/{id}", r.postoHandler.GetPosto)
	r.mux.HandleFunc("PATCH /api/postos/{id}", r.postoHandler.UpdatePosto)
	r.mux.HandleFunc("DELETE /api/postos/{id}", r.postoHandler.DeletePosto)
	r.mux.HandleFunc("PATCH /api/postos/{id}/services", r.postoHandler.UpdateServiceStatus)
	r.mux.HandleFunc("POST /api/postos/{id}/reviews", r.postoHandler.AddReview)

	// Apply middleware in reverse order (last middleware wraps first).
	// CORS is outermost so its headers are present on every response.
	var handler http.Handler = r.mux
	handler = middleware.IdentityMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(handler)

	return handler
}
