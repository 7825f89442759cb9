package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouterConfig bundles the handlers and middleware for the HTTP API.
type RouterConfig struct {
	Ownership  *OwnershipHandler
	Health     *HealthHandler
	Middleware []mux.MiddlewareFunc
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	for _, mw := range cfg.Middleware {
		r.Use(mw)
	}

	r.HandleFunc("/health", cfg.Health.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", cfg.Health.Ready).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc(
		"/ownership/{kind}/{namespace}/{name}/owned-entities",
		cfg.Ownership.OwnedEntities,
	).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
