package http

import (
	"net/http"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type routeRegistrar interface {
	RegisterRoutes(r *mux.Router)
}

// NewRouter mounts the handlers behind identity, logging and recovery
// middleware. An empty allowedOrigins list permits every origin.
func NewRouter(lgr logger.Logger, allowedOrigins []string, handlers ...routeRegistrar) http.Handler {
	r := mux.NewRouter()
	r.Use(IdentityMiddleware)
	for _, h := range handlers {
		h.RegisterRoutes(r)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderStaffID, HeaderStaffRole, HeaderStaffZones, HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID},
	})

	handler := LoggingMiddleware(lgr)(c.Handler(r))
	return RecoveryMiddleware(lgr)(handler)
}

// OriginChecker returns a websocket origin check matching the CORS policy.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
	}
}
