package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/google/uuid"
)

const (
	HeaderStaffID    = "X-Staff-Id"
	HeaderStaffRole  = "X-Staff-Role"
	HeaderStaffZones = "X-Staff-Zones"
	HeaderRequestID  = "X-Request-Id"
)

type contextKey int

const (
	identityKey contextKey = iota
	requestIDKey
)

// statusRecorder keeps the response code for logging. It forwards Hijack so
// websocket upgrades still work behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func LoggingMiddleware(logger logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, requestID)

			logger.Debug("http_request", fmt.Sprintf("%s %s", r.Method, r.URL.Path), requestID, map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			})

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))

			logger.Debug("http_response", "Request completed", requestID, map[string]interface{}{
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}

func RecoveryMiddleware(logger logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic_recovered", "Panic recovered", RequestID(r.Context()), nil, fmt.Errorf("%v", err))
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityMiddleware reads the caller's staff identity from headers, falling
// back to query parameters for websocket upgrades. The identity is trusted as
// already verified upstream; a missing or unknown role is DENIED.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := identityFromRequest(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, actor)))
	})
}

func identityFromRequest(r *http.Request) domain.StaffIdentity {
	value := func(name string) string {
		if v := r.Header.Get(name); v != "" {
			return v
		}
		return r.URL.Query().Get(name)
	}

	actor := domain.StaffIdentity{
		ID:   strings.TrimSpace(value(HeaderStaffID)),
		Role: domain.ParseRole(value(HeaderStaffRole)),
	}
	for _, zone := range strings.Split(value(HeaderStaffZones), ",") {
		if zone = strings.TrimSpace(zone); zone != "" {
			actor.Zones = append(actor.Zones, zone)
		}
	}
	if actor.ID == "" {
		actor.Role = domain.RoleDenied
	}
	return actor
}

// Identity returns the staff identity attached by IdentityMiddleware.
func Identity(ctx context.Context) domain.StaffIdentity {
	actor, ok := ctx.Value(identityKey).(domain.StaffIdentity)
	if !ok {
		return domain.StaffIdentity{Role: domain.RoleDenied}
	}
	return actor
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
