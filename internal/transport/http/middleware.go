package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ledgerguard/pkg/domain"
	dErrors "ledgerguard/pkg/domain-errors"
	"ledgerguard/pkg/platform/httputil"
	"ledgerguard/pkg/requestcontext"
)

// TokenValidator resolves a bearer token to the caller address it carries.
type TokenValidator interface {
	ExtractAddressFromToken(tokenString string) (domain.Address, error)
}

// RequestContext stamps each request with an identifier and the wall-clock
// instant the ledger will treat as now.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithRequestID(r.Context(), uuid.NewString())
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth validates the Authorization header and attaches the caller
// address to the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}
			addr, err := validator.ExtractAddressFromToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, addr)))
		})
	}
}

// RequireAdminToken gates administrative routes behind a shared secret
// checked against its bcrypt hash. With no hash configured the routes are
// closed.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Admin-Token")
			if tokenHash == "" || token == "" ||
				bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
				logger.WarnContext(ctx, "admin route rejected",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token missing or invalid"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
