// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services and the ledger read
// them. Keeping this package free of net/http lets the store consume request
// time without pulling in transport code.
//
// Usage in tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithCaller(ctx, "issuer-addr")
package requestcontext

import (
	"context"
	"time"

	"ledgerguard/pkg/domain"
)

type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Caller retrieves the authenticated caller address from the context.
// Returns the zero address if not set.
func Caller(ctx context.Context) domain.Address {
	if addr, ok := ctx.Value(callerKey{}).(domain.Address); ok {
		return addr
	}
	return ""
}

// WithCaller injects the authenticated caller address into the context.
func WithCaller(ctx context.Context, addr domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, domain.NormalizeAddress(string(addr)))
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from the context, falling back to
// time.Now for non-HTTP contexts like workers and tests that don't inject it.
// The ledger derives block timestamps and escrow expiries from this, so a
// whole mutation observes a single instant.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Used by middleware to pin
// request time and by tests that need to step the clock across an expiry.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
