package bridge

import (
	"context"
	"errors"

	dErrors "ledgerguard/pkg/domain-errors"
	"ledgerguard/pkg/platform/sentinel"
)

// translate maps storage sentinels and transport failures onto the coded
// error taxonomy. Already-coded errors pass through with their message
// sanitized; anything unrecognized becomes an internal error.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return dErrors.New(coded.Code, Sanitize(coded.Message))
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeAlreadyExists, "record already exists for this key")
	case errors.Is(err, sentinel.ErrUnauthorized):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "caller is not authorized for this operation")
	case errors.Is(err, sentinel.ErrAlreadyClaimed):
		return dErrors.Wrap(err, dErrors.CodeAlreadyClaimed, "rule has already been claimed")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeExpired, "rule has expired")
	case errors.Is(err, sentinel.ErrInsufficientFunds):
		return dErrors.Wrap(err, dErrors.CodeInsufficientFunds, "balance does not cover the requested amount")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnreachable, "ledger is unreachable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeUnconfirmed, "submission was not confirmed in time")
	default:
		return dErrors.New(dErrors.CodeInternal, Sanitize(err.Error()))
	}
}
