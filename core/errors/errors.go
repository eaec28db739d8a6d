package errors

import (
	stderrors "errors"
	"net/http"
)

// Taxonomy shared by every engine. Engines wrap these sentinels with a
// module-specific reason so callers can classify failures with errors.Is while
// clients still see a descriptive message.
var (
	ErrUnauthorized       = stderrors.New("unauthorized")
	ErrNotFound           = stderrors.New("not found")
	ErrAlreadyExists      = stderrors.New("already exists")
	ErrAlreadyDecided     = stderrors.New("already decided")
	ErrInsufficientFunds  = stderrors.New("insufficient funds")
	ErrInsufficientShares = stderrors.New("insufficient shares")
	ErrInvalidState       = stderrors.New("invalid state")
	ErrInvalidArgument    = stderrors.New("invalid argument")
)

type classification struct {
	sentinel error
	code     string
	status   int
}

var classifications = []classification{
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusForbidden},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict},
	{ErrAlreadyDecided, "ALREADY_DECIDED", http.StatusConflict},
	{ErrInsufficientFunds, "INSUFFICIENT_FUNDS", http.StatusUnprocessableEntity},
	{ErrInsufficientShares, "INSUFFICIENT_SHARES", http.StatusUnprocessableEntity},
	{ErrInvalidState, "INVALID_STATE", http.StatusConflict},
	{ErrInvalidArgument, "INVALID_ARGUMENT", http.StatusBadRequest},
}

// Code maps an error onto a stable string code and the HTTP status used by the
// API. Unclassified errors are reported as INTERNAL.
func Code(err error) (string, int) {
	if err == nil {
		return "", http.StatusOK
	}
	for _, c := range classifications {
		if stderrors.Is(err, c.sentinel) {
			return c.code, c.status
		}
	}
	return "INTERNAL", http.StatusInternalServerError
}
