package portfoliumd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	coreerrors "portfolium/core/errors"
	"portfolium/core/types"
	"portfolium/crypto"
	"portfolium/gateway/middleware"
)

const maxBodyBytes = 1 << 20

var (
	errMissingCaller = errors.New("caller identity required")
	errBadRequest    = errors.New("bad request")
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response failed", slog.String("error", err.Error()))
	}
}

// writeError maps err onto the platform error taxonomy. Request parsing
// failures are reported as INVALID_ARGUMENT.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errMissingCaller):
		s.writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: err.Error()})
		return
	case errors.Is(err, errBadRequest):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_ARGUMENT", Message: err.Error()})
		return
	}
	code, status := coreerrors.Code(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("platform call failed", slog.String("error", message))
		message = "internal error"
	}
	s.writeJSON(w, status, errorBody{Code: code, Message: message})
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid payload: %v", err)
	}
	return nil
}

// callerOf returns the account the request acts for.
func callerOf(r *http.Request) ([20]byte, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok || types.IsZeroAddress(caller) {
		return [20]byte{}, errMissingCaller
	}
	return caller, nil
}

func parseAccount(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseAccount(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

func accountParam(r *http.Request, name string) ([20]byte, error) {
	return parseAccount(name, chi.URLParam(r, name))
}

func uintParam(r *http.Request, name string) (uint64, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(chi.URLParam(r, name)), 10, 64)
	if err != nil {
		return 0, badRequest("%s must be an unsigned integer", name)
	}
	return value, nil
}

// parseAmount parses a non-negative base-10 integer. Empty input is zero.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, badRequest("%s must be a non-negative integer", field)
	}
	return value, nil
}

func amountQuery(r *http.Request, name string) (*big.Int, error) {
	raw := r.URL.Query().Get(name)
	if strings.TrimSpace(raw) == "" {
		return nil, badRequest("%s query parameter required", name)
	}
	return parseAmount(name, raw)
}
