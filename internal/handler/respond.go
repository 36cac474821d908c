// Package handler exposes the quest, ledger, invitation and identity
// services as a JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/kidquest/internal/apperr"
	"github.com/dukerupert/kidquest/internal/middleware"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindInvalidTransition, apperr.KindAlreadyUsed:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	case apperr.KindDuplicateEffect:
		return http.StatusOK
	case apperr.KindInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error", "kind"}. Server-side failures are
// logged with the request id; their cause is not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status >= 500 {
		logger.Error("request failed", "request_id", middleware.RequestID(r.Context()), "kind", kind, "error", err)
		msg = http.StatusText(status)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && status < 500 {
		msg = ae.Message
	}
	if kind == apperr.KindUnknown {
		kind = "internal"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: string(kind)})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.KindInvalid, "invalid JSON", err)
	}
	return nil
}

func parseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.KindInvalid, "invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// parseLimit reads the optional limit query parameter; 0 means the
// service default.
func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.Newf(apperr.KindInvalid, "invalid limit %q", s)
	}
	return n, nil
}

// nonNil keeps empty listings as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
