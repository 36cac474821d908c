package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/kidquest/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindForbidden, http.StatusForbidden},
		{apperr.KindInvalidTransition, http.StatusConflict},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindExpired, http.StatusGone},
		{apperr.KindAlreadyUsed, http.StatusConflict},
		{apperr.KindInsufficientBalance, http.StatusUnprocessableEntity},
		{apperr.KindTransient, http.StatusServiceUnavailable},
		{apperr.KindDuplicateEffect, http.StatusOK},
		{apperr.KindInvalid, http.StatusBadRequest},
		{apperr.KindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWriteErrorHidesServerCause(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)

	writeError(rec, req, logger, apperr.Transient("list quests", errors.New("disk I/O error at /var/db")))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if strings.Contains(rec.Body.String(), "/var/db") {
		t.Errorf("body leaks cause: %s", rec.Body.String())
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != string(apperr.KindTransient) {
		t.Errorf("kind = %q, want %q", body.Kind, apperr.KindTransient)
	}
}

func TestWriteErrorUnknown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest("GET", "/", nil), logger, errors.New("boom"))

	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusInternalServerError || body.Kind != "internal" {
		t.Errorf("got %d %q, want 500 internal", rec.Code, body.Kind)
	}
}

func TestParseIDParam(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.SetPathValue("id", tt.in)
		got, err := parseIDParam(req)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDParam(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseIDParam(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(""))
	var v struct{ PIN string }
	if err := decode(req, &v); err != nil {
		t.Errorf("decode empty body: %v", err)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader("{"))
	if err := decode(req, &v); apperr.KindOf(err) != apperr.KindInvalid {
		t.Errorf("decode bad JSON kind = %q, want invalid", apperr.KindOf(err))
	}
}
