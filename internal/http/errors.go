package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/grantd/internal/oauth"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

type apiError struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description,omitempty"`
	Errno            int      `json:"errno,omitempty"`
	RequestID        string   `json:"request_id,omitempty"`
	Scopes           []string `json:"invalidScopes,omitempty"`
	ExpiredAt        int64    `json:"expiredAt,omitempty"`
	Param            string   `json:"validation,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, desc string, errno int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		Errno:            errno,
		RequestID:        rid,
	})
}

// WriteAppError maps a domain failure to the numbered JSON error body.
// Store connectivity failures surface as 503; anything untyped is a 500.
func WriteAppError(w http.ResponseWriter, err error) {
	var app *oauth.AppError
	if !errors.As(err, &app) {
		if errors.Is(err, core.ErrUnavailable) {
			app = oauth.ErrServiceUnavailable()
		} else {
			WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", 999)
			return
		}
	}
	body := apiError{
		Error:            app.Code,
		ErrorDescription: app.Message,
		Errno:            app.Errno,
		RequestID:        w.Header().Get("X-Request-ID"),
		Scopes:           app.Scopes,
		Param:            app.Param,
	}
	if !app.ExpiredAt.IsZero() {
		body.ExpiredAt = app.ExpiredAt.Unix()
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(app.Status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes a JSON body tolerantly: unknown fields are accepted,
// Content-Type must be application/json, body is capped at 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_request_parameter", "Content-Type must be application/json", oauth.ErrnoInvalidRequestParameter)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_request_parameter", "malformed json body", oauth.ErrnoInvalidRequestParameter)
		return false
	}
	return true
}

// parseTTL reads an optional ttl given in seconds.
func parseTTL(secs int64) time.Duration {
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
