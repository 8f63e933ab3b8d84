// Package httpapi holds the JSON response helpers and caller identity
// plumbing shared by the HTTP services.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fjod/amasampo/pkg/cart"
	"github.com/go-chi/chi/v5"
)

// UserIDHeader carries the authenticated user from the gateway to the services.
const UserIDHeader = "X-User-ID"

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type userKey struct{}

// RequireUser rejects requests without a user id and stores it in the context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			RespondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the user set by RequireUser, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// Int64Param parses a positive integer URL parameter.
func Int64Param(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// DecodeJSON reads a request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func RespondError(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// RespondValidation writes a 400 for a *cart.ValidationError and reports
// whether err was one.
func RespondValidation(w http.ResponseWriter, err error) bool {
	var verr *cart.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	RespondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   verr.Error(),
		Code:    "invalid_argument",
		Details: verr.Field,
	})
	return true
}

// Health is the liveness endpoint of every service.
func Health(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
