package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/go-chi/chi/v5/middleware"
)

// TokenAuth resolves the bearer token to a user and forwards the user id to
// the services in the X-User-ID header. A client-sent X-User-ID is always
// dropped so callers cannot pick their identity.
func TokenAuth(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(httpapi.UserIDHeader)

			token, ok := bearerToken(r)
			if !ok {
				httpapi.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			userID, ok := tokens[token]
			if !ok {
				httpapi.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			r.Header.Set(httpapi.UserIDHeader, userID)
			next.ServeHTTP(w, r.WithContext(httpapi.WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

// ParseTokens reads "token:user,token:user" pairs.
func ParseTokens(s string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, ":")
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("invalid token pair %q", pair)
		}
		tokens[token] = user
	}
	return tokens, nil
}

// RequestIDMiddleware echoes the request id to the client and forwards it
// to the services. It runs after middleware.RequestID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		r.Header.Set(middleware.RequestIDHeader, requestID)
		w.Header().Set(middleware.RequestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

// MaxBodySize caps request bodies before they are proxied.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > n {
				httpapi.RespondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
