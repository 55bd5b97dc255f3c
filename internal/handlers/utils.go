package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/auth"
)

// authCookieName is the cookie carrying the session JWT.
const authCookieName = "auth_token"

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	for _, part := range strings.Split(cookieHeader, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == cookieName {
			return value
		}
	}
	return ""
}

// requestToken returns the JWT from the auth cookie or a Bearer Authorization header.
func requestToken(r *http.Request) string {
	if token := extractCookieToken(r.Header.Get("Cookie"), authCookieName); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// authenticate resolves the caller. present reports whether any token was sent at all.
func authenticate(r *http.Request) (userID uuid.UUID, present bool, err error) {
	token := requestToken(r)
	if token == "" {
		return uuid.Nil, false, nil
	}
	id, err := auth.UserIDFromToken(token)
	return id, true, err
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fieldString reads a string field of an inbound packet. Numbers are accepted
// and formatted, since clients may send numeric answers unquoted.
func fieldString(packet map[string]interface{}, key string) string {
	switch v := packet[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}
