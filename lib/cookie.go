package lib

import (
	"net/http"
	"strings"
)

const (
	AccessCookieName = "access_token"
	CSRFCookieName   = "csrf"
)

func GetCookieValue(key string, r *http.Request) (string, error) {
	cookie, err := r.Cookie(key)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetBearerToken reads the token from an "Authorization: Bearer" header
func GetBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
