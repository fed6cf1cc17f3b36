package lib

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const CSRFHeaderName = "X-CSRF-Token"

// GenerateCSRFToken returns 32 random bytes, URL-safe base64 encoded
func GenerateCSRFToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate CSRF token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// SetCSRFCookie stores the token in a cookie the editor's JavaScript can read
// back into the X-CSRF-Token header
func SetCSRFCookie(val string, expiry time.Time, secure bool, w http.ResponseWriter) {
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    val,
		Path:     "/",
		Expires:  expiry,
		HttpOnly: false,
		Secure:   secure,
		SameSite: sameSite,
	})
}

// CheckCSRF verifies the double submit pair of cookie and header
func CheckCSRF(r *http.Request) error {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return errors.New("csrf missing")
	}

	token := r.Header.Get(CSRFHeaderName)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
		return errors.New("invalid csrf token")
	}
	return nil
}
