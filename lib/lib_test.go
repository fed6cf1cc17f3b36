package lib

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPgError(t *testing.T) {
	assert.ErrorIs(t, MapPgError(&pgconn.PgError{Code: "23505"}), ErrConflict)
	assert.ErrorIs(t, MapPgError(&pgconn.PgError{Code: "23503"}), ErrNotFound)

	other := errors.New("boom")
	assert.Equal(t, other, MapPgError(other))
	assert.NoError(t, MapPgError(nil))
}

func TestIssueAndParseToken(t *testing.T) {
	sub := uuid.New()
	token, err := IssueAccessToken(sub, "admin@example.com", "admin", "secret", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, sub, claims.Sub)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "admin@example.com", claims.Email)

	_, err = ParseToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := IssueAccessToken(uuid.New(), "", "admin", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestExtractClaimsPrefersBearer(t *testing.T) {
	token, err := IssueAccessToken(uuid.New(), "", "admin", "secret", time.Minute)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "garbage"})

	claims, err := ExtractClaims(r, "secret")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: token})
	_, err = ExtractClaims(r, "secret")
	require.NoError(t, err)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = ExtractClaims(r, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestThumbnailFitsBox(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		src.Set(x, 10, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, err := Thumbnail(buf.Bytes(), 100, 80)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	_, err = Thumbnail([]byte("not an image"), 100, 80)
	assert.Error(t, err)
}

type positionBody struct {
	Index *int `json:"index" validate:"required,gte=0"`
}

func TestExtractAndValidateBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"index": 2}`))
	body, err := ExtractAndValidateBody[positionBody](r)
	require.NoError(t, err)
	assert.Equal(t, 2, *body.Index)

	r = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{}`))
	_, err = ExtractAndValidateBody[positionBody](r)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "index", ve.Errors[0].Field)
	assert.Equal(t, "is required", ve.Errors[0].Message)
}

func TestExtractAndValidateBodyReportsDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		field   string
		message string
	}{
		{"empty", ``, "body", "is required"},
		{"not json", `{"index": `, "body", "must be valid JSON"},
		{"wrong type", `{"index": "first"}`, "index", "must be a whole number"},
		{"unknown field", `{"index": 1, "position": 2}`, "position", "is not allowed"},
		{"trailing object", `{"index": 1} {"index": 2}`, "body", "must contain a single JSON object"},
		{"negative", `{"index": -1}`, "index", "must be 0 or more"},
		{"array", `[1]`, "body", "must be a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tt.body))
			_, err := ExtractAndValidateBody[positionBody](r)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.Len(t, ve.Errors, 1)
			assert.Equal(t, tt.field, ve.Errors[0].Field)
			assert.Equal(t, tt.message, ve.Errors[0].Message)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestExtractAndValidateBodyKeepsMaxBytesError(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"index": 123456789}`))
	r.Body = http.MaxBytesReader(rec, r.Body, 4)

	_, err := ExtractAndValidateBody[positionBody](r)
	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, err, &maxErr)
}

func TestCheckCSRF(t *testing.T) {
	token, err := GenerateCSRFToken()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.EqualError(t, CheckCSRF(r), "csrf missing")

	r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	assert.EqualError(t, CheckCSRF(r), "invalid csrf token")

	r.Header.Set(CSRFHeaderName, token[:len(token)-1]+"x")
	assert.EqualError(t, CheckCSRF(r), "invalid csrf token")

	r.Header.Set(CSRFHeaderName, token)
	assert.NoError(t, CheckCSRF(r))
}
