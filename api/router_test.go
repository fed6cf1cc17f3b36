package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"
	"workshop_server/config"
	"workshop_server/database"
	"workshop_server/lib"
	"workshop_server/services"
	"workshop_server/storage"
	"workshop_server/structs/tables"

	"github.com/MonkyMars/gecho"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

const testSecret = "router-test-secret"

type testApp struct {
	t       *testing.T
	handler http.Handler
	db      *database.DB
	objects *storage.DiskStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := config.Load()
	cfg.Cache.Enabled = false
	cfg.Auth.AccessTokenSecret = testSecret
	cfg.Images.UploadConcurrency = 2

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := database.Wrap(bun.NewDB(sqldb, sqlitedialect.New()), nil)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	objects := storage.NewDiskStore(afero.NewMemMapFs(), cfg.Storage)
	logger := gecho.NewDefaultLogger()

	sm, err := services.NewServiceManager(logger, cfg, db, objects)
	require.NoError(t, err)
	t.Cleanup(sm.SessionService.Close)

	return &testApp{
		t:       t,
		handler: App(cfg, logger, logger, sm, objects.Handler()),
		db:      db,
		objects: objects,
	}
}

func (a *testApp) insertProduct() uuid.UUID {
	a.t.Helper()
	now := time.Now().UTC()
	product := &tables.Product{
		ID:          uuid.New(),
		Name:        "Seat cover",
		SKU:         "SEA-" + uuid.NewString()[:6],
		Price:       4900,
		Description: "Waterproof seat cover",
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := a.db.NewInsert().Model(product).Exec(context.Background())
	require.NoError(a.t, err)
	return product.ID
}

func (a *testApp) token(role string) string {
	a.t.Helper()
	token, err := lib.IssueAccessToken(uuid.New(), role+"@workshop.test", role, testSecret, time.Hour)
	require.NoError(a.t, err)
	return token
}

func (a *testApp) do(req *http.Request, role string) *httptest.ResponseRecorder {
	a.t.Helper()
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(role))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Data
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := range 40 {
		for y := range 20 {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type part struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, url string, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+p.name+`"`)
		header.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type sessionData struct {
	ID     string `json:"id"`
	Images []struct {
		ID        string `json:"id"`
		Origin    string `json:"origin"`
		IsPrimary bool   `json:"is_primary"`
	} `json:"images"`
}

func (a *testApp) openSession(productID uuid.UUID) sessionData {
	a.t.Helper()
	rec := a.do(httptest.NewRequest(http.MethodPost, "/admin/products/"+productID.String()+"/image-sessions", nil), "admin")
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData[sessionData](a.t, rec)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	app := newTestApp(t)
	productID := app.insertProduct()
	url := "/admin/products/" + productID.String() + "/image-sessions"

	rec := app.do(httptest.NewRequest(http.MethodPost, url, nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodPost, url, nil), "customer")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodPost, url, nil), "admin")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCookieAuthNeedsCSRFToken(t *testing.T) {
	app := newTestApp(t)
	productID := app.insertProduct()
	cookie := &http.Cookie{Name: lib.AccessCookieName, Value: app.token("admin")}

	req := httptest.NewRequest(http.MethodPost, "/admin/products/"+productID.String()+"/image-sessions", nil)
	req.AddCookie(cookie)
	rec := app.do(req, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/csrf", nil)
	req.AddCookie(cookie)
	rec = app.do(req, "")
	require.Equal(t, http.StatusOK, rec.Code)
	csrf := decodeData[map[string]string](t, rec)["csrf_token"]
	require.NotEmpty(t, csrf)

	req = httptest.NewRequest(http.MethodPost, "/admin/products/"+productID.String()+"/image-sessions", nil)
	req.AddCookie(cookie)
	req.AddCookie(&http.Cookie{Name: lib.CSRFCookieName, Value: csrf})
	req.Header.Set("X-CSRF-Token", csrf)
	rec = app.do(req, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestImageSessionLifecycle(t *testing.T) {
	app := newTestApp(t)
	productID := app.insertProduct()
	session := app.openSession(productID)
	assert.Empty(t, session.Images)
	base := "/admin/image-sessions/" + session.ID

	upload := multipartRequest(t, base+"/files",
		part{name: "front.png", contentType: "image/png", data: pngBytes(t, 10)},
		part{name: "side.png", contentType: "application/octet-stream", data: pngBytes(t, 90)},
		part{name: "notes.txt", contentType: "text/plain", data: []byte("not an image")},
	)
	rec := app.do(upload, "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	added := decodeData[struct {
		Accepted   []struct{ ID string } `json:"accepted"`
		Rejections []struct {
			FileName string `json:"file_name"`
			Reason   string `json:"reason"`
		} `json:"rejections"`
	}](t, rec)
	require.Len(t, added.Accepted, 2)
	require.Len(t, added.Rejections, 1)
	assert.Equal(t, "invalid_type", added.Rejections[0].Reason)

	// preview of a staged file is a thumbnail
	rec = app.do(httptest.NewRequest(http.MethodGet, base+"/images/"+added.Accepted[1].ID+"/preview", nil), "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodPut, base+"/images/"+added.Accepted[1].ID+"/primary", nil)
	rec = app.do(req, "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, base+"/images/"+added.Accepted[1].ID+"/position", bytes.NewBufferString(`{"to_index":0}`))
	rec = app.do(req, "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decodeData[sessionData](t, rec)
	require.Len(t, view.Images, 2)
	assert.Equal(t, added.Accepted[1].ID, view.Images[0].ID)

	rec = app.do(httptest.NewRequest(http.MethodPost, base+"/commit", nil), "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(httptest.NewRequest(http.MethodGet, "/products/"+productID.String()+"/images", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeData[struct {
		Images []tables.Image `json:"images"`
		Count  int            `json:"count"`
	}](t, rec)
	require.Equal(t, 2, listed.Count)
	assert.True(t, listed.Images[0].IsPrimary)
	assert.Equal(t, 0, listed.Images[0].SortOrder)

	// stored objects are served from the local CDN
	rec = app.do(httptest.NewRequest(http.MethodGet, "/cdn/"+listed.Images[0].StorageKey, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())

	// after the commit a persisted image previews by redirect
	rec = app.do(httptest.NewRequest(http.MethodGet, base+"/images/"+listed.Images[0].ID.String()+"/preview", nil), "admin")
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodDelete, base, nil), "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(httptest.NewRequest(http.MethodGet, base, nil), "admin")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommitConflictReturns409(t *testing.T) {
	app := newTestApp(t)
	productID := app.insertProduct()

	first := app.openSession(productID)
	second := app.openSession(productID)

	rec := app.do(multipartRequest(t, "/admin/image-sessions/"+second.ID+"/files",
		part{name: "a.png", contentType: "image/png", data: pngBytes(t, 1)},
	), "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(httptest.NewRequest(http.MethodPost, "/admin/image-sessions/"+second.ID+"/commit", nil), "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(multipartRequest(t, "/admin/image-sessions/"+first.ID+"/files",
		part{name: "b.png", contentType: "image/png", data: pngBytes(t, 2)},
	), "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(httptest.NewRequest(http.MethodPost, "/admin/image-sessions/"+first.ID+"/commit", nil), "admin")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRequestErrors(t *testing.T) {
	app := newTestApp(t)
	productID := app.insertProduct()
	session := app.openSession(productID)

	tests := []struct {
		name   string
		req    *http.Request
		role   string
		status int
	}{
		{"unknown kind", httptest.NewRequest(http.MethodGet, "/gadgets/"+productID.String()+"/images", nil), "", http.StatusBadRequest},
		{"bad parent id", httptest.NewRequest(http.MethodGet, "/products/not-a-uuid/images", nil), "", http.StatusBadRequest},
		{"unknown parent", httptest.NewRequest(http.MethodGet, "/services/"+uuid.NewString()+"/images", nil), "", http.StatusNotFound},
		{"open for unknown parent", httptest.NewRequest(http.MethodPost, "/admin/products/"+uuid.NewString()+"/image-sessions", nil), "admin", http.StatusNotFound},
		{"unknown session", httptest.NewRequest(http.MethodGet, "/admin/image-sessions/"+uuid.NewString(), nil), "admin", http.StatusNotFound},
		{"unknown image", httptest.NewRequest(http.MethodPut, "/admin/image-sessions/"+session.ID+"/images/nope/primary", nil), "admin", http.StatusNotFound},
		{"negative index", httptest.NewRequest(http.MethodPut, "/admin/image-sessions/"+session.ID+"/images/nope/position", bytes.NewBufferString(`{"to_index":-1}`)), "admin", http.StatusBadRequest},
		{"malformed position body", httptest.NewRequest(http.MethodPut, "/admin/image-sessions/"+session.ID+"/images/nope/position", bytes.NewBufferString(`{"to_index":`)), "admin", http.StatusBadRequest},
		{"no files", multipartRequest(t, "/admin/image-sessions/"+session.ID+"/files"), "admin", http.StatusBadRequest},
		{"unknown route", httptest.NewRequest(http.MethodGet, "/nothing/here/at/all", nil), "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.req, tt.role)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/health/server", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/health/database", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/health/cache", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "workshop_http_requests_total")
	assert.Contains(t, rec.Body.String(), "workshop_images_commit_duration_seconds")
}

