package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	"workshop_server/database"
	"workshop_server/staging"
	"workshop_server/storage"
	"workshop_server/structs"
	"workshop_server/structs/tables"

	"github.com/MonkyMars/gecho"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

func testConfig() *structs.Config {
	return &structs.Config{
		Images: &structs.ImagesConfig{
			MaxSizeBytes:      5 << 20,
			MaxCount:          10,
			UploadConcurrency: 2,
			MaxSessions:       4,
			SessionTTL:        time.Hour,
			PreviewSize:       64,
			PreviewQuality:    80,
		},
		Storage: &structs.StorageConfig{
			PublicBaseURL: "https://cdn.test/cdn",
			KeyPrefix:     "images",
		},
	}
}

func testLogger() *gecho.Logger {
	return gecho.NewDefaultLogger()
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// one connection keeps the in-memory database alive for the whole test
	sqldb.SetMaxOpenConns(1)

	db := database.Wrap(bun.NewDB(sqldb, sqlitedialect.New()), nil)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func insertProduct(t *testing.T, db *database.DB) structs.ParentRef {
	t.Helper()

	now := time.Now().UTC()
	product := &tables.Product{
		ID:          uuid.New(),
		Name:        "Roof box",
		SKU:         "ROO-" + uuid.NewString()[:6],
		Price:       19900,
		Description: "Aerodynamic roof box",
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := db.NewInsert().Model(product).Exec(context.Background())
	require.NoError(t, err)

	return structs.ParentRef{Kind: structs.ParentProduct, ID: product.ID}
}

// recordingStore wraps a real DiskStore, records calls and injects failures
type recordingStore struct {
	*storage.DiskStore

	mu          sync.Mutex
	failUploads map[string]bool // by file name
	failDeletes map[string]bool // by storage key
	uploads     []string
	deletes     []string
	inFlight    int
	maxInFlight int
	delay       time.Duration
	onDelete    func(key string)
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		DiskStore:   storage.NewDiskStore(afero.NewMemMapFs(), testConfig().Storage),
		failUploads: map[string]bool{},
		failDeletes: map[string]bool{},
	}
}

func (s *recordingStore) Upload(ctx context.Context, req storage.UploadRequest) (storage.UploadResult, error) {
	s.mu.Lock()
	s.uploads = append(s.uploads, req.Name)
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	fail := s.failUploads[req.Name]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if fail {
		return storage.UploadResult{}, errors.New("cdn rejected the upload")
	}
	return s.DiskStore.Upload(ctx, req)
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, key)
	fail := s.failDeletes[key]
	hook := s.onDelete
	s.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	if fail {
		return errors.New("cdn unavailable")
	}
	return s.DiskStore.Delete(ctx, key)
}

func (s *recordingStore) deleteCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

func (s *recordingStore) uploadCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

func (s *recordingStore) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := s.Exists(key)
	require.NoError(t, err)
	return ok
}

// recordingRows wraps the real repository and can fail the persist step
type recordingRows struct {
	ImageRows

	mu          sync.Mutex
	replaceErr  error
	replaced    [][]tables.Image
	replaceCall int
}

func (r *recordingRows) record(rows []tables.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceCall++
	r.replaced = append(r.replaced, append([]tables.Image(nil), rows...))
	return r.replaceErr
}

func (r *recordingRows) ReplaceImageRows(ctx context.Context, parent structs.ParentRef, rows []tables.Image) ([]tables.Image, error) {
	if err := r.record(rows); err != nil {
		return nil, err
	}
	return r.ImageRows.ReplaceImageRows(ctx, parent, rows)
}

func (r *recordingRows) ReplaceImageRowsIfUnchanged(ctx context.Context, parent structs.ParentRef, rows []tables.Image, expectedIDs []uuid.UUID) ([]tables.Image, error) {
	if err := r.record(rows); err != nil {
		return nil, err
	}
	return r.ImageRows.ReplaceImageRowsIfUnchanged(ctx, parent, rows, expectedIDs)
}

type fixture struct {
	db      *database.DB
	repo    *ImageRepository
	rows    *recordingRows
	objects *recordingStore
	service *ImageService
	parent  structs.ParentRef
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	repo := NewImageRepository(db)
	rows := &recordingRows{ImageRows: repo}
	objects := newRecordingStore()
	cfg := testConfig()

	return &fixture{
		db:      db,
		repo:    repo,
		rows:    rows,
		objects: objects,
		service: NewImageService(testLogger(), cfg, rows, objects, NewCacheService(testLogger(), cfg)),
		parent:  insertProduct(t, db),
	}
}

// seedImages uploads n objects and persists them as the parent's rows; the
// first one is primary
func (f *fixture) seedImages(t *testing.T, n int) []tables.Image {
	t.Helper()
	ctx := context.Background()

	rows := make([]tables.Image, 0, n)
	for i := range n {
		res, err := f.objects.DiskStore.Upload(ctx, storage.UploadRequest{
			Name:        fmt.Sprintf("seed-%d.png", i),
			ContentType: "image/png",
			Data:        []byte(fmt.Sprintf("seed image %d for %s", i, f.parent.ID)),
		})
		require.NoError(t, err)
		rows = append(rows, tables.Image{
			StorageKey: res.StorageKey,
			URL:        res.PublicURL,
			IsPrimary:  i == 0,
			SortOrder:  i,
		})
	}

	persisted, err := f.repo.ReplaceImageRows(ctx, f.parent, rows)
	require.NoError(t, err)
	return persisted
}

// stage seeds a staging store from the parent's current rows
func (f *fixture) stage(t *testing.T) *staging.Store {
	t.Helper()
	rows, err := f.repo.ListImageRows(context.Background(), f.parent)
	require.NoError(t, err)

	store := staging.NewStore(staging.DefaultConstraints())
	store.Initialize(toPersisted(rows))
	return store
}

func (f *fixture) commit(t *testing.T, store *staging.Store) (*CommitResult, error) {
	t.Helper()
	return f.service.Commit(context.Background(), CommitRequest{
		Parent:        f.parent,
		Snapshot:      store.Snapshot(),
		BaseIDs:       store.BaseIDs(),
		CheckConflict: true,
	})
}

func pngFile(name string) staging.FileInput {
	return staging.FileInput{Name: name, ContentType: "image/png", Data: []byte("bytes of " + name)}
}
