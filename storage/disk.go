package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"workshop_server/structs"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// DiskStore is a content-addressed object store on top of an afero filesystem.
// Keys look like <prefix>/<sha256>.<ext>, so uploading the same bytes twice
// yields the same key.
type DiskStore struct {
	fs      afero.Fs
	baseURL string
	prefix  string

	mu sync.Mutex // serialises exists-then-write per process
}

// NewDiskStore serves objects from fs; tests pass afero.NewMemMapFs()
func NewDiskStore(fs afero.Fs, cfg *structs.StorageConfig) *DiskStore {
	return &DiskStore{
		fs:      fs,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		prefix:  strings.Trim(cfg.KeyPrefix, "/"),
	}
}

// NewLocalDiskStore roots the store at cfg.RootDir on the local disk
func NewLocalDiskStore(cfg *structs.StorageConfig) (*DiskStore, error) {
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", cfg.RootDir, err)
	}
	return NewDiskStore(afero.NewBasePathFs(afero.NewOsFs(), cfg.RootDir), cfg), nil
}

func (s *DiskStore) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return UploadResult{}, err
	}
	if len(req.Data) == 0 {
		return UploadResult{}, fmt.Errorf("empty payload for %s", req.Name)
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])
	key := path.Join(s.prefix, hash+extensionFor(req))

	result := UploadResult{
		StorageKey:  key,
		PublicURL:   s.PublicURL(key),
		ContentHash: hash,
		SizeBytes:   int64(len(req.Data)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objectPath := s.objectPath(key)
	exists, err := afero.Exists(s.fs, objectPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	if exists {
		return result, nil
	}

	if err := s.fs.MkdirAll(path.Dir(objectPath), 0o755); err != nil {
		return UploadResult{}, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	// write to a temp file first so a half written object never becomes visible
	tmp, err := afero.TempFile(s.fs, path.Dir(objectPath), ".upload-*")
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(req.Data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return UploadResult{}, fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return UploadResult{}, fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := s.fs.Rename(tmpName, objectPath); err != nil {
		_ = s.fs.Remove(tmpName)
		return UploadResult{}, fmt.Errorf("failed to move %s into place: %w", key, err)
	}

	result.Created = true
	return result, nil
}

func (s *DiskStore) Delete(ctx context.Context, storageKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(storageKey); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.objectPath(storageKey)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, storageKey)
		}
		return fmt.Errorf("failed to delete %s: %w", storageKey, err)
	}
	return nil
}

// Exists reports whether an object is stored under key
func (s *DiskStore) Exists(storageKey string) (bool, error) {
	if err := validateKey(storageKey); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, s.objectPath(storageKey))
}

// objectPath roots keys at the filesystem root so HTTP serving resolves the same paths
func (s *DiskStore) objectPath(storageKey string) string {
	return "/" + storageKey
}

func (s *DiskStore) PublicURL(storageKey string) string {
	return s.baseURL + "/" + storageKey
}

// Handler serves stored objects read-only, mounted under the public base URL
func (s *DiskStore) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(s.fs).Dir("/"))
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.Contains(key, "..") {
		return fmt.Errorf("%w %q", ErrInvalidKey, key)
	}
	return nil
}

func extensionFor(req UploadRequest) string {
	if req.ContentType != "" {
		if m := mimetype.Lookup(req.ContentType); m != nil && m.Extension() != "" {
			return m.Extension()
		}
	}
	return mimetype.Detect(req.Data).Extension()
}

var _ ObjectStore = (*DiskStore)(nil)
