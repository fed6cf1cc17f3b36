package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"workshop_server/lib"
	"workshop_server/staging"
	"workshop_server/storage"
	"workshop_server/structs"
	"workshop_server/structs/tables"

	"github.com/MonkyMars/gecho"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultUploadConcurrency = 4
	defaultCommitTimeout     = 2 * time.Minute
)

// CommitRequest hands a staged image set to ImageService.Commit
type CommitRequest struct {
	Parent   structs.ParentRef
	Snapshot staging.Snapshot
	// BaseIDs are the persisted row ids the snapshot was staged from. With
	// CheckConflict set the commit fails with lib.ErrConflict when the stored
	// rows no longer match them.
	BaseIDs       []string
	CheckConflict bool
}

// CommitResult is returned on success. DeleteWarnings is set when some
// objects could not be removed; the commit still counts as successful.
type CommitResult struct {
	Rows           []tables.Image            `json:"rows"`
	Uploaded       []storage.UploadResult    `json:"uploaded"`
	DeleteWarnings *PartialDeleteFailedError `json:"-"`
	Duration       time.Duration             `json:"duration"`
}

// ImageService reconciles a staged image set with the object store and the
// images table, in the order upload, delete, persist.
type ImageService struct {
	logger            *gecho.Logger
	rows              ImageRows
	objects           storage.ObjectStore
	cacheService      *CacheService
	uploadConcurrency int
	commitTimeout     time.Duration
}

func NewImageService(logger *gecho.Logger, cfg *structs.Config, rows ImageRows, objects storage.ObjectStore, cacheService *CacheService) *ImageService {
	concurrency := defaultUploadConcurrency
	timeout := defaultCommitTimeout
	if cfg != nil && cfg.Images != nil {
		if cfg.Images.UploadConcurrency > 0 {
			concurrency = cfg.Images.UploadConcurrency
		}
		if cfg.Images.CommitTimeout > 0 {
			timeout = cfg.Images.CommitTimeout
		}
	}
	return &ImageService{
		logger:            logger,
		rows:              rows,
		objects:           objects,
		cacheService:      cacheService,
		uploadConcurrency: concurrency,
		commitTimeout:     timeout,
	}
}

// ListImages returns the persisted rows of a parent, read through the cache
func (is *ImageService) ListImages(ctx context.Context, parent structs.ParentRef) ([]tables.Image, error) {
	if err := parent.Validate(); err != nil {
		return nil, err
	}

	if cached, err := is.cacheService.GetImageList(parent); err == nil && cached != nil {
		return cached, nil
	}

	rows, err := is.rows.ListImageRows(ctx, parent)
	if err != nil {
		is.logger.Error("Failed to list images", gecho.Field("parent", parent.String()), gecho.Field("error", err))
		return nil, err
	}

	if len(rows) == 0 {
		exists, err := is.rows.ParentExists(ctx, parent)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%s: %w", parent, lib.ErrNotFound)
		}
	}

	if err := is.cacheService.SetImageList(parent, rows); err != nil {
		is.logger.Warn("Failed to cache images", gecho.Field("parent", parent.String()), gecho.Field("error", err))
	}

	return rows, nil
}

// Commit converges storage to the snapshot. Errors are *UploadFailedError
// (nothing changed), *PersistFailedError (uploaded but not saved) or a plain
// error for invalid input and conflicts detected before any upload.
func (is *ImageService) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	start := time.Now()

	if err := req.Parent.Validate(); err != nil {
		return nil, err
	}
	if err := validateSnapshot(req.Snapshot); err != nil {
		return nil, err
	}

	expectedIDs, err := parseIDs(req.BaseIDs)
	if err != nil {
		return nil, err
	}

	// fail fast before touching the object store
	if req.CheckConflict {
		current, err := is.rows.ListImageRows(ctx, req.Parent)
		if err != nil {
			return nil, fmt.Errorf("failed to load current images: %w", err)
		}
		if !sameIDs(current, expectedIDs) {
			return nil, fmt.Errorf("images of %s changed since the edit started: %w", req.Parent, lib.ErrConflict)
		}
	}

	// Past this point a dropped client must not leave deleted objects behind
	// rows that still reference them, so the rest runs on its own deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), is.commitTimeout)
	defer cancel()

	uploaded, err := is.uploadPhase(ctx, req.Snapshot)
	if err != nil {
		return nil, err
	}

	finalKeys := make(map[string]bool, len(req.Snapshot.Visible))
	for _, img := range req.Snapshot.Visible {
		if img.Origin == staging.OriginNew {
			finalKeys[uploaded[img.ID].StorageKey] = true
		} else {
			finalKeys[img.StorageKey] = true
		}
	}

	deleteWarnings := is.deletePhase(ctx, req.Parent, req.Snapshot.PendingDeleteKeys, finalKeys)

	rows := buildRows(req.Snapshot, uploaded)

	var persisted []tables.Image
	if req.CheckConflict {
		persisted, err = is.rows.ReplaceImageRowsIfUnchanged(ctx, req.Parent, rows, expectedIDs)
	} else {
		persisted, err = is.rows.ReplaceImageRows(ctx, req.Parent, rows)
	}
	if err != nil {
		keys := uploadedKeys(req.Snapshot, uploaded)
		is.logger.Error("Failed to persist images after upload",
			gecho.Field("parent", req.Parent.String()),
			gecho.Field("uploaded", keys),
			gecho.Field("error", err),
		)
		return nil, &PersistFailedError{Uploaded: keys, Err: err}
	}

	if err := is.cacheService.InvalidateImageList(req.Parent); err != nil {
		is.logger.Warn("Failed to invalidate cached images",
			gecho.Field("parent", req.Parent.String()),
			gecho.Field("error", err),
		)
	}

	result := &CommitResult{
		Rows:           persisted,
		DeleteWarnings: deleteWarnings,
		Duration:       time.Since(start),
	}
	for _, img := range req.Snapshot.Visible {
		if res, ok := uploaded[img.ID]; ok {
			result.Uploaded = append(result.Uploaded, res)
		}
	}

	is.logger.Info("Committed images",
		gecho.Field("parent", req.Parent.String()),
		gecho.Field("rows", len(persisted)),
		gecho.Field("uploaded", len(result.Uploaded)),
		gecho.Field("deleted", len(req.Snapshot.PendingDeleteKeys)),
		gecho.Field("duration", result.Duration),
	)

	return result, nil
}

// uploadPhase uploads every new image with bounded concurrency. On any
// failure the objects this call created are removed again and nothing else
// happens.
func (is *ImageService) uploadPhase(ctx context.Context, snap staging.Snapshot) (map[string]storage.UploadResult, error) {
	uploaded := make(map[string]storage.UploadResult)
	compensator := NewCompensator(is.logger)

	var mu sync.Mutex
	var failures []FileFailure

	var g errgroup.Group
	g.SetLimit(is.uploadConcurrency)

	for _, img := range snap.Visible {
		if img.Origin != staging.OriginNew {
			continue
		}

		g.Go(func() error {
			res, err := is.uploadOne(ctx, img)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				is.logger.Warn("Image upload failed",
					gecho.Field("file", img.FileName),
					gecho.Field("image_id", img.ID),
					gecho.Field("error", err),
				)
				failures = append(failures, FileFailure{ImageID: img.ID, FileName: img.FileName, Reason: err.Error()})
				return nil
			}

			uploaded[img.ID] = res
			if res.Created {
				key := res.StorageKey
				compensator.Push("delete "+key, func(ctx context.Context) error {
					return is.objects.Delete(ctx, key)
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		compensator.Discard()
		return uploaded, nil
	}

	if err := compensator.Run(ctx); err != nil {
		is.logger.Warn("Failed to clean up uploads of an aborted commit", gecho.Field("error", err))
	}

	order := make(map[string]int, len(snap.Visible))
	for _, img := range snap.Visible {
		order[img.ID] = img.SortOrder
	}
	slices.SortFunc(failures, func(a, b FileFailure) int { return order[a.ImageID] - order[b.ImageID] })

	return nil, &UploadFailedError{Failures: failures}
}

func (is *ImageService) uploadOne(ctx context.Context, img staging.StagedImage) (storage.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.UploadResult{}, err
	}
	if img.Blob == nil {
		return storage.UploadResult{}, errors.New("no staged content")
	}
	data, err := img.Blob.Bytes()
	if err != nil {
		return storage.UploadResult{}, err
	}

	return is.objects.Upload(ctx, storage.UploadRequest{
		Name:        img.FileName,
		ContentType: img.ContentType,
		Data:        data,
	})
}

// deletePhase removes the objects of deleted images. Failures are logged and
// reported, never fatal. Keys that the final set or another parent still
// references are kept.
func (is *ImageService) deletePhase(ctx context.Context, parent structs.ParentRef, pending []string, finalKeys map[string]bool) *PartialDeleteFailedError {
	var candidates []string
	for _, key := range pending {
		if key == "" || finalKeys[key] || slices.Contains(candidates, key) {
			continue
		}
		candidates = append(candidates, key)
	}
	if len(candidates) == 0 {
		return nil
	}

	shared, err := is.rows.KeysReferencedElsewhere(ctx, parent, candidates)
	if err != nil {
		is.logger.Warn("Skipping object deletes, shared key lookup failed", gecho.Field("error", err))
		return &PartialDeleteFailedError{Keys: candidates}
	}

	var failed []string
	for _, key := range candidates {
		if shared[key] {
			is.logger.Debug("Keeping object referenced by another parent", gecho.Field("key", key))
			continue
		}

		err := is.objects.Delete(ctx, key)
		if err == nil || errors.Is(err, storage.ErrObjectNotFound) {
			continue
		}

		is.logger.Warn("Failed to delete object, leaving it orphaned",
			gecho.Field("key", key),
			gecho.Field("parent", parent.String()),
			gecho.Field("error", err),
		)
		failed = append(failed, key)
	}

	if len(failed) == 0 {
		return nil
	}
	return &PartialDeleteFailedError{Keys: failed}
}

func buildRows(snap staging.Snapshot, uploaded map[string]storage.UploadResult) []tables.Image {
	rows := make([]tables.Image, 0, len(snap.Visible))
	for _, img := range snap.Visible {
		row := tables.Image{
			IsPrimary: img.IsPrimary,
			SortOrder: img.SortOrder,
		}

		if img.Origin == staging.OriginNew {
			res := uploaded[img.ID]
			row.ID = uuid.New()
			row.StorageKey = res.StorageKey
			row.URL = res.PublicURL
		} else {
			if id, err := uuid.Parse(img.ID); err == nil {
				row.ID = id
			}
			row.StorageKey = img.StorageKey
			row.URL = img.URL
		}

		rows = append(rows, row)
	}
	return rows
}

func uploadedKeys(snap staging.Snapshot, uploaded map[string]storage.UploadResult) []string {
	keys := make([]string, 0, len(uploaded))
	for _, img := range snap.Visible {
		if res, ok := uploaded[img.ID]; ok {
			keys = append(keys, res.StorageKey)
		}
	}
	return keys
}

// validateSnapshot guards the persist step against a malformed hand-off
func validateSnapshot(snap staging.Snapshot) error {
	primaries := 0
	for i, img := range snap.Visible {
		switch img.Origin {
		case staging.OriginNew:
			if img.Blob == nil {
				return fmt.Errorf("%w: new image %s has no content", ErrInvalidSnapshot, img.ID)
			}
		case staging.OriginPersisted:
			if img.StorageKey == "" {
				return fmt.Errorf("%w: image %s has no storage key", ErrInvalidSnapshot, img.ID)
			}
		default:
			return fmt.Errorf("%w: image %s is %s but visible", ErrInvalidSnapshot, img.ID, img.Origin)
		}
		if img.SortOrder != i {
			return fmt.Errorf("%w: sort order %d at position %d", ErrInvalidSnapshot, img.SortOrder, i)
		}
		if img.IsPrimary {
			primaries++
		}
	}
	if len(snap.Visible) > 0 && primaries != 1 {
		return fmt.Errorf("%w: %d primary images", ErrInvalidSnapshot, primaries)
	}
	return nil
}

func parseIDs(ids []string) ([]uuid.UUID, error) {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base id %q", ErrInvalidSnapshot, id)
		}
		parsed = append(parsed, u)
	}
	return parsed, nil
}
