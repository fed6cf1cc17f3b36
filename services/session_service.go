package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"workshop_server/lib"
	"workshop_server/staging"
	"workshop_server/structs"
	"workshop_server/structs/tables"

	"github.com/MonkyMars/gecho"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrSessionNotFound = errors.New("edit session not found")
	ErrSessionExpired  = fmt.Errorf("%w: expired", ErrSessionNotFound)
)

// EditSession is one admin's staged edit of an image set. All operations on
// a session are serialised by its mutex, a commit included.
type EditSession struct {
	ID     string
	Parent structs.ParentRef

	mu       sync.Mutex
	store    *staging.Store
	lastUsed time.Time
	closed   bool
}

// close releases every staged blob; the session is unusable afterwards
func (s *EditSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.store.Release()
}

// SessionView is what callers get to render a session
type SessionView struct {
	ID                 string                `json:"id"`
	Parent             structs.ParentRef     `json:"parent"`
	Images             []staging.StagedImage `json:"images"`
	PendingDeleteCount int                   `json:"pending_delete_count"`
	MaxImages          int                   `json:"max_images"`
	ExpiresAt          time.Time             `json:"expires_at"`
}

type AddFilesResult struct {
	Accepted   []staging.StagedImage `json:"accepted"`
	Rejections []staging.Rejection   `json:"rejections"`
	Session    *SessionView          `json:"session"`
}

type CommitOutcome struct {
	Result  *CommitResult `json:"result"`
	Session *SessionView  `json:"session"`
}

// Preview is either a JPEG thumbnail of staged bytes or the public URL of a
// stored image
type Preview struct {
	ContentType string
	Data        []byte
	RedirectURL string
}

// EditSessionService keeps the staging stores of open edit sessions. The
// registry is a bounded LRU; evicted, expired and discarded sessions have
// their blobs released.
type EditSessionService struct {
	logger         *gecho.Logger
	imageService   *ImageService
	rows           ImageRows
	sessions       *lru.Cache[string, *EditSession]
	constraints    staging.Constraints
	ttl            time.Duration
	previewSize    int
	previewQuality int
	now            func() time.Time
}

func NewEditSessionService(logger *gecho.Logger, cfg *structs.Config, imageService *ImageService, rows ImageRows) (*EditSessionService, error) {
	ss := &EditSessionService{
		logger:       logger,
		imageService: imageService,
		rows:         rows,
		constraints: staging.Constraints{
			MaxSizeBytes:      cfg.Images.MaxSizeBytes,
			AllowedMimePrefix: staging.DefaultAllowedMimePrefix,
			MaxTotalCount:     cfg.Images.MaxCount,
		},
		ttl:            cfg.Images.SessionTTL,
		previewSize:    cfg.Images.PreviewSize,
		previewQuality: cfg.Images.PreviewQuality,
		now:            time.Now,
	}

	maxSessions := cfg.Images.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 64
	}

	sessions, err := lru.NewWithEvict(maxSessions, func(id string, sess *EditSession) {
		sess.close()
		logger.Debug("Edit session released", gecho.Field("session_id", id), gecho.Field("parent", sess.Parent.String()))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}
	ss.sessions = sessions

	return ss, nil
}

// Open seeds a new session from the persisted rows of parent
func (ss *EditSessionService) Open(ctx context.Context, parent structs.ParentRef) (*SessionView, error) {
	if err := parent.Validate(); err != nil {
		return nil, err
	}

	exists, err := ss.rows.ParentExists(ctx, parent)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", parent, lib.ErrNotFound)
	}

	rows, err := ss.rows.ListImageRows(ctx, parent)
	if err != nil {
		return nil, err
	}

	store := staging.NewStore(ss.constraints)
	store.Initialize(toPersisted(rows))

	sess := &EditSession{
		ID:       uuid.NewString(),
		Parent:   parent,
		store:    store,
		lastUsed: ss.now(),
	}
	ss.sessions.Add(sess.ID, sess)

	ss.logger.Info("Edit session opened",
		gecho.Field("session_id", sess.ID),
		gecho.Field("parent", parent.String()),
		gecho.Field("images", len(rows)),
	)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return ss.view(sess), nil
}

func (ss *EditSessionService) View(sessionID string) (*SessionView, error) {
	var view *SessionView
	err := ss.withSession(sessionID, func(sess *EditSession) error {
		view = ss.view(sess)
		return nil
	})
	return view, err
}

func (ss *EditSessionService) AddFiles(sessionID string, files []staging.FileInput) (*AddFilesResult, error) {
	var result *AddFilesResult
	err := ss.mutate(sessionID, func(sess *EditSession) error {
		accepted, rejections := sess.store.AddFiles(files)
		if len(rejections) > 0 {
			ss.logger.Debug("Files rejected", gecho.Field("session_id", sessionID), gecho.Field("rejections", len(rejections)))
		}
		if accepted == nil {
			accepted = []staging.StagedImage{}
		}
		if rejections == nil {
			rejections = []staging.Rejection{}
		}
		result = &AddFilesResult{Accepted: accepted, Rejections: rejections, Session: ss.view(sess)}
		return nil
	})
	return result, err
}

func (ss *EditSessionService) Remove(sessionID, imageID string) (*SessionView, error) {
	return ss.mutateView(sessionID, func(store *staging.Store) error { return store.Remove(imageID) })
}

func (ss *EditSessionService) Reorder(sessionID, imageID string, toIndex int) (*SessionView, error) {
	return ss.mutateView(sessionID, func(store *staging.Store) error { return store.Reorder(imageID, toIndex) })
}

func (ss *EditSessionService) SetPrimary(sessionID, imageID string) (*SessionView, error) {
	return ss.mutateView(sessionID, func(store *staging.Store) error { return store.SetPrimary(imageID) })
}

// Preview renders a thumbnail of a staged file, or points at the stored image
func (ss *EditSessionService) Preview(sessionID, imageID string) (*Preview, error) {
	var img staging.StagedImage
	err := ss.withSession(sessionID, func(sess *EditSession) error {
		var ok bool
		img, ok = sess.store.Image(imageID)
		if !ok {
			return fmt.Errorf("%w: %s", staging.ErrImageNotFound, imageID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if img.Origin != staging.OriginNew {
		return &Preview{RedirectURL: img.URL}, nil
	}

	// decode outside the session lock, the blob stays readable unless released
	data, err := img.Blob.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", staging.ErrImageNotFound, imageID)
	}
	thumb, err := lib.Thumbnail(data, ss.previewSize, ss.previewQuality)
	if err != nil {
		return nil, err
	}
	return &Preview{ContentType: "image/jpeg", Data: thumb}, nil
}

// Commit reconciles the session with storage. On success the session is
// re-seeded from the persisted rows; on failure its staged state is kept so
// the admin can fix and retry.
func (ss *EditSessionService) Commit(ctx context.Context, sessionID string) (*CommitOutcome, error) {
	var outcome *CommitOutcome
	err := ss.withSession(sessionID, func(sess *EditSession) error {
		result, err := ss.imageService.Commit(ctx, CommitRequest{
			Parent:        sess.Parent,
			Snapshot:      sess.store.Snapshot(),
			BaseIDs:       sess.store.BaseIDs(),
			CheckConflict: true,
		})
		if err != nil {
			return err
		}

		sess.store.Initialize(toPersisted(result.Rows))
		outcome = &CommitOutcome{Result: result, Session: ss.view(sess)}
		return nil
	})
	return outcome, err
}

// Discard drops a session without touching storage
func (ss *EditSessionService) Discard(sessionID string) error {
	if !ss.sessions.Remove(sessionID) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	ss.logger.Debug("Edit session discarded", gecho.Field("session_id", sessionID))
	return nil
}

// PruneExpired releases every session idle for longer than the TTL
func (ss *EditSessionService) PruneExpired() int {
	pruned := 0
	for _, id := range ss.sessions.Keys() {
		sess, ok := ss.sessions.Peek(id)
		if !ok {
			continue
		}
		sess.mu.Lock()
		expired := ss.expired(sess)
		sess.mu.Unlock()

		if expired && ss.sessions.Remove(id) {
			pruned++
		}
	}
	return pruned
}

// RunJanitor prunes expired sessions every interval until ctx is done
func (ss *EditSessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ss.PruneExpired(); n > 0 {
				ss.logger.Info("Pruned expired edit sessions", gecho.Field("count", n))
			}
		}
	}
}

// Close releases all sessions
func (ss *EditSessionService) Close() {
	ss.sessions.Purge()
}

func (ss *EditSessionService) Len() int {
	return ss.sessions.Len()
}

// withSession runs fn with the session locked and its idle timer refreshed
func (ss *EditSessionService) withSession(sessionID string, fn func(sess *EditSession) error) error {
	sess, ok := ss.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if ss.expired(sess) {
		sess.mu.Unlock()
		ss.sessions.Remove(sessionID)
		return fmt.Errorf("%w: %s", ErrSessionExpired, sessionID)
	}
	defer sess.mu.Unlock()

	sess.lastUsed = ss.now()
	return fn(sess)
}

// mutate is withSession plus an invariant check of the staging store
func (ss *EditSessionService) mutate(sessionID string, fn func(sess *EditSession) error) error {
	return ss.withSession(sessionID, func(sess *EditSession) error {
		if err := fn(sess); err != nil {
			return err
		}
		if err := sess.store.CheckInvariants(); err != nil {
			ss.logger.Error("Staging store invariant violated", gecho.Field("session_id", sessionID), gecho.Field("error", err))
			return err
		}
		return nil
	})
}

func (ss *EditSessionService) mutateView(sessionID string, fn func(store *staging.Store) error) (*SessionView, error) {
	var view *SessionView
	err := ss.mutate(sessionID, func(sess *EditSession) error {
		if err := fn(sess.store); err != nil {
			return err
		}
		view = ss.view(sess)
		return nil
	})
	return view, err
}

func (ss *EditSessionService) expired(sess *EditSession) bool {
	return ss.ttl > 0 && ss.now().Sub(sess.lastUsed) > ss.ttl
}

// view must be called with the session locked
func (ss *EditSessionService) view(sess *EditSession) *SessionView {
	snap := sess.store.Snapshot()
	view := &SessionView{
		ID:                 sess.ID,
		Parent:             sess.Parent,
		Images:             snap.Visible,
		PendingDeleteCount: len(snap.PendingDeleteKeys),
		MaxImages:          sess.store.Constraints().MaxTotalCount,
	}
	if ss.ttl > 0 {
		view.ExpiresAt = sess.lastUsed.Add(ss.ttl)
	}
	return view
}

func toPersisted(rows []tables.Image) []staging.PersistedImage {
	seed := make([]staging.PersistedImage, 0, len(rows))
	for _, row := range rows {
		seed = append(seed, staging.PersistedImage{
			ID:         row.ID.String(),
			StorageKey: row.StorageKey,
			URL:        row.URL,
			IsPrimary:  row.IsPrimary,
			SortOrder:  row.SortOrder,
		})
	}
	return seed
}
