package staging

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"
)

var ErrImageNotFound = errors.New("image not found")

// Origin is the lifecycle tag of a staged image
type Origin string

const (
	OriginPersisted     Origin = "persisted"
	OriginNew           Origin = "new"
	OriginPendingDelete Origin = "pending_delete"
)

// StagedImage is one entry of the candidate image set
type StagedImage struct {
	ID          string `json:"id"`
	Origin      Origin `json:"origin"`
	PreviewRef  string `json:"preview_ref"`
	StorageKey  string `json:"storage_key,omitempty"`
	URL         string `json:"url,omitempty"`
	IsPrimary   bool   `json:"is_primary"`
	SortOrder   int    `json:"sort_order"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Blob        *Blob  `json:"-"`
}

// PersistedImage is the seed shape of an image that already exists in storage
type PersistedImage struct {
	ID         string
	StorageKey string
	URL        string
	IsPrimary  bool
	SortOrder  int
}

// Snapshot is the hand-off to the commit step
type Snapshot struct {
	Visible           []StagedImage `json:"visible"`
	PendingDeleteKeys []string      `json:"pending_delete_keys"`
}

// Store keeps the candidate image set of one product or service in memory.
// It performs no I/O and is not safe for concurrent use; callers serialise
// access to it.
type Store struct {
	constraints Constraints
	visible     []*StagedImage // ordered by SortOrder
	pending     []*StagedImage
	baseIDs     []string
	newID       func() string
}

func NewStore(constraints Constraints) *Store {
	return &Store{
		constraints: constraints.withDefaults(),
		newID:       uuid.NewString,
	}
}

func (s *Store) Constraints() Constraints {
	return s.constraints
}

// Initialize replaces the whole state with the persisted rows. The seed is
// normalised: ordered by sort order, renumbered densely and given exactly
// one primary.
func (s *Store) Initialize(rows []PersistedImage) {
	s.Release()

	seed := slices.Clone(rows)
	sort.SliceStable(seed, func(i, j int) bool { return seed[i].SortOrder < seed[j].SortOrder })

	s.baseIDs = make([]string, 0, len(seed))
	for _, row := range seed {
		s.visible = append(s.visible, &StagedImage{
			ID:         row.ID,
			Origin:     OriginPersisted,
			PreviewRef: row.URL,
			StorageKey: row.StorageKey,
			URL:        row.URL,
			IsPrimary:  row.IsPrimary,
		})
		s.baseIDs = append(s.baseIDs, row.ID)
	}

	s.normalizePrimary()
	s.renumber()
}

// BaseIDs returns the persisted row ids the store was seeded with
func (s *Store) BaseIDs() []string {
	return slices.Clone(s.baseIDs)
}

// AddFiles stages the given files as new images. Type and size problems
// reject single files; a batch that would overflow the count limit is
// rejected as a whole and leaves the state untouched.
func (s *Store) AddFiles(files []FileInput) ([]StagedImage, []Rejection) {
	if len(files) == 0 {
		return nil, nil
	}

	if rejections := s.constraints.validateCount(files, len(s.visible)); rejections != nil {
		return nil, rejections
	}

	var accepted []StagedImage
	var rejections []Rejection
	wasEmpty := len(s.visible) == 0

	for _, f := range files {
		contentType := DetectContentType(f)
		if rejection := s.constraints.validateFile(f, contentType); rejection != nil {
			rejections = append(rejections, *rejection)
			continue
		}

		id := s.newID()
		img := &StagedImage{
			ID:          id,
			Origin:      OriginNew,
			PreviewRef:  "blob:" + id,
			IsPrimary:   wasEmpty && len(accepted) == 0,
			SortOrder:   len(s.visible),
			FileName:    f.Name,
			ContentType: contentType,
			Size:        int64(len(f.Data)),
			Blob:        NewBlob(f.Data),
		}
		s.visible = append(s.visible, img)
		accepted = append(accepted, *img)
	}

	return accepted, rejections
}

// Remove drops a new image outright and marks a persisted one for deletion
func (s *Store) Remove(id string) error {
	idx := s.indexOf(id)
	if idx < 0 {
		if s.isPending(id) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}

	img := s.visible[idx]
	s.visible = slices.Delete(s.visible, idx, idx+1)

	switch img.Origin {
	case OriginNew:
		if img.Blob != nil {
			img.Blob.Release()
		}
	case OriginPersisted:
		img.Origin = OriginPendingDelete
		s.pending = append(s.pending, img)
	}

	if img.IsPrimary {
		img.IsPrimary = false
		if len(s.visible) > 0 {
			s.visible[0].IsPrimary = true
		}
	}

	s.renumber()
	return nil
}

// Reorder moves a visible image to toIndex, clamped to the visible range
func (s *Store) Reorder(id string, toIndex int) error {
	idx := s.indexOf(id)
	if idx < 0 {
		if s.isPending(id) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}

	toIndex = max(0, min(toIndex, len(s.visible)-1))
	if toIndex == idx {
		return nil
	}

	img := s.visible[idx]
	s.visible = slices.Delete(s.visible, idx, idx+1)
	s.visible = slices.Insert(s.visible, toIndex, img)

	s.renumber()
	return nil
}

// SetPrimary makes a visible image the only primary one
func (s *Store) SetPrimary(id string) error {
	idx := s.indexOf(id)
	if idx < 0 {
		if s.isPending(id) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	}

	if s.visible[idx].IsPrimary {
		return nil
	}

	for i, img := range s.visible {
		img.IsPrimary = i == idx
	}
	return nil
}

// Snapshot returns copies of the visible set ordered by sort order and the
// storage keys waiting for deletion
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Visible:           make([]StagedImage, 0, len(s.visible)),
		PendingDeleteKeys: make([]string, 0, len(s.pending)),
	}
	for _, img := range s.visible {
		snap.Visible = append(snap.Visible, *img)
	}
	for _, img := range s.pending {
		snap.PendingDeleteKeys = append(snap.PendingDeleteKeys, img.StorageKey)
	}
	return snap
}

// Len returns the number of visible images
func (s *Store) Len() int {
	return len(s.visible)
}

// Image looks up an image by id, including ones pending deletion
func (s *Store) Image(id string) (StagedImage, bool) {
	if idx := s.indexOf(id); idx >= 0 {
		return *s.visible[idx], true
	}
	for _, img := range s.pending {
		if img.ID == id {
			return *img, true
		}
	}
	return StagedImage{}, false
}

// Release frees every staged blob and empties the store
func (s *Store) Release() {
	for _, img := range s.visible {
		if img.Blob != nil {
			img.Blob.Release()
		}
	}
	s.visible = nil
	s.pending = nil
	s.baseIDs = nil
}

// CheckInvariants verifies the visible set: exactly one primary when non-empty,
// dense sort order, count limit and origins
func (s *Store) CheckInvariants() error {
	primaries := 0
	for i, img := range s.visible {
		if img.Origin == OriginPendingDelete {
			return fmt.Errorf("image %s is pending deletion but visible", img.ID)
		}
		if img.SortOrder != i {
			return fmt.Errorf("image %s has sort order %d at position %d", img.ID, img.SortOrder, i)
		}
		if img.IsPrimary {
			primaries++
		}
	}

	if len(s.visible) > 0 && primaries != 1 {
		return fmt.Errorf("expected exactly one primary image, found %d", primaries)
	}
	if len(s.visible) > s.constraints.MaxTotalCount {
		return fmt.Errorf("%d visible images exceed the limit of %d", len(s.visible), s.constraints.MaxTotalCount)
	}

	for _, img := range s.pending {
		if img.Origin != OriginPendingDelete || img.IsPrimary {
			return fmt.Errorf("pending image %s is in an invalid state", img.ID)
		}
	}

	return nil
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.visible, func(img *StagedImage) bool { return img.ID == id })
}

func (s *Store) isPending(id string) bool {
	return slices.ContainsFunc(s.pending, func(img *StagedImage) bool { return img.ID == id })
}

func (s *Store) renumber() {
	for i, img := range s.visible {
		img.SortOrder = i
	}
}

// normalizePrimary keeps the first flagged image primary, or promotes the
// first one when none is flagged
func (s *Store) normalizePrimary() {
	found := false
	for _, img := range s.visible {
		if img.IsPrimary && !found {
			found = true
			continue
		}
		img.IsPrimary = false
	}
	if !found && len(s.visible) > 0 {
		s.visible[0].IsPrimary = true
	}
}
