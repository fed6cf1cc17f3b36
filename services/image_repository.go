package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"
	"workshop_server/database"
	"workshop_server/lib"
	"workshop_server/structs"
	"workshop_server/structs/tables"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// ImageRows is the relational side of an image set
type ImageRows interface {
	ListImageRows(ctx context.Context, parent structs.ParentRef) ([]tables.Image, error)
	ReplaceImageRows(ctx context.Context, parent structs.ParentRef, rows []tables.Image) ([]tables.Image, error)
	ReplaceImageRowsIfUnchanged(ctx context.Context, parent structs.ParentRef, rows []tables.Image, expectedIDs []uuid.UUID) ([]tables.Image, error)
	ParentExists(ctx context.Context, parent structs.ParentRef) (bool, error)
	KeysReferencedElsewhere(ctx context.Context, parent structs.ParentRef, keys []string) (map[string]bool, error)
}

type ImageRepository struct {
	db *database.DB
}

func NewImageRepository(db *database.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// ListImageRows returns the persisted rows of one parent ordered by sort order
func (ir *ImageRepository) ListImageRows(ctx context.Context, parent structs.ParentRef) ([]tables.Image, error) {
	return listImageRows(ctx, ir.db, parent)
}

func listImageRows(ctx context.Context, db bun.IDB, parent structs.ParentRef) ([]tables.Image, error) {
	rows, err := database.Query[tables.Image](db).
		Where("parent_kind", parent.Kind).
		Where("parent_id", parent.ID).
		OrderBy("sort_order", database.ASC).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images of %s: %w", parent, err)
	}
	if rows == nil {
		rows = []tables.Image{}
	}
	return rows, nil
}

// ReplaceImageRows swaps the whole row set of parent in one transaction
func (ir *ImageRepository) ReplaceImageRows(ctx context.Context, parent structs.ParentRef, rows []tables.Image) ([]tables.Image, error) {
	return ir.replace(ctx, parent, rows, nil, false)
}

// ReplaceImageRowsIfUnchanged is ReplaceImageRows guarded by an optimistic
// check: the current row ids must equal expectedIDs, otherwise lib.ErrConflict
func (ir *ImageRepository) ReplaceImageRowsIfUnchanged(ctx context.Context, parent structs.ParentRef, rows []tables.Image, expectedIDs []uuid.UUID) ([]tables.Image, error) {
	return ir.replace(ctx, parent, rows, expectedIDs, true)
}

func (ir *ImageRepository) replace(ctx context.Context, parent structs.ParentRef, rows []tables.Image, expectedIDs []uuid.UUID, checkConflict bool) ([]tables.Image, error) {
	if err := parent.Validate(); err != nil {
		return nil, err
	}

	var inserted []tables.Image
	err := ir.db.Transaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		// serialise writers of the same parent where the dialect can lock rows
		exists, err := parentExists(ctx, tx, parent, tx.Dialect().Name() == dialect.PG)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s: %w", parent, lib.ErrNotFound)
		}

		current, err := listImageRows(ctx, tx, parent)
		if err != nil {
			return err
		}

		if checkConflict && !sameIDs(current, expectedIDs) {
			return fmt.Errorf("images of %s changed since the edit started: %w", parent, lib.ErrConflict)
		}

		createdAt := make(map[uuid.UUID]time.Time, len(current))
		for _, row := range current {
			createdAt[row.ID] = row.CreatedAt
		}

		if len(current) > 0 {
			_, err = database.Query[tables.Image](tx).
				Where("parent_kind", parent.Kind).
				Where("parent_id", parent.ID).
				Delete(ctx)
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		next := make([]tables.Image, 0, len(rows))
		for _, row := range rows {
			row.ParentKind = parent.Kind
			row.ParentID = parent.ID
			if row.ID == uuid.Nil {
				row.ID = uuid.New()
			}
			if created, ok := createdAt[row.ID]; ok {
				row.CreatedAt = created
			} else if row.CreatedAt.IsZero() {
				row.CreatedAt = now
			}
			next = append(next, row)
		}

		inserted, err = database.Query[tables.Image](tx).InsertMany(ctx, next)
		return err
	})
	if err != nil {
		return nil, lib.MapPgError(err)
	}

	sort.SliceStable(inserted, func(i, j int) bool { return inserted[i].SortOrder < inserted[j].SortOrder })
	return inserted, nil
}

// ParentExists reports whether the product or service behind parent exists
func (ir *ImageRepository) ParentExists(ctx context.Context, parent structs.ParentRef) (bool, error) {
	return parentExists(ctx, ir.db, parent, false)
}

func parentExists(ctx context.Context, db bun.IDB, parent structs.ParentRef, lock bool) (bool, error) {
	switch parent.Kind {
	case structs.ParentProduct:
		return rowExists[tables.Product](ctx, db, parent.ID, lock)
	case structs.ParentService:
		return rowExists[tables.Service](ctx, db, parent.ID, lock)
	}
	return false, fmt.Errorf("invalid parent kind %q", parent.Kind)
}

func rowExists[T any](ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (bool, error) {
	query := database.Query[T](db).Where("id", id)
	if !lock {
		return query.Exists(ctx)
	}
	row, err := query.ForUpdate().First(ctx)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// KeysReferencedElsewhere returns the subset of keys that rows of other
// parents still point at. Content addressing lets two parents share one object.
func (ir *ImageRepository) KeysReferencedElsewhere(ctx context.Context, parent structs.ParentRef, keys []string) (map[string]bool, error) {
	referenced := make(map[string]bool)
	if len(keys) == 0 {
		return referenced, nil
	}

	values := make([]any, 0, len(keys))
	for _, key := range keys {
		values = append(values, key)
	}

	rows, err := database.Query[tables.Image](ir.db).
		WhereIn("storage_key", values).
		WhereRaw("NOT (parent_kind = ? AND parent_id = ?)", parent.Kind, parent.ID).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up shared keys: %w", err)
	}

	for _, row := range rows {
		referenced[row.StorageKey] = true
	}
	return referenced, nil
}

func sameIDs(rows []tables.Image, expected []uuid.UUID) bool {
	if len(rows) != len(expected) {
		return false
	}
	current := make([]string, 0, len(rows))
	for _, row := range rows {
		current = append(current, row.ID.String())
	}
	want := make([]string, 0, len(expected))
	for _, id := range expected {
		want = append(want, id.String())
	}
	slices.Sort(current)
	slices.Sort(want)
	return slices.Equal(current, want)
}

var _ ImageRows = (*ImageRepository)(nil)
