package database

import (
	"context"
	"fmt"
	"workshop_server/structs/tables"

	"github.com/uptrace/bun"
)

var models = []any{
	(*tables.Product)(nil),
	(*tables.Service)(nil),
	(*tables.Image)(nil),
}

type index struct {
	name    string
	model   any
	columns []string
}

var indexes = []index{
	{name: "images_parent_idx", model: (*tables.Image)(nil), columns: []string{"parent_kind", "parent_id", "sort_order"}},
	// shared-key lookups during the delete phase filter on storage_key alone
	{name: "images_storage_key_idx", model: (*tables.Image)(nil), columns: []string{"storage_key"}},
}

// Migrate creates the catalogue and image tables when they do not exist yet
func Migrate(ctx context.Context, db bun.IDB) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	return nil
}
