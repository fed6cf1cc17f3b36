package tables

import (
	"time"
	"workshop_server/structs"

	"github.com/google/uuid"
)

type Product struct {
	tableName   struct{}            `bun:"table:products,alias:p"`
	ID          uuid.UUID           `bun:"id,pk,type:uuid" json:"id"`
	Name        string              `bun:"name,notnull" json:"name"`
	SKU         string              `bun:"sku,notnull" json:"sku"`     // Stock Keeping Unit for better inventory tracking
	Price       uint64              `bun:"price,notnull" json:"price"` // stored in cents
	Description string              `bun:"description,notnull" json:"description"`
	IsActive    bool                `bun:"is_active,notnull" json:"is_active"`
	ProductType structs.ProductType `bun:"product_type" json:"product_type,omitempty"`
	Stock       uint16              `bun:"stock" json:"stock,omitempty"`
	CreatedAt   time.Time           `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time           `bun:"updated_at,notnull" json:"updated_at"`
}

// Service is a bookable workshop job (tinting, detailing, fitting ...)
type Service struct {
	tableName   struct{}  `bun:"table:services,alias:s"`
	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Price       uint64    `bun:"price,notnull" json:"price"`   // stored in cents
	DurationMin int       `bun:"duration_min" json:"duration"` // expected workshop time
	Description string    `bun:"description,notnull" json:"description"`
	IsActive    bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Image is one persisted image row of a product or a service
type Image struct {
	tableName  struct{}           `bun:"table:images,alias:img"`
	ID         uuid.UUID          `bun:"id,pk,type:uuid" json:"id"`
	ParentKind structs.ParentKind `bun:"parent_kind,notnull" json:"parent_kind"`
	ParentID   uuid.UUID          `bun:"parent_id,type:uuid,notnull" json:"parent_id"`
	StorageKey string             `bun:"storage_key,notnull" json:"storage_key"`
	URL        string             `bun:"url,notnull" json:"url"`
	IsPrimary  bool               `bun:"is_primary,notnull" json:"is_primary"`
	SortOrder  int                `bun:"sort_order,notnull" json:"sort_order"`
	CreatedAt  time.Time          `bun:"created_at,notnull" json:"created_at"`
}
