package structs

import (
	"fmt"

	"github.com/google/uuid"
)

// ParentRef points at the product or service whose image set is being edited
type ParentRef struct {
	Kind ParentKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

func (p ParentRef) String() string {
	return fmt.Sprintf("%s:%s", p.Kind, p.ID)
}

func (p ParentRef) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("invalid parent kind %q", p.Kind)
	}
	if p.ID == uuid.Nil {
		return fmt.Errorf("missing parent id")
	}
	return nil
}

// ReorderImageRequest moves one staged image to a new position
type ReorderImageRequest struct {
	ToIndex *int `json:"to_index" validate:"required,gte=0"`
}
