package structs

import "fmt"

// ParentKind identifies which catalogue table owns an image set
type ParentKind string

const (
	ParentProduct ParentKind = "product"
	ParentService ParentKind = "service"
)

func (k ParentKind) Valid() bool {
	return k == ParentProduct || k == ParentService
}

// ParseParentKind accepts both the singular and the plural route form ("products", "service")
func ParseParentKind(s string) (ParentKind, error) {
	switch s {
	case "product", "products":
		return ParentProduct, nil
	case "service", "services":
		return ParentService, nil
	}
	return "", fmt.Errorf("unknown parent kind %q", s)
}

// ProductType enum
type ProductType string

const (
	Accessory ProductType = "accessory"
	Part      ProductType = "part"
	Care      ProductType = "care"
)
