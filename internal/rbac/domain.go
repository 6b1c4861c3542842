package rbac

import (
	"context"

	"github.com/agrimart/backoffice/internal/shared"
)

// Resolver returns the "module.action" permissions granted to an actor.
type Resolver interface {
	EffectivePermissions(ctx context.Context, actor shared.Actor) ([]string, error)
}

// Catalog describes the closed permission vocabulary for clients that render
// the matrix editor.
type Catalog struct {
	Modules []Module `json:"modules"`
	Actions []Action `json:"actions"`
}

// NewCatalog returns the module and action keys in display order.
func NewCatalog() Catalog {
	return Catalog{Modules: Modules(), Actions: Actions()}
}
