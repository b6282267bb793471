package services

import "tokoadmin/internal/models"

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID       string
	Username string
	Role     models.Role
}

// Action names a product-specific permission.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// AuthorizationPolicy decides what an actor may do.
type AuthorizationPolicy interface {
	HasRole(actor Actor, role models.Role) bool
	CanActOn(actor Actor, action Action, product *models.Product) bool
}

// RolePolicy grants access from the role hierarchy and product ownership.
//
//	edit:   product_admin, or the owner
//	delete: admin, or an owner holding product_admin
type RolePolicy struct{}

func (RolePolicy) HasRole(actor Actor, role models.Role) bool {
	return actor.ID != "" && actor.Role.Includes(role)
}

func (p RolePolicy) CanActOn(actor Actor, action Action, product *models.Product) bool {
	if actor.ID == "" || product == nil {
		return false
	}
	owner := product.OwnerID != "" && product.OwnerID == actor.ID
	switch action {
	case ActionEdit:
		return p.HasRole(actor, models.RoleProductAdmin) || (owner && p.HasRole(actor, models.RoleUser))
	case ActionDelete:
		return p.HasRole(actor, models.RoleAdmin) || (owner && p.HasRole(actor, models.RoleProductAdmin))
	default:
		return false
	}
}
