package models

import "time"

// Role is the access level of a user.
type Role string

const (
	RoleUser         Role = "user"
	RoleProductAdmin Role = "product_admin"
	RoleAdmin        Role = "admin"
)

var roleRank = map[Role]int{
	RoleUser:         1,
	RoleProductAdmin: 2,
	RoleAdmin:        3,
}

// Includes reports whether r grants at least the privileges of other.
// admin includes product_admin, which includes user.
func (r Role) Includes(other Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	want, ok := roleRank[other]
	if !ok {
		return false
	}
	return have >= want
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// User represents a user of the store back office.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username  string    `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password  string    `json:"password,omitempty" gorm:"type:varchar(255)" validate:"required,min=6"`
	Role      Role      `json:"role" gorm:"type:varchar(32);default:user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
