// Package model defines user documents and their public views.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles.
const (
	RoleAdmin    = "admin"
	RoleDMA      = "dma"
	RoleOperator = "operator"
	RoleUser     = "user"
)

// Roles lists every assignable role.
var Roles = []string{RoleAdmin, RoleDMA, RoleOperator, RoleUser}

// ValidRole reports whether role is assignable.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}

	return false
}

const (
	// DefaultGender is stored when a user never picked one.
	DefaultGender = "Prefer not to say"
	// DefaultAvatar is the avatar of new accounts.
	DefaultAvatar = "avatar1"
)

// Genders lists accepted gender values.
var Genders = []string{"Male", "Female", "Other", DefaultGender}

// ValidGender reports whether gender is accepted.
func ValidGender(gender string) bool {
	for _, g := range Genders {
		if g == gender {
			return true
		}
	}

	return false
}

// User is an account.
type User struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Username    string             `bson:"username" json:"username"`
	Email       string             `bson:"email" json:"email"`
	Password    string             `bson:"password" json:"-"`
	Role        string             `bson:"role,omitempty" json:"role,omitempty"`
	IsAdmin     bool               `bson:"isAdmin" json:"-"`
	Phone       string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Gender      string             `bson:"gender" json:"gender"`
	Location    string             `bson:"location,omitempty" json:"location,omitempty"`
	LocationKey string             `bson:"locationKey,omitempty" json:"locationKey,omitempty"`
	Avatar      string             `bson:"avatar" json:"avatar"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// EffectiveRole returns the stored role, falling back to the legacy
// isAdmin flag for accounts created before roles existed.
func (u *User) EffectiveRole() string {
	if u.Role != "" {
		return u.Role
	}
	if u.IsAdmin {
		return RoleAdmin
	}

	return RoleUser
}

// AuthUser is returned alongside a session token.
type AuthUser struct {
	ID       primitive.ObjectID `json:"_id"`
	Username string             `json:"username"`
	Email    string             `json:"email"`
	Role     string             `json:"role"`
}

// Profile is a user without credentials.
type Profile struct {
	ID        primitive.ObjectID `json:"_id"`
	Username  string             `json:"username"`
	Email     string             `json:"email"`
	Role      string             `json:"role"`
	Phone     string             `json:"phone"`
	Gender    string             `json:"gender"`
	Location  string             `json:"location"`
	Avatar    string             `json:"avatar"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
