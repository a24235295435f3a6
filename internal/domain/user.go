package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// User is the canonical (v1) identity record. Transactions reference it by UserID.
type User struct {
	UserID    string      `json:"userId"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Birthday  *civil.Date `json:"birthday,omitempty"`
	Country   string      `json:"country,omitempty"`
	Phone     string      `json:"phone,omitempty"`
	Avatar    string      `json:"avatar,omitempty"` // stored avatar object name
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// UserPatch is a partial update of a user's scalar fields. Nil fields are left untouched.
type UserPatch struct {
	FirstName *string     `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string     `json:"lastName" validate:"omitempty,max=100"`
	Birthday  *civil.Date `json:"birthday"`
	Country   *string     `json:"country" validate:"omitempty,max=100"`
	Phone     *string     `json:"phone" validate:"omitempty,max=32"`
}

// Apply copies the set fields of p onto u.
func (p UserPatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Birthday != nil {
		b := *p.Birthday
		u.Birthday = &b
	}
	if p.Country != nil {
		u.Country = *p.Country
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
}

// DeletePolicy decides what happens to a user's transactions when the user is deleted.
type DeletePolicy string

const (
	// DeleteCascade removes the user's transactions together with the user.
	DeleteCascade DeletePolicy = "cascade"
	// DeleteRestrict refuses to delete a user that still has transactions.
	DeleteRestrict DeletePolicy = "restrict"
)

// Valid reports whether p is a known policy.
func (p DeletePolicy) Valid() bool {
	return p == DeleteCascade || p == DeleteRestrict
}
