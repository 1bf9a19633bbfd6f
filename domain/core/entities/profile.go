package entities

import "time"

// Profile is the public profile row created for every auth user.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileInsert is the payload for creating a profile row.
type ProfileInsert struct {
	ID       string `json:"id" validate:"required"`
	Username string `json:"username" validate:"required,min=1,max=64"`
}

// ProfileUpdate carries the mutable profile columns. Nil fields are left
// untouched.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty" validate:"omitempty,min=1,max=64"`
}
