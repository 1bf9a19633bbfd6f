package entities

import "time"

// Contact is a directed relation: UserID lists ContactID. No symmetry is
// implied.
type Contact struct {
	UserID    string    `json:"user_id"`
	ContactID string    `json:"contact_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ContactKey identifies a contact row.
type ContactKey struct {
	UserID    string
	ContactID string
}

// Key returns the composite key of c.
func (c *Contact) Key() ContactKey {
	return ContactKey{UserID: c.UserID, ContactID: c.ContactID}
}

// ContactInsert is the payload for adding a contact.
type ContactInsert struct {
	UserID    string `json:"user_id" validate:"required"`
	ContactID string `json:"contact_id" validate:"required,nefield=UserID"`
}

// ContactUpdate re-points a contact row at another profile.
type ContactUpdate struct {
	ContactID *string `json:"contact_id,omitempty"`
}

// ContactWithProfile is a contact joined with the listed user's profile.
type ContactWithProfile struct {
	Contact
	Profile *Profile `json:"profile"`
}
