package entities

import (
	"encoding/json"
	"time"
)

// DefaultSharedTitle is shown when the origin graph of a share is no longer
// visible.
const DefaultSharedTitle = "Untitled Graph"

// SharedGraph is an immutable snapshot of a graph's data at share time. It
// is never refreshed when the origin graph changes.
type SharedGraph struct {
	ID                string          `json:"id"`
	GraphID           string          `json:"graph_id"`
	OwnerID           string          `json:"owner_id"`
	RecipientID       string          `json:"recipient_id"`
	SharedAt          time.Time       `json:"shared_at"`
	GraphDataSnapshot json.RawMessage `json:"graph_data_snapshot"`
}

// SharedGraphInsert is the payload for sharing a graph.
type SharedGraphInsert struct {
	GraphID           string          `json:"graph_id" validate:"required"`
	OwnerID           string          `json:"owner_id" validate:"required"`
	RecipientID       string          `json:"recipient_id" validate:"required,nefield=OwnerID"`
	GraphDataSnapshot json.RawMessage `json:"graph_data_snapshot" validate:"required"`
}

// SharedGraphUpdate can only re-address a share; the snapshot itself is not
// updatable.
type SharedGraphUpdate struct {
	RecipientID *string `json:"recipient_id,omitempty"`
}

// SharedGraphWithDetails is a share joined with its owner's profile and the
// origin graph's title.
type SharedGraphWithDetails struct {
	SharedGraph
	OwnerProfile *Profile `json:"owner_profile"`
	GraphTitle   string   `json:"graph_title"`
}
