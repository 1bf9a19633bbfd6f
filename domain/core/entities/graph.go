package entities

import (
	"encoding/json"
	"time"
)

// Graph is a persisted graph row. Data holds the serialized document
// ({nodes, edges, viewport?}) and is decoded by the document model, not here.
type Graph struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Title     string          `json:"title"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GraphInsert is the payload for the first persistence of a document.
type GraphInsert struct {
	OwnerID string          `json:"owner_id" validate:"required"`
	Title   string          `json:"title" validate:"required,max=200"`
	Data    json.RawMessage `json:"data"`
}

// GraphUpdate carries the mutable graph columns. The store stamps
// updated_at.
type GraphUpdate struct {
	Title     *string         `json:"title,omitempty" validate:"omitempty,max=200"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}
