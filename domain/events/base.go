package events

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the base interface for all domain events.
// Events represent something that has happened in the past.
type DomainEvent interface {
	GetEventID() string
	GetAggregateID() string
	GetEventType() string
	GetUserID() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventID     string    `json:"event_id"`
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetEventID() string      { return e.EventID }
func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetUserID() string       { return e.UserID }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

func newBase(eventType, aggregateID, userID string, at time.Time) BaseEvent {
	return BaseEvent{
		EventID:     uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   eventType,
		UserID:      userID,
		Timestamp:   at.UTC(),
	}
}

const (
	TypeGraphCreated = "graph.created"
	TypeGraphDeleted = "graph.deleted"
	TypeGraphShared  = "graph.shared"
	TypeShareRemoved = "graph.share_removed"
	TypeContactAdded = "contact.added"
	TypeUserCreated  = "user.created"
)

// GraphCreated is raised when a document is persisted for the first time.
type GraphCreated struct {
	BaseEvent
	Title string `json:"title"`
}

func NewGraphCreated(graphID, userID, title string, at time.Time) GraphCreated {
	return GraphCreated{BaseEvent: newBase(TypeGraphCreated, graphID, userID, at), Title: title}
}

// GraphDeleted is raised when a graph row is deleted.
type GraphDeleted struct {
	BaseEvent
}

func NewGraphDeleted(graphID, userID string, at time.Time) GraphDeleted {
	return GraphDeleted{BaseEvent: newBase(TypeGraphDeleted, graphID, userID, at)}
}

// GraphShared is raised when a snapshot of a graph is shared with a contact.
type GraphShared struct {
	BaseEvent
	SharedGraphID string `json:"shared_graph_id"`
	RecipientID   string `json:"recipient_id"`
}

func NewGraphShared(graphID, sharedGraphID, ownerID, recipientID string, at time.Time) GraphShared {
	return GraphShared{
		BaseEvent:     newBase(TypeGraphShared, graphID, ownerID, at),
		SharedGraphID: sharedGraphID,
		RecipientID:   recipientID,
	}
}

// ShareRemoved is raised when a shared snapshot is removed.
type ShareRemoved struct {
	BaseEvent
}

func NewShareRemoved(sharedGraphID, userID string, at time.Time) ShareRemoved {
	return ShareRemoved{BaseEvent: newBase(TypeShareRemoved, sharedGraphID, userID, at)}
}

// ContactAdded is raised when a user lists another user as a contact.
type ContactAdded struct {
	BaseEvent
	ContactID string `json:"contact_id"`
}

func NewContactAdded(userID, contactID string, at time.Time) ContactAdded {
	return ContactAdded{BaseEvent: newBase(TypeContactAdded, userID, userID, at), ContactID: contactID}
}

// UserCreated is raised when an administrator creates an account.
type UserCreated struct {
	BaseEvent
	Email    string `json:"email"`
	Username string `json:"username"`
}

func NewUserCreated(newUserID, adminID, email, username string, at time.Time) UserCreated {
	return UserCreated{
		BaseEvent: newBase(TypeUserCreated, newUserID, adminID, at),
		Email:     email,
		Username:  username,
	}
}
