package ports

import (
	"context"

	"graphboard/domain/core/entities"
)

// Postgres error codes that store adapters attach to PersistenceErrors.
const (
	CodeUniqueViolation = "23505"
	CodeRLSViolation    = "42501"
)

// FilterOp is a comparison understood by every store adapter.
type FilterOp string

const (
	FilterEq    FilterOp = "eq"
	FilterIlike FilterOp = "ilike" // case-insensitive, % wildcards
)

// Filter restricts a list to rows whose column matches value.
type Filter struct {
	Column string
	Op     FilterOp
	Value  string
}

// Eq is shorthand for an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: FilterEq, Value: value}
}

// Ilike is shorthand for a case-insensitive pattern filter.
func Ilike(column, pattern string) Filter {
	return Filter{Column: column, Op: FilterIlike, Value: pattern}
}

// ListOptions select, order and cap a listing. A zero Limit means no cap.
type ListOptions struct {
	Filters   []Filter
	OrderBy   string
	Ascending bool
	Limit     int
}

// Every store port below is a pass-through to the hosted store. Row-level
// visibility is enforced by the store for the caller attached to ctx (see
// pkg/auth.SetUserInContext) and is not re-checked by callers. Every method
// returns either its records or a typed error: NotFound for an absent or
// invisible row, PersistenceError for everything else.

// ProfileStore persists profile rows.
type ProfileStore interface {
	Create(ctx context.Context, in *entities.ProfileInsert) (*entities.Profile, error)
	Get(ctx context.Context, id string) (*entities.Profile, error)
	Update(ctx context.Context, id string, in *entities.ProfileUpdate) (*entities.Profile, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]*entities.Profile, error)
}

// GraphStore persists graph rows.
type GraphStore interface {
	Create(ctx context.Context, in *entities.GraphInsert) (*entities.Graph, error)
	Get(ctx context.Context, id string) (*entities.Graph, error)
	Update(ctx context.Context, id string, in *entities.GraphUpdate) (*entities.Graph, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]*entities.Graph, error)
}

// ContactStore persists contact rows, keyed by (user_id, contact_id).
type ContactStore interface {
	Create(ctx context.Context, in *entities.ContactInsert) (*entities.Contact, error)
	Get(ctx context.Context, key entities.ContactKey) (*entities.Contact, error)
	Update(ctx context.Context, key entities.ContactKey, in *entities.ContactUpdate) (*entities.Contact, error)
	Delete(ctx context.Context, key entities.ContactKey) error
	List(ctx context.Context, opts ListOptions) ([]*entities.Contact, error)
	ListWithProfiles(ctx context.Context, opts ListOptions) ([]*entities.ContactWithProfile, error)
}

// SharedGraphStore persists shared-graph snapshots.
type SharedGraphStore interface {
	Create(ctx context.Context, in *entities.SharedGraphInsert) (*entities.SharedGraph, error)
	Get(ctx context.Context, id string) (*entities.SharedGraph, error)
	Update(ctx context.Context, id string, in *entities.SharedGraphUpdate) (*entities.SharedGraph, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]*entities.SharedGraph, error)
	ListWithDetails(ctx context.Context, opts ListOptions) ([]*entities.SharedGraphWithDetails, error)
}

// Store groups the four record kinds of the hosted backend.
type Store interface {
	Profiles() ProfileStore
	Graphs() GraphStore
	Contacts() ContactStore
	SharedGraphs() SharedGraphStore

	// IsAdmin asks the backend whether userID holds administrator rights.
	IsAdmin(ctx context.Context, userID string) (bool, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
