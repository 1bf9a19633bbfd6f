package supabase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/core/entities"
	pkgerrors "graphboard/pkg/errors"
)

// Table names and the joins used by the dashboard listings.
const (
	tableProfiles     = "profiles"
	tableGraphs       = "graphs"
	tableContacts     = "contacts"
	tableSharedGraphs = "shared_graphs"

	selectContactsWithProfile = `*, profile:profiles!contacts_contact_id_fkey (*)`
	selectSharesWithDetails   = `*, owner_profile:profiles!shared_graphs_owner_id_fkey (username), graph:graphs!shared_graphs_graph_id_fkey (title)`

	returnRepresentation = "representation"
	rpcIsAdmin           = "is_admin"
)

// Store is the hosted implementation of ports.Store.
type Store struct {
	clients *clients
	logger  *zap.Logger
	now     func() time.Time
}

var _ ports.Store = (*Store)(nil)

// NewStore connects to the project described by cfg.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := newClients(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Store{clients: c, logger: logger, now: time.Now}, nil
}

// Run evicts expired per-token clients until ctx is done.
func (s *Store) Run(ctx context.Context) {
	s.clients.cache.run(ctx, time.Minute)
}

func (s *Store) Profiles() ports.ProfileStore         { return profileStore{s} }
func (s *Store) Graphs() ports.GraphStore             { return graphStore{s} }
func (s *Store) Contacts() ports.ContactStore         { return contactStore{s} }
func (s *Store) SharedGraphs() ports.SharedGraphStore { return sharedGraphStore{s} }

// IsAdmin calls the is_admin database function.
func (s *Store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	client, err := s.clients.forContext(ctx)
	if err != nil {
		return false, err
	}
	body, err := call(ctx, "admin check", "rpc", func() (string, error) {
		out := client.Rpc(rpcIsAdmin, "", map[string]string{"user_id": userID})
		if out == "" {
			return "", fmt.Errorf("%s returned no result", rpcIsAdmin)
		}
		return out, nil
	})
	if err != nil {
		return false, err
	}

	admin, err := strconv.ParseBool(strings.TrimSpace(body))
	if err != nil {
		// An error body comes back in place of the result.
		return false, translate("admin check", "rpc", fmt.Errorf("unexpected %s result: %s", rpcIsAdmin, body))
	}
	return admin, nil
}

// Ping issues the cheapest possible query with the anonymous role.
func (s *Store) Ping(ctx context.Context) error {
	_, err := call(ctx, tableProfiles, "ping", func() ([]byte, error) {
		body, _, err := s.clients.anon.From(tableProfiles).Select("id", "", false).Limit(1, "").Execute()
		return body, err
	})
	return err
}

func (s *Store) from(ctx context.Context, table string) (*postgrest.QueryBuilder, error) {
	client, err := s.clients.forContext(ctx)
	if err != nil {
		return nil, err
	}
	return client.From(table), nil
}

// applyOptions adds filters, ordering and a cap to a listing.
func applyOptions(fb *postgrest.FilterBuilder, opts ports.ListOptions) (*postgrest.FilterBuilder, error) {
	for _, f := range opts.Filters {
		switch f.Op {
		case ports.FilterEq:
			fb = fb.Eq(f.Column, f.Value)
		case ports.FilterIlike:
			fb = fb.Ilike(f.Column, f.Value)
		default:
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("unsupported filter operator %q", f.Op))
		}
	}
	if opts.OrderBy != "" {
		fb = fb.Order(opts.OrderBy, &postgrest.OrderOpts{Ascending: opts.Ascending})
	}
	if opts.Limit > 0 {
		fb = fb.Limit(opts.Limit, "")
	}
	return fb, nil
}

// single runs a request expected to return exactly one row.
func single[T any](ctx context.Context, resource, op string, fb *postgrest.FilterBuilder) (*T, error) {
	return call(ctx, resource, op, func() (*T, error) {
		var row T
		if _, err := fb.Single().ExecuteTo(&row); err != nil {
			return nil, err
		}
		return &row, nil
	})
}

func list[T any](ctx context.Context, resource string, qb *postgrest.QueryBuilder, columns string, opts ports.ListOptions) ([]*T, error) {
	fb, err := applyOptions(qb.Select(columns, "", false), opts)
	if err != nil {
		return nil, err
	}
	return call(ctx, resource, "list", func() ([]*T, error) {
		var rows []*T
		if _, err := fb.ExecuteTo(&rows); err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []*T{}
		}
		return rows, nil
	})
}

// remove deletes the rows fb matches; zero rows means the caller could not
// see any.
func remove(ctx context.Context, resource string, fb *postgrest.FilterBuilder) error {
	n, err := call(ctx, resource, "delete", func() (int, error) {
		body, _, err := fb.Execute()
		if err != nil {
			return 0, err
		}
		return countRows(body)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.NewNotFoundError(resource)
	}
	return nil
}

type profileStore struct{ s *Store }

func (p profileStore) Create(ctx context.Context, in *entities.ProfileInsert) (*entities.Profile, error) {
	qb, err := p.s.from(ctx, tableProfiles)
	if err != nil {
		return nil, err
	}
	return single[entities.Profile](ctx, "profile", "create", qb.Insert(in, false, "", returnRepresentation, ""))
}

func (p profileStore) Get(ctx context.Context, id string) (*entities.Profile, error) {
	qb, err := p.s.from(ctx, tableProfiles)
	if err != nil {
		return nil, err
	}
	return single[entities.Profile](ctx, "profile", "get", qb.Select("*", "", false).Eq("id", id))
}

func (p profileStore) Update(ctx context.Context, id string, in *entities.ProfileUpdate) (*entities.Profile, error) {
	qb, err := p.s.from(ctx, tableProfiles)
	if err != nil {
		return nil, err
	}
	return single[entities.Profile](ctx, "profile", "update", qb.Update(in, returnRepresentation, "").Eq("id", id))
}

func (p profileStore) Delete(ctx context.Context, id string) error {
	qb, err := p.s.from(ctx, tableProfiles)
	if err != nil {
		return err
	}
	return remove(ctx, "profile", qb.Delete(returnRepresentation, "").Eq("id", id))
}

func (p profileStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.Profile, error) {
	qb, err := p.s.from(ctx, tableProfiles)
	if err != nil {
		return nil, err
	}
	return list[entities.Profile](ctx, "profile", qb, "*", opts)
}

type graphStore struct{ s *Store }

func (g graphStore) Create(ctx context.Context, in *entities.GraphInsert) (*entities.Graph, error) {
	qb, err := g.s.from(ctx, tableGraphs)
	if err != nil {
		return nil, err
	}
	return single[entities.Graph](ctx, "graph", "create", qb.Insert(in, false, "", returnRepresentation, ""))
}

func (g graphStore) Get(ctx context.Context, id string) (*entities.Graph, error) {
	qb, err := g.s.from(ctx, tableGraphs)
	if err != nil {
		return nil, err
	}
	return single[entities.Graph](ctx, "graph", "get", qb.Select("*", "", false).Eq("id", id))
}

// Update stamps updated_at unless the caller set it.
func (g graphStore) Update(ctx context.Context, id string, in *entities.GraphUpdate) (*entities.Graph, error) {
	qb, err := g.s.from(ctx, tableGraphs)
	if err != nil {
		return nil, err
	}
	payload := *in
	if payload.UpdatedAt == nil {
		now := g.s.now().UTC()
		payload.UpdatedAt = &now
	}
	return single[entities.Graph](ctx, "graph", "update", qb.Update(&payload, returnRepresentation, "").Eq("id", id))
}

func (g graphStore) Delete(ctx context.Context, id string) error {
	qb, err := g.s.from(ctx, tableGraphs)
	if err != nil {
		return err
	}
	return remove(ctx, "graph", qb.Delete(returnRepresentation, "").Eq("id", id))
}

func (g graphStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.Graph, error) {
	qb, err := g.s.from(ctx, tableGraphs)
	if err != nil {
		return nil, err
	}
	return list[entities.Graph](ctx, "graph", qb, "*", opts)
}

type contactStore struct{ s *Store }

func matchContact(fb *postgrest.FilterBuilder, key entities.ContactKey) *postgrest.FilterBuilder {
	return fb.Eq("user_id", key.UserID).Eq("contact_id", key.ContactID)
}

func (c contactStore) Create(ctx context.Context, in *entities.ContactInsert) (*entities.Contact, error) {
	qb, err := c.s.from(ctx, tableContacts)
	if err != nil {
		return nil, err
	}
	return single[entities.Contact](ctx, "contact", "create", qb.Insert(in, false, "", returnRepresentation, ""))
}

func (c contactStore) Get(ctx context.Context, key entities.ContactKey) (*entities.Contact, error) {
	qb, err := c.s.from(ctx, tableContacts)
	if err != nil {
		return nil, err
	}
	return single[entities.Contact](ctx, "contact", "get", matchContact(qb.Select("*", "", false), key))
}

func (c contactStore) Update(ctx context.Context, key entities.ContactKey, in *entities.ContactUpdate) (*entities.Contact, error) {
	qb, err := c.s.from(ctx, tableContacts)
	if err != nil {
		return nil, err
	}
	return single[entities.Contact](ctx, "contact", "update", matchContact(qb.Update(in, returnRepresentation, ""), key))
}

func (c contactStore) Delete(ctx context.Context, key entities.ContactKey) error {
	qb, err := c.s.from(ctx, tableContacts)
	if err != nil {
		return err
	}
	return remove(ctx, "contact", matchContact(qb.Delete(returnRepresentation, ""), key))
}

func (c contactStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.Contact, error) {
	qb, err := c.s.from(ctx, tableContacts)
	if err != nil {
		return nil, err
	}
	return list[entities.Contact](ctx, "contact", qb, "*", opts)
}

func (c contactStore) ListWithProfiles(ctx context.Context, opts ports.ListOptions) ([]*entities.ContactWithProfile, error) {
	qb, err := c.s.from(ctx, tableContacts)
	if err != nil {
		return nil, err
	}
	return list[entities.ContactWithProfile](ctx, "contact", qb, selectContactsWithProfile, opts)
}

type sharedGraphStore struct{ s *Store }

func (sg sharedGraphStore) Create(ctx context.Context, in *entities.SharedGraphInsert) (*entities.SharedGraph, error) {
	qb, err := sg.s.from(ctx, tableSharedGraphs)
	if err != nil {
		return nil, err
	}
	return single[entities.SharedGraph](ctx, "shared graph", "create", qb.Insert(in, false, "", returnRepresentation, ""))
}

func (sg sharedGraphStore) Get(ctx context.Context, id string) (*entities.SharedGraph, error) {
	qb, err := sg.s.from(ctx, tableSharedGraphs)
	if err != nil {
		return nil, err
	}
	return single[entities.SharedGraph](ctx, "shared graph", "get", qb.Select("*", "", false).Eq("id", id))
}

func (sg sharedGraphStore) Update(ctx context.Context, id string, in *entities.SharedGraphUpdate) (*entities.SharedGraph, error) {
	qb, err := sg.s.from(ctx, tableSharedGraphs)
	if err != nil {
		return nil, err
	}
	return single[entities.SharedGraph](ctx, "shared graph", "update", qb.Update(in, returnRepresentation, "").Eq("id", id))
}

func (sg sharedGraphStore) Delete(ctx context.Context, id string) error {
	qb, err := sg.s.from(ctx, tableSharedGraphs)
	if err != nil {
		return err
	}
	return remove(ctx, "shared graph", qb.Delete(returnRepresentation, "").Eq("id", id))
}

func (sg sharedGraphStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.SharedGraph, error) {
	qb, err := sg.s.from(ctx, tableSharedGraphs)
	if err != nil {
		return nil, err
	}
	return list[entities.SharedGraph](ctx, "shared graph", qb, "*", opts)
}

// shareRow is a shared_graphs row as returned with its joins.
type shareRow struct {
	entities.SharedGraph
	OwnerProfile *entities.Profile `json:"owner_profile"`
	Graph        *struct {
		Title string `json:"title"`
	} `json:"graph"`
}

// ListWithDetails joins owner usernames and origin titles. The title is
// empty when the origin graph is gone or hidden from the caller.
func (sg sharedGraphStore) ListWithDetails(ctx context.Context, opts ports.ListOptions) ([]*entities.SharedGraphWithDetails, error) {
	qb, err := sg.s.from(ctx, tableSharedGraphs)
	if err != nil {
		return nil, err
	}
	rows, err := list[shareRow](ctx, "shared graph", qb, selectSharesWithDetails, opts)
	if err != nil {
		return nil, err
	}

	out := make([]*entities.SharedGraphWithDetails, len(rows))
	for i, row := range rows {
		out[i] = &entities.SharedGraphWithDetails{SharedGraph: row.SharedGraph, OwnerProfile: row.OwnerProfile}
		if row.Graph != nil {
			out[i].GraphTitle = row.Graph.Title
		}
	}
	return out, nil
}
