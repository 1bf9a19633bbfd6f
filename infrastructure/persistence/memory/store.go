// Package memory is an in-process store for local development and tests.
// It applies the same row visibility rules as the hosted backend's row-level
// security policies for the caller attached to the context. A context
// marked with auth.WithServiceRole sees and writes every row; a context
// without a caller sees only profiles.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"graphboard/application/ports"
	"graphboard/domain/core/entities"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/utils"
)

// Codes attached to PersistenceErrors, matching what the hosted store
// reports for the same failures.
const (
	CodeUniqueViolation = ports.CodeUniqueViolation
	CodeRLSViolation    = ports.CodeRLSViolation
)

// Store holds every record kind in maps guarded by one mutex.
type Store struct {
	clock utils.Clock

	mu       sync.RWMutex
	profiles map[string]entities.Profile
	graphs   map[string]entities.Graph
	contacts map[entities.ContactKey]entities.Contact
	shares   map[string]entities.SharedGraph
	admins   map[string]bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock stamping created_at and updated_at.
func WithClock(clock utils.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:    utils.RealClock{},
		profiles: make(map[string]entities.Profile),
		graphs:   make(map[string]entities.Graph),
		contacts: make(map[entities.ContactKey]entities.Contact),
		shares:   make(map[string]entities.SharedGraph),
		admins:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.Store = (*Store)(nil)

func (s *Store) Profiles() ports.ProfileStore         { return profileStore{s} }
func (s *Store) Graphs() ports.GraphStore             { return graphStore{s} }
func (s *Store) Contacts() ports.ContactStore         { return contactStore{s} }
func (s *Store) SharedGraphs() ports.SharedGraphStore { return sharedGraphStore{s} }

// SetAdmin grants or revokes administrator rights.
func (s *Store) SetAdmin(userID string, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if admin {
		s.admins[userID] = true
	} else {
		delete(s.admins, userID)
	}
}

func (s *Store) IsAdmin(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admins[userID], nil
}

func (s *Store) Ping(context.Context) error { return nil }

// principal is who a request acts for: a user, the service role, or nobody.
type principal struct {
	userID  string
	service bool
}

// is reports whether the principal may act on rows belonging to id.
func (p principal) is(id string) bool {
	return p.service || (p.userID != "" && p.userID == id)
}

func callerOf(ctx context.Context) principal {
	if auth.IsServiceRole(ctx) {
		return principal{service: true}
	}
	user, err := auth.GetUserFromContext(ctx)
	if err != nil {
		return principal{}
	}
	return principal{userID: user.UserID}
}

func newID() string { return uuid.New().String() }

func rlsViolation(op string) error {
	return pkgerrors.NewPersistenceError(op, nil).
		WithCode(CodeRLSViolation).
		WithDetail("reason", "new row violates row-level security policy")
}

func uniqueViolation(op string) error {
	return pkgerrors.NewPersistenceError(op, nil).
		WithCode(CodeUniqueViolation).
		WithDetail("reason", "duplicate key value violates unique constraint")
}

// Profiles: readable by everyone, writable by their owner.

type profileStore struct{ s *Store }

func (p profileStore) Create(ctx context.Context, in *entities.ProfileInsert) (*entities.Profile, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !callerOf(ctx).is(in.ID) {
		return nil, rlsViolation("create profile")
	}

	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.profiles[in.ID]; ok {
		return nil, uniqueViolation("create profile")
	}
	row := entities.Profile{ID: in.ID, Username: in.Username, CreatedAt: p.s.clock.Now().UTC()}
	p.s.profiles[row.ID] = row
	return &row, nil
}

func (p profileStore) Get(_ context.Context, id string) (*entities.Profile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	row, ok := p.s.profiles[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("profile")
	}
	return &row, nil
}

func (p profileStore) Update(ctx context.Context, id string, in *entities.ProfileUpdate) (*entities.Profile, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	row, ok := p.s.profiles[id]
	if !ok || !callerOf(ctx).is(id) {
		return nil, pkgerrors.NewNotFoundError("profile")
	}
	if in.Username != nil {
		row.Username = *in.Username
	}
	p.s.profiles[id] = row
	return &row, nil
}

func (p profileStore) Delete(ctx context.Context, id string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.profiles[id]; !ok || !callerOf(ctx).is(id) {
		return pkgerrors.NewNotFoundError("profile")
	}
	delete(p.s.profiles, id)
	return nil
}

func (p profileStore) List(_ context.Context, opts ports.ListOptions) ([]*entities.Profile, error) {
	p.s.mu.RLock()
	rows := make([]entities.Profile, 0, len(p.s.profiles))
	for _, row := range p.s.profiles {
		rows = append(rows, row)
	}
	p.s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	out, err := query(rows, opts)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("list profiles", err)
	}
	return pointers(out), nil
}

// Graphs: visible to and writable by their owner only.

type graphStore struct{ s *Store }

func (g graphStore) visible(ctx context.Context, row entities.Graph) bool {
	return callerOf(ctx).is(row.OwnerID)
}

func (g graphStore) Create(ctx context.Context, in *entities.GraphInsert) (*entities.Graph, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !callerOf(ctx).is(in.OwnerID) {
		return nil, rlsViolation("create graph")
	}

	now := g.s.clock.Now().UTC()
	row := entities.Graph{
		ID:        newID(),
		OwnerID:   in.OwnerID,
		Title:     in.Title,
		Data:      cloneJSON(in.Data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(row.Data) == 0 {
		row.Data = []byte(`{}`)
	}

	g.s.mu.Lock()
	g.s.graphs[row.ID] = row
	g.s.mu.Unlock()
	return &row, nil
}

func (g graphStore) Get(ctx context.Context, id string) (*entities.Graph, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	row, ok := g.s.graphs[id]
	if !ok || !g.visible(ctx, row) {
		return nil, pkgerrors.NewNotFoundError("graph")
	}
	row.Data = cloneJSON(row.Data)
	return &row, nil
}

func (g graphStore) Update(ctx context.Context, id string, in *entities.GraphUpdate) (*entities.Graph, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	row, ok := g.s.graphs[id]
	if !ok || !g.visible(ctx, row) {
		return nil, pkgerrors.NewNotFoundError("graph")
	}
	if in.Title != nil {
		row.Title = *in.Title
	}
	if len(in.Data) > 0 {
		row.Data = cloneJSON(in.Data)
	}
	if in.UpdatedAt != nil {
		row.UpdatedAt = in.UpdatedAt.UTC()
	} else {
		row.UpdatedAt = g.s.clock.Now().UTC()
	}
	g.s.graphs[id] = row
	row.Data = cloneJSON(row.Data)
	return &row, nil
}

// Delete removes the graph. Snapshots shared from it survive; only their
// link to the origin is lost.
func (g graphStore) Delete(ctx context.Context, id string) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	row, ok := g.s.graphs[id]
	if !ok || !g.visible(ctx, row) {
		return pkgerrors.NewNotFoundError("graph")
	}
	delete(g.s.graphs, id)
	return nil
}

func (g graphStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.Graph, error) {
	g.s.mu.RLock()
	rows := make([]entities.Graph, 0, len(g.s.graphs))
	for _, row := range g.s.graphs {
		if g.visible(ctx, row) {
			row.Data = cloneJSON(row.Data)
			rows = append(rows, row)
		}
	}
	g.s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	out, err := query(rows, opts)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("list graphs", err)
	}
	return pointers(out), nil
}

// Contacts: visible to and writable by the user who added them.

type contactStore struct{ s *Store }

func (c contactStore) visible(ctx context.Context, row entities.Contact) bool {
	return callerOf(ctx).is(row.UserID)
}

func (c contactStore) Create(ctx context.Context, in *entities.ContactInsert) (*entities.Contact, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !callerOf(ctx).is(in.UserID) {
		return nil, rlsViolation("create contact")
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	key := entities.ContactKey{UserID: in.UserID, ContactID: in.ContactID}
	if _, ok := c.s.contacts[key]; ok {
		return nil, uniqueViolation("create contact")
	}
	row := entities.Contact{UserID: in.UserID, ContactID: in.ContactID, CreatedAt: c.s.clock.Now().UTC()}
	c.s.contacts[key] = row
	return &row, nil
}

func (c contactStore) Get(ctx context.Context, key entities.ContactKey) (*entities.Contact, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	row, ok := c.s.contacts[key]
	if !ok || !c.visible(ctx, row) {
		return nil, pkgerrors.NewNotFoundError("contact")
	}
	return &row, nil
}

func (c contactStore) Update(ctx context.Context, key entities.ContactKey, in *entities.ContactUpdate) (*entities.Contact, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	row, ok := c.s.contacts[key]
	if !ok || !c.visible(ctx, row) {
		return nil, pkgerrors.NewNotFoundError("contact")
	}
	if in.ContactID == nil || *in.ContactID == key.ContactID {
		return &row, nil
	}
	next := entities.ContactKey{UserID: key.UserID, ContactID: *in.ContactID}
	if _, taken := c.s.contacts[next]; taken {
		return nil, uniqueViolation("update contact")
	}
	delete(c.s.contacts, key)
	row.ContactID = next.ContactID
	c.s.contacts[next] = row
	return &row, nil
}

func (c contactStore) Delete(ctx context.Context, key entities.ContactKey) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	row, ok := c.s.contacts[key]
	if !ok || !c.visible(ctx, row) {
		return pkgerrors.NewNotFoundError("contact")
	}
	delete(c.s.contacts, key)
	return nil
}

func (c contactStore) rows(ctx context.Context) []entities.Contact {
	rows := make([]entities.Contact, 0, len(c.s.contacts))
	for _, row := range c.s.contacts {
		if c.visible(ctx, row) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID < rows[j].UserID
		}
		return rows[i].ContactID < rows[j].ContactID
	})
	return rows
}

func (c contactStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.Contact, error) {
	c.s.mu.RLock()
	rows := c.rows(ctx)
	c.s.mu.RUnlock()

	out, err := query(rows, opts)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("list contacts", err)
	}
	return pointers(out), nil
}

// ListWithProfiles joins each contact with the contact's profile.
func (c contactStore) ListWithProfiles(ctx context.Context, opts ports.ListOptions) ([]*entities.ContactWithProfile, error) {
	c.s.mu.RLock()
	contacts := c.rows(ctx)
	rows := make([]entities.ContactWithProfile, len(contacts))
	for i, contact := range contacts {
		rows[i] = entities.ContactWithProfile{Contact: contact}
		if profile, ok := c.s.profiles[contact.ContactID]; ok {
			rows[i].Profile = &profile
		}
	}
	c.s.mu.RUnlock()

	out, err := query(rows, opts)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("list contacts", err)
	}
	return pointers(out), nil
}

// Shared graphs: visible to owner and recipient, created by the owner.

type sharedGraphStore struct{ s *Store }

func (sg sharedGraphStore) visible(ctx context.Context, row entities.SharedGraph) bool {
	p := callerOf(ctx)
	return p.is(row.OwnerID) || p.is(row.RecipientID)
}

func (sg sharedGraphStore) Create(ctx context.Context, in *entities.SharedGraphInsert) (*entities.SharedGraph, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if !callerOf(ctx).is(in.OwnerID) {
		return nil, rlsViolation("create shared graph")
	}

	row := entities.SharedGraph{
		ID:                newID(),
		GraphID:           in.GraphID,
		OwnerID:           in.OwnerID,
		RecipientID:       in.RecipientID,
		SharedAt:          sg.s.clock.Now().UTC(),
		GraphDataSnapshot: cloneJSON(in.GraphDataSnapshot),
	}

	sg.s.mu.Lock()
	sg.s.shares[row.ID] = row
	sg.s.mu.Unlock()
	return &row, nil
}

func (sg sharedGraphStore) Get(ctx context.Context, id string) (*entities.SharedGraph, error) {
	sg.s.mu.RLock()
	defer sg.s.mu.RUnlock()
	row, ok := sg.s.shares[id]
	if !ok || !sg.visible(ctx, row) {
		return nil, pkgerrors.NewNotFoundError("shared graph")
	}
	row.GraphDataSnapshot = cloneJSON(row.GraphDataSnapshot)
	return &row, nil
}

// Update can only re-address the share; only the owner may do so.
func (sg sharedGraphStore) Update(ctx context.Context, id string, in *entities.SharedGraphUpdate) (*entities.SharedGraph, error) {
	sg.s.mu.Lock()
	defer sg.s.mu.Unlock()
	row, ok := sg.s.shares[id]
	if !ok || !callerOf(ctx).is(row.OwnerID) {
		return nil, pkgerrors.NewNotFoundError("shared graph")
	}
	if in.RecipientID != nil {
		row.RecipientID = *in.RecipientID
	}
	sg.s.shares[id] = row
	row.GraphDataSnapshot = cloneJSON(row.GraphDataSnapshot)
	return &row, nil
}

func (sg sharedGraphStore) Delete(ctx context.Context, id string) error {
	sg.s.mu.Lock()
	defer sg.s.mu.Unlock()
	row, ok := sg.s.shares[id]
	if !ok || !sg.visible(ctx, row) {
		return pkgerrors.NewNotFoundError("shared graph")
	}
	delete(sg.s.shares, id)
	return nil
}

func (sg sharedGraphStore) rows(ctx context.Context) []entities.SharedGraph {
	rows := make([]entities.SharedGraph, 0, len(sg.s.shares))
	for _, row := range sg.s.shares {
		if sg.visible(ctx, row) {
			row.GraphDataSnapshot = cloneJSON(row.GraphDataSnapshot)
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func (sg sharedGraphStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.SharedGraph, error) {
	sg.s.mu.RLock()
	rows := sg.rows(ctx)
	sg.s.mu.RUnlock()

	out, err := query(rows, opts)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("list shared graphs", err)
	}
	return pointers(out), nil
}

// ListWithDetails joins each share with its owner's profile and the origin
// graph's title. The title is empty when the caller cannot see the origin
// graph, as with the hosted store's joins under row-level security.
func (sg sharedGraphStore) ListWithDetails(ctx context.Context, opts ports.ListOptions) ([]*entities.SharedGraphWithDetails, error) {
	graphs := graphStore{sg.s}

	sg.s.mu.RLock()
	shares := sg.rows(ctx)
	rows := make([]entities.SharedGraphWithDetails, len(shares))
	for i, share := range shares {
		rows[i] = entities.SharedGraphWithDetails{SharedGraph: share}
		if profile, ok := sg.s.profiles[share.OwnerID]; ok {
			rows[i].OwnerProfile = &profile
		}
		if graph, ok := sg.s.graphs[share.GraphID]; ok && graphs.visible(ctx, graph) {
			rows[i].GraphTitle = graph.Title
		}
	}
	sg.s.mu.RUnlock()

	out, err := query(rows, opts)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("list shared graphs", err)
	}
	return pointers(out), nil
}

func pointers[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

func cloneJSON(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
