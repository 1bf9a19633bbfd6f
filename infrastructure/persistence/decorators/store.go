// Package decorators wraps a ports.Store with cross-cutting behaviour.
// Every store call passes through a chain of Middleware, outermost first.
package decorators

import (
	"context"

	"graphboard/application/ports"
	"graphboard/domain/core/entities"
)

// Middleware runs around one store call. kind names the record kind
// ("graph", "profile", ...) and op the operation ("get", "list", ...).
type Middleware func(ctx context.Context, kind, op string, next func(context.Context) error) error

type chain []Middleware

func (c chain) run(ctx context.Context, kind, op string, fn func(context.Context) error) error {
	if len(c) == 0 {
		return fn(ctx)
	}
	return c[0](ctx, kind, op, func(ctx context.Context) error {
		return c[1:].run(ctx, kind, op, fn)
	})
}

func do[T any](ctx context.Context, c chain, kind, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := c.run(ctx, kind, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

// Wrap returns inner with every call passing through mws.
func Wrap(inner ports.Store, mws ...Middleware) ports.Store {
	return &store{inner: inner, chain: chain(mws)}
}

type store struct {
	inner ports.Store
	chain chain
}

func (s *store) Profiles() ports.ProfileStore {
	return profileStore{inner: s.inner.Profiles(), chain: s.chain}
}

func (s *store) Graphs() ports.GraphStore {
	return graphStore{inner: s.inner.Graphs(), chain: s.chain}
}

func (s *store) Contacts() ports.ContactStore {
	return contactStore{inner: s.inner.Contacts(), chain: s.chain}
}

func (s *store) SharedGraphs() ports.SharedGraphStore {
	return sharedGraphStore{inner: s.inner.SharedGraphs(), chain: s.chain}
}

func (s *store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return do(ctx, s.chain, "admin", "is_admin", func(ctx context.Context) (bool, error) {
		return s.inner.IsAdmin(ctx, userID)
	})
}

func (s *store) Ping(ctx context.Context) error {
	return s.chain.run(ctx, "store", "ping", s.inner.Ping)
}

type profileStore struct {
	inner ports.ProfileStore
	chain chain
}

func (p profileStore) Create(ctx context.Context, in *entities.ProfileInsert) (*entities.Profile, error) {
	return do(ctx, p.chain, "profile", "create", func(ctx context.Context) (*entities.Profile, error) {
		return p.inner.Create(ctx, in)
	})
}

func (p profileStore) Get(ctx context.Context, id string) (*entities.Profile, error) {
	return do(ctx, p.chain, "profile", "get", func(ctx context.Context) (*entities.Profile, error) {
		return p.inner.Get(ctx, id)
	})
}

func (p profileStore) Update(ctx context.Context, id string, in *entities.ProfileUpdate) (*entities.Profile, error) {
	return do(ctx, p.chain, "profile", "update", func(ctx context.Context) (*entities.Profile, error) {
		return p.inner.Update(ctx, id, in)
	})
}

func (p profileStore) Delete(ctx context.Context, id string) error {
	return p.chain.run(ctx, "profile", "delete", func(ctx context.Context) error {
		return p.inner.Delete(ctx, id)
	})
}

func (p profileStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.Profile, error) {
	return do(ctx, p.chain, "profile", "list", func(ctx context.Context) ([]*entities.Profile, error) {
		return p.inner.List(ctx, opts)
	})
}

type graphStore struct {
	inner ports.GraphStore
	chain chain
}

func (g graphStore) Create(ctx context.Context, in *entities.GraphInsert) (*entities.Graph, error) {
	return do(ctx, g.chain, "graph", "create", func(ctx context.Context) (*entities.Graph, error) {
		return g.inner.Create(ctx, in)
	})
}

func (g graphStore) Get(ctx context.Context, id string) (*entities.Graph, error) {
	return do(ctx, g.chain, "graph", "get", func(ctx context.Context) (*entities.Graph, error) {
		return g.inner.Get(ctx, id)
	})
}

func (g graphStore) Update(ctx context.Context, id string, in *entities.GraphUpdate) (*entities.Graph, error) {
	return do(ctx, g.chain, "graph", "update", func(ctx context.Context) (*entities.Graph, error) {
		return g.inner.Update(ctx, id, in)
	})
}

func (g graphStore) Delete(ctx context.Context, id string) error {
	return g.chain.run(ctx, "graph", "delete", func(ctx context.Context) error {
		return g.inner.Delete(ctx, id)
	})
}

func (g graphStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.Graph, error) {
	return do(ctx, g.chain, "graph", "list", func(ctx context.Context) ([]*entities.Graph, error) {
		return g.inner.List(ctx, opts)
	})
}

type contactStore struct {
	inner ports.ContactStore
	chain chain
}

func (c contactStore) Create(ctx context.Context, in *entities.ContactInsert) (*entities.Contact, error) {
	return do(ctx, c.chain, "contact", "create", func(ctx context.Context) (*entities.Contact, error) {
		return c.inner.Create(ctx, in)
	})
}

func (c contactStore) Get(ctx context.Context, key entities.ContactKey) (*entities.Contact, error) {
	return do(ctx, c.chain, "contact", "get", func(ctx context.Context) (*entities.Contact, error) {
		return c.inner.Get(ctx, key)
	})
}

func (c contactStore) Update(ctx context.Context, key entities.ContactKey, in *entities.ContactUpdate) (*entities.Contact, error) {
	return do(ctx, c.chain, "contact", "update", func(ctx context.Context) (*entities.Contact, error) {
		return c.inner.Update(ctx, key, in)
	})
}

func (c contactStore) Delete(ctx context.Context, key entities.ContactKey) error {
	return c.chain.run(ctx, "contact", "delete", func(ctx context.Context) error {
		return c.inner.Delete(ctx, key)
	})
}

func (c contactStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.Contact, error) {
	return do(ctx, c.chain, "contact", "list", func(ctx context.Context) ([]*entities.Contact, error) {
		return c.inner.List(ctx, opts)
	})
}

func (c contactStore) ListWithProfiles(ctx context.Context, opts ports.ListOptions) ([]*entities.ContactWithProfile, error) {
	return do(ctx, c.chain, "contact", "list_with_profiles", func(ctx context.Context) ([]*entities.ContactWithProfile, error) {
		return c.inner.ListWithProfiles(ctx, opts)
	})
}

type sharedGraphStore struct {
	inner ports.SharedGraphStore
	chain chain
}

func (sg sharedGraphStore) Create(ctx context.Context, in *entities.SharedGraphInsert) (*entities.SharedGraph, error) {
	return do(ctx, sg.chain, "shared_graph", "create", func(ctx context.Context) (*entities.SharedGraph, error) {
		return sg.inner.Create(ctx, in)
	})
}

func (sg sharedGraphStore) Get(ctx context.Context, id string) (*entities.SharedGraph, error) {
	return do(ctx, sg.chain, "shared_graph", "get", func(ctx context.Context) (*entities.SharedGraph, error) {
		return sg.inner.Get(ctx, id)
	})
}

func (sg sharedGraphStore) Update(ctx context.Context, id string, in *entities.SharedGraphUpdate) (*entities.SharedGraph, error) {
	return do(ctx, sg.chain, "shared_graph", "update", func(ctx context.Context) (*entities.SharedGraph, error) {
		return sg.inner.Update(ctx, id, in)
	})
}

func (sg sharedGraphStore) Delete(ctx context.Context, id string) error {
	return sg.chain.run(ctx, "shared_graph", "delete", func(ctx context.Context) error {
		return sg.inner.Delete(ctx, id)
	})
}

func (sg sharedGraphStore) List(ctx context.Context, opts ports.ListOptions) ([]*entities.SharedGraph, error) {
	return do(ctx, sg.chain, "shared_graph", "list", func(ctx context.Context) ([]*entities.SharedGraph, error) {
		return sg.inner.List(ctx, opts)
	})
}

func (sg sharedGraphStore) ListWithDetails(ctx context.Context, opts ports.ListOptions) ([]*entities.SharedGraphWithDetails, error) {
	return do(ctx, sg.chain, "shared_graph", "list_with_details", func(ctx context.Context) ([]*entities.SharedGraphWithDetails, error) {
		return sg.inner.ListWithDetails(ctx, opts)
	})
}
