package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/domain/config"
	"graphboard/domain/core/entities"
	"graphboard/domain/events"
	"graphboard/infrastructure/persistence/memory"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/observability"
	"graphboard/pkg/utils"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetEventType()
	}
	return out
}

type fakeAuthenticator struct {
	ports.Authenticator
	created *ports.AuthUser
	err     error
}

func (f *fakeAuthenticator) AdminCreateUser(_ context.Context, email, _ string, metadata map[string]interface{}) (*ports.AuthUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	username, _ := metadata["username"].(string)
	f.created = &ports.AuthUser{ID: "new-user", Email: email, Username: username}
	return f.created, nil
}

type fixture struct {
	store     *memory.Store
	clock     *utils.ManualClock
	publisher *recordingPublisher
	metrics   *observability.Collector
	rules     *config.DomainConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := utils.NewManualClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	f := &fixture{
		store:     memory.New(memory.WithClock(clock)),
		clock:     clock,
		publisher: &recordingPublisher{},
		metrics:   observability.NewCollector("test"),
		rules:     config.DefaultDomainConfig(),
	}
	for _, p := range []entities.ProfileInsert{
		{ID: "alice", Username: "alice"},
		{ID: "bob", Username: "bobby"},
		{ID: "carol", Username: "carol"},
	} {
		p := p
		_, err := f.store.Profiles().Create(as(p.ID), &p)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) opts() []Option {
	return []Option{WithClock(f.clock), WithMetrics(f.metrics)}
}

func as(userID string) context.Context {
	return auth.SetUserInContext(context.Background(), &auth.UserContext{UserID: userID})
}

func TestGraphService(t *testing.T) {
	f := newFixture(t)
	svc := NewGraphService(f.store, f.publisher, f.rules, zap.NewNop(), f.opts()...)
	ctx := as("alice")

	first, err := svc.CreateGraph(ctx, "  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Untitled Graph", first.Title)
	assert.Equal(t, "alice", first.OwnerID)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(first.Data))

	f.clock.Advance(time.Minute)
	second, err := svc.CreateGraph(ctx, "Roadmap", json.RawMessage(`{"nodes":[{"id":"a","position":{"x":1,"y":2},"data":{"label":"A"},"selected":true}],"edges":[]}`))
	require.NoError(t, err)
	assert.NotContains(t, string(second.Data), "selected")

	list, err := svc.ListGraphs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "most recently updated first")

	others, err := svc.ListGraphs(as("bob"))
	require.NoError(t, err)
	assert.Empty(t, others)

	f.clock.Advance(time.Minute)
	renamed, err := svc.RenameGraph(ctx, first.ID, " Plan ")
	require.NoError(t, err)
	assert.Equal(t, "Plan", renamed.Title)

	require.NoError(t, svc.DeleteGraph(ctx, second.ID))
	_, err = svc.GetGraph(ctx, second.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	assert.Equal(t, []string{events.TypeGraphCreated, events.TypeGraphCreated, events.TypeGraphDeleted}, f.publisher.types())
}

func TestGraphServiceFailures(t *testing.T) {
	f := newFixture(t)
	svc := NewGraphService(f.store, f.publisher, f.rules, zap.NewNop(), f.opts()...)
	existing, err := svc.CreateGraph(as("alice"), "Mine", nil)
	require.NoError(t, err)

	long := strings.Repeat("t", f.rules.MaxTitleLength+1)
	tests := []struct {
		name  string
		run   func() error
		check func(error) bool
	}{
		{
			name:  "anonymous caller",
			run:   func() error { _, err := svc.ListGraphs(context.Background()); return err },
			check: pkgerrors.IsUnauthorized,
		},
		{
			name:  "malformed data",
			run:   func() error { _, err := svc.CreateGraph(as("alice"), "x", json.RawMessage(`{"nodes":{}}`)); return err },
			check: pkgerrors.IsMalformedDocument,
		},
		{
			name:  "title too long",
			run:   func() error { _, err := svc.CreateGraph(as("alice"), long, nil); return err },
			check: pkgerrors.IsValidation,
		},
		{
			name:  "empty rename",
			run:   func() error { _, err := svc.RenameGraph(as("alice"), existing.ID, ""); return err },
			check: pkgerrors.IsValidation,
		},
		{
			name:  "rename someone else's graph",
			run:   func() error { _, err := svc.RenameGraph(as("bob"), existing.ID, "Taken"); return err },
			check: pkgerrors.IsNotFound,
		},
		{
			name:  "delete someone else's graph",
			run:   func() error { return svc.DeleteGraph(as("bob"), existing.ID) },
			check: pkgerrors.IsNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestPublishFailureDoesNotFailTheOperation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("bus down")
	svc := NewGraphService(f.store, f.publisher, f.rules, zap.NewNop(), f.opts()...)

	_, err := svc.CreateGraph(as("alice"), "Still saved", nil)
	assert.NoError(t, err)
}

func TestShareGraph(t *testing.T) {
	f := newFixture(t)
	graphs := NewGraphService(f.store, f.publisher, f.rules, zap.NewNop(), f.opts()...)
	contacts := NewContactService(f.store, f.publisher, zap.NewNop(), f.opts()...)
	sharing := NewSharingService(f.store, f.publisher, nil, f.rules, zap.NewNop(), f.opts()...)
	alice := as("alice")

	g, err := graphs.CreateGraph(alice, "Plan", json.RawMessage(`{"nodes":[{"id":"a","position":{"x":0,"y":0},"data":{"label":"A"}}],"edges":[]}`))
	require.NoError(t, err)

	_, err = sharing.ShareGraph(alice, g.ID, "bob")
	assert.True(t, pkgerrors.IsValidation(err), "bob is not a contact yet")
	_, err = sharing.ShareGraph(alice, g.ID, "alice")
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = contacts.AddContact(alice, "bob")
	require.NoError(t, err)
	share, err := sharing.ShareGraph(alice, g.ID, "bob")
	require.NoError(t, err)
	assert.JSONEq(t, string(g.Data), string(share.GraphDataSnapshot))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GraphsShared))

	_, err = f.store.Graphs().Update(alice, g.ID, &entities.GraphUpdate{Data: json.RawMessage(`{"nodes":[],"edges":[]}`)})
	require.NoError(t, err)

	received, err := sharing.ListReceived(as("bob"))
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, entities.DefaultSharedTitle, received[0].GraphTitle)
	assert.Equal(t, "alice", received[0].OwnerProfile.Username)
	assert.Contains(t, string(received[0].GraphDataSnapshot), `"A"`, "snapshot is not refreshed")

	sent, err := sharing.ListSent(alice)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "Plan", sent[0].GraphTitle)

	_, err = sharing.ShareGraph(as("bob"), g.ID, "alice")
	assert.Error(t, err, "bob has no contact and no access to the graph")

	require.NoError(t, sharing.RemoveShare(as("bob"), share.ID))
	received, err = sharing.ListReceived(as("bob"))
	require.NoError(t, err)
	assert.Empty(t, received)

	assert.Equal(t, []string{
		events.TypeGraphCreated, events.TypeContactAdded, events.TypeGraphShared, events.TypeShareRemoved,
	}, f.publisher.types())
}

func TestShareWithoutContactRequirement(t *testing.T) {
	f := newFixture(t)
	f.rules.RequireContactForSharing = false
	graphs := NewGraphService(f.store, nil, f.rules, zap.NewNop())
	sharing := NewSharingService(f.store, nil, nil, f.rules, zap.NewNop())

	g, err := graphs.CreateGraph(as("alice"), "Open", nil)
	require.NoError(t, err)
	_, err = sharing.ShareGraph(as("alice"), g.ID, "carol")
	assert.NoError(t, err)

	_, err = sharing.OpenShared(as("carol"), "anything")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable))
}

func TestContactService(t *testing.T) {
	f := newFixture(t)
	svc := NewContactService(f.store, f.publisher, zap.NewNop(), f.opts()...)
	alice := as("alice")

	_, err := svc.AddContact(alice, "bob")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = svc.AddContact(alice, "carol")
	require.NoError(t, err)

	tests := []struct {
		name      string
		contactID string
		check     func(error) bool
	}{
		{name: "duplicate", contactID: "bob", check: pkgerrors.IsConflict},
		{name: "self", contactID: "alice", check: pkgerrors.IsValidation},
		{name: "blank", contactID: " ", check: pkgerrors.IsValidation},
		{name: "unknown profile", contactID: "mallory", check: pkgerrors.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddContact(alice, tt.contactID)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	list, err := svc.ListContacts(alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "carol", list[0].ContactID, "most recently added first")
	assert.Equal(t, "bobby", list[1].Profile.Username)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ContactsAdded))

	theirs, err := svc.ListContacts(as("bob"))
	require.NoError(t, err)
	assert.Empty(t, theirs)

	require.NoError(t, svc.RemoveContact(alice, "bob"))
	assert.True(t, pkgerrors.IsNotFound(svc.RemoveContact(alice, "bob")))
}

func TestProfileService(t *testing.T) {
	f := newFixture(t)
	f.rules.ProfileSearchLimit = 1
	svc := NewProfileService(f.store, f.rules, zap.NewNop())

	me, err := svc.CurrentProfile(as("bob"))
	require.NoError(t, err)
	assert.Equal(t, "bobby", me.Username)

	found, err := svc.SearchProfiles(as("alice"), "O")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bobby", found[0].Username)

	found, err = svc.SearchProfiles(as("alice"), "  ")
	require.NoError(t, err)
	assert.Empty(t, found)

	updated, err := svc.UpdateUsername(as("bob"), " robert ")
	require.NoError(t, err)
	assert.Equal(t, "robert", updated.Username)

	_, err = svc.UpdateUsername(as("bob"), "")
	assert.True(t, pkgerrors.IsValidation(err))
	_, err = svc.UpdateUsername(as("bob"), strings.Repeat("u", f.rules.MaxUsernameLength+1))
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestAdminCreateUser(t *testing.T) {
	valid := CreateUserRequest{Email: "new@example.com", Password: "secret123", Username: "newbie"}

	tests := []struct {
		name     string
		caller   string
		req      CreateUserRequest
		authErr  error
		check    func(error) bool
		wantUser bool
	}{
		{name: "created", caller: "root", req: valid, wantUser: true},
		{name: "not an admin", caller: "alice", req: valid, check: pkgerrors.IsForbidden},
		{name: "anonymous", req: valid, check: pkgerrors.IsUnauthorized},
		{name: "missing username", caller: "root", req: CreateUserRequest{Email: "a@b.c", Password: "secret123"}, check: pkgerrors.IsValidation},
		{name: "bad email", caller: "root", req: CreateUserRequest{Email: "nope", Password: "secret123", Username: "x"}, check: pkgerrors.IsValidation},
		{name: "backend refuses", caller: "root", req: valid, authErr: pkgerrors.NewAuthError("User already registered"), check: pkgerrors.IsAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.SetAdmin("root", true)
			authn := &fakeAuthenticator{err: tt.authErr}
			svc := NewAdminService(f.store, authn, f.publisher, zap.NewNop(), f.opts()...)

			ctx := context.Background()
			if tt.caller != "" {
				ctx = as(tt.caller)
			}
			user, err := svc.CreateUser(ctx, tt.req)
			if !tt.wantUser {
				require.Error(t, err)
				assert.True(t, tt.check(err), "unexpected error: %v", err)
				assert.Nil(t, authn.created)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, &CreatedUser{ID: "new-user", Email: "new@example.com", Username: "newbie"}, user)
			profile, err := f.store.Profiles().Get(ctx, "new-user")
			require.NoError(t, err)
			assert.Equal(t, "newbie", profile.Username)
			assert.Equal(t, []string{events.TypeUserCreated}, f.publisher.types())
		})
	}
}

func TestAdminForbiddenMessage(t *testing.T) {
	f := newFixture(t)
	svc := NewAdminService(f.store, &fakeAuthenticator{}, nil, zap.NewNop())

	_, err := svc.CreateUser(as("alice"), CreateUserRequest{})
	require.Error(t, err)
	assert.Equal(t, "Access denied. Admin privileges required.", pkgerrors.GetAppError(err).Message)

	ok, err := svc.IsAdmin(as("alice"))
	require.NoError(t, err)
	assert.False(t, ok)
}
