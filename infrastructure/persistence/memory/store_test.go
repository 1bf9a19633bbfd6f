package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphboard/application/ports"
	"graphboard/domain/core/entities"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/utils"
)

func as(userID string) context.Context {
	return auth.SetUserInContext(context.Background(), &auth.UserContext{UserID: userID})
}

func seeded(t *testing.T) (*Store, *utils.ManualClock) {
	t.Helper()
	clock := utils.NewManualClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	s := New(WithClock(clock))
	for _, p := range []entities.ProfileInsert{{ID: "alice", Username: "alice"}, {ID: "bob", Username: "bobby"}, {ID: "carol", Username: "carol"}} {
		p := p
		_, err := s.Profiles().Create(as(p.ID), &p)
		require.NoError(t, err)
	}
	return s, clock
}

func TestGraphVisibility(t *testing.T) {
	s, _ := seeded(t)

	g, err := s.Graphs().Create(as("alice"), &entities.GraphInsert{OwnerID: "alice", Title: "Mine", Data: json.RawMessage(`{"nodes":[],"edges":[]}`)})
	require.NoError(t, err)

	tests := []struct {
		name    string
		ctx     context.Context
		visible bool
	}{
		{name: "owner", ctx: as("alice"), visible: true},
		{name: "stranger", ctx: as("bob"), visible: false},
		{name: "service role", ctx: auth.WithServiceRole(context.Background()), visible: true},
		{name: "anonymous", ctx: context.Background(), visible: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Graphs().Get(tt.ctx, g.ID)
			if tt.visible {
				assert.NoError(t, err)
			} else {
				assert.True(t, pkgerrors.IsNotFound(err))
			}
			_, err = s.Graphs().Update(tt.ctx, g.ID, &entities.GraphUpdate{})
			assert.Equal(t, !tt.visible, pkgerrors.IsNotFound(err))
		})
	}

	_, err = s.Graphs().Create(as("bob"), &entities.GraphInsert{OwnerID: "alice", Title: "Forged"})
	assert.True(t, pkgerrors.IsPersistence(err))
	assert.Equal(t, CodeRLSViolation, pkgerrors.GetAppError(err).Code)
}

func TestGraphListOrderingAndUpdateStamp(t *testing.T) {
	s, clock := seeded(t)
	ctx := as("alice")

	first, err := s.Graphs().Create(ctx, &entities.GraphInsert{OwnerID: "alice", Title: "First"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.Graphs().Create(ctx, &entities.GraphInsert{OwnerID: "alice", Title: "Second"})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	title := "First, renamed"
	updated, err := s.Graphs().Update(ctx, first.ID, &entities.GraphUpdate{Title: &title})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	assert.JSONEq(t, `{}`, string(updated.Data))

	list, err := s.Graphs().List(ctx, ports.ListOptions{
		Filters: []ports.Filter{ports.Eq("owner_id", "alice")},
		OrderBy: "updated_at",
	})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "First, renamed", list[0].Title)
	assert.Equal(t, "Second", list[1].Title)
}

func TestProfileSearch(t *testing.T) {
	s, _ := seeded(t)

	tests := []struct {
		pattern string
		limit   int
		want    []string
	}{
		{pattern: "%BO%", want: []string{"bobby"}},
		{pattern: "%o%", want: []string{"bobby", "carol"}},
		{pattern: "%o%", limit: 1, want: []string{"bobby"}},
		{pattern: "a_ice", want: []string{"alice"}},
		{pattern: "%.%", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			list, err := s.Profiles().List(as("alice"), ports.ListOptions{
				Filters:   []ports.Filter{ports.Ilike("username", tt.pattern)},
				OrderBy:   "username",
				Ascending: true,
				Limit:     tt.limit,
			})
			require.NoError(t, err)
			var got []string
			for _, p := range list {
				got = append(got, p.Username)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContacts(t *testing.T) {
	s, _ := seeded(t)
	ctx := as("alice")

	_, err := s.Contacts().Create(ctx, &entities.ContactInsert{UserID: "alice", ContactID: "bob"})
	require.NoError(t, err)

	_, err = s.Contacts().Create(ctx, &entities.ContactInsert{UserID: "alice", ContactID: "bob"})
	assert.Equal(t, CodeUniqueViolation, pkgerrors.GetAppError(err).Code)

	_, err = s.Contacts().Create(ctx, &entities.ContactInsert{UserID: "alice", ContactID: "alice"})
	assert.True(t, pkgerrors.IsValidation(err))

	withProfiles, err := s.Contacts().ListWithProfiles(ctx, ports.ListOptions{OrderBy: "created_at"})
	require.NoError(t, err)
	require.Len(t, withProfiles, 1)
	assert.Equal(t, "bobby", withProfiles[0].Profile.Username)

	theirs, err := s.Contacts().List(as("bob"), ports.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, theirs, "contacts are directed")

	require.NoError(t, s.Contacts().Delete(ctx, entities.ContactKey{UserID: "alice", ContactID: "bob"}))
	_, err = s.Contacts().Get(ctx, entities.ContactKey{UserID: "alice", ContactID: "bob"})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestSharedGraphDetails(t *testing.T) {
	s, _ := seeded(t)
	owner := as("alice")

	g, err := s.Graphs().Create(owner, &entities.GraphInsert{OwnerID: "alice", Title: "Plan", Data: json.RawMessage(`{"nodes":[],"edges":[]}`)})
	require.NoError(t, err)
	share, err := s.SharedGraphs().Create(owner, &entities.SharedGraphInsert{
		GraphID: g.ID, OwnerID: "alice", RecipientID: "bob", GraphDataSnapshot: g.Data,
	})
	require.NoError(t, err)

	sent, err := s.SharedGraphs().ListWithDetails(owner, ports.ListOptions{Filters: []ports.Filter{ports.Eq("owner_id", "alice")}})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "Plan", sent[0].GraphTitle)
	assert.Equal(t, "alice", sent[0].OwnerProfile.Username)

	received, err := s.SharedGraphs().ListWithDetails(as("bob"), ports.ListOptions{Filters: []ports.Filter{ports.Eq("recipient_id", "bob")}})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Empty(t, received[0].GraphTitle, "the recipient cannot see the origin graph")

	_, err = s.SharedGraphs().Get(as("carol"), share.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	recipient := "carol"
	_, err = s.SharedGraphs().Update(as("bob"), share.ID, &entities.SharedGraphUpdate{RecipientID: &recipient})
	assert.True(t, pkgerrors.IsNotFound(err), "only the owner re-addresses a share")

	require.NoError(t, s.Graphs().Delete(owner, g.ID))
	kept, err := s.SharedGraphs().Get(as("bob"), share.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(kept.GraphDataSnapshot))
}

func TestIsAdmin(t *testing.T) {
	s := New()
	s.SetAdmin("root", true)

	ok, err := s.IsAdmin(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsAdmin(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}
