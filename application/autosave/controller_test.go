package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/application/session"
	"graphboard/domain/core/aggregates"
	"graphboard/domain/core/entities"
	"graphboard/domain/core/valueobjects"
	"graphboard/pkg/auth"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/observability"
	"graphboard/pkg/utils"
)

// recordingStore is a GraphStore that records every write. When gate is set
// each write blocks until the gate is closed.
type recordingStore struct {
	mu      sync.Mutex
	creates []*entities.GraphInsert
	updates []*entities.GraphUpdate
	owners  []string
	fail    error
	gate    chan struct{}
}

func (s *recordingStore) wait() {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (s *recordingStore) Create(ctx context.Context, in *entities.GraphInsert) (*entities.Graph, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, in)
	if user, err := auth.GetUserFromContext(ctx); err == nil {
		s.owners = append(s.owners, user.UserID)
	}
	if s.fail != nil {
		return nil, s.fail
	}
	return &entities.Graph{ID: "g-1", OwnerID: in.OwnerID, Title: in.Title, Data: in.Data}, nil
}

func (s *recordingStore) Get(context.Context, string) (*entities.Graph, error) {
	return nil, pkgerrors.NewNotFoundError("graph")
}

func (s *recordingStore) Update(_ context.Context, id string, in *entities.GraphUpdate) (*entities.Graph, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, in)
	if s.fail != nil {
		return nil, s.fail
	}
	return &entities.Graph{ID: id, Title: *in.Title, Data: in.Data}, nil
}

func (s *recordingStore) Delete(context.Context, string) error { return nil }

func (s *recordingStore) List(context.Context, ports.ListOptions) ([]*entities.Graph, error) {
	return nil, nil
}

func (s *recordingStore) calls() (creates, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates), len(s.updates)
}

func (s *recordingStore) setFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n > 0 && r.states[n-1] == st.State {
		return
	}
	r.states = append(r.states, st.State)
}

func (r *stateRecorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type fixture struct {
	clock    *utils.ManualClock
	store    *recordingStore
	session  *session.Session
	ctrl     *Controller
	recorder *stateRecorder
}

func newFixture(t *testing.T, doc *aggregates.GraphDocument, cfg Config) *fixture {
	t.Helper()
	clock := utils.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	sess := session.New(nil, zap.NewNop())
	sess.Establish(session.Identity{UserID: "u-1", AccessToken: "tok"})

	store := &recordingStore{}
	ctrl := New(doc, store, sess, zap.NewNop(), cfg,
		WithClock(clock),
		WithMetrics(observability.NewCollector("test")))
	recorder := &stateRecorder{}
	ctrl.Subscribe(recorder.record)
	t.Cleanup(func() { _ = ctrl.Close(context.Background()) })

	return &fixture{clock: clock, store: store, session: sess, ctrl: ctrl, recorder: recorder}
}

func (f *fixture) mutate(t *testing.T, fn func(*aggregates.GraphDocument) *aggregates.GraphDocument) {
	t.Helper()
	_, err := f.ctrl.Update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool) {
		return fn(d), true
	})
	require.NoError(t, err)
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.ctrl.Wait(ctx))
}

func addNode(id string, x float64) func(*aggregates.GraphDocument) *aggregates.GraphDocument {
	return func(d *aggregates.GraphDocument) *aggregates.GraphDocument {
		return d.AddNode(aggregates.NewNode(id, valueobjects.NodeTypeDefault, valueobjects.Position{X: x, Y: 0}, d.NodeCount()+1))
	}
}

func moveNode(id string, x float64) func(*aggregates.GraphDocument) *aggregates.GraphDocument {
	return func(d *aggregates.GraphDocument) *aggregates.GraphDocument {
		pos := valueobjects.Position{X: x, Y: 10}
		return d.ApplyNodeChanges([]aggregates.NodeChange{{Type: aggregates.NodeChangePosition, ID: id, Position: &pos}})
	}
}

func TestCreateThenUpdate(t *testing.T) {
	f := newFixture(t, aggregates.NewDocument(), Config{})

	f.mutate(t, addNode("1", 0))
	f.mutate(t, addNode("2", 200))
	f.mutate(t, func(d *aggregates.GraphDocument) *aggregates.GraphDocument {
		next, _ := d.Connect(aggregates.Connection{Source: "1", Target: "2"})
		return next
	})
	assert.Equal(t, Dirty, f.ctrl.Status().State)

	f.clock.Advance(DefaultDebounce)
	f.wait(t)

	creates, updates := f.store.calls()
	require.Equal(t, 1, creates)
	assert.Zero(t, updates)
	assert.Equal(t, []State{Dirty, Saving, Clean}, f.recorder.get())

	in := f.store.creates[0]
	assert.Equal(t, aggregates.DefaultTitle, in.Title)
	assert.Equal(t, "u-1", in.OwnerID)
	assert.Equal(t, []string{"u-1"}, f.store.owners)
	saved, err := aggregates.DecodeData(in.Data)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.NodeCount())
	assert.Equal(t, 1, saved.EdgeCount())

	status := f.ctrl.Status()
	assert.Equal(t, "g-1", status.GraphID)
	assert.False(t, status.LastSavedAt.IsZero())

	f.mutate(t, moveNode("1", 50))
	f.clock.Advance(DefaultDebounce)
	f.wait(t)

	creates, updates = f.store.calls()
	assert.Equal(t, 1, creates, "a bound document is never created twice")
	assert.Equal(t, 1, updates)
	assert.Equal(t, Clean, f.ctrl.Status().State)
}

func TestDebounceCoalescing(t *testing.T) {
	tests := []struct {
		name      string
		gaps      []time.Duration
		wantSaves int
	}{
		{name: "burst inside one window", gaps: []time.Duration{0, 500 * time.Millisecond, time.Second, 1900 * time.Millisecond}, wantSaves: 1},
		{name: "two quiet periods", gaps: []time.Duration{0, 100 * time.Millisecond, 3 * time.Second, 100 * time.Millisecond}, wantSaves: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, aggregates.NewDocument(), Config{})
			f.mutate(t, addNode("1", 0))

			for i, gap := range tt.gaps {
				f.clock.Advance(gap)
				f.wait(t)
				f.mutate(t, moveNode("1", float64(i*10)))
			}
			f.clock.Advance(DefaultDebounce)
			f.wait(t)
			f.clock.Advance(10 * DefaultDebounce)
			f.wait(t)

			creates, updates := f.store.calls()
			assert.Equal(t, tt.wantSaves, creates+updates)
			assert.Equal(t, Clean, f.ctrl.Status().State)
		})
	}
}

func TestSelectionDoesNotDirty(t *testing.T) {
	f := newFixture(t, aggregates.NewDocument(), Config{})

	_, err := f.ctrl.Update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool) {
		return d.AddNode(aggregates.Node{ID: "1"}), false
	})
	require.NoError(t, err)

	assert.Equal(t, Clean, f.ctrl.Status().State)
	assert.Zero(t, f.clock.Pending())
	assert.Equal(t, 1, f.ctrl.Document().NodeCount())
}

func TestFailureThenRearm(t *testing.T) {
	f := newFixture(t, aggregates.NewDocument(), Config{})
	f.store.setFail(pkgerrors.NewPersistenceError("create graph", errors.New("connection reset")))

	f.mutate(t, addNode("1", 0))
	f.clock.Advance(DefaultDebounce)
	f.wait(t)

	status := f.ctrl.Status()
	assert.Equal(t, Error, status.State)
	assert.True(t, pkgerrors.IsPersistence(status.LastError))
	assert.Zero(t, f.clock.Pending(), "failed saves are not retried on their own")

	f.clock.Advance(time.Minute)
	creates, _ := f.store.calls()
	assert.Equal(t, 1, creates)

	f.store.setFail(nil)
	f.mutate(t, moveNode("1", 40))
	assert.Equal(t, Dirty, f.ctrl.Status().State)
	f.clock.Advance(DefaultDebounce)
	f.wait(t)

	creates, updates := f.store.calls()
	assert.Equal(t, 2, creates, "the document was never bound, so the retry creates")
	assert.Zero(t, updates)
	assert.Equal(t, Clean, f.ctrl.Status().State)
	assert.Nil(t, f.ctrl.Status().LastError)
}

func TestManualSave(t *testing.T) {
	t.Run("bypasses the debounce", func(t *testing.T) {
		f := newFixture(t, aggregates.NewDocument(), Config{})
		f.mutate(t, addNode("1", 0))

		status, err := f.ctrl.Save(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Clean, status.State)
		assert.Equal(t, "g-1", status.GraphID)
		assert.Zero(t, f.clock.Pending())
	})

	t.Run("creates a never-persisted clean document", func(t *testing.T) {
		f := newFixture(t, aggregates.NewDocument(), Config{})
		_, err := f.ctrl.Save(context.Background())
		require.NoError(t, err)
		creates, _ := f.store.calls()
		assert.Equal(t, 1, creates)
	})

	t.Run("no-op for a clean persisted document", func(t *testing.T) {
		doc, err := aggregates.NewDocument().WithID("g-7")
		require.NoError(t, err)
		f := newFixture(t, doc, Config{})

		status, err := f.ctrl.Save(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Clean, status.State)
		creates, updates := f.store.calls()
		assert.Zero(t, creates+updates)
	})

	t.Run("reports the failure", func(t *testing.T) {
		f := newFixture(t, aggregates.NewDocument(), Config{})
		f.store.setFail(pkgerrors.NewPersistenceError("create graph", nil))
		f.mutate(t, addNode("1", 0))

		status, err := f.ctrl.Save(context.Background())
		assert.True(t, pkgerrors.IsPersistence(err))
		assert.Equal(t, Error, status.State)
	})
}

func TestSaveWhileSavingIsSingleWrite(t *testing.T) {
	f := newFixture(t, aggregates.NewDocument(), Config{})
	gate := make(chan struct{})
	f.store.gate = gate
	f.mutate(t, addNode("1", 0))

	first := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Save(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return f.ctrl.Status().State == Saving }, time.Second, time.Millisecond)

	status, err := f.ctrl.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Saving, status.State)

	close(gate)
	require.NoError(t, <-first)
	f.wait(t)

	creates, updates := f.store.calls()
	assert.Equal(t, 1, creates)
	assert.Zero(t, updates)
}

func TestMutationDuringSaveResavesImmediately(t *testing.T) {
	f := newFixture(t, aggregates.NewDocument(), Config{})
	gate := make(chan struct{})
	f.store.gate = gate

	f.mutate(t, addNode("1", 0))
	f.clock.Advance(DefaultDebounce)
	require.Equal(t, Saving, f.ctrl.Status().State)

	f.mutate(t, addNode("2", 100))
	assert.Equal(t, Saving, f.ctrl.Status().State)

	close(gate)
	f.wait(t)

	creates, updates := f.store.calls()
	require.Equal(t, 1, creates)
	require.Equal(t, 1, updates)

	first, err := aggregates.DecodeData(f.store.creates[0].Data)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NodeCount(), "the in-flight payload is a snapshot")
	second, err := aggregates.DecodeData(f.store.updates[0].Data)
	require.NoError(t, err)
	assert.Equal(t, 2, second.NodeCount())

	assert.Equal(t, []State{Dirty, Saving, Dirty, Saving, Clean}, f.recorder.get())
	assert.Zero(t, f.clock.Pending(), "the re-save does not wait for the debounce")
}

func TestIdentityLossSuspends(t *testing.T) {
	f := newFixture(t, aggregates.NewDocument(), Config{})
	f.mutate(t, addNode("1", 0))
	require.Equal(t, 1, f.clock.Pending())

	f.session.Expire()
	assert.True(t, f.ctrl.Status().Suspended)
	assert.Zero(t, f.clock.Pending())

	f.clock.Advance(time.Minute)
	creates, _ := f.store.calls()
	assert.Zero(t, creates)

	_, err := f.ctrl.Save(context.Background())
	assert.True(t, pkgerrors.IsAuth(err))

	f.mutate(t, moveNode("1", 20))
	assert.Equal(t, Dirty, f.ctrl.Status().State)
	assert.Zero(t, f.clock.Pending())

	f.session.Establish(session.Identity{UserID: "u-1", AccessToken: "tok-2"})
	assert.False(t, f.ctrl.Status().Suspended)
	require.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(DefaultDebounce)
	f.wait(t)
	creates, _ = f.store.calls()
	assert.Equal(t, 1, creates)
}

// detachingStore behaves like a store adapter over a client that takes no
// context: it stops waiting when ctx is done, but the write it started still
// lands later. Writes block until release is closed.
type detachingStore struct {
	release chan struct{}

	mu          sync.Mutex
	inflight    int
	maxInflight int
	landed      []int
	deadlines   int
}

func (s *detachingStore) write(ctx context.Context, data []byte) error {
	doc, err := aggregates.DecodeData(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.inflight++
	s.maxInflight = max(s.maxInflight, s.inflight)
	if _, ok := ctx.Deadline(); ok {
		s.deadlines++
	}
	s.mu.Unlock()

	landed := make(chan struct{})
	go func() {
		<-s.release
		s.mu.Lock()
		s.landed = append(s.landed, doc.NodeCount())
		s.inflight--
		s.mu.Unlock()
		close(landed)
	}()

	select {
	case <-landed:
		return nil
	case <-ctx.Done():
		return pkgerrors.NewPersistenceError("write graph", ctx.Err())
	}
}

func (s *detachingStore) Create(ctx context.Context, in *entities.GraphInsert) (*entities.Graph, error) {
	if err := s.write(ctx, in.Data); err != nil {
		return nil, err
	}
	return &entities.Graph{ID: "g-1", OwnerID: in.OwnerID, Title: in.Title, Data: in.Data}, nil
}

func (s *detachingStore) Update(ctx context.Context, id string, in *entities.GraphUpdate) (*entities.Graph, error) {
	if err := s.write(ctx, in.Data); err != nil {
		return nil, err
	}
	return &entities.Graph{ID: id, Title: *in.Title, Data: in.Data}, nil
}

func (s *detachingStore) Get(context.Context, string) (*entities.Graph, error) {
	return nil, pkgerrors.NewNotFoundError("graph")
}

func (s *detachingStore) Delete(context.Context, string) error { return nil }

func (s *detachingStore) List(context.Context, ports.ListOptions) ([]*entities.Graph, error) {
	return nil, nil
}

func TestSlowSaveIsNeverOverlapped(t *testing.T) {
	clock := utils.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	sess := session.New(nil, zap.NewNop())
	sess.Establish(session.Identity{UserID: "u-1", AccessToken: "tok"})
	store := &detachingStore{release: make(chan struct{})}
	ctrl := New(aggregates.NewDocument(), store, sess, zap.NewNop(),
		Config{Debounce: 5 * time.Millisecond, SaveTimeout: 20 * time.Millisecond},
		WithClock(clock))
	t.Cleanup(func() { _ = ctrl.Close(context.Background()) })

	update := func(fn func(*aggregates.GraphDocument) *aggregates.GraphDocument) {
		_, err := ctrl.Update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool) {
			return fn(d), true
		})
		require.NoError(t, err)
	}

	update(addNode("1", 0))
	clock.Advance(5 * time.Millisecond)
	require.Equal(t, Saving, ctrl.Status().State)

	// Well past the save timeout the first write is still outstanding.
	clock.Advance(time.Second)
	assert.Equal(t, Saving, ctrl.Status().State)

	update(addNode("2", 100))
	clock.Advance(time.Second)
	assert.Equal(t, Saving, ctrl.Status().State, "the change waits for the outstanding write")

	close(store.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Wait(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.maxInflight)
	assert.Equal(t, []int{1, 2}, store.landed, "the newest payload lands last")
	assert.Zero(t, store.deadlines)
	assert.Equal(t, Clean, ctrl.Status().State)
	assert.Zero(t, clock.Pending())
}

func TestStaleIdentityNotifications(t *testing.T) {
	t.Run("late sign-out after sign-in", func(t *testing.T) {
		f := newFixture(t, aggregates.NewDocument(), Config{})
		f.mutate(t, addNode("1", 0))

		f.ctrl.identityChanged(nil)
		assert.False(t, f.ctrl.Status().Suspended)
		assert.Equal(t, 1, f.clock.Pending())

		f.clock.Advance(DefaultDebounce)
		f.wait(t)
		creates, _ := f.store.calls()
		assert.Equal(t, 1, creates)
	})

	t.Run("late sign-in after sign-out", func(t *testing.T) {
		f := newFixture(t, aggregates.NewDocument(), Config{})
		f.session.Expire()
		require.True(t, f.ctrl.Status().Suspended)

		f.ctrl.identityChanged(&session.Identity{UserID: "u-1", AccessToken: "tok"})
		assert.True(t, f.ctrl.Status().Suspended)
	})
}

func TestConcurrentSignOutAndSignIn(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t, aggregates.NewDocument(), Config{})
		f.mutate(t, addNode("1", 0))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.session.Expire()
		}()
		go func() {
			defer wg.Done()
			f.session.Establish(session.Identity{UserID: "u-1", AccessToken: fmt.Sprintf("tok-%d", i)})
		}()
		wg.Wait()

		_, signedIn := f.session.Current()
		require.Equal(t, signedIn, !f.ctrl.Status().Suspended, "iteration %d", i)
		if signedIn {
			_, err := f.ctrl.Save(context.Background())
			require.NoError(t, err)
		}
	}
}

func TestClose(t *testing.T) {
	tests := []struct {
		name        string
		flush       bool
		wantCreates int
	}{
		{name: "drops pending changes", flush: false, wantCreates: 0},
		{name: "flushes pending changes", flush: true, wantCreates: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, aggregates.NewDocument(), Config{FlushOnClose: tt.flush})
			f.mutate(t, addNode("1", 0))

			require.NoError(t, f.ctrl.Close(context.Background()))
			assert.Zero(t, f.clock.Pending())
			creates, _ := f.store.calls()
			assert.Equal(t, tt.wantCreates, creates)

			_, err := f.ctrl.Update(func(d *aggregates.GraphDocument) (*aggregates.GraphDocument, bool) {
				return d.Clear(), true
			})
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestStatusJSON(t *testing.T) {
	st := Status{Seq: 3, State: Error, GraphID: "g-1", LastError: errors.New("boom")}
	b, err := st.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":3,"state":"error","graphId":"g-1","suspended":false,"lastError":"boom"}`, string(b))
}
