package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"graphboard/application/autosave"
	"graphboard/application/ports"
	"graphboard/application/session"
	"graphboard/domain/config"
	"graphboard/domain/core/aggregates"
	"graphboard/domain/core/entities"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/observability"
	"graphboard/pkg/utils"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces the wall clock used for debounce timers, node ids and
// idle tracking.
func WithClock(clock utils.Clock) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// WithMetrics records open sessions and auto-save activity on collector.
func WithMetrics(collector *observability.Collector) RegistryOption {
	return func(r *Registry) { r.metrics = collector }
}

// WithRandom replaces the source of new node positions. fn returns values
// in [0, 1).
func WithRandom(fn func() float64) RegistryOption {
	return func(r *Registry) { r.random = fn }
}

// Registry keeps the open editor sessions of every user. Each user has one
// identity context shared by all of their sessions, so signing out suspends
// auto-save everywhere at once.
type Registry struct {
	store   ports.Store
	authn   ports.Authenticator
	rules   *config.DomainConfig
	logger  *zap.Logger
	clock   utils.Clock
	metrics *observability.Collector
	random  func() float64

	mu         sync.Mutex
	autosave   autosave.Config
	sessions   map[string]*Session
	identities map[string]*session.Session
	// opening counts Open calls per user that hold an identity but have not
	// registered their session yet. Reap keeps those identities.
	opening map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry(store ports.Store, authn ports.Authenticator, rules *config.DomainConfig, logger *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		authn:  authn,
		rules:  rules,
		logger: logger,
		clock:  utils.RealClock{},
		random: defaultRandom,
		autosave: autosave.Config{
			Debounce:     rules.AutosaveDelay,
			SaveTimeout:  rules.SaveTimeout,
			FlushOnClose: rules.FlushOnClose,
		},
		sessions:   make(map[string]*Session),
		identities: make(map[string]*session.Session),
		opening:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetAutosaveConfig changes the auto-save tuning of sessions opened from now
// on. Open sessions keep theirs.
func (r *Registry) SetAutosaveConfig(cfg autosave.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autosave = cfg
	r.logger.Info("Editor auto-save configuration updated",
		zap.Duration("debounce", cfg.Debounce),
		zap.Duration("saveTimeout", cfg.SaveTimeout),
		zap.Bool("flushOnClose", cfg.FlushOnClose))
}

// Identity returns the identity context of id's user, establishing id in it
// when the token changed. Suspended sessions of the user resume.
func (r *Registry) Identity(id session.Identity) *session.Session {
	return r.identity(id, false)
}

func (r *Registry) identity(id session.Identity, pin bool) *session.Session {
	r.mu.Lock()
	sess, ok := r.identities[id.UserID]
	if !ok {
		sess = session.New(r.authn, r.logger.With(zap.String("userID", id.UserID)), session.WithClock(r.clock))
		r.identities[id.UserID] = sess
	}
	if pin {
		r.opening[id.UserID]++
	}
	r.mu.Unlock()

	if current, ok := sess.Current(); !ok || current.AccessToken != id.AccessToken {
		sess.Establish(id)
	}
	return sess
}

// SignOut drops userID's identity, suspending auto-save in all of the
// user's sessions. Sessions stay open so edits are not lost.
func (r *Registry) SignOut(userID string) {
	r.mu.Lock()
	sess, ok := r.identities[userID]
	r.mu.Unlock()
	if ok {
		sess.Expire()
	}
}

// Open starts a writable session. With an empty graphID the session edits a
// new document that is created on its first save; otherwise the stored graph
// is loaded.
func (r *Registry) Open(ctx context.Context, id session.Identity, graphID string) (*Session, error) {
	identity := r.identity(id, true)
	defer r.unpin(id.UserID)
	ctx = id.Context(ctx)

	doc := aggregates.NewDocument().WithTitle(r.rules.DefaultGraphTitle)
	source := SourceNew
	if graphID != "" {
		record, err := r.store.Graphs().Get(ctx, graphID)
		if err != nil {
			return nil, err
		}
		if doc, err = aggregates.Load(record); err != nil {
			r.logger.Warn("Stored graph does not parse",
				zap.String("graphID", graphID),
				zap.Error(err))
			return nil, err
		}
		source = SourceGraph
	}

	r.mu.Lock()
	cfg := r.autosave
	r.mu.Unlock()

	sessionID := uuid.New().String()
	logger := r.logger.With(zap.String("editorSessionID", sessionID), zap.String("userID", id.UserID))
	ctrl := autosave.New(doc, r.store.Graphs(), identity, logger, cfg,
		autosave.WithClock(r.clock),
		autosave.WithMetrics(r.metrics))

	s := r.newSession(sessionID, id.UserID, source, false)
	s.ctrl = ctrl
	r.add(s)

	logger.Info("Editor session opened", zap.String("graphID", doc.ID()), zap.String("source", string(source)))
	return s, nil
}

// OpenShared starts a read-only session on a snapshot shared with the
// caller.
func (r *Registry) OpenShared(ctx context.Context, id session.Identity, sharedID string) (*Session, error) {
	r.Identity(id)
	ctx = id.Context(ctx)

	shares, err := r.store.SharedGraphs().ListWithDetails(ctx, ports.ListOptions{
		Filters: []ports.Filter{ports.Eq("id", sharedID)},
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return nil, pkgerrors.NewNotFoundError("shared graph")
	}
	share := shares[0]

	doc, err := aggregates.DecodeData(share.GraphDataSnapshot)
	if err != nil {
		return nil, err
	}
	title := share.GraphTitle
	if title == "" {
		title = entities.DefaultSharedTitle
	}
	doc = doc.WithTitle(title).WithOwner(share.OwnerID)
	if share.GraphID != "" {
		if doc, err = doc.WithID(share.GraphID); err != nil {
			return nil, pkgerrors.NewInternalError(err.Error())
		}
	}

	s := r.newSession(uuid.New().String(), id.UserID, SourceShared, true)
	s.doc = doc
	r.add(s)

	r.logger.Info("Shared graph opened read-only",
		zap.String("editorSessionID", s.id),
		zap.String("sharedGraphID", sharedID),
		zap.String("userID", id.UserID))
	return s, nil
}

func (r *Registry) unpin(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opening[userID]--; r.opening[userID] <= 0 {
		delete(r.opening, userID)
	}
}

func (r *Registry) newSession(id, userID string, source Source, readOnly bool) *Session {
	return &Session{
		id:       id,
		userID:   userID,
		source:   source,
		readOnly: readOnly,
		rules:    r.rules,
		clock:    r.clock,
		random:   r.random,
		lastUsed: r.clock.Now(),
	}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.EditorSessions.Inc()
	}
}

// Get returns userID's session id. Sessions of other users are reported as
// not found.
func (r *Registry) Get(userID, id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || s.userID != userID {
		return nil, pkgerrors.NewNotFoundError("editor session")
	}
	s.touch()
	return s, nil
}

// Close closes and forgets userID's session id.
func (r *Registry) Close(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.userID != userID {
		r.mu.Unlock()
		return pkgerrors.NewNotFoundError("editor session")
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	return r.closeSession(ctx, s)
}

func (r *Registry) closeSession(ctx context.Context, s *Session) error {
	if r.metrics != nil {
		r.metrics.EditorSessions.Dec()
	}
	err := s.Close(ctx)
	if err != nil {
		r.logger.Warn("Editor session closed with error",
			zap.String("editorSessionID", s.id),
			zap.Error(err))
		return err
	}
	r.logger.Info("Editor session closed", zap.String("editorSessionID", s.id))
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Reap closes sessions idle for longer than the configured TTL and returns
// how many were closed. Identities of users left without sessions are
// forgotten; the next authenticated request establishes them again.
func (r *Registry) Reap(ctx context.Context) int {
	cutoff := r.clock.Now().Add(-r.rules.SessionIdleTTL)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	live := make(map[string]bool, len(r.sessions))
	for _, s := range r.sessions {
		live[s.userID] = true
	}
	var released []*session.Session
	for userID, sess := range r.identities {
		if !live[userID] && r.opening[userID] == 0 {
			released = append(released, sess)
			delete(r.identities, userID)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		_ = r.closeSession(ctx, s)
	}
	for _, sess := range released {
		sess.Release()
	}
	if len(idle) > 0 {
		r.logger.Info("Reaped idle editor sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run reaps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Shutdown closes every session.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := r.closeSession(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
