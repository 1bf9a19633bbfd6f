// Package autosave decides when an edited graph document is written to the
// store. Rapid edits are coalesced behind a debounce timer, at most one
// persistence call is in flight, and the first save of a new document
// creates the record while every later save updates it.
package autosave

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"graphboard/application/ports"
	"graphboard/application/session"
	"graphboard/domain/core/aggregates"
	"graphboard/domain/core/entities"
	pkgerrors "graphboard/pkg/errors"
	"graphboard/pkg/observability"
	"graphboard/pkg/utils"
)

const (
	DefaultDebounce    = 2 * time.Second
	DefaultSaveTimeout = 15 * time.Second
)

// Config tunes a Controller.
//
// SaveTimeout is how long a save may run before it is reported as slow. The
// store call is never abandoned: the hosted client cannot cancel a request
// it has sent, and giving up on one would let a newer save overlap it.

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = pkgerrors.NewConflictError("autosave controller is closed")

type Config struct {
	Debounce     time.Duration
	SaveTimeout  time.Duration
	FlushOnClose bool
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = DefaultSaveTimeout
	}
	return c
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock driving the debounce timer.
func WithClock(clock utils.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithMetrics records saves and transitions on collector.
func WithMetrics(collector *observability.Collector) Option {
	return func(c *Controller) { c.metrics = collector }
}

// Controller owns one document and persists it on behalf of the session's
// identity.
//
// Mutations, timer fires and save completions are serialized on mu. The
// store call itself runs on its own goroutine with a snapshot of the
// document, so editing never waits for the store.
type Controller struct {
	store   ports.GraphStore
	session *session.Session
	logger  *zap.Logger
	clock   utils.Clock
	metrics *observability.Collector
	tracer  trace.Tracer
	cfg     Config

	mu          sync.Mutex
	doc         *aggregates.GraphDocument
	state       State
	pending     bool
	suspended   bool
	closed      bool
	timer       utils.Timer
	timerGen    uint64
	inflight    chan struct{}
	slow        utils.Timer
	lastErr     error
	lastSavedAt time.Time
	seq         uint64
	outbox      []Status
	subscribers map[int]func(Status)
	nextSub     int

	unsubscribe func()
}

// New starts a controller in Clean for doc. Auto-save is suspended until sess
// carries an identity.
func New(doc *aggregates.GraphDocument, store ports.GraphStore, sess *session.Session, logger *zap.Logger, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		session:     sess,
		logger:      logger,
		clock:       utils.RealClock{},
		tracer:      observability.Tracer("graphboard/autosave"),
		cfg:         cfg.withDefaults(),
		doc:         doc,
		state:       Clean,
		subscribers: make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := sess.Current(); !ok {
		c.suspended = true
	}
	c.unsubscribe = sess.Subscribe(c.identityChanged)
	return c
}

// Document returns the current document. The returned value is immutable.
func (c *Controller) Document() *aggregates.GraphDocument {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Status returns the current indicator.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers fn for every published status and returns a function
// removing it. fn may be called from the save goroutine and must not block.
func (c *Controller) Subscribe(fn func(Status)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Update replaces the document with the result of fn. When fn reports that
// the change is not persistent (selection, in-progress drags) the new
// document is kept without dirtying it.
func (c *Controller) Update(fn func(*aggregates.GraphDocument) (*aggregates.GraphDocument, bool)) (*aggregates.GraphDocument, error) {
	c.mu.Lock()
	defer c.unlock()

	if c.closed {
		return c.doc, ErrClosed
	}
	next, persistent := fn(c.doc)
	if next == nil || next == c.doc {
		return c.doc, nil
	}
	c.doc = next
	if persistent {
		c.markDirtyLocked()
	}
	return c.doc, nil
}

func (c *Controller) markDirtyLocked() {
	switch c.state {
	case Clean, Error:
		c.transitionLocked(Dirty)
		c.armTimerLocked()
	case Dirty:
		c.armTimerLocked()
	case Saving:
		// The in-flight payload is untouched; the change goes out next.
		c.pending = true
	}
}

// Save persists the document now, bypassing the debounce, and waits for the
// result. It is a no-op while a save is in flight and for a clean document
// that already exists in the store.
func (c *Controller) Save(ctx context.Context) (Status, error) {
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return c.Status(), ErrClosed
	}
	if c.suspended {
		c.unlock()
		return c.Status(), pkgerrors.NewAuthError("not signed in")
	}

	switch {
	case c.state == Saving:
		st := c.statusLocked()
		c.unlock()
		return st, nil
	case c.state == Clean && !c.doc.IsNew():
		st := c.statusLocked()
		c.unlock()
		return st, nil
	}

	c.stopTimerLocked()
	if !c.startSaveLocked() {
		c.unlock()
		return c.Status(), pkgerrors.NewAuthError("not signed in")
	}
	done := c.inflight
	c.unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return c.Status(), ctx.Err()
	}

	st := c.Status()
	if st.State == Error {
		return st, st.LastError
	}
	return st, nil
}

// Wait blocks until no save is in flight, following immediate re-saves.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		done := c.inflight
		c.mu.Unlock()
		if done == nil {
			return nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops auto-saving. It waits for an in-flight save and, when
// configured to flush, persists outstanding changes before returning.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	unsubscribe := c.unsubscribe
	c.unlock()
	unsubscribe()

	if err := c.Wait(ctx); err != nil {
		return err
	}
	if !c.cfg.FlushOnClose {
		return nil
	}

	c.mu.Lock()
	if c.suspended || c.state == Clean || !c.startSaveLocked() {
		c.unlock()
		return nil
	}
	c.unlock()
	if err := c.Wait(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Error {
		return c.lastErr
	}
	return nil
}

// identityChanged reacts to a change of the session's identity. Listeners
// can run out of order when sign-out and sign-in race, so the notification
// only says that something changed; the session is read again under mu.
func (c *Controller) identityChanged(*session.Identity) {
	c.mu.Lock()
	defer c.unlock()
	if c.closed {
		return
	}

	if _, signedIn := c.session.Current(); !signedIn {
		if c.suspended {
			return
		}
		c.suspended = true
		c.stopTimerLocked()
		c.logger.Info("Auto-save suspended", zap.String("graphID", c.doc.ID()))
		c.publishLocked()
		return
	}

	if !c.suspended {
		return
	}
	c.suspended = false
	c.logger.Info("Auto-save resumed", zap.String("graphID", c.doc.ID()), zap.Stringer("state", c.state))
	if c.state == Dirty || (c.state == Error && pkgerrors.IsAuth(c.lastErr)) {
		c.armTimerLocked()
	}
	c.publishLocked()
}

func (c *Controller) armTimerLocked() {
	c.stopTimerLocked()
	if c.suspended || c.closed {
		return
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = c.clock.AfterFunc(c.cfg.Debounce, func() { c.fire(gen) })
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	defer c.unlock()
	if gen != c.timerGen || c.closed || c.suspended || c.state != Dirty {
		return
	}
	c.timer = nil
	c.startSaveLocked()
}

// startSaveLocked snapshots the document and issues the store call. It
// reports false, suspending auto-save, when there is no identity to act for.
func (c *Controller) startSaveLocked() bool {
	identity, ok := c.session.Current()
	if !ok {
		c.suspended = true
		c.stopTimerLocked()
		c.publishLocked()
		return false
	}
	if c.doc.IsNew() && c.doc.OwnerID() == "" {
		c.doc = c.doc.WithOwner(identity.UserID)
	}

	snapshot := c.doc
	c.pending = false
	c.transitionLocked(Saving)

	done := make(chan struct{})
	c.inflight = done
	graphID := snapshot.ID()
	c.slow = c.clock.AfterFunc(c.cfg.SaveTimeout, func() {
		c.logger.Warn("Auto-save is taking longer than expected",
			zap.String("graphID", graphID),
			zap.Duration("after", c.cfg.SaveTimeout))
	})
	go c.persist(snapshot, identity, done)
	return true
}

func (c *Controller) persist(snapshot *aggregates.GraphDocument, identity session.Identity, done chan struct{}) {
	ctx := identity.Context(context.Background())

	operation := "update"
	if snapshot.IsNew() {
		operation = "create"
	}
	ctx, span := c.tracer.Start(ctx, "autosave."+operation, trace.WithAttributes(
		attribute.String("graph.id", snapshot.ID()),
		attribute.Int("graph.nodes", snapshot.NodeCount()),
		attribute.Int("graph.edges", snapshot.EdgeCount()),
	))

	var (
		record *entities.Graph
		err    error
	)
	if snapshot.IsNew() {
		var in *entities.GraphInsert
		if in, err = aggregates.ToInsert(snapshot); err == nil {
			record, err = c.store.Create(ctx, in)
		}
	} else {
		var in *entities.GraphUpdate
		if in, err = aggregates.ToUpdate(snapshot); err == nil {
			record, err = c.store.Update(ctx, snapshot.ID(), in)
		}
	}
	observability.EndSpan(span, err)

	c.complete(operation, record, err, done)
}

// complete applies a save result. done is closed only after the resulting
// statuses are delivered, so Wait returning implies subscribers saw them.
func (c *Controller) complete(operation string, record *entities.Graph, err error, done chan struct{}) {
	c.mu.Lock()
	c.finishLocked(operation, record, err)
	c.unlock()
	close(done)
}

func (c *Controller) finishLocked(operation string, record *entities.Graph, err error) {
	c.inflight = nil
	if c.slow != nil {
		c.slow.Stop()
		c.slow = nil
	}

	if err == nil && operation == "create" {
		if record == nil {
			err = pkgerrors.NewPersistenceError("create graph", nil)
		} else if bound, bindErr := c.doc.WithID(record.ID); bindErr != nil {
			err = pkgerrors.NewPersistenceError("create graph", bindErr)
		} else {
			c.doc = bound
		}
	}
	if c.metrics != nil {
		c.metrics.RecordAutosave(operation, err)
	}

	if err != nil {
		c.lastErr = err
		c.pending = false
		c.logger.Warn("Auto-save failed",
			zap.String("graphID", c.doc.ID()),
			zap.String("operation", operation),
			zap.Error(err))
		c.transitionLocked(Error)
		return
	}

	c.lastErr = nil
	c.lastSavedAt = c.clock.Now()
	c.logger.Debug("Auto-save succeeded",
		zap.String("graphID", c.doc.ID()),
		zap.String("operation", operation),
		zap.Bool("pending", c.pending))

	if !c.pending {
		c.transitionLocked(Clean)
		return
	}
	c.pending = false
	c.transitionLocked(Dirty)
	if !c.closed && !c.suspended {
		c.startSaveLocked()
	}
}

func (c *Controller) transitionLocked(to State) {
	from := c.state
	c.state = to
	if c.metrics != nil {
		c.metrics.RecordTransition(from.String(), to.String())
	}
	c.logger.Debug("Auto-save transition",
		zap.String("graphID", c.doc.ID()),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	c.publishLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		Seq:         c.seq,
		State:       c.state,
		GraphID:     c.doc.ID(),
		Suspended:   c.suspended,
		LastSavedAt: c.lastSavedAt,
		LastError:   c.lastErr,
	}
}

func (c *Controller) publishLocked() {
	c.seq++
	c.outbox = append(c.outbox, c.statusLocked())
}

// unlock releases mu and delivers statuses published while it was held.
func (c *Controller) unlock() {
	statuses := c.outbox
	c.outbox = nil
	var subs []func(Status)
	if len(statuses) > 0 {
		subs = make([]func(Status), 0, len(c.subscribers))
		for _, fn := range c.subscribers {
			subs = append(subs, fn)
		}
	}
	c.mu.Unlock()

	for _, st := range statuses {
		for _, fn := range subs {
			fn(st)
		}
	}
}
