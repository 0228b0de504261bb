package tour

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultRevealDelay lets a dismissing tooltip leave before the next one appears.
	DefaultRevealDelay = 350 * time.Millisecond

	storeTimeout = 5 * time.Second
	logModule    = "TourController"
)

// Logger is the subset of the application logger the controller needs.
type Logger interface {
	Debug(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
}

// FlagObserver is told about every tour-in-progress flag transition so
// background refresh can pause and resume.
type FlagObserver interface {
	TourFlagChanged(ctx context.Context, change FlagChange)
}

type Options struct {
	Registry    *Registry
	Store       Store
	Scheduler   Scheduler
	Logger      Logger
	Observer    FlagObserver
	FlagKey     string
	FlagTTL     time.Duration
	RevealDelay time.Duration
}

// Controller owns the active tooltip, the seen set and the tour sequence of
// one user session. Every operation is a single critical section and
// subscribers are called synchronously before the operation returns.
type Controller struct {
	mu sync.Mutex

	registry    *Registry
	store       Store
	scheduler   Scheduler
	logger      Logger
	observer    FlagObserver
	flagKey     string
	flagTTL     time.Duration
	revealDelay time.Duration

	identity Identity
	active   *ActiveTooltip
	seen     map[string]struct{}
	tour     TourState
	flag     bool
	version  uint64
	closed   bool

	// token identifies the tour run a pending reveal belongs to.
	token   uint64
	pending Timer

	subs    map[int]func(Snapshot)
	nextSub int
}

// effects collects what must happen after the lock is released.
type effects struct {
	notify  bool
	changes []FlagChange
}

func NewController(opts Options) *Controller {
	c := &Controller{
		registry:    opts.Registry,
		store:       opts.Store,
		scheduler:   opts.Scheduler,
		logger:      opts.Logger,
		observer:    opts.Observer,
		flagKey:     opts.FlagKey,
		flagTTL:     opts.FlagTTL,
		revealDelay: opts.RevealDelay,
		seen:        make(map[string]struct{}),
		tour:        idleTour(),
		subs:        make(map[int]func(Snapshot)),
	}
	if c.store == nil {
		panic("tour: Options.Store is required")
	}
	if c.scheduler == nil {
		c.scheduler = RealScheduler()
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.flagKey == "" {
		c.flagKey = DefaultFlagKey
	}
	if c.revealDelay <= 0 {
		c.revealDelay = DefaultRevealDelay
	}
	return c
}

// SetIdentity scopes the controller to a user. A different user id reloads
// the seen set from the store; any identity change abandons the active
// tooltip and tour so one user's state never shows for another.
func (c *Controller) SetIdentity(ctx context.Context, id Identity) {
	c.mu.Lock()
	if c.identity == id {
		c.mu.Unlock()
		return
	}
	var fx effects
	userChanged := c.identity.UserID != id.UserID
	prev := c.identity
	c.identity = id
	c.active = nil
	if c.tour.Active || c.flag {
		c.endTourLocked(ctx, &fx, FlagTourAbandoned, prev.UserID)
	}
	if userChanged {
		c.seen = c.loadSeenLocked(ctx)
	}
	fx.notify = true
	c.finish(ctx, fx)
}

func (c *Controller) loadSeenLocked(ctx context.Context) map[string]struct{} {
	if c.identity.UserID == "" {
		return make(map[string]struct{})
	}
	raw, ok, err := c.store.Get(ctx, SeenKey(c.identity.UserID))
	if err != nil {
		c.logger.Warn(logModule, "Failed to load seen tooltips, treating all as unseen", map[string]interface{}{"user_id": c.identity.UserID, "error": err.Error()})
		c.clearFlagLocked(ctx)
		return make(map[string]struct{})
	}
	if !ok {
		return make(map[string]struct{})
	}
	seen, err := decodeSeen(raw)
	if err != nil {
		c.logger.Warn(logModule, "Corrupt seen tooltips record, treating all as unseen", map[string]interface{}{"user_id": c.identity.UserID, "error": err.Error()})
		c.clearFlagLocked(ctx)
		return make(map[string]struct{})
	}
	return seen
}

// ShowTooltip reveals id from the current role's table. Unknown ids are
// ignored. Showing anything other than the current step ends a running tour.
func (c *Controller) ShowTooltip(ctx context.Context, id string) {
	c.mu.Lock()
	role := c.identity.Role
	def, ok := c.registry.Lookup(role, id)
	if !ok || c.closed {
		c.mu.Unlock()
		c.logger.Debug(logModule, "Ignoring unknown tooltip", map[string]interface{}{"id": id, "role": role})
		return
	}
	var fx effects
	if c.tour.Active && c.tour.StepIDs[c.tour.CurrentIndex] != id {
		c.endTourLocked(ctx, &fx, FlagTourAbandoned, c.identity.UserID)
	}
	c.active = &ActiveTooltip{ID: id, Data: def}
	fx.notify = true
	c.finish(ctx, fx)
}

// HideTooltip clears the active tooltip. It also abandons a running tour,
// which invalidates any pending reveal, and always leaves the
// tour-in-progress flag cleared. Subscribers hear about it only when
// something was showing or running.
func (c *Controller) HideTooltip(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var fx effects
	c.hideLocked(ctx, &fx)
	c.finish(ctx, fx)
}

func (c *Controller) hideLocked(ctx context.Context, fx *effects) {
	if c.active != nil {
		c.active = nil
		fx.notify = true
	}
	if c.tour.Active || c.flag {
		fx.notify = true
		c.endTourLocked(ctx, fx, FlagTourAbandoned, c.identity.UserID)
		return
	}
	// Clears a flag left behind by a previous process.
	c.clearFlagLocked(ctx)
}

// HasSeenTooltip reports whether id is in the seen set.
func (c *Controller) HasSeenTooltip(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

// MarkTooltipAsSeen records id as permanently dismissed and hides the
// active tooltip. Calling it again is harmless.
func (c *Controller) MarkTooltipAsSeen(ctx context.Context, id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var fx effects
	if _, ok := c.seen[id]; !ok {
		c.seen[id] = struct{}{}
		fx.notify = true
		if err := c.persistSeenLocked(ctx); err != nil {
			c.logger.Warn(logModule, "Failed to persist seen tooltip", map[string]interface{}{"id": id, "error": err.Error()})
		}
	}
	c.hideLocked(ctx, &fx)
	c.finish(ctx, fx)
}

func (c *Controller) persistSeenLocked(ctx context.Context) error {
	if c.identity.UserID == "" {
		return nil
	}
	raw, err := encodeSeen(c.seen)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, SeenKey(c.identity.UserID), raw)
}

// StartTour begins a guided sequence over stepIDs. Ids unknown to the
// current role are dropped; an empty sequence is a no-op. A running tour is
// replaced and its remaining steps are not marked seen.
func (c *Controller) StartTour(ctx context.Context, stepIDs []string) {
	c.mu.Lock()
	steps := make([]string, 0, len(stepIDs))
	for _, id := range stepIDs {
		if _, ok := c.registry.Lookup(c.identity.Role, id); ok {
			steps = append(steps, id)
		}
	}
	if len(steps) == 0 || c.closed {
		c.mu.Unlock()
		return
	}

	var fx effects
	if c.tour.Active {
		c.endTourLocked(ctx, &fx, FlagTourAbandoned, c.identity.UserID)
	}
	c.active = nil
	if err := c.setFlagLocked(ctx); err != nil {
		c.logger.Warn(logModule, "Failed to set tour-in-progress flag, tour not started", map[string]interface{}{"error": err.Error()})
		c.clearFlagLocked(ctx)
		fx.notify = true
		c.finish(ctx, fx)
		return
	}
	c.tour = TourState{StepIDs: steps, CurrentIndex: 0, Active: true}
	fx.changes = append(fx.changes, c.flagChange(FlagTourStarted, c.identity.UserID, true))
	c.scheduleRevealLocked(0)
	fx.notify = true
	c.finish(ctx, fx)
}

// NextTourStep acknowledges the current step: it is hidden and marked seen,
// then the next step is revealed after the reveal delay or the tour ends.
// Without an active tour and tooltip it does nothing.
func (c *Controller) NextTourStep(ctx context.Context) {
	c.mu.Lock()
	if c.closed || !c.tour.Active || c.active == nil {
		c.mu.Unlock()
		return
	}
	var fx effects
	fx.notify = true
	current := c.active.ID
	c.active = nil

	if _, ok := c.seen[current]; !ok {
		c.seen[current] = struct{}{}
		if err := c.persistSeenLocked(ctx); err != nil {
			c.logger.Warn(logModule, "Failed to persist tour step, ending tour", map[string]interface{}{"id": current, "error": err.Error()})
			c.endTourLocked(ctx, &fx, FlagTourAbandoned, c.identity.UserID)
			c.finish(ctx, fx)
			return
		}
	}

	next := c.tour.CurrentIndex + 1
	if next >= len(c.tour.StepIDs) {
		c.endTourLocked(ctx, &fx, FlagTourCompleted, c.identity.UserID)
		c.finish(ctx, fx)
		return
	}

	// Rewritten on every advance so a flag TTL runs from the last step.
	if err := c.setFlagLocked(ctx); err != nil {
		c.logger.Warn(logModule, "Failed to keep tour-in-progress flag, ending tour", map[string]interface{}{"error": err.Error()})
		c.endTourLocked(ctx, &fx, FlagTourAbandoned, c.identity.UserID)
		c.finish(ctx, fx)
		return
	}
	c.tour.CurrentIndex = next
	c.scheduleRevealLocked(next)
	c.finish(ctx, fx)
}

func (c *Controller) scheduleRevealLocked(index int) {
	c.stopPendingLocked()
	token := c.token
	c.pending = c.scheduler.AfterFunc(c.revealDelay, func() {
		c.revealStep(token, index)
	})
}

// revealStep runs when the reveal delay elapses. It acts only when the tour
// run that scheduled it is still current and the persisted flag is still set.
func (c *Controller) revealStep(token uint64, index int) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	c.mu.Lock()
	if c.closed || token != c.token || !c.tour.Active || c.tour.CurrentIndex != index || c.active != nil {
		c.mu.Unlock()
		return
	}
	c.pending = nil

	var fx effects
	fx.notify = true
	set, err := FlagSet(ctx, c.store, c.flagKey)
	if err != nil {
		c.logger.Warn(logModule, "Failed to read tour-in-progress flag, ending tour", map[string]interface{}{"error": err.Error()})
		c.endTourLocked(ctx, &fx, FlagTourAbandoned, c.identity.UserID)
		c.finish(ctx, fx)
		return
	}
	if !set {
		c.flag = false
		c.endTourLocked(ctx, &fx, FlagTourAbandoned, c.identity.UserID)
		c.finish(ctx, fx)
		return
	}

	id := c.tour.StepIDs[index]
	def, ok := c.registry.Lookup(c.identity.Role, id)
	if !ok {
		c.endTourLocked(ctx, &fx, FlagTourAbandoned, c.identity.UserID)
		c.finish(ctx, fx)
		return
	}
	c.active = &ActiveTooltip{ID: id, Data: def}
	c.finish(ctx, fx)
}

// endTourLocked resets the tour to idle, invalidates pending reveals and
// clears the flag.
func (c *Controller) endTourLocked(ctx context.Context, fx *effects, reason FlagReason, userID string) {
	wasActive := c.tour.Active || c.flag
	steps := c.tour.StepIDs
	c.token++
	c.stopPendingLocked()
	c.tour = idleTour()
	c.clearFlagLocked(ctx)
	if wasActive {
		ch := c.flagChange(reason, userID, false)
		ch.StepIDs = steps
		fx.changes = append(fx.changes, ch)
	}
}

func (c *Controller) stopPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Controller) setFlagLocked(ctx context.Context) error {
	var err error
	if es, ok := c.store.(ExpiringStore); ok && c.flagTTL > 0 {
		err = es.SetWithTTL(ctx, c.flagKey, flagValue, c.flagTTL)
	} else {
		err = c.store.Set(ctx, c.flagKey, flagValue)
	}
	if err != nil {
		return err
	}
	c.flag = true
	return nil
}

func (c *Controller) clearFlagLocked(ctx context.Context) {
	c.flag = false
	if err := c.store.Remove(ctx, c.flagKey); err != nil {
		c.logger.Warn(logModule, "Failed to clear tour-in-progress flag", map[string]interface{}{"key": c.flagKey, "error": err.Error()})
	}
}

func (c *Controller) flagChange(reason FlagReason, userID string, inProgress bool) FlagChange {
	return FlagChange{
		UserID:     userID,
		Reason:     reason,
		StepIDs:    append([]string(nil), c.tour.StepIDs...),
		InProgress: inProgress,
		OccurredAt: time.Now(),
	}
}

// finish releases the lock, then delivers flag changes and the new snapshot.
func (c *Controller) finish(ctx context.Context, fx effects) {
	var snap Snapshot
	var subs []func(Snapshot)
	if fx.notify {
		c.version++
		snap = c.snapshotLocked()
		subs = make([]func(Snapshot), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
	}
	observer := c.observer
	c.mu.Unlock()

	if observer != nil {
		for _, ch := range fx.changes {
			observer.TourFlagChanged(ctx, ch)
		}
	}
	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:        c.version,
		Identity:       c.identity,
		Tour:           TourState{StepIDs: append([]string{}, c.tour.StepIDs...), CurrentIndex: c.tour.CurrentIndex, Active: c.tour.Active},
		Phase:          c.phaseLocked(),
		Seen:           sortedIDs(c.seen),
		TourInProgress: c.flag,
	}
	if c.active != nil {
		a := *c.active
		snap.ActiveTooltip = &a
	}
	return snap
}

func (c *Controller) phaseLocked() Phase {
	switch {
	case !c.tour.Active:
		return PhaseIdle
	case c.active != nil:
		return PhaseShowing
	default:
		return PhaseAwaitingStep
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Phase returns the tour sub-state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phaseLocked()
}

// Subscribe registers fn for every state change and returns a function
// that removes it.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close abandons any running tour, stops pending reveals and drops
// subscribers. The controller ignores further tour and tooltip requests.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var fx effects
	if c.tour.Active || c.flag {
		c.endTourLocked(ctx, &fx, FlagTourAbandoned, c.identity.UserID)
	}
	c.stopPendingLocked()
	c.active = nil
	c.closed = true
	c.subs = make(map[int]func(Snapshot))
	c.finish(ctx, fx)
}

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
