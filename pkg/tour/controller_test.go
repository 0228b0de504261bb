package tour

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"loyalty-rewards-be/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

// manualScheduler fires callbacks only when the test asks it to.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{f: f}
	s.timers = append(s.timers, t)
	return t
}

// Pending counts scheduled callbacks that have not been stopped or fired.
func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Scheduled counts every callback ever scheduled.
func (s *manualScheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// FireAll runs every callback scheduled so far, including stopped ones, the
// way a timer that already fired would race a Stop call.
func (s *manualScheduler) FireAll() {
	s.mu.Lock()
	timers := s.timers
	s.timers = nil
	s.mu.Unlock()
	for _, t := range timers {
		t.stopped = true
		t.f()
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	changes []FlagChange
}

func (o *recordingObserver) TourFlagChanged(_ context.Context, ch FlagChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, ch)
}

func (o *recordingObserver) reasons() []FlagReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]FlagReason, 0, len(o.changes))
	for _, ch := range o.changes {
		out = append(out, ch.Reason)
	}
	return out
}

// faultyStore fails the operations it is told to.
type faultyStore struct {
	Store
	failGet bool
	failSet bool
}

var errStoreDown = errors.New("store down")

func (s *faultyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errStoreDown
	}
	return s.Store.Get(ctx, key)
}

func (s *faultyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errStoreDown
	}
	return s.Store.Set(ctx, key, value)
}

type fixture struct {
	ctrl     *Controller
	store    Store
	sched    *manualScheduler
	observer *recordingObserver
}

func newFixture(t *testing.T, store Store, id Identity) *fixture {
	t.Helper()
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	if store == nil {
		store = memory.NewTourStateRepository()
	}
	f := &fixture{
		store:    store,
		sched:    &manualScheduler{},
		observer: &recordingObserver{},
	}
	f.ctrl = NewController(Options{
		Registry:  reg,
		Store:     store,
		Scheduler: f.sched,
		Observer:  f.observer,
		FlagKey:   FlagKey(id.UserID),
	})
	f.ctrl.SetIdentity(context.Background(), id)
	return f
}

func (f *fixture) flagSet(t *testing.T) bool {
	t.Helper()
	set, err := FlagSet(context.Background(), f.store, f.ctrl.flagKey)
	require.NoError(t, err)
	return set
}

var installer = Identity{UserID: "u1", Role: RoleInstaller}

func TestShowAndMarkSeen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.ShowTooltip(ctx, "scanner-button")
	snap := f.ctrl.Snapshot()
	require.NotNil(t, snap.ActiveTooltip)
	assert.Equal(t, "scanner-button", snap.ActiveTooltip.ID)
	assert.Equal(t, PlacementBottom, snap.ActiveTooltip.Data.Placement)

	f.ctrl.MarkTooltipAsSeen(ctx, "scanner-button")
	assert.Nil(t, f.ctrl.Snapshot().ActiveTooltip)
	assert.True(t, f.ctrl.HasSeenTooltip("scanner-button"))

	seen, err := LoadSeen(ctx, f.store, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"scanner-button"}, seen)
}

func TestShowTooltip_UnknownIDIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.ShowTooltip(ctx, "points-balance")
	f.ctrl.ShowTooltip(ctx, "does-not-exist")
	// admin-only ids are unknown to installers
	f.ctrl.ShowTooltip(ctx, "users-table")

	snap := f.ctrl.Snapshot()
	require.NotNil(t, snap.ActiveTooltip)
	assert.Equal(t, "points-balance", snap.ActiveTooltip.ID)
}

func TestMarkTooltipAsSeen_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.MarkTooltipAsSeen(ctx, "badges-tab")
	first := f.ctrl.Snapshot()
	f.ctrl.MarkTooltipAsSeen(ctx, "badges-tab")
	second := f.ctrl.Snapshot()

	assert.Equal(t, first.Seen, second.Seen)
	assert.Nil(t, first.ActiveTooltip)
	assert.Nil(t, second.ActiveTooltip)
	// ids never shown can be marked too
	f.ctrl.MarkTooltipAsSeen(ctx, "never-shown")
	assert.True(t, f.ctrl.HasSeenTooltip("never-shown"))
}

func TestTourRunsToCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)
	steps := []string{"scanner-button", "points-balance", "badges-tab"}

	f.ctrl.StartTour(ctx, steps)
	assert.Equal(t, PhaseAwaitingStep, f.ctrl.Phase())
	assert.True(t, f.flagSet(t))
	assert.Nil(t, f.ctrl.Snapshot().ActiveTooltip)

	for i, id := range steps {
		f.sched.FireAll()
		snap := f.ctrl.Snapshot()
		require.NotNil(t, snap.ActiveTooltip, "step %d", i)
		assert.Equal(t, id, snap.ActiveTooltip.ID)
		assert.Equal(t, i, snap.Tour.CurrentIndex)
		assert.Equal(t, PhaseShowing, snap.Phase)

		f.ctrl.NextTourStep(ctx)
	}

	snap := f.ctrl.Snapshot()
	assert.False(t, snap.Tour.Active)
	assert.Empty(t, snap.Tour.StepIDs)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, f.flagSet(t))
	assert.False(t, snap.TourInProgress)
	for _, id := range steps {
		assert.True(t, f.ctrl.HasSeenTooltip(id), id)
	}
	assert.Equal(t, []FlagReason{FlagTourStarted, FlagTourCompleted}, f.observer.reasons())
}

func TestStartTour_EmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.StartTour(ctx, nil)
	f.ctrl.StartTour(ctx, []string{})
	f.ctrl.StartTour(ctx, []string{"unknown-a", "unknown-b"})

	assert.Equal(t, 0, f.sched.Scheduled())
	assert.Equal(t, PhaseIdle, f.ctrl.Phase())
	assert.False(t, f.flagSet(t))
	assert.Empty(t, f.observer.reasons())
}

func TestStartTour_DropsUnknownSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.StartTour(ctx, []string{"nope", "history-list"})
	assert.Equal(t, []string{"history-list"}, f.ctrl.Snapshot().Tour.StepIDs)
}

func TestHideTooltip_ClearsStrayFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)
	require.NoError(t, f.store.Set(ctx, f.ctrl.flagKey, "true"))

	f.ctrl.HideTooltip(ctx)

	assert.False(t, f.flagSet(t))
	assert.Nil(t, f.ctrl.Snapshot().ActiveTooltip)
}

func TestHideBeforeRevealSuppressesReveal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.StartTour(ctx, []string{"scanner-button", "points-balance"})
	f.ctrl.HideTooltip(ctx)
	assert.False(t, f.flagSet(t))

	f.sched.FireAll()

	snap := f.ctrl.Snapshot()
	assert.Nil(t, snap.ActiveTooltip)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, f.ctrl.HasSeenTooltip("scanner-button"))
	assert.Equal(t, []FlagReason{FlagTourStarted, FlagTourAbandoned}, f.observer.reasons())
}

func TestFlagClearedExternallyBeforeReveal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.StartTour(ctx, []string{"scanner-button"})
	require.NoError(t, f.store.Remove(ctx, f.ctrl.flagKey))
	f.sched.FireAll()

	snap := f.ctrl.Snapshot()
	assert.Nil(t, snap.ActiveTooltip)
	assert.False(t, snap.Tour.Active)
	assert.False(t, snap.TourInProgress)
}

func TestStartTourReplacesRunningTour(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.StartTour(ctx, []string{"scanner-button", "points-balance"})
	// the first tour's reveal is still pending when the second tour starts
	f.ctrl.StartTour(ctx, []string{"history-list"})
	f.sched.FireAll()

	snap := f.ctrl.Snapshot()
	require.NotNil(t, snap.ActiveTooltip)
	assert.Equal(t, "history-list", snap.ActiveTooltip.ID)
	assert.Equal(t, []string{"history-list"}, snap.Tour.StepIDs)
	assert.False(t, f.ctrl.HasSeenTooltip("scanner-button"))
	assert.True(t, f.flagSet(t))

	f.ctrl.NextTourStep(ctx)
	assert.False(t, f.flagSet(t))
	assert.Equal(t, []FlagReason{FlagTourStarted, FlagTourAbandoned, FlagTourStarted, FlagTourCompleted}, f.observer.reasons())
}

func TestNextTourStep_WithoutTourIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.ShowTooltip(ctx, "scanner-button")
	f.ctrl.NextTourStep(ctx)
	snap := f.ctrl.Snapshot()
	require.NotNil(t, snap.ActiveTooltip)
	assert.False(t, f.ctrl.HasSeenTooltip("scanner-button"))

	// tour started but reveal not fired yet: no active tooltip
	f.ctrl.StartTour(ctx, []string{"points-balance"})
	f.ctrl.NextTourStep(ctx)
	assert.Equal(t, PhaseAwaitingStep, f.ctrl.Phase())
	assert.False(t, f.ctrl.HasSeenTooltip("points-balance"))
}

func TestShowTooltipDuringTourEndsTour(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.StartTour(ctx, []string{"scanner-button", "points-balance"})
	f.sched.FireAll()
	f.ctrl.ShowTooltip(ctx, "history-list")

	snap := f.ctrl.Snapshot()
	assert.Equal(t, "history-list", snap.ActiveTooltip.ID)
	assert.False(t, snap.Tour.Active)
	assert.False(t, f.flagSet(t))
}

func TestIdentitySwitchReloadsSeen(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTourStateRepository()
	require.NoError(t, store.Set(ctx, SeenKey("u2"), `["history-list"]`))
	f := newFixture(t, store, installer)

	f.ctrl.MarkTooltipAsSeen(ctx, "scanner-button")
	require.True(t, f.ctrl.HasSeenTooltip("scanner-button"))

	f.ctrl.SetIdentity(ctx, Identity{UserID: "u2", Role: RoleInstaller})
	assert.False(t, f.ctrl.HasSeenTooltip("scanner-button"))
	assert.True(t, f.ctrl.HasSeenTooltip("history-list"))

	f.ctrl.SetIdentity(ctx, installer)
	assert.True(t, f.ctrl.HasSeenTooltip("scanner-button"))
	assert.False(t, f.ctrl.HasSeenTooltip("history-list"))
}

func TestRoleSelectsTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Identity{UserID: "a1", Role: RoleAdmin})

	f.ctrl.ShowTooltip(ctx, "scanner-button")
	assert.Nil(t, f.ctrl.Snapshot().ActiveTooltip)

	f.ctrl.ShowTooltip(ctx, "users-table")
	require.NotNil(t, f.ctrl.Snapshot().ActiveTooltip)
	assert.Equal(t, "users-table", f.ctrl.Snapshot().ActiveTooltip.ID)
}

func TestNoIdentityResolvesToEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Identity{})

	f.ctrl.ShowTooltip(ctx, "scanner-button")
	f.ctrl.StartTour(ctx, []string{"scanner-button"})

	snap := f.ctrl.Snapshot()
	assert.Nil(t, snap.ActiveTooltip)
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Empty(t, snap.Seen)
}

func TestCorruptSeenDefaultsToEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTourStateRepository()
	require.NoError(t, store.Set(ctx, SeenKey("u1"), "{not json"))
	require.NoError(t, store.Set(ctx, FlagKey("u1"), "true"))

	f := newFixture(t, store, installer)

	assert.Empty(t, f.ctrl.Snapshot().Seen)
	assert.False(t, f.flagSet(t))
}

func TestStoreReadFailureDefaultsToEmpty(t *testing.T) {
	store := &faultyStore{Store: memory.NewTourStateRepository(), failGet: true}
	f := newFixture(t, store, installer)

	assert.Empty(t, f.ctrl.Snapshot().Seen)
	assert.False(t, f.ctrl.HasSeenTooltip("scanner-button"))
}

func TestStartTour_FlagWriteFailureDoesNotStart(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Store: memory.NewTourStateRepository()}
	f := newFixture(t, store, installer)
	store.failSet = true

	f.ctrl.StartTour(ctx, []string{"scanner-button"})

	assert.Equal(t, PhaseIdle, f.ctrl.Phase())
	assert.Equal(t, 0, f.sched.Pending())
	store.failSet = false
	assert.False(t, f.flagSet(t))
}

func TestNextTourStep_PersistFailureEndsTour(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Store: memory.NewTourStateRepository()}
	f := newFixture(t, store, installer)

	f.ctrl.StartTour(ctx, []string{"scanner-button", "points-balance"})
	f.sched.FireAll()
	store.failSet = true
	f.ctrl.NextTourStep(ctx)

	snap := f.ctrl.Snapshot()
	assert.False(t, snap.Tour.Active)
	assert.False(t, f.flagSet(t))
	// kept in memory even though the write failed
	assert.True(t, f.ctrl.HasSeenTooltip("scanner-button"))
}

func TestSubscribersSeeEveryChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	var got []Snapshot
	unsubscribe := f.ctrl.Subscribe(func(s Snapshot) { got = append(got, s) })

	f.ctrl.ShowTooltip(ctx, "scanner-button")
	require.Len(t, got, 1)
	assert.Equal(t, "scanner-button", got[0].ActiveTooltip.ID)

	f.ctrl.MarkTooltipAsSeen(ctx, "scanner-button")
	require.Len(t, got, 2)
	assert.Nil(t, got[1].ActiveTooltip)
	assert.Contains(t, got[1].Seen, "scanner-button")
	assert.Greater(t, got[1].Version, got[0].Version)

	unsubscribe()
	f.ctrl.ShowTooltip(ctx, "points-balance")
	assert.Len(t, got, 2)
}

func TestCloseAbandonsTour(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)

	f.ctrl.StartTour(ctx, []string{"scanner-button"})
	f.ctrl.Close(ctx)
	f.sched.FireAll()

	assert.Nil(t, f.ctrl.Snapshot().ActiveTooltip)
	assert.False(t, f.flagSet(t))
	f.ctrl.StartTour(ctx, []string{"scanner-button"})
	assert.Equal(t, PhaseIdle, f.ctrl.Phase())
}

func TestNextTourStep_RefreshesExpiringFlag(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTourStateRepository()
	sched := &manualScheduler{}
	ctrl := NewController(Options{
		Registry:  MustDefaultRegistry(),
		Store:     store,
		Scheduler: sched,
		FlagKey:   FlagKey(installer.UserID),
		FlagTTL:   50 * time.Millisecond,
	})
	ctrl.SetIdentity(ctx, installer)

	ctrl.StartTour(ctx, []string{"scanner-button", "points-balance", "badges-tab"})
	sched.FireAll()
	require.Equal(t, PhaseShowing, ctrl.Phase())

	// the first step stays on screen longer than the flag lives
	time.Sleep(100 * time.Millisecond)
	ctrl.NextTourStep(ctx)
	sched.FireAll()

	snap := ctrl.Snapshot()
	require.NotNil(t, snap.ActiveTooltip)
	assert.Equal(t, "points-balance", snap.ActiveTooltip.ID)
	assert.True(t, snap.Tour.Active)
	assert.True(t, snap.TourInProgress)
	set, err := FlagSet(ctx, store, FlagKey(installer.UserID))
	require.NoError(t, err)
	assert.True(t, set)
}

func TestHideTooltip_NothingShowingDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)
	calls := 0
	f.ctrl.Subscribe(func(Snapshot) { calls++ })
	before := f.ctrl.Snapshot().Version

	f.ctrl.HideTooltip(ctx)
	f.ctrl.MarkTooltipAsSeen(ctx, "badges-tab")
	f.ctrl.MarkTooltipAsSeen(ctx, "badges-tab")

	// only the first mark changes anything
	assert.Equal(t, 1, calls)
	assert.Equal(t, before+1, f.ctrl.Snapshot().Version)
}

func TestClosedControllerIgnoresRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, installer)
	f.ctrl.ShowTooltip(ctx, "scanner-button")
	f.ctrl.Close(ctx)
	before := f.ctrl.Snapshot()

	f.ctrl.MarkTooltipAsSeen(ctx, "scanner-button")
	f.ctrl.HideTooltip(ctx)
	f.ctrl.NextTourStep(ctx)
	f.ctrl.ShowTooltip(ctx, "points-balance")

	after := f.ctrl.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Nil(t, after.ActiveTooltip)
	assert.False(t, f.ctrl.HasSeenTooltip("scanner-button"))
	seen, err := LoadSeen(ctx, f.store, installer.UserID)
	require.NoError(t, err)
	assert.Empty(t, seen)
}

func TestRealSchedulerRevealsAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
	ctx := context.Background()
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	ctrl := NewController(Options{
		Registry:    reg,
		Store:       memory.NewTourStateRepository(),
		RevealDelay: 5 * time.Millisecond,
	})
	ctrl.SetIdentity(ctx, installer)

	ctrl.StartTour(ctx, []string{"scanner-button", "points-balance"})
	require.Eventually(t, func() bool { return ctrl.Phase() == PhaseShowing }, time.Second, time.Millisecond)

	ctrl.NextTourStep(ctx)
	ctrl.Close(ctx)
	assert.Equal(t, PhaseIdle, ctrl.Phase())
}

func TestProperty_UnknownIDLeavesActiveUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		reg, _ := DefaultRegistry()
		ctrl := NewController(Options{Registry: reg, Store: memory.NewTourStateRepository(), Scheduler: &manualScheduler{}})
		ctrl.SetIdentity(ctx, installer)

		if rapid.Bool().Draw(t, "preShown") {
			ctrl.ShowTooltip(ctx, "history-list")
		}
		before := ctrl.Snapshot().ActiveTooltip

		id := rapid.StringMatching(`[a-z\-]{0,20}`).Draw(t, "id")
		if _, known := reg.Lookup(RoleInstaller, id); known {
			t.Skip("drew a registered id")
		}
		ctrl.ShowTooltip(ctx, id)

		after := ctrl.Snapshot().ActiveTooltip
		if (before == nil) != (after == nil) || (before != nil && before.ID != after.ID) {
			t.Fatalf("active tooltip changed from %v to %v", before, after)
		}
	})
}

func TestProperty_MarkSeenIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		reg, _ := DefaultRegistry()
		ctrl := NewController(Options{Registry: reg, Store: memory.NewTourStateRepository(), Scheduler: &manualScheduler{}})
		ctrl.SetIdentity(ctx, installer)

		ids := rapid.SliceOf(rapid.StringMatching(`[a-z]{1,8}`)).Draw(t, "ids")
		for _, id := range ids {
			ctrl.MarkTooltipAsSeen(ctx, id)
			once := ctrl.Snapshot().Seen
			ctrl.MarkTooltipAsSeen(ctx, id)
			twice := ctrl.Snapshot()
			if len(once) != len(twice.Seen) {
				t.Fatalf("seen set grew on repeat: %v -> %v", once, twice.Seen)
			}
			if twice.ActiveTooltip != nil {
				t.Fatalf("tooltip still active after mark")
			}
			if !ctrl.HasSeenTooltip(id) {
				t.Fatalf("%q not seen after mark", id)
			}
		}
	})
}
