package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackmate/server/internal/localcache"
	"github.com/trackmate/server/internal/record"
	"github.com/trackmate/server/internal/remotestore"
)

type fakeRemote struct {
	mu       sync.Mutex
	stamp    int64
	writeErr error
	gate     chan struct{} // when set, Write blocks until closed
	last     *record.UserDocument
	fetchDoc *record.UserDocument
	writes   int
}

func (f *fakeRemote) Fetch(ctx context.Context, userID string) (*record.UserDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchDoc == nil {
		return record.NewUserDocument(), nil
	}
	return f.fetchDoc.Clone(), nil
}

func (f *fakeRemote) Write(ctx context.Context, userID string, doc *record.UserDocument) (int64, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.stamp++
	f.last = doc.Clone()
	return f.stamp, nil
}

func (f *fakeRemote) Replace(ctx context.Context, userID string, yearlyData map[string]*record.YearRecord, leaveTypes []record.LeaveType) (int64, error) {
	doc := record.NewUserDocument()
	doc.YearlyData = record.CloneYearlyData(yearlyData)
	doc.LeaveTypes = append([]record.LeaveType(nil), leaveTypes...)
	return f.Write(ctx, userID, doc)
}

func newTestPipeline(t *testing.T, remote *fakeRemote, initial *record.UserDocument) *Pipeline {
	t.Helper()
	local, err := localcache.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	return New(Config{
		UserID:         "user-1",
		Remote:         remote,
		Local:          local,
		Filter:         remotestore.NewPushFilter(nil),
		Logger:         zap.NewNop(),
		PersistTimeout: 5 * time.Second,
	}, initial)
}

func seededDoc() *record.UserDocument {
	doc := record.NewUserDocument()
	doc.LeaveTypes = []record.LeaveType{{ID: "annual", Name: "Annual", TotalDays: 20}}
	doc.Year("2025").Day("2025-06-02").Note = "existing"
	return doc
}

func TestPerformMutation_OptimisticCommit(t *testing.T) {
	remote := &fakeRemote{}
	p := newTestPipeline(t, remote, seededDoc())

	res, err := p.PerformMutation(context.Background(), SaveNote{DateKey: "2025-06-02", Text: "updated"})
	require.NoError(t, err)
	assert.Equal(t, "Note saved", res.Message)

	// Visible before persistence settles.
	assert.Equal(t, "updated", p.Current().Year("2025").Day("2025-06-02").Note)

	outcome := <-res.Done
	require.NoError(t, outcome.Err)
	assert.False(t, outcome.RolledBack)
	assert.Equal(t, "updated", remote.last.Year("2025").Day("2025-06-02").Note)
	assert.Equal(t, int64(1), p.Current().LastUpdated)
}

func TestPerformMutation_RollbackRestoresSnapshot(t *testing.T) {
	remote := &fakeRemote{writeErr: errors.New("db down")}
	initial := seededDoc()
	p := newTestPipeline(t, remote, initial)

	before := p.Current()

	res, err := p.PerformMutation(context.Background(), ClearDay{DateKey: "2025-06-02"})
	require.NoError(t, err)

	// Optimistically applied.
	assert.True(t, p.Current().Year("2025").Day("2025-06-02").UserCleared)

	outcome := <-res.Done
	require.Error(t, outcome.Err)
	assert.True(t, outcome.RolledBack)
	assert.Equal(t, before, p.Current())
}

func TestPerformMutation_AtMostOneInFlight(t *testing.T) {
	gate := make(chan struct{})
	remote := &fakeRemote{gate: gate}
	p := newTestPipeline(t, remote, seededDoc())

	first, err := p.PerformMutation(context.Background(), SaveNote{DateKey: "2025-06-02", Text: "one"})
	require.NoError(t, err)

	_, err = p.PerformMutation(context.Background(), SaveNote{DateKey: "2025-06-02", Text: "two"})
	assert.ErrorIs(t, err, ErrMutationInFlight)

	close(gate)
	outcome := <-first.Done
	require.NoError(t, outcome.Err)

	// Settled; the next mutation is accepted.
	res, err := p.PerformMutation(context.Background(), SaveNote{DateKey: "2025-06-02", Text: "two"})
	require.NoError(t, err)
	require.NoError(t, (<-res.Done).Err)
	assert.Equal(t, "two", p.Current().Year("2025").Day("2025-06-02").Note)
}

// gatedAction parks inside Apply until released, so tests can hold a
// mutation mid-transform.
type gatedAction struct {
	entered chan struct{}
	release chan struct{}
}

func (a gatedAction) Name() string { return "gated" }

func (a gatedAction) Apply(doc *record.UserDocument) (string, error) {
	close(a.entered)
	<-a.release
	doc.Year("2025").Day("2025-06-02").Note = "slow"
	return "Slow note saved", nil
}

func TestPerformMutation_GuardHeldDuringApply(t *testing.T) {
	remote := &fakeRemote{}
	p := newTestPipeline(t, remote, seededDoc())

	slow := gatedAction{entered: make(chan struct{}), release: make(chan struct{})}
	type settled struct {
		res Result
		err error
	}
	first := make(chan settled, 1)
	go func() {
		res, err := p.PerformMutation(context.Background(), slow)
		first <- settled{res, err}
	}()

	// A mutation entering while another is still inside Apply must be
	// rejected, not allowed to commit a clone of the older state.
	<-slow.entered
	_, err := p.PerformMutation(context.Background(), SaveNote{DateKey: "2025-06-02", Text: "fast"})
	assert.ErrorIs(t, err, ErrMutationInFlight)

	close(slow.release)
	outcome := <-first
	require.NoError(t, outcome.err)
	require.NoError(t, (<-outcome.res.Done).Err)
	assert.Equal(t, "slow", p.Current().Year("2025").Day("2025-06-02").Note)
}

func TestCurrent_SafeWhilePersisting(t *testing.T) {
	local, err := localcache.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	p := New(Config{
		UserID: "guest",
		Local:  local,
		Filter: remotestore.NewPushFilter(nil),
		Logger: zap.NewNop(),
	}, seededDoc())

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = p.Current()
			}
		}
	}()

	// The race detector flags any persist path that writes live state
	// outside the lock while readers clone it.
	for i := 0; i < 20; i++ {
		res, err := p.PerformMutation(context.Background(), SaveNote{DateKey: "2025-06-02", Text: "note"})
		require.NoError(t, err)
		require.NoError(t, (<-res.Done).Err)
	}

	close(stop)
	wg.Wait()
	assert.NotZero(t, p.Current().LastUpdated)
}

func TestPerformMutation_ValidationLeavesStateUntouched(t *testing.T) {
	remote := &fakeRemote{}
	p := newTestPipeline(t, remote, seededDoc())
	before := p.Current()

	_, err := p.PerformMutation(context.Background(), LogLeave{
		DateKey: "2025-06-02",
		TypeID:  "nonexistent",
		DayType: record.DayTypeFull,
	})

	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, before, p.Current())
	assert.Zero(t, remote.writes)

	// No in-flight residue either.
	res, err := p.PerformMutation(context.Background(), SaveNote{DateKey: "2025-06-02", Text: "fine"})
	require.NoError(t, err)
	require.NoError(t, (<-res.Done).Err)
}

func TestResetData_KeepsTeamFieldsAndExtras(t *testing.T) {
	remote := &fakeRemote{}
	initial := seededDoc()
	initial.TeamID = "ABCD1234"
	initial.TeamRole = record.TeamRoleMember
	p := newTestPipeline(t, remote, initial)

	res, err := p.ResetData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "All data reset", res.Message)
	require.NoError(t, (<-res.Done).Err)

	current := p.Current()
	assert.Empty(t, current.YearlyData)
	assert.Empty(t, current.LeaveTypes)
	assert.Equal(t, "ABCD1234", current.TeamID)
	assert.Equal(t, record.TeamRoleMember, current.TeamRole)
}

func TestGuestModePersistsLocallyOnly(t *testing.T) {
	local, err := localcache.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	p := New(Config{
		UserID: "guest",
		Local:  local,
		Filter: remotestore.NewPushFilter(nil),
		Logger: zap.NewNop(),
	}, seededDoc())

	res, err := p.PerformMutation(context.Background(), SaveNote{DateKey: "2025-06-02", Text: "offline"})
	require.NoError(t, err)
	require.NoError(t, (<-res.Done).Err)

	cached, err := local.Load(context.Background(), "guest")
	require.NoError(t, err)
	assert.Equal(t, "offline", cached.Year("2025").Day("2025-06-02").Note)
}

func TestHandleRemoteChange(t *testing.T) {
	t.Run("delivered change swaps state", func(t *testing.T) {
		incoming := record.NewUserDocument()
		incoming.Year("2025").Day("2025-07-01").Note = "from another device"
		incoming.LastUpdated = 42

		remote := &fakeRemote{fetchDoc: incoming}
		p := newTestPipeline(t, remote, seededDoc())

		err := p.HandleRemoteChange(context.Background(), remotestore.ChangeEvent{
			UserID: "user-1", LastUpdated: 42,
		})
		require.NoError(t, err)
		assert.Equal(t, "from another device", p.Current().Year("2025").Day("2025-07-01").Note)
	})

	t.Run("edit lease suppresses the change", func(t *testing.T) {
		incoming := record.NewUserDocument()
		incoming.Year("2025").Day("2025-07-01").Note = "ignored"

		remote := &fakeRemote{fetchDoc: incoming}
		p := newTestPipeline(t, remote, seededDoc())
		p.AcquireEditLease()

		err := p.HandleRemoteChange(context.Background(), remotestore.ChangeEvent{
			UserID: "user-1", LastUpdated: 42,
		})
		require.NoError(t, err)
		assert.NotContains(t, p.Current().Year("2025").Activities, "2025-07-01")

		p.ReleaseEditLease()
		require.NoError(t, p.HandleRemoteChange(context.Background(), remotestore.ChangeEvent{
			UserID: "user-1", LastUpdated: 42,
		}))
		assert.Equal(t, "ignored", p.Current().Year("2025").Day("2025-07-01").Note)
	})

	t.Run("stale change dropped", func(t *testing.T) {
		incoming := record.NewUserDocument()
		incoming.Year("2025").Day("2025-07-01").Note = "old"

		remote := &fakeRemote{fetchDoc: incoming}
		initial := seededDoc()
		initial.LastUpdated = 100
		p := newTestPipeline(t, remote, initial)

		err := p.HandleRemoteChange(context.Background(), remotestore.ChangeEvent{
			UserID: "user-1", LastUpdated: 99,
		})
		require.NoError(t, err)
		assert.NotContains(t, p.Current().Year("2025").Activities, "2025-07-01")
	})
}

func TestDefaultSlotSeedingThroughActions(t *testing.T) {
	remote := &fakeRemote{}
	p := newTestPipeline(t, remote, seededDoc())

	// 2025-06-03 is a Tuesday with no saved slots: the add lands on top of
	// the ten seeded defaults.
	res, err := p.PerformMutation(context.Background(), AddSlot{DateKey: "2025-06-03"})
	require.NoError(t, err)
	require.NoError(t, (<-res.Done).Err)

	day := p.Current().Year("2025").Day("2025-06-03")
	assert.Len(t, day.Slots, 11)
	assert.Equal(t, 10, day.Slots["00:00"].Order)

	// 2025-06-01 is a Sunday: no seeding, just the new slot.
	res, err = p.PerformMutation(context.Background(), AddSlot{DateKey: "2025-06-01"})
	require.NoError(t, err)
	require.NoError(t, (<-res.Done).Err)

	sunday := p.Current().Year("2025").Day("2025-06-01")
	assert.Len(t, sunday.Slots, 1)
}

func TestActions(t *testing.T) {
	apply := func(t *testing.T, doc *record.UserDocument, a Action) string {
		t.Helper()
		msg, err := a.Apply(doc)
		require.NoError(t, err)
		return msg
	}

	t.Run("upsert leave type adds then replaces", func(t *testing.T) {
		doc := record.NewUserDocument()

		msg := apply(t, doc, UpsertLeaveType{LeaveType: record.LeaveType{ID: "sick", Name: "Sick", TotalDays: 10}})
		assert.Equal(t, "Leave type added", msg)

		msg = apply(t, doc, UpsertLeaveType{LeaveType: record.LeaveType{ID: "sick", Name: "Sick Leave", TotalDays: 12}})
		assert.Equal(t, "Leave type updated", msg)

		require.Len(t, doc.LeaveTypes, 1)
		assert.Equal(t, 12.0, doc.LeaveTypes[0].TotalDays)
	})

	t.Run("hide leave type strips the year", func(t *testing.T) {
		doc := seededDoc()
		doc.Year("2025").Day("2025-06-05").Leave = &record.LeaveEntry{TypeID: "annual", DayType: record.DayTypeFull}
		doc.Year("2024").Day("2024-06-05").Leave = &record.LeaveEntry{TypeID: "annual", DayType: record.DayTypeFull}

		apply(t, doc, HideLeaveType{Year: "2025", TypeID: "annual"})

		assert.True(t, doc.Year("2025").LeaveOverrides["annual"].Hidden)
		assert.Nil(t, doc.Year("2025").Day("2025-06-05").Leave)
		assert.NotNil(t, doc.Year("2024").Day("2024-06-05").Leave)
		// Catalog entry survives.
		_, ok := doc.LeaveTypeByID("annual")
		assert.True(t, ok)
	})

	t.Run("set and clear override", func(t *testing.T) {
		doc := seededDoc()
		ten := 10.0

		apply(t, doc, SetLeaveOverride{Year: "2025", TypeID: "annual", TotalDays: &ten})
		assert.Equal(t, 10.0, *doc.Year("2025").LeaveOverrides["annual"].TotalDays)

		msg := apply(t, doc, SetLeaveOverride{Year: "2025", TypeID: "annual"})
		assert.Equal(t, "Override cleared", msg)
		assert.NotContains(t, doc.Year("2025").LeaveOverrides, "annual")
	})

	t.Run("invalid date rejected", func(t *testing.T) {
		doc := record.NewUserDocument()
		_, err := SaveNote{DateKey: "06/02/2025", Text: "x"}.Apply(doc)
		var verr *record.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}
