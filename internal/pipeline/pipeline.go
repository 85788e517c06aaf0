package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trackmate/server/internal/localcache"
	"github.com/trackmate/server/internal/record"
	"github.com/trackmate/server/internal/remotestore"
)

// ErrMutationInFlight rejects a mutation issued while a previous one is
// still persisting. There is no queue; the caller retries after the
// in-flight mutation settles.
var ErrMutationInFlight = errors.New("a mutation is already in flight")

// RemoteStore is the cloud side of the sync loop.
type RemoteStore interface {
	Fetch(ctx context.Context, userID string) (*record.UserDocument, error)
	Write(ctx context.Context, userID string, doc *record.UserDocument) (int64, error)
	Replace(ctx context.Context, userID string, yearlyData map[string]*record.YearRecord, leaveTypes []record.LeaveType) (int64, error)
}

// Action is one user-initiated mutation. Apply runs against a private clone
// of the document; returning an error leaves live state untouched.
type Action interface {
	Name() string
	Apply(doc *record.UserDocument) (string, error)
}

// Outcome reports how an already-committed mutation's persistence ended.
// RolledBack means live state was restored to the pre-mutation snapshot.
type Outcome struct {
	Err        error
	RolledBack bool
}

// Result is the synchronous half of a mutation: the optimistic commit
// already happened, Done resolves when persistence settles.
type Result struct {
	Message string
	Done    <-chan Outcome
}

// Pipeline runs the optimistic mutation protocol: clone, transform, commit,
// persist in the background, roll back on failure. At most one mutation may
// be in flight at a time.
type Pipeline struct {
	userID  string
	remote  RemoteStore
	local   *localcache.Store
	filter  *remotestore.PushFilter
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	doc      *record.UserDocument
	inFlight bool
}

// Config carries the pipeline's collaborators.
type Config struct {
	UserID         string
	Remote         RemoteStore
	Local          *localcache.Store
	Filter         *remotestore.PushFilter
	Logger         *zap.Logger
	PersistTimeout time.Duration
}

const defaultPersistTimeout = 15 * time.Second

// New builds a pipeline around an initial document. The document is cloned;
// the caller's copy stays independent.
func New(cfg Config, initial *record.UserDocument) *Pipeline {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if initial == nil {
		initial = record.NewUserDocument()
	}
	p := &Pipeline{
		userID:  cfg.UserID,
		remote:  cfg.Remote,
		local:   cfg.Local,
		filter:  cfg.Filter,
		logger:  cfg.Logger,
		timeout: cfg.PersistTimeout,
		doc:     initial.Clone(),
	}
	if p.filter != nil {
		p.filter.MarkApplied(initial.LastUpdated)
	}
	return p
}

// Current returns a deep copy of live state. Callers never see the pipeline's
// own document.
func (p *Pipeline) Current() *record.UserDocument {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Clone()
}

// AcquireEditLease suppresses remote pushes while the user is mid-edit.
func (p *Pipeline) AcquireEditLease() {
	if p.filter != nil {
		p.filter.SetEditLease(true)
	}
}

// ReleaseEditLease lifts the suppression.
func (p *Pipeline) ReleaseEditLease() {
	if p.filter != nil {
		p.filter.SetEditLease(false)
	}
}

// PerformMutation runs one action through the full protocol. On success the
// returned message reflects the already-visible optimistic commit; Done
// resolves once the write lands or the rollback completes. A validation
// failure or an in-flight rejection leaves state untouched and Done is nil.
func (p *Pipeline) PerformMutation(ctx context.Context, action Action) (Result, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		p.logger.Warn("mutation rejected, another is in flight",
			zap.String("action", action.Name()))
		return Result{}, ErrMutationInFlight
	}
	p.inFlight = true
	snapshot := p.doc
	working := p.doc.Clone()
	p.mu.Unlock()

	message, err := action.Apply(working)
	if err != nil {
		p.release()
		return Result{}, err
	}

	return p.commit(action.Name(), message, snapshot, working, p.writeFn(working)), nil
}

// release clears the guard taken at mutation entry when the action never
// reaches commit.
func (p *Pipeline) release() {
	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
}

// writeFn picks the persistence target: the remote store when signed in,
// the local cache alone in guest mode.
func (p *Pipeline) writeFn(working *record.UserDocument) func(context.Context) (int64, error) {
	if p.remote != nil {
		return func(ctx context.Context) (int64, error) {
			return p.remote.Write(ctx, p.userID, working)
		}
	}
	return func(ctx context.Context) (int64, error) {
		stamp := time.Now().UnixMilli()
		if p.local == nil {
			return stamp, nil
		}
		// working is live state by now; stamp a private copy. The live
		// document picks up the stamp under the lock once persistence
		// settles.
		stamped := working.Clone()
		stamped.LastUpdated = stamp
		if err := p.local.Save(ctx, p.userID, stamped); err != nil {
			return 0, err
		}
		return stamp, nil
	}
}

// commit swaps the working clone in as live state and hands persistence off
// to a background goroutine. The caller already holds the in-flight guard.
func (p *Pipeline) commit(action, message string, snapshot, working *record.UserDocument, persistFn func(context.Context) (int64, error)) Result {
	p.mu.Lock()
	p.doc = working
	p.mu.Unlock()

	if p.filter != nil {
		p.filter.SetInFlight(true)
	}

	done := make(chan Outcome, 1)
	go p.persist(action, snapshot, persistFn, done)

	return Result{Message: message, Done: done}
}

func (p *Pipeline) persist(action string, snapshot *record.UserDocument, persistFn func(context.Context) (int64, error), done chan<- Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	stamp, err := persistFn(ctx)

	outcome := Outcome{Err: err}
	if err != nil {
		p.mu.Lock()
		p.doc = snapshot
		p.inFlight = false
		p.mu.Unlock()
		outcome.RolledBack = true
		p.logger.Error("persist failed, rolled back",
			zap.String("action", action),
			zap.Error(err))
	} else {
		// Sole writer of live state's timestamp; the cache copy is taken
		// under the same lock so nothing reads the document bare.
		p.mu.Lock()
		p.doc.LastUpdated = stamp
		cached := p.doc.Clone()
		p.inFlight = false
		p.mu.Unlock()
		if p.filter != nil {
			p.filter.MarkApplied(stamp)
		}
		p.saveLocal(ctx, cached)
	}

	if p.filter != nil {
		p.filter.SetInFlight(false)
	}
	done <- outcome
}

// ResetData wipes the activity data and leave catalog while keeping team
// membership and unknown fields. It runs through the same in-flight guard as
// a regular mutation but persists via replace semantics.
func (p *Pipeline) ResetData(ctx context.Context) (Result, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		p.logger.Warn("reset rejected, a mutation is in flight")
		return Result{}, ErrMutationInFlight
	}
	p.inFlight = true
	snapshot := p.doc
	working := p.doc.Clone()
	p.mu.Unlock()

	working.YearlyData = make(map[string]*record.YearRecord)
	working.LeaveTypes = []record.LeaveType{}

	persistFn := p.writeFn(working)
	if p.remote != nil {
		persistFn = func(ctx context.Context) (int64, error) {
			return p.remote.Replace(ctx, p.userID, working.YearlyData, working.LeaveTypes)
		}
	}
	return p.commit("reset", "All data reset", snapshot, working, persistFn), nil
}

// HandleRemoteChange reacts to a pub/sub change notification. Delivered
// events trigger a fetch and swap; suppressed and stale events are dropped.
func (p *Pipeline) HandleRemoteChange(ctx context.Context, event remotestore.ChangeEvent) error {
	if p.filter != nil {
		if verdict := p.filter.Judge(event.LastUpdated); verdict != remotestore.VerdictDeliver {
			p.logger.Debug("remote change not applied",
				zap.String("verdict", string(verdict)),
				zap.Int64("last_updated", event.LastUpdated))
			return nil
		}
	}

	doc, err := p.remote.Fetch(ctx, p.userID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.doc = doc.Clone()
	p.mu.Unlock()

	p.saveLocal(ctx, doc)
	return nil
}

func (p *Pipeline) saveLocal(ctx context.Context, doc *record.UserDocument) {
	if p.local == nil {
		return
	}
	if err := p.local.Save(ctx, p.userID, doc); err != nil {
		p.logger.Warn("local cache save failed", zap.Error(err))
	}
}
