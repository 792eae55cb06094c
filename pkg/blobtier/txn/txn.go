// Package txn provides the unit-of-work handle threaded through blob store
// and repository calls.
//
// A transaction is started with Begin, which returns a derived context that
// carries the *Tx. Participants enlist themselves as resources in a commit
// phase: blob buffers in PhaseData, deferred backend requests in PhaseRequest
// and document records in PhaseRecord. Commit applies the phases in that order,
// resources of one phase in enlistment order, and Rollback discards them. A
// record therefore only commits once the blobs and requests it refers to have. Run wraps a function in
// a transaction that is always finished, including when the function panics.
package txn

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrCommitFailed indicates a resource failed while the transaction was
	// being committed. Resources committed before the failing one stay applied.
	ErrCommitFailed = errors.New("commit failed")

	// ErrRolledBack is returned by Commit when the transaction was marked
	// rollback-only and has been rolled back instead.
	ErrRolledBack = errors.New("transaction rolled back")

	// ErrNotActive indicates an operation on a transaction that has already
	// been committed or rolled back.
	ErrNotActive = errors.New("transaction not active")
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusActive     Status = "active"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
)

// Resource is a participant in a transaction.
type Resource interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Phase orders resources at commit. Lower phases commit first.
type Phase int

const (
	PhaseData Phase = iota
	PhaseRequest
	PhaseRecord
)

type enlisted struct {
	key   string
	phase Phase
	res   Resource
}

// Tx is a transaction handle. It is safe for concurrent use.
type Tx struct {
	id uuid.UUID

	mu           sync.Mutex
	status       Status
	rollbackOnly bool
	resources    []enlisted
	byKey        map[string]Resource
}

type ctxKey struct{}

// Begin starts a transaction and returns a context carrying it.
func Begin(ctx context.Context) (context.Context, *Tx) {
	tx := &Tx{
		id:     uuid.New(),
		status: StatusActive,
		byKey:  make(map[string]Resource),
	}
	return context.WithValue(ctx, ctxKey{}, tx), tx
}

// FromContext returns the active transaction carried by ctx, if any.
// Finished transactions are not returned.
func FromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*Tx)
	if !ok || !tx.Active() {
		return nil, false
	}
	return tx, true
}

// ID returns the transaction identity.
func (t *Tx) ID() uuid.UUID { return t.id }

// Status returns the current transaction status.
func (t *Tx) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Active reports whether the transaction can still accept work.
func (t *Tx) Active() bool {
	return t.Status() == StatusActive
}

// SetRollbackOnly marks the transaction so that Commit rolls it back.
func (t *Tx) SetRollbackOnly() {
	t.mu.Lock()
	t.rollbackOnly = true
	t.mu.Unlock()
}

// RollbackOnly reports whether the transaction was marked rollback-only.
func (t *Tx) RollbackOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackOnly
}

// Enlist returns the PhaseData resource registered under key, creating it with
// factory on first use.
func Enlist[R Resource](t *Tx, key string, factory func() (R, error)) (R, error) {
	return EnlistPhase(t, PhaseData, key, factory)
}

// EnlistPhase is Enlist for a resource committed in phase. Within a phase
// resources are committed in the order they were first enlisted.
func EnlistPhase[R Resource](t *Tx, phase Phase, key string, factory func() (R, error)) (R, error) {
	var zero R

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return zero, fmt.Errorf("enlist %s in tx %s: %w", key, t.id, ErrNotActive)
	}
	if existing, ok := t.byKey[key]; ok {
		r, ok := existing.(R)
		if !ok {
			return zero, fmt.Errorf("enlist %s in tx %s: resource has type %T", key, t.id, existing)
		}
		return r, nil
	}

	r, err := factory()
	if err != nil {
		return zero, err
	}
	t.byKey[key] = r
	t.resources = append(t.resources, enlisted{key: key, phase: phase, res: r})
	return r, nil
}

// OnCommit registers fn to run in PhaseRequest, after the blob buffers and
// before the records. It never runs if the transaction rolls back.
func (t *Tx) OnCommit(name string, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return fmt.Errorf("register %s in tx %s: %w", name, t.id, ErrNotActive)
	}
	t.resources = append(t.resources, enlisted{key: name, phase: PhaseRequest, res: hook(fn)})
	return nil
}

type hook func(ctx context.Context) error

func (h hook) Commit(ctx context.Context) error { return h(ctx) }
func (h hook) Rollback(context.Context) error   { return nil }

// finish moves the transaction out of the active state and hands back its
// resources in commit order. Only the first caller gets them.
func (t *Tx) finish(to Status) ([]enlisted, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusActive {
		return nil, false, fmt.Errorf("tx %s is %s: %w", t.id, t.status, ErrNotActive)
	}
	rollbackOnly := t.rollbackOnly
	if rollbackOnly {
		to = StatusRolledBack
	}
	t.status = to
	res := t.resources
	t.resources = nil
	t.byKey = nil
	slices.SortStableFunc(res, func(a, b enlisted) int { return cmp.Compare(a.phase, b.phase) })
	return res, rollbackOnly, nil
}

// Commit commits every enlisted resource in phase order. The first
// failure stops the sequence: the remaining resources are rolled back and the
// error wraps ErrCommitFailed.
func (t *Tx) Commit(ctx context.Context) error {
	res, rollbackOnly, err := t.finish(StatusCommitted)
	if err != nil {
		return err
	}
	if rollbackOnly {
		if err := rollbackAll(ctx, res); err != nil {
			return errors.Join(ErrRolledBack, err)
		}
		return ErrRolledBack
	}

	for i, r := range res {
		if err := r.res.Commit(ctx); err != nil {
			t.mu.Lock()
			t.status = StatusRolledBack
			t.mu.Unlock()

			cerr := fmt.Errorf("%w: tx %s resource %s: %w", ErrCommitFailed, t.id, r.key, err)
			if rerr := rollbackAll(ctx, res[i:]); rerr != nil {
				return errors.Join(cerr, rerr)
			}
			return cerr
		}
	}
	return nil
}

// Rollback discards every enlisted resource.
func (t *Tx) Rollback(ctx context.Context) error {
	res, _, err := t.finish(StatusRolledBack)
	if err != nil {
		return err
	}
	return rollbackAll(ctx, res)
}

func rollbackAll(ctx context.Context, res []enlisted) error {
	var errs []error
	for i := len(res) - 1; i >= 0; i-- {
		if err := res[i].res.Rollback(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rollback %s: %w", res[i].key, err))
		}
	}
	return errors.Join(errs...)
}

// Run executes fn inside a new transaction. The transaction is committed when
// fn returns nil and rolled back when it returns an error or panics; a panic
// is re-raised after the rollback.
func Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	txCtx, tx := Begin(ctx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, ErrNotActive) {
			return errors.Join(err, rerr)
		}
		return err
	}
	return tx.Commit(ctx)
}
