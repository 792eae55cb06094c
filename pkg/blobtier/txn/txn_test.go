package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/blobtier/pkg/blobtier/txn"
)

type recorder struct {
	name      string
	log       *[]string
	commitErr error
}

func (r *recorder) Commit(context.Context) error {
	*r.log = append(*r.log, "commit:"+r.name)
	return r.commitErr
}

func (r *recorder) Rollback(context.Context) error {
	*r.log = append(*r.log, "rollback:"+r.name)
	return nil
}

func enlist(t *testing.T, tx *txn.Tx, r *recorder) {
	t.Helper()
	_, err := txn.Enlist(tx, r.name, func() (*recorder, error) { return r, nil })
	require.NoError(t, err)
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	_, ok := txn.FromContext(ctx)
	assert.False(t, ok)

	txCtx, tx := txn.Begin(ctx)
	got, ok := txn.FromContext(txCtx)
	require.True(t, ok)
	assert.Equal(t, tx.ID(), got.ID())

	require.NoError(t, tx.Commit(ctx))
	_, ok = txn.FromContext(txCtx)
	assert.False(t, ok, "finished transactions are not visible")
}

func TestCommitOrder(t *testing.T) {
	var log []string
	_, tx := txn.Begin(context.Background())

	enlist(t, tx, &recorder{name: "a", log: &log})
	enlist(t, tx, &recorder{name: "b", log: &log})
	require.NoError(t, tx.OnCommit("hook", func(context.Context) error {
		log = append(log, "commit:hook")
		return nil
	}))

	require.NoError(t, tx.Commit(context.Background()))
	assert.Equal(t, []string{"commit:a", "commit:b", "commit:hook"}, log)
	assert.Equal(t, txn.StatusCommitted, tx.Status())
}

func TestCommitPhases(t *testing.T) {
	enlistRecord := func(t *testing.T, tx *txn.Tx, r *recorder) {
		t.Helper()
		_, err := txn.EnlistPhase(tx, txn.PhaseRecord, r.name, func() (*recorder, error) { return r, nil })
		require.NoError(t, err)
	}

	t.Run("records commit after blobs and requests", func(t *testing.T) {
		var log []string
		_, tx := txn.Begin(context.Background())

		enlistRecord(t, tx, &recorder{name: "doc", log: &log})
		require.NoError(t, tx.OnCommit("restore", func(context.Context) error {
			log = append(log, "commit:restore")
			return nil
		}))
		enlist(t, tx, &recorder{name: "blob", log: &log})

		require.NoError(t, tx.Commit(context.Background()))
		assert.Equal(t, []string{"commit:blob", "commit:restore", "commit:doc"}, log)
	})

	t.Run("failed request rolls back records", func(t *testing.T) {
		var log []string
		_, tx := txn.Begin(context.Background())
		down := errors.New("archive down")

		enlistRecord(t, tx, &recorder{name: "doc", log: &log})
		require.NoError(t, tx.OnCommit("restore", func(context.Context) error {
			log = append(log, "request:restore")
			return down
		}))
		enlist(t, tx, &recorder{name: "blob", log: &log})

		err := tx.Commit(context.Background())
		assert.ErrorIs(t, err, txn.ErrCommitFailed)
		assert.ErrorIs(t, err, down)
		assert.Equal(t, []string{"commit:blob", "request:restore", "rollback:doc"}, log)
	})
}

func TestEnlistReturnsExisting(t *testing.T) {
	var log []string
	_, tx := txn.Begin(context.Background())
	first := &recorder{name: "a", log: &log}
	enlist(t, tx, first)

	calls := 0
	got, err := txn.Enlist(tx, "a", func() (*recorder, error) {
		calls++
		return &recorder{}, nil
	})
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Zero(t, calls)
}

func TestCommitFailureRollsBackRemaining(t *testing.T) {
	var log []string
	_, tx := txn.Begin(context.Background())
	boom := errors.New("boom")

	enlist(t, tx, &recorder{name: "a", log: &log})
	enlist(t, tx, &recorder{name: "b", log: &log, commitErr: boom})
	enlist(t, tx, &recorder{name: "c", log: &log})

	err := tx.Commit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, txn.ErrCommitFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"commit:a", "commit:b", "rollback:c", "rollback:b"}, log)
	assert.Equal(t, txn.StatusRolledBack, tx.Status())
}

func TestRollbackOnly(t *testing.T) {
	var log []string
	_, tx := txn.Begin(context.Background())
	enlist(t, tx, &recorder{name: "a", log: &log})
	tx.SetRollbackOnly()

	err := tx.Commit(context.Background())
	assert.ErrorIs(t, err, txn.ErrRolledBack)
	assert.Equal(t, []string{"rollback:a"}, log)
}

func TestFinishedTransaction(t *testing.T) {
	_, tx := txn.Begin(context.Background())
	require.NoError(t, tx.Rollback(context.Background()))

	assert.ErrorIs(t, tx.Commit(context.Background()), txn.ErrNotActive)
	assert.ErrorIs(t, tx.Rollback(context.Background()), txn.ErrNotActive)
	_, err := txn.Enlist(tx, "x", func() (*recorder, error) { return &recorder{}, nil })
	assert.ErrorIs(t, err, txn.ErrNotActive)
	assert.ErrorIs(t, tx.OnCommit("h", func(context.Context) error { return nil }), txn.ErrNotActive)
}

func TestRun(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		var log []string
		err := txn.Run(context.Background(), func(ctx context.Context) error {
			tx, ok := txn.FromContext(ctx)
			require.True(t, ok)
			enlist(t, tx, &recorder{name: "a", log: &log})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"commit:a"}, log)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		var log []string
		fail := errors.New("fail")
		err := txn.Run(context.Background(), func(ctx context.Context) error {
			tx, _ := txn.FromContext(ctx)
			enlist(t, tx, &recorder{name: "a", log: &log})
			return fail
		})
		assert.ErrorIs(t, err, fail)
		assert.Equal(t, []string{"rollback:a"}, log)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		var log []string
		assert.Panics(t, func() {
			_ = txn.Run(context.Background(), func(ctx context.Context) error {
				tx, _ := txn.FromContext(ctx)
				enlist(t, tx, &recorder{name: "a", log: &log})
				panic("bad")
			})
		})
		assert.Equal(t, []string{"rollback:a"}, log)
	})
}
