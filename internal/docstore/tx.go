package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
)

// MaxTransactionActions is the backend's limit of documents per transaction.
const MaxTransactionActions = 100

type snapshot struct {
	ref       Ref
	item      Item
	version   int64
	versioned bool
}

// Tx is one attempt of an optimistic transaction. Reads are strongly
// consistent and remember the version they saw; writes are buffered and
// committed together, each conditioned on its document being unchanged since
// it was read. Documents that were read but not written are checked as well.
type Tx struct {
	store  *Store
	now    time.Time
	reads  map[string]snapshot
	writes map[string]Update
	refs   map[string]Ref
	order  []string
}

func newTx(s *Store) *Tx {
	return &Tx{
		store:  s,
		now:    s.Now(),
		reads:  map[string]snapshot{},
		writes: map[string]Update{},
		refs:   map[string]Ref{},
	}
}

// Now is the commit instant of this attempt. Server-assigned timestamps
// written by the attempt take this value.
func (tx *Tx) Now() time.Time { return tx.now }

// Get reads a document inside the transaction; (nil, nil) if absent. A
// document is read from the backend once per attempt.
func (tx *Tx) Get(ctx context.Context, ref Ref) (Item, error) {
	id := ref.id()
	if snap, ok := tx.reads[id]; ok {
		return snap.item, nil
	}
	if _, ok := tx.writes[id]; ok {
		return nil, fmt.Errorf("docstore: read of %s after write in the same transaction", id)
	}
	item, err := tx.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	snap := snapshot{ref: ref, item: item}
	snap.version, snap.versioned = Int(item, VersionAttr)
	tx.reads[id] = snap
	tx.track(id, ref)
	return item, nil
}

// Update buffers a merging write. Each document may be written once per attempt.
func (tx *Tx) Update(ref Ref, u Update) error {
	id := ref.id()
	if _, ok := tx.writes[id]; ok {
		return fmt.Errorf("docstore: %s written twice in the same transaction", id)
	}
	tx.writes[id] = u
	tx.track(id, ref)
	return nil
}

func (tx *Tx) track(id string, ref Ref) {
	if _, ok := tx.refs[id]; ok {
		return
	}
	tx.refs[id] = ref
	tx.order = append(tx.order, id)
}

// guard is the condition that proves a snapshot is still current.
func (snap snapshot) guard() Condition {
	partition := snap.ref.partitionAttr()
	switch {
	case snap.item == nil:
		return AttributeNotExists(partition)
	case snap.versioned:
		return Equal(VersionAttr, N(snap.version))
	default:
		return And(AttributeExists(partition), AttributeNotExists(VersionAttr))
	}
}

func (tx *Tx) actions() ([]types.TransactWriteItem, error) {
	items := make([]types.TransactWriteItem, 0, len(tx.order))
	for _, id := range tx.order {
		ref := tx.refs[id]
		snap, read := tx.reads[id]
		u, written := tx.writes[id]

		if !written {
			expr, err := conditionOnly(snap.guard())
			if err != nil {
				return nil, err
			}
			items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
				TableName:                 ptr(ref.Table),
				Key:                       ref.Key,
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			}})
			continue
		}

		cond := u.Condition
		version := bumpVersion()
		if read {
			cond = And(snap.guard(), u.Condition)
			version = setVersion(snap.version + 1)
		}
		b := expression.NewBuilder().WithUpdate(u.builder(ref.Key, version))
		if !cond.IsZero() {
			b = b.WithCondition(cond.cb)
		}
		expr, err := build(b, false)
		if err != nil {
			return nil, err
		}
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:                 ptr(ref.Table),
			Key:                       ref.Key,
			UpdateExpression:          expr.Update(),
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}})
	}
	return items, nil
}

func (tx *Tx) commit(ctx context.Context) error {
	if len(tx.writes) == 0 {
		return nil
	}
	items, err := tx.actions()
	if err != nil {
		return err
	}
	if len(items) > MaxTransactionActions {
		return &apperr.UnexpectedError{
			Details: fmt.Sprintf("transaction touches %d documents, limit is %d", len(items), MaxTransactionActions),
		}
	}
	_, err = tx.store.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: ptr(uuid.NewString()),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return classifyCommit(err)
	}
	return nil
}

// TxFunc is the body of a transaction. It may run several times and must not
// leak state from one attempt into the next.
type TxFunc func(ctx context.Context, tx *Tx) error

// RunTransaction runs fn and commits what it buffered. Attempts that lose an
// optimistic race are re-run from scratch; once attempts are exhausted the
// error is backend_unavailable. Errors returned by fn abort without retry.
func (s *Store) RunTransaction(ctx context.Context, fn TxFunc) error {
	for attempt := 1; ; attempt++ {
		err := s.attempt(ctx, fn)
		if err == nil || !errors.Is(err, errContention) {
			s.observe(attempt, err)
			return err
		}
		if attempt >= s.maxAttempts {
			err = fmt.Errorf("%w: transaction still contended after %d attempts: %w",
				apperr.ErrBackendUnavailable, attempt, err)
			s.observe(attempt, err)
			return err
		}
		s.logger.Debug("transaction contended, retrying", slog.Int("attempt", attempt))
		if err := s.wait(ctx, attempt); err != nil {
			s.observe(attempt, err)
			return err
		}
	}
}

func (s *Store) attempt(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newTx(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

func (s *Store) observe(attempts int, err error) {
	if s.observer != nil {
		s.observer(attempts, err)
	}
}

// wait sleeps a jittered, exponentially growing delay.
func (s *Store) wait(ctx context.Context, attempt int) error {
	if s.backoff <= 0 {
		return ctx.Err()
	}
	d := s.backoff << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	d = d/2 + time.Duration(rand.Int63n(int64(d/2+1)))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
