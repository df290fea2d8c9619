package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/dynamotest"
)

func newCounter(t *testing.T, opts ...docstore.Option) (*Counter, *docstore.Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("sequences", "company_id", "name")
	store := docstore.New(fake, append([]docstore.Option{docstore.WithBackoff(0)}, opts...)...)
	return NewCounter(store, "sequences"), store, fake
}

func next(ctx context.Context, store *docstore.Store, c *Counter, company string) (int64, error) {
	var n int64
	err := store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		var err error
		n, err = c.Next(ctx, tx, company, OrderNumbers)
		return err
	})
	return n, err
}

func TestNext_StartsAtOneAndAdvances(t *testing.T) {
	c, store, fake := newCounter(t)
	ctx := context.Background()

	n, err := next(ctx, store, c, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	doc := fake.Item("sequences", docstore.Item{"company_id": docstore.S("C1"), "name": docstore.S(OrderNumbers)})
	stored, _ := docstore.Int(doc, "next_number")
	assert.Equal(t, int64(2), stored)
	assert.NotEmpty(t, docstore.Str(doc, "created_at"))
	assert.Equal(t, "C1", docstore.Str(doc, "company_id"))

	n, err = next(ctx, store, c, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	peek, err := c.Peek(ctx, "C1", OrderNumbers)
	require.NoError(t, err)
	assert.Equal(t, int64(3), peek)
}

func TestNext_CompaniesAreIndependent(t *testing.T) {
	c, store, _ := newCounter(t)
	ctx := context.Background()
	_, err := next(ctx, store, c, "C1")
	require.NoError(t, err)

	n, err := next(ctx, store, c, "C2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNext_AbortedTransactionDoesNotAdvance(t *testing.T) {
	c, store, _ := newCounter(t)
	ctx := context.Background()

	err := store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if _, err := c.Next(ctx, tx, "C1", OrderNumbers); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	peek, err := c.Peek(ctx, "C1", OrderNumbers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), peek)
}

func TestNext_ConcurrentCallersGetDenseNumbers(t *testing.T) {
	const callers = 6
	c, store, _ := newCounter(t, docstore.WithMaxAttempts(callers+1), docstore.WithClock(func() time.Time {
		return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	}))
	ctx := context.Background()

	got := make([]int64, callers)
	var g errgroup.Group
	for i := range got {
		i := i
		g.Go(func() error {
			n, err := next(ctx, store, c, "C1")
			got[i] = n
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6}, got)
}
