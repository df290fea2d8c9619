package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/dynamotest"
)

const counters = "counters"

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable(counters, "company_id", "name")
	fake.CreateTable("docs", "id", "")
	fake.CreateIndex("docs", "by-owner", "owner", "rank")
	opts = append([]Option{WithBackoff(0), WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(fake, opts...), fake
}

func counterRef(company string) Ref {
	return Ref{Table: counters, Key: Item{"company_id": S(company), "name": S("pedido")}}
}

// incrementCounter reads the counter and writes it back plus one, the way a sequence does.
func incrementCounter(company string) TxFunc {
	return func(ctx context.Context, tx *Tx) error {
		ref := counterRef(company)
		cur, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		n, ok := Int(cur, "next_number")
		if !ok {
			n = 1
		}
		return tx.Update(ref, Update{Set: Item{"next_number": N(n + 1)}})
	}
}

func TestRunTransaction_CreatesAndBumpsVersion(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RunTransaction(ctx, incrementCounter("c1")))
	require.NoError(t, s.RunTransaction(ctx, incrementCounter("c1")))

	got := fake.Item(counters, counterRef("c1").Key)
	n, _ := Int(got, "next_number")
	v, _ := Int(got, VersionAttr)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(2), v)
}

func TestRunTransaction_ReadOnlySkipsCommit(t *testing.T) {
	s, fake := newTestStore(t)
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		_, err := tx.Get(ctx, counterRef("c1"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, fake.Calls("TransactWriteItems"))
}

func TestRunTransaction_RetriesWhenSnapshotIsStale(t *testing.T) {
	var attempts []int
	s, fake := newTestStore(t, WithObserver(func(n int, err error) { attempts = append(attempts, n) }))
	ctx := context.Background()
	require.NoError(t, s.RunTransaction(ctx, incrementCounter("c1")))

	// A competing writer commits between our read and our commit.
	fake.Before("TransactWriteItems", func() {
		require.NoError(t, s.RunTransaction(ctx, incrementCounter("c1")))
	})
	require.NoError(t, s.RunTransaction(ctx, incrementCounter("c1")))

	n, _ := Int(fake.Item(counters, counterRef("c1").Key), "next_number")
	assert.Equal(t, int64(4), n)
	assert.Equal(t, []int{1, 1, 2}, attempts)
}

func TestRunTransaction_ExhaustedAttemptsAreUnavailable(t *testing.T) {
	s, fake := newTestStore(t, WithMaxAttempts(2))
	for i := 0; i < 2; i++ {
		fake.FailNext("TransactWriteItems", &types.TransactionCanceledException{
			Message:             ptr("cancelled"),
			CancellationReasons: []types.CancellationReason{{Code: ptr("TransactionConflict")}},
		})
	}
	err := s.RunTransaction(context.Background(), incrementCounter("c1"))
	require.Error(t, err)
	assert.True(t, apperr.Retryable(err))
	assert.Nil(t, fake.Item(counters, counterRef("c1").Key))
}

func TestRunTransaction_BusinessErrorAbortsWithoutRetry(t *testing.T) {
	s, fake := newTestStore(t)
	calls := 0
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		calls++
		if err := incrementCounter("c1")(ctx, tx); err != nil {
			return err
		}
		return &apperr.InsufficientStockError{ProductID: "p", Available: 1, Requested: 2}
	})
	var ise *apperr.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, fake.Calls("TransactWriteItems"))
}

func TestRunTransaction_ConcurrentIncrementsAreDense(t *testing.T) {
	const workers = 8
	s, fake := newTestStore(t, WithMaxAttempts(workers+1))

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error { return s.RunTransaction(context.Background(), incrementCounter("c1")) })
	}
	require.NoError(t, g.Wait())

	n, _ := Int(fake.Item(counters, counterRef("c1").Key), "next_number")
	assert.Equal(t, int64(workers+1), n)
}

func TestRunTransaction_ConditionOnWrite(t *testing.T) {
	s, fake := newTestStore(t)
	ref := Ref{Table: "docs", Key: Item{"id": S("p1")}}
	fake.Put("docs", Item{"id": S("p1"), "qty": N(3)})

	debit := func(q int64) TxFunc {
		return func(ctx context.Context, tx *Tx) error {
			if _, err := tx.Get(ctx, ref); err != nil {
				return err
			}
			return tx.Update(ref, Update{
				Increment: map[string]int64{"qty": -q},
				Set:       Item{"updated_at": S(tx.Now().Format(time.RFC3339))},
				Condition: GreaterOrEqual("qty", N(q)),
			})
		}
	}
	require.NoError(t, s.RunTransaction(context.Background(), debit(2)))
	got := fake.Item("docs", ref.Key)
	qty, _ := Int(got, "qty")
	v, _ := Int(got, VersionAttr)
	assert.Equal(t, int64(1), qty)
	assert.Equal(t, int64(1), v, "unversioned documents start at version 1")
	assert.Equal(t, "2026-10-18T12:00:00Z", Str(got, "updated_at"))
}

func TestUpdate_ConditionFailedCarriesCurrent(t *testing.T) {
	s, fake := newTestStore(t)
	ref := Ref{Table: "docs", Key: Item{"id": S("o1")}}
	fake.Put("docs", Item{"id": S("o1"), "state": S("DELIVERED")})

	_, err := s.Update(context.Background(), ref, Update{
		Set:       Item{"status": S("DELETED")},
		Condition: And(AttributeExists("id"), NotEqual("state", S("DELIVERED"))),
	})
	var cfe *ConditionFailedError
	require.ErrorAs(t, err, &cfe)
	assert.ErrorIs(t, err, ErrConditionFailed)
	assert.Equal(t, "DELIVERED", Str(cfe.Current, "state"))

	out, err := s.Update(context.Background(), ref, Update{
		Set:    Item{"status": S("ACTIVE")},
		Remove: []string{"state"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", Str(out, "status"))
	assert.NotContains(t, out, "state")
}

func TestUpdate_MissingDocumentCondition(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Update(context.Background(), Ref{Table: "docs", Key: Item{"id": S("nope")}}, Update{
		Set:       Item{"status": S("ACTIVE")},
		Condition: AttributeExists("id"),
	})
	var cfe *ConditionFailedError
	require.ErrorAs(t, err, &cfe)
	assert.Nil(t, cfe.Current)
}

func TestQueryAndCount(t *testing.T) {
	s, fake := newTestStore(t)
	fake.PageSize = 2
	for i, rank := range []string{"003", "001", "002", "004"} {
		state := "live"
		if i == 3 {
			state = "gone"
		}
		fake.Put("docs", Item{"id": S(fmt.Sprintf("d%d", i)), "owner": S("c1"), "rank": S(rank), "state": S(state)})
	}
	fake.Put("docs", Item{"id": S("other"), "owner": S("c2"), "rank": S("001")})

	q := Query{Name: "docs by owner", Table: "docs", Index: "by-owner", Partition: "owner", Value: S("c1")}
	items, err := s.Query(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, items, 4)
	var ranks []string
	for _, it := range items {
		ranks = append(ranks, Str(it, "rank"))
	}
	assert.Equal(t, []string{"001", "002", "003", "004"}, ranks)

	q.Filter = Equal("state", S("gone"))
	n, err := s.Count(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScan_FilterCombinesConditions(t *testing.T) {
	s, fake := newTestStore(t)
	fake.Put("docs", Item{"id": S("a"), "status": S("DELETED"), "deleted_at": S("2026-01-01T00:00:00Z")})
	fake.Put("docs", Item{"id": S("b"), "status": S("DELETED"), "deleted_at": S("2026-09-01T00:00:00Z")})
	fake.Put("docs", Item{"id": S("c"), "status": S("ACTIVE")})
	fake.Put("docs", Item{"id": S("d"), "status": S("ACTIVE"), "pinned": N(1)})

	got, err := s.Scan(context.Background(), "docs", Or(
		And(Equal("status", S("DELETED")), LessThan("deleted_at", S("2026-06-01T00:00:00Z"))),
		AttributeExists("pinned"),
	))
	require.NoError(t, err)
	ids := []string{}
	for _, it := range got {
		ids = append(ids, Str(it, "id"))
	}
	assert.ElementsMatch(t, []string{"a", "d"}, ids)

	all, err := s.Scan(context.Background(), "docs", And())
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestQuery_MissingIndex(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Query(context.Background(), Query{Name: "orders by company", Table: "docs", Index: "nope", Partition: "owner", Value: S("c1")})
	var ire *apperr.IndexRequiredError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, "orders by company", ire.Query)
	assert.Equal(t, apperr.KindIndexRequired, apperr.Kind(err))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{&smithy.GenericAPIError{Code: "AccessDeniedException"}, apperr.KindPermission},
		{&types.ProvisionedThroughputExceededException{Message: ptr("slow down")}, apperr.KindQuota},
		{&types.InternalServerError{Message: ptr("oops")}, apperr.KindUnavailable},
		{errors.New("dial tcp: connection refused"), apperr.KindUnavailable},
		{&smithy.GenericAPIError{Code: "ValidationException", Message: "bad"}, apperr.KindUnexpected},
	}
	for _, tc := range cases {
		err := classify("get item", tc.err)
		assert.Equal(t, tc.kind, apperr.Kind(err), "%v", tc.err)
		assert.ErrorIs(t, err, tc.err)
	}
	assert.ErrorIs(t, classify("get item", context.Canceled), context.Canceled)
}

func TestTx_RejectsDoubleWrite(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx *Tx) error {
		ref := counterRef("c1")
		if err := tx.Update(ref, Update{Set: Item{"a": S("1")}}); err != nil {
			return err
		}
		return tx.Update(ref, Update{Set: Item{"a": S("2")}})
	})
	require.Error(t, err)
}

func TestRunTransaction_CancelledContext(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := s.RunTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}
