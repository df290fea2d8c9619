package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/dynamotest"
)

func newReader(t *testing.T) (*Reader, *docstore.Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("products", "company_id", "product_id")
	fake.Put("products", Seed{CompanyID: "C1", ProductID: "prod_A", Description: "Água 500ml", OnHand: 10, UnitOfMeasure: "UN"}.Item())
	store := docstore.New(fake, docstore.WithBackoff(0))
	return NewReader(store, "products"), store, fake
}

func onHand(t *testing.T, fake *dynamotest.Fake, id string) int64 {
	t.Helper()
	n, ok := docstore.Int(fake.Item("products", docstore.Item{"company_id": docstore.S("C1"), "product_id": docstore.S(id)}), "quantity_on_hand")
	require.True(t, ok)
	return n
}

func TestGet(t *testing.T) {
	r, _, _ := newReader(t)
	p, err := r.Get(context.Background(), "C1", "prod_A")
	require.NoError(t, err)
	assert.Equal(t, "Água 500ml", p.Description)
	assert.Equal(t, int64(10), p.OnHand)
	assert.Equal(t, "UN", p.UnitOfMeasure)

	_, err = r.Get(context.Background(), "C1", "prod_Z")
	var pme *apperr.ProductMissingError
	require.ErrorAs(t, err, &pme)
	assert.Equal(t, "prod_Z", pme.ProductID)

	_, err = r.Get(context.Background(), "C2", "prod_A")
	assert.ErrorAs(t, err, &pme)
}

func TestDebit(t *testing.T) {
	r, store, fake := newReader(t)
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx *docstore.Tx) error {
		p, err := r.GetTx(ctx, tx, "C1", "prod_A")
		if err != nil {
			return err
		}
		return r.Debit(tx, p, 4)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), onHand(t, fake, "prod_A"))
}

func TestDebit_Insufficient(t *testing.T) {
	r, store, fake := newReader(t)
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx *docstore.Tx) error {
		p, err := r.GetTx(ctx, tx, "C1", "prod_A")
		if err != nil {
			return err
		}
		return r.Debit(tx, p, 11)
	})
	var ise *apperr.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(10), ise.Available)
	assert.Equal(t, int64(11), ise.Requested)
	assert.Equal(t, int64(10), onHand(t, fake, "prod_A"))
}

func TestDebit_RacingDebitIsRetriedAgainstFreshStock(t *testing.T) {
	r, store, fake := newReader(t)
	ctx := context.Background()
	debit := func(q int64) docstore.TxFunc {
		return func(ctx context.Context, tx *docstore.Tx) error {
			p, err := r.GetTx(ctx, tx, "C1", "prod_A")
			if err != nil {
				return err
			}
			return r.Debit(tx, p, q)
		}
	}

	fake.Before("TransactWriteItems", func() {
		require.NoError(t, store.RunTransaction(ctx, debit(7)))
	})
	err := store.RunTransaction(ctx, debit(5))

	var ise *apperr.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(3), ise.Available)
	assert.Equal(t, int64(3), onHand(t, fake, "prod_A"))
}
