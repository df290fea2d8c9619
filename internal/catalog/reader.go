// Package catalog is the order engine's view of the product catalog: product
// existence, description and on-hand quantity, plus transactional debits.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
)

const quantityAttr = "quantity_on_hand"

// ProductRef is the projection of a product the engine reads.
type ProductRef struct {
	ID            string
	CompanyID     string
	Description   string
	OnHand        int64
	UnitOfMeasure string
}

// record is the stored product document, restricted to the attributes the
// engine touches. The product subsystem owns everything else on it.
type record struct {
	CompanyID      string `dynamodbav:"company_id"`
	ProductID      string `dynamodbav:"product_id"`
	Description    string `dynamodbav:"description"`
	QuantityOnHand int64  `dynamodbav:"quantity_on_hand"`
	UnitOfMeasure  string `dynamodbav:"unit_of_measure"`
}

// Reader reads products from the products table keyed by (company_id, product_id).
type Reader struct {
	store *docstore.Store
	table string
}

// NewReader returns a Reader over table.
func NewReader(store *docstore.Store, table string) *Reader {
	return &Reader{store: store, table: table}
}

func (r *Reader) ref(companyID, productID string) docstore.Ref {
	return docstore.Ref{
		Table: r.table,
		Key: docstore.Item{
			"company_id": docstore.S(companyID),
			"product_id": docstore.S(productID),
		},
	}
}

// Get returns the product, or *apperr.ProductMissingError if it does not exist.
func (r *Reader) Get(ctx context.Context, companyID, productID string) (*ProductRef, error) {
	item, err := r.store.Get(ctx, r.ref(companyID, productID))
	if err != nil {
		return nil, err
	}
	return decode(item, productID)
}

// GetTx reads the product as part of tx.
func (r *Reader) GetTx(ctx context.Context, tx *docstore.Tx, companyID, productID string) (*ProductRef, error) {
	item, err := tx.Get(ctx, r.ref(companyID, productID))
	if err != nil {
		return nil, err
	}
	return decode(item, productID)
}

// Debit buffers the subtraction of quantity from the product's on-hand stock
// in tx. p must have been read with GetTx in the same transaction; the write
// is also conditioned on the stock still covering quantity.
func (r *Reader) Debit(tx *docstore.Tx, p *ProductRef, quantity int64) error {
	if quantity <= 0 {
		return apperr.Invalid("quantity", "debit of %d for product %s", quantity, p.ID)
	}
	if p.OnHand < quantity {
		return &apperr.InsufficientStockError{ProductID: p.ID, Available: p.OnHand, Requested: quantity}
	}
	return tx.Update(r.ref(p.CompanyID, p.ID), docstore.Update{
		Set:       docstore.Item{"updated_at": docstore.S(tx.Now().Format(time.RFC3339Nano))},
		Increment: map[string]int64{quantityAttr: -quantity},
		Condition: docstore.GreaterOrEqual(quantityAttr, docstore.N(quantity)),
	})
}

func decode(item docstore.Item, productID string) (*ProductRef, error) {
	if item == nil {
		return nil, &apperr.ProductMissingError{ProductID: productID}
	}
	var rec record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, &apperr.UnexpectedError{Details: fmt.Sprintf("decode product %s", productID), Err: err}
	}
	if rec.QuantityOnHand < 0 {
		return nil, &apperr.UnexpectedError{Details: fmt.Sprintf("product %s has negative stock %d", productID, rec.QuantityOnHand)}
	}
	return &ProductRef{
		ID:            rec.ProductID,
		CompanyID:     rec.CompanyID,
		Description:   rec.Description,
		OnHand:        rec.QuantityOnHand,
		UnitOfMeasure: rec.UnitOfMeasure,
	}, nil
}
