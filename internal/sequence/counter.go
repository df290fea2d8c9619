// Package sequence hands out per-company, per-name monotonic numbers. A number
// is consumed only when the surrounding transaction commits, so the assigned
// numbers of a sequence are dense.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
)

// OrderNumbers is the sequence orders are numbered from.
const OrderNumbers = "pedido"

const nextAttr = "next_number"

// Counter reads and advances counters stored in one table keyed by
// (company_id, name).
type Counter struct {
	store *docstore.Store
	table string
}

// NewCounter returns a Counter over table.
func NewCounter(store *docstore.Store, table string) *Counter {
	return &Counter{store: store, table: table}
}

func (c *Counter) ref(companyID, name string) docstore.Ref {
	return docstore.Ref{
		Table: c.table,
		Key: docstore.Item{
			"company_id": docstore.S(companyID),
			"name":       docstore.S(name),
		},
	}
}

// Next returns the number to assign and buffers the advanced counter in tx.
// An absent counter starts at 1.
func (c *Counter) Next(ctx context.Context, tx *docstore.Tx, companyID, name string) (int64, error) {
	if companyID == "" || name == "" {
		return 0, apperr.Invalid("sequence", "company and name are required")
	}
	ref := c.ref(companyID, name)
	cur, err := tx.Get(ctx, ref)
	if err != nil {
		return 0, err
	}

	now := docstore.S(tx.Now().Format(time.RFC3339Nano))
	set := docstore.Item{"updated_at": now}
	n := int64(1)
	if cur == nil {
		set["created_at"] = now
	} else {
		var ok bool
		n, ok = docstore.Int(cur, nextAttr)
		if !ok || n < 1 {
			return 0, &apperr.UnexpectedError{Details: fmt.Sprintf("sequence %s/%s has no valid %s", companyID, name, nextAttr)}
		}
	}
	set[nextAttr] = docstore.N(n + 1)

	if err := tx.Update(ref, docstore.Update{Set: set}); err != nil {
		return 0, err
	}
	return n, nil
}

// Peek returns the number the next call to Next would assign, outside any transaction.
func (c *Counter) Peek(ctx context.Context, companyID, name string) (int64, error) {
	cur, err := c.store.Get(ctx, c.ref(companyID, name))
	if err != nil {
		return 0, err
	}
	if cur == nil {
		return 1, nil
	}
	n, ok := docstore.Int(cur, nextAttr)
	if !ok {
		return 0, &apperr.UnexpectedError{Details: fmt.Sprintf("sequence %s/%s has no valid %s", companyID, name, nextAttr)}
	}
	return n, nil
}
