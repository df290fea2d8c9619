package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/catalog"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/sequence"
)

// DefaultCompanyIndex is the index listing a company's orders by number.
const DefaultCompanyIndex = "company_id-order_number-index"

// Repository persists orders. Saves run as optimistic transactions that also
// advance the order sequence and debit stock, so either all of it commits or
// none of it does.
type Repository struct {
	store        *docstore.Store
	sequences    *sequence.Counter
	catalog      *catalog.Reader
	table        string
	companyIndex string
	logger       *slog.Logger
}

// RepositoryConfig names the tables behind a Repository.
type RepositoryConfig struct {
	OrdersTable  string
	CompanyIndex string
}

// NewRepository wires a Repository. A nil logger discards output.
func NewRepository(store *docstore.Store, sequences *sequence.Counter, products *catalog.Reader, cfg RepositoryConfig, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.CompanyIndex == "" {
		cfg.CompanyIndex = DefaultCompanyIndex
	}
	return &Repository{
		store:        store,
		sequences:    sequences,
		catalog:      products,
		table:        cfg.OrdersTable,
		companyIndex: cfg.CompanyIndex,
		logger:       logger,
	}
}

func (r *Repository) ref(orderID string) docstore.Ref {
	return docstore.Ref{Table: r.table, Key: docstore.Item{attrOrderID: docstore.S(orderID)}}
}

// SaveOutcome tells what a save did besides writing the order.
type SaveOutcome struct {
	// Created is true when no document existed for the order before.
	Created bool
	// StockReduced is true when this save debited the catalog.
	StockReduced bool
}

// Save writes o in one transaction: it assigns the next order number when o
// has none, debits stock the first time o enters a shipping-committed state,
// stamps the audit envelope for actor and merges the document. On success o
// reflects what was committed, with server timestamps resolved by a re-read.
//
// o must have passed Validate. An order that already carries a number must
// exist, otherwise the result is not_found.
func (r *Repository) Save(ctx context.Context, o *Order, actor audit.Actor) (SaveOutcome, error) {
	return r.save(ctx, o, actor, false)
}

// Insert saves a new order. A document already stored under o.ID is only
// accepted when it is the untouched result of an earlier attempt by the same
// actor, so a create retried after an ambiguous commit keeps its number.
func (r *Repository) Insert(ctx context.Context, o *Order, actor audit.Actor) (SaveOutcome, error) {
	return r.save(ctx, o, actor, true)
}

func (r *Repository) save(ctx context.Context, o *Order, actor audit.Actor, insert bool) (SaveOutcome, error) {
	if o.ID == "" {
		return SaveOutcome{}, apperr.Invalid("id", "required")
	}

	var (
		committed *Order
		outcome   SaveOutcome
	)
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		work := o.Clone()
		outcome = SaveOutcome{}

		prev, err := r.readTx(ctx, tx, work.ID)
		if err != nil {
			return err
		}
		if insert && prev != nil && !prev.createdBy(actor) {
			return apperr.Invalid("id", "order %s already exists", work.ID)
		}
		if err := r.reconcile(work, prev); err != nil {
			return err
		}
		outcome.Created = prev == nil

		if work.OrderNumber == "" {
			n, err := r.sequences.Next(ctx, tx, work.CompanyID, sequence.OrderNumbers)
			if err != nil {
				return err
			}
			if n > MaxNumber {
				return apperr.Invalid("order_number", "company %s has used every %d-digit order number", work.CompanyID, NumberWidth)
			}
			work.OrderNumber = FormatNumber(n)
		}

		if !work.StockReduction && work.DeliveryStatus.ShippingCommitted() {
			if err := r.reserveStock(ctx, tx, work); err != nil {
				return err
			}
			work.StockReduction = true
			outcome.StockReduced = true
		}

		work.Audit.ApplyWrite(actor, work.Status)
		set, remove, err := encode(work, tx.Now())
		if err != nil {
			return err
		}
		if err := tx.Update(r.ref(work.ID), docstore.Update{Set: set, Remove: remove}); err != nil {
			return err
		}
		committed = work
		return nil
	})
	if err != nil {
		return SaveOutcome{}, err
	}

	*o = *committed
	r.resolve(ctx, o)
	return outcome, nil
}

func (r *Repository) readTx(ctx context.Context, tx *docstore.Tx, orderID string) (*Order, error) {
	item, err := tx.Get(ctx, r.ref(orderID))
	if err != nil || item == nil {
		return nil, err
	}
	return decode(item)
}

// reconcile lines the working copy up with the stored document. The stored
// number, stock reduction and audit history win over a stale aggregate.
func (r *Repository) reconcile(work, prev *Order) error {
	if prev == nil {
		if work.OrderNumber != "" {
			return &apperr.NotFoundError{OrderID: work.ID}
		}
		work.StockReduction = false
		return nil
	}
	if prev.CompanyID != work.CompanyID {
		return apperr.Invalid("company_id", "an order cannot move to another company")
	}
	switch {
	case work.OrderNumber == "":
		work.OrderNumber = prev.OrderNumber
	case prev.OrderNumber != "" && work.OrderNumber != prev.OrderNumber:
		return apperr.Invalid("order_number", "cannot change from %s to %s", prev.OrderNumber, work.OrderNumber)
	}
	if !prev.DeliveryStatus.CanTransitionTo(work.DeliveryStatus) {
		return apperr.Invalid("delivery_status", "cannot go from %s to %s", prev.DeliveryStatus, work.DeliveryStatus)
	}
	if prev.StockReduction && !maps.Equal(prev.quantities(), work.quantities()) {
		return apperr.Invalid("items", "cannot change the items of an order whose stock was already reduced")
	}
	work.StockReduction = prev.StockReduction
	work.Audit = work.Audit.Inherit(prev.Audit)
	return nil
}

// reserveStock checks every product of the order and only then debits them,
// in product id order. Quantities of repeated products are summed.
func (r *Repository) reserveStock(ctx context.Context, tx *docstore.Tx, o *Order) error {
	wanted := o.quantities()
	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	products := make([]*catalog.ProductRef, 0, len(ids))
	for _, id := range ids {
		p, err := r.catalog.GetTx(ctx, tx, o.CompanyID, id)
		if err != nil {
			var missing *apperr.ProductMissingError
			if errors.As(err, &missing) {
				r.logger.Warn("stock reservation rejected: product missing",
					slog.String("order_id", o.ID),
					slog.String("order_number", o.OrderNumber),
					slog.String("product_id", id))
			}
			return err
		}
		if p.OnHand < wanted[id] {
			r.logger.Warn("stock reservation rejected: insufficient stock",
				slog.String("order_id", o.ID),
				slog.String("order_number", o.OrderNumber),
				slog.String("product_id", id),
				slog.Int64("available", p.OnHand),
				slog.Int64("requested", wanted[id]))
			return &apperr.InsufficientStockError{ProductID: id, Available: p.OnHand, Requested: wanted[id]}
		}
		products = append(products, p)
	}
	for _, p := range products {
		if err := r.catalog.Debit(tx, p, wanted[p.ID]); err != nil {
			return err
		}
	}
	return nil
}

// resolve re-reads a committed order to replace server-assigned timestamps.
// Failures are logged; the committed state stays authoritative.
func (r *Repository) resolve(ctx context.Context, o *Order) {
	item, err := r.store.Get(ctx, r.ref(o.ID))
	if err == nil && item == nil {
		err = errors.New("document absent after commit")
	}
	var fresh *Order
	if err == nil {
		fresh, err = decode(item)
	}
	if err != nil {
		r.logger.Error("re-read after commit failed",
			slog.String("order_id", o.ID),
			slog.String("order_number", o.OrderNumber),
			slog.Any("error", err))
		return
	}
	o.Audit = fresh.Audit
}

// Get returns the stored order or *apperr.NotFoundError.
func (r *Repository) Get(ctx context.Context, orderID string) (*Order, error) {
	item, err := r.store.Get(ctx, r.ref(orderID))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &apperr.NotFoundError{OrderID: orderID}
	}
	return decode(item)
}

// SoftDelete moves o to DELETED with a single conditional update. Delivered
// orders are refused. Stock already debited stays debited.
func (r *Repository) SoftDelete(ctx context.Context, o *Order, actor audit.Actor) error {
	if o.ID == "" {
		return apperr.Invalid("id", "required")
	}
	if o.DeliveryStatus == DeliveryDelivered {
		return apperr.ErrDeliveredOrderDelete
	}
	cond := docstore.And(
		docstore.AttributeExists(attrOrderID),
		docstore.NotEqual(attrDeliveryStatus, docstore.S(string(DeliveryDelivered))),
	)
	return r.transition(ctx, o, actor, audit.StatusDeleted, cond)
}

// Restore moves o back to ACTIVE. Stock is neither debited nor credited.
func (r *Repository) Restore(ctx context.Context, o *Order, actor audit.Actor) error {
	if o.ID == "" {
		return apperr.Invalid("id", "required")
	}
	return r.transition(ctx, o, actor, audit.StatusActive, docstore.AttributeExists(attrOrderID))
}

// transition writes a registration status change and its audit stamps. The
// stamps of the other statuses are removed from the document.
func (r *Repository) transition(ctx context.Context, o *Order, actor audit.Actor, status audit.Status, cond docstore.Condition) error {
	env := o.Audit
	env.ApplyWrite(actor, status)
	changed := audit.Envelope{Updated: env.Updated}
	switch status {
	case audit.StatusActive:
		changed.Activated = env.Activated
	case audit.StatusInactive:
		changed.Inactivated = env.Inactivated
	case audit.StatusDeleted:
		changed.Deleted = env.Deleted
	}

	set, err := attributevalue.MarshalMap(changed.Record(r.store.Now()))
	if err != nil {
		return &apperr.UnexpectedError{Details: "encode audit for " + o.ID, Err: err}
	}
	set[attrStatus] = docstore.S(string(status))
	var remove []string
	for _, attr := range audit.Attributes {
		if _, ok := set[attr]; !ok && !isCreatedAttr(attr) {
			remove = append(remove, attr)
		}
	}

	item, err := r.store.Update(ctx, r.ref(o.ID), docstore.Update{Set: set, Remove: remove, Condition: cond})
	if err != nil {
		var cfe *docstore.ConditionFailedError
		if !errors.As(err, &cfe) {
			return err
		}
		if cfe.Current == nil {
			return &apperr.NotFoundError{OrderID: o.ID}
		}
		if docstore.Str(cfe.Current, attrDeliveryStatus) == string(DeliveryDelivered) {
			return apperr.ErrDeliveredOrderDelete
		}
		return &apperr.UnexpectedError{Details: "status update of " + o.ID + " rejected"}
	}
	fresh, err := decode(item)
	if err != nil {
		return err
	}
	*o = *fresh
	return nil
}

func isCreatedAttr(attr string) bool {
	return attr == "created_at" || attr == "created_by_id" || attr == "created_by_name"
}

// HardDelete permanently removes an order that is in the trash and whose
// deletion is older than cutoff. It is meant for the retention collector,
// never for the online path.
func (r *Repository) HardDelete(ctx context.Context, orderID string, cutoff time.Time) error {
	before, err := attributevalue.Marshal(cutoff.UTC())
	if err != nil {
		return &apperr.UnexpectedError{Details: "encode purge cutoff", Err: err}
	}
	cond := docstore.And(
		docstore.Equal(attrStatus, docstore.S(string(audit.StatusDeleted))),
		docstore.LessThan(attrDeletedAt, before),
	)
	err = r.store.Delete(ctx, r.ref(orderID), cond)
	var cfe *docstore.ConditionFailedError
	if errors.As(err, &cfe) {
		if cfe.Current == nil {
			return &apperr.NotFoundError{OrderID: orderID}
		}
		if status := docstore.Str(cfe.Current, attrStatus); status != string(audit.StatusDeleted) {
			return apperr.Invalid("status", "only deleted orders can be purged, %s is %s", orderID, status)
		}
		return apperr.Invalid("deleted_at", "order %s was deleted after %s", orderID, cutoff.UTC().Format(time.RFC3339))
	}
	return err
}

// ListDeletedBefore returns trashed orders whose deletion is older than cutoff.
func (r *Repository) ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]*Order, error) {
	items, err := r.store.Scan(ctx, r.table, docstore.Equal(attrStatus, docstore.S(string(audit.StatusDeleted))))
	if err != nil {
		return nil, err
	}
	var out []*Order
	for _, item := range items {
		o, err := decode(item)
		if err != nil {
			r.logger.Error("skipping undecodable order", slog.String("order_id", docstore.Str(item, attrOrderID)), slog.Any("error", err))
			continue
		}
		if at, ok := o.Audit.Deleted.At.Time(); ok && at.Before(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}
