// Package orders is the order engine: the order aggregate and its validation,
// the persistence codec, the transactional repository that numbers orders and
// reserves stock, the service that enforces actor rules, and company listings.
package orders

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/money"
)

const (
	// IDPrefix starts every order id.
	IDPrefix = "ord_"
	// NumberWidth is the zero-padded width of order numbers.
	NumberWidth = 6
	// MaxNumber is the last order number that fits NumberWidth. Wider numbers
	// would sort before narrower ones in the company index.
	MaxNumber = 999999
	// MaxDistinctProducts leaves room in one transaction for the order and
	// its sequence counter next to the product debits.
	MaxDistinctProducts = docstore.MaxTransactionActions - 2
	// DefaultMaxDaysAhead bounds how far in the future an order may be dated.
	DefaultMaxDaysAhead = 30
)

// Item is one order line. Description and unit of measure are copied from
// the catalog so the order stays readable after the product changes.
type Item struct {
	ProductID     string
	Description   string
	Quantity      int64
	UnitPrice     money.Money
	Total         money.Money
	UnitOfMeasure string
}

// NewItem builds a line with its total computed from price and quantity.
func NewItem(productID, description string, quantity int64, unitPrice money.Money, unitOfMeasure string) (Item, error) {
	if quantity <= 0 {
		return Item{}, apperr.Invalid("items.quantity", "must be positive, got %d", quantity)
	}
	total, err := unitPrice.Mul(quantity)
	if err != nil {
		return Item{}, apperr.Invalid("items.total", "%v", err)
	}
	return Item{
		ProductID:     productID,
		Description:   description,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		Total:         total,
		UnitOfMeasure: unitOfMeasure,
	}, nil
}

// Order is the aggregate root of a sale.
type Order struct {
	ID              string
	CompanyID       string
	PaymentMethodID string
	// OrderNumber is assigned by the engine on the first save and never changes.
	OrderNumber string
	// OrderDate is a calendar date, held as midnight UTC.
	OrderDate      time.Time
	TotalAmount    money.Money
	TotalItems     int
	TotalProducts  int64
	StockReduction bool
	Items          []Item
	Client         ClientSnapshot
	Status         audit.Status
	DeliveryStatus DeliveryStatus
	Audit          audit.Envelope
}

// NewID returns a fresh order id.
func NewID() string {
	u := uuid.New()
	return IDPrefix + hex.EncodeToString(u[:])
}

// New builds an order ready for its first save. Number, audit stamps and
// stock reduction are left for the engine.
func New(companyID, paymentMethodID string, items []Item, client ClientSnapshot, delivery DeliveryStatus) *Order {
	return &Order{
		ID:              NewID(),
		CompanyID:       companyID,
		PaymentMethodID: paymentMethodID,
		Items:           append([]Item(nil), items...),
		Client:          client.clone(),
		Status:          audit.StatusActive,
		DeliveryStatus:  delivery,
	}
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.Client = o.Client.clone()
	return &c
}

// Policy carries the environment-dependent rules of Validate.
type Policy struct {
	// Today is the current calendar date in the business time zone.
	Today time.Time
	// MaxDaysAhead bounds OrderDate; zero means DefaultMaxDaysAhead.
	MaxDaysAhead int
	// Currency is used for the total of an order without items.
	Currency string
}

// Validate checks the order and recomputes its totals from the items. It is
// pure apart from filling defaults (order date, statuses, item totals) and
// normalizing the client snapshot, and may be called any number of times.
func (o *Order) Validate(p Policy) error {
	if o.ID == "" || !strings.HasPrefix(o.ID, IDPrefix) {
		return apperr.Invalid("id", "must start with %q", IDPrefix)
	}
	if strings.TrimSpace(o.CompanyID) == "" {
		return apperr.Invalid("company_id", "required")
	}
	if strings.TrimSpace(o.PaymentMethodID) == "" {
		return apperr.Invalid("payment_method_id", "required")
	}
	if o.Status == "" {
		o.Status = audit.StatusActive
	}
	if !o.Status.Valid() {
		return apperr.Invalid("status", "unknown status %q", o.Status)
	}
	if o.DeliveryStatus == "" {
		o.DeliveryStatus = DeliveryPending
	}
	if !o.DeliveryStatus.Valid() {
		return apperr.Invalid("delivery_status", "unknown delivery status %q", o.DeliveryStatus)
	}
	if o.OrderNumber != "" {
		if _, err := ParseNumber(o.OrderNumber); err != nil {
			return apperr.Invalid("order_number", "%v", err)
		}
	}

	if err := o.validateItems(); err != nil {
		return err
	}
	if o.DeliveryStatus.ShippingCommitted() && len(o.Items) == 0 {
		return apperr.Invalid("items", "an order %s must have items", o.DeliveryStatus)
	}
	if err := o.validateDate(p); err != nil {
		return err
	}
	if err := o.Client.Normalize(); err != nil {
		return err
	}
	return o.recomputeTotals(p.Currency)
}

func (o *Order) validateItems() error {
	distinct := map[string]struct{}{}
	currency := ""
	for i := range o.Items {
		it := &o.Items[i]
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(it.ProductID) == "" {
			return apperr.Invalid(field+".product_id", "required")
		}
		if it.Quantity <= 0 {
			return apperr.Invalid(field+".quantity", "must be positive, got %d", it.Quantity)
		}
		if !it.UnitPrice.IsSet() {
			return apperr.Invalid(field+".unit_price", "required")
		}
		if currency == "" {
			currency = it.UnitPrice.Currency()
		}
		if it.UnitPrice.Currency() != currency {
			return apperr.Invalid(field+".unit_price", "currency %s differs from %s", it.UnitPrice.Currency(), currency)
		}
		want, err := it.UnitPrice.Mul(it.Quantity)
		if err != nil {
			return apperr.Invalid(field+".total", "%v", err)
		}
		if !it.Total.IsSet() {
			it.Total = want
		}
		if !it.Total.Equal(want) {
			return apperr.Invalid(field+".total", "%s is not %d x %s", it.Total, it.Quantity, it.UnitPrice)
		}
		distinct[it.ProductID] = struct{}{}
	}
	if len(distinct) > MaxDistinctProducts {
		return apperr.Invalid("items", "at most %d distinct products per order, got %d", MaxDistinctProducts, len(distinct))
	}
	if currency != "" && o.TotalAmount.IsSet() && o.TotalAmount.Currency() != currency {
		return apperr.Invalid("total_amount", "currency %s differs from items in %s", o.TotalAmount.Currency(), currency)
	}
	return nil
}

func (o *Order) validateDate(p Policy) error {
	today := dateOf(p.Today)
	if o.OrderDate.IsZero() {
		o.OrderDate = today
		return nil
	}
	o.OrderDate = dateOf(o.OrderDate)
	ahead := p.MaxDaysAhead
	if ahead <= 0 {
		ahead = DefaultMaxDaysAhead
	}
	if limit := today.AddDate(0, 0, ahead); o.OrderDate.After(limit) {
		return apperr.Invalid("order_date", "%s is after %s", o.OrderDate.Format(dateLayout), limit.Format(dateLayout))
	}
	return nil
}

// recomputeTotals overwrites the derived totals from the items.
func (o *Order) recomputeTotals(defaultCurrency string) error {
	code := defaultCurrency
	if o.TotalAmount.IsSet() {
		code = o.TotalAmount.Currency()
	}
	if len(o.Items) > 0 {
		code = o.Items[0].UnitPrice.Currency()
	}
	total, err := money.Zero(code)
	if err != nil {
		return apperr.Invalid("total_amount", "%v", err)
	}
	var products int64
	for _, it := range o.Items {
		if total, err = total.Add(it.Total); err != nil {
			return apperr.Invalid("total_amount", "%v", err)
		}
		products += it.Quantity
	}
	o.TotalAmount = total
	o.TotalItems = len(o.Items)
	o.TotalProducts = products
	return nil
}

// quantities sums the requested quantity per product.
func (o *Order) quantities() map[string]int64 {
	q := make(map[string]int64, len(o.Items))
	for _, it := range o.Items {
		q[it.ProductID] += it.Quantity
	}
	return q
}

// createdBy reports whether o is still exactly what a create by actor wrote.
func (o *Order) createdBy(actor audit.Actor) bool {
	created, ok := o.Audit.Created.At.Time()
	updated, uok := o.Audit.Updated.At.Time()
	return ok && uok && o.Audit.Created.ByID == actor.ID && created.Equal(updated)
}

// FormatNumber renders a sequence value as an order number.
func FormatNumber(n int64) string {
	return fmt.Sprintf("%0*d", NumberWidth, n)
}

// ParseNumber reads an order number back.
func ParseNumber(s string) (int64, error) {
	if len(s) != NumberWidth {
		return 0, fmt.Errorf("order number %q must have %d digits", s, NumberWidth)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 1 || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("order number %q is not a positive integer", s)
	}
	return n, nil
}

const dateLayout = "2006-01-02"

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
