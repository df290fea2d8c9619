package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/money"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/validation"
)

// Headers set by the upstream authorizer.
const (
	HeaderActorID      = "X-Actor-Id"
	HeaderActorName    = "X-Actor-Name"
	HeaderActorCompany = "X-Actor-Company"
	HeaderIdempotency  = "Idempotency-Key"
)

func actorFrom(c *gin.Context) audit.Actor {
	return audit.Actor{
		ID:        strings.TrimSpace(c.GetHeader(HeaderActorID)),
		Name:      strings.TrimSpace(c.GetHeader(HeaderActorName)),
		CompanyID: strings.TrimSpace(c.GetHeader(HeaderActorCompany)),
	}
}

// parseDate reads an optional calendar date; "" stays zero.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(validation.DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Invalid(field, "expected %s", validation.DateLayout)
	}
	return d, nil
}

func toItems(reqs []validation.ItemRequest, currency string) ([]orders.Item, error) {
	items := make([]orders.Item, 0, len(reqs))
	for i, r := range reqs {
		price, err := money.ParseDecimal(r.UnitPrice, currency)
		if err != nil {
			return nil, apperr.Invalid(fmt.Sprintf("items[%d].unit_price", i), "%v", err)
		}
		it, err := orders.NewItem(r.ProductID, r.Description, r.Quantity, price, r.UnitOfMeasure)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func toClient(r *validation.ClientRequest) (orders.ClientSnapshot, error) {
	if r == nil {
		return orders.ClientSnapshot{}, nil
	}
	c := orders.ClientSnapshot{Name: r.Name, Phone: r.Phone, CPF: r.CPF, Email: r.Email}
	if r.Birthday != "" {
		b, err := parseDate("client.birthday", r.Birthday)
		if err != nil {
			return c, err
		}
		c.Birthday = &b
	}
	if r.DeliveryAddress != nil {
		a := orders.Address(*r.DeliveryAddress)
		c.Address = &a
	}
	return c, nil
}

// applyRequest copies the caller-controlled fields of req onto o. Number,
// totals, stock reduction and audit are left to the engine.
func applyRequest(o *orders.Order, req validation.OrderRequest, defaultCurrency string) error {
	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	items, err := toItems(req.Items, currency)
	if err != nil {
		return err
	}
	client, err := toClient(req.Client)
	if err != nil {
		return err
	}
	date, err := parseDate("order_date", req.OrderDate)
	if err != nil {
		return err
	}
	if req.TotalAmount != "" {
		total, err := money.ParseDecimal(req.TotalAmount, currency)
		if err != nil {
			return apperr.Invalid("total_amount", "%v", err)
		}
		o.TotalAmount = total
	}

	o.PaymentMethodID = req.PaymentMethodID
	o.Items = items
	o.Client = client
	if !date.IsZero() {
		o.OrderDate = date
	}
	if req.DeliveryStatus != "" {
		o.DeliveryStatus = orders.DeliveryStatus(req.DeliveryStatus)
	}
	if req.Status != "" {
		o.Status = audit.Status(req.Status)
	}
	return nil
}
