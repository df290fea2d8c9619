package handlers

import (
	"time"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/validation"
)

// ItemResponse is one order line as returned by the API.
type ItemResponse struct {
	ProductID     string `json:"product_id"`
	Description   string `json:"description"`
	Quantity      int64  `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	Total         string `json:"total"`
	UnitOfMeasure string `json:"unit_of_measure,omitempty"`
}

// StampResponse is one audit event.
type StampResponse struct {
	At     *time.Time `json:"at,omitempty"`
	ByID   string     `json:"by_id,omitempty"`
	ByName string     `json:"by_name,omitempty"`
}

// OrderResponse is the JSON rendering of an order.
type OrderResponse struct {
	ID                  string                    `json:"id"`
	CompanyID           string                    `json:"company_id"`
	PaymentMethodID     string                    `json:"payment_method_id"`
	OrderNumber         string                    `json:"order_number"`
	OrderDate           string                    `json:"order_date"`
	TotalAmount         string                    `json:"total_amount"`
	Currency            string                    `json:"currency"`
	TotalItems          int                       `json:"total_items"`
	TotalProducts       int64                     `json:"total_products"`
	StockReduction      bool                      `json:"stock_reduction"`
	Items               []ItemResponse            `json:"items"`
	Client              *validation.ClientRequest `json:"client,omitempty"`
	Status              string                    `json:"status"`
	StatusLabel         string                    `json:"status_label"`
	DeliveryStatus      string                    `json:"delivery_status"`
	DeliveryStatusLabel string                    `json:"delivery_status_label"`
	Audit               map[string]StampResponse  `json:"audit"`
}

// ListResponse is the body of a company listing.
type ListResponse struct {
	Orders       []OrderResponse `json:"orders"`
	DeletedCount int             `json:"deleted_count"`
}

func stampResponse(s audit.Stamp) (StampResponse, bool) {
	if !s.IsSet() {
		return StampResponse{}, false
	}
	out := StampResponse{ByID: s.ByID, ByName: s.ByName}
	if at, ok := s.At.Time(); ok {
		out.At = &at
	}
	return out, true
}

func toResponse(o *orders.Order) OrderResponse {
	resp := OrderResponse{
		ID:                  o.ID,
		CompanyID:           o.CompanyID,
		PaymentMethodID:     o.PaymentMethodID,
		OrderNumber:         o.OrderNumber,
		OrderDate:           o.OrderDate.Format(validation.DateLayout),
		TotalAmount:         o.TotalAmount.DecimalString(),
		Currency:            o.TotalAmount.Currency(),
		TotalItems:          o.TotalItems,
		TotalProducts:       o.TotalProducts,
		StockReduction:      o.StockReduction,
		Items:               make([]ItemResponse, 0, len(o.Items)),
		Status:              string(o.Status),
		StatusLabel:         o.Status.Label(audit.LabelListing),
		DeliveryStatus:      string(o.DeliveryStatus),
		DeliveryStatusLabel: o.DeliveryStatus.Label(),
		Audit:               map[string]StampResponse{},
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, ItemResponse{
			ProductID:     it.ProductID,
			Description:   it.Description,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice.DecimalString(),
			Total:         it.Total.DecimalString(),
			UnitOfMeasure: it.UnitOfMeasure,
		})
	}

	if !o.Client.IsEmpty() {
		c := o.Client
		cr := &validation.ClientRequest{Name: c.Name, Phone: c.Phone, CPF: c.CPF, Email: c.Email}
		if c.Birthday != nil {
			cr.Birthday = c.Birthday.Format(validation.DateLayout)
		}
		if c.Address != nil {
			a := validation.AddressRequest(*c.Address)
			cr.DeliveryAddress = &a
		}
		resp.Client = cr
	}

	stamps := map[string]audit.Stamp{
		"created":     o.Audit.Created,
		"updated":     o.Audit.Updated,
		"activated":   o.Audit.Activated,
		"inactivated": o.Audit.Inactivated,
		"deleted":     o.Audit.Deleted,
	}
	for name, s := range stamps {
		if r, ok := stampResponse(s); ok {
			resp.Audit[name] = r
		}
	}
	return resp
}
