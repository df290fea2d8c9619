package orders

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/money"
)

// Attribute names referenced outside the record types.
const (
	attrOrderID        = "order_id"
	attrCompanyID      = "company_id"
	attrOrderNumber    = "order_number"
	attrStatus         = "status"
	attrDeliveryStatus = "delivery_status"
	attrDeletedAt      = "deleted_at"
)

type moneyRecord struct {
	MinorUnits uint64 `dynamodbav:"minor_units"`
	Currency   string `dynamodbav:"currency"`
}

type itemRecord struct {
	ProductID     string      `dynamodbav:"product_id"`
	Description   string      `dynamodbav:"description"`
	Quantity      int64       `dynamodbav:"quantity"`
	UnitPrice     moneyRecord `dynamodbav:"unit_price"`
	Total         moneyRecord `dynamodbav:"total"`
	UnitOfMeasure string      `dynamodbav:"unit_of_measure,omitempty"`
}

type addressRecord struct {
	Street       string `dynamodbav:"street,omitempty"`
	Number       string `dynamodbav:"number,omitempty"`
	Complement   string `dynamodbav:"complement,omitempty"`
	Neighborhood string `dynamodbav:"neighborhood,omitempty"`
	City         string `dynamodbav:"city,omitempty"`
	State        string `dynamodbav:"state,omitempty"`
	PostalCode   string `dynamodbav:"postal_code,omitempty"`
	Reference    string `dynamodbav:"reference,omitempty"`
}

type clientRecord struct {
	Name            string         `dynamodbav:"name,omitempty"`
	Phone           string         `dynamodbav:"phone,omitempty"`
	CPF             string         `dynamodbav:"cpf,omitempty"`
	Email           string         `dynamodbav:"email,omitempty"`
	Birthday        string         `dynamodbav:"birthday,omitempty"`
	DeliveryAddress *addressRecord `dynamodbav:"delivery_address,omitempty"`
}

// orderRecord is the stored shape of an order. The audit attributes sit flat
// beside the order's own.
type orderRecord struct {
	OrderID         string       `dynamodbav:"order_id"`
	CompanyID       string       `dynamodbav:"company_id"`
	PaymentMethodID string       `dynamodbav:"payment_method_id"`
	OrderNumber     string       `dynamodbav:"order_number,omitempty"`
	OrderDate       string       `dynamodbav:"order_date"`
	TotalAmount     moneyRecord  `dynamodbav:"total_amount"`
	TotalItems      int          `dynamodbav:"total_items"`
	TotalProducts   int64        `dynamodbav:"total_products"`
	StockReduction  bool         `dynamodbav:"stock_reduction"`
	Items           []itemRecord `dynamodbav:"items"`
	Client          clientRecord `dynamodbav:"client"`
	Status          string       `dynamodbav:"status"`
	DeliveryStatus  string       `dynamodbav:"delivery_status"`
	audit.Record
}

func encodeMoney(m money.Money) moneyRecord {
	return moneyRecord{MinorUnits: m.MinorUnits(), Currency: m.Currency()}
}

func decodeMoney(r moneyRecord, field string) (money.Money, error) {
	m, err := money.Of(r.MinorUnits, r.Currency)
	if err != nil {
		return money.Money{}, fmt.Errorf("%s: %w", field, err)
	}
	return m, nil
}

func toRecord(o *Order, commit time.Time) orderRecord {
	rec := orderRecord{
		OrderID:         o.ID,
		CompanyID:       o.CompanyID,
		PaymentMethodID: o.PaymentMethodID,
		OrderNumber:     o.OrderNumber,
		OrderDate:       o.OrderDate.Format(dateLayout),
		TotalAmount:     encodeMoney(o.TotalAmount),
		TotalItems:      o.TotalItems,
		TotalProducts:   o.TotalProducts,
		StockReduction:  o.StockReduction,
		Items:           make([]itemRecord, 0, len(o.Items)),
		Status:          string(o.Status),
		DeliveryStatus:  string(o.DeliveryStatus),
		Record:          o.Audit.Record(commit),
	}
	for _, it := range o.Items {
		rec.Items = append(rec.Items, itemRecord{
			ProductID:     it.ProductID,
			Description:   it.Description,
			Quantity:      it.Quantity,
			UnitPrice:     encodeMoney(it.UnitPrice),
			Total:         encodeMoney(it.Total),
			UnitOfMeasure: it.UnitOfMeasure,
		})
	}

	c := o.Client
	rec.Client = clientRecord{Name: c.Name, Phone: c.Phone, CPF: c.CPF, Email: c.Email}
	if c.Birthday != nil {
		rec.Client.Birthday = c.Birthday.Format(dateLayout)
	}
	if c.Address != nil && !c.Address.IsEmpty() {
		a := addressRecord(*c.Address)
		rec.Client.DeliveryAddress = &a
	}
	return rec
}

// encode renders the merging write for o committed at commit: every attribute
// to set, and the optional attributes to remove because o no longer has them.
func encode(o *Order, commit time.Time) (docstore.Item, []string, error) {
	item, err := attributevalue.MarshalMap(toRecord(o, commit))
	if err != nil {
		return nil, nil, &apperr.UnexpectedError{Details: "encode order " + o.ID, Err: err}
	}
	var remove []string
	for _, attr := range audit.Attributes {
		if _, ok := item[attr]; !ok {
			remove = append(remove, attr)
		}
	}
	return item, remove, nil
}

// decode validates a stored document field by field.
func decode(item docstore.Item) (*Order, error) {
	var rec orderRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, &apperr.UnexpectedError{Details: "decode order", Err: err}
	}
	o, err := fromRecord(rec)
	if err != nil {
		return nil, &apperr.UnexpectedError{Details: "decode order " + rec.OrderID, Err: err}
	}
	return o, nil
}

func fromRecord(rec orderRecord) (*Order, error) {
	if rec.OrderID == "" || rec.CompanyID == "" {
		return nil, fmt.Errorf("missing order_id or company_id")
	}
	o := &Order{
		ID:              rec.OrderID,
		CompanyID:       rec.CompanyID,
		PaymentMethodID: rec.PaymentMethodID,
		OrderNumber:     rec.OrderNumber,
		TotalItems:      rec.TotalItems,
		TotalProducts:   rec.TotalProducts,
		StockReduction:  rec.StockReduction,
		Audit:           rec.Record.Envelope(),
	}
	var err error
	if o.OrderDate, err = time.Parse(dateLayout, rec.OrderDate); err != nil {
		return nil, fmt.Errorf("order_date: %w", err)
	}
	if o.TotalAmount, err = decodeMoney(rec.TotalAmount, "total_amount"); err != nil {
		return nil, err
	}
	if o.Status, err = audit.ParseStatus(rec.Status); err != nil {
		return nil, err
	}
	if o.DeliveryStatus, err = ParseDeliveryStatus(rec.DeliveryStatus); err != nil {
		return nil, err
	}
	if rec.OrderNumber != "" {
		if _, err := ParseNumber(rec.OrderNumber); err != nil {
			return nil, err
		}
	}

	for i, ir := range rec.Items {
		it := Item{
			ProductID:     ir.ProductID,
			Description:   ir.Description,
			Quantity:      ir.Quantity,
			UnitOfMeasure: ir.UnitOfMeasure,
		}
		if it.UnitPrice, err = decodeMoney(ir.UnitPrice, fmt.Sprintf("items[%d].unit_price", i)); err != nil {
			return nil, err
		}
		if it.Total, err = decodeMoney(ir.Total, fmt.Sprintf("items[%d].total", i)); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}

	rc := rec.Client
	o.Client = ClientSnapshot{Name: rc.Name, Phone: rc.Phone, CPF: rc.CPF, Email: rc.Email}
	if rc.Birthday != "" {
		b, err := time.Parse(dateLayout, rc.Birthday)
		if err != nil {
			return nil, fmt.Errorf("client.birthday: %w", err)
		}
		o.Client.Birthday = &b
	}
	if rc.DeliveryAddress != nil {
		a := Address(*rc.DeliveryAddress)
		o.Client.Address = &a
	}
	return o, nil
}
