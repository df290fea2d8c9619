package validation

// ItemRequest is one order line. Money travels as decimal strings.
type ItemRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	Description   string `json:"description" validate:"required,max=200"`
	Quantity      int64  `json:"quantity" validate:"required,min=1"`
	UnitPrice     string `json:"unit_price" validate:"required,money"`
	Total         string `json:"total,omitempty" validate:"omitempty,money"` // optional; checked against price x quantity
	UnitOfMeasure string `json:"unit_of_measure,omitempty" validate:"omitempty,max=10"`
}

// AddressRequest is a client delivery address.
type AddressRequest struct {
	Street       string `json:"street,omitempty" validate:"omitempty,max=120"`
	Number       string `json:"number,omitempty" validate:"omitempty,max=20"`
	Complement   string `json:"complement,omitempty" validate:"omitempty,max=80"`
	Neighborhood string `json:"neighborhood,omitempty" validate:"omitempty,max=80"`
	City         string `json:"city,omitempty" validate:"omitempty,max=80"`
	State        string `json:"state,omitempty" validate:"omitempty,len=2,alpha"`
	PostalCode   string `json:"postal_code,omitempty" validate:"omitempty,max=9"`
	Reference    string `json:"reference,omitempty" validate:"omitempty,max=120"`
}

// ClientRequest is the client snapshot captured on the order.
type ClientRequest struct {
	Name            string          `json:"name,omitempty" validate:"omitempty,max=120"`
	Phone           string          `json:"phone,omitempty" validate:"omitempty,max=20"`
	CPF             string          `json:"cpf,omitempty" validate:"omitempty,cpf"`
	Email           string          `json:"email,omitempty" validate:"omitempty,email"`
	Birthday        string          `json:"birthday,omitempty" validate:"omitempty,yyyymmdd"`
	DeliveryAddress *AddressRequest `json:"delivery_address,omitempty"`
}

// OrderRequest is the payload for creating and updating an order.
type OrderRequest struct {
	PaymentMethodID string         `json:"payment_method_id" validate:"required"`
	OrderDate       string         `json:"order_date,omitempty" validate:"omitempty,yyyymmdd"`
	Currency        string         `json:"currency,omitempty" validate:"omitempty,iso4217"`
	DeliveryStatus  string         `json:"delivery_status,omitempty" validate:"omitempty,oneof=PENDING IN_TRANSIT DELIVERED CANCELED"`
	Status          string         `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	TotalAmount     string         `json:"total_amount,omitempty" validate:"omitempty,money"` // total the client claims
	Items           []ItemRequest  `json:"items" validate:"dive"`
	Client          *ClientRequest `json:"client,omitempty"`
}
