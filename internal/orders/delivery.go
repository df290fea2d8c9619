package orders

import (
	"fmt"
	"strings"
)

// DeliveryStatus is the shipping lifecycle of an order. It runs independently
// of the registration status.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryCanceled  DeliveryStatus = "CANCELED"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:   {DeliveryInTransit, DeliveryDelivered, DeliveryCanceled},
	DeliveryInTransit: {DeliveryDelivered, DeliveryCanceled},
	DeliveryDelivered: {},
	DeliveryCanceled:  {},
}

var deliveryLabels = map[DeliveryStatus]string{
	DeliveryPending:   "Pendente",
	DeliveryInTransit: "Em trânsito",
	DeliveryDelivered: "Entregue",
	DeliveryCanceled:  "Cancelado",
}

// ParseDeliveryStatus accepts the persisted name in any case.
func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	d := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown delivery status %q", s)
	}
	return d, nil
}

func (d DeliveryStatus) Valid() bool {
	_, ok := deliveryTransitions[d]
	return ok
}

// ShippingCommitted reports whether goods have left, which is when stock is debited.
func (d DeliveryStatus) ShippingCommitted() bool {
	return d == DeliveryInTransit || d == DeliveryDelivered
}

// CanTransitionTo reports whether an order may move from d to next. Staying
// in the same state is always allowed.
func (d DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if d == next {
		return true
	}
	for _, s := range deliveryTransitions[d] {
		if s == next {
			return true
		}
	}
	return false
}

func (d DeliveryStatus) Label() string {
	if l, ok := deliveryLabels[d]; ok {
		return l
	}
	return string(d)
}
