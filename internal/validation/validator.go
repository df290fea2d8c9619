// Package validation holds the request payloads of the order API and the
// validator that checks them before they reach the engine.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/money"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// checkCurrency prices decimal strings when a rule needs to parse them; any
// valid code gives the same minor units.
const checkCurrency = "BRL"

// New returns a configured validator with the custom rules and the
// struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "money", validMoney)
	mustRegister(v, "cpf", func(fl validatorv10.FieldLevel) bool { return orders.ValidCPF(fl.Field().String()) })
	mustRegister(v, "yyyymmdd", validDate)

	// the claimed total must match the sum of (price * quantity) of the items
	v.RegisterStructValidation(orderStructValidation, OrderRequest{})
	v.RegisterStructValidation(itemStructValidation, ItemRequest{})

	return v
}

func mustRegister(v *validatorv10.Validate, tag string, fn validatorv10.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

func validMoney(fl validatorv10.FieldLevel) bool {
	_, err := money.ParseDecimal(fl.Field().String(), checkCurrency)
	return err == nil
}

func validDate(fl validatorv10.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

func lineTotal(it ItemRequest) (money.Money, bool) {
	price, err := money.ParseDecimal(it.UnitPrice, checkCurrency)
	if err != nil || it.Quantity <= 0 {
		return money.Money{}, false
	}
	total, err := price.Mul(it.Quantity)
	return total, err == nil
}

func itemStructValidation(sl validatorv10.StructLevel) {
	it := sl.Current().Interface().(ItemRequest)
	if it.Total == "" {
		return
	}
	want, ok := lineTotal(it)
	got, err := money.ParseDecimal(it.Total, checkCurrency)
	if ok && err == nil && !got.Equal(want) {
		sl.ReportError(it.Total, "total", "Total", "total_match_price", want.DecimalString())
	}
}

// orderStructValidation verifies the claimed total equals the items sum to the cent.
func orderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(OrderRequest)
	if req.TotalAmount == "" {
		return
	}
	claimed, err := money.ParseDecimal(req.TotalAmount, checkCurrency)
	if err != nil {
		return // reported by the field rule
	}

	sum := money.MustOf(0, checkCurrency)
	for _, it := range req.Items {
		total, ok := lineTotal(it)
		if !ok {
			return
		}
		if sum, err = sum.Add(total); err != nil {
			return
		}
	}
	if !sum.Equal(claimed) {
		sl.ReportError(req.TotalAmount, "total_amount", "TotalAmount", "amount_match_items",
			fmt.Sprintf("items sum %s != total_amount %s", sum.DecimalString(), claimed.DecimalString()))
	}
}
