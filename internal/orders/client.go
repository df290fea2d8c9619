package orders

import (
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
)

var fieldCheck = validatorv10.New()

// Address is a delivery address as captured on the order.
type Address struct {
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	PostalCode   string
	Reference    string
}

// IsEmpty reports whether no field is filled.
func (a Address) IsEmpty() bool { return a == Address{} }

// ClientSnapshot is a copy of the customer taken when the order was written.
// It is a value: later changes to the client record never reach it. Walk-in
// sales carry an empty snapshot.
type ClientSnapshot struct {
	Name     string
	Phone    string
	CPF      string
	Email    string
	Birthday *time.Time
	Address  *Address
}

// IsEmpty reports whether the snapshot carries no data.
func (c ClientSnapshot) IsEmpty() bool {
	return c.Name == "" && c.Phone == "" && c.CPF == "" && c.Email == "" &&
		c.Birthday == nil && (c.Address == nil || c.Address.IsEmpty())
}

func (c ClientSnapshot) clone() ClientSnapshot {
	out := c
	if c.Birthday != nil {
		b := *c.Birthday
		out.Birthday = &b
	}
	if c.Address != nil {
		a := *c.Address
		out.Address = &a
	}
	return out
}

// Normalize canonicalizes the snapshot in place: CPF, phone and postal code
// keep digits only, e-mail is lowercased, birthday is reduced to a date.
func (c *ClientSnapshot) Normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = digits(c.Phone)
	c.CPF = digits(c.CPF)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))

	if c.CPF != "" && !validCPF(c.CPF) {
		return apperr.Invalid("client.cpf", "invalid CPF")
	}
	if c.Email != "" {
		if err := fieldCheck.Var(c.Email, "email"); err != nil {
			return apperr.Invalid("client.email", "invalid e-mail address")
		}
	}
	if c.Phone != "" && (len(c.Phone) < 10 || len(c.Phone) > 13) {
		return apperr.Invalid("client.phone", "phone must have 10 to 13 digits")
	}
	if c.Birthday != nil {
		d := dateOf(*c.Birthday)
		c.Birthday = &d
	}
	if c.Address != nil {
		a := c.Address
		a.Street = strings.TrimSpace(a.Street)
		a.Number = strings.TrimSpace(a.Number)
		a.Complement = strings.TrimSpace(a.Complement)
		a.Neighborhood = strings.TrimSpace(a.Neighborhood)
		a.City = strings.TrimSpace(a.City)
		a.State = strings.ToUpper(strings.TrimSpace(a.State))
		a.PostalCode = digits(a.PostalCode)
		a.Reference = strings.TrimSpace(a.Reference)
		if a.IsEmpty() {
			c.Address = nil
			return nil
		}
		if a.State != "" && len(a.State) != 2 {
			return apperr.Invalid("client.delivery_address.state", "state must be a two-letter code")
		}
		if a.PostalCode != "" && len(a.PostalCode) != 8 {
			return apperr.Invalid("client.delivery_address.postal_code", "postal code must have 8 digits")
		}
	}
	return nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCPF reports whether s, formatted or not, is a valid CPF.
func ValidCPF(s string) bool { return validCPF(digits(s)) }

// validCPF checks length and both check digits of a digits-only CPF.
func validCPF(cpf string) bool {
	if len(cpf) != 11 || strings.Count(cpf, cpf[:1]) == 11 {
		return false
	}
	check := func(n int) int {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(cpf[i]-'0') * (n + 1 - i)
		}
		d := sum * 10 % 11
		if d == 10 {
			d = 0
		}
		return d
	}
	return check(9) == int(cpf[9]-'0') && check(10) == int(cpf[10]-'0')
}
