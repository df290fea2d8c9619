package orders

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
)

func TestCodec_RoundTripResolvesServerStamps(t *testing.T) {
	birthday := time.Date(1988, 2, 29, 0, 0, 0, 0, time.UTC)
	o := New("C1", "P1", []Item{item(t, "prod_A", 2, 1500), item(t, "prod_B", 1, 990)}, ClientSnapshot{
		Name:     "João",
		CPF:      "11144477735",
		Birthday: &birthday,
		Address:  &Address{Street: "Av. Paulista", Number: "1000", City: "São Paulo", State: "SP", PostalCode: "01310100"},
	}, DeliveryInTransit)
	o.OrderNumber = "000007"
	o.StockReduction = true
	require.NoError(t, o.Validate(policy))
	o.Audit.ApplyWrite(u1, o.Status)

	commit := time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC)
	item, remove, err := encode(o, commit)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"inactivated_at", "inactivated_by_id", "inactivated_by_name",
		"deleted_at", "deleted_by_id", "deleted_by_name",
	}, remove)
	assert.Equal(t, "2026-10-18", docstore.Str(item, "order_date"))

	got, err := decode(item)
	require.NoError(t, err)

	created, ok := got.Audit.Created.At.Time()
	require.True(t, ok)
	assert.Equal(t, commit, created)
	assert.Equal(t, "Ana", got.Audit.Activated.ByName)
	assert.False(t, got.Audit.Deleted.IsSet())

	want := o.Clone()
	want.Audit = got.Audit
	assert.Equal(t, want, got)
}

func TestCodec_WalkInHasNoClientAttributes(t *testing.T) {
	o := New("C1", "P1", nil, ClientSnapshot{}, DeliveryPending)
	require.NoError(t, o.Validate(policy))

	item, _, err := encode(o, time.Now())
	require.NoError(t, err)
	assert.NotContains(t, item, "order_number")

	got, err := decode(item)
	require.NoError(t, err)
	assert.True(t, got.Client.IsEmpty())
	assert.Empty(t, got.Items)
}

func TestDecode_RejectsCorruptDocuments(t *testing.T) {
	o := New("C1", "P1", []Item{item(t, "prod_A", 1, 100)}, ClientSnapshot{}, DeliveryPending)
	require.NoError(t, o.Validate(policy))
	o.Audit.ApplyWrite(u1, audit.StatusActive)
	good, _, err := encode(o, time.Now())
	require.NoError(t, err)

	corrupt := map[string]func(docstore.Item){
		"unknown currency": func(it docstore.Item) {
			it["total_amount"] = &types.AttributeValueMemberM{Value: docstore.Item{
				"minor_units": docstore.N(100),
				"currency":    docstore.S("XYZ1"),
			}}
		},
		"unknown delivery status": func(it docstore.Item) { it["delivery_status"] = docstore.S("LOST") },
		"bad order date":          func(it docstore.Item) { it["order_date"] = docstore.S("18/10/2026") },
		"missing company":         func(it docstore.Item) { delete(it, "company_id") },
		"bad number":              func(it docstore.Item) { it["order_number"] = docstore.S("7") },
	}
	for name, mutate := range corrupt {
		t.Run(name, func(t *testing.T) {
			it := docstore.Item{}
			for k, v := range good {
				it[k] = v
			}
			mutate(it)
			_, err := decode(it)
			assert.Equal(t, apperr.KindUnexpected, apperr.Kind(err))
		})
	}
}
