package catalog

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
)

// Seed is a product document as the product subsystem would store it. Tests
// of packages that consume the catalog use it to populate a table.
type Seed struct {
	CompanyID     string
	ProductID     string
	Description   string
	OnHand        int64
	UnitOfMeasure string
}

// Item encodes the seed.
func (s Seed) Item() docstore.Item {
	item, err := attributevalue.MarshalMap(record{
		CompanyID:      s.CompanyID,
		ProductID:      s.ProductID,
		Description:    s.Description,
		QuantityOnHand: s.OnHand,
		UnitOfMeasure:  s.UnitOfMeasure,
	})
	if err != nil {
		panic(err)
	}
	return item
}
