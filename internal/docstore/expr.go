package docstore

import (
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
)

// Item is a raw DynamoDB document.
type Item = map[string]types.AttributeValue

// S returns a string attribute value.
func S(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

// N returns a number attribute value.
func N(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

// Int reads a number attribute. ok is false if the attribute is absent or not a number.
func Int(item Item, attr string) (v int64, ok bool) {
	n, isN := item[attr].(*types.AttributeValueMemberN)
	if !isN {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Str reads a string attribute, "" if absent.
func Str(item Item, attr string) string {
	if s, ok := item[attr].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// encoded hands an already encoded attribute value to the expression builder.
type encoded struct{ av types.AttributeValue }

func (e encoded) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) { return e.av, nil }

func value(v types.AttributeValue) expression.ValueBuilder { return expression.Value(encoded{v}) }

// Condition is a DynamoDB condition under construction. The zero value means
// "no condition".
type Condition struct {
	cb  expression.ConditionBuilder
	set bool
}

func condition(cb expression.ConditionBuilder) Condition { return Condition{cb: cb, set: true} }

func AttributeExists(attr string) Condition {
	return condition(expression.Name(attr).AttributeExists())
}

func AttributeNotExists(attr string) Condition {
	return condition(expression.Name(attr).AttributeNotExists())
}

func Equal(attr string, v types.AttributeValue) Condition {
	return condition(expression.Name(attr).Equal(value(v)))
}

func NotEqual(attr string, v types.AttributeValue) Condition {
	return condition(expression.Name(attr).NotEqual(value(v)))
}

func GreaterOrEqual(attr string, v types.AttributeValue) Condition {
	return condition(expression.Name(attr).GreaterThanEqual(value(v)))
}

func LessThan(attr string, v types.AttributeValue) Condition {
	return condition(expression.Name(attr).LessThan(value(v)))
}

// And joins the non-empty conditions.
func And(cs ...Condition) Condition { return join(expression.And, cs) }

// Or joins the non-empty conditions.
func Or(cs ...Condition) Condition { return join(expression.Or, cs) }

func join(op func(l, r expression.ConditionBuilder, other ...expression.ConditionBuilder) expression.ConditionBuilder, cs []Condition) Condition {
	var terms []expression.ConditionBuilder
	for _, c := range cs {
		if !c.IsZero() {
			terms = append(terms, c.cb)
		}
	}
	switch len(terms) {
	case 0:
		return Condition{}
	case 1:
		return condition(terms[0])
	}
	return condition(op(terms[0], terms[1], terms[2:]...))
}

// IsZero reports whether c is empty.
func (c Condition) IsZero() bool { return !c.set }

// Update describes a merging write: attributes in Set are assigned, numeric
// attributes in Increment are moved by a delta (starting from zero when
// absent), attributes in Remove are deleted, and everything else is kept.
type Update struct {
	Set       Item
	Increment map[string]int64
	Remove    []string
	Condition Condition
}

// builder renders the update. Key attributes are never assigned; the version
// attribute takes version.
func (u Update) builder(key Item, version expression.OperandBuilder) expression.UpdateBuilder {
	var ub expression.UpdateBuilder
	for _, attr := range sortedKeys(u.Set) {
		if _, isKey := key[attr]; isKey || attr == VersionAttr {
			continue
		}
		ub = ub.Set(expression.Name(attr), value(u.Set[attr]))
	}
	incs := make([]string, 0, len(u.Increment))
	for attr := range u.Increment {
		incs = append(incs, attr)
	}
	sort.Strings(incs)
	for _, attr := range incs {
		ub = ub.Set(expression.Name(attr), increment(attr, u.Increment[attr]))
	}
	ub = ub.Set(expression.Name(VersionAttr), version)
	for _, attr := range u.Remove {
		ub = ub.Remove(expression.Name(attr))
	}
	return ub
}

func increment(attr string, delta int64) expression.SetValueBuilder {
	name := expression.Name(attr)
	return expression.Plus(expression.IfNotExists(name, value(N(0))), value(N(delta)))
}

func bumpVersion() expression.OperandBuilder { return increment(VersionAttr, 1) }

func setVersion(v int64) expression.OperandBuilder { return value(N(v)) }

// build renders b; an empty builder yields an empty expression.
func build(b expression.Builder, empty bool) (expression.Expression, error) {
	if empty {
		return expression.Expression{}, nil
	}
	expr, err := b.Build()
	if err != nil {
		return expression.Expression{}, &apperr.UnexpectedError{Details: "build expression", Err: err}
	}
	return expr, nil
}

// conditionOnly renders a lone condition.
func conditionOnly(c Condition) (expression.Expression, error) {
	return build(expression.NewBuilder().WithCondition(c.cb), c.IsZero())
}

func sortedKeys(item Item) []string {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
