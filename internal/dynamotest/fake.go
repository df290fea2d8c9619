// Package dynamotest provides an in-memory DynamoDB stand-in for tests. It
// understands the subset of condition, update and key expressions the stores
// in this module emit, applies transactions atomically and fails them with
// the same exception types the real service returns.
package dynamotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type index struct {
	partition string
	sort      string
}

type table struct {
	partition string
	sort      string
	items     map[string]item
	indexes   map[string]index
}

func (t *table) keyOf(it item) (string, error) {
	pk, ok := it[t.partition]
	if !ok {
		return "", validation("missing key attribute %s", t.partition)
	}
	k := keyString(pk)
	if t.sort != "" {
		sk, ok := it[t.sort]
		if !ok {
			return "", validation("missing key attribute %s", t.sort)
		}
		k += "|" + keyString(sk)
	}
	return k, nil
}

func (t *table) keyItem(it item) item {
	k := item{t.partition: copyValue(it[t.partition])}
	if t.sort != "" {
		k[t.sort] = copyValue(it[t.sort])
	}
	return k
}

func keyString(v types.AttributeValue) string {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + tv.Value
	case *types.AttributeValueMemberN:
		return "N:" + tv.Value
	}
	return fmt.Sprintf("%v", v)
}

// Fake is safe for concurrent use. Every operation is serialized, which is
// how conditional writes and transactions observe each other.
type Fake struct {
	mu       sync.Mutex
	tables   map[string]*table
	failures map[string][]error
	calls    map[string]int
	hooks    map[string][]func()

	// PageSize, when positive, caps the items returned per Query or Scan page.
	PageSize int
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		tables:   map[string]*table{},
		failures: map[string][]error{},
		calls:    map[string]int{},
		hooks:    map[string][]func(){},
	}
}

// CreateTable defines a table. sortKey may be empty.
func (f *Fake) CreateTable(name, partitionKey, sortKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{
		partition: partitionKey,
		sort:      sortKey,
		items:     map[string]item{},
		indexes:   map[string]index{},
	}
}

// CreateIndex adds a global secondary index. Items missing either attribute
// are left out of it.
func (f *Fake) CreateIndex(tableName, indexName, partitionKey, sortKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[tableName].indexes[indexName] = index{partition: partitionKey, sort: sortKey}
}

// Put stores a copy of it, replacing any existing item with the same key.
func (f *Fake) Put(tableName string, it map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[tableName]
	k, err := t.keyOf(it)
	if err != nil {
		panic(err)
	}
	t.items[k] = copyItem(it)
}

// Item returns a copy of the stored item with the given key, nil if absent.
func (f *Fake) Item(tableName string, key map[string]types.AttributeValue) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[tableName]
	k, err := t.keyOf(key)
	if err != nil {
		return nil
	}
	return copyItem(t.items[k])
}

// Items returns copies of every item of a table.
func (f *Fake) Items(tableName string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[tableName]
	out := make([]map[string]types.AttributeValue, 0, len(t.items))
	for _, k := range sortedItemKeys(t.items) {
		out = append(out, copyItem(t.items[k]))
	}
	return out
}

// FailNext makes the next call to op (e.g. "TransactWriteItems") return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// Before registers fn to run once, outside the lock, right before the next
// call to op is applied. Tests use it to interleave a competing writer.
func (f *Fake) Before(op string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[op] = append(f.hooks[op], fn)
}

// Calls reports how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// begin counts the call, runs pending hooks and returns an injected failure.
// On success the lock is held and must be released by the caller.
func (f *Fake) begin(op string) error {
	f.mu.Lock()
	f.calls[op]++
	hooks := f.hooks[op]
	delete(f.hooks, op)
	f.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	f.mu.Lock()
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		f.mu.Unlock()
		return errs[0]
	}
	return nil
}

func (f *Fake) lookup(name *string) (*table, error) {
	if name == nil {
		return nil, validation("missing table name")
	}
	t, ok := f.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: ptr("Requested resource not found: Table: " + *name + " not found")}
	}
	return t, nil
}

func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.begin("GetItem"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: copyItem(t.items[k])}, nil
}

func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.begin("PutItem"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Item)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old)
	if err != nil {
		return nil, validation("%v", err)
	}
	if !ok {
		return nil, conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
	}
	t.items[k] = copyItem(in.Item)
	out := &dyn.PutItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.begin("UpdateItem"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old)
	if err != nil {
		return nil, validation("%v", err)
	}
	if !ok {
		return nil, conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
	}
	if in.UpdateExpression == nil {
		return nil, validation("missing update expression")
	}
	next, err := applyUpdate(old, t.keyItem(in.Key), *in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, validation("%v", err)
	}
	t.items[k] = next

	out := &dyn.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = copyItem(next)
	case types.ReturnValueAllOld:
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, _ ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.begin("DeleteItem"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	old := t.items[k]
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old)
	if err != nil {
		return nil, validation("%v", err)
	}
	if !ok {
		return nil, conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
	}
	delete(t.items, k)
	out := &dyn.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, _ ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.begin("Query"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	idx := index{partition: t.partition, sort: t.sort}
	if in.IndexName != nil {
		var ok bool
		idx, ok = t.indexes[*in.IndexName]
		if !ok {
			return nil, validation("The table does not have the specified index: %s", *in.IndexName)
		}
	}
	if in.KeyConditionExpression == nil {
		return nil, validation("missing key condition expression")
	}

	var matched []item
	for _, k := range sortedItemKeys(t.items) {
		it := t.items[k]
		if _, ok := it[idx.partition]; !ok {
			continue
		}
		if idx.sort != "" {
			if _, ok := it[idx.sort]; !ok {
				continue
			}
		}
		keyOK, err := evalCondition(in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, it)
		if err != nil {
			return nil, validation("%v", err)
		}
		if !keyOK {
			continue
		}
		matched = append(matched, it)
	}
	if idx.sort != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c, _ := compare(matched[i][idx.sort], matched[j][idx.sort])
			return c < 0
		})
	}
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	page, last, err := f.page(t, matched, in.ExclusiveStartKey, in.Limit)
	if err != nil {
		return nil, err
	}
	filtered, err := filter(page, in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	out := &dyn.QueryOutput{
		Count:            int32(len(filtered)),
		ScannedCount:     int32(len(page)),
		LastEvaluatedKey: last,
	}
	if in.Select != types.SelectCount {
		out.Items = filtered
	}
	return out, nil
}

func (f *Fake) Scan(ctx context.Context, in *dyn.ScanInput, _ ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.begin("Scan"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	all := make([]item, 0, len(t.items))
	for _, k := range sortedItemKeys(t.items) {
		all = append(all, t.items[k])
	}
	page, last, err := f.page(t, all, in.ExclusiveStartKey, in.Limit)
	if err != nil {
		return nil, err
	}
	filtered, err := filter(page, in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	out := &dyn.ScanOutput{
		Count:            int32(len(filtered)),
		ScannedCount:     int32(len(page)),
		LastEvaluatedKey: last,
	}
	if in.Select != types.SelectCount {
		out.Items = filtered
	}
	return out, nil
}

// page applies ExclusiveStartKey and the page limit to an ordered result.
func (f *Fake) page(t *table, ordered []item, start item, limit *int32) ([]item, item, error) {
	if len(start) > 0 {
		sk, err := t.keyOf(start)
		if err != nil {
			return nil, nil, err
		}
		for i, it := range ordered {
			if k, _ := t.keyOf(it); k == sk {
				ordered = ordered[i+1:]
				break
			}
		}
	}
	size := f.PageSize
	if limit != nil && *limit > 0 && (size <= 0 || int(*limit) < size) {
		size = int(*limit)
	}
	if size <= 0 || len(ordered) <= size {
		return ordered, nil, nil
	}
	page := ordered[:size]
	return page, t.keyItem(page[len(page)-1]), nil
}

func filter(items []item, expr *string, names map[string]string, values map[string]types.AttributeValue) ([]item, error) {
	out := make([]item, 0, len(items))
	for _, it := range items {
		ok, err := evalCondition(expr, names, values, it)
		if err != nil {
			return nil, validation("%v", err)
		}
		if ok {
			out = append(out, copyItem(it))
		}
	}
	return out, nil
}

type pendingWrite struct {
	t      *table
	key    string
	next   item
	delete bool
}

// TransactWriteItems checks every condition first and applies the writes only
// if all of them hold.
func (f *Fake) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, _ ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.begin("TransactWriteItems"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	if len(in.TransactItems) == 0 || len(in.TransactItems) > 100 {
		return nil, validation("transaction must contain between 1 and 100 items")
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	seen := map[string]bool{}
	var writes []pendingWrite

	for i, ti := range in.TransactItems {
		var (
			tableName *string
			key       item
			cond      *string
			names     map[string]string
			values    map[string]types.AttributeValue
		)
		switch {
		case ti.ConditionCheck != nil:
			c := ti.ConditionCheck
			tableName, key, cond, names, values = c.TableName, c.Key, c.ConditionExpression, c.ExpressionAttributeNames, c.ExpressionAttributeValues
		case ti.Update != nil:
			u := ti.Update
			tableName, key, cond, names, values = u.TableName, u.Key, u.ConditionExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues
		case ti.Put != nil:
			p := ti.Put
			tableName, key, cond, names, values = p.TableName, p.Item, p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues
		case ti.Delete != nil:
			d := ti.Delete
			tableName, key, cond, names, values = d.TableName, d.Key, d.ConditionExpression, d.ExpressionAttributeNames, d.ExpressionAttributeValues
		default:
			return nil, validation("empty transaction item %d", i)
		}

		t, err := f.lookup(tableName)
		if err != nil {
			return nil, err
		}
		k, err := t.keyOf(key)
		if err != nil {
			return nil, err
		}
		if seen[*tableName+"/"+k] {
			return nil, validation("Transaction request cannot include multiple operations on one item")
		}
		seen[*tableName+"/"+k] = true

		old := t.items[k]
		ok, err := evalCondition(cond, names, values, old)
		if err != nil {
			return nil, validation("%v", err)
		}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{Code: ptr("ConditionalCheckFailed"), Message: ptr("The conditional request failed")}
			continue
		}
		reasons[i] = types.CancellationReason{Code: ptr("None")}

		switch {
		case ti.Update != nil:
			next, err := applyUpdate(old, t.keyItem(key), *ti.Update.UpdateExpression, names, values)
			if err != nil {
				return nil, validation("%v", err)
			}
			writes = append(writes, pendingWrite{t: t, key: k, next: next})
		case ti.Put != nil:
			writes = append(writes, pendingWrite{t: t, key: k, next: copyItem(ti.Put.Item)})
		case ti.Delete != nil:
			writes = append(writes, pendingWrite{t: t, key: k, delete: true})
		}
	}

	if failed {
		codes := make([]string, len(reasons))
		for i, r := range reasons {
			codes[i] = *r.Code
		}
		return nil, &types.TransactionCanceledException{
			Message:             ptr("Transaction cancelled, please refer cancellation reasons for specific reasons [" + strings.Join(codes, ", ") + "]"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		if w.delete {
			delete(w.t.items, w.key)
			continue
		}
		w.t.items[w.key] = w.next
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func conditionFailed(old item, rv types.ReturnValuesOnConditionCheckFailure) error {
	e := &types.ConditionalCheckFailedException{Message: ptr("The conditional request failed")}
	if rv == types.ReturnValuesOnConditionCheckFailureAllOld {
		e.Item = copyItem(old)
	}
	return e
}

func validation(format string, args ...any) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: fmt.Sprintf(format, args...)}
}

func sortedItemKeys(items map[string]item) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ptr[T any](v T) *T { return &v }
