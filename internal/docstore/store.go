// Package docstore is a thin document-store layer over DynamoDB: consistent
// single-document reads and conditional updates, queries, and optimistic
// multi-document transactions with transparent retry on contention.
package docstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/aws"
)

// VersionAttr is the optimistic-concurrency counter carried by every document
// the store writes.
const VersionAttr = "version"

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 25 * time.Millisecond
	maxBackoff         = time.Second
)

// Ref addresses one document.
type Ref struct {
	Table string
	Key   Item
}

func (r Ref) id() string {
	var sb strings.Builder
	sb.WriteString(r.Table)
	for _, k := range sortedKeys(r.Key) {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		switch v := r.Key[k].(type) {
		case *types.AttributeValueMemberS:
			sb.WriteString(v.Value)
		case *types.AttributeValueMemberN:
			sb.WriteString(v.Value)
		}
	}
	return sb.String()
}

// partitionAttr names an attribute every stored document of the table has.
func (r Ref) partitionAttr() string {
	keys := sortedKeys(r.Key)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// ErrConditionFailed matches ConditionFailedError.
var ErrConditionFailed = errors.New("docstore: condition failed")

// ConditionFailedError is returned when a conditional single-document write
// is rejected. Current holds the document as it was, nil if it does not exist.
type ConditionFailedError struct {
	Current Item
}

func (e *ConditionFailedError) Error() string { return ErrConditionFailed.Error() }

func (e *ConditionFailedError) Is(target error) bool { return target == ErrConditionFailed }

// Store performs document operations against DynamoDB.
type Store struct {
	client      aws.DynamoDBAPI
	logger      *slog.Logger
	nowFunc     func() time.Time
	maxAttempts int
	backoff     time.Duration
	observer    func(attempts int, err error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for commit timestamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.nowFunc = now } }

// WithMaxAttempts bounds how many times a contended transaction is run.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between transaction attempts. Zero disables waiting.
func WithBackoff(d time.Duration) Option { return func(s *Store) { s.backoff = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver registers a callback invoked once per transaction with the
// number of attempts made and the final error.
func WithObserver(fn func(attempts int, err error)) Option {
	return func(s *Store) { s.observer = fn }
}

// New returns a Store over client.
func New(client aws.DynamoDBAPI, opts ...Option) *Store {
	s := &Store{
		client:      client,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		nowFunc:     time.Now,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time { return s.nowFunc().UTC() }

// Get reads a document with strong consistency. Returns (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, ref Ref) (Item, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &ref.Table,
		Key:            ref.Key,
		ConsistentRead: ptr(true),
	})
	if err != nil {
		return nil, classify("get item", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// Update applies a merging write to one document outside any transaction and
// returns the document as stored afterwards. The version attribute is bumped.
// A rejected condition yields *ConditionFailedError.
func (s *Store) Update(ctx context.Context, ref Ref, u Update) (Item, error) {
	b := expression.NewBuilder().WithUpdate(u.builder(ref.Key, bumpVersion()))
	if !u.Condition.IsZero() {
		b = b.WithCondition(u.Condition.cb)
	}
	expr, err := build(b, false)
	if err != nil {
		return nil, err
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           &ref.Table,
		Key:                                 ref.Key,
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return nil, classify("update item", err)
	}
	return out.Attributes, nil
}

// Delete removes one document, optionally under a condition.
func (s *Store) Delete(ctx context.Context, ref Ref, cond Condition) error {
	expr, err := conditionOnly(cond)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:                           &ref.Table,
		Key:                                 ref.Key,
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return classify("delete item", err)
	}
	return nil
}

// Query selects documents of one partition of a table or index.
type Query struct {
	// Name identifies the query in index_required errors.
	Name      string
	Table     string
	Index     string
	Partition string
	Value     types.AttributeValue
	Filter    Condition
	// Descending reverses the sort-key order.
	Descending bool
}

func (q Query) input() (*dyn.QueryInput, error) {
	b := expression.NewBuilder().WithKeyCondition(expression.Key(q.Partition).Equal(value(q.Value)))
	if !q.Filter.IsZero() {
		b = b.WithFilter(q.Filter.cb)
	}
	expr, err := build(b, false)
	if err != nil {
		return nil, err
	}
	in := &dyn.QueryInput{
		TableName:                 &q.Table,
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          ptr(!q.Descending),
	}
	if q.Index != "" {
		in.IndexName = &q.Index
	}
	return in, nil
}

// Query returns every matching document, following pagination.
func (s *Store) Query(ctx context.Context, q Query) ([]Item, error) {
	in, err := q.input()
	if err != nil {
		return nil, err
	}
	var items []Item
	for {
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, classifyQuery(q, err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Count returns the number of matching documents without reading them back.
func (s *Store) Count(ctx context.Context, q Query) (int, error) {
	in, err := q.input()
	if err != nil {
		return 0, err
	}
	in.Select = types.SelectCount
	total := 0
	for {
		out, err := s.client.Query(ctx, in)
		if err != nil {
			return 0, classifyQuery(q, err)
		}
		total += int(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Scan reads every document of a table that matches filter.
func (s *Store) Scan(ctx context.Context, table string, filter Condition) ([]Item, error) {
	expr, err := build(expression.NewBuilder().WithFilter(filter.cb), filter.IsZero())
	if err != nil {
		return nil, err
	}
	in := &dyn.ScanInput{
		TableName:                 &table,
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	var items []Item
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, classify("scan", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func classifyQuery(q Query, err error) error {
	classified := classify("query", err)
	var unexpected *apperr.UnexpectedError
	if errors.As(classified, &unexpected) && missingIndex(err) {
		return &apperr.IndexRequiredError{Query: q.Name, Hint: err.Error()}
	}
	return classified
}

func ptr[T any](v T) *T { return &v }
