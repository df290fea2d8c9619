package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/events"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/metrics"
)

// ServiceConfig holds the business rules that depend on the deployment.
type ServiceConfig struct {
	// Location defines what "today" is for order dates.
	Location     *time.Location
	MaxDaysAhead int
	// Currency prices orders that have no items yet.
	Currency string
}

// Service is the entry point of the order engine for controllers. It checks
// the actor, validates, delegates to the repository and announces committed
// changes.
type Service struct {
	repo      *Repository
	cfg       ServiceConfig
	publisher events.Publisher
	metrics   *metrics.Engine
	logger    *slog.Logger
	nowFunc   func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher sets where committed changes are announced.
func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the engine collectors.
func WithMetrics(m *metrics.Engine) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces the clock used to decide today's date.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.nowFunc = now }
}

// NewService returns a Service over repo.
func NewService(repo *Repository, cfg ServiceConfig, opts ...ServiceOption) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxDaysAhead <= 0 {
		cfg.MaxDaysAhead = DefaultMaxDaysAhead
	}
	s := &Service{
		repo:      repo,
		cfg:       cfg,
		publisher: events.Discard{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) policy() Policy {
	return Policy{
		Today:        dateOf(s.nowFunc().In(s.cfg.Location)),
		MaxDaysAhead: s.cfg.MaxDaysAhead,
		Currency:     s.cfg.Currency,
	}
}

// checkActor refuses anonymous actors and actors of another company.
func checkActor(actor audit.Actor, companyID string) error {
	if !actor.Valid() {
		return fmt.Errorf("%w: actor identity is required", apperr.ErrPermissionDenied)
	}
	if actor.CompanyID != companyID {
		return fmt.Errorf("%w: actor %s does not belong to company %s", apperr.ErrPermissionDenied, actor.ID, companyID)
	}
	return nil
}

// Create numbers and persists a new order. The draft must not carry an order
// number; the returned order has its id, number and resolved timestamps. A
// draft id is kept so that a create retried after an ambiguous commit lands on
// the same document; it cannot be used to overwrite another order.
func (s *Service) Create(ctx context.Context, draft *Order, actor audit.Actor) (_ *Order, err error) {
	defer func() { s.metrics.ObserveOperation("create", err) }()

	if err := checkActor(actor, draft.CompanyID); err != nil {
		return nil, err
	}
	if draft.OrderNumber != "" {
		return nil, apperr.Invalid("order_number", "is assigned by the engine")
	}

	o := draft.Clone()
	if o.ID == "" {
		o.ID = NewID()
	}
	o.StockReduction = false
	o.Audit = audit.Envelope{Created: audit.Stamp{ByID: actor.ID, ByName: actor.Name}}
	if err := o.Validate(s.policy()); err != nil {
		return nil, err
	}

	outcome, err := s.repo.Insert(ctx, o, actor)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, o, actor, events.OrderCreated, outcome)
	return o, nil
}

// Update persists changes to an existing order. Moving it into a
// shipping-committed state for the first time debits stock.
func (s *Service) Update(ctx context.Context, order *Order, actor audit.Actor) (_ *Order, err error) {
	defer func() { s.metrics.ObserveOperation("update", err) }()

	if err := checkActor(actor, order.CompanyID); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, apperr.Invalid("id", "required")
	}
	if order.OrderNumber == "" {
		return nil, apperr.Invalid("order_number", "required")
	}

	o := order.Clone()
	if err := o.Validate(s.policy()); err != nil {
		return nil, err
	}
	outcome, err := s.repo.Save(ctx, o, actor)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, o, actor, events.OrderUpdated, outcome)
	return o, nil
}

// Delete soft-deletes the order. Delivered orders are kept for the record.
// On success order reflects the stored document.
func (s *Service) Delete(ctx context.Context, order *Order, actor audit.Actor) (err error) {
	defer func() { s.metrics.ObserveOperation("delete", err) }()

	if err := checkActor(actor, order.CompanyID); err != nil {
		return err
	}
	if order.DeliveryStatus == DeliveryDelivered {
		return apperr.ErrDeliveredOrderDelete
	}
	if err := s.repo.SoftDelete(ctx, order, actor); err != nil {
		return err
	}
	s.announce(ctx, order, actor, events.OrderDeleted, SaveOutcome{})
	return nil
}

// Restore brings a deleted order back to ACTIVE.
func (s *Service) Restore(ctx context.Context, order *Order, actor audit.Actor) (err error) {
	defer func() { s.metrics.ObserveOperation("restore", err) }()

	if err := checkActor(actor, order.CompanyID); err != nil {
		return err
	}
	if err := s.repo.Restore(ctx, order, actor); err != nil {
		return err
	}
	s.announce(ctx, order, actor, events.OrderRestored, SaveOutcome{})
	return nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, orderID string) (_ *Order, err error) {
	defer func() { s.metrics.ObserveOperation("get", err) }()
	return s.repo.Get(ctx, orderID)
}

// List returns a company's orders and its trash count.
func (s *Service) List(ctx context.Context, companyID string, filter StatusFilter) (_ []*Order, _ int, err error) {
	defer func() { s.metrics.ObserveOperation("list", err) }()
	if companyID == "" {
		return nil, 0, apperr.Invalid("company_id", "required")
	}
	return s.repo.ListByCompany(ctx, companyID, filter)
}

// announce publishes the events of a committed change. Failures are logged:
// the change is already durable.
func (s *Service) announce(ctx context.Context, o *Order, actor audit.Actor, typ events.Type, outcome SaveOutcome) {
	if outcome.Created {
		typ = events.OrderCreated
	}
	types := []events.Type{typ}
	if outcome.StockReduced {
		types = append(types, events.OrderStockReduced)
		s.metrics.AddStockDebit(o.TotalProducts)
	}

	occurred, ok := o.Audit.Updated.At.Time()
	if !ok {
		occurred = s.nowFunc().UTC()
	}
	for _, t := range types {
		ev := events.Event{
			ID:             events.NewID(),
			Type:           t,
			OrderID:        o.ID,
			CompanyID:      o.CompanyID,
			OrderNumber:    o.OrderNumber,
			Status:         string(o.Status),
			DeliveryStatus: string(o.DeliveryStatus),
			TotalAmount:    o.TotalAmount.DecimalString(),
			Currency:       o.TotalAmount.Currency(),
			ActorID:        actor.ID,
			OccurredAt:     occurred,
		}
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Error("publish order event failed",
				slog.String("event_type", string(t)),
				slog.String("order_id", o.ID),
				slog.Any("error", err))
		}
	}
}
