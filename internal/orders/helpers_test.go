package orders

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/catalog"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/dynamotest"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/events"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/metrics"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/money"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/sequence"
)

const (
	ordersTable    = "orders"
	sequencesTable = "sequences"
	productsTable  = "products"
)

var (
	u1      = audit.Actor{ID: "U1", Name: "Ana", CompanyID: "C1"}
	u2      = audit.Actor{ID: "U2", Name: "Bruno", CompanyID: "C1"}
	today   = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	startAt = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
)

// ticker is a clock that advances one second per reading.
type ticker struct {
	mu  sync.Mutex
	now time.Time
}

func (t *ticker) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = t.now.Add(time.Second)
	return t.now
}

type harness struct {
	fake     *dynamotest.Fake
	store    *docstore.Store
	repo     *Repository
	svc      *Service
	counter  *sequence.Counter
	recorder *events.Recorder
}

func newHarness(t *testing.T, opts ...docstore.Option) *harness {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable(ordersTable, "order_id", "")
	fake.CreateIndex(ordersTable, DefaultCompanyIndex, "company_id", "order_number")
	fake.CreateTable(sequencesTable, "company_id", "name")
	fake.CreateTable(productsTable, "company_id", "product_id")

	fake.Put(productsTable, catalog.Seed{CompanyID: "C1", ProductID: "prod_A", Description: "Água mineral 500ml", OnHand: 10, UnitOfMeasure: "UN"}.Item())
	fake.Put(productsTable, catalog.Seed{CompanyID: "C1", ProductID: "prod_B", Description: "Refrigerante 2L", OnHand: 3, UnitOfMeasure: "UN"}.Item())
	fake.Put(sequencesTable, docstore.Item{"company_id": docstore.S("C1"), "name": docstore.S(sequence.OrderNumbers), "next_number": docstore.N(1)})

	clock := &ticker{now: startAt}
	store := docstore.New(fake, append([]docstore.Option{docstore.WithBackoff(0), docstore.WithClock(clock.Now)}, opts...)...)
	counter := sequence.NewCounter(store, sequencesTable)
	repo := NewRepository(store, counter, catalog.NewReader(store, productsTable), RepositoryConfig{OrdersTable: ordersTable}, nil)
	rec := &events.Recorder{}
	svc := NewService(repo, ServiceConfig{Currency: "BRL"},
		WithPublisher(rec),
		WithMetrics(metrics.NewEngine(prometheus.NewRegistry())),
		WithClock(func() time.Time { return startAt }))
	return &harness{fake: fake, store: store, repo: repo, svc: svc, counter: counter, recorder: rec}
}

func brl(minor uint64) money.Money { return money.MustOf(minor, "BRL") }

func item(t *testing.T, productID string, qty int64, unitPrice uint64) Item {
	t.Helper()
	it, err := NewItem(productID, "desc "+productID, qty, brl(unitPrice), "UN")
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	return it
}

func (h *harness) onHand(t *testing.T, productID string) int64 {
	t.Helper()
	n, ok := docstore.Int(h.fake.Item(productsTable, docstore.Item{"company_id": docstore.S("C1"), "product_id": docstore.S(productID)}), "quantity_on_hand")
	if !ok {
		t.Fatalf("product %s has no quantity", productID)
	}
	return n
}

func (h *harness) nextNumber(t *testing.T, companyID string) int64 {
	t.Helper()
	n, ok := docstore.Int(h.fake.Item(sequencesTable, docstore.Item{"company_id": docstore.S(companyID), "name": docstore.S(sequence.OrderNumbers)}), "next_number")
	if !ok {
		return 1
	}
	return n
}
