// Package metrics holds the Prometheus collectors of the order engine and its
// HTTP layer, and the CloudWatch reporter used by scheduled jobs.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
)

// Engine exposes collectors for order operations and their transactions.
type Engine struct {
	operations *prometheus.CounterVec
	txAttempts *prometheus.HistogramVec
	stockUnits prometheus.Counter
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// NewEngine registers the engine metrics against registerer. When registerer
// is nil the default Prometheus registerer is used.
func NewEngine(registerer prometheus.Registerer) *Engine {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultEngine = buildEngine(prometheus.DefaultRegisterer)
		})
		return defaultEngine
	}
	return buildEngine(registerer)
}

func buildEngine(registerer prometheus.Registerer) *Engine {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estoque_order_operations_total",
		Help: "Order engine operations partitioned by operation and result kind.",
	}, []string{"operation", "result"})
	txAttempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "estoque_transaction_attempts",
		Help:    "Attempts needed per optimistic transaction.",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
	}, []string{"result"})
	stockUnits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "estoque_stock_units_debited_total",
		Help: "Product units debited from stock by shipped orders.",
	})
	registerer.MustRegister(operations, txAttempts, stockUnits)
	return &Engine{operations: operations, txAttempts: txAttempts, stockUnits: stockUnits}
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.Kind(err)
}

// ObserveOperation counts one engine operation by its outcome.
func (e *Engine) ObserveOperation(operation string, err error) {
	if e == nil {
		return
	}
	e.operations.WithLabelValues(operation, result(err)).Inc()
}

// ObserveTransaction records how many attempts a transaction took. It matches
// the docstore observer signature.
func (e *Engine) ObserveTransaction(attempts int, err error) {
	if e == nil {
		return
	}
	e.txAttempts.WithLabelValues(result(err)).Observe(float64(attempts))
}

// AddStockDebit counts units taken out of stock.
func (e *Engine) AddStockDebit(units int64) {
	if e == nil || units <= 0 {
		return
	}
	e.stockUnits.Add(float64(units))
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
