package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/app"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/aws"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/dynamotest"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := dynamotest.New()
	fake.CreateTable("orders", "order_id", "")
	fake.CreateIndex("orders", orders.DefaultCompanyIndex, "company_id", "order_number")
	fake.CreateTable("sequences", "company_id", "name")
	fake.CreateTable("products", "company_id", "product_id")
	fake.CreateTable("idempotency", "idempotency_key", "")

	cfg := &app.Config{
		OrdersTable:        "orders",
		OrdersCompanyIndex: orders.DefaultCompanyIndex,
		SequencesTable:     "sequences",
		ProductsTable:      "products",
		IdempotencyTable:   "idempotency",
		IdempotencyTTL:     time.Hour,
		TxMaxAttempts:      5,
		DefaultCurrency:    "BRL",
		OrderDateMaxAhead:  720 * time.Hour,
	}
	logger := app.NewLogger(&app.Config{LogFormat: "json", AppEnv: "production"})
	return setupRouter(buildDeps(cfg, &aws.AWSClients{DynamoDB: fake}, logger, prometheus.NewRegistry()))
}

func TestHealth(t *testing.T) {
	r := testRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsExposeEngineAndHTTPCollectors(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/companies/C1/orders", strings.NewReader(`{"payment_method_id":"pm-cash"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "U1")
	req.Header.Set("X-Actor-Company", "C1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `estoque_order_operations_total{operation="create",result="ok"} 1`)
	assert.Contains(t, body, "estoque_transaction_attempts")
	assert.Contains(t, body, "estoque_api_http_requests_total")
}
