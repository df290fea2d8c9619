package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/catalog"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/docstore"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/dynamotest"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/idempotency"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/sequence"
)

type testAPI struct {
	router *gin.Engine
	fake   *dynamotest.Fake
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := dynamotest.New()
	fake.CreateTable("orders", "order_id", "")
	fake.CreateIndex("orders", orders.DefaultCompanyIndex, "company_id", "order_number")
	fake.CreateTable("sequences", "company_id", "name")
	fake.CreateTable("products", "company_id", "product_id")
	fake.CreateTable("idempotency", "idempotency_key", "")
	fake.Put("products", catalog.Seed{CompanyID: "C1", ProductID: "prod_A", Description: "Água", OnHand: 10, UnitOfMeasure: "UN"}.Item())
	fake.Put("products", catalog.Seed{CompanyID: "C1", ProductID: "prod_B", Description: "Pão", OnHand: 3, UnitOfMeasure: "UN"}.Item())

	store := docstore.New(fake, docstore.WithBackoff(0))
	repo := orders.NewRepository(store, sequence.NewCounter(store, "sequences"),
		catalog.NewReader(store, "products"), orders.RepositoryConfig{OrdersTable: "orders"}, nil)
	svc := orders.NewService(repo, orders.ServiceConfig{Currency: "BRL"})

	r := gin.New()
	RegisterOrdersRoutes(r, HandlerConfig{
		Service:         svc,
		Idempotency:     idempotency.NewStore(fake, "idempotency", 48*time.Hour),
		DefaultCurrency: "BRL",
	})
	return &testAPI{router: r, fake: fake}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderActorID, "U1")
	req.Header.Set(HeaderActorName, "Ana")
	req.Header.Set(HeaderActorCompany, "C1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) onHand(t *testing.T, productID string) int64 {
	t.Helper()
	n, ok := docstore.Int(a.fake.Item("products", docstore.Item{"company_id": docstore.S("C1"), "product_id": docstore.S(productID)}), "quantity_on_hand")
	require.True(t, ok)
	return n
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) OrderResponse {
	t.Helper()
	var o OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o), w.Body.String())
	return o
}

const walkInBody = `{"payment_method_id":"pm-cash","items":[{"product_id":"prod_A","description":"Água","quantity":2,"unit_price":"15.00"}],"total_amount":"30.00"}`

func TestCreateAndGetOrder(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/companies/C1/orders", walkInBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeOrder(t, w)
	assert.Equal(t, "000001", created.OrderNumber)
	assert.Equal(t, "30.00", created.TotalAmount)
	assert.Equal(t, "BRL", created.Currency)
	assert.Equal(t, "PENDING", created.DeliveryStatus)
	assert.Equal(t, "Pendente", created.DeliveryStatusLabel)
	assert.Equal(t, "Ativo", created.StatusLabel)
	assert.NotNil(t, created.Audit["created"].At)
	assert.Equal(t, "/companies/C1/orders/"+created.ID, w.Header().Get("Location"))

	w = api.do(t, http.MethodGet, "/companies/C1/orders/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.OrderNumber, decodeOrder(t, w).OrderNumber)
}

func TestCreate_IdempotencyKeyReplays(t *testing.T) {
	api := newTestAPI(t)

	first := api.do(t, http.MethodPost, "/companies/C1/orders", walkInBody, HeaderIdempotency, "abc")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := api.do(t, http.MethodPost, "/companies/C1/orders", walkInBody, HeaderIdempotency, "abc")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, api.fake.Items("orders"), 1)

	other := api.do(t, http.MethodPost, "/companies/C1/orders", `{"payment_method_id":"pm-pix"}`, HeaderIdempotency, "abc")
	assert.Equal(t, http.StatusUnprocessableEntity, other.Code)
}

func TestCreate_FailedAttemptReleasesKey(t *testing.T) {
	api := newTestAPI(t)
	body := `{"payment_method_id":"pm","delivery_status":"IN_TRANSIT","items":[{"product_id":"prod_B","description":"Pão","quantity":5,"unit_price":"1.00"}]}`

	w := api.do(t, http.MethodPost, "/companies/C1/orders", body, HeaderIdempotency, "k1")
	require.Equal(t, http.StatusConflict, w.Code)
	var failure map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
	assert.Equal(t, apperr.KindInsufficient, failure["error"])
	assert.Equal(t, "prod_B", failure["product_id"])
	assert.EqualValues(t, 3, failure["available"])
	assert.EqualValues(t, 5, failure["requested"])

	// Restocked, the same key may be used again.
	api.fake.Put("products", catalog.Seed{CompanyID: "C1", ProductID: "prod_B", Description: "Pão", OnHand: 8, UnitOfMeasure: "UN"}.Item())
	w = api.do(t, http.MethodPost, "/companies/C1/orders", body, HeaderIdempotency, "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, decodeOrder(t, w).StockReduction)
}

func TestUpdateDeleteRestoreFlow(t *testing.T) {
	api := newTestAPI(t)
	created := decodeOrder(t, api.do(t, http.MethodPost, "/companies/C1/orders", walkInBody))
	path := "/companies/C1/orders/" + created.ID

	w := api.do(t, http.MethodPut, path, `{"payment_method_id":"pm-cash","delivery_status":"IN_TRANSIT","items":[{"product_id":"prod_A","description":"Água","quantity":2,"unit_price":"15.00"}]}`,
		HeaderActorID, "U2", HeaderActorName, "Bruno")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	shipped := decodeOrder(t, w)
	assert.True(t, shipped.StockReduction)
	assert.Equal(t, "000001", shipped.OrderNumber)
	assert.Equal(t, "U2", shipped.Audit["updated"].ByID)

	w = api.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "DELETED", decodeOrder(t, w).Status)

	w = api.do(t, http.MethodGet, "/companies/C1/orders?status=deleted", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Orders, 1)
	assert.Equal(t, 1, list.DeletedCount)

	w = api.do(t, http.MethodPut, path, `{"payment_method_id":"pm-cash"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, path+"/restore", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ACTIVE", decodeOrder(t, w).Status)
}

func TestUpdate_ShippedItemsCannotChange(t *testing.T) {
	api := newTestAPI(t)
	body := `{"payment_method_id":"pm-cash","delivery_status":"IN_TRANSIT","items":[{"product_id":"prod_A","description":"Água","quantity":2,"unit_price":"15.00"}]}`
	w := api.do(t, http.MethodPost, "/companies/C1/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeOrder(t, w)
	require.True(t, created.StockReduction)
	require.Equal(t, int64(8), api.onHand(t, "prod_A"))

	w = api.do(t, http.MethodPut, "/companies/C1/orders/"+created.ID,
		`{"payment_method_id":"pm-cash","delivery_status":"IN_TRANSIT","items":[`+
			`{"product_id":"prod_A","description":"Água","quantity":9,"unit_price":"15.00"},`+
			`{"product_id":"prod_B","description":"Pão","quantity":3,"unit_price":"1.00"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"field":"items"`)
	assert.Equal(t, int64(8), api.onHand(t, "prod_A"))
	assert.Equal(t, int64(3), api.onHand(t, "prod_B"))

	w = api.do(t, http.MethodGet, "/companies/C1/orders/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	stored := decodeOrder(t, w)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, int64(2), stored.Items[0].Quantity)
}

func TestDeleteDeliveredIsConflict(t *testing.T) {
	api := newTestAPI(t)
	body := `{"payment_method_id":"pm","delivery_status":"DELIVERED","items":[{"product_id":"prod_A","description":"Água","quantity":1,"unit_price":"1.00"}]}`
	created := decodeOrder(t, api.do(t, http.MethodPost, "/companies/C1/orders", body))

	w := api.do(t, http.MethodDelete, "/companies/C1/orders/"+created.ID, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), apperr.KindDeliveredDelete)
}

func TestActorAndCompanyChecks(t *testing.T) {
	api := newTestAPI(t)
	created := decodeOrder(t, api.do(t, http.MethodPost, "/companies/C1/orders", walkInBody))

	w := api.do(t, http.MethodGet, "/companies/C2/orders", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodGet, "/companies/C1/orders", "", HeaderActorID, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// An order id of another company is reported as missing.
	w = api.do(t, http.MethodGet, "/companies/C2/orders/"+created.ID, "", HeaderActorCompany, "C2")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/companies/C1/orders/ord_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/companies/C1/orders?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/companies/C1/orders", `{"payment_method_id":"pm","items":[{"product_id":"prod_Z","description":"?","quantity":1,"unit_price":"1.00"}],"delivery_status":"IN_TRANSIT"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), apperr.KindProductMissing)

	w = api.do(t, http.MethodPost, "/companies/C1/orders", `{"payment_method_id":"pm","total_amount":"1.00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tests := map[string]int{
		apperr.KindPermission:    http.StatusForbidden,
		apperr.KindQuota:         http.StatusTooManyRequests,
		apperr.KindUnavailable:   http.StatusServiceUnavailable,
		apperr.KindIndexRequired: http.StatusInternalServerError,
		apperr.KindUnexpected:    http.StatusInternalServerError,
	}
	for kind, code := range tests {
		assert.Equal(t, code, statusFor(kind), kind)
	}
}

func TestListResponseShape(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/companies/C1/orders", walkInBody).Code)
	}
	w := api.do(t, http.MethodGet, "/companies/C1/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Orders, 2)
	assert.Equal(t, "000001", list.Orders[0].OrderNumber)
	assert.Equal(t, "000002", list.Orders[1].OrderNumber)
	assert.Zero(t, list.DeletedCount)
}
