// Package handlers exposes the order engine over HTTP with gin.
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/audit"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/idempotency"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/orders"
	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/validation"
)

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Service *orders.Service
	// Idempotency is optional; without it Idempotency-Key is ignored.
	Idempotency     *idempotency.Store
	DefaultCurrency string
	Logger          *slog.Logger
}

type ordersHandler struct {
	svc      *orders.Service
	idem     *idempotency.Store
	v        *validatorv10.Validate
	currency string
	logger   *slog.Logger
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &ordersHandler{
		svc:      cfg.Service,
		idem:     cfg.Idempotency,
		v:        validation.New(),
		currency: cfg.DefaultCurrency,
		logger:   logger,
	}

	g := r.Group("/companies/:company_id/orders", h.requireActor)
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:order_id", h.get)
	g.PUT("/:order_id", h.update)
	g.DELETE("/:order_id", h.delete)
	g.POST("/:order_id/restore", h.restore)
}

// requireActor refuses requests without an actor or from another company.
func (h *ordersHandler) requireActor(c *gin.Context) {
	actor := actorFrom(c)
	if !actor.Valid() || actor.CompanyID != c.Param("company_id") {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperr.KindPermission})
		return
	}
	c.Next()
}

func (h *ordersHandler) create(c *gin.Context) {
	ctx := c.Request.Context()
	companyID := c.Param("company_id")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	var req validation.OrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	key := c.GetHeader(HeaderIdempotency)
	if key != "" && h.idem != nil {
		claim, rec, err := h.idem.Acquire(ctx, companyID, key, idempotency.HashRequest(body))
		if err != nil {
			h.logger.Error("idempotency check failed", slog.String("company_id", companyID), slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency_check_failed"})
			return
		}
		switch claim {
		case idempotency.ClaimReplay:
			c.Header("Idempotent-Replayed", "true")
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		case idempotency.ClaimInProgress:
			c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
			return
		case idempotency.ClaimMismatch:
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused"})
			return
		}
	} else {
		key = ""
	}

	draft := orders.New(companyID, "", nil, orders.ClientSnapshot{}, orders.DeliveryPending)
	if err := applyRequest(draft, req, h.currency); err != nil {
		h.fail(c, companyID, key, err)
		return
	}

	o, err := h.svc.Create(ctx, draft, actorFrom(c))
	if err != nil {
		h.fail(c, companyID, key, err)
		return
	}

	resp, err := json.Marshal(toResponse(o))
	if err != nil {
		h.fail(c, companyID, key, &apperr.UnexpectedError{Details: "encode response", Err: err})
		return
	}
	if key != "" {
		if err := h.idem.MarkDone(ctx, companyID, key, o.ID, string(resp), http.StatusCreated); err != nil {
			h.logger.Warn("idempotency mark done failed", slog.String("order_id", o.ID), slog.Any("error", err))
		}
	}
	c.Header("Location", fmt.Sprintf("/companies/%s/orders/%s", companyID, o.ID))
	c.Data(http.StatusCreated, "application/json; charset=utf-8", resp)
}

// fail releases a held idempotency key and writes err.
func (h *ordersHandler) fail(c *gin.Context, companyID, key string, err error) {
	if key != "" {
		if merr := h.idem.MarkFailed(c.Request.Context(), companyID, key, apperr.Kind(err)); merr != nil {
			h.logger.Warn("idempotency mark failed failed", slog.String("company_id", companyID), slog.Any("error", merr))
		}
	}
	writeError(c, h.logger, err)
}

// load fetches the order and hides orders of other companies.
func (h *ordersHandler) load(c *gin.Context) (*orders.Order, bool) {
	orderID := c.Param("order_id")
	o, err := h.svc.Get(c.Request.Context(), orderID)
	if err == nil && o.CompanyID != c.Param("company_id") {
		err = &apperr.NotFoundError{OrderID: orderID}
	}
	if err != nil {
		writeError(c, h.logger, err)
		return nil, false
	}
	return o, true
}

func (h *ordersHandler) get(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toResponse(o))
}

func (h *ordersHandler) list(c *gin.Context) {
	filter, err := orders.ParseStatusFilter(c.Query("status"))
	if err != nil {
		writeError(c, h.logger, apperr.Invalid("status", "%v", err))
		return
	}
	list, deleted, err := h.svc.List(c.Request.Context(), c.Param("company_id"), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp := ListResponse{Orders: make([]OrderResponse, 0, len(list)), DeletedCount: deleted}
	for _, o := range list {
		resp.Orders = append(resp.Orders, toResponse(o))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ordersHandler) update(c *gin.Context) {
	var req validation.OrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, ok := h.load(c)
	if !ok {
		return
	}
	if o.Status == audit.StatusDeleted {
		writeError(c, h.logger, apperr.Invalid("status", "order %s is deleted, restore it first", o.ID))
		return
	}
	if err := applyRequest(o, req, o.TotalAmount.Currency()); err != nil {
		writeError(c, h.logger, err)
		return
	}
	updated, err := h.svc.Update(c.Request.Context(), o, actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(updated))
}

func (h *ordersHandler) delete(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), o, actorFrom(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(o))
}

func (h *ordersHandler) restore(c *gin.Context) {
	o, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.svc.Restore(c.Request.Context(), o, actorFrom(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(o))
}
