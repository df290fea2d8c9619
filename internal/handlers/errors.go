package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/apperr"
)

// statusFor maps an engine error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindProductMissing, apperr.KindInsufficient, apperr.KindDeliveredDelete:
		return http.StatusConflict
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindQuota:
		return http.StatusTooManyRequests
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the fields a client needs to act on it.
// Infrastructure details stay in the log.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := apperr.Kind(err)
	code := statusFor(kind)
	body := gin.H{"error": kind}

	var (
		ve  *apperr.ValidationError
		pme *apperr.ProductMissingError
		ise *apperr.InsufficientStockError
		nfe *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		body["field"] = ve.Field
		body["reason"] = ve.Reason
	case errors.As(err, &pme):
		body["product_id"] = pme.ProductID
	case errors.As(err, &ise):
		body["product_id"] = ise.ProductID
		body["available"] = ise.Available
		body["requested"] = ise.Requested
	case errors.As(err, &nfe):
		body["order_id"] = nfe.OrderID
	case errors.Is(err, apperr.ErrDeliveredOrderDelete):
		body["msg"] = err.Error()
	}
	if apperr.Retryable(err) {
		c.Header("Retry-After", "1")
	}

	if code >= http.StatusInternalServerError {
		logger.Error("order request failed",
			slog.String("path", c.FullPath()),
			slog.String("kind", kind),
			slog.Any("error", err))
	}
	c.JSON(code, body)
}
