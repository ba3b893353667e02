package services

import (
	"errors"
	"math"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/aravind-gm/oranew/common/errors"
)

// ServiceError represents a typed error with an HTTP status code and a
// machine readable code.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeProductUnavailable   = "PRODUCT_UNAVAILABLE"
	CodeEmptyCart            = "EMPTY_CART"
	CodeInvalidQuantity      = "INVALID_QUANTITY"
	CodeAddressRequired      = "ADDRESS_REQUIRED"
	CodeAddressNotFound      = "ADDRESS_NOT_FOUND"
	CodeOrderNotFound        = "ORDER_NOT_FOUND"
	CodeOrderNotCancellable  = "ORDER_NOT_CANCELLABLE"
	CodeOrderRequiresRefund  = "ORDER_REQUIRES_REFUND"
	CodeInvalidTransition    = "INVALID_STATUS_TRANSITION"
	CodeOrderNotPayable      = "ORDER_NOT_PAYABLE"
	CodeCouponNotFound       = "COUPON_NOT_FOUND"
	CodeCouponInactive       = "COUPON_INACTIVE"
	CodeCouponNotStarted     = "COUPON_NOT_STARTED"
	CodeCouponExpired        = "COUPON_EXPIRED"
	CodeCouponUsageLimit     = "COUPON_USAGE_LIMIT_REACHED"
	CodeCouponMinOrderNotMet = "COUPON_MIN_ORDER_NOT_MET"
	CodeCouponExists         = "COUPON_EXISTS"
	CodeCouponNotApplied     = "COUPON_NOT_APPLIED_TO_ORDER"
	CodeReturnNotFound       = "RETURN_NOT_FOUND"
	CodeReturnNotAllowed     = "RETURN_NOT_ALLOWED"
	CodeReturnExists         = "RETURN_EXISTS"
	CodeReturnNotApproved    = "RETURN_NOT_APPROVED"
	CodeInvalidRefundAmount  = "INVALID_REFUND_AMOUNT"
	CodePaymentGateway       = "PAYMENT_GATEWAY_ERROR"
	CodeCartItemNotFound     = "CART_ITEM_NOT_FOUND"
)

func newError(status int, code, message string) *ServiceError {
	return &ServiceError{StatusCode: status, Code: code, Message: message}
}

func badRequest(code, message string) *ServiceError {
	return newError(http.StatusBadRequest, code, message)
}

func notFoundError(code, message string) *ServiceError {
	return newError(http.StatusNotFound, code, message)
}

// internalError logs err and hides it behind a generic message. Exhausted
// transient failures become 503 so clients know to retry.
func internalError(logger *zap.Logger, message string, err error) *ServiceError {
	if apperrors.IsRetryable(err) {
		logger.Warn(message, zap.Error(err))
		return &ServiceError{
			StatusCode: http.StatusServiceUnavailable,
			Code:       CodeServiceUnavailable,
			Message:    "Service temporarily unavailable, please retry",
			Err:        err,
		}
	}
	logger.Error(message, zap.Error(err))
	return &ServiceError{StatusCode: http.StatusInternalServerError, Code: CodeInternal, Message: message, Err: err}
}

// asServiceError extracts a *ServiceError returned through an error-typed
// path such as a transaction callback.
func asServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// fromTxError maps the error of a Store.Transaction call.
func fromTxError(logger *zap.Logger, message string, err error) *ServiceError {
	if svcErr, ok := asServiceError(err); ok {
		return svcErr
	}
	return internalError(logger, message, err)
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// toPaise converts rupees to the gateway's minor unit.
func toPaise(v float64) int64 {
	return int64(math.Round(v * 100))
}
