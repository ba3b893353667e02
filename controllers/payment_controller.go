package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aravind-gm/oranew/common/logger"
	"github.com/aravind-gm/oranew/middleware"
	"github.com/aravind-gm/oranew/models"
	awspkg "github.com/aravind-gm/oranew/pkg/aws"
	"github.com/aravind-gm/oranew/services"
)

// WebhookConfig carries the verifiers and shared secrets for the gateway
// webhooks. An empty secret rejects every delivery on that route.
type WebhookConfig struct {
	Verifier       services.WebhookVerifier
	Secret         string
	StripeVerifier services.WebhookVerifier
	StripeSecret   string
}

type PaymentController struct {
	payments services.PaymentService
	webhooks WebhookConfig
	metrics  *services.BusinessMetrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewPaymentController(payments services.PaymentService, webhooks WebhookConfig, metrics *services.BusinessMetrics, logger *zap.Logger) *PaymentController {
	if webhooks.Verifier == nil {
		webhooks.Verifier = services.HMACVerifier{}
	}
	if webhooks.StripeVerifier == nil {
		webhooks.StripeVerifier = services.StripeVerifier{}
	}
	return &PaymentController{
		payments: payments,
		webhooks: webhooks,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

type webhookParser func(raw []byte, receivedAt time.Time) (*models.PaymentEvent, error)

// Webhook handles POST /api/payments/webhook, signed with X-Webhook-Signature.
func (pc *PaymentController) Webhook(c *gin.Context) {
	pc.handleWebhook(c, "X-Webhook-Signature", pc.webhooks.Verifier, pc.webhooks.Secret, services.ParseWebhookEnvelope)
}

// StripeWebhook handles POST /api/payments/webhook/stripe.
func (pc *PaymentController) StripeWebhook(c *gin.Context) {
	pc.handleWebhook(c, "Stripe-Signature", pc.webhooks.StripeVerifier, pc.webhooks.StripeSecret, services.ParseStripeEvent)
}

// handleWebhook answers 401 only for a bad signature. Every other outcome,
// including a body that cannot be read, gets 200 so the gateway stops
// redelivering; failures are logged.
func (pc *PaymentController) handleWebhook(c *gin.Context, header string, verifier services.WebhookVerifier, secret string, parse webhookParser) {
	log := logger.WithTrace(c.Request.Context(), pc.logger)

	raw, err := c.GetRawData()
	if err != nil {
		log.Error("Failed to read webhook body", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if !verifier.Verify(raw, c.GetHeader(header), secret) {
		pc.metrics.Inc(awspkg.MetricWebhookRejected)
		log.Warn("Webhook signature verification failed", zap.String("path", c.FullPath()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature", "code": services.CodeUnauthorized})
		return
	}

	event, err := parse(raw, pc.now().UTC())
	switch {
	case errors.Is(err, services.ErrUnhandledEvent):
		log.Info("Unhandled webhook event type", zap.Error(err))
	case err != nil:
		log.Error("Failed to parse webhook", zap.Error(err))
	default:
		if err := pc.payments.HandlePaymentEvent(c.Request.Context(), event); err != nil {
			log.Error("Failed to apply payment event",
				zap.String("event", event.Event),
				zap.String("order_id", event.OrderID.String()),
				zap.String("transaction_id", event.TransactionID),
				zap.Error(err),
			)
		}
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// CreatePaymentIntent handles POST /api/payments/intent.
func (pc *PaymentController) CreatePaymentIntent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.PaymentIntentRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, svcErr := pc.payments.CreatePaymentIntent(c.Request.Context(), userID, req.OrderID)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": payment})
}

// GetPayment handles GET /api/payments/:orderId.
func (pc *PaymentController) GetPayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "orderId")
	if !ok {
		return
	}

	payment, svcErr := pc.payments.GetPayment(c.Request.Context(), userID, orderID, middleware.IsAdmin(c))
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}
