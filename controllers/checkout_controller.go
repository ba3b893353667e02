package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

type CheckoutController struct {
	checkout services.CheckoutService
}

func NewCheckoutController(checkout services.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// Checkout handles POST /api/checkout. An Idempotency-Key header makes the
// request safe to retry: a replay answers 200 with the original order.
func (cc *CheckoutController) Checkout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	order, replayed, svcErr := cc.checkout.Checkout(c.Request.Context(), userID, &req, c.GetHeader("Idempotency-Key"))
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"order": order})
}
