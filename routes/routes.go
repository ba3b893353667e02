package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/aravind-gm/oranew/common/auth"
	"github.com/aravind-gm/oranew/controllers"
	"github.com/aravind-gm/oranew/middleware"
)

// WebhookPrefix is the path shared by the gateway callbacks. Gateways retry on
// any non-2xx, so these routes stay outside the per-IP rate limit.
const WebhookPrefix = "/api/payments/webhook"

// Controllers groups the handlers mounted under /api.
type Controllers struct {
	Checkout  *controllers.CheckoutController
	Orders    *controllers.OrderController
	Payments  *controllers.PaymentController
	Coupons   *controllers.CouponController
	Returns   *controllers.ReturnController
	Cart      *controllers.CartController
	Inventory *controllers.InventoryController
}

// RegisterRoutes sets up every /api route. Webhooks authenticate by
// signature, the availability read is public, everything else needs a caller.
func RegisterRoutes(r *gin.Engine, h Controllers, tokens *auth.TokenParser) {
	api := r.Group("/api")

	// Public routes
	r.POST(WebhookPrefix, h.Payments.Webhook)
	r.POST(WebhookPrefix+"/stripe", h.Payments.StripeWebhook)
	api.GET("/inventory/:productId", h.Inventory.GetAvailability)

	user := api.Group("")
	user.Use(middleware.AuthMiddleware(tokens))
	user.POST("/checkout", h.Checkout.Checkout)

	user.GET("/orders", h.Orders.GetOrders)
	user.GET("/orders/:id", h.Orders.GetOrderByID)
	user.POST("/orders/:id/cancel", h.Orders.CancelOrder)
	user.POST("/orders/:id/return", h.Orders.RequestReturn)

	user.POST("/payments/intent", h.Payments.CreatePaymentIntent)
	user.GET("/payments/:orderId", h.Payments.GetPayment)

	user.POST("/coupons/:code/validate", h.Coupons.ValidateCoupon)
	user.POST("/coupons/:code/redeem", h.Coupons.RedeemCoupon)

	user.GET("/cart", h.Cart.GetCart)
	user.PUT("/cart/items", h.Cart.SetItem)
	user.DELETE("/cart/items/:productId", h.Cart.RemoveItem)
	user.DELETE("/cart", h.Cart.ClearCart)

	// Admin-only routes
	admin := user.Group("/admin")
	admin.Use(middleware.AdminOnly())
	admin.POST("/orders/:id/cancel", h.Orders.AdminCancelOrder)
	admin.PATCH("/orders/:id/status", h.Orders.UpdateOrderStatus)

	admin.GET("/returns", h.Returns.ListReturns)
	admin.POST("/returns/:id/approve", h.Returns.ApproveReturn)
	admin.POST("/returns/:id/reject", h.Returns.RejectReturn)
	admin.POST("/refunds", h.Returns.ProcessRefund)

	admin.POST("/inventory/cleanup", h.Inventory.CleanupExpiredLocks)
	admin.PUT("/inventory/:productId", h.Inventory.AdjustStock)

	admin.POST("/coupons", h.Coupons.CreateCoupon)
	admin.GET("/coupons", h.Coupons.ListCoupons)
	admin.GET("/coupons/:id", h.Coupons.GetCoupon)
	admin.DELETE("/coupons/:id", h.Coupons.DeactivateCoupon)
}
