package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aravind-gm/oranew/middleware"
	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

type OrderController struct {
	orders  services.OrderService
	returns services.ReturnService
}

func NewOrderController(orders services.OrderService, returns services.ReturnService) *OrderController {
	return &OrderController{orders: orders, returns: returns}
}

// GetOrders returns paginated orders for the authenticated user, or all
// orders for admins.
func (oc *OrderController) GetOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page := parsePaginationParams(c)

	orders, total, svcErr := oc.orders.ListOrders(c.Request.Context(), userID, middleware.IsAdmin(c), page)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "meta": listMeta(page, total)})
}

func (oc *OrderController) GetOrderByID(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	order, svcErr := oc.orders.GetOrder(c.Request.Context(), userID, orderID, middleware.IsAdmin(c))
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (oc *OrderController) CancelOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CancelOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	order, svcErr := oc.orders.CancelOrder(c.Request.Context(), userID, orderID, req.Reason)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// RequestReturn handles POST /api/orders/:id/return.
func (oc *OrderController) RequestReturn(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CreateReturnRequest
	if !bindJSON(c, &req) {
		return
	}

	ret, svcErr := oc.returns.RequestReturn(c.Request.Context(), userID, orderID, &req)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"return": ret})
}

// AdminCancelOrder handles POST /api/admin/orders/:id/cancel.
func (oc *OrderController) AdminCancelOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.CancelOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	order, svcErr := oc.orders.AdminCancelOrder(c.Request.Context(), orderID, req.Reason)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// UpdateOrderStatus handles PATCH /api/admin/orders/:id/status.
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateOrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, svcErr := oc.orders.UpdateOrderStatus(c.Request.Context(), orderID, req.Status)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
