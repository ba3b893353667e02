package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

type CartController struct {
	cart services.CartService
}

func NewCartController(cart services.CartService) *CartController {
	return &CartController{cart: cart}
}

func (cc *CartController) GetCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	view, svcErr := cc.cart.GetCart(c.Request.Context(), userID)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SetItem handles PUT /api/cart/items, replacing the quantity of the product.
func (cc *CartController) SetItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	view, svcErr := cc.cart.SetItem(c.Request.Context(), userID, &req)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := uuidParam(c, "productId")
	if !ok {
		return
	}
	view, svcErr := cc.cart.RemoveItem(c.Request.Context(), userID, productID)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (cc *CartController) ClearCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if svcErr := cc.cart.ClearCart(c.Request.Context(), userID); svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.Status(http.StatusNoContent)
}
