package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

type InventoryController struct {
	inventory services.InventoryService
}

func NewInventoryController(inventory services.InventoryService) *InventoryController {
	return &InventoryController{inventory: inventory}
}

// GetAvailability handles GET /api/inventory/:productId.
func (ic *InventoryController) GetAvailability(c *gin.Context) {
	productID, ok := uuidParam(c, "productId")
	if !ok {
		return
	}
	availability, svcErr := ic.inventory.Availability(c.Request.Context(), productID)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, availability)
}

// AdjustStock handles PUT /api/admin/inventory/:productId.
func (ic *InventoryController) AdjustStock(c *gin.Context) {
	productID, ok := uuidParam(c, "productId")
	if !ok {
		return
	}
	var req models.AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	availability, svcErr := ic.inventory.AdjustStock(c.Request.Context(), productID, *req.StockQuantity)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, availability)
}

// CleanupExpiredLocks handles POST /api/admin/inventory/cleanup.
func (ic *InventoryController) CleanupExpiredLocks(c *gin.Context) {
	removed, svcErr := ic.inventory.CleanupExpiredLocks(c.Request.Context())
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
