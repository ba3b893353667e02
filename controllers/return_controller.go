package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

// ReturnController serves the admin side of returns and refunds.
type ReturnController struct {
	returns services.ReturnService
}

func NewReturnController(returns services.ReturnService) *ReturnController {
	return &ReturnController{returns: returns}
}

func (rc *ReturnController) ListReturns(c *gin.Context) {
	page := parsePaginationParams(c)
	returns, total, svcErr := rc.returns.ListReturns(c.Request.Context(), models.ReturnStatus(c.Query("status")), page)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"returns": returns, "meta": listMeta(page, total)})
}

func (rc *ReturnController) ApproveReturn(c *gin.Context) {
	rc.resolve(c, rc.returns.ApproveReturn)
}

func (rc *ReturnController) RejectReturn(c *gin.Context) {
	rc.resolve(c, rc.returns.RejectReturn)
}

func (rc *ReturnController) resolve(c *gin.Context, fn func(context.Context, uuid.UUID) (*models.Return, *services.ServiceError)) {
	returnID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ret, svcErr := fn(c.Request.Context(), returnID)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"return": ret})
}

// ProcessRefund handles POST /api/admin/refunds. Refunding a return twice
// answers with the stored refund.
func (rc *ReturnController) ProcessRefund(c *gin.Context) {
	var req models.RefundRequest
	if !bindJSON(c, &req) {
		return
	}

	ret, svcErr := rc.returns.ProcessRefund(c.Request.Context(), &req)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"return": ret})
}
