package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

// CouponController handles HTTP requests for coupon operations.
type CouponController struct {
	couponService services.CouponService
}

func NewCouponController(couponService services.CouponService) *CouponController {
	return &CouponController{couponService: couponService}
}

// ValidateCoupon handles POST /api/coupons/:code/validate.
func (cc *CouponController) ValidateCoupon(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.ValidateCouponRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, svcErr := cc.couponService.Validate(c.Request.Context(), c.Param("code"), req.OrderAmount, userID)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RedeemCoupon handles POST /api/coupons/:code/redeem.
func (cc *CouponController) RedeemCoupon(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.RedeemCouponRequest
	if !bindJSON(c, &req) {
		return
	}

	result, svcErr := cc.couponService.Redeem(c.Request.Context(), c.Param("code"), req.OrderID, userID)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateCoupon handles POST /api/admin/coupons.
func (cc *CouponController) CreateCoupon(c *gin.Context) {
	var req models.CreateCouponRequest
	if !bindJSON(c, &req) {
		return
	}

	coupon, svcErr := cc.couponService.CreateCoupon(c.Request.Context(), &req)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"coupon": coupon})
}

func (cc *CouponController) GetCoupon(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	coupon, svcErr := cc.couponService.GetCoupon(c.Request.Context(), id)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupon": coupon})
}

func (cc *CouponController) ListCoupons(c *gin.Context) {
	page := parsePaginationParams(c)
	coupons, total, svcErr := cc.couponService.ListCoupons(c.Request.Context(), page)
	if svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons, "meta": listMeta(page, total)})
}

// DeactivateCoupon handles DELETE /api/admin/coupons/:id.
func (cc *CouponController) DeactivateCoupon(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if svcErr := cc.couponService.DeactivateCoupon(c.Request.Context(), id); svcErr != nil {
		respondError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Coupon deactivated"})
}
