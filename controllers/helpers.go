package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aravind-gm/oranew/middleware"
	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/services"
)

func init() {
	// Report binding failures under the JSON field names clients send.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	}
}

// respondError writes the uniform error envelope for a service error.
func respondError(c *gin.Context, svcErr *services.ServiceError) {
	body := gin.H{"error": svcErr.Message, "code": svcErr.Code}
	if len(svcErr.Details) > 0 {
		body["details"] = svcErr.Details
	}
	c.AbortWithStatusJSON(svcErr.StatusCode, body)
}

func badRequest(c *gin.Context, msg string, details map[string]interface{}) {
	respondError(c, &services.ServiceError{
		StatusCode: http.StatusBadRequest,
		Code:       services.CodeValidation,
		Message:    msg,
		Details:    details,
	})
}

// bindJSON decodes the body into req and reports binding failures per field.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			badRequest(c, "Invalid request", validationDetails(verrs))
			return false
		}
		badRequest(c, "Invalid request body", map[string]interface{}{"body": err.Error()})
		return false
	}
	return true
}

func validationDetails(verrs validator.ValidationErrors) map[string]interface{} {
	details := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			details[field] = "is required"
		case "oneof":
			details[field] = fmt.Sprintf("must be one of [%s]", fe.Param())
		case "gt", "gte", "lt", "lte", "min", "max":
			details[field] = fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
		case "gtfield":
			details[field] = fmt.Sprintf("must be after %s", fe.Param())
		default:
			details[field] = fmt.Sprintf("failed %s validation", fe.Tag())
		}
	}
	return details
}

// uuidParam parses a path parameter, writing a 400 when it is not a UUID.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, fmt.Sprintf("Invalid %s format", name), nil)
		return uuid.Nil, false
	}
	return id, true
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		respondError(c, &services.ServiceError{StatusCode: http.StatusUnauthorized, Code: services.CodeUnauthorized, Message: "Unauthorized"})
		return uuid.Nil, false
	}
	return userID, true
}

// parsePaginationParams extracts and validates pagination parameters.
func parsePaginationParams(c *gin.Context) models.Page {
	const MaxLimit = 100
	const DefaultLimit = 10

	page := models.Page{Page: 1, Limit: DefaultLimit}
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page.Page = p
	}
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil && l > 0 {
		page.Limit = l
		if page.Limit > MaxLimit {
			page.Limit = MaxLimit
		}
	}
	return page
}

func listMeta(page models.Page, total int64) gin.H {
	totalPages := int64(0)
	if page.Limit > 0 {
		totalPages = (total + int64(page.Limit) - 1) / int64(page.Limit)
	}
	return gin.H{
		"page":       page.Page,
		"limit":      page.Limit,
		"total":      total,
		"totalPages": totalPages,
		"hasMore":    total > int64(page.Page*page.Limit),
	}
}
