package routes

import (
	"net/http"

	"brand-deck-platform/middleware"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// resolveBrandID determines which brand a request operates on. Members
// are pinned to their own brand; platform admins pick one with the
// brand_id query parameter. A false return means the error response has
// already been written.
func resolveBrandID(c *gin.Context) (primitive.ObjectID, bool) {
	brandID := middleware.GetBrandID(c)

	if middleware.IsAdmin(c) {
		if override := c.Query("brand_id"); override != "" {
			brandID = override
		}
	}

	if brandID == "" {
		c.JSON(http.StatusForbidden, gin.H{
			"error_code": "brand_required",
			"message":    "A brand is required for this operation",
		})
		c.Abort()
		return primitive.NilObjectID, false
	}

	objID, err := primitive.ObjectIDFromHex(brandID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_brand_id",
			"message":    "Invalid brand ID format",
		})
		c.Abort()
		return primitive.NilObjectID, false
	}

	return objID, true
}

// parseObjectIDParam reads a path parameter as a Mongo object id. A
// false return means the error response has already been written.
func parseObjectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	objID, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_id",
			"message":    "Invalid " + name + " format",
		})
		c.Abort()
		return primitive.NilObjectID, false
	}
	return objID, true
}
