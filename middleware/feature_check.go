package middleware

import (
	"net/http"

	"brand-deck-platform/models"
	"brand-deck-platform/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// FeatureCheckMiddleware checks if a feature is enabled for the brand
type FeatureCheckMiddleware struct {
	brandsCollection *mongo.Collection
}

func NewFeatureCheckMiddleware(brandsCollection *mongo.Collection) *FeatureCheckMiddleware {
	return &FeatureCheckMiddleware{
		brandsCollection: brandsCollection,
	}
}

// loadBrand resolves the caller's brand from the auth context. A false
// return means the response has already been written.
func (f *FeatureCheckMiddleware) loadBrand(c *gin.Context) (*models.Brand, bool) {
	brandID := GetBrandID(c)
	if brandID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error_code": "unauthorized",
			"message":    "Brand ID not found in context",
		})
		c.Abort()
		return nil, false
	}

	brandOID, err := primitive.ObjectIDFromHex(brandID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_brand_id",
			"message":    "Invalid brand ID",
		})
		c.Abort()
		return nil, false
	}

	var brand models.Brand
	if err := f.brandsCollection.FindOne(c.Request.Context(), bson.M{"_id": brandOID}).Decode(&brand); err != nil {
		if err == mongo.ErrNoDocuments {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "brand_not_found",
				"message":    "Brand not found",
			})
			c.Abort()
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "internal_error",
			"message":    "Failed to retrieve brand permissions",
		})
		c.Abort()
		return nil, false
	}

	return &brand, true
}

// RequireFeature checks if a specific feature is enabled for the brand.
// Platform admins bypass the check since they carry no brand.
func (f *FeatureCheckMiddleware) RequireFeature(featureName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if role := GetRole(c); role == "superadmin" || role == "admin" {
			c.Next()
			return
		}

		brand, ok := f.loadBrand(c)
		if !ok {
			return
		}

		// An empty feature list leaves every feature enabled
		if !services.HasFeature(brand.Permissions.EnabledFeatures, featureName) {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "feature_disabled",
				"message":    "This feature is not enabled for your account. Please contact your administrator.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireNavigationItem checks if a navigation item is allowed for the brand
func (f *FeatureCheckMiddleware) RequireNavigationItem(itemName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if role := GetRole(c); role == "superadmin" || role == "admin" {
			c.Next()
			return
		}

		brand, ok := f.loadBrand(c)
		if !ok {
			return
		}

		if !services.HasNavigationItem(brand.Permissions.AllowedNavigationItems, itemName) {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "navigation_item_disabled",
				"message":    "This feature is not enabled for your account. Please contact your administrator.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
