package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"brand-deck-platform/internal/auth"
	"brand-deck-platform/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var allowedHeaders = []string{
	"Origin", "Content-Type", "Authorization",
	"X-Brand-ID", "X-Embed-Secret", "X-Refresh-Token", "X-Request-Time", "X-Correlation-ID", "X-Request-ID",
}

// CORSMiddlewareWithOrigins builds the global CORS policy from the
// configured origin list. The embed surface runs its own validator on top.
func CORSMiddlewareWithOrigins(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     allowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(config)
}

// EmbedCORSValidator gates the embed token endpoint. The embedding page
// proves it belongs to the brand with the embed secret, and its origin
// must be on the brand's allowlist. A viewer token scoped to that
// origin is placed in the context for the handler to return.
func EmbedCORSValidator(db *mongo.Database, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		brandID := c.GetHeader("X-Brand-ID")
		embedSecret := c.GetHeader("X-Embed-Secret")

		if origin == "" || brandID == "" || embedSecret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error_code": "invalid_embed_request",
				"message":    "Invalid embed request",
			})
			return
		}

		brand, err := getBrandConfig(c.Request.Context(), db, brandID)
		if err != nil || brand.EmbedSecret != embedSecret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error_code": "invalid_credentials",
				"message":    "Invalid credentials",
			})
			return
		}

		if !brand.Theme.AllowEmbedding {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error_code": "embedding_disabled",
				"message":    "Embedding disabled",
			})
			return
		}

		if len(brand.AllowedOrigins) > 0 && !isOriginAllowed(origin, brand.AllowedOrigins) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error_code": "origin_not_allowed",
				"message":    "Origin not allowed",
			})
			return
		}

		// Set CORS headers for this specific origin
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		viewerToken, err := auth.IssueViewerToken(brandID, origin, rdb)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error_code": "token_issue_failed",
				"message":    "Failed to issue viewer token",
			})
			return
		}
		c.Set("viewer_token", viewerToken)
		c.Set("is_embed", true)
		c.Set("brand_id", brandID)

		c.Next()
	}
}

func getBrandConfig(ctx context.Context, db *mongo.Database, brandID string) (*models.Brand, error) {
	objectID, err := primitive.ObjectIDFromHex(brandID)
	if err != nil {
		return nil, err
	}

	var brand models.Brand
	err = db.Collection("brands").FindOne(ctx, bson.M{"_id": objectID}).Decode(&brand)
	return &brand, err
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if matchOriginPattern(origin, allowed) {
			return true
		}
	}
	return false
}

// Support wildcard patterns like https://*.example.com
func matchOriginPattern(origin, pattern string) bool {
	if pattern == "*" {
		return true // Dangerous, but explicit
	}
	if strings.HasPrefix(pattern, "*.") {
		domain := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(origin, domain)
	}
	return origin == pattern
}

func isValidOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://")
}

// originBrandID picks the brand whose allowlist is being edited: the id
// path param when the route carries one, otherwise the caller's own
// brand. On failure the response has been written.
func originBrandID(c *gin.Context) (primitive.ObjectID, bool) {
	raw := c.Param("id")
	if raw == "" {
		raw = GetBrandID(c)
	}
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error_code": "unauthorized",
			"message":    "Unauthorized",
		})
		return primitive.NilObjectID, false
	}

	objectID, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error_code": "invalid_brand_id",
			"message":    "Invalid brand ID",
		})
		return primitive.NilObjectID, false
	}
	return objectID, true
}

// AddAllowedOrigin whitelists an embedding origin for a brand.
func AddAllowedOrigin(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Origin string `json:"origin" binding:"required"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_request",
				"message":    "Invalid request",
			})
			return
		}

		if !isValidOrigin(req.Origin) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_origin_format",
				"message":    "Invalid origin format",
			})
			return
		}

		objectID, ok := originBrandID(c)
		if !ok {
			return
		}

		_, err = db.Collection("brands").UpdateOne(
			c.Request.Context(),
			bson.M{"_id": objectID},
			bson.M{"$addToSet": bson.M{"allowed_origins": req.Origin}},
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "update_failed",
				"message":    "Failed to update",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "origin added"})
	}
}

// RemoveAllowedOrigin removes an embedding origin from the allowlist.
func RemoveAllowedOrigin(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Origin string `json:"origin" binding:"required"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_request",
				"message":    "Invalid request",
			})
			return
		}

		objectID, ok := originBrandID(c)
		if !ok {
			return
		}

		_, err = db.Collection("brands").UpdateOne(
			c.Request.Context(),
			bson.M{"_id": objectID},
			bson.M{"$pull": bson.M{"allowed_origins": req.Origin}},
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "update_failed",
				"message":    "Failed to update",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "origin removed"})
	}
}
