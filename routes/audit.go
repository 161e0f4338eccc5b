package routes

import (
	"net/http"
	"strconv"
	"time"

	"brand-deck-platform/middleware"
	"brand-deck-platform/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SetupAuditRoutes exposes the hash-chained audit trail. Members read
// their own brand's trail; platform admins can query across brands and
// pull the platform-wide statistics.
func SetupAuditRoutes(
	router *gin.Engine,
	auditor *models.AuditLogger,
	authMiddleware *middleware.AuthMiddleware,
	roleMiddleware *middleware.RoleMiddleware,
) {
	audit := router.Group("/api/audit")
	audit.Use(authMiddleware.RequireAuth(), roleMiddleware.MemberGuard())

	// auditBrandScope resolves which brand the caller may inspect. An
	// empty return for an admin means "all brands".
	auditBrandScope := func(c *gin.Context) (string, bool) {
		if middleware.IsAdmin(c) {
			return c.Query("brand_id"), true
		}
		brandID := middleware.GetBrandID(c)
		if brandID == "" {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "brand_required",
				"message":    "Account is not attached to a brand",
			})
			return "", false
		}
		return brandID, true
	}

	audit.GET("", func(c *gin.Context) {
		brandID, ok := auditBrandScope(c)
		if !ok {
			return
		}

		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
		if err != nil || pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}

		filter := buildAuditFilter(c, brandID)

		events, total, err := auditor.QueryAuditLogs(filter, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "query_failed",
				"message":    "Failed to query audit logs",
			})
			return
		}

		totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
		c.JSON(http.StatusOK, gin.H{
			"events": events,
			"pagination": gin.H{
				"page":        page,
				"page_size":   pageSize,
				"total":       total,
				"total_pages": totalPages,
			},
		})
	})

	audit.GET("/summary", func(c *gin.Context) {
		brandID, ok := auditBrandScope(c)
		if !ok {
			return
		}
		if brandID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "brand_required",
				"message":    "brand_id query parameter is required",
			})
			return
		}

		days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
		if err != nil || days < 1 || days > 365 {
			days = 30
		}

		summary, err := auditor.GetAuditSummary(brandID, days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "summary_failed",
				"message":    "Failed to generate audit summary",
			})
			return
		}

		c.JSON(http.StatusOK, summary)
	})

	// Walks the brand's chain and recomputes every hash link
	audit.GET("/verify", func(c *gin.Context) {
		brandID, ok := auditBrandScope(c)
		if !ok {
			return
		}
		if brandID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "brand_required",
				"message":    "brand_id query parameter is required",
			})
			return
		}

		isValid, err := auditor.VerifyChain(brandID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "verification_failed",
				"message":    "Failed to verify audit chain",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"brand_id": brandID,
			"is_valid": isValid,
			"message":  "Audit chain verification completed",
		})
	})

	admin := audit.Group("")
	admin.Use(roleMiddleware.AdminGuard())

	admin.GET("/stats", func(c *gin.Context) {
		ctx := c.Request.Context()
		col := auditor.Collection()

		totalEvents, err := col.CountDocuments(ctx, bson.M{})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "stats_failed",
				"message":    "Failed to get audit statistics",
			})
			return
		}

		byAction, err := groupCounts(c, col, "$action")
		if err != nil {
			return
		}
		byResource, err := groupCounts(c, col, "$resource")
		if err != nil {
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"total_events":   totalEvents,
			"action_stats":   byAction,
			"resource_stats": byResource,
			"generated_at":   time.Now(),
		})
	})

	admin.GET("/export", func(c *gin.Context) {
		filter := buildAuditFilter(c, c.Query("brand_id"))

		// Export is capped rather than paginated
		events, _, err := auditor.QueryAuditLogs(filter, 1, 10000)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "export_failed",
				"message":    "Failed to export audit logs",
			})
			return
		}

		filename := "audit_logs_" + time.Now().Format("20060102_150405") + ".json"
		c.Header("Content-Disposition", "attachment; filename="+filename)

		c.JSON(http.StatusOK, gin.H{
			"export_info": gin.H{
				"filename":     filename,
				"total_events": len(events),
				"exported_at":  time.Now(),
			},
			"events": events,
		})
	})
}

// groupCounts aggregates event counts grouped by the given field. On
// error the response has already been written.
func groupCounts(c *gin.Context, col *mongo.Collection, field string) ([]bson.M, error) {
	ctx := c.Request.Context()
	pipeline := []bson.M{
		{"$group": bson.M{"_id": field, "count": bson.M{"$sum": 1}}},
		{"$sort": bson.M{"count": -1}},
	}

	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "stats_failed",
			"message":    "Failed to aggregate audit statistics",
		})
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []bson.M
	if err := cursor.All(ctx, &out); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error_code": "stats_failed",
			"message":    "Failed to decode audit statistics",
		})
		return nil, err
	}
	return out, nil
}

// buildAuditFilter translates the supported query parameters into a
// mongo filter. An empty brandID leaves the query unscoped.
func buildAuditFilter(c *gin.Context, brandID string) bson.M {
	filter := bson.M{}
	if brandID != "" {
		filter["brand_id"] = brandID
	}
	if userID := c.Query("user_id"); userID != "" {
		filter["user_id"] = userID
	}
	if action := c.Query("action"); action != "" {
		filter["action"] = action
	}
	if resource := c.Query("resource"); resource != "" {
		filter["resource"] = resource
	}

	timeFilter := bson.M{}
	if startStr := c.Query("start_time"); startStr != "" {
		if start, err := time.Parse(time.RFC3339, startStr); err == nil {
			timeFilter["$gte"] = start
		}
	}
	if endStr := c.Query("end_time"); endStr != "" {
		if end, err := time.Parse(time.RFC3339, endStr); err == nil {
			timeFilter["$lte"] = end
		}
	}
	if len(timeFilter) > 0 {
		filter["timestamp"] = timeFilter
	}
	return filter
}
