package routes

import (
	"net/http"
	"strconv"
	"time"

	"brand-deck-platform/internal/ai"
	"brand-deck-platform/internal/auth"
	"brand-deck-platform/internal/config"
	"brand-deck-platform/internal/database"
	"brand-deck-platform/middleware"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupAdminRoutes wires the platform-operator surface: health and usage
// overviews, quota management and user administration. Everything here
// requires an admin role; the destructive endpoints require superadmin.
func SetupAdminRoutes(
	router *gin.Engine,
	cfg *config.Config,
	mongoClient *mongo.Client,
	rdb *redis.Client,
	dataManager *database.BrandDataManager,
	authMiddleware *middleware.AuthMiddleware,
	roleMiddleware *middleware.RoleMiddleware,
) {
	admin := router.Group("/api/admin")
	admin.Use(authMiddleware.RequireAuth(), roleMiddleware.AdminGuard())

	db := mongoClient.Database(cfg.DBName)
	brandsCollection := db.Collection("brands")
	usersCollection := db.Collection("users")
	decksCollection := db.Collection("decks")
	documentsCollection := db.Collection("documents")
	tokenHistoryCollection := db.Collection("token_history")

	admin.GET("/stats", func(c *gin.Context) {
		ctx := c.Request.Context()

		dbStatus := "ok"
		if err := mongoClient.Ping(ctx, nil); err != nil {
			dbStatus = "unreachable"
		}
		remoteModel := "missing_key"
		if cfg.GeminiAPIKey != "" {
			remoteModel = "configured"
		}
		localSidecar := "not_configured"
		if cfg.LocalAIURL != "" {
			localSidecar = "configured"
		}

		now := time.Now()
		last24h := now.Add(-24 * time.Hour)

		totalBrands, _ := brandsCollection.CountDocuments(ctx, bson.M{})
		totalUsers, _ := usersCollection.CountDocuments(ctx, bson.M{})
		totalDocuments, _ := documentsCollection.CountDocuments(ctx, bson.M{})
		totalDecks, _ := decksCollection.CountDocuments(ctx, bson.M{})
		decksLast24h, _ := decksCollection.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": last24h}})
		activeDecks, _ := decksCollection.CountDocuments(ctx, bson.M{
			"status": bson.M{"$in": []string{models.StatusPending, models.StatusProcessing}},
		})

		c.JSON(http.StatusOK, models.SystemHealth{
			Status:       "ok",
			Timestamp:    now.Format(time.RFC3339),
			Database:     dbStatus,
			RemoteModel:  remoteModel,
			LocalSidecar: localSidecar,
			ActiveDecks:  int(activeDecks),
			Metrics: map[string]interface{}{
				"brands":            totalBrands,
				"users":             totalUsers,
				"documents":         totalDocuments,
				"decks":             totalDecks,
				"decks_last_24h":    decksLast24h,
				"total_tokens_used": totalTokensUsed(c, brandsCollection),
			},
		})
	})

	admin.GET("/usage", func(c *gin.Context) {
		ctx := c.Request.Context()
		periodEnd := time.Now()
		periodStart := periodEnd.AddDate(0, 0, -30)

		totalBrands, _ := brandsCollection.CountDocuments(ctx, bson.M{})
		decksInPeriod, _ := decksCollection.CountDocuments(ctx, bson.M{
			"created_at": bson.M{"$gte": periodStart, "$lte": periodEnd},
		})
		activeBrandIDs, _ := decksCollection.Distinct(ctx, "brand_id", bson.M{
			"created_at": bson.M{"$gte": periodStart, "$lte": periodEnd},
		})

		cursor, err := brandsCollection.Find(ctx, bson.M{})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to retrieve brand statistics",
			})
			return
		}
		defer cursor.Close(ctx)

		var brandStats []models.BrandUsageStats
		for cursor.Next(ctx) {
			var brand models.Brand
			if err := cursor.Decode(&brand); err != nil {
				continue
			}
			brandStats = append(brandStats, brandUsage(c, &brand, decksCollection, documentsCollection, usersCollection, periodStart))
		}

		c.JSON(http.StatusOK, models.UsageAnalytics{
			TotalBrands:     int(totalBrands),
			TotalTokensUsed: totalTokensUsed(c, brandsCollection),
			TotalDecks:      int(decksInPeriod),
			ActiveBrands:    len(activeBrandIDs),
			BrandStats:      brandStats,
			PeriodStart:     periodStart,
			PeriodEnd:       periodEnd,
		})
	})

	admin.POST("/brands/:id/token-reset", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		var req struct {
			NewTokenLimit int    `json:"new_token_limit" binding:"required,min=1000"`
			Reason        string `json:"reason,omitempty"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid request data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		var brand models.Brand
		if err := brandsCollection.FindOne(c.Request.Context(), bson.M{"_id": brandID}).Decode(&brand); err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{"error_code": "brand_not_found", "message": "Brand not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to verify brand"})
			return
		}

		history := models.TokenHistory{
			ID:          primitive.NewObjectID(),
			BrandID:     brandID,
			OldLimit:    brand.TokenLimit,
			NewLimit:    req.NewTokenLimit,
			Reason:      req.Reason,
			AdminUserID: middleware.GetUserID(c),
			Timestamp:   time.Now(),
			Action:      "reset",
		}
		if _, err := tokenHistoryCollection.InsertOne(c.Request.Context(), history); err != nil {
			// History is advisory; the reset still proceeds
			history.ID = primitive.NilObjectID
		}

		result, err := brandsCollection.UpdateOne(c.Request.Context(), bson.M{"_id": brandID}, bson.M{
			"$set": bson.M{
				"token_limit":      req.NewTokenLimit,
				"token_used":       0,
				"alert_level_sent": "none",
				"updated_at":       time.Now(),
			},
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to update brand quota"})
			return
		}
		if result.MatchedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error_code": "brand_not_found", "message": "Brand not found"})
			return
		}

		resp := gin.H{
			"message":   "Brand quota reset",
			"brand_id":  brandID.Hex(),
			"old_limit": brand.TokenLimit,
			"new_limit": req.NewTokenLimit,
			"reason":    req.Reason,
			"reset_at":  time.Now(),
		}
		if history.ID != primitive.NilObjectID {
			resp["history_id"] = history.ID.Hex()
		}
		c.JSON(http.StatusOK, resp)
	})

	admin.GET("/brands/:id/token-history", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		cursor, err := tokenHistoryCollection.Find(c.Request.Context(),
			bson.M{"brand_id": brandID},
			options.Find().SetSort(bson.M{"timestamp": -1}).SetLimit(100),
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to load quota history"})
			return
		}
		defer cursor.Close(c.Request.Context())

		var history []models.TokenHistory
		if err := cursor.All(c.Request.Context(), &history); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to decode quota history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"brand_id": brandID.Hex(),
			"history":  history,
			"count":    len(history),
		})
	})

	// Daily model quota across all brands, for the operator dashboard
	admin.GET("/quotas", func(c *gin.Context) {
		quotas, err := ai.ListBrandQuotas(c.Request.Context(), db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to load quotas"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"quotas": quotas,
			"count":  len(quotas),
		})
	})

	admin.GET("/brands/:id/quota", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		quota, err := ai.GetBrandQuotaStatus(c.Request.Context(), db, brandID.Hex())
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"quota":        quota,
			"percent_used": quota.PercentUsed(),
		})
	})

	admin.PUT("/brands/:id/quota", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		var req struct {
			DailyTokenLimit int `json:"daily_token_limit" binding:"required,min=1000"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "daily_token_limit must be at least 1000",
			})
			return
		}

		if err := ai.SetBrandQuotaLimit(c.Request.Context(), db, brandID.Hex(), req.DailyTokenLimit); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to update quota limit"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":           "Quota limit updated",
			"brand_id":          brandID.Hex(),
			"daily_token_limit": req.DailyTokenLimit,
		})
	})

	// Zeroes today's counters without touching the limit
	admin.POST("/brands/:id/quota/reset", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		if err := ai.ResetBrandQuota(c.Request.Context(), db, brandID.Hex()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to reset quota"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "Daily quota counters reset",
			"brand_id": brandID.Hex(),
		})
	})

	// Sizing a brand's footprint, typically right before a purge
	admin.GET("/brands/:id/data", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		counts, err := dataManager.CountBrandData(c.Request.Context(), brandID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to count brand data"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"brand_id": brandID.Hex(),
			"counts":   counts,
		})
	})

	// Purge is superadmin-only and irreversible
	admin.DELETE("/brands/:id", roleMiddleware.SuperAdminGuard(), func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		result, err := dataManager.PurgeBrandData(c.Request.Context(), brandID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "Brand purged",
			"brand_id": brandID.Hex(),
			"deleted":  result.Deleted,
		})
	})

	admin.GET("/users", func(c *gin.Context) {
		ctx := c.Request.Context()

		filter := bson.M{}
		if brandIDStr := c.Query("brand_id"); brandIDStr != "" {
			brandID, err := primitive.ObjectIDFromHex(brandIDStr)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error_code": "invalid_brand_id", "message": "Invalid brand id format"})
				return
			}
			filter["brand_id"] = brandID
		}
		if role := c.Query("role"); role != "" {
			filter["role"] = role
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if limit < 1 || limit > 100 {
			limit = 20
		}

		opts := options.Find().
			SetSort(bson.M{"created_at": -1}).
			SetSkip(int64((page - 1) * limit)).
			SetLimit(int64(limit)).
			SetProjection(bson.M{"password_hash": 0})

		cursor, err := usersCollection.Find(ctx, filter, opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to list users"})
			return
		}
		defer cursor.Close(ctx)

		var users []models.User
		if err := cursor.All(ctx, &users); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to decode users"})
			return
		}

		total, _ := usersCollection.CountDocuments(ctx, filter)
		c.JSON(http.StatusOK, gin.H{
			"users":       users,
			"total":       total,
			"page":        page,
			"limit":       limit,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		})
	})

	admin.PUT("/users/:id/role", roleMiddleware.SuperAdminGuard(), func(c *gin.Context) {
		userID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		var req struct {
			Role    string `json:"role" binding:"required,oneof=superadmin admin member"`
			BrandID string `json:"brand_id,omitempty" binding:"omitempty,hexadecimal,len=24"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Role must be one of superadmin, admin, member",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		set := bson.M{"role": req.Role, "updated_at": time.Now()}
		unset := bson.M{}
		switch req.Role {
		case "member":
			// Members must be pinned to a brand
			if req.BrandID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error_code": "brand_required", "message": "Members require a brand_id"})
				return
			}
			brandID, err := primitive.ObjectIDFromHex(req.BrandID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error_code": "invalid_brand_id", "message": "Invalid brand id format"})
				return
			}
			if err := brandsCollection.FindOne(c.Request.Context(), bson.M{"_id": brandID}).Err(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error_code": "brand_not_found", "message": "Brand does not exist"})
				return
			}
			set["brand_id"] = brandID
		default:
			// Platform operators carry no brand
			unset["brand_id"] = ""
		}

		update := bson.M{"$set": set}
		if len(unset) > 0 {
			update["$unset"] = unset
		}

		result, err := usersCollection.UpdateOne(c.Request.Context(), bson.M{"_id": userID}, update)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to update user role"})
			return
		}
		if result.MatchedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error_code": "user_not_found", "message": "User not found"})
			return
		}

		// Old sessions carry the old role; kill them
		if err := auth.RevokeAllUserTokens(userID.Hex(), rdb); err != nil {
			c.JSON(http.StatusOK, gin.H{
				"message": "Role updated, but existing sessions could not be revoked",
				"user_id": userID.Hex(),
				"role":    req.Role,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Role updated",
			"user_id": userID.Hex(),
			"role":    req.Role,
		})
	})

	admin.DELETE("/users/:id", roleMiddleware.SuperAdminGuard(), func(c *gin.Context) {
		userID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		if userID.Hex() == middleware.GetUserID(c) {
			c.JSON(http.StatusBadRequest, gin.H{"error_code": "self_delete", "message": "Cannot delete your own account"})
			return
		}

		result, err := usersCollection.DeleteOne(c.Request.Context(), bson.M{"_id": userID})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to delete user"})
			return
		}
		if result.DeletedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error_code": "user_not_found", "message": "User not found"})
			return
		}

		if err := auth.RevokeAllUserTokens(userID.Hex(), rdb); err == nil {
			c.JSON(http.StatusOK, gin.H{"message": "User deleted", "user_id": userID.Hex()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted, sessions may remain until expiry", "user_id": userID.Hex()})
	})
}

// totalTokensUsed sums token_used across all brands.
func totalTokensUsed(c *gin.Context, brandsCollection *mongo.Collection) int {
	ctx := c.Request.Context()
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$token_used"}}},
		}}},
	}

	cursor, err := brandsCollection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		var agg struct {
			TotalTokens int `bson:"total_tokens"`
		}
		if err := cursor.Decode(&agg); err == nil {
			return agg.TotalTokens
		}
	}
	return 0
}

// brandUsage assembles the per-brand block of the usage report.
func brandUsage(
	c *gin.Context,
	brand *models.Brand,
	decksCollection, documentsCollection, usersCollection *mongo.Collection,
	periodStart time.Time,
) models.BrandUsageStats {
	ctx := c.Request.Context()

	usage := 0.0
	if brand.TokenLimit > 0 {
		usage = float64(brand.TokenUsed) / float64(brand.TokenLimit) * 100
	}

	var lastDeck models.Deck
	_ = decksCollection.FindOne(ctx,
		bson.M{"brand_id": brand.ID},
		options.FindOne().SetSort(bson.M{"created_at": -1}).SetProjection(bson.M{"created_at": 1}),
	).Decode(&lastDeck)

	deckCount, _ := decksCollection.CountDocuments(ctx, bson.M{"brand_id": brand.ID})
	documentCount, _ := documentsCollection.CountDocuments(ctx, bson.M{"brand_id": brand.ID})
	activeUsers, _ := usersCollection.CountDocuments(ctx, bson.M{
		"brand_id":   brand.ID,
		"updated_at": bson.M{"$gte": periodStart},
	})

	return models.BrandUsageStats{
		Brand:           *brand,
		UsagePercentage: usage,
		LastActivity:    lastDeck.CreatedAt,
		TotalDecks:      int(deckCount),
		TotalDocuments:  int(documentCount),
		ActiveUsers:     int(activeUsers),
	}
}
