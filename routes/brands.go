package routes

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/middleware"
	"brand-deck-platform/models"
	"brand-deck-platform/services"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupBrandRoutes wires brand management: creation and listing for
// platform admins, settings and analytics for the brand's own members.
func SetupBrandRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *mongo.Database,
	alertEvaluator *services.AlertEvaluator,
	authMiddleware *middleware.AuthMiddleware,
	roleMiddleware *middleware.RoleMiddleware,
) {
	brandsCollection := db.Collection("brands")
	usersCollection := db.Collection("users")
	decksCollection := db.Collection("decks")
	documentsCollection := db.Collection("documents")

	brands := router.Group("/api/brands")
	brands.Use(authMiddleware.RequireAuth())

	adminOnly := brands.Group("")
	adminOnly.Use(roleMiddleware.AdminGuard())

	adminOnly.POST("", func(c *gin.Context) {
		var req models.CreateBrandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid request data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		embedSecret, err := utils.GenerateEmbedSecret()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to generate embed secret"})
			return
		}

		status := req.Status
		if status == "" {
			status = "active"
		}

		brand := models.Brand{
			Name:         req.Name,
			Theme:        req.Theme,
			TokenLimit:   req.TokenLimit,
			TokenUsed:    0,
			EmbedSecret:  embedSecret,
			Status:       status,
			ContactEmail: req.ContactEmail,
			ContactPhone: req.ContactPhone,
			DeckSettings: req.DeckSettings,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}

		result, err := brandsCollection.InsertOne(c.Request.Context(), brand)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				c.JSON(http.StatusConflict, gin.H{"error_code": "brand_exists", "message": "Brand with this name already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to create brand"})
			return
		}
		brand.ID = result.InsertedID.(primitive.ObjectID)

		var createdUser *models.UserInfo
		if req.InitialUser != nil {
			createdUser, err = createInitialUser(c.Request.Context(), cfg, usersCollection, brand.ID, req.InitialUser)
			if err != nil {
				// Brand exists at this point; report the user failure
				// without rolling the brand back.
				status := http.StatusInternalServerError
				code := "internal_error"
				if err == errUsernameTaken {
					status = http.StatusConflict
					code = "username_exists"
				}
				c.JSON(status, gin.H{
					"error_code": code,
					"message":    "Brand created, but initial user failed: " + err.Error(),
					"details":    gin.H{"brand_id": brand.ID.Hex()},
				})
				return
			}
		}

		c.JSON(http.StatusCreated, gin.H{
			"brand":        brand,
			"initial_user": createdUser,
		})
	})

	adminOnly.GET("", func(c *gin.Context) {
		ctx := c.Request.Context()

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
		if limit < 1 || limit > 100 {
			limit = 10
		}

		filter := bson.M{}
		if status := c.Query("status"); status != "" {
			filter["status"] = status
		}
		if search := c.Query("search"); search != "" {
			filter["name"] = bson.M{"$regex": search, "$options": "i"}
		}

		opts := options.Find().
			SetSort(bson.M{"created_at": -1}).
			SetSkip(int64((page - 1) * limit)).
			SetLimit(int64(limit))

		cursor, err := brandsCollection.Find(ctx, filter, opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to retrieve brands"})
			return
		}
		defer cursor.Close(ctx)

		thirtyDaysAgo := time.Now().AddDate(0, 0, -30)
		var stats []models.BrandUsageStats
		for cursor.Next(ctx) {
			var brand models.Brand
			if err := cursor.Decode(&brand); err != nil {
				continue
			}
			stats = append(stats, brandUsage(c, &brand, decksCollection, documentsCollection, usersCollection, thirtyDaysAgo))
		}

		total, _ := brandsCollection.CountDocuments(ctx, filter)
		c.JSON(http.StatusOK, gin.H{
			"brands":      stats,
			"total":       total,
			"page":        page,
			"limit":       limit,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
		})
	})

	scoped := brands.Group("")
	scoped.Use(roleMiddleware.MemberGuard(), roleMiddleware.RequireBrandAccess())

	scoped.GET("/:id", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		brand, ok := findBrand(c, brandsCollection, brandID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, brand)
	})

	scoped.PUT("/:id", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		var req models.UpdateBrandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid request data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		// Quota, status and feature gates are operator decisions
		if !middleware.IsAdmin(c) && (req.TokenLimit != nil || req.Status != nil || req.Permissions != nil) {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "forbidden_fields",
				"message":    "token_limit, status and permissions can only be changed by an admin",
			})
			return
		}

		set := bson.M{"updated_at": time.Now()}
		if req.Name != nil {
			set["name"] = *req.Name
		}
		if req.TokenLimit != nil {
			set["token_limit"] = *req.TokenLimit
		}
		if req.Theme != nil {
			set["theme"] = *req.Theme
		}
		if req.DeckSettings != nil {
			set["deck_settings"] = *req.DeckSettings
		}
		if req.Permissions != nil {
			if err := services.ValidateNavigationItems(req.Permissions.AllowedNavigationItems); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error_code": "invalid_navigation_items",
					"message":    err.Error(),
				})
				return
			}
			// Granting a navigation item grants its features unless the
			// request pins an explicit feature list.
			if len(req.Permissions.EnabledFeatures) == 0 {
				req.Permissions.EnabledFeatures = services.SyncFeaturesFromNavigationItems(req.Permissions.AllowedNavigationItems)
			}
			set["permissions"] = *req.Permissions
		}
		if req.Status != nil {
			set["status"] = *req.Status
		}
		if req.ContactEmail != nil {
			set["contact_email"] = *req.ContactEmail
		}
		if req.ContactPhone != nil {
			set["contact_phone"] = *req.ContactPhone
		}

		result, err := brandsCollection.UpdateOne(c.Request.Context(), bson.M{"_id": brandID}, bson.M{"$set": set})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to update brand"})
			return
		}
		if result.MatchedCount == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error_code": "brand_not_found", "message": "Brand not found"})
			return
		}

		// A new budget means the old warnings no longer apply; clearing the
		// dedup state lets alerts fire again against the new limit.
		if req.TokenLimit != nil && alertEvaluator != nil {
			if err := alertEvaluator.ResetAlertStatus(c.Request.Context(), brandID); err != nil {
				log.Printf("Failed to reset alert status for brand %s: %v", brandID.Hex(), err)
			}
		}

		updated, ok := findBrand(c, brandsCollection, brandID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	scoped.GET("/:id/usage", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		brand, ok := findBrand(c, brandsCollection, brandID)
		if !ok {
			return
		}

		remaining := brand.TokenLimit - brand.TokenUsed
		if remaining < 0 {
			remaining = 0
		}
		usage := 0.0
		if brand.TokenLimit > 0 {
			usage = float64(brand.TokenUsed) / float64(brand.TokenLimit) * 100
		}

		c.JSON(http.StatusOK, models.TokenUsage{
			Used:      brand.TokenUsed,
			Limit:     brand.TokenLimit,
			Remaining: remaining,
			Usage:     usage,
		})
	})

	scoped.GET("/:id/analytics", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		period := c.DefaultQuery("period", "30d")
		end := time.Now()
		start := end.Add(-parsePeriod(period))

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		analytics, err := generateBrandAnalytics(ctx, decksCollection, documentsCollection, brandID, start, end, period)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to generate analytics",
			})
			return
		}

		c.JSON(http.StatusOK, analytics)
	})

	scoped.GET("/:id/embed-snippet", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		brand, ok := findBrand(c, brandsCollection, brandID)
		if !ok {
			return
		}

		// The widget page lives on the frontend; it exchanges the embed
		// secret for a viewer token and pulls deck data from this API.
		c.JSON(http.StatusOK, models.EmbedSnippet{
			BrandID:     brand.ID.Hex(),
			EmbedSecret: brand.EmbedSecret,
			ScriptTag:   embedScriptTag(cfg.FrontendURL, brand.ID.Hex()),
			IframeTag:   embedIframeTag(cfg.FrontendURL, brand.ID.Hex()),
		})
	})

	scoped.GET("/:id/origins", func(c *gin.Context) {
		brandID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		brand, ok := findBrand(c, brandsCollection, brandID)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"brand_id":        brand.ID.Hex(),
			"allowed_origins": brand.AllowedOrigins,
			"allow_embedding": brand.Theme.AllowEmbedding,
		})
	})

	scoped.POST("/:id/origins", middleware.AddAllowedOrigin(db))
	scoped.DELETE("/:id/origins", middleware.RemoveAllowedOrigin(db))
}

// findBrand loads a brand or writes the error response.
func findBrand(c *gin.Context, brandsCollection *mongo.Collection, brandID primitive.ObjectID) (*models.Brand, bool) {
	var brand models.Brand
	if err := brandsCollection.FindOne(c.Request.Context(), bson.M{"_id": brandID}).Decode(&brand); err != nil {
		if err == mongo.ErrNoDocuments {
			c.JSON(http.StatusNotFound, gin.H{"error_code": "brand_not_found", "message": "Brand not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error_code": "internal_error", "message": "Failed to load brand"})
		}
		return nil, false
	}
	return &brand, true
}

var errUsernameTaken = errors.New("username already exists")

// createInitialUser provisions the first member login for a new brand.
func createInitialUser(
	ctx context.Context,
	cfg *config.Config,
	usersCollection *mongo.Collection,
	brandID primitive.ObjectID,
	initial *models.InitialUser,
) (*models.UserInfo, error) {
	if err := usersCollection.FindOne(ctx, bson.M{"username": initial.Username}).Err(); err == nil {
		return nil, errUsernameTaken
	}

	hashed, err := utils.HashPassword(initial.Password, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     initial.Username,
		Name:         initial.Name,
		Email:        initial.Email,
		Phone:        initial.Phone,
		PasswordHash: hashed,
		Role:         "member",
		BrandID:      &brandID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	res, err := usersCollection.InsertOne(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = res.InsertedID.(primitive.ObjectID)

	return &models.UserInfo{
		ID:       user.ID.Hex(),
		Username: user.Username,
		Name:     user.Name,
		Email:    user.Email,
		Phone:    user.Phone,
		Role:     user.Role,
		BrandID:  brandID.Hex(),
	}, nil
}

// parsePeriod turns "7d", "30d", "90d", "1y" into a duration, defaulting
// to thirty days.
func parsePeriod(period string) time.Duration {
	switch period {
	case "7d":
		return 7 * 24 * time.Hour
	case "30d", "month":
		return 30 * 24 * time.Hour
	case "90d":
		return 90 * 24 * time.Hour
	case "1y", "year":
		return 365 * 24 * time.Hour
	default:
		if strings.HasSuffix(period, "d") {
			if n, err := strconv.Atoi(strings.TrimSuffix(period, "d")); err == nil && n > 0 {
				return time.Duration(n) * 24 * time.Hour
			}
		}
		return 30 * 24 * time.Hour
	}
}

// generateBrandAnalytics reports deck-build and upload activity for the
// period, with a day-bucketed series and previous-period comparison.
func generateBrandAnalytics(
	ctx context.Context,
	decksCollection, documentsCollection *mongo.Collection,
	brandID primitive.ObjectID,
	start, end time.Time,
	period string,
) (gin.H, error) {
	match := bson.M{
		"brand_id":   brandID,
		"created_at": bson.M{"$gte": start, "$lte": end},
	}

	totalDecks, err := decksCollection.CountDocuments(ctx, match)
	if err != nil {
		return nil, err
	}
	completedDecks, _ := decksCollection.CountDocuments(ctx, bson.M{
		"brand_id":   brandID,
		"status":     models.StatusCompleted,
		"created_at": bson.M{"$gte": start, "$lte": end},
	})
	failedDecks, _ := decksCollection.CountDocuments(ctx, bson.M{
		"brand_id":   brandID,
		"status":     models.StatusFailed,
		"created_at": bson.M{"$gte": start, "$lte": end},
	})
	totalDocuments, _ := documentsCollection.CountDocuments(ctx, bson.M{
		"brand_id":    brandID,
		"uploaded_at": bson.M{"$gte": start, "$lte": end},
	})

	var activeUsers int
	if vals, err := decksCollection.Distinct(ctx, "requested_by", match); err == nil {
		activeUsers = len(vals)
	}

	timeSeries, err := deckTimeSeries(ctx, decksCollection, match)
	if err != nil {
		return nil, err
	}

	// Previous period of the same length for trend arrows
	dur := end.Sub(start)
	prevMatch := bson.M{
		"brand_id":   brandID,
		"created_at": bson.M{"$gte": start.Add(-dur), "$lte": start.Add(-time.Nanosecond)},
	}
	prevDecks, _ := decksCollection.CountDocuments(ctx, prevMatch)
	prevDocuments, _ := documentsCollection.CountDocuments(ctx, bson.M{
		"brand_id":    brandID,
		"uploaded_at": bson.M{"$gte": start.Add(-dur), "$lte": start.Add(-time.Nanosecond)},
	})

	return gin.H{
		"brand_id":        brandID.Hex(),
		"period":          period,
		"start_date":      start.Format(time.RFC3339),
		"end_date":        end.Format(time.RFC3339),
		"total_decks":     int(totalDecks),
		"completed_decks": int(completedDecks),
		"failed_decks":    int(failedDecks),
		"total_documents": int(totalDocuments),
		"active_users":    activeUsers,
		"time_series":     timeSeries,
		"previous_period": gin.H{
			"total_decks":     int(prevDecks),
			"total_documents": int(prevDocuments),
		},
	}, nil
}

// deckTimeSeries buckets deck builds by day.
func deckTimeSeries(ctx context.Context, decksCollection *mongo.Collection, match bson.M) ([]gin.H, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"day": bson.M{"$dateToString": bson.M{
					"format":   "%Y-%m-%d",
					"date":     "$created_at",
					"timezone": "UTC",
				}},
			},
			"total_decks": bson.M{"$sum": 1},
			"completed": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$status", models.StatusCompleted}}, 1, 0},
			}},
			"failed": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$status", models.StatusFailed}}, 1, 0},
			}},
			"users": bson.M{"$addToSet": "$requested_by"},
		}}},
		{{Key: "$project", Value: bson.M{
			"date":         "$_id.day",
			"total_decks":  1,
			"completed":    1,
			"failed":       1,
			"active_users": bson.M{"$size": "$users"},
			"_id":          0,
		}}},
		{{Key: "$sort", Value: bson.M{"date": 1}}},
	}

	cur, err := decksCollection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var series []gin.H
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		series = append(series, gin.H{
			"date":         doc["date"],
			"total_decks":  doc["total_decks"],
			"completed":    doc["completed"],
			"failed":       doc["failed"],
			"active_users": doc["active_users"],
		})
	}
	return series, nil
}

// embedScriptTag builds the drop-in script snippet for a brand's site.
func embedScriptTag(frontendURL, brandID string) string {
	return `<script>
  (function() {
    var frame = document.createElement('iframe');
    frame.src = '` + frontendURL + `/embed/` + brandID + `';
    frame.style.cssText = 'width: 100%; min-height: 600px; border: none; border-radius: 10px; box-shadow: 0 4px 20px rgba(0,0,0,0.15);';
    frame.setAttribute('loading', 'lazy');
    document.currentScript.parentNode.insertBefore(frame, document.currentScript);
  })();
</script>`
}

// embedIframeTag builds the plain iframe variant of the embed snippet.
func embedIframeTag(frontendURL, brandID string) string {
	return `<iframe src="` + frontendURL + `/embed/` + brandID + `"
  width="100%" height="600" style="border: none; border-radius: 10px; box-shadow: 0 4px 20px rgba(0,0,0,0.15);"></iframe>`
}
