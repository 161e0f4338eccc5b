package routes

import (
	"net/http"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/middleware"
	"brand-deck-platform/models"
	"brand-deck-platform/services"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func SetupDeckRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *mongo.Database,
	rdb *redis.Client,
	deckService *services.DeckService,
	exportService *services.ExportService,
	authMiddleware *middleware.AuthMiddleware,
	roleMiddleware *middleware.RoleMiddleware,
	featureCheck *middleware.FeatureCheckMiddleware,
) {
	decks := router.Group("/api/decks")
	decks.Use(authMiddleware.RequireAuth(), roleMiddleware.MemberGuard(), featureCheck.RequireNavigationItem("decks"))

	// Builds and Q&A consume model tokens, so they get the stricter
	// role-scaled limiter on top of the global one.
	modelLimit := middleware.RoleBasedRateLimit(rdb, cfg)

	brandsCollection := db.Collection("brands")

	loadBrand := func(c *gin.Context) (*models.Brand, bool) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return nil, false
		}

		var brand models.Brand
		if err := brandsCollection.FindOne(c.Request.Context(), bson.M{"_id": brandID}).Decode(&brand); err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "brand_not_found",
					"message":    "Brand not found",
				})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error_code": "internal_error",
					"message":    "Failed to load brand",
				})
			}
			c.Abort()
			return nil, false
		}
		return &brand, true
	}

	// A new deck build. The response returns immediately with the deck id;
	// progress is polled on GET /:id.
	decks.POST("", featureCheck.RequireFeature("deck_create"), modelLimit, func(c *gin.Context) {
		brand, ok := loadBrand(c)
		if !ok {
			return
		}

		var req models.CreateDeckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Title and at least one document are required",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		deck, err := deckService.CreateDeck(c.Request.Context(), brand, req, middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, models.DeckResponse{
			ID:        deck.ID.Hex(),
			Title:     deck.Title,
			Status:    deck.Status,
			Progress:  deck.Progress,
			TaskID:    deck.TaskID,
			Message:   "Deck build accepted",
			CreatedAt: deck.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	})

	decks.GET("", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}

		list, err := deckService.ListDecks(c.Request.Context(), brandID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"decks": list,
			"count": len(list),
		})
	})

	// Status poll. The result payload is deliberately not included here;
	// clients fetch it once from /data when the status turns completed.
	decks.GET("/:id", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		deckID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		deck, err := deckService.GetDeck(c.Request.Context(), brandID, deckID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.DeckResponse{
			ID:        deck.ID.Hex(),
			Title:     deck.Title,
			Status:    deck.Status,
			Progress:  deck.Progress,
			TaskID:    deck.TaskID,
			Error:     deck.Error,
			CreatedAt: deck.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	})

	// Full deck result: summary, tables, metrics, charts, competitive
	decks.GET("/:id/data", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		deckID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		deck, err := deckService.GetDeck(c.Request.Context(), brandID, deckID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		if deck.Status != models.StatusCompleted || deck.Result == nil {
			c.JSON(http.StatusConflict, gin.H{
				"error_code": "deck_not_ready",
				"message":    "Deck has not completed yet",
				"details":    gin.H{"status": deck.Status, "progress": deck.Progress},
			})
			return
		}

		c.JSON(http.StatusOK, deck)
	})

	decks.GET("/:id/export", featureCheck.RequireFeature("deck_export"), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		deckID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		deck, err := deckService.GetDeck(c.Request.Context(), brandID, deckID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		if err := exportService.StreamDeck(c, deck); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
	})

	// Q&A against the brand corpus, grounded by this deck's summary
	decks.POST("/:id/ask", featureCheck.RequireFeature("deck_ask"), modelLimit, func(c *gin.Context) {
		brand, ok := loadBrand(c)
		if !ok {
			return
		}

		var req models.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "A question is required",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}
		req.DeckID = c.Param("id")

		answer, err := deckService.Ask(c.Request.Context(), brand, req)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, answer)
	})

	// Corpus-wide Q&A without deck grounding
	decks.POST("/ask", featureCheck.RequireFeature("deck_ask"), modelLimit, func(c *gin.Context) {
		brand, ok := loadBrand(c)
		if !ok {
			return
		}

		var req models.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "A question is required",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}
		req.DeckID = ""

		answer, err := deckService.Ask(c.Request.Context(), brand, req)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, answer)
	})
}
