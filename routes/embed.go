package routes

import (
	"net/http"

	"brand-deck-platform/middleware"
	"brand-deck-platform/models"
	"brand-deck-platform/services"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// SetupEmbedRoutes wires the public embed surface. Token issuance runs
// through the embed CORS validator (origin + brand secret); the data
// routes accept only viewer tokens and re-check the requesting domain.
func SetupEmbedRoutes(
	router *gin.Engine,
	db *mongo.Database,
	rdb *redis.Client,
	deckService *services.DeckService,
	authMiddleware *middleware.AuthMiddleware,
) {
	brandsCollection := db.Collection("brands")
	alertsCollection := db.Collection("suspicious_activity_alerts")
	domainAuth := middleware.NewDomainAuthMiddleware(brandsCollection, alertsCollection)

	embed := router.Group("/api/embed")

	// Trades the brand's embed secret for a short-lived viewer token.
	// The validator has already verified origin, secret and the brand's
	// embedding settings by the time this handler runs.
	embed.POST("/token", middleware.EmbedCORSValidator(db, rdb), func(c *gin.Context) {
		token, exists := c.Get("viewer_token")
		if !exists {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "token_issue_failed",
				"message":    "Viewer token was not issued",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"viewer_token": token,
			"token_type":   "Bearer",
			"expires_in":   3600,
			"brand_id":     c.GetString("brand_id"),
		})
	})

	data := embed.Group("")
	data.Use(authMiddleware.RequireViewer(), domainAuth.CheckDomainAuthorization())

	// Completed decks only, so an embed widget can offer a picker
	data.GET("/decks", func(c *gin.Context) {
		brandID, err := primitive.ObjectIDFromHex(middleware.GetBrandID(c))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_brand_id",
				"message":    "Invalid brand id in token",
			})
			return
		}

		list, err := deckService.ListDecks(c.Request.Context(), brandID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		published := make([]gin.H, 0, len(list))
		for _, d := range list {
			if d.Status != models.StatusCompleted {
				continue
			}
			published = append(published, gin.H{
				"id":         d.ID.Hex(),
				"title":      d.Title,
				"created_at": d.CreatedAt,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"decks": published,
			"count": len(published),
		})
	})

	data.GET("/deck/:id", func(c *gin.Context) {
		brandID, err := primitive.ObjectIDFromHex(middleware.GetBrandID(c))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_brand_id",
				"message":    "Invalid brand id in token",
			})
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
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "deck_not_available",
				"message":    "Deck is not available for embedding",
			})
			return
		}

		var brand models.Brand
		if err := brandsCollection.FindOne(c.Request.Context(), bson.M{"_id": brandID}).Decode(&brand); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to load brand theme",
			})
			return
		}

		// Read-only payload: the deck result plus just enough brand
		// theming for the widget to render on-brand.
		c.JSON(http.StatusOK, gin.H{
			"deck": gin.H{
				"id":         deck.ID.Hex(),
				"title":      deck.Title,
				"result":     deck.Result,
				"created_at": deck.CreatedAt,
			},
			"brand": gin.H{
				"name":            brand.Name,
				"primary_color":   brand.Theme.PrimaryColor,
				"logo_url":        brand.Theme.LogoURL,
				"tagline":         brand.Theme.Tagline,
				"show_powered_by": brand.Theme.ShowPoweredBy,
			},
		})
	})
}
