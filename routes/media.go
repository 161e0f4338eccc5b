package routes

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"brand-deck-platform/middleware"
	"brand-deck-platform/models"
	"brand-deck-platform/services"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func SetupMediaRoutes(
	router *gin.Engine,
	mediaService *services.MediaService,
	authMiddleware *middleware.AuthMiddleware,
	roleMiddleware *middleware.RoleMiddleware,
	featureCheck *middleware.FeatureCheckMiddleware,
) {
	media := router.Group("/api/media")
	media.Use(authMiddleware.RequireAuth(), roleMiddleware.MemberGuard(), featureCheck.RequireNavigationItem("media"))

	media.POST("/upload", featureCheck.RequireFeature("media_upload"), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}

		mediaType := c.PostForm("type")
		purpose := c.PostForm("purpose")
		if mediaType == "" {
			mediaType = models.MediaTypeImage
		}
		if purpose == "" {
			purpose = models.MediaPurposeDeckAsset
		}

		file, err := c.FormFile("media")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "missing_file",
				"message":    "No file uploaded",
			})
			return
		}

		uploaded, err := mediaService.UploadMedia(c.Request.Context(), brandID, file, mediaType, purpose)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.MediaUploadResponse{
			ID:       uploaded.ID.Hex(),
			Filename: uploaded.Filename,
			URL:      uploaded.URL,
			Size:     uploaded.FileSize,
			Type:     uploaded.MediaType,
		})
	})

	// Logo uploads get their own endpoint so the frontend can wire the
	// brand settings form without carrying the purpose field around.
	media.POST("/logo", featureCheck.RequireFeature("media_upload"), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}

		mediaType := c.PostForm("type")
		if mediaType == "" {
			mediaType = models.MediaTypeImage
		}

		file, err := c.FormFile("media")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "missing_file",
				"message":    "No file uploaded",
			})
			return
		}

		uploaded, err := mediaService.UploadMedia(c.Request.Context(), brandID, file, mediaType, models.MediaPurposeLogo)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.MediaUploadResponse{
			ID:       uploaded.ID.Hex(),
			Filename: uploaded.Filename,
			URL:      uploaded.URL,
			Size:     uploaded.FileSize,
			Type:     uploaded.MediaType,
		})
	})

	media.GET("", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}

		purpose := c.Query("purpose")
		mediaType := c.Query("type")

		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			limit = 50
		}
		if limit > 100 {
			limit = 100
		}
		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			offset = 0
		}

		list, err := mediaService.GetMediaByBrand(c.Request.Context(), brandID, purpose)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		if mediaType != "" {
			filtered := make([]*models.Media, 0, len(list))
			for _, m := range list {
				if m.MediaType == mediaType {
					filtered = append(filtered, m)
				}
			}
			list = filtered
		}

		total := len(list)
		start := offset
		if start > total {
			start = total
		}
		end := start + limit
		if end > total {
			end = total
		}
		list = list[start:end]

		c.JSON(http.StatusOK, gin.H{
			"media":  list,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		})
	})

	media.GET("/:id", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		mediaID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		item, err := mediaService.GetMediaByID(c.Request.Context(), brandID, mediaID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, item)
	})

	media.DELETE("/:id", featureCheck.RequireFeature("media_delete"), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		mediaID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		if err := mediaService.DeleteMedia(c.Request.Context(), brandID, mediaID); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "media deleted"})
	})

	// Stored files are served without auth since their URLs end up inside
	// published decks and embeds. Filenames are server-generated hashes.
	router.GET("/media/:brandId/:filename", serveMediaFile(mediaService))
}

func serveMediaFile(mediaService *services.MediaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		brandID, err := primitive.ObjectIDFromHex(c.Param("brandId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_id",
				"message":    "Invalid brand id",
			})
			return
		}

		filename := c.Param("filename")
		if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_filename",
				"message":    "Invalid filename",
			})
			return
		}

		filePath := mediaService.GetFilePath(brandID, filename)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "file_not_found",
				"message":    "File not found",
			})
			return
		}

		c.Header("Content-Type", mimeTypeForExt(filepath.Ext(filename)))
		c.Header("Cache-Control", "public, max-age=31536000")
		c.File(filePath)
	}
}

func mimeTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
