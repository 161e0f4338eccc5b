package routes

import (
	"net/http"
	"strconv"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/middleware"
	"brand-deck-platform/services"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func SetupDocumentRoutes(
	router *gin.Engine,
	cfg *config.Config,
	documentService *services.DocumentService,
	authMiddleware *middleware.AuthMiddleware,
	roleMiddleware *middleware.RoleMiddleware,
	featureCheck *middleware.FeatureCheckMiddleware,
) {
	documents := router.Group("/api/documents")
	documents.Use(authMiddleware.RequireAuth(), roleMiddleware.MemberGuard(), featureCheck.RequireNavigationItem("documents"))

	// Upload accepts one file under the "file" field. The sensitive flag
	// locks the document onto the local extraction path; async forces
	// queue processing even for small files.
	documents.POST("/upload", featureCheck.RequireFeature("document_upload"), middleware.RequestSizeLimit(cfg.MaxFileSize+1<<20), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}

		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "file_too_large",
				"message":    "File size exceeds maximum limit",
			})
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "no_file",
				"message":    "No file provided",
			})
			return
		}
		defer file.Close()

		sensitive, _ := strconv.ParseBool(c.DefaultPostForm("sensitive", c.DefaultQuery("sensitive", "false")))
		isAsync, _ := strconv.ParseBool(c.DefaultPostForm("async", c.DefaultQuery("async", "false")))

		var userID primitive.ObjectID
		if uid := middleware.GetUserID(c); uid != "" {
			if objID, err := primitive.ObjectIDFromHex(uid); err == nil {
				userID = objID
			}
		}

		result, err := documentService.ValidateAndProcessUpload(c.Request.Context(), &services.UploadRequest{
			File:      file,
			Header:    header,
			BrandID:   brandID,
			UserID:    userID,
			Sensitive: sensitive,
			IsAsync:   isAsync,
		})
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		status := http.StatusAccepted
		message := "Document accepted for processing"
		if result.Duplicate {
			status = http.StatusOK
			message = "Identical document already exists"
		}

		response := gin.H{
			"message":  message,
			"document": result.Document,
		}
		if result.TaskID != "" {
			response["task_id"] = result.TaskID
		}
		if result.Duplicate {
			response["duplicate"] = true
		}

		c.JSON(status, response)
	})

	documents.GET("", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}

		docs, err := documentService.ListDocuments(c.Request.Context(), brandID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"documents": docs,
			"count":     len(docs),
		})
	})

	documents.GET("/:id", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		docID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		doc, err := documentService.GetDocument(c.Request.Context(), brandID, docID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		// The chunk payloads stay server-side
		doc.ContentChunks = nil

		c.JSON(http.StatusOK, doc)
	})

	// Lightweight polling endpoint for upload progress
	documents.GET("/:id/status", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		docID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		doc, err := documentService.GetDocument(c.Request.Context(), brandID, docID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document_id":   doc.ID.Hex(),
			"original_name": doc.OriginalName,
			"status":        doc.Status,
			"progress":      doc.Progress,
			"sensitive":     doc.Sensitive,
			"error":         doc.ErrorMessage,
			"uploaded_at":   doc.UploadedAt,
			"processed_at":  doc.ProcessedAt,
		})
	})

	documents.DELETE("/:id", featureCheck.RequireFeature("document_delete"), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		docID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		if err := documentService.DeleteDocument(c.Request.Context(), brandID, docID); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
	})
}
