package routes

import (
	"net/http"

	"brand-deck-platform/internal/crawler"
	"brand-deck-platform/middleware"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
)

func SetupSnapshotRoutes(
	router *gin.Engine,
	snapshotService *crawler.SnapshotService,
	authMiddleware *middleware.AuthMiddleware,
	roleMiddleware *middleware.RoleMiddleware,
	featureCheck *middleware.FeatureCheckMiddleware,
) {
	snapshots := router.Group("/api/snapshots")
	snapshots.Use(authMiddleware.RequireAuth(), roleMiddleware.MemberGuard(), featureCheck.RequireNavigationItem("snapshots"))

	snapshots.POST("", featureCheck.RequireFeature("snapshot_request"), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}

		var req models.CreateSnapshotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "A valid url is required",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		snap, err := snapshotService.RequestSnapshot(c.Request.Context(), brandID, &req)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"snapshot": snap,
			"message":  "Snapshot accepted",
		})
	})

	snapshots.GET("", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}

		list, err := snapshotService.ListSnapshots(c.Request.Context(), brandID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"snapshots": list,
			"count":     len(list),
		})
	})

	snapshots.GET("/:id", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		snapshotID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		snap, err := snapshotService.GetSnapshot(c.Request.Context(), brandID, snapshotID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, snap)
	})

	// Plain-text view of a completed crawl, mostly for preview in the UI
	snapshots.GET("/:id/text", func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		snapshotID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		snap, err := snapshotService.GetSnapshot(c.Request.Context(), brandID, snapshotID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		if snap.Status != models.SnapshotStatusCompleted {
			c.JSON(http.StatusConflict, gin.H{
				"error_code": "snapshot_not_ready",
				"message":    "Snapshot has not completed yet",
				"details":    gin.H{"status": snap.Status, "progress": snap.Progress},
			})
			return
		}

		text, err := snapshotService.SnapshotText(snap)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"snapshot_id": snap.ID.Hex(),
			"url":         snap.URL,
			"title":       snap.Title,
			"text":        text,
			"facts":       snap.Facts,
		})
	})

	snapshots.POST("/:id/refresh", featureCheck.RequireFeature("snapshot_request"), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		snapshotID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		snap, err := snapshotService.RefreshSnapshot(c.Request.Context(), brandID, snapshotID)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"snapshot": snap,
			"message":  "Snapshot refresh accepted",
		})
	})

	snapshots.POST("/:id/cancel", featureCheck.RequireFeature("snapshot_cancel"), func(c *gin.Context) {
		brandID, ok := resolveBrandID(c)
		if !ok {
			return
		}
		snapshotID, ok := parseObjectIDParam(c, "id")
		if !ok {
			return
		}

		if err := snapshotService.CancelSnapshot(c.Request.Context(), brandID, snapshotID); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "snapshot cancelled"})
	})
}
