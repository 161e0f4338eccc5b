package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"brand-deck-platform/internal/auth"
	"brand-deck-platform/internal/telemetry"
	"brand-deck-platform/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditMiddleware records every API request into the hash-chained audit
// trail. Metrics may be nil when telemetry is disabled.
func AuditMiddleware(auditor *models.AuditLogger, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Health probes and static media are not audit-worthy
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}

		// Capture request body for audit (skip multipart and cap size)
		var bodyBytes []byte
		if c.Request.Body != nil {
			ct := c.Request.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "multipart/") {
				limited := io.LimitReader(c.Request.Body, 1<<20) // 1MB cap
				bodyBytes, _ = io.ReadAll(limited)
				c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			}
		}

		requestID := GetRequestID(c)
		if requestID == "" {
			requestID = uuid.NewString()
			c.Set("request_id", requestID)
		}

		c.Next()

		// Log after request completes
		event := createAuditEvent(c, bodyBytes, requestID)

		if metrics != nil {
			metrics.RecordAuditEvent(event.Action, event.Resource)
		}

		// Log asynchronously to not block response
		auditor.LogAsync(event)
	}
}

// createAuditEvent creates an audit event from the request context
func createAuditEvent(c *gin.Context, bodyBytes []byte, requestID string) *models.AuditEvent {
	event := &models.AuditEvent{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: requestID,
		Success:   c.Writer.Status() < 400,
		CreatedAt: time.Now(),
	}

	// Extract user information from claims
	if claims, exists := c.Get("claims"); exists {
		if cl, ok := claims.(*auth.Claims); ok {
			event.BrandID = cl.BrandID
			event.UserID = cl.UserID
		}
	}

	// Map HTTP method to action
	event.Action = mapHTTPMethodToAction(c.Request.Method)

	// Extract resource information
	event.Resource, event.ResourceID = extractResourceFromPath(c.Request.URL.Path)

	// Extract error message if any
	if !event.Success {
		event.ErrorMessage = "HTTP " + strconv.Itoa(c.Writer.Status())
	}

	// Extract changes from request body
	event.Changes = extractChangesFromBody(bodyBytes, event.Action)

	return event
}

// mapHTTPMethodToAction maps HTTP methods to audit actions
func mapHTTPMethodToAction(method string) string {
	switch method {
	case "GET":
		return "READ"
	case "POST":
		return "CREATE"
	case "PUT", "PATCH":
		return "UPDATE"
	case "DELETE":
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// extractResourceFromPath extracts resource type and ID from URL path
func extractResourceFromPath(path string) (string, string) {
	switch {
	case strings.HasPrefix(path, "/api/auth/"):
		return "auth", ""
	case strings.HasPrefix(path, "/api/brands"):
		return "brand", extractIDFromPath(path)
	case strings.HasPrefix(path, "/api/documents"):
		return "document", extractIDFromPath(path)
	case strings.HasPrefix(path, "/api/decks"):
		return "deck", extractIDFromPath(path)
	case strings.HasPrefix(path, "/api/media"):
		return "media", extractIDFromPath(path)
	case strings.HasPrefix(path, "/api/snapshots"):
		return "snapshot", extractIDFromPath(path)
	case strings.HasPrefix(path, "/api/embed"):
		return "embed", extractIDFromPath(path)
	case strings.HasPrefix(path, "/api/admin"):
		return "admin", extractIDFromPath(path)
	case strings.HasPrefix(path, "/api/audit"):
		return "audit", ""
	default:
		return "unknown", ""
	}
}

// extractIDFromPath pulls the first Mongo object id out of the path.
func extractIDFromPath(path string) string {
	for _, part := range strings.Split(path, "/") {
		if isHexObjectID(part) {
			return part
		}
	}
	return ""
}

func isHexObjectID(s string) bool {
	if len(s) != 24 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// extractChangesFromBody extracts changes from request body
func extractChangesFromBody(bodyBytes []byte, action string) map[string]interface{} {
	if len(bodyBytes) == 0 || action == "READ" || action == "DELETE" {
		return nil
	}

	var body map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return map[string]interface{}{
			"raw_body": string(bodyBytes),
		}
	}

	// Filter sensitive fields
	sensitiveFields := []string{"password", "token", "secret", "key"}
	filteredBody := make(map[string]interface{})

	for key, value := range body {
		if containsSensitiveField(key, sensitiveFields) {
			filteredBody[key] = "[REDACTED]"
		} else {
			filteredBody[key] = value
		}
	}

	return filteredBody
}

// containsSensitiveField checks if a field name is sensitive
func containsSensitiveField(field string, sensitiveFields []string) bool {
	fieldLower := strings.ToLower(field)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldLower, sensitive) {
			return true
		}
	}
	return false
}
