package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/gin-gonic/gin"
)

// DomainAuthMiddleware verifies that requests for embedded deck data
// come from a domain the brand has allowlisted. Rejections are recorded
// as embed alerts for later review.
type DomainAuthMiddleware struct {
	brandsCollection *mongo.Collection
	alertsCollection *mongo.Collection
}

func NewDomainAuthMiddleware(brandsCollection, alertsCollection *mongo.Collection) *DomainAuthMiddleware {
	return &DomainAuthMiddleware{
		brandsCollection: brandsCollection,
		alertsCollection: alertsCollection,
	}
}

// CheckDomainAuthorization checks the requesting domain against the
// brand's allowed origins. A brand with an empty allowlist accepts any
// domain; embedding still requires it to be enabled at all.
func (m *DomainAuthMiddleware) CheckDomainAuthorization() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Brand id comes from the URL, the viewer token context, or the
		// request body, in that order.
		brandID := c.Param("brand_id")
		if brandID == "" {
			brandID = c.Param("brandId")
		}
		if brandID == "" {
			brandID = GetBrandID(c)
		}

		if brandID == "" && c.Request.Method == "POST" {
			body, err := io.ReadAll(c.Request.Body)
			if err == nil {
				var requestBody struct {
					BrandID string `json:"brand_id"`
				}
				if json.Unmarshal(body, &requestBody) == nil {
					brandID = requestBody.BrandID
				}
				// Restore the request body for the next handler
				c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
			}
		}

		if brandID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "brand_id_required",
				"message":    "Brand ID is required",
			})
			c.Abort()
			return
		}

		brandObjID, err := primitive.ObjectIDFromHex(brandID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_brand_id",
				"message":    "Invalid brand ID format",
			})
			c.Abort()
			return
		}

		var brand struct {
			ID             primitive.ObjectID `bson:"_id"`
			Name           string             `bson:"name"`
			AllowedOrigins []string           `bson:"allowed_origins"`
			Theme          struct {
				AllowEmbedding bool `bson:"allow_embedding"`
			} `bson:"theme"`
		}

		err = m.brandsCollection.FindOne(c.Request.Context(), bson.M{"_id": brandObjID}).Decode(&brand)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				c.JSON(http.StatusNotFound, gin.H{
					"error_code": "brand_not_found",
					"message":    "Brand not found",
				})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error_code": "internal_error",
					"message":    "Failed to fetch brand information",
				})
			}
			c.Abort()
			return
		}

		if !brand.Theme.AllowEmbedding {
			m.logSuspiciousActivity(brandObjID, "", c, "embedding_disabled", "Embed access attempted while embedding is disabled")
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "embedding_disabled",
				"message":    "Embedding is disabled for this brand",
			})
			c.Abort()
			return
		}

		// An empty allowlist means the brand accepts any embedding domain.
		if len(brand.AllowedOrigins) == 0 {
			c.Next()
			return
		}

		requestDomain := m.getRequestDomain(c)
		if requestDomain == "" {
			m.logSuspiciousActivity(brandObjID, "", c, "no_domain", "No domain information available")
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "domain_auth_required",
				"message":    "Domain authorization required",
			})
			c.Abort()
			return
		}

		if !m.checkDomainAccess(requestDomain, brand.AllowedOrigins) {
			m.logSuspiciousActivity(brandObjID, requestDomain, c, "unauthorized_domain",
				fmt.Sprintf("Unauthorized domain '%s' attempted to access brand '%s'", requestDomain, brand.Name))

			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "domain_not_authorized",
				"message":    "Domain not authorized for this brand",
				"details":    gin.H{"domain": requestDomain},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// getRequestDomain extracts the domain from the request
func (m *DomainAuthMiddleware) getRequestDomain(c *gin.Context) string {
	// Try to get domain from referrer header first
	referrer := c.GetHeader("Referer")
	if referrer != "" {
		if domain := m.extractDomainFromURL(referrer); domain != "" {
			return domain
		}
	}

	// Try to get domain from origin header
	origin := c.GetHeader("Origin")
	if origin != "" {
		if domain := m.extractDomainFromURL(origin); domain != "" {
			return domain
		}
	}

	// Try to get domain from X-Forwarded-Host header (for reverse proxies)
	forwardedHost := c.GetHeader("X-Forwarded-Host")
	if forwardedHost != "" {
		return m.normalizeDomain(forwardedHost)
	}

	host := c.GetHeader("Host")
	if host != "" {
		return m.normalizeDomain(host)
	}

	return ""
}

// extractDomainFromURL extracts domain from a URL
func (m *DomainAuthMiddleware) extractDomainFromURL(urlStr string) string {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}

	domain := parsedURL.Host
	if domain == "" {
		return ""
	}

	return m.normalizeDomain(domain)
}

// normalizeDomain normalizes domain for comparison
func (m *DomainAuthMiddleware) normalizeDomain(domain string) string {
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "https://")

	if idx := strings.Index(domain, "/"); idx != -1 {
		domain = domain[:idx]
	}

	if idx := strings.Index(domain, ":"); idx != -1 {
		domain = domain[:idx]
	}

	domain = strings.ToLower(domain)
	domain = strings.TrimPrefix(domain, "www.")

	// Handle localhost vs 127.0.0.1
	if domain == "127.0.0.1" {
		domain = "localhost"
	}

	return domain
}

// checkDomainAccess matches the request domain against the allowlist.
// Allowlist entries may be full origins or bare domains; subdomains of
// an allowed domain are accepted.
func (m *DomainAuthMiddleware) checkDomainAccess(domain string, allowedOrigins []string) bool {
	normalizedDomain := m.normalizeDomain(domain)

	for _, allowed := range allowedOrigins {
		allowedDomain := m.normalizeDomain(strings.TrimPrefix(allowed, "*."))
		if normalizedDomain == allowedDomain || strings.HasSuffix(normalizedDomain, "."+allowedDomain) {
			return true
		}
	}
	return false
}

// logSuspiciousActivity logs suspicious activity to the database
func (m *DomainAuthMiddleware) logSuspiciousActivity(brandID primitive.ObjectID, domain string, c *gin.Context, alertType, message string) {
	userIP := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")
	referrer := c.GetHeader("Referer")

	severity := "medium"
	if alertType == "unauthorized_domain" {
		severity = "high"
	}

	alert := bson.M{
		"brand_id":   brandID,
		"domain":     domain,
		"ip_address": userIP,
		"user_agent": userAgent,
		"referrer":   referrer,
		"alert_type": alertType,
		"severity":   severity,
		"message":    message,
		"resolved":   false,
		"created_at": time.Now(),
	}

	// Insert alert asynchronously
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := m.alertsCollection.InsertOne(ctx, alert); err != nil {
			fmt.Printf("Failed to log suspicious activity: %v\n", err)
		}
	}()
}
