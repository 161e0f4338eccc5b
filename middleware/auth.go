package middleware

import (
	"net/http"
	"time"

	"brand-deck-platform/internal/auth"
	"brand-deck-platform/internal/config"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type AuthMiddleware struct {
	config *config.Config
	rdb    *redis.Client
}

func NewAuthMiddleware(cfg *config.Config, rdb *redis.Client) *AuthMiddleware {
	return &AuthMiddleware{
		config: cfg,
		rdb:    rdb,
	}
}

// bearerOrCookieToken pulls the access token from the Authorization
// header first, then the access_token cookie.
func bearerOrCookieToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token := utils.ExtractTokenFromHeader(header); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}
	return ""
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		tokenString := bearerOrCookieToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Authentication token is required",
			})
			c.Abort()
			return
		}

		claims, err := auth.ValidateAccessToken(tokenString, a.rdb)
		if err != nil {
			// Expired access token with a valid refresh cookie rotates
			// the pair in place so browser sessions survive the gap.
			if refreshToken, cookieErr := c.Cookie("refresh_token"); cookieErr == nil && refreshToken != "" {
				refreshClaims, refreshErr := auth.ValidateRefreshToken(refreshToken, a.rdb)
				if refreshErr == nil {
					if revokeErr := auth.RevokeToken(refreshClaims.ID, true, a.rdb); revokeErr != nil {
						_ = revokeErr
					}

					tokenPair, issueErr := auth.IssueTokenPair(refreshClaims.UserID, refreshClaims.BrandID, refreshClaims.Role, a.rdb)
					if issueErr == nil {
						a.setSessionCookies(c, tokenPair)

						freshClaims, valErr := auth.ValidateAccessToken(tokenPair.AccessToken, a.rdb)
						if valErr == nil {
							claims = freshClaims
						}
					}
				}
			}

			if claims == nil {
				errorCode := "session_expired"
				errorMessage := "Your session has expired. Please log in again."

				if refreshToken, cookieErr := c.Cookie("refresh_token"); cookieErr == nil && refreshToken != "" {
					if _, refreshErr := auth.ValidateRefreshToken(refreshToken, a.rdb); refreshErr != nil {
						errorCode = "refresh_token_expired"
					} else {
						errorCode = "token_refresh_failed"
						errorMessage = "Failed to refresh session. Please log in again."
					}
				}

				c.JSON(http.StatusUnauthorized, gin.H{
					"error_code": errorCode,
					"message":    errorMessage,
					"details":    gin.H{"error": err.Error()},
				})
				c.Abort()
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("brand_id", claims.BrandID)
		c.Set("claims", claims)

		c.Next()
	})
}

// RequireViewer accepts short-lived viewer tokens issued for embedded
// decks. The token's origin claim must match the caller's Origin.
func (a *AuthMiddleware) RequireViewer() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		tokenString := bearerOrCookieToken(c)
		if tokenString == "" {
			tokenString = c.Query("viewer_token")
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Viewer token is required",
			})
			c.Abort()
			return
		}

		claims, err := auth.ValidateViewerToken(tokenString, a.rdb)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "invalid_viewer_token",
				"message":    "Viewer token is invalid or expired",
			})
			c.Abort()
			return
		}

		origin := c.GetHeader("Origin")
		if origin != "" && len(claims.Audience) > 0 && claims.Audience[0] != origin {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "origin_mismatch",
				"message":    "Viewer token was issued for a different origin",
			})
			c.Abort()
			return
		}

		c.Set("role", claims.Role)
		c.Set("brand_id", claims.BrandID)
		c.Set("claims", claims)
		c.Set("is_embed", true)

		c.Next()
	})
}

func (a *AuthMiddleware) setSessionCookies(c *gin.Context, pair *auth.TokenPair) {
	secure := a.config.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", pair.AccessToken, int(1*time.Hour.Seconds()), "/", "", secure, true)
	c.SetCookie("refresh_token", pair.RefreshToken, int(7*24*time.Hour.Seconds()), "/", "", secure, true)
}

// SetSessionCookies exposes the cookie writer to the auth routes so
// login and refresh set the same attributes as the auto-refresh path.
func (a *AuthMiddleware) SetSessionCookies(c *gin.Context, pair *auth.TokenPair) {
	a.setSessionCookies(c, pair)
}

// ClearSessionCookies removes both session cookies on logout.
func (a *AuthMiddleware) ClearSessionCookies(c *gin.Context) {
	secure := a.config.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", "", -1, "/", "", secure, true)
	c.SetCookie("refresh_token", "", -1, "/", "", secure, true)
}

// Helper function to get user ID from context
func GetUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// Helper function to get role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get("role"); exists {
		if r, ok := role.(string); ok {
			return r
		}
	}
	return ""
}

// Helper function to get brand ID from context
func GetBrandID(c *gin.Context) string {
	if brandID, exists := c.Get("brand_id"); exists {
		if id, ok := brandID.(string); ok {
			return id
		}
	}
	return ""
}
