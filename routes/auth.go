package routes

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"time"

	"brand-deck-platform/internal/auth"
	"brand-deck-platform/internal/config"
	"brand-deck-platform/middleware"
	"brand-deck-platform/models"
	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const passwordResetTTL = 30 * time.Minute

// PasswordResetMailer sends the reset link. The SMTP sender in services
// satisfies this; tests plug in a recorder.
type PasswordResetMailer interface {
	SendEmail(recipients []string, subject, htmlBody, textBody string) error
}

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, rdb *redis.Client, authMiddleware *middleware.AuthMiddleware, mailer PasswordResetMailer) {
	authGroup := router.Group("/api/auth")

	usersCollection := db.Collection("users")
	resetsCollection := db.Collection("password_resets")

	userInfo := func(user *models.User) models.UserInfo {
		brandIDStr := ""
		if user.BrandID != nil {
			brandIDStr = user.BrandID.Hex()
		}
		return models.UserInfo{
			ID:       user.ID.Hex(),
			Username: user.Username,
			Name:     user.Name,
			Email:    user.Email,
			Phone:    user.Phone,
			Role:     user.Role,
			BrandID:  brandIDStr,
		}
	}

	// Registration always creates a brand member. Platform roles are
	// assigned by an admin, never self-selected.
	authGroup.POST("/register", func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid request data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		var existingUser models.User
		if err := usersCollection.FindOne(c.Request.Context(), bson.M{"username": req.Username}).Decode(&existingUser); err == nil {
			c.JSON(http.StatusConflict, gin.H{
				"error_code": "username_exists",
				"message":    "Username already exists",
			})
			return
		}

		hashedPassword, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to process password",
			})
			return
		}

		var brandID *primitive.ObjectID
		if req.BrandID != "" {
			objID, err := primitive.ObjectIDFromHex(req.BrandID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error_code": "invalid_brand_id",
					"message":    "Invalid brand ID format",
				})
				return
			}

			// The brand must exist before a member can join it
			if err := db.Collection("brands").FindOne(c.Request.Context(), bson.M{"_id": objID}).Err(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error_code": "brand_not_found",
					"message":    "Brand does not exist",
				})
				return
			}
			brandID = &objID
		}

		now := time.Now()
		user := models.User{
			Username:     req.Username,
			Name:         req.Name,
			Email:        req.Email,
			Phone:        req.Phone,
			PasswordHash: hashedPassword,
			Role:         "member",
			BrandID:      brandID,
			TokenUsage:   0,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		result, err := usersCollection.InsertOne(c.Request.Context(), user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to create user",
			})
			return
		}
		user.ID = result.InsertedID.(primitive.ObjectID)

		brandIDStr := ""
		if brandID != nil {
			brandIDStr = brandID.Hex()
		}

		pair, err := auth.IssueTokenPair(user.ID.Hex(), brandIDStr, user.Role, rdb)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to issue tokens",
			})
			return
		}
		authMiddleware.SetSessionCookies(c, pair)

		c.JSON(http.StatusCreated, models.TokenPairResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			AccessExp:    pair.AccessExp,
			RefreshExp:   pair.RefreshExp,
			User:         userInfo(&user),
		})
	})

	authGroup.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid request data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		var user models.User
		if err := usersCollection.FindOne(c.Request.Context(), bson.M{"username": req.Username}).Decode(&user); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "invalid_credentials",
				"message":    "Invalid username or password",
			})
			return
		}

		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "invalid_credentials",
				"message":    "Invalid username or password",
			})
			return
		}

		brandIDStr := ""
		if user.BrandID != nil {
			brandIDStr = user.BrandID.Hex()
		}

		pair, err := auth.IssueTokenPair(user.ID.Hex(), brandIDStr, user.Role, rdb)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to issue tokens",
			})
			return
		}
		authMiddleware.SetSessionCookies(c, pair)

		c.JSON(http.StatusOK, models.TokenPairResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			AccessExp:    pair.AccessExp,
			RefreshExp:   pair.RefreshExp,
			User:         userInfo(&user),
		})
	})

	// Rotate the pair: the old refresh token is revoked before the new
	// pair is issued, so a stolen refresh token only works once.
	authGroup.POST("/refresh", func(c *gin.Context) {
		refreshToken := c.GetHeader("X-Refresh-Token")
		if refreshToken == "" {
			if cookie, err := c.Cookie("refresh_token"); err == nil {
				refreshToken = cookie
			}
		}
		if refreshToken == "" {
			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			if c.ShouldBindJSON(&body) == nil {
				refreshToken = body.RefreshToken
			}
		}

		if refreshToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Refresh token required",
			})
			return
		}

		claims, err := auth.ValidateRefreshToken(refreshToken, rdb)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "refresh_token_expired",
				"message":    "Refresh token is invalid or expired",
			})
			return
		}

		if err := auth.RevokeToken(claims.ID, true, rdb); err != nil {
			log.Printf("⚠️ Failed to revoke rotated refresh token: %v", err)
		}

		pair, err := auth.IssueTokenPair(claims.UserID, claims.BrandID, claims.Role, rdb)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to issue tokens",
			})
			return
		}
		authMiddleware.SetSessionCookies(c, pair)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"access_exp":    pair.AccessExp,
			"refresh_exp":   pair.RefreshExp,
		})
	})

	authGroup.POST("/logout", func(c *gin.Context) {
		// Revoke whichever tokens the request still carries
		if header := c.GetHeader("Authorization"); header != "" {
			if token := utils.ExtractTokenFromHeader(header); token != "" {
				if claims, err := auth.ValidateAccessToken(token, rdb); err == nil {
					if err := auth.RevokeToken(claims.ID, false, rdb); err != nil {
						log.Printf("⚠️ Failed to revoke access token on logout: %v", err)
					}
				}
			}
		}
		if refreshToken, err := c.Cookie("refresh_token"); err == nil && refreshToken != "" {
			if claims, err := auth.ValidateRefreshToken(refreshToken, rdb); err == nil {
				if err := auth.RevokeToken(claims.ID, true, rdb); err != nil {
					log.Printf("⚠️ Failed to revoke refresh token on logout: %v", err)
				}
			}
		}

		authMiddleware.ClearSessionCookies(c)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})

	authGroup.GET("/me", authMiddleware.RequireAuth(), func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		objID, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Invalid session",
			})
			return
		}

		var user models.User
		if err := usersCollection.FindOne(c.Request.Context(), bson.M{"_id": objID}).Decode(&user); err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error_code": "user_not_found",
				"message":    "User no longer exists",
			})
			return
		}

		c.JSON(http.StatusOK, userInfo(&user))
	})

	// The response is identical whether or not the email is known, so
	// the endpoint cannot be used to enumerate accounts.
	authGroup.POST("/forgot-password", func(c *gin.Context) {
		var req models.ForgotPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "A valid email is required",
			})
			return
		}

		accepted := gin.H{"message": "If that email is registered, a reset link has been sent."}

		var user models.User
		if err := usersCollection.FindOne(c.Request.Context(), bson.M{"email": req.Email}).Decode(&user); err != nil {
			c.JSON(http.StatusOK, accepted)
			return
		}

		token, err := generateResetToken()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to create reset token",
			})
			return
		}

		reset := models.PasswordReset{
			UserID:    user.ID,
			Token:     token,
			Email:     user.Email,
			ExpiresAt: time.Now().Add(passwordResetTTL),
			Used:      false,
			CreatedAt: time.Now(),
		}
		if _, err := resetsCollection.InsertOne(c.Request.Context(), reset); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to create reset token",
			})
			return
		}

		if mailer != nil {
			go sendResetEmail(mailer, user.Email, user.Name, token)
		}

		c.JSON(http.StatusOK, accepted)
	})

	authGroup.POST("/reset-password", func(c *gin.Context) {
		var req models.ResetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Token and a new password are required",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		var reset models.PasswordReset
		err := resetsCollection.FindOne(c.Request.Context(), bson.M{
			"token":      req.Token,
			"used":       false,
			"expires_at": bson.M{"$gt": time.Now()},
		}).Decode(&reset)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_reset_token",
				"message":    "Reset token is invalid or expired",
			})
			return
		}

		hashedPassword, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to process password",
			})
			return
		}

		if _, err := usersCollection.UpdateOne(c.Request.Context(),
			bson.M{"_id": reset.UserID},
			bson.M{"$set": bson.M{"password_hash": hashedPassword, "updated_at": time.Now()}},
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to update password",
			})
			return
		}

		if _, err := resetsCollection.UpdateOne(c.Request.Context(),
			bson.M{"_id": reset.ID},
			bson.M{"$set": bson.M{"used": true}},
		); err != nil {
			log.Printf("⚠️ Failed to mark reset token used: %v", err)
		}

		// Force re-login everywhere with the new password
		if err := auth.RevokeAllUserTokens(reset.UserID.Hex(), rdb); err != nil {
			log.Printf("⚠️ Failed to revoke sessions after password reset: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{"message": "Password updated. Please log in again."})
	})
}

func generateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func sendResetEmail(mailer PasswordResetMailer, email, name, token string) {
	subject := "Reset your password"
	textBody := fmt.Sprintf(
		"Hi %s,\n\nUse the token below to reset your password. It expires in %d minutes.\n\n%s\n\nIf you did not request this, you can ignore this email.\n",
		name, int(passwordResetTTL.Minutes()), token)
	htmlBody := fmt.Sprintf(
		"<p>Hi %s,</p><p>Use the token below to reset your password. It expires in %d minutes.</p><pre>%s</pre><p>If you did not request this, you can ignore this email.</p>",
		name, int(passwordResetTTL.Minutes()), token)

	if err := mailer.SendEmail([]string{email}, subject, htmlBody, textBody); err != nil {
		log.Printf("⚠️ Failed to send password reset email: %v", err)
	}
}
