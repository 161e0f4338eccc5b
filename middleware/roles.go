package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type RoleMiddleware struct{}

func NewRoleMiddleware() *RoleMiddleware {
	return &RoleMiddleware{}
}

func (r *RoleMiddleware) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "User role not found",
			})
			c.Abort()
			return
		}

		hasRole := false
		for _, allowedRole := range allowedRoles {
			if role == allowedRole {
				hasRole = true
				break
			}
		}

		if !hasRole {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "forbidden",
				"message":    "Insufficient permissions",
				"details": gin.H{
					"required_roles": allowedRoles,
					"user_role":      role,
				},
			})
			c.Abort()
			return
		}

		c.Next()
	})
}

// AdminGuard restricts a route to platform operators.
func (r *RoleMiddleware) AdminGuard() gin.HandlerFunc {
	return r.RequireRole("superadmin", "admin")
}

// SuperAdminGuard restricts a route to the platform owner.
func (r *RoleMiddleware) SuperAdminGuard() gin.HandlerFunc {
	return r.RequireRole("superadmin")
}

// MemberGuard admits brand members and platform operators.
func (r *RoleMiddleware) MemberGuard() gin.HandlerFunc {
	return r.RequireRole("member", "admin", "superadmin")
}

// RequireBrandAccess checks that a brand-scoped route is only reached
// by members of that brand. Platform operators can reach any brand.
func (r *RoleMiddleware) RequireBrandAccess() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		role := GetRole(c)
		userBrandID := GetBrandID(c)

		if role == "superadmin" || role == "admin" {
			c.Next()
			return
		}

		if role == "member" && userBrandID == "" {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "forbidden",
				"message":    "Brand ID required for this operation",
			})
			c.Abort()
			return
		}

		requestedBrandID := c.Param("id")
		if requestedBrandID == "" {
			requestedBrandID = c.Param("brand_id")
		}

		if requestedBrandID != "" && !CanAccessBrand(c, requestedBrandID) {
			c.JSON(http.StatusForbidden, gin.H{
				"error_code": "forbidden",
				"message":    "Access denied to this brand",
			})
			c.Abort()
			return
		}

		c.Next()
	})
}

// Helper function to check if user is a platform operator
func IsAdmin(c *gin.Context) bool {
	role := GetRole(c)
	return role == "superadmin" || role == "admin"
}

// Helper function to check brand ownership
func CanAccessBrand(c *gin.Context, targetBrandID string) bool {
	if IsAdmin(c) {
		return true
	}

	return GetBrandID(c) == targetBrandID
}
