package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/schoolfees-api/internal/models"
)

// Context keys set by Auth
const (
	userIDKey   = "userID"
	userRoleKey = "userRole"
	staffIDKey  = "staffID"
	parentIDKey = "parentID"
	claimsKey   = "claims"
)

// Claims represents the JWT claims structure. StaffID is present for staff
// accounts (and admins who also collect), ParentID for parent accounts.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	StaffID  *uint  `json:"staff_id,omitempty"`
	ParentID *uint  `json:"parent_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth returns a middleware that validates JWT tokens
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString := ""

		if authHeader == "" {
			// Receipt downloads are opened in a new tab and pass the token as a query param
			tokenString = c.Query("token")
			if tokenString == "" {
				abort(c, http.StatusUnauthorized, "Authorization header is required")
				return
			}
		} else {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				abort(c, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}
			tokenString = parts[1]
		}

		claims, err := validateToken(tokenString, jwtSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, claims.Role)
		if claims.StaffID != nil {
			c.Set(staffIDKey, *claims.StaffID)
		}
		if claims.ParentID != nil {
			c.Set(parentIDKey, *claims.ParentID)
		}
		c.Set(claimsKey, claims)

		c.Next()
	}
}

// validateToken parses and validates a JWT token string
func validateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token has expired")
		}
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}

// GetUserRole extracts the user role from the Gin context
func GetUserRole(c *gin.Context) string {
	return c.GetString(userRoleKey)
}

// GetStaffID returns the staff record linked to the caller, 0 when none
func GetStaffID(c *gin.Context) uint {
	return c.GetUint(staffIDKey)
}

// GetParentID returns the parent record linked to the caller, 0 when none
func GetParentID(c *gin.Context) uint {
	return c.GetUint(parentIDKey)
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *gin.Context) bool {
	return GetUserRole(c) == models.RoleAdmin
}

// IsParent checks if the current user is a parent
func IsParent(c *gin.Context) bool {
	return GetUserRole(c) == models.RoleParent
}

// RequireAdmin returns a middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

// RequireRole returns a middleware that requires specific roles
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := GetUserRole(c)
		for _, role := range allowedRoles {
			if userRole == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "You do not have permission to access this resource")
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":  "error",
		"message": message,
	})
}
