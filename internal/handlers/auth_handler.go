package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/schoolfees-api/internal/services"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// @Summary Health Check
// @Description Checks if the API and its database are reachable
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Index(c *gin.Context) {
	status, database, code := "ok", "ok", http.StatusOK
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			status, database, code = "degraded", "unreachable", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":   status,
		"service":  "schoolfees-api",
		"version":  "1.0.0",
		"database": database,
	})
}

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary Login
// @Description Authenticates a user and issues a JWT carrying role, staff and parent claims
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login Credentials"
// @Success 200 {object} services.LoginResult
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		respondError(c, "auth.login", err)
		return
	}

	respond(c, http.StatusOK, result, "Login successful")
}
