package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/schoolfees-api/internal/config"
	"github.com/sjperalta/schoolfees-api/internal/models"
	"github.com/sjperalta/schoolfees-api/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// ErrInactiveAccount is returned when a disabled account tries to sign in
var ErrInactiveAccount = errors.New("account is inactive")

// AuthService handles authentication operations
type AuthService struct {
	userRepo repository.UserRepository
	cfg      *config.Config
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		cfg:      cfg,
	}
}

// LoginResult represents the result of a login attempt
type LoginResult struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	User      models.UserResponse `json:"user"`
}

// Login authenticates a user and returns a signed token
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrUnauthorized
	}

	if !user.IsActive() {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrInactiveAccount)
	}

	if !VerifyPassword(password, user.EncryptedPassword) {
		return nil, ErrUnauthorized
	}

	expiresAt := time.Now().Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour)
	token, err := s.generateJWT(user, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.ToResponse(),
	}, nil
}

// generateJWT creates a new JWT token for a user
func (s *AuthService) generateJWT(user *models.User, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    user.Role,
		"exp":     expiresAt.Unix(),
		"iat":     time.Now().Unix(),
	}
	if user.StaffID != nil {
		claims["staff_id"] = *user.StaffID
	}
	if user.ParentID != nil {
		claims["parent_id"] = *user.ParentID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// VerifyPassword compares a password with a hash
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
