// Package auth implements JWT authentication for the HTTP control plane.
package auth

import (
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/paperminder/paperminder/internal/config"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/logging"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var jwtSecret []byte

// Default session timeout is 24 hours, can be overridden via SESSION_TIMEOUT.
var sessionTimeout = 24 * time.Hour

var (
	loginLimiters sync.Map
	loginRate     = rate.Every(time.Minute / 5) // 5 attempts per minute per IP
)

func init() {
	if secret := config.Get("JWT_SECRET", ""); secret != "" {
		jwtSecret = []byte(secret)
	} else {
		jwtSecret = make([]byte, 32)
		rand.Read(jwtSecret)
	}

	sessionTimeout = config.GetDuration("SESSION_TIMEOUT", 24*time.Hour)
}

func getLoginLimiter(ip string) *rate.Limiter {
	if val, ok := loginLimiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(loginRate, 5)
	loginLimiters.Store(ip, limiter)
	return limiter
}

// GenerateToken mints a signed JWT for a user.
func GenerateToken(user *database.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"email":    user.Email,
		"is_admin": user.IsAdmin,
		"exp":      time.Now().Add(sessionTimeout).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseToken validates a JWT and returns the user ID it names.
func ParseToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, jwt.ErrTokenUnverifiable
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// RegisterHandler creates a new user account
func RegisterHandler(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration request"})
		return
	}

	users := database.NewUserService(database.GetDB())
	if _, err := users.GetUserByEmail(req.Email); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user, err := users.CreateUser(req.Email, string(digest), false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	logging.InfoWithComponent(logging.ComponentAuth, "User registered", "user", user.ID)
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler verifies credentials and returns a JWT
func LoginHandler(c *gin.Context) {
	ip := c.ClientIP()
	if !getLoginLimiter(ip).Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid login request"})
		return
	}

	users := database.NewUserService(database.GetDB())
	user, err := users.GetUserByEmail(req.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mint token"})
		return
	}

	if err := users.TouchLastLogin(user.ID); err != nil {
		logging.WarnWithComponent(logging.ComponentAuth, "Failed to record login time",
			"user", user.ID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// MeHandler returns the authenticated user
func MeHandler(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	c.JSON(http.StatusOK, user)
}
