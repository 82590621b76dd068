package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelHub/internal/config"
	"github.com/router-for-me/ChannelHub/internal/models"
	"github.com/router-for-me/ChannelHub/internal/security"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandler authenticates admins and issues JWTs.
type AuthHandler struct {
	db     *gorm.DB         // Database handle for admin lookup.
	jwtCfg config.JWTConfig // Signing secret and expiry.
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

// loginRequest captures the login payload.
type loginRequest struct {
	Username string `json:"username"` // Admin username.
	Password string `json:"password"` // Plain-text password.
}

// Login verifies the credentials and returns a signed token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&admin).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return
	}
	if errCompare := bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte(body.Password)); errCompare != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errMint := security.MintAdminToken(h.jwtCfg.Secret, h.jwtCfg.Expiry, admin.ID)
	if errMint != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int(h.jwtCfg.Expiry.Seconds()),
	})
}
