package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelHub/internal/channelsync"
	"github.com/router-for-me/ChannelHub/internal/config"
	handlers "github.com/router-for-me/ChannelHub/internal/http/api/admin/handlers"
	"github.com/router-for-me/ChannelHub/internal/mapping"
	"github.com/router-for-me/ChannelHub/internal/models"
	"github.com/router-for-me/ChannelHub/internal/scheduler"
	"github.com/router-for-me/ChannelHub/internal/security"
	"github.com/router-for-me/ChannelHub/internal/settings"
	"gorm.io/gorm"
)

// Services bundles the collaborators the admin API exposes.
type Services struct {
	Sync      *channelsync.Service
	Mapping   *mapping.Service
	Scheduler *scheduler.Scheduler
	Settings  *settings.Store
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, services Services) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	versionHandler := handlers.NewVersionHandler()
	r.GET("/v0/version", versionHandler.GetVersion)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	channelHandler := handlers.NewChannelHandler(services.Sync)
	authed.GET("/channels", channelHandler.List)

	syncHandler := handlers.NewSyncHandler(services.Scheduler, services.Sync)
	authed.POST("/sync/execute", syncHandler.Execute)
	authed.POST("/sync/retry-failed", syncHandler.RetryFailed)
	authed.POST("/sync/abort", syncHandler.Abort)
	authed.GET("/sync/progress", syncHandler.Progress)
	authed.GET("/sync/last-execution", syncHandler.LastExecution)

	mappingHandler := handlers.NewMappingHandler(services.Mapping)
	authed.POST("/mappings/generate", mappingHandler.Generate)
	authed.GET("/mappings/current", mappingHandler.Current)
	authed.DELETE("/mappings/current", mappingHandler.Clear)
	authed.GET("/mappings/suggestions", mappingHandler.Suggestions)

	settingsHandler := handlers.NewSyncSettingsHandler(services.Scheduler, services.Settings)
	authed.GET("/settings/sync", settingsHandler.Get)
	authed.PUT("/settings/sync", settingsHandler.Update)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
