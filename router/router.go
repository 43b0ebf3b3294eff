package router

import (
	"net/http"

	"wabot/config"
	"wabot/controllers"
	dbpkg "wabot/db"
	"wabot/middleware"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

// Initialize wires all routes and middlewares.
func Initialize(r *gin.Engine, cfg config.Configuration, database *gorm.DB, svc *controllers.Services) {
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.RequestID())
	r.Use(dbpkg.SetDBtoContext(database))
	r.Use(controllers.SetServicesToContext(svc))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")

	// Gateway callbacks, path configurable so it matches the URL registered on create
	webhookPath := cfg.Webhook.Path
	if webhookPath == "" {
		webhookPath = "/api/whatsapp/webhook"
	}
	r.POST(webhookPath, Logger(), controllers.WhatsAppWebhook)

	// Flow engine lookup
	api.POST("/bot-config", Logger(), controllers.GetBotConfig)

	wa := api.Group("/whatsapp")
	wa.POST("/connect", Logger(), controllers.WhatsAppConnect)
	wa.POST("/disconnect", Logger(), controllers.WhatsAppDisconnect)
	wa.GET("/instances/:name", Logger(), controllers.GetWhatsAppInstance)
	wa.GET("/instances/:name/conversations", Logger(), controllers.GetInstanceConversations)
	wa.GET("/conversations/:id/messages", Logger(), controllers.GetConversationMessages)
	wa.GET("/gateway/instances", Logger(), controllers.GetGatewayInstances)

	zap.L().Info("routes initialized", zap.String("webhook_path", webhookPath))
}
