package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/hookrelay/common/metrics"
	"basegraph.app/hookrelay/internal/http/handler"
	"basegraph.app/hookrelay/internal/service"
)

type RouterConfig struct {
	TraceHeaderName string
}

func SetupRoutes(router *gin.Engine, services *service.Services, registry handler.Receiver, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	webhookHandler := handler.NewWebhookHandler(registry, services.EventIngest(), cfg.TraceHeaderName)
	WebhookRouter(router.Group("/webhooks"), webhookHandler)
}
