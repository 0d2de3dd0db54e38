package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/hookrelay/internal/http/handler"
)

// WebhookRouter serves provider deliveries. GET is only used by the
// WhatsApp verify handshake.
func WebhookRouter(rg *gin.RouterGroup, h *handler.WebhookHandler) {
	rg.POST("/:provider", h.Receive)
	rg.GET("/:provider", h.Receive)
}
