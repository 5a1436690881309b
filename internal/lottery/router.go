package lottery

import (
	"github.com/gin-gonic/gin"
)

func SetupLotteryRoutes(router *gin.RouterGroup, controller Controller, organizer ...gin.HandlerFunc) {
	// Organizer only
	admin := router.Group("/admin/lottery", organizer...)
	{
		admin.POST("/:event_id/draw", controller.SelectWinners)
		admin.POST("/:event_id/replacements", controller.DrawReplacement)
		admin.POST("/:event_id/close", controller.CloseDraw)
	}
}
