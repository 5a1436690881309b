package events

import (
	"github.com/gin-gonic/gin"
)

// Guards are the middleware chains each route group runs behind.
type Guards struct {
	Public    []gin.HandlerFunc
	Entrant   []gin.HandlerFunc
	Organizer []gin.HandlerFunc
	JoinLimit gin.HandlerFunc
}

func SetupEventRoutes(router *gin.RouterGroup, controller Controller, guards Guards) {
	// Public routes - anyone can view events and their waitlist counters
	publicEvents := router.Group("/events", guards.Public...)
	{
		publicEvents.GET("/:event_id", controller.GetEvent)
		publicEvents.GET("/:event_id/summary", controller.GetSummary)
	}

	// Entrant routes - authenticated users manage their own entry
	entrant := router.Group("/events/:event_id/waitlist", guards.Entrant...)
	{
		join := []gin.HandlerFunc{controller.JoinWaitlist}
		if guards.JoinLimit != nil {
			join = append([]gin.HandlerFunc{guards.JoinLimit}, join...)
		}
		entrant.POST("", join...)
		entrant.DELETE("", controller.LeaveWaitlist)
		entrant.POST("/respond", controller.RespondToInvitation)
	}

	// Organizer routes
	organizer := router.Group("", guards.Organizer...)
	{
		organizer.POST("/events", controller.CreateEvent)
		organizer.GET("/admin/events/:event_id/entries", controller.ListEntries)
		organizer.POST("/admin/events/:event_id/entries/:user_id/cancel", controller.CancelEntry)
	}
}
