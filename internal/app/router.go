package app

import (
	"github.com/gin-gonic/gin"

	"trustchecker.io/trustchecker/internal/api/handlers"
	"trustchecker.io/trustchecker/internal/api/middleware"
)

func newRouter(server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	v1.GET("/health/live", server.GetLiveness)
	v1.GET("/health/ready", server.GetReadiness)

	events := v1.Group("/events")
	events.POST("", server.PublishEvent)
	events.GET("/status", server.GetEventStatus)
	events.GET("/types", server.ListEventTypes)
	events.GET("/dlq/:group", server.InspectDLQ)
	events.POST("/dlq/:group/replay", server.ReplayDLQ)
	events.DELETE("/dlq/:group", server.PurgeDLQ)

	domains := v1.Group("/domains")
	domains.GET("", server.GetDomainRegistry)
	domains.GET("/:key", server.GetDomain)
	domains.POST("/boundary-check", server.CheckBoundary)

	sagas := v1.Group("/sagas")
	sagas.GET("", server.GetSagas)
	sagas.GET("/:id", server.GetSagaByID)

	views := v1.Group("/views")
	views.GET("", server.GetViewStats)
	views.GET("/dashboard/:orgId", server.GetDashboard)
	views.GET("/scan/:productId", server.GetScanVerification)
	views.GET("/scm-timeline/:shipmentId", server.GetSCMTimeline)
	views.GET("/fraud-overview/:orgId", server.GetFraudOverview)
	views.GET("/:view", server.GetView)

	return router
}
