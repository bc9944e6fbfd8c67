package server

import "github.com/gin-gonic/gin"

// NewRouter wires the HTTP surface. The deliveries route lives outside the
// /sms group because its path is handed to the gateway as the notify URL.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.Default()

	smsRoutes := router.Group("/sms")
	{
		smsRoutes.POST("", h.sendHandler)
		smsRoutes.POST("/queue", h.queueHandler)
		smsRoutes.POST("/resend", h.resendHandler)
		smsRoutes.POST("/requeue", h.requeueHandler)
		smsRoutes.GET("/unsent", h.unsentHandler)
		smsRoutes.GET("/sent", h.sentHandler)
	}
	router.PUT("/sms-deliveries", h.deliveriesHandler)
	router.GET("/healthz", h.healthHandler)

	return router
}
