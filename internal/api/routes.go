package api

import "github.com/gin-gonic/gin"

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	session := s.router.Group("/session")
	{
		session.GET("", s.sessionHandler.GetStatus)
		session.POST("/rois", s.sessionHandler.SetupROIs)
		session.GET("/frame", s.sessionHandler.GetFrame)
		if s.stream != nil {
			session.GET("/stream", gin.WrapH(s.stream))
		}
	}

	if s.alertsHandler != nil {
		alerts := s.router.Group("/alerts")
		{
			alerts.GET("", s.alertsHandler.ListAlerts)
			alerts.GET("/stats", s.alertsHandler.GetStats)
		}
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
