package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/brandpulse/internal/common"
	"github.com/suPer8Hu/brandpulse/internal/config"
	"github.com/suPer8Hu/brandpulse/internal/httpapi/handlers"
	"github.com/suPer8Hu/brandpulse/internal/httpapi/middleware"
	"github.com/suPer8Hu/brandpulse/internal/logger"
)

func NewRouter(cfg config.Config, log *logger.Logger, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.Recovery(log))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if cfg.UploadMaxBytes > 0 {
		r.MaxMultipartMemory = cfg.UploadMaxBytes
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// register / login
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	authGroup.POST("/clients", h.CreateClient)
	authGroup.GET("/clients", h.ListClients)
	authGroup.GET("/analysis/jobs/:job_id", h.GetAnalysisJob)

	// everything below checks that :client_id belongs to the caller
	cl := authGroup.Group("/clients/:client_id")
	cl.GET("", h.GetClient)
	cl.PUT("", h.UpdateClient)
	cl.DELETE("", h.DeleteClient)

	// documents
	cl.POST("/files", h.UploadContextFile)
	cl.GET("/context", h.GetContext)

	// chat
	cl.POST("/chat/sessions", h.CreateChatSession)
	cl.GET("/chat/sessions", h.ListChatSessions)
	cl.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)
	cl.POST("/chat/sessions/:session_id/messages", h.SendChatMessage)
	cl.POST("/chat/sessions/:session_id/close", h.CloseChatSession)

	// structured analysis
	cl.POST("/charts", h.GenerateChart)
	cl.POST("/analysis", h.RunFullAnalysis)
	cl.GET("/analysis/latest", h.LatestAnalysis)
	cl.POST("/analysis/jobs", h.EnqueueAnalysisJob)
	cl.POST("/analysis/modules/:module", h.RunAnalysisModule)

	// planning
	cl.POST("/tasks", h.CreateTask)
	cl.GET("/tasks", h.ListTasks)
	cl.PATCH("/tasks/:task_id", h.UpdateTask)
	cl.DELETE("/tasks/:task_id", h.DeleteTask)
	cl.POST("/tasks/:task_id/notes", h.AddTaskNote)
	cl.GET("/tasks/:task_id/notes", h.ListTaskNotes)
	cl.POST("/plans", h.GeneratePlan)
	return r
}
