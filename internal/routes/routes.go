package routes

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hackforge/proctor-backend/internal/config"
	"github.com/hackforge/proctor-backend/internal/controllers"
	"github.com/hackforge/proctor-backend/internal/judge"
	"github.com/hackforge/proctor-backend/internal/middleware"
	"github.com/hackforge/proctor-backend/internal/monitoring"
	"github.com/hackforge/proctor-backend/internal/ws"
)

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, hubs *ws.Hubs) {
	expiresMins, err := time.ParseDuration(cfg.JWTExpiresIn + "m")
	if err != nil || expiresMins == 0 {
		expiresMins = 60 * time.Minute
	}

	store := monitoring.NewGormStore(db)

	judgeTimeout := 20 * time.Second
	if n, err := strconv.Atoi(cfg.JudgeTimeoutSecs); err == nil && n > 0 {
		judgeTimeout = time.Duration(n) * time.Second
	}

	authCtrl := &controllers.AuthController{DB: db, JWTSecret: cfg.JWTSecret, ExpiresIn: expiresMins}
	adminCtrl := &controllers.AdminController{DB: db}
	telemetryCtrl := &controllers.TelemetryController{Store: store, Hubs: hubs}
	monitorCtrl := &controllers.MonitoringController{Store: store, Hubs: hubs}
	faceCtrl := &controllers.FaceDescriptorController{DB: db}
	subCtrl := &controllers.SubmissionController{DB: db}
	runnerCtrl := &controllers.RunnerController{
		Judge: judge.NewClient(cfg.JudgeBaseURL, cfg.JudgeAPIKey, judgeTimeout),
	}

	// Public
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/login", authCtrl.Login)
	}

	// Protected
	authMW := middleware.AuthMiddleware(db, middleware.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		JWTExpiresIn: expiresMins,
	})
	api := r.Group("/api/v1", authMW)
	{
		api.GET("/auth/me", authCtrl.Me)

		// Proctoring telemetry (any authenticated exam-taker)
		api.POST("/violations/batch", telemetryCtrl.IngestViolations)
		api.POST("/events", telemetryCtrl.IngestEvents)
		api.POST("/submissions/auto", subCtrl.AutoSubmit)

		// Session review: participants see their own, admin/judge see all
		api.GET("/monitoring-sessions", monitorCtrl.ListSessions)
		api.GET("/monitoring-sessions/:id", monitorCtrl.GetSession)

		// Reference face embedding (owner or privileged role)
		api.GET("/users/:id/face-descriptor", faceCtrl.Get)
		api.POST("/users/:id/face-descriptor", faceCtrl.Upsert)

		// Online code runner
		api.POST("/runner/execute", runnerCtrl.Execute)

		// Realtime feeds
		api.GET("/ws/monitoring", ws.MonitoringHandler(hubs))
		api.GET("/ws/session", ws.ParticipantHandler(hubs))

		// Admin-only
		admin := api.Group("/admin", middleware.RequireRoles("admin"))
		{
			admin.GET("/users", adminCtrl.ListUsers)
			admin.POST("/users", authCtrl.Register)
			admin.GET("/users/:user_id", adminCtrl.GetUser)
			admin.PUT("/users/:user_id", adminCtrl.UpdateUser)
			admin.DELETE("/users/:user_id", adminCtrl.DeleteUser)

			admin.POST("/monitoring-sessions/:id/terminate", monitorCtrl.Terminate)
		}

		// Review area (judges and admin)
		review := api.Group("/review", middleware.RequireRoles("judge", "admin"))
		{
			review.GET("/submissions", subCtrl.List)
		}
	}
}
