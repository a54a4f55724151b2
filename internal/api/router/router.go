package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cfa-planning/config"
	"cfa-planning/internal/api/handler"
	"cfa-planning/internal/api/middleware"
	"cfa-planning/pkg/jwt"
	"cfa-planning/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 可为 nil：限流与 Token 吊销检查随之关闭
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", h.Health.Live)
	r.GET("/health/ready", h.Health.Ready)

	// 写操作：排课员或管理员，按用户限流
	planner := []gin.HandlerFunc{
		middleware.RoleAuth(jwt.RoleAdmin, jwt.RolePlanner),
		middleware.RateLimit(rdb, cfg.Server.RateLimit, time.Minute),
	}
	write := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, planner...), fn)
	}

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(jwtMgr, rdb, logger))
	{
		authorized.GET("/holidays/:year", h.Calendar.GetPublicHolidays)

		// 学年日历与停课日
		calendars := authorized.Group("/calendars")
		{
			calendars.GET("", h.Calendar.ListCalendars)
			calendars.GET("/current", h.Calendar.GetCurrentCalendar)
			calendars.GET("/:id", h.Calendar.GetCalendar)
			calendars.POST("", write(h.Calendar.CreateCalendar)...)
			calendars.PUT("/:id", write(h.Calendar.UpdateCalendar)...)
			calendars.PUT("/:id/activate", write(h.Calendar.ActivateCalendar)...)
			calendars.DELETE("/:id", middleware.RoleAuth(jwt.RoleAdmin), h.Calendar.DeleteCalendar)

			calendars.GET("/:id/closed-days", h.Calendar.ListClosedDays)
			calendars.POST("/:id/closed-days", write(h.Calendar.AddClosedDay)...)
			calendars.POST("/:id/closed-periods", write(h.Calendar.AddClosedPeriod)...)
			calendars.POST("/:id/holidays/seed", write(h.Calendar.SeedHolidays)...)
			calendars.POST("/:id/closures/import", write(h.Calendar.ImportClosures)...)
		}
		authorized.DELETE("/closed-days/:id", write(h.Calendar.DeleteClosedDay)...)

		// 周循环课时与课次生成
		slots := authorized.Group("/recurring-slots")
		{
			slots.GET("", h.RecurringSlot.ListSlots)
			slots.GET("/:id", h.RecurringSlot.GetSlot)
			slots.POST("", write(h.RecurringSlot.CreateSlot)...)
			slots.PUT("/:id", write(h.RecurringSlot.UpdateSlot)...)
			slots.DELETE("/:id", write(h.RecurringSlot.DeleteSlot)...)

			slots.POST("/validate", h.RecurringSlot.ValidateDraft)
			slots.GET("/:id/conflicts", h.RecurringSlot.GetSlotConflicts)
			slots.POST("/estimate", h.Planning.EstimateDraft)
			slots.GET("/:id/estimate", h.Planning.EstimateSlot)
			slots.GET("/:id/preview", h.Planning.Preview)
			slots.POST("/:id/materialize", write(h.Planning.Materialize)...)
			slots.GET("/:id/occurrences.ics", h.Export.ExportSlotICS)
		}

		// 课次
		occurrences := authorized.Group("/occurrences")
		{
			occurrences.GET("", h.Occurrence.ListOccurrences)
			occurrences.GET("/:id", h.Occurrence.GetOccurrence)
			occurrences.POST("", write(h.Occurrence.CreateOccurrence)...)
			occurrences.PUT("/:id", write(h.Occurrence.UpdateOccurrence)...)
			occurrences.PUT("/:id/status", write(h.Occurrence.ChangeStatus)...)
			occurrences.DELETE("/:id", write(h.Occurrence.DeleteOccurrence)...)
		}

		// 导出
		export := authorized.Group("/export")
		{
			export.GET("/occurrences", h.Export.ExportOccurrences)
		}
	}

	return r
}
