package router

import (
	"time"

	"parish/api"
	"parish/config"
	_ "parish/docs"
	"parish/middleware"
	"parish/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, budget *service.Budget) *gin.Engine {
	// 设置运行模式
	gin.SetMode(cfg.Server.Mode)

	r := gin.Default()

	// CORS 中间件
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "Cache-Control", "X-Requested-With"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	var mailer *service.ReportMailer
	if cfg.Email.Enabled {
		mailer = service.NewReportMailer(&cfg.Email, budget.Reporter)
	}

	categoryHandler := api.NewCategoryHandler(budget)
	itemHandler := api.NewItemHandler(budget)
	periodHandler := api.NewPeriodHandler(budget)
	realizationHandler := api.NewRealizationHandler(budget)
	reportHandler := api.NewReportHandler(budget, mailer)

	// API v1 路由组，身份由外部签发的 JWT 提供
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(), middleware.WriteRateLimit(cfg.RateLimit.WritePerMinute, time.Minute))
	{
		// 类别与模板树
		categories := v1.Group("/categories")
		{
			categories.GET("", categoryHandler.List)
			categories.POST("", categoryHandler.Create)
			categories.PUT("/:id", categoryHandler.Update)
			categories.DELETE("/:id", categoryHandler.Delete)
			categories.GET("/:id/tree", categoryHandler.Tree)
		}

		items := v1.Group("/items")
		{
			items.POST("", itemHandler.Create)
			items.GET("/:id", itemHandler.Get)
			items.PUT("/:id", itemHandler.Update)
			items.DELETE("/:id", itemHandler.Delete)
			items.GET("/:id/total", itemHandler.Total)
		}

		// 期间、填充与报表
		periods := v1.Group("/periods")
		{
			periods.GET("", periodHandler.List)
			periods.POST("", periodHandler.Create)
			periods.GET("/:id", periodHandler.Get)
			periods.PUT("/:id/status", periodHandler.SetStatus)
			periods.POST("/:id/populate", periodHandler.Populate)
			periods.GET("/:id/snapshot", periodHandler.Snapshot)
			periods.GET("/:id/summary", reportHandler.PeriodSummary)
			periods.GET("/:id/categories/:cid/summary", reportHandler.CategorySummary)
			periods.GET("/:id/export", reportHandler.Export)
			periods.POST("/:id/report/email", reportHandler.Email)
		}

		// 实际记录
		realizations := v1.Group("/realizations")
		{
			realizations.POST("", realizationHandler.Create)
			realizations.PUT("/:id", realizationHandler.Update)
			realizations.DELETE("/:id", realizationHandler.Delete)
		}

		snapshotItems := v1.Group("/snapshot-items")
		{
			snapshotItems.GET("/:id", realizationHandler.ItemDetail)
			snapshotItems.GET("/:id/realizations", realizationHandler.List)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return r
}
