package router

import (
	"context"
	"log"

	"tally/api"
	"tally/config"
	_ "tally/docs"
	"tally/middleware"
	"tally/service"
	"tally/validation"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Services 路由依赖的业务服务
type Services struct {
	Users       *service.UserService
	Tags        *service.TagService
	Invitations *service.InvitationService
	Expenses    *service.ExpenseService
	Storage     *service.StorageService
}

// NewServices 基于同一个数据库连接创建全部服务，storage 可为 nil（未启用对象存储）
func NewServices(cfg *config.Config, db *gorm.DB, storage *service.StorageService) *Services {
	return &Services{
		Users:       service.NewUserService(db, storage),
		Tags:        service.NewTagService(db),
		Invitations: service.NewInvitationService(db, cfg.InvitationTTL()),
		Expenses:    service.NewExpenseService(db),
		Storage:     storage,
	}
}

// SetupRouter 设置路由，ctx 结束时停止中间件的后台任务
func SetupRouter(ctx context.Context, cfg *config.Config, svc *Services) *gin.Engine {
	// 设置运行模式
	gin.SetMode(cfg.Server.Mode)

	if err := validation.RegisterGin(); err != nil {
		log.Printf("警告: 注册校验规则失败: %v", err)
	}

	r := gin.Default()

	// CORS 中间件
	r.Use(CORSMiddleware())

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		// 认证相关路由（无需登录）
		authHandler := api.NewAuthHandler(cfg, svc.Users, svc.Storage)
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", middleware.LoginRateLimit(ctx, cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst), authHandler.Login)
		}

		// 需要 JWT 认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth())
		{
			// 用户相关
			authorized.GET("/auth/me", authHandler.Me)
			authorized.PUT("/auth/profile", authHandler.UpdateProfile)
			authorized.PUT("/auth/password", authHandler.ChangePassword)
			authorized.POST("/auth/upload-url", authHandler.UploadURL)

			// 标签及共享
			tagHandler := api.NewTagHandler(svc.Tags, svc.Invitations)
			tags := authorized.Group("/tags")
			{
				tags.GET("", tagHandler.List)
				tags.POST("", tagHandler.Create)
				tags.GET("/:id", tagHandler.Get)
				tags.PUT("/:id", tagHandler.Update)
				tags.DELETE("/:id", tagHandler.Delete)
				tags.GET("/:id/shares", tagHandler.Shares)
				tags.POST("/:id/shares", tagHandler.Share)
				tags.DELETE("/:id/shares/:userId", tagHandler.Unshare)
				tags.GET("/:id/invitations", tagHandler.Invitations)
			}

			// 邀请
			invitationHandler := api.NewInvitationHandler(svc.Invitations)
			invitations := authorized.Group("/invitations")
			{
				invitations.POST("", invitationHandler.Create)
				invitations.GET("/pending", invitationHandler.Pending)
				invitations.GET("/sent", invitationHandler.Sent)
				invitations.POST("/:id/accept", invitationHandler.Accept)
				invitations.POST("/:id/decline", invitationHandler.Decline)
				invitations.DELETE("/:id", invitationHandler.Cancel)
			}

			// 消费记录相关
			expenseHandler := api.NewExpenseHandler(svc.Expenses)
			expenses := authorized.Group("/expenses")
			{
				expenses.POST("", expenseHandler.Create)
				expenses.GET("", expenseHandler.List)
				expenses.GET("/:id", expenseHandler.Get)
				expenses.PUT("/:id", expenseHandler.Update)
				expenses.DELETE("/:id", expenseHandler.Delete)
			}

			// 导出相关
			exportHandler := api.NewExportHandler(svc.Expenses)
			authorized.GET("/export/xlsx", exportHandler.ExportXLSX)
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

// CORSMiddleware CORS 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
