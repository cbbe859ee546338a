package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"noirkit/internal/api/middleware"
	"noirkit/internal/auth"
	"noirkit/internal/config"
	"noirkit/internal/contact"
	"noirkit/internal/portfolio"
	"noirkit/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	repo := portfolio.NewGormRepository(db)
	pipeline := contact.NewPipeline(
		db,
		redisClient,
		cfg.Contact.RateLimit,
		cfg.Contact.RateWindow,
		cfg.Contact.ReplayWindow,
		cfg.API.AllowedOrigins,
	)

	authHandler := NewAuthHandler(
		db, authService, redisClient, logger,
		cfg.Auth.LoginRateLimitPerHour,
		cfg.Auth.LoginLockThreshold,
		cfg.Auth.LoginLockTTL,
		cfg.Auth.CookieDomain,
	)
	portfolioHandler := NewPortfolioHandler(repo)
	publicHandler := NewPublicHandler(repo)
	contactHandler := NewContactHandler(pipeline, asynqClient, logger)
	assetHandler := NewAssetHandler(db, storageClient, redisClient, logger, cfg.Assets)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(authService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		// 公共读取与访客提交，无需登录。
		publicGroup := v1.Group("/public")
		{
			publicGroup.GET("/portfolio", publicHandler.GetPortfolio)
			publicGroup.POST("/contact", contactHandler.Submit)
		}

		// 仪表盘接口：登录且完成强制改密后方可访问。
		dashboard := v1.Group("/portfolio")
		dashboard.Use(authMiddleware, passwordGate)
		{
			dashboard.GET("", portfolioHandler.GetPortfolio)
			dashboard.PUT("/personal-info", portfolioHandler.UpdatePersonalInfo)

			dashboard.POST("/social-links", portfolioHandler.CreateSocialLink)
			dashboard.PATCH("/social-links/:id", portfolioHandler.UpdateSocialLink)
			dashboard.DELETE("/social-links/:id", portfolioHandler.DeleteSocialLink)
			dashboard.PUT("/social-links/order", portfolioHandler.ReorderSocialLinks)

			dashboard.POST("/projects", portfolioHandler.CreateProject)
			dashboard.PATCH("/projects/:id", portfolioHandler.UpdateProject)
			dashboard.DELETE("/projects/:id", portfolioHandler.DeleteProject)
			dashboard.PUT("/projects/order", portfolioHandler.ReorderProjects)

			dashboard.POST("/tech-stack", portfolioHandler.CreateTechStackItem)
			dashboard.PATCH("/tech-stack/:id", portfolioHandler.UpdateTechStackItem)
			dashboard.DELETE("/tech-stack/:id", portfolioHandler.DeleteTechStackItem)
			dashboard.PUT("/tech-stack/order", portfolioHandler.ReorderTechStackItems)

			dashboard.POST("/achievements", portfolioHandler.CreateAchievement)
			dashboard.PATCH("/achievements/:id", portfolioHandler.UpdateAchievement)
			dashboard.DELETE("/achievements/:id", portfolioHandler.DeleteAchievement)
			dashboard.PUT("/achievements/order", portfolioHandler.ReorderAchievements)

			dashboard.PUT("/contact-form", portfolioHandler.UpdateContactForm)
			dashboard.POST("/contact-form/fields", portfolioHandler.CreateContactField)
			dashboard.PATCH("/contact-form/fields/:id", portfolioHandler.UpdateContactField)
			dashboard.DELETE("/contact-form/fields/:id", portfolioHandler.DeleteContactField)
			dashboard.PUT("/contact-form/fields/order", portfolioHandler.ReorderContactFields)
		}

		submissionGroup := v1.Group("/submissions")
		submissionGroup.Use(authMiddleware, passwordGate)
		{
			submissionGroup.GET("", contactHandler.ListSubmissions)
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware, passwordGate)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
			assetGroup.DELETE("", assetHandler.DeleteAsset)
		}
	}
}
