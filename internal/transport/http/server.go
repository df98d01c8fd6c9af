package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	appsvc "galaxychat/internal/app"
	"galaxychat/internal/bootstrap"
	"galaxychat/internal/chatcontext"
	"galaxychat/internal/pkg/logger"
	"galaxychat/internal/transport/http/handler"
	"galaxychat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(logger.Middleware(middleware.ContextUserIDKey), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	if app.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))
	}
	router.Static(cfg.Upload.PublicPath, cfg.Upload.Dir)

	finder := appsvc.NewRecentChatFinder(app.Chats, app.RecentCache, cfg.Context.RecentChatLimit+1)
	assembler := chatcontext.NewAssembler(finder, chatcontext.Options{
		MaxMessages:      cfg.Context.MaxMessages,
		MaxOlderMessages: cfg.Context.MaxOlderMessages,
		RecentChatLimit:  cfg.Context.RecentChatLimit,
		Metrics:          app.ContextMetrics,
	})
	authService := appsvc.NewAuthService(
		app.Users,
		app.Catalog,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(appsvc.ChatServiceDeps{
		Chats:     app.Chats,
		Users:     app.Users,
		Cache:     app.RecentCache,
		Publisher: app.Publisher,
		Assembler: assembler,
		Models:    app.Catalog,
		Completer: app.Completer,
		Expander:  app.Storage,
	}, appsvc.ChatOptions{
		SystemPrompt:     cfg.Chat.SystemPrompt,
		Temperature:      cfg.Chat.Temperature,
		DefaultMaxTokens: cfg.Chat.DefaultMaxTokens,
		PDFMaxPages:      cfg.Upload.PDFMaxPages,
		MaxMessages:      cfg.Context.MaxMessages,
	})

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService, app.Catalog)
	chatsHandler := handler.NewChatsHandler(chatService)
	uploadHandler := handler.NewUploadHandler(app.Storage)

	requireAuth := middleware.AuthJWT(cfg.Auth.JWTSecret)
	optionalAuth := middleware.OptionalAuthJWT(cfg.Auth.JWTSecret)
	limiter := middleware.NewRateLimiter(middleware.RateLimiterOptions{
		Limit: rate.Limit(cfg.RateLimit.RequestsPerSecond),
		Burst: cfg.RateLimit.Burst,
	}).Middleware()

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)
	v1.PUT("/users/me/preferences", requireAuth, authHandler.UpdatePreferences)

	v1.GET("/models", chatHandler.Models)
	v1.GET("/chat", chatHandler.Models)
	v1.POST("/chat", optionalAuth, limiter, chatHandler.Turn)

	chatsGroup := v1.Group("/chats")
	chatsGroup.Use(requireAuth)
	chatsGroup.GET("", chatsHandler.List)
	chatsGroup.POST("", chatsHandler.Create)
	chatsGroup.GET("/:chatId", chatsHandler.Get)
	chatsGroup.PATCH("/:chatId", chatsHandler.Update)
	chatsGroup.DELETE("/:chatId", chatsHandler.Delete)

	v1.POST("/upload", optionalAuth, limiter, uploadHandler.Upload)
	v1.GET("/pdf-proxy", uploadHandler.PDFProxy)

	return router
}
