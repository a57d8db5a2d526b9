package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codeshop/internal/config"
	"codeshop/internal/db"
	"codeshop/internal/http/handler"
	mw "codeshop/internal/http/middleware"
	"codeshop/internal/service"
)

func main() {
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	database, err := db.Open(cfg)
	if err != nil {
		zap.L().Fatal("failed to open database", zap.Error(err))
	}

	if err := db.AutoMigrate(database); err != nil {
		zap.L().Fatal("failed to run automigrate", zap.Error(err))
	}

	// Start async writer for request logs to reduce SQLite write contention
	mw.StartRequestLogWriter(database)

	if cfg.AdminPassword == "" && cfg.AdminPassHash == "" {
		zap.L().Warn("no ADMIN_PASSWORD or ADMIN_PASSWORD_HASH configured; admin login disabled")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestLogger())
	r.Use(mw.RequestDBLogger())
	r.Use(mw.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	r.Use(mw.CORS())
	// Security headers (lightweight)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Next()
	})

	redemption := service.NewRedemptionService(database)
	generator := service.NewCodeGenerator(database)
	platform := service.NewPlatformClient(cfg.PlatformUsersAPI, cfg.PlatformGamesAPI, cfg.PlatformThumbsAPI)

	publicH := handler.NewPublicHandler(database, cfg, redemption, platform)
	adminH := handler.NewAdminHandler(database, cfg, generator)

	api := r.Group("/api")
	api.POST("/validate-code", publicH.ValidateCode)
	api.POST("/activate", publicH.Activate)
	api.POST("/activate-gamepass", publicH.ActivateByURL)
	api.GET("/status", publicH.OrderStatus)
	api.GET("/platform/user", publicH.PlatformUser)
	api.GET("/platform/users/:userId/games", publicH.PlatformUserGames)
	api.GET("/platform/games/:gameId/passes", publicH.PlatformGamePasses)

	admin := api.Group("/v1/admin")
	admin.POST("/login", adminH.Login)
	admin.POST("/logout", adminH.Logout)

	authed := admin.Group("")
	authed.Use(mw.RequireAdmin(cfg.JWTSecret, cfg.CookieName))
	authed.GET("/codes", adminH.ListCodes)
	authed.POST("/codes", adminH.CreateCode)
	authed.DELETE("/codes/:id", adminH.DeleteCode)
	authed.GET("/codes/stats", adminH.CodeStats)
	authed.POST("/codes/generate", adminH.GenerateCodes)
	authed.POST("/codes/import", adminH.ImportCodes)
	authed.GET("/orders", adminH.ListOrders)
	authed.PATCH("/orders/:id", adminH.UpdateOrder)
	authed.GET("/export/orders", adminH.ExportOrders)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	if err := http.ListenAndServe(addr, r); err != nil {
		zap.L().Fatal("server error", zap.Error(err))
	}
}
