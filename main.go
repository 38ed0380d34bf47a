package main

import (
	// standard library
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// third-party
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	// internal
	"github.com/paperminder/paperminder/internal/auth"
	"github.com/paperminder/paperminder/internal/config"
	"github.com/paperminder/paperminder/internal/database"
	"github.com/paperminder/paperminder/internal/handlers"
	"github.com/paperminder/paperminder/internal/hub"
	"github.com/paperminder/paperminder/internal/logging"
	"github.com/paperminder/paperminder/internal/pollers"
	"github.com/paperminder/paperminder/internal/version"
)

func main() {
	_ = godotenv.Load()
	logging.InfoWithComponent(logging.ComponentStartup, "Starting PaperMinder server", "version", version.String())

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		os.Stdout.WriteString(version.String() + "\n")
		os.Exit(0)
	}

	if err := database.Initialize(); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	db := database.GetDB()
	baseURL := config.Get("BASE_URL", "http://localhost:8000")

	// The hub is the process singleton owning every live socket.
	h := hub.InitializeHub(db, hub.Config{
		BaseURL:       baseURL,
		SendTimeout:   config.GetDuration("SEND_TIMEOUT", 10*time.Second),
		MaxFrameBytes: config.GetInt64("MAX_FRAME_BYTES", 64*1024),
	})
	defer hub.ShutdownHub()

	// Background pollers: rollout scheduler + cache cleanup.
	pollerManager := pollers.NewManager()
	pollerManager.Register(pollers.NewSchedulerPoller(db, h,
		config.GetDuration("SCHEDULER_INTERVAL", 30*time.Second)))
	pollerManager.Register(pollers.NewCacheCleanupPoller(db,
		config.GetDuration("CACHE_RETENTION", 7*24*time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pollerManager.Start(ctx); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to start pollers", "error", err)
		os.Exit(1)
	}

	if mode := config.Get("GIN_MODE", ""); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	origins := config.Get("CORS_ALLOWED_ORIGINS", "*")
	if origins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(origins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	// WebSocket endpoint, shared by users and printers; the role is inferred
	// from the first frame.
	router.GET("/ws/:id", h.HandleWebSocket)

	// Public endpoints
	router.GET("/health", handlers.HealthHandler)
	router.GET("/api/config", handlers.ConfigHandler)
	router.POST("/api/auth/register", auth.RegisterHandler)
	router.POST("/api/auth/login", auth.LoginHandler)

	// Printers download firmware without credentials.
	router.GET("/api/firmware/download/:version", handlers.DownloadFirmwareHandler)

	// Protected routes
	protected := router.Group("/api")
	protected.Use(auth.AuthRequired())
	{
		protected.GET("/auth/me", auth.MeHandler)

		protected.POST("/printers", handlers.RegisterPrinterHandler)
		protected.GET("/printers", handlers.ListPrintersHandler)
		protected.GET("/printers/:id", handlers.GetPrinterHandler)
		protected.PUT("/printers/:id", handlers.UpdatePrinterHandler)
		protected.DELETE("/printers/:id", handlers.DeletePrinterHandler)
		protected.GET("/printers/:id/updates", handlers.PrinterUpdateHistoryHandler)
		protected.POST("/printers/:id/print-image", handlers.PrintImageHandler)

		protected.POST("/test/messages", handlers.SendTestMessageHandler)
		protected.GET("/messages/received", handlers.ReceivedMessagesHandler)
		protected.GET("/messages/sent", handlers.SentMessagesHandler)

		protected.POST("/groups", handlers.CreateGroupHandler)
		protected.GET("/groups", handlers.ListGroupsHandler)
		protected.DELETE("/groups/:id", handlers.DeleteGroupHandler)
		protected.POST("/groups/:id/members", handlers.AddGroupMemberHandler)
		protected.DELETE("/groups/:id/members", handlers.RemoveGroupMemberHandler)
		protected.GET("/groups/:id/printers", handlers.GroupPrintersHandler)
	}

	// Admin endpoints
	admin := protected.Group("/admin")
	admin.Use(auth.AdminRequired())
	{
		admin.POST("/firmware/upload", handlers.UploadFirmwareHandler)
		admin.GET("/firmware", handlers.ListFirmwareHandler)
		admin.DELETE("/firmware/:id", handlers.DeleteFirmwareHandler)
		admin.POST("/firmware/:version/deprecate", handlers.DeprecateFirmwareHandler)
		admin.POST("/firmware/import-s3", handlers.ImportS3FirmwareHandler)

		admin.POST("/rollouts", handlers.CreateRolloutHandler)
		admin.GET("/rollouts", handlers.ListRolloutsHandler)
		admin.GET("/rollouts/:id", handlers.GetRolloutHandler)
		admin.POST("/rollouts/:id/activate", handlers.ActivateRolloutHandler)
		admin.POST("/rollouts/:id/pause", handlers.PauseRolloutHandler)
		admin.POST("/rollouts/:id/resume", handlers.ResumeRolloutHandler)
		admin.POST("/rollouts/:id/cancel", handlers.CancelRolloutHandler)
		admin.PUT("/rollouts/:id/percentage", handlers.SetRolloutPercentageHandler)
		admin.DELETE("/rollouts/:id", handlers.DeleteRolloutHandler)

		admin.GET("/printers/online", handlers.ListOnlinePrintersHandler)

		admin.GET("/users", handlers.ListUsersHandler)
		admin.GET("/users/:id", handlers.GetUserHandler)
	}

	addr := ":" + config.Get("PORT", "8000")
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logging.InfoWithComponent(logging.ComponentStartup, "Listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorWithComponent(logging.ComponentStartup, "Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.InfoWithComponent(logging.ComponentShutdown, "Shutting down server and pollers")

	if err := pollerManager.Stop(); err != nil {
		logging.ErrorWithComponent(logging.ComponentShutdown, "Error stopping pollers", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorWithComponent(logging.ComponentShutdown, "Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logging.InfoWithComponent(logging.ComponentShutdown, "Server and pollers stopped")
}
