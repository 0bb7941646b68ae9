package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/tarhbox/backend/internal/config"
	"github.com/tarhbox/backend/internal/database"
	"github.com/tarhbox/backend/internal/handlers"
	"github.com/tarhbox/backend/internal/middleware"
	"github.com/tarhbox/backend/internal/services"
	"github.com/tarhbox/backend/internal/storage"
	"github.com/tarhbox/backend/pkg/logger"
	"github.com/tarhbox/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			log.Printf("sentry init failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	var store storage.Storage
	switch cfg.Storage.Backend {
	case "minio":
		minioStore, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := minioStore.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
		store = minioStore
	default:
		localStore, err := storage.NewLocalStorage(cfg.Storage.Root)
		if err != nil {
			log.Fatalf("local storage initialization failed: %v", err)
		}
		store = localStore
	}

	auditService := services.NewAuditService(db)

	authHandler := handlers.NewAuthHandler(db, auditService)
	profileHandler := handlers.NewProfileHandler(db, store, auditService, cfg.Server.PublicBaseURL)
	documentsHandler := handlers.NewDocumentsHandler(db, store, auditService, cfg.Server.PublicBaseURL)
	filesHandler := handlers.NewFilesHandler(store)

	authMiddleware := middleware.NewAuthMiddleware(db)

	// Two 25 MiB files plus form fields must fit in one request.
	app := fiber.New(fiber.Config{BodyLimit: 64 * 1024 * 1024})
	if cfg.Sentry.DSN != "" {
		app.Use(sentryfiber.New(sentryfiber.Options{Repanic: true}))
	}
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/register", authHandler.Register)
	app.Post("/login", authHandler.Login)
	app.Post("/forgot-password", authHandler.ForgotPassword)
	app.Post("/reset-password", authHandler.ResetPassword)

	app.Get("/dashboard", authMiddleware.RequireAuth, authHandler.Dashboard)
	app.Post("/logout", authMiddleware.RequireAuth, authHandler.Logout)
	app.Put("/user", authMiddleware.RequireAuth, profileHandler.Update)

	app.Post("/upload-document", authMiddleware.RequireAuth, documentsHandler.Upload)
	app.Get("/get-documents", authMiddleware.RequireAuth, documentsHandler.List)
	app.Get("/get-user-files-by-project-type/:projectType", authMiddleware.RequireAuth, documentsHandler.BrowseByProjectType)

	app.Get("/api/files/*", authMiddleware.RequireAuth, filesHandler.Serve)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
		"storage": cfg.Storage.Backend,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
