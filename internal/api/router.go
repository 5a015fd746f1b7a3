package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"printdesk/internal/config"
	"printdesk/internal/middleware"
)

// NewApp builds the Fiber application with all routes registered.
func NewApp(cfg *config.Config, handler *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "printdesk",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(handler.logger))
	app.Use(middleware.SecurityHeaders())

	// Locally stored photos are served straight from disk. With the s3
	// provider photo URLs point at the bucket instead.
	if cfg.Storage.Provider == "local" || cfg.Storage.Provider == "" {
		app.Static("/files", cfg.Storage.LocalPath)
	}

	api := app.Group("/api")
	api.Get("/health", handler.Health)

	reg := api.Group("/registration")
	reg.Post("/send-code", handler.SendCode)
	reg.Post("/verify-code", handler.VerifyCode)
	reg.Post("/validate-printers", handler.ValidatePrinters)
	reg.Post("/submit", handler.Submit)

	review := reg.Group("", middleware.Authenticated(handler.tokens), middleware.RequireCoordinator())
	review.Get("/pending", handler.ListPending)
	review.Get("/history", handler.ListHistory)
	review.Post("/:id/approve", handler.Approve)
	review.Post("/:id/reject", handler.Reject)

	api.Post("/auth/login", handler.Login)

	notif := api.Group("/notifications", middleware.Authenticated(handler.tokens))
	notif.Get("/", handler.ListNotifications)
	notif.Post("/:id/read", handler.MarkNotificationRead)
	notif.Post("/read-all", handler.MarkAllNotificationsRead)

	return app
}
