package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/hallway-app/hallway/internal/pkg/cache"
	"github.com/hallway-app/hallway/internal/pkg/database"
	"github.com/hallway-app/hallway/internal/pkg/env"
	"github.com/hallway-app/hallway/internal/pkg/jobqueue"
	"github.com/hallway-app/hallway/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Graceful shutdown: stop taking requests, then drain the workers.
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdownCh
		log.Infof("[App] Received %s, shutting down", sig)
		if err := app.Shutdown(); err != nil {
			log.Errorf("[App] Shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Errorf("[App] Server stopped: %v", err)
	}

	jobqueue.GetManager().Stop()
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	jobqueue.GetManager().Start()

	app := fiber.New(fiber.Config{
		AppName:   "Hallway",
		BodyLimit: 1 << 20, // webhook payloads are small
	})

	app.Use(recover.New(), logger.New())

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}), monitor.New())

	router.InstallRouter(app)

	return app
}
