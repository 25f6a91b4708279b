package main

import (
	"fmt"
	"log"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/schoolpay/schoolpay/app/repository"
	"github.com/schoolpay/schoolpay/internal/pkg/cache"
	"github.com/schoolpay/schoolpay/internal/pkg/database"
	"github.com/schoolpay/schoolpay/internal/pkg/env"
	"github.com/schoolpay/schoolpay/internal/pkg/ledger"
	"github.com/schoolpay/schoolpay/internal/pkg/reconcile"
	"github.com/schoolpay/schoolpay/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, webhook payloads are small
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	// RETRY SWEEPER
	repos := repository.GetGlobalRepositories()
	sweeper := ledger.NewSweeper(
		ledger.NewService(repos.Ledger),
		reconcile.NewService(repos.Order, repos.Payment),
	)
	ledger.SetDefaultSweeper(sweeper)
	sweeper.Start()

	return app
}
