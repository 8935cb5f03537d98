package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/meinhoongagan/clinic-booking/appointments"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/controllers"
	"github.com/meinhoongagan/clinic-booking/credits"
	"github.com/meinhoongagan/clinic-booking/cron"
	"github.com/meinhoongagan/clinic-booking/db"
	"github.com/meinhoongagan/clinic-booking/jobs"
	"github.com/meinhoongagan/clinic-booking/logger"
	"github.com/meinhoongagan/clinic-booking/organizations"
	"github.com/meinhoongagan/clinic-booking/redis"
	"github.com/meinhoongagan/clinic-booking/reports"
	"github.com/meinhoongagan/clinic-booking/routes"
	"github.com/meinhoongagan/clinic-booking/scheduling"
	"github.com/meinhoongagan/clinic-booking/utils"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		stdlog.Fatalf("failed to build logger: %v", err)
	}
	defer log.Sync()

	gdb, err := db.Init(cfg, log)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(gdb); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
	}

	ctx := context.Background()
	rdb, err := redis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("redis unavailable", zap.Error(err))
	}
	defer rdb.Close()
	queue := redis.NewQueue(rdb, log)

	dispatcher := jobs.NewDispatcher(log)
	jobs.NewMailHandlers(gdb, utils.NewMailer(cfg), log).Register(dispatcher)

	engine := authz.NewEngine(log)
	orgs := organizations.NewService(gdb, engine, log)
	resolver := scheduling.NewResolver(gdb, cfg)
	slots := scheduling.NewSlots(gdb, resolver)
	ledger := credits.NewLedger(gdb, log)
	booking := appointments.NewService(gdb, cfg, engine, resolver, slots, ledger, queue, log)

	handler := controllers.NewHandler(cfg, controllers.Services{
		Organizations: orgs,
		Rules:         scheduling.NewRules(gdb, engine, orgs, log),
		Slots:         slots,
		Resolver:      resolver,
		Appointments:  booking,
		Credits:       credits.NewService(gdb, ledger, engine, log),
		Reports:       reports.NewService(gdb, ledger, engine, log),
	}, log)

	scheduler, err := cron.Start(cfg, booking, queue, dispatcher, log)
	if err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	routes.Setup(app, handler, cfg.JWTSecret, orgs)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	<-scheduler.Stop().Done()
	if err := app.Shutdown(); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}
