package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/pflag"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/admin"
	"commerce-backend/internal/auth"
	"commerce-backend/internal/config"
	"commerce-backend/internal/customer"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/instrument"
	"commerce-backend/internal/metadata"
	"commerce-backend/internal/order"
	"commerce-backend/internal/payment"
	"commerce-backend/internal/store"
	"commerce-backend/internal/user"
)

func main() {
	configPath, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("invalid arguments", "err", err)
		os.Exit(2)
	}

	if err := run(configPath); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// parseFlags returns the --config path. Usage is printed to stderr on
// error.
func parseFlags(args []string) (string, error) {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the config file (default: app.yaml)")
	if err := flags.Parse(args); err != nil {
		return "", err
	}
	if flags.NArg() > 0 {
		return "", fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	return *configPath, nil
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Config and logging
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))
	slog.Info("config loaded", "port", cfg.Server.Port, "driver", cfg.Database.Driver, "db", cfg.Database.Name)

	// 2. Database and schema
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	reg, err := metadata.Load()
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	if err := db.Bootstrap(ctx, reg, store.SeedUser{
		Email:      cfg.Auth.SuperAdminEmail,
		Password:   cfg.Auth.SuperAdminPassword,
		BcryptCost: cfg.Auth.BcryptCost,
	}); err != nil {
		return err
	}
	slog.Info("schema ready", "entities", len(reg.AllEntities()))

	// 3. Instrumentation
	var sink instrument.Sink
	if cfg.Instrumentation.Enabled {
		buf := instrument.NewEventBuffer(db, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer buf.Stop()
		sink = buf
		go instrument.RunRetention(ctx, db, cfg.Instrumentation.RetentionDays, time.Hour)
	}

	// 4. Services
	factory := ability.NewFactory()
	gateway := payment.New(cfg.Payment.StripeSecretKey, cfg.Payment.Currency)
	if cfg.Payment.StripeSecretKey == "" {
		slog.Warn("no stripe secret configured, card payments run offline")
	}
	tokens := auth.NewTokens(cfg.Auth)
	authn := auth.Middleware(db, tokens)
	limit := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.RateLimit.Enabled {
		limit = auth.NewRateLimiter(cfg.RateLimit).Handler()
	}

	// 5. HTTP
	app := fiber.New(fiber.Config{
		ErrorHandler:          engine.ErrorHandler,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, sink))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	auth.RegisterRoutes(api, auth.NewHandler(db, tokens, gateway, cfg.Auth), limit, authn)

	// everything below requires a bearer token
	protected := api.Group("", authn)
	admin.RegisterRoutes(protected, admin.NewHandler(db, reg, factory, cfg.Auth))
	user.RegisterRoutes(protected, user.NewHandler(db, reg, factory, gateway, cfg.Auth))
	customer.RegisterRoutes(protected, customer.NewHandler(db, reg, factory))
	order.RegisterRoutes(protected, order.NewHandler(db, reg, factory, gateway))
	instrument.RegisterEventRoutes(protected, instrument.NewEventHandler(db),
		engine.RequireEvery(factory, ability.Read, ability.User))
	engine.RegisterCatalogRoutes(protected, engine.NewHandler(db, reg, factory))

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("listening", "addr", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
