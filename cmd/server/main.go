package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"medstock-backend/internal/alerts"
	"medstock-backend/internal/audit"
	"medstock-backend/internal/auth"
	"medstock-backend/internal/clock"
	"medstock-backend/internal/config"
	"medstock-backend/internal/courses"
	"medstock-backend/internal/dashboard"
	"medstock-backend/internal/database"
	"medstock-backend/internal/httpx"
	"medstock-backend/internal/lock"
	"medstock-backend/internal/logger"
	"medstock-backend/internal/models"
	"medstock-backend/internal/orders"
	"medstock-backend/internal/restock"
	"medstock-backend/internal/sweeper"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("[FATAL] logger: %v", err)
	}
	defer zlog.Sync()

	loc, _ := cfg.Location()
	lang, _ := cfg.Language()
	interval, _ := cfg.SweepInterval()
	clk := clock.System{Loc: loc}

	if err := database.Init(cfg, clk, zlog); err != nil {
		zlog.Fatal("Database init failed", "error", err)
	}
	db := database.DB

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		rl, err := lock.NewRedisLocker(cfg.RedisAddr, zlog)
		if err != nil {
			zlog.Fatal("Redis locker init failed", "addr", cfg.RedisAddr, "error", err)
		}
		defer rl.Close()
		locker = rl
		zlog.Info("Using Redis course locks", "addr", cfg.RedisAddr)
	}

	recorder := audit.NewRecorder(db, clk)
	alertSvc := alerts.NewService(db, locker, recorder, clk, zlog)
	processor := restock.NewProcessor(db, locker, recorder, clk, zlog)
	courseSvc := courses.NewService(db, locker, recorder, clk, zlog)
	orderSvc := orders.NewService(db, processor, recorder, clk, zlog)

	// The aggregator and the sweeper point at each other: the sweeper reads
	// the feed, the dashboard shows when the sweeper runs next.
	sched := &sweeperSchedule{}
	agg := dashboard.NewAggregator(db, orderSvc, sched, clk, lang, zlog)
	sweep := sweeper.New(agg, interval, clk, zlog)
	sched.s = sweep

	app := fiber.New(fiber.Config{
		ErrorHandler: httpx.ErrorHandler(zlog),
	})

	app.Use(recover.New())
	app.Use(requestid.New())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/login", auth.LoginHandler(cfg, db, clk))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler(db))

	// Clients
	protected.Get("/clients", courses.ListClientsHandler(courseSvc))
	protected.Get("/clients/:id", courses.GetClientHandler(courseSvc))
	protected.Post("/clients", courses.CreateClientHandler(courseSvc))
	protected.Put("/clients/:id", courses.UpdateClientHandler(courseSvc))
	protected.Delete("/clients/:id", auth.RequireRole(models.RoleAdmin), courses.DeleteClientHandler(courseSvc))

	// Courses
	protected.Get("/courses", courses.ListCoursesHandler(courseSvc))
	protected.Get("/courses/:id", courses.GetCourseHandler(courseSvc))
	protected.Post("/courses", courses.CreateCourseHandler(courseSvc))
	protected.Put("/courses/:id", courses.UpdateCourseHandler(courseSvc))
	protected.Delete("/courses/:id", auth.RequireRole(models.RoleAdmin), courses.DeleteCourseHandler(courseSvc))

	// Stock
	protected.Post("/courses/:id/restock", restock.RestockHandler(processor))
	protected.Post("/courses/:id/adjust-stock", restock.AdjustStockHandler(processor))
	protected.Get("/courses/:id/restock-logs", restock.ListRestockLogsHandler(processor))

	// Alerts
	protected.Get("/courses/:id/alert", alerts.GetCourseAlertHandler(alertSvc))
	protected.Post("/courses/:id/acknowledge", alerts.AcknowledgeHandler(alertSvc))
	protected.Post("/courses/:id/snooze", alerts.SnoozeHandler(alertSvc))
	protected.Post("/courses/:id/unsnooze", alerts.UnsnoozeHandler(alertSvc))
	protected.Get("/alerts/feed", dashboard.FeedHandler(agg))

	// Orders
	protected.Post("/courses/:id/orders", orders.CreateOrderHandler(orderSvc))
	protected.Get("/orders", orders.ListOrdersHandler(orderSvc))
	protected.Post("/orders/:id/receive", orders.ReceiveOrderHandler(orderSvc))
	protected.Post("/orders/:id/cancel", orders.CancelOrderHandler(orderSvc))

	// Dashboard
	protected.Get("/dashboard", dashboard.DashboardHandler(agg))

	// Audit
	protected.Get("/audit-logs", auth.RequireRole(models.RoleAdmin), audit.ListAuditLogsHandler(recorder))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info("HTTP server listening", "port", cfg.HTTPPort)
		return app.Listen(":" + cfg.HTTPPort)
	})
	g.Go(func() error {
		err := sweep.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		zlog.Info("Shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		zlog.Error("Server stopped", "error", err)
	}
}

type sweeperSchedule struct {
	s *sweeper.Sweeper
}

func (w *sweeperSchedule) NextRunAt() *time.Time {
	if w.s == nil {
		return nil
	}
	return w.s.NextRunAt()
}
