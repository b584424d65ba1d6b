package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/apidoc"
	"github.com/ManuelReschke/PayFox/internal/pkg/archive"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PayFox/internal/pkg/mail"
	"github.com/ManuelReschke/PayFox/internal/pkg/metrics"
	"github.com/ManuelReschke/PayFox/internal/pkg/notification"
	"github.com/ManuelReschke/PayFox/internal/pkg/plancatalog"
	"github.com/ManuelReschke/PayFox/internal/pkg/router"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	env.SetupEnvFile()
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	if err := database.SetupDatabase(); err != nil {
		return err
	}
	defer database.Close()
	cache.SetupCache()
	defer cache.Close()

	app, manager, err := NewApplication()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager.Start()
	defer manager.Stop()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("[PayFox] Listening on %s", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("[PayFox] Shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	return g.Wait()
}

// NewApplication wires the billing engine onto a fiber app. The database and
// cache must already be set up.
func NewApplication() (*fiber.App, *jobqueue.Manager, error) {
	db := database.GetDB()
	m := metrics.Get()

	plans, err := plancatalog.Load(env.GetEnv("PLAN_CATALOG_FILE", ""))
	if err != nil {
		return nil, nil, err
	}
	log.Infof("[PayFox] Plan catalog: %v", plans.IDs())

	manager := jobqueue.GetManager()
	queue := manager.GetQueue()

	notificationRepo := notification.NewRepository(db)
	smtp := mail.NewSMTPMailerFromEnv()
	var mailer mail.Mailer
	if smtp.Configured() {
		mailer = smtp
	} else {
		log.Warn("[PayFox] SMTP_HOST not set, e-mail notifications will fail")
	}
	worker := notification.NewWorker(notificationRepo, mailer, queue, m)
	worker.Register(queue)
	manager.AddPeriodicTask(jobqueue.PeriodicTask{
		Name:     "notification-redeliver",
		Interval: env.GetEnvDuration("NOTIFICATION_REDELIVER_INTERVAL", 5*time.Minute),
		Run:      worker.Redeliver,
	})

	billingRepo := billing.NewRepository(db)
	var archiveQueue controllers.JobEnqueuer
	archiveCfg, err := archive.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if archiveCfg.IsEnabled() {
		api, err := archive.NewS3API(context.Background(), archiveCfg)
		if err != nil {
			return nil, nil, err
		}
		archive.NewArchiver(api, billingRepo, archiveCfg).Register(queue)
		archiveQueue = queue
	}

	coordinator := billing.NewCoordinator(
		billing.NewGormStore(db),
		plans,
		notification.NewQueueDispatcher(notificationRepo, queue),
		billing.LoadCoordinatorConfig(),
		m,
	)
	webhooks := controllers.NewWebhookController(
		billing.NewAdapters(billing.NewPayPalAdapterFromEnv(), billing.NewStripeAdapterFromEnv()),
		billing.NewService(billingRepo),
		coordinator,
		archiveQueue,
		m,
	)
	webhooks.SetTimeout(env.GetEnvDuration("WEBHOOK_TIMEOUT", 15*time.Second))

	health := controllers.NewHealthController(map[string]controllers.HealthCheck{
		"database": database.Ping,
		"redis":    cache.Ping,
	})

	app := fiber.New(fiber.Config{
		AppName:   "PayFox",
		BodyLimit: 1024 * 1024, // webhook bodies are small
	})
	app.Use(recover.New(), logger.New())

	if _, err := apidoc.Load(context.Background()); err != nil {
		log.Warnf("[PayFox] %v", err)
	}
	router.InstallRouter(app, router.Dependencies{
		Webhooks: webhooks,
		Health:   health,
		DocsFile: env.GetEnv("OPENAPI_FILE", "internal/pkg/apidoc/openapi.yml"),
	})

	return app, manager, nil
}
