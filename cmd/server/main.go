package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/automation"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"
)

type stores struct {
	jobs          repository.PostingJobRepository
	subscribers   repository.SubscriberRepository
	subscriptions repository.SubscriptionRepository
	db            *sql.DB
}

func openStores(cfg *config.Config) stores {
	if cfg.PostgresURI == "" {
		log.Println("Warning: POSTGRES_URI is not set, using in-memory stores")
		return stores{
			jobs:          repository.NewMemoryPostingJobRepository(),
			subscribers:   repository.NewMemorySubscriberRepository(),
			subscriptions: repository.NewMemorySubscriptionRepository(),
		}
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}
	return stores{
		jobs:          repository.NewPostingJobRepository(db),
		subscribers:   repository.NewSubscriberRepository(db),
		subscriptions: repository.NewSubscriptionRepository(db),
		db:            db,
	}
}

func newRegistry(cfg *config.Config) *platform.Registry {
	httpClient := &http.Client{Timeout: cfg.Automation.PublishTimeout + 5*time.Second}
	rps := cfg.Platforms.RequestsPerSecond
	return platform.NewRegistry(
		platform.NewFacebookPublisher(cfg.Platforms.FacebookGraphURL, httpClient, rps),
		platform.NewInstagramPublisher(cfg.Platforms.InstagramGraphURL, httpClient, rps),
		platform.NewTwitterPublisher(cfg.Platforms.TwitterAPIURL, httpClient, rps),
		platform.NewYoutubePublisher(cfg.GoogleClientID, cfg.GoogleClientSecret, "", nil),
	)
}

func newObjectStore(ctx context.Context, cfg *config.Config) service.ObjectStore {
	r2, err := service.NewR2Service(ctx, cfg.R2)
	if err != nil {
		if errors.Is(err, service.ErrStorageNotConfigured) {
			log.Println("Warning: R2 is not configured, media uploads and report archives are disabled")
		} else {
			log.Printf("Warning: R2 unavailable: %v", err)
		}
		return nil
	}
	return r2
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		log.Fatalf("Failed to load plans: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Automation.OperatingTimezone)
	if err != nil {
		log.Printf("Warning: unknown timezone %q, using UTC", cfg.Automation.OperatingTimezone)
		loc = time.UTC
	}

	st := openStores(cfg)
	registry := newRegistry(cfg)
	store := newObjectStore(ctx, cfg)

	var notifier queue.Notifier = queue.LogNotifier{}
	var asynqClient *asynq.Client
	var asynqServer *asynq.Server
	if cfg.RedisURI != "" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		asynqClient = asynq.NewClient(redisConn)
		notifier = queue.NewAsynqNotifier(asynqClient)

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
			Queues:      map[string]int{queue.NotificationQueue: 1},
		})
		mux := asynq.NewServeMux()
		queue.NewWorker(cfg.NotifyWebhookURL, &http.Client{Timeout: 15 * time.Second}).Register(mux)

		go func() {
			log.Println("Starting the Asynq server...")
			if err := asynqServer.Run(mux); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	} else {
		log.Println("Warning: REDIS_URI is not set, notifications are only logged")
	}

	quota := service.NewQuotaService(plans, st.subscriptions)
	content := service.NewContentService(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	postService := service.NewPostService(st.jobs, st.subscribers, quota, registry, store, cfg.Automation.MaxRetries)

	clock := automation.SystemClock{}
	dispatcher := automation.NewDispatcher(st.jobs, st.subscribers, quota, registry, notifier, clock, automation.DispatcherConfig{
		PublishTimeout: cfg.Automation.PublishTimeout,
		LeaseDuration:  cfg.Automation.LeaseDuration,
		SecretKey:      cfg.EncryptionKey,
	})
	status := automation.NewStatus(cfg.Automation.RecentErrorLimit)
	scheduler := automation.NewScheduler(st.jobs, dispatcher, status, clock, automation.SchedulerConfig{
		Concurrency: cfg.Automation.DispatchConcurrency,
		BatchSize:   cfg.Automation.DueBatchSize,
	})

	concurrency := cfg.Automation.DispatchConcurrency
	dailyContent := job.NewDailyContentJob(st.subscribers, st.jobs, quota, content, registry, clock, loc, cfg.Automation.MaxRetries, concurrency)
	weeklyReport := job.NewWeeklyReportJob(st.subscribers, st.jobs, registry, store, notifier, clock, cfg.EncryptionKey, cfg.Automation.PublishTimeout, concurrency)
	billing := job.NewBillingRolloverJob(st.subscriptions, quota, notifier, clock, concurrency)
	cleanup := job.NewRetentionCleanupJob(st.jobs, clock, cfg.Automation.RetentionAge)

	runner := automation.NewRunner(ctx, loc)
	runner.Add("scheduler_tick", cron.Every(cfg.Automation.SchedulerInterval), func(ctx context.Context) error {
		scheduler.Tick(ctx)
		return nil
	})
	runner.Add("daily_content", automation.DailyAt{Hour: cfg.Automation.DailyContentHour, Location: loc}, summarize("daily_content", dailyContent.Run))
	runner.Add("weekly_report", automation.WeeklyAt{Weekday: cfg.Automation.WeeklyReportDay, Hour: 8, Location: loc}, summarize("weekly_report", weeklyReport.Run))
	runner.Add("billing_rollover", automation.MonthlyAt{Day: 1, Hour: cfg.Automation.BillingHour, Location: loc}, summarize("billing_rollover", billing.Run))
	runner.Add("retention_cleanup", automation.DailyAt{Hour: cfg.Automation.CleanupHour, Location: loc}, summarize("retention_cleanup", cleanup.Run))
	runner.Start()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "scheduler": scheduler.Status()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.Register(app,
		middleware.NewAuthMiddleware(cfg),
		handlers.NewAutomationHandler(scheduler, runner),
		handlers.NewPostHandler(postService, quota),
		handlers.NewPlatformHandler(service.NewPlatformService(st.subscribers, registry, cfg.EncryptionKey, cfg.Automation.PublishTimeout)))

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ListenAddr)

	gracefulShutdown(app, runner, asynqServer, asynqClient, st.db)
}

func summarize(name string, run func(ctx context.Context) (job.Summary, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		summary, err := run(ctx)
		if err != nil {
			return err
		}
		slog.Info("maintenance job finished", "job", name, "processed", summary.Processed,
			"skipped", summary.Skipped, "failed", summary.Failed)
		return nil
	}
}

func closeDB(db *sql.DB) {
	if db == nil {
		return
	}
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, runner *automation.Runner, server *asynq.Server, client *asynq.Client, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	runner.Stop()
	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	if server != nil {
		server.Shutdown()
	}
	if client != nil {
		client.Close()
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
