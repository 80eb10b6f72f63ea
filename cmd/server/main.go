package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/sheetflow/configs"
	"github.com/maheshrc27/sheetflow/internal/api/handlers"
	"github.com/maheshrc27/sheetflow/internal/api/middleware"
	job "github.com/maheshrc27/sheetflow/internal/jobs"
	"github.com/maheshrc27/sheetflow/internal/queue"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/service"
	"github.com/maheshrc27/sheetflow/internal/store"
	"github.com/maheshrc27/sheetflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	initLogger(cfg.LogLevel)
	loc := cfg.Location()
	ctx := context.Background()

	sheet, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open schedule store: %v", err)
	}
	writes := store.NewWriteQueue(sheet, 64)

	var db *sql.DB
	var persist service.StatePersistence
	if cfg.PostgresURI != "" {
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}
		stateRepo := repository.NewStateRepository(db)
		if err := stateRepo.Migrate(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		persist = stateRepo
	} else {
		slog.Warn("POSTGRES_URI not set, settings and logs are kept in memory only")
	}

	var cache repository.PublishedCache
	var asynqClient *asynq.Client
	var redisConn asynq.RedisClientOpt
	if cfg.RedisURI != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
		defer rdb.Close()
		cache = repository.NewPublishedCache(rdb)

		redisConn = asynq.RedisClientOpt{Addr: cfg.RedisURI}
		asynqClient = asynq.NewClient(redisConn)
		defer asynqClient.Close()
	} else {
		slog.Warn("REDIS_URI not set, manual publishes run inline")
	}

	state := service.NewAppState(persist, writes)
	if err := state.Load(ctx); err != nil {
		log.Fatalf("Failed to load app state: %v", err)
	}

	profileRepo := repository.NewProfileRepository(writes, cfg.SecretKey, cfg.Instagram.DefaultScheduleTab)
	scheduleRepo := repository.NewScheduleRepository(writes, loc)

	instagramService := service.NewInstagramService(*cfg, nil)
	publishService := service.NewPublishService(instagramService, scheduleRepo, cache, state)
	r2Service := service.NewR2Service(*cfg)
	mediaService := service.NewMediaService(r2Service, cfg.R2.PublicURL)

	scheduler := job.NewPollingScheduler(profileRepo, scheduleRepo, publishService, cache, state, cfg.PollInterval)
	runner := job.NewBatchCronRunner(profileRepo, scheduleRepo, publishService)

	if err := scheduler.RestoreFromSettings(ctx); err != nil {
		slog.Error("unable to restore automation", "error", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))

	cronHandler := handlers.NewCronHandler(*cfg, runner)
	app.Get("/api/cron/post", cronHandler.Post)
	app.Post("/api/cron/post", cronHandler.Post)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	automation := handlers.NewAutomationHandler(scheduler)
	api.Get("/automation", automation.Status)
	api.Post("/automation/start", automation.Start)
	api.Post("/automation/stop", automation.Stop)

	schedule := handlers.NewScheduleHandler(scheduler, scheduleRepo, mediaService, asynqClient, loc)
	api.Get("/schedule", schedule.List)
	api.Get("/schedule/export", schedule.Export)
	api.Post("/schedule/refresh", schedule.Refresh)
	api.Post("/schedule", schedule.Create)
	api.Post("/schedule/:id/publish", schedule.Publish)
	api.Delete("/schedule/:id", schedule.Delete)

	profiles := handlers.NewProfileHandler(profileRepo, scheduler, instagramService, state)
	api.Get("/profiles", profiles.List)
	api.Post("/profiles/active", profiles.SetActive)
	api.Post("/profiles/init", profiles.Init)
	api.Get("/profiles/:id/account", profiles.Account)

	logs := handlers.NewLogHandler(state)
	api.Get("/logs", logs.List)
	api.Delete("/logs", logs.Clear)

	// backstop sweep for deployments without an external cron trigger
	c := cron.New()
	if cfg.CronSchedule != "" {
		err := c.AddFunc(cfg.CronSchedule, func() {
			report, err := runner.Run(context.Background())
			if err != nil {
				slog.Error("scheduled sweep failed", "error", err)
				return
			}
			slog.Info("scheduled sweep finished", "profiles", len(report.Results))
		})
		if err != nil {
			log.Fatalf("Invalid CRON_SCHEDULE %q: %v", cfg.CronSchedule, err)
		}
		c.Start()
	}

	var worker *asynq.Server
	if asynqClient != nil {
		queueW := queue.NewQueue(scheduler)
		worker = asynq.NewServer(redisConn, asynq.Config{
			// publishes share the in-flight guard, one at a time is enough
			Concurrency: 1,
		})

		go func() {
			mux := asynq.NewServeMux()
			mux.HandleFunc(queue.TaskTypePublishNow, queueW.HandlePublishNowTask)

			log.Println("Starting the Asynq server...")
			if err := worker.Run(mux); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, func() {
		c.Stop()
		scheduler.Shutdown()
		if worker != nil {
			worker.Shutdown()
		}
		writes.Close()
		closeStore()
		if db != nil {
			closeDB(db)
		}
	})
}

func initLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
	slog.SetDefault(slog.New(handler))
	slog.Info("Structured logging initialized", "level", lvl.String())
}

// openStore picks the schedule backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (store.ExternalStore, func(), error) {
	switch cfg.StoreBackend {
	case "xlsx":
		st, err := store.NewXLSXStore(cfg.XLSXPath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				slog.Error("failed to close workbook", "error", err)
			}
		}, nil
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "sheets":
		if cfg.Sheets.SpreadsheetID == "" || cfg.Sheets.ServiceAccountJSON == "" {
			slog.Warn("SPREADSHEET_ID or service account missing, using an empty in-memory store")
			return store.NewMemoryStore(), func() {}, nil
		}
		st, err := store.NewSheetsStore(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.ServiceAccountJSON, cfg.Sheets.RequestsPerMinute)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, cleanup func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	cleanup()
	log.Println("Server shutdown complete.")
}
