package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tokoadmin/internal/config"
	"tokoadmin/internal/csrf"
	"tokoadmin/internal/handlers"
	"tokoadmin/internal/imagestore"
	"tokoadmin/internal/logger"
	"tokoadmin/internal/metrics"
	"tokoadmin/internal/middleware"
	"tokoadmin/internal/models"
	"tokoadmin/internal/repositories"
	"tokoadmin/internal/services"
	"tokoadmin/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load(viper.New())
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	app, cleanup, err := newApp(cfg, log)
	if err != nil {
		log.Fatalw("failed to build app", "error", err)
	}
	defer cleanup()

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infow("starting server", "addr", cfg.AppPort)
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalw("server failed to start", "error", err)
		}
	}()

	<-quit
	log.Info("shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorw("error during fiber shutdown", "error", err)
	}
	log.Info("server gracefully stopped")
}

// newApp wires every component from cfg. The returned cleanup closes the
// broker connection, if any.
func newApp(cfg *config.Config, log *zap.SugaredLogger) (*fiber.App, func(), error) {
	cleanup := func() {}

	productRepo, userRepo, err := openRepositories(cfg, log)
	if err != nil {
		return nil, cleanup, err
	}

	images, err := openImageStore(cfg)
	if err != nil {
		return nil, cleanup, err
	}

	m := metrics.New()

	var publisher services.EventPublisher
	if cfg.RabbitMQEnabled {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:        cfg.RabbitMQURL,
			Exchange:   services.CatalogExchange,
			RetryDelay: cfg.RabbitMQRetryDelay,
			MaxRetries: cfg.RabbitMQMaxRetries,
		}, log)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() {
			if err := mq.Close(); err != nil {
				log.Warnw("close rabbitmq", "error", err)
			}
		}
		if err := startJanitor(mq, services.NewArtifactJanitor(images, m, log), log); err != nil {
			cleanup()
			return nil, func() {}, err
		}
		publisher = mq
	}

	authService := services.NewAuthService(userRepo, cfg.JWTSecret, log)
	if cfg.AdminUsername != "" {
		if _, err := authService.EnsureAdmin(cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			cleanup()
			return nil, func() {}, errors.Wrap(err, "seed admin")
		}
	}

	productService := services.NewProductAdminService(services.ProductAdminDeps{
		Repo:      productRepo,
		Images:    images,
		Policy:    services.RolePolicy{},
		Slugger:   services.TextSlugger{},
		Tokens:    csrf.NewManager(cfg.CSRFSecret, cfg.CSRFTTL),
		Publisher: publisher,
		Metrics:   m,
		Log:       log,
	})

	authHandler := handlers.NewAuthHandler(authService, log)
	productHandler := handlers.NewProductAdminHandler(productService, session.New(), log)

	app := fiber.New(fiber.Config{BodyLimit: 32 * 1024 * 1024})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": cfg.DatabaseDriver,
			"images":   cfg.ImageStorage,
			"rabbitmq": cfg.RabbitMQEnabled,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	authHandler.RegisterRoutes(app)
	if cfg.ImageStorage == "local" {
		app.Static("/uploads", cfg.ImageRoot)
	}

	admin := app.Group("/admin", middleware.AuthRequired(authService, log))
	productHandler.RegisterRoutes(admin)

	return app, cleanup, nil
}

func openRepositories(cfg *config.Config, log *zap.SugaredLogger) (repositories.ProductRepository, repositories.UserRepository, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "memory":
		log.Warn("using in-memory repositories, data is lost on restart")
		return repositories.NewMockProductRepository(), repositories.NewMockUserRepository(), nil
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	default:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "connect to %s database", cfg.DatabaseDriver)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Product{}, &models.Image{}); err != nil {
		return nil, nil, errors.Wrap(err, "migrate database")
	}
	log.Infow("database ready", "driver", cfg.DatabaseDriver)
	return repositories.NewGORMProductRepository(db), repositories.NewGORMUserRepository(db), nil
}

func openImageStore(cfg *config.Config) (imagestore.Store, error) {
	if cfg.ImageStorage == "cloudinary" {
		return imagestore.NewCloudinaryStore(cfg.CloudinaryURL)
	}
	return imagestore.NewLocalStore(cfg.ImageRoot), nil
}

// startJanitor consumes artifact.orphaned events and retries their deletion.
func startJanitor(mq *rabbitmq.Client, janitor *services.ArtifactJanitor, log *zap.SugaredLogger) error {
	if err := mq.BindQueue(services.ArtifactCleanupQueue, services.EventArtifactOrphaned); err != nil {
		return err
	}
	return mq.Consume(services.ArtifactCleanupQueue, func(msg amqp.Delivery) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log.Debugw("orphan event received", "tag", msg.DeliveryTag)
		return janitor.Handle(ctx, msg.Body)
	})
}
