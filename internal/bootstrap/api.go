package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	inhttp "inquiry_server/adapter/in/http"
	"inquiry_server/config"
	"inquiry_server/infra/middleware"
	"inquiry_server/internal/scheduler"
	"inquiry_server/pkg/logger"
)

// NewAPI wires dependencies and returns the configured Fiber app, the
// scheduler (nil when disabled) and a cleanup.
func NewAPI(cfg *config.Config) (*fiber.App, *scheduler.Scheduler, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "inquiry-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	healthHandler := inhttp.NewHealthHandler(deps.DB, deps.Redis, deps.Metrics)
	healthHandler.Register(app)

	inquiryHandler := inhttp.NewInquiryHandler(deps.InquiryService, deps.Drainer, logger.Default())
	inquiryHandler.Register(app)

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(deps.Drainer, deps.ZLog)
		if err := sched.Start(cfg.DrainSchedule); err != nil {
			cleanup()
			return nil, nil, nil, err
		}
	}

	return app, sched, cleanup, nil
}
