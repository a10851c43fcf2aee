package bootstrap

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"inquiry_server/adapter/out/cache"
	"inquiry_server/adapter/out/persistence"
	"inquiry_server/config"
	"inquiry_server/core/port/out"
	"inquiry_server/core/service/classification"
	"inquiry_server/core/service/inquiry"
	"inquiry_server/core/service/routing"
	"inquiry_server/infra/database"
	"inquiry_server/pkg/logger"
	"inquiry_server/pkg/metrics"
)

// Dependencies holds every wired component.
type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	Metrics *metrics.Sink
	ZLog    zerolog.Logger

	InquiryRepo out.InquiryRepository
	Host        *classification.Host
	Engine      *routing.Engine
	Pool        *routing.Pool

	InquiryService *inquiry.Service
	Drainer        *inquiry.Drainer
}

// NewDependencies wires the dependency graph. The returned cleanup closes
// every connection in reverse order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	log := logger.Default()
	deps.ZLog = zerolog.New(os.Stdout).With().Timestamp().Logger()
	deps.Metrics = metrics.NewSink(1000)

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := persistence.EnsureSchema(ctx, db); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Database (sqlx for the read projections)
	sqlxURL := cfg.DatabaseURL
	if strings.Contains(sqlxURL, "?") {
		sqlxURL += "&default_query_exec_mode=simple_protocol"
	} else {
		sqlxURL += "?default_query_exec_mode=simple_protocol"
	}
	sqlDB, err := sqlx.Connect("pgx", sqlxURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis (optional; without it predictions are simply not cached)
	var predictionCache out.PredictionCache
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
		predictionCache = cache.NewPredictionCache(redisClient, cfg.CacheTTL)
	}

	// Repository
	deps.InquiryRepo = persistence.NewInquiryAdapter(db, sqlDB, cfg.MaxProcessingAttempts, cfg.ClaimTTL)

	// Predictor host
	hostOpts := []classification.HostOption{
		classification.WithMetrics(deps.Metrics),
	}
	if predictionCache != nil {
		hostOpts = append(hostOpts, classification.WithPredictionCache(predictionCache))
	}
	if cfg.UseRuleBased != config.RuleBasedForce {
		learnedCat, learnedSent := classification.NewLearnedBackends(classification.LearnedConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		}, log)
		hostOpts = append(hostOpts, classification.WithLearnedBackends(learnedCat, learnedSent))
	}
	deps.Host = classification.NewHost(classification.HostConfig{
		Mode:            cfg.UseRuleBased,
		MemoryThreshold: cfg.LearnedMemoryThreshold,
	}, log, hostOpts...)

	// Routing
	rules, err := routing.LoadRules(cfg.RoutingRulesPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Pool = routing.DefaultPool()
	deps.Engine = routing.NewEngine(rules, deps.Pool, routing.EngineConfig{
		Strategy: cfg.AssignmentStrategy,
		SLA:      cfg.SLA,
	})

	// Services
	deps.InquiryService = inquiry.NewService(deps.InquiryRepo, deps.Host, deps.Engine, deps.Metrics, log)
	deps.Drainer = inquiry.NewDrainer(deps.InquiryService, deps.InquiryRepo, inquiry.DrainConfig{
		BatchLimitRuleBased: cfg.BatchLimitRuleBased,
		BatchLimitLearned:   cfg.BatchLimitLearned,
		BatchSize:           cfg.DrainBatchSize,
		WorkerCount:         cfg.DrainWorkerCount,
		PerInquiryTimeout:   cfg.PerInquiryTimeout,
		SoftDeadline:        cfg.DrainSoftDeadline,
	}, deps.Metrics, deps.ZLog)

	return deps, cleanup, nil
}
