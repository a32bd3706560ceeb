package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"recruitment-review/internal/audit"
	awsclient "recruitment-review/internal/common/aws"
	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/common/config"
	"recruitment-review/internal/common/database"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/notify"
	"recruitment-review/internal/review"
	"recruitment-review/internal/storage/postgres"
	"recruitment-review/internal/storage/rediscache"

	gpc "recruitment-review/internal/workers/configuration/get-phase-config"
	ipc "recruitment-review/internal/workers/configuration/initialize-phase-configs"
	spc "recruitment-review/internal/workers/configuration/save-phase-config"

	gr "recruitment-review/internal/workers/review/get-reviews"
	ur "recruitment-review/internal/workers/review/upsert-review"

	br "recruitment-review/internal/workers/ranking/build-ranking"
	cc "recruitment-review/internal/workers/ranking/compute-completeness"
	pc "recruitment-review/internal/workers/ranking/preview-cutoff"

	ac "recruitment-review/internal/workers/lifecycle/apply-cutoff"
	fp "recruitment-review/internal/workers/lifecycle/finalize-phase"
	rp "recruitment-review/internal/workers/lifecycle/revert-phase"
	up "recruitment-review/internal/workers/lifecycle/unlock-phase"

	sdn "recruitment-review/internal/workers/communication/send-decision-notification"
)

// dependencies holds the engine and the connections it was built from.
type dependencies struct {
	engine *review.Engine
	pg     *database.PostgresClient
	redis  *redis.Client
	es     *elasticsearch.Client
	async  *notify.Async
	ses    sdn.SESService
}

func buildDependencies(ctx context.Context, cfg *config.Config, zeebe *camunda.Client, log logger.Logger, zapLog *zap.Logger, obs *observability.Observability) (*dependencies, error) {
	deps := &dependencies{}
	opts := []review.Option{
		review.WithDefaults(reviewDefaults(cfg.Review)),
		review.WithTracer(obs.Tracer()),
	}

	store, err := deps.openStore(ctx, cfg, log, zapLog)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			deps.redis, err = database.NewRedis(ctx, cfg.Database.Redis)
			return err
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			return nil, err
		}
		ttl := time.Duration(cfg.Cache.RankingTTL) * time.Second
		opts = append(opts, review.WithRankingCache(rediscache.New(deps.redis, ttl, log)))
		zapLog.Info("Ranking cache enabled", zap.Duration("ttl", ttl))
	}

	if cfg.Search.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			deps.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return database.PingElasticsearch(ctx, deps.es)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			return nil, err
		}
		opts = append(opts, review.WithDecisionIndexer(audit.NewIndexer(deps.es, cfg.Search.DecisionIndex, log)))
		zapLog.Info("Decision audit index enabled", zap.String("index", cfg.Search.DecisionIndex))
	}

	aws := cfg.Integrations.AWS
	var dispatchers []notify.Dispatcher
	if cfg.Notifications.Enabled {
		dispatchers = append(dispatchers, notify.NewZeebeDispatcher(zeebe, cfg.Notifications.MessageName, config.GetDuration(cfg.Notifications.MessageTTL)))
	}
	if aws.SES.Enabled || aws.SNS.Enabled {
		awsCfg, err := awsclient.LoadConfig(ctx, aws.Region)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		if aws.SES.Enabled {
			deps.ses = awsclient.NewSESClient(awsCfg)
		}
		if aws.SNS.Enabled && cfg.Notifications.Enabled {
			dispatchers = append(dispatchers, notify.NewSNSDispatcher(awsclient.NewSNSClient(awsCfg), aws.SNS.TopicARN))
		}
	}
	if len(dispatchers) > 0 {
		deps.async = notify.NewAsync(notify.NewMulti(log, dispatchers...), config.GetDuration(cfg.Notifications.AsyncTimeout), log)
	}
	if deps.async != nil {
		opts = append(opts, review.WithNotifier(deps.async))
		zapLog.Info("Decision notifications enabled", zap.String("message", cfg.Notifications.MessageName))
	}

	deps.engine = review.NewEngine(store, log, opts...)
	return deps, nil
}

func (d *dependencies) openStore(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger) (review.Store, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		mem := review.NewMemoryStore()
		if cfg.Storage.SeedFile != "" {
			f, err := os.Open(cfg.Storage.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			if err := mem.LoadSeed(f); err != nil {
				return nil, err
			}
		}
		zapLog.Info("Using in-memory review store", zap.String("seed", cfg.Storage.SeedFile))
		return mem, nil
	}

	err := retryWithBackoff(func() error {
		var err error
		d.pg, err = database.NewPostgres(ctx, cfg.Database.Postgres)
		return err
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	zapLog.Info("PostgreSQL connected successfully")

	store := postgres.New(d.pg.DB, log)
	if cfg.Storage.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate review schema: %w", err)
		}
	}
	return store, nil
}

// ready reports the first unreachable backend.
func (d *dependencies) ready(ctx context.Context, zeebe *camunda.Client) error {
	if err := zeebe.HealthCheck(ctx); err != nil {
		return err
	}
	if d.pg != nil {
		if err := d.pg.Ping(ctx); err != nil {
			return err
		}
	}
	if d.redis != nil {
		if err := d.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	if d.es != nil {
		if err := database.PingElasticsearch(ctx, d.es); err != nil {
			return err
		}
	}
	return nil
}

func (d *dependencies) close(log *zap.Logger) {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			log.Error("Error closing Redis", zap.Error(err))
		}
	}
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			log.Error("Error closing PostgreSQL", zap.Error(err))
		}
	}
}

func reviewDefaults(rc config.ReviewConfig) review.Defaults {
	d := review.DefaultSettings()
	if len(rc.DefaultCategories) > 0 {
		d.Categories = make([]review.ScoringCategory, 0, len(rc.DefaultCategories))
		for _, c := range rc.DefaultCategories {
			label := c.Label
			if label == "" {
				label = c.Key
			}
			d.Categories = append(d.Categories, review.ScoringCategory{
				Key:       c.Key,
				Label:     label,
				Weight:    c.Weight,
				Mandatory: c.Mandatory,
			})
		}
	}
	if rc.MinReviewersRequired > 0 {
		d.MinReviewersRequired = rc.MinReviewersRequired
	}
	d.ReferralWeights = review.ReferralWeights{
		Advocate: rc.ReferralWeights.Advocate,
		Oppose:   rc.ReferralWeights.Oppose,
	}
	d.Normalize = rc.Normalize
	return d
}

// workerTimeout prefers the configured job timeout over the handler default.
func workerTimeout(cfg *config.Config, taskType string, fallback time.Duration) time.Duration {
	if w, ok := cfg.Workers[taskType]; ok && w.Timeout > 0 {
		return config.GetDuration(w.Timeout)
	}
	return fallback
}

func registerWorkers(client camunda.JobWorkerFactory, cfg *config.Config, deps *dependencies, log logger.Logger, obs *observability.Observability, zapLog *zap.Logger) []worker.JobWorker {
	engine := deps.engine
	handlers := map[string]func(worker.JobClient, entities.Job){}

	// --- Reviews ---
	{
		c := ur.LoadConfig()
		c.Timeout = workerTimeout(cfg, ur.TaskType, c.Timeout)
		handlers[ur.TaskType] = ur.NewHandler(c, engine, log, obs).Handle
	}
	{
		c := gr.LoadConfig()
		c.Timeout = workerTimeout(cfg, gr.TaskType, c.Timeout)
		handlers[gr.TaskType] = gr.NewHandler(c, engine, log, obs).Handle
	}

	// --- Phase configuration ---
	{
		c := gpc.LoadConfig()
		c.Timeout = workerTimeout(cfg, gpc.TaskType, c.Timeout)
		handlers[gpc.TaskType] = gpc.NewHandler(c, engine, log, obs).Handle
	}
	{
		c := spc.LoadConfig()
		c.Timeout = workerTimeout(cfg, spc.TaskType, c.Timeout)
		handlers[spc.TaskType] = spc.NewHandler(c, engine, log, obs).Handle
	}
	{
		c := ipc.LoadConfig()
		c.Timeout = workerTimeout(cfg, ipc.TaskType, c.Timeout)
		handlers[ipc.TaskType] = ipc.NewHandler(c, engine, log, obs).Handle
	}

	// --- Ranking ---
	{
		c := cc.LoadConfig()
		c.Timeout = workerTimeout(cfg, cc.TaskType, c.Timeout)
		handlers[cc.TaskType] = cc.NewHandler(c, engine, log, obs).Handle
	}
	{
		c := br.LoadConfig()
		c.Timeout = workerTimeout(cfg, br.TaskType, c.Timeout)
		handlers[br.TaskType] = br.NewHandler(c, engine, log, obs).Handle
	}
	{
		c := pc.LoadConfig()
		c.Timeout = workerTimeout(cfg, pc.TaskType, c.Timeout)
		handlers[pc.TaskType] = pc.NewHandler(c, engine, log, obs).Handle
	}

	// --- Phase lifecycle ---
	{
		c := ac.LoadConfig()
		c.Timeout = workerTimeout(cfg, ac.TaskType, c.Timeout)
		handlers[ac.TaskType] = ac.NewHandler(c, engine, log, obs).Handle
	}
	{
		c := fp.LoadConfig()
		c.Timeout = workerTimeout(cfg, fp.TaskType, c.Timeout)
		handlers[fp.TaskType] = fp.NewHandler(c, engine, log, obs).Handle
	}
	{
		c := up.LoadConfig()
		c.Timeout = workerTimeout(cfg, up.TaskType, c.Timeout)
		handlers[up.TaskType] = up.NewHandler(c, engine, log, obs).Handle
	}
	{
		c := rp.LoadConfig()
		c.Timeout = workerTimeout(cfg, rp.TaskType, c.Timeout)
		handlers[rp.TaskType] = rp.NewHandler(c, engine, log, obs).Handle
	}

	// --- Communication ---
	{
		c := sdn.LoadConfig()
		c.Timeout = workerTimeout(cfg, sdn.TaskType, c.Timeout)
		c.EmailEnabled = cfg.Notifications.Email.Enabled && deps.ses != nil
		c.FromEmail = cfg.Integrations.AWS.SES.FromEmail
		c.SubjectPrefix = cfg.Notifications.Email.SubjectPrefix
		handlers[sdn.TaskType] = sdn.NewHandler(c, deps.ses, log, obs).Handle
	}

	var started []worker.JobWorker
	for taskType, handle := range handlers {
		if w := startWorker(client, taskType, config.GetWorkerConfig(cfg, taskType), handle, zapLog); w != nil {
			started = append(started, w)
		}
	}
	return started
}
