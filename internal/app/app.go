// Package app wires configuration into the running components shared by
// the daemon and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/credentials"
	"dayplan/internal/database"
	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/events"
	"dayplan/internal/google"
	"dayplan/internal/repository"
	"dayplan/internal/service"
	"dayplan/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

type App struct {
	Config   *config.Config
	Location *time.Location
	Logger   *zerolog.Logger

	DB          *database.DB
	Credentials *credentials.Manager
	Bus         *events.EventBus
	Engine      *engine.Engine
	Tasks       *service.TaskService
	Planner     *service.PlanService
	Coordinator domain.Coordinator
	Drainer     *worker.Drainer

	redis *redis.Client
}

// New opens the store and builds every component. Sync stays disabled
// (every trigger a no-op) when no OAuth client is configured.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	a := &App{Config: cfg, Location: loc, Logger: logger, DB: db, Bus: events.NewEventBus()}

	var clients domain.ClientProvider
	if cfg.Google.Configured() {
		key, err := cfg.Security.Key()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.Credentials, err = credentials.NewManager(db, key, oauthConfig(cfg.Google), logger)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init credentials: %w", err)
		}
		clients = a.Credentials
	} else {
		logger.Warn().Msg("google client id/secret not set, sync is disabled")
	}

	a.Engine = engine.New(db, clients, google.NewConnector(cfg.Google.RPS, cfg.Google.Burst, loc), engine.Options{
		CalendarID: cfg.Google.CalendarID,
		Location:   loc,
		Retry: engine.RetryPolicy{
			MaxRetries:    cfg.Sync.MaxRetries,
			InitialDelay:  cfg.Sync.InitialDelay,
			MaxDelay:      cfg.Sync.MaxDelay,
			BackoffFactor: cfg.Sync.BackoffFactor,
		},
		ImmediateRetries:    cfg.Sync.ImmediateRetries,
		ImmediateRetryDelay: cfg.Sync.ImmediateRetryDelay,
		BatchSize:           cfg.Sync.BatchSize,
		DefaultDomainID:     cfg.Sync.DefaultDomainID,
		ExportTimeout:       cfg.Sync.ExportTimeout,
		StaleClaim:          cfg.Sync.StaleClaim,
	}, logger)
	a.Engine.Subscribe(a.Bus)

	a.Tasks = service.NewTaskService(db, a.Bus, loc, logger)
	a.Planner = service.NewPlanService(db, cfg.Planning, loc, logger)

	a.Coordinator = a.initCoordinator(ctx)
	a.Drainer = worker.NewDrainer(a.Engine, a.Coordinator, a.Coordinator, worker.DrainerConfig{
		Schedule: cfg.Sync.DrainSchedule,
		Location: loc,
	}, logger)

	return a, nil
}

// initCoordinator prefers Redis with an in-process fallback. Without a
// configured address only the in-process store is used.
func (a *App) initCoordinator(ctx context.Context) domain.Coordinator {
	memory := repository.NewMemoryRepository()
	if a.Config.Redis.Address == "" {
		return memory
	}

	client := repository.NewRedisClient(a.Config.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		a.Logger.Warn().Err(err).Msg("redis connection failed, continuing with in-process coordination")
		_ = client.Close()
		return memory
	}

	a.redis = client
	a.Logger.Info().Str("addr", a.Config.Redis.Address).Msg("redis connected")
	return repository.NewFailoverRepository(repository.NewRedisRepository(client), memory, a.Logger)
}

// Close waits for background exports and releases connections.
func (a *App) Close() error {
	a.Engine.Wait()
	return errors.Join(repository.Close(a.redis), a.DB.Close())
}

func oauthConfig(g config.GoogleConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.RedirectURI,
		Scopes:       g.Scopes,
		Endpoint:     googleoauth.Endpoint,
	}
}
