package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/infra/ai"
	"quizroom-service/internal/infra/memory"
	"quizroom-service/internal/infra/pdf"
	pgarchive "quizroom-service/internal/infra/postgres"
	redisinfra "quizroom-service/internal/infra/redis"
	transport "quizroom-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// runtime holds everything runServer has to start and tear down.
type runtime struct {
	cfg      config.Config
	service  *app.RoomService
	redis    *redis.Client
	registry *redisinfra.RoomRegistry
	pool     *pgxpool.Pool
}

func (rt *runtime) close() {
	if rt.pool != nil {
		rt.pool.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(rt.service, transportFor(cfg)),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz room service on :%s (transport=%s)", finalPort, transportFor(cfg))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		rt.service.RunReaper(gctx,
			config.TTLDuration(cfg.Rooms.ReapInterval, time.Minute),
			config.TTLDuration(cfg.Rooms.IdleTTL, time.Hour))
		return nil
	})
	if rt.registry != nil {
		g.Go(func() error {
			refreshInviteClaims(gctx, rt.registry, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
			return nil
		})
	}
	if rt.redis != nil && cfg.Redis.Mirror {
		events, cancelTap := rt.service.Hub().Tap(256)
		mirror := redisinfra.NewEventMirror(rt.redis)
		g.Go(func() error {
			defer cancelTap()
			return mirror.Run(gctx, events)
		})
	}
	return g.Wait()
}

// newRuntime builds the room service and the backends selected by cfg.
func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	if cfg.Redis.Addr != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			rt.close()
			return nil, err
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.pool = pool
	}

	extractor := pdf.NewExtractor(cfg.Generator.PDFToText)
	if !extractor.Available() {
		log.Printf("pdftotext not found, question generation from uploads will fail")
	}
	generator := ai.NewGenerator(ai.Config{
		APIURL:     cfg.Generator.APIURL,
		APIKey:     cfg.Generator.APIKey,
		Model:      cfg.Generator.Model,
		Timeout:    config.TTLDuration(cfg.Generator.Timeout, 120*time.Second),
		MaxRetries: cfg.Generator.MaxRetries,
	}, extractor)
	if !generator.IsAvailable() {
		log.Printf("no question provider configured, generated rooms will use placeholder questions")
	}
	loader := ai.NewFallbackLoader(generator, generator.IsAvailable)

	cacheTTL := config.TTLDuration(cfg.Generator.CacheTTL, 24*time.Hour)
	var questionSets app.QuestionSetRepository
	var registry app.RoomRegistry
	if rt.redis != nil {
		questionSets = redisinfra.NewQuestionSetRepository(rt.redis, loader, cacheTTL)
		rt.registry = redisinfra.NewRoomRegistry(rt.redis, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
		registry = rt.registry
	} else {
		questionSets = memory.NewQuestionSetRepository(loader, cacheTTL)
		registry = memory.NewRoomRegistry()
	}

	opts := []app.Option{
		app.WithQuestionSets(questionSets),
		app.WithDefaultTimeLimit(cfg.Rooms.DefaultTimeLimit),
		app.WithChatHistory(cfg.Rooms.ChatHistory),
	}
	if rt.pool != nil {
		opts = append(opts, app.WithArchive(pgarchive.NewRoomArchive(rt.pool)))
	}
	rt.service = app.NewRoomService(registry, app.NewHub(0), opts...)
	return rt, nil
}

func transportFor(cfg config.Config) transport.Transport {
	if transport.Transport(cfg.Server.Transport) == transport.TransportPoll {
		return transport.TransportPoll
	}
	return transport.TransportPush
}

// refreshInviteClaims keeps the Redis invite claims of live rooms from expiring.
func refreshInviteClaims(ctx context.Context, registry *redisinfra.RoomRegistry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.Touch(ctx); err != nil {
				log.Printf("redis: refresh invite claims: %v", err)
			}
		}
	}
}
