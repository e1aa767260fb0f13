package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lesson-quiz-service/internal/app"
	"lesson-quiz-service/internal/config"
	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/event"
	"lesson-quiz-service/internal/infra/memory"
	"lesson-quiz-service/internal/infra/postgres"
	infraredis "lesson-quiz-service/internal/infra/redis"
	"lesson-quiz-service/internal/telemetry"
	transport "lesson-quiz-service/internal/transport/http"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, *port)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := telemetry.MonitorRedis(redisClient); err != nil {
			return err
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes()...)
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizRepo app.QuizRepository
		attempts app.AttemptRepository
		registry app.SessionRegistry
	)
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		attempts = infraredis.NewAttemptStore(redisClient, cfg.Quiz.AttemptsLimit)
		registry = infraredis.NewSessionRegistry(redisClient, redisTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStore(cfg.Quiz.AttemptsLimit)
		registry = memory.NewSessionRegistry()
	}
	// postgres is the durable record when configured
	if pool != nil {
		attempts = postgres.NewAttemptStore(pool, cfg.Quiz.AttemptsLimit)
	}

	bus := event.NewBus(event.WithLogger(slog.Default().With("component", "events")))
	bus.Subscribe(domain.EventNameAttemptRecorded, func(_ context.Context, e event.Event) error {
		if recorded, ok := e.(domain.EventAttemptRecorded); ok {
			telemetry.ObserveAttempt(recorded)
		}
		return nil
	})

	service := app.NewQuizService(quizRepo, attempts, bus)
	wsHandler := transport.NewWSHandler(service, registry, transport.WithDuration(cfg.QuizDuration()))

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(transport.NewAPI(service), wsHandler),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("cli: starting quiz service", "port", finalPort, "countdown", cfg.QuizDuration())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("cli: shutting down server")

		// hijacked websocket connections are not tracked by Shutdown
		registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		bus.Stop()
		return err
	})
	return g.Wait()
}
