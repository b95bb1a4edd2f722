package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizly-game-service/internal/app"
	"quizly-game-service/internal/auth"
	"quizly-game-service/internal/config"
	"quizly-game-service/internal/domain"
	"quizly-game-service/internal/infra/memory"
	"quizly-game-service/internal/infra/postgres"
	"quizly-game-service/internal/infra/rabbit"
	redisinfra "quizly-game-service/internal/infra/redis"
	"quizly-game-service/internal/infra/trivia"
	transport "quizly-game-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel(), cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := RunMigrations(ctx, cfg.Postgres.URL); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	var (
		accounts app.AccountStore
		loader   memory.QuizLoader
	)
	if pool != nil {
		accounts = postgres.NewAccountStore(pool)
		loader = postgres.NewQuizLoader(pool)
	} else {
		demo := sampleQuiz()
		accounts = memory.NewAccountStore(domain.Account{UID: demo.OwnerID, Nickname: "demo"})
		loader = memory.NewStaticQuizLoader(demo)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var (
		store      app.SessionRepository
		redisStore *redisinfra.SessionStore
	)
	roomTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)
	if redisClient != nil {
		redisStore = redisinfra.NewSessionStore(redisClient, roomTTL)
		store = redisStore
	} else {
		store = memory.NewSessionStore()
	}

	provider := trivia.NewClient(cfg.ProviderURL(), &http.Client{
		Timeout: config.Duration(cfg.Provider.Timeout, 10*time.Second),
	})

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithBaseContext(ctx),
		app.WithTiming(app.Timing{
			JoinTimeout:  config.Duration(cfg.Game.JoinTimeout, 30*time.Second),
			AnswerWindow: config.Duration(cfg.Game.AnswerWindow, 12*time.Second),
			ResultsPause: config.Duration(cfg.Game.ResultsPause, 3*time.Second),
			EarlyAdvance: cfg.Game.EarlyAdvance,
		}),
	}
	if cfg.Rabbit.URL != "" {
		publisher, err := rabbit.Dial(cfg.Rabbit.URL, cfg.RabbitExchange())
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithResultsPublisher(publisher))
	}

	service := app.NewQuizService(store, app.NewQuestionBank(accounts, quizRepo, provider), accounts, opts...)

	handlerOpts := []transport.HandlerOption{
		transport.WithBaseContext(ctx),
		transport.WithHandlerLogger(logger),
	}
	if cfg.Auth.JWTSecret != "" {
		handlerOpts = append(handlerOpts, transport.WithVerifier(auth.NewVerifier(cfg.Auth.JWTSecret)))
	}
	wsHandler := transport.NewWSHandler(service, handlerOpts...)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, wsHandler),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz game service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if redisStore != nil {
		g.Go(func() error {
			refreshRooms(gctx, redisStore, roomTTL/2, logger)
			return nil
		})
	}
	return g.Wait()
}

// refreshRooms keeps the liveness markers of hosted rooms from expiring.
func refreshRooms(ctx context.Context, store *redisinfra.SessionStore, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Touch(ctx); err != nil {
				logger.Warn("refresh room markers", "err", err)
			}
		}
	}
}

// sampleQuiz is the stored quiz served when no Postgres is configured.
func sampleQuiz() domain.StoredQuiz {
	return domain.StoredQuiz{
		ID:      "demo",
		OwnerID: "demo-user",
		Name:    "Warm-up",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", CorrectAnswer: "4", IncorrectAnswers: []string{"3", "5", "22"}},
			{Text: "Which planet is known as the Red Planet?", CorrectAnswer: "Mars", IncorrectAnswers: []string{"Venus", "Jupiter", "Mercury"}},
		},
	}
}
