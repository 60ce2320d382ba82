package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"aksara-duel-service/internal/app"
	"aksara-duel-service/internal/config"
	"aksara-duel-service/internal/duel"
	"aksara-duel-service/internal/evaluate"
	"aksara-duel-service/internal/identity"
	"aksara-duel-service/internal/infra/classifier"
	"aksara-duel-service/internal/infra/memory"
	natsrelay "aksara-duel-service/internal/infra/nats"
	pgstore "aksara-duel-service/internal/infra/postgres"
	redisstore "aksara-duel-service/internal/infra/redis"
	"aksara-duel-service/internal/logging"
	transport "aksara-duel-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the duel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// relayConn is the channel relay shared by the trigger endpoint and duel feeds.
type relayConn interface {
	duel.Relay
	Close() error
}

func newRelay(cfg config.Config, logger *zap.Logger) (relayConn, error) {
	if cfg.NATS.URL == "" {
		return memory.NewRelay(), nil
	}
	return natsrelay.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
}

func newEvaluator(cfg config.Config) app.Evaluator {
	if cfg.Classifier.URL == "" {
		return evaluate.NewSimulated(nil)
	}
	timeout := config.TTLDuration(cfg.Classifier.Timeout, 5*time.Second)
	return evaluate.NewClassifier(classifier.NewClient(cfg.Classifier.URL, classifier.WithTimeout(timeout)))
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = openBunDB(cfg.Postgres.URL)
		defer db.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var rooms app.RoomRepository
	if redisClient != nil {
		rooms = redisstore.NewRoomStore(redisClient, redisTTL, logger)
	} else {
		rooms = memory.NewRoomStore()
	}

	opts := []app.Option{app.WithLogger(logger)}
	var recorder *pgstore.ResultRecorder
	if db != nil {
		recorder = pgstore.NewResultRecorder(db)
		opts = append(opts, app.WithRecorder(recorder))

		job := pgstore.NewRetentionJob(recorder,
			config.TTLDuration(cfg.Results.Retention, 0), cfg.Results.Schedule, logger)
		if err := job.Start(); err != nil {
			return err
		}
		defer job.Stop()
	}

	service := app.NewMatchService(rooms, quizRepo, newEvaluator(cfg), app.MatchConfig{
		QuizID:      cfg.Quiz.ID,
		InitialTime: cfg.Duel.InitialTime,
		Countdown:   cfg.Duel.Countdown,
		Grace:       config.TTLDuration(cfg.Duel.Grace, 2*time.Second),
		Shuffle:     cfg.Quiz.Shuffle,
	}, opts...)

	relay, err := newRelay(cfg, logger)
	if err != nil {
		return err
	}
	defer relay.Close()

	var verifier transport.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = identity.NewIssuer(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(service, verifier, logger).ServeWS)
	mux.HandleFunc("/relay/trigger", transport.NewRelayHandler(relay, logger).Trigger)
	if recorder != nil {
		mux.HandleFunc("/duels", transport.NewResultsHandler(recorder, logger).List)
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      c.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting duel service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
