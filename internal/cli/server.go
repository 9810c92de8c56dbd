package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/config"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
	"arena-quiz-service/internal/infra/postgres"
	"arena-quiz-service/internal/infra/rabbitmq"
	infraredis "arena-quiz-service/internal/infra/redis"
	"arena-quiz-service/internal/logger"
	transport "arena-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var db *bun.DB
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		db, err = openBun(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := runMigrations(ctx, db, log); err != nil {
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
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	loader, err := problemLoader(cfg, pool)
	if err != nil {
		return err
	}
	problemTTL := config.TTLDuration(cfg.Problems.TTL, 10*time.Minute)

	var problems app.ProblemProvider
	var rooms app.RoomRepository
	var events app.EventPublisher
	if redisClient != nil {
		problems = infraredis.NewProblemRepository(redisClient, loader, problemTTL)
		rooms = infraredis.NewRoomStore(redisClient, redisTTL)
		events = infraredis.NewEventPublisher(redisClient)
	} else {
		problems = memory.NewProblemRepository(loader, problemTTL)
		rooms = memory.NewRoomStore()
		events = memory.NewEventRecorder(log)
	}

	var sinks []app.ResultSink
	if cfg.RabbitMQ.URL != "" {
		mq, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.HistoryQueue, cfg.RabbitMQ.ResultQueue)
		if err != nil {
			return err
		}
		defer mq.Close()
		sinks = append(sinks, mq)
	}
	if db != nil {
		sinks = append(sinks, postgres.NewResultStore(db))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, memory.NewResultRecorder(log))
	}

	service := app.NewGameService(
		app.NewRoomRegistry(rooms),
		problems,
		events,
		app.MultiSink(sinks...),
		app.Settings{MaxPlayer: cfg.Game.MaxPlayer, PlayRound: cfg.Game.PlayRound},
		log,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewRoomHandler(service, log).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(service, log).ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepFinished(sweepCtx, service, config.TTLDuration(cfg.Game.FinishedTTL, 15*time.Minute))

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// problemLoader prefers Postgres, then a YAML problem file, then the built-in bank.
func problemLoader(cfg config.Config, pool *pgxpool.Pool) (memory.ProblemLoader, error) {
	if pool != nil {
		return postgres.NewProblemLoader(pool), nil
	}
	if cfg.Problems.File != "" {
		loader, err := memory.LoadProblemFile(cfg.Problems.File)
		if err != nil {
			return nil, err
		}
		return loader, nil
	}
	return memory.NewStaticProblemLoader(sampleProblems()), nil
}

// sweepFinished drops rooms that finished longer than ttl ago.
func sweepFinished(ctx context.Context, service *app.GameService, ttl time.Duration) {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			service.SweepFinished(ttl)
		}
	}
}

// sampleProblems is the fallback bank when neither Postgres nor a problem file is configured.
func sampleProblems() []domain.Problem {
	return []domain.Problem{
		{
			ID:      1,
			Title:   "Arithmetic",
			Type:    domain.MultipleChoice,
			Content: "What is 2 + 2?",
			Choices: []domain.Choice{{ID: 1, Text: "3"}, {ID: 2, Text: "4"}, {ID: 3, Text: "5"}},
			Answers: []domain.AnswerKey{{CorrectChoiceID: 2}},
		},
		{
			ID:      2,
			Title:   "Mascot",
			Type:    domain.ShortAnswer,
			Content: "Which language has a gopher mascot?",
			Answers: []domain.AnswerKey{{CorrectText: "Go"}},
		},
		{
			ID:      3,
			Title:   "Keywords",
			Type:    domain.FillInTheBlank,
			Content: "Start a goroutine with _ and wait on channels with _.",
			Choices: []domain.Choice{{ID: 1, Text: "go"}, {ID: 2, Text: "defer"}, {ID: 3, Text: "select"}},
			Answers: []domain.AnswerKey{{BlankPosition: 1, CorrectChoiceID: 1}, {BlankPosition: 2, CorrectChoiceID: 3}},
		},
	}
}
