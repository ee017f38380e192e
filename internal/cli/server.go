package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-competition-service/internal/app"
	"quiz-competition-service/internal/config"
	"quiz-competition-service/internal/domain"
	"quiz-competition-service/internal/generator"
	"quiz-competition-service/internal/infra/memory"
	pgrepo "quiz-competition-service/internal/infra/postgres"
	redisinfra "quiz-competition-service/internal/infra/redis"
	transport "quiz-competition-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the competition server",
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
	}

	var (
		repo  app.CompetitionRepository
		queue app.QueueRepository
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = pgrepo.NewCompetitionRepository(pool)
		queue = pgrepo.NewQueueRepository(pool)
	} else {
		repo = memory.NewCompetitionRepository()
		queue = memory.NewQueueRepository()
	}

	var gen app.QuestionGenerator = generator.NewStaticGenerator()
	if cfg.Generator.URL != "" {
		gen = generator.NewHTTPGenerator(
			cfg.Generator.URL,
			cfg.Generator.APIKey,
			config.TTLDuration(cfg.Generator.Timeout, 30*time.Second),
		)
	}

	service := app.NewCompetitionService(repo, queue, gen, cfg.Competition.CodeLength)

	source := repoQuestionSource{repo: repo}
	var questions transport.QuestionSource = source
	var presence transport.Presence
	if redisClient != nil {
		cacheTTL := config.TTLDuration(cfg.Competition.QuestionCacheTTL, 10*time.Minute)
		questions = redisinfra.NewQuestionCache(redisClient, source, cacheTTL)
		presence = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	}

	matchmaker := app.NewMatchmaker(service, queue, repo,
		config.TTLDuration(cfg.Matchmaker.Interval, 10*time.Second),
		config.TTLDuration(cfg.Matchmaker.StaleAfter, 0))
	if err := matchmaker.Start(); err != nil {
		return err
	}
	defer func() {
		if err := matchmaker.Stop(); err != nil {
			log.Printf("matchmaker shutdown: %v", err)
		}
	}()

	wsHandler := transport.NewWSHandler(service, questions, presence)
	apiHandler := transport.NewAPIHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting competition service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// repoQuestionSource serves question sets straight from the competition row;
// the Redis cache wraps it in production.
type repoQuestionSource struct {
	repo app.CompetitionRepository
}

func (s repoQuestionSource) LoadQuestions(ctx context.Context, competitionID string) ([]domain.Question, error) {
	comp, err := s.repo.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	return comp.Questions, nil
}

func (s repoQuestionSource) Questions(ctx context.Context, competitionID string) ([]domain.Question, error) {
	return s.LoadQuestions(ctx, competitionID)
}
