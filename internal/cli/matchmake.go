package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"quiz-competition-service/internal/app"
	"quiz-competition-service/internal/config"
	"quiz-competition-service/internal/generator"
	pgrepo "quiz-competition-service/internal/infra/postgres"
)

// NewMatchmakeCmd runs the matchmaker as a standalone worker, for
// deployments that keep pairing out of the API processes.
func NewMatchmakeCmd(configPath *string) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "matchmake",
		Short: "Run the random-match pairing worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatchmaker(cmd.Context(), *configPath, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pairing pass and exit")
	return cmd
}

func runMatchmaker(ctx context.Context, configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		log.Println("matchmaker requires postgres; in-memory queues are process-local")
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := pgrepo.NewCompetitionRepository(pool)
	queue := pgrepo.NewQueueRepository(pool)

	var gen app.QuestionGenerator = generator.NewStaticGenerator()
	if cfg.Generator.URL != "" {
		gen = generator.NewHTTPGenerator(
			cfg.Generator.URL,
			cfg.Generator.APIKey,
			config.TTLDuration(cfg.Generator.Timeout, 30*time.Second),
		)
	}
	service := app.NewCompetitionService(repo, queue, gen, cfg.Competition.CodeLength)

	matchmaker := app.NewMatchmaker(service, queue, repo,
		config.TTLDuration(cfg.Matchmaker.Interval, 10*time.Second),
		config.TTLDuration(cfg.Matchmaker.StaleAfter, 0))

	if once {
		return matchmaker.PairOnce(ctx)
	}

	if err := matchmaker.Start(); err != nil {
		return err
	}
	log.Println("matchmaker running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	return matchmaker.Stop()
}
