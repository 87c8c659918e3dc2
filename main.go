package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/SolveWise/server/internal/core"
	"github.com/SolveWise/server/internal/server"
	"github.com/SolveWise/server/internal/solver/graph"
	"github.com/SolveWise/server/internal/solver/model"
	"github.com/SolveWise/server/internal/solver/repo"
	logx "github.com/SolveWise/server/pkg/logger"
	pkgredis "github.com/SolveWise/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config
	HTTP  server.Config

	// Solver
	Provider  model.ProviderConfig
	Image     model.ImageConfig
	Knowledge model.KnowledgeConfig
	Prompt    model.PromptConfig
	History   model.HistoryConfig
}

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg     AppConfig
	env     core.Environment
	history model.HistoryRepository
	runner  graph.Runner
	closers []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

func loadConfig() (AppConfig, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process environment config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env, Level: cfg.LogLevel})

	a := &app{cfg: cfg, env: env}

	if cfg.Redis.Enabled() {
		var rdb *goredis.Client
		rdb, err = cfg.Redis.New()
		if err != nil {
			return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.history = repo.NewRedisHistoryRepository(rdb, cfg.History.TTL, cfg.History.MaxItems)
		logx.Debug().Msg("Connected to Redis successfully")
	} else {
		a.history = repo.NewMemoryHistoryRepository(cfg.History.MaxItems)
		logx.Debug().Msg("REDIS_URL not set, keeping history in memory")
	}

	a.runner, err = graph.BuildSolver(ctx, graph.Config{
		Provider:    cfg.Provider,
		Image:       cfg.Image,
		Knowledge:   cfg.Knowledge,
		Prompt:      cfg.Prompt,
		History:     cfg.History,
		HistoryRepo: a.history,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build solver: %w", err)
	}
	return a, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "solvewise",
		Short: "SolveWise answers exam questions with grounded, charted AI explanations",
		Long: `SolveWise answers accounting and economics exam questions, typed or
photographed, using lecture material from the knowledge backend when it has
any and Google Search otherwise.

Environment Variables:
  GEMINI_API_KEY   - default Gemini API key
  KNOWLEDGE_URL    - knowledge backend search endpoint
  REDIS_URL        - history store (in memory when unset)
  HTTP_ADDR        - listen address for "serve"`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newSolveCmd())
	root.AddCommand(newModelCmd())
	root.AddCommand(newHistoryCmd())
	return root
}
