package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/tilemart/salescore/internal/agent/engine"
	"github.com/tilemart/salescore/internal/agent/graph"
	"github.com/tilemart/salescore/internal/agent/model"
	"github.com/tilemart/salescore/internal/agent/repo"
	"github.com/tilemart/salescore/internal/agent/tools"
	"github.com/tilemart/salescore/internal/core"
	"github.com/tilemart/salescore/internal/sales/phase"
	"github.com/tilemart/salescore/internal/sales/question"
	"github.com/tilemart/salescore/internal/sales/score"
	"github.com/tilemart/salescore/internal/server"
	logx "github.com/tilemart/salescore/pkg/logger"
	pkgredis "github.com/tilemart/salescore/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Extraction   model.ExtractionModelConfig
	Response     model.ResponseModelConfig
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig
	Policy       model.PolicyConfig
}

func main() {
	root := &cobra.Command{
		Use:   "salescore",
		Short: "Guided-sales conversation engine for the Tilemart agent",
	}
	root.AddCommand(newServeCmd(), newScoreCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := godotenv.Load(".env"); err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
			}

			var cfg AppConfig
			if err := envconfig.Process("", &cfg); err != nil {
				return fmt.Errorf("process environment config: %w", err)
			}

			logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

			rdb, err := cfg.Redis.New()
			if err != nil {
				return fmt.Errorf("initialise redis client: %w", err)
			}
			defer rdb.Close()
			logx.Info().Msg("connected to redis")

			ttl, err := time.ParseDuration(cfg.Conversation.TTL)
			if err != nil {
				return fmt.Errorf("invalid CONVERSATION_TTL %q: %w", cfg.Conversation.TTL, err)
			}
			conversationRepo := repo.NewRedisConversationRepository(rdb, ttl)

			eng, registry, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			runner, err := graph.BuildTurnGraph(ctx, graph.Config{
				APIKey:           cfg.APIKey,
				BaseURL:          cfg.BaseURL,
				ExtractionModel:  cfg.Extraction,
				ResponseModel:    cfg.Response,
				ResponsePrompt:   cfg.Prompt,
				Conversation:     cfg.Conversation,
				ConversationRepo: conversationRepo,
				Engine:           eng,
				Registry:         registry,
			})
			if err != nil {
				return fmt.Errorf("build turn graph: %w", err)
			}

			srv := server.New(runner, conversationRepo, eng)
			logx.Info().Str("addr", cfg.HTTPAddr).Msg("starting http server")
			return srv.Router().Run(cfg.HTTPAddr)
		},
	}
}

func newScoreCmd() *cobra.Command {
	var transcriptPath, rubricPath string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Evaluate a checkpointed session transcript against the sales rubric",
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.Init()

			data, err := os.ReadFile(transcriptPath)
			if err != nil {
				return fmt.Errorf("read transcript: %w", err)
			}
			var session model.Session
			if err := json.Unmarshal(data, &session); err != nil {
				return fmt.Errorf("parse transcript: %w", err)
			}

			rubric, err := score.LoadRubricFile(rubricPath)
			if err != nil {
				return err
			}

			report := score.NewScorer(rubric).Evaluate(session.Transcript())
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "path to a session checkpoint JSON file")
	cmd.Flags().StringVar(&rubricPath, "rubric", "", "rubric YAML override (defaults to the embedded rubric)")
	cmd.MarkFlagRequired("transcript")
	return cmd
}

// buildEngine assembles the tool registry, question policy, scorer, and the
// per-turn engine from configuration.
func buildEngine(cfg AppConfig) (*engine.Engine, *tools.Registry, error) {
	lib, err := question.LoadLibraryFile(cfg.Policy.QuestionLibraryPath)
	if err != nil {
		return nil, nil, err
	}
	rubric, err := score.LoadRubricFile(cfg.Policy.RubricPath)
	if err != nil {
		return nil, nil, err
	}

	registry := tools.NewRegistry(tools.NewStaticCatalog(), tools.NewMemoryCustomerStore())

	eng := engine.New(engine.Config{
		Registry:     registry,
		Questions:    question.NewPolicy(lib),
		Scorer:       score.NewScorer(rubric),
		ResetPolicy:  phase.ResetPolicy(cfg.Conversation.ResetPolicy),
		MaxQuestions: cfg.Conversation.Questions.MaxPerTurn,
	})
	return eng, registry, nil
}
