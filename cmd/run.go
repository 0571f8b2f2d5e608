package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"jobscout/internal/autofill"
	"jobscout/internal/classify"
	"jobscout/internal/compose"
	"jobscout/internal/compose/gemini"
	"jobscout/internal/fetch"
	"jobscout/internal/ingest"
	"jobscout/internal/logger"
	"jobscout/internal/outreach"
	"jobscout/internal/pipeline"
	"jobscout/internal/profile"
	"jobscout/internal/schedule"
	"jobscout/internal/score"
	"jobscout/internal/secrets"
	"jobscout/internal/store"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var prompt = promptui.Select{
	Label: "Send outreach emails for the listed opportunities?",
	Items: []string{PromptYes, PromptNo},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a chat export end to end: classify, enrich, score, compose and send",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before sending emails")
	runCmd.Flags().BoolP("dry-run", "n", false, "stop after scoring: no emails, no form submissions")
	runCmd.Flags().Bool("cron", false, "keep running on the configured schedule instead of once")
	runCmd.Flags().StringP("chat-file", "c", "", "chat export to ingest (overrides ingest.chat-file)")

	viper.BindPFlag("ingest.chat-file", runCmd.Flags().Lookup("chat-file"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting jobscout", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	chatFile := viper.GetString("ingest.chat-file")
	if chatFile == "" {
		logger.Fatal("chat export file is required",
			zap.String("hint", "set ingest.chat-file or pass --chat-file"))
	}

	if config.Profile == nil {
		logger.Fatal("profile section is required",
			zap.String("hint", "set profile.name and profile.email in the configuration file"))
	}

	prof, err := profile.Load(*config.Profile)
	if err != nil {
		logger.Fatal("loading candidate profile", zap.Error(err))
	}

	dryRun := cmd.Flag("dry-run").Value.String() == "true"

	st, closeStore, err := buildStore(ctx, config, logger)
	if err != nil {
		logger.Fatal("connecting to the store", zap.Error(err))
	}
	defer closeStore()

	classifier := buildClassifier(config)

	fetcher, err := buildFetcher(config, logger)
	if err != nil {
		logger.Fatal("building the fetcher", zap.Error(err))
	}

	deps := pipeline.Deps{
		Store:      st,
		Classifier: classifier,
		Fetcher:    fetcher,
		Scorer:     score.New(),
		Profile:    prof,
		Logger:     logger,
		DryRun:     dryRun,
	}

	if !dryRun {
		composer, err := buildComposer(ctx, config, prof, logger)
		if err != nil {
			logger.Fatal("building the email composer", zap.Error(err))
		}
		dispatcher, err := buildDispatcher(config, st, prof, logger)
		if err != nil {
			logger.Fatal("building the dispatcher", zap.Error(err))
		}
		deps.Composer = composer
		deps.Dispatcher = dispatcher

		if config.Autofill != nil && config.Autofill.Enabled {
			deps.Filler = autofill.NewFiller(prof, logger)
		}
	}

	pipe, err := pipeline.New(deps)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	messages, err := ingest.ParseFile(chatFile)
	if err != nil {
		logger.Fatal("parsing chat export", zap.String("file", chatFile), zap.Error(err))
	}
	logger.Info("chat export parsed",
		zap.String("file", chatFile),
		zap.Int("messages", len(messages)))

	candidates := 0
	for _, msg := range messages {
		opp := classifier.Classify(msg)
		if opp == nil {
			continue
		}
		candidates++
		logger.Info("opportunity candidate",
			zap.String("sender", opp.Sender),
			zap.String("role", opp.Role),
			zap.Int("links", len(opp.Links)),
			zap.Int("emails", len(opp.Emails)),
		)
	}
	if candidates == 0 {
		logger.Info("exiting", zap.String("reason", "no opportunity candidates found"))
		return
	}

	if !dryRun && cmd.Flag("auto-approve").Value.String() == "false" {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action == PromptNo {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	doRun := func(ctx context.Context) {
		summary, err := pipe.Run(ctx, messages)
		if err != nil {
			logger.Error("pipeline run aborted", zap.Error(err))
			return
		}
		logger.Info("run complete",
			zap.Int("opportunities", summary.Opportunities),
			zap.Int("sent", summary.Sent),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
	}

	if cmd.Flag("cron").Value.String() == "true" {
		if config.Schedule == "" {
			logger.Fatal("cron mode requires a schedule",
				zap.String("hint", "set the top-level 'schedule' key, e.g. '@every 6h'"))
		}

		runner := schedule.New(config.Schedule, doRun, logger)
		if err := runner.Start(ctx); err != nil {
			logger.Fatal("starting the scheduler", zap.Error(err))
		}

		<-ctx.Done()
		runner.Stop()
		return
	}

	doRun(ctx)
}

func buildStore(ctx context.Context, config *Config, logger *zap.Logger) (store.Store, func(), error) {
	if config.Store == nil || config.Store.DSN == "" {
		logger.Warn("no store.dsn configured, using the in-process store",
			zap.String("hint", "duplicate sends are only prevented within this run"))
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.NewPostgres(ctx, config.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func buildClassifier(config *Config) *classify.Classifier {
	if config.Classifier == nil {
		return classify.New(nil, nil)
	}
	return classify.New(config.Classifier.Keywords, config.Classifier.ContactCues)
}

// buildFetcher assembles the strategy chain in the configured order, by
// default the extraction API first and the direct fetch as fallback.
func buildFetcher(config *Config, logger *zap.Logger) (*fetch.Fetcher, error) {
	var (
		maxChars     int
		timeout      time.Duration
		blocked      []string
		placeholders []string
		order        []string
		extraction   fetch.ExtractionConfig
	)

	if config.Fetch != nil {
		maxChars = config.Fetch.MaxChars
		timeout = time.Duration(config.Fetch.TimeoutSeconds) * time.Second
		blocked = config.Fetch.Blocked
		placeholders = config.Fetch.Placeholders
		order = config.Fetch.Strategies

		if fc := config.Fetch.Extraction; fc != nil {
			extraction.BaseURL = fc.BaseURL
			extraction.Timeout = timeout
			if fc.APIKeyFile != "" {
				key, err := secrets.Load(secrets.Source{
					Name: "firecrawl api key",
					File: fc.APIKeyFile,
				})
				if err != nil {
					logger.Warn("extraction api key unavailable, falling back to direct fetch only", zap.Error(err))
				} else {
					extraction.APIKey = key
				}
			}
		}
	}

	strategies, err := buildStrategies(order, extraction, timeout, logger)
	if err != nil {
		return nil, err
	}

	return fetch.New(fetch.NewPrefilter(placeholders, blocked), strategies, maxChars, logger), nil
}

// buildStrategies maps configured strategy names to instances, preserving the
// configured order.
func buildStrategies(order []string, extraction fetch.ExtractionConfig, timeout time.Duration, logger *zap.Logger) ([]fetch.Strategy, error) {
	if len(order) == 0 {
		order = []string{"extraction", "direct"}
	}

	strategies := make([]fetch.Strategy, 0, len(order))
	for _, name := range order {
		switch name {
		case "extraction":
			strategies = append(strategies, fetch.NewExtractionService(extraction, logger))
		case "direct":
			strategies = append(strategies, fetch.NewDirectFetch(timeout, logger))
		default:
			return nil, fmt.Errorf("unknown fetch strategy %q (valid: extraction, direct)", name)
		}
	}

	return strategies, nil
}

func buildComposer(ctx context.Context, config *Config, prof *profile.Profile, logger *zap.Logger) (*compose.Composer, error) {
	if config.AI == nil || config.AI.Gemini == nil {
		return nil, fmt.Errorf("ai.gemini configuration is required")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.AI.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, config.AI.Gemini.Model)
	if err != nil {
		return nil, err
	}

	logger.Info("email composer ready",
		zap.String("provider", "gemini"),
		zap.String("model", generator.Model()))

	var opts []compose.Option
	if config.AI.Gemini.TimeoutSeconds > 0 {
		opts = append(opts, compose.WithCallTimeout(time.Duration(config.AI.Gemini.TimeoutSeconds)*time.Second))
	}

	return compose.NewComposer(generator, prof, logger, opts...), nil
}

func buildDispatcher(config *Config, st store.Store, prof *profile.Profile, logger *zap.Logger) (*outreach.Dispatcher, error) {
	if config.SMTP == nil || config.SMTP.Host == "" {
		return nil, fmt.Errorf("smtp configuration is required")
	}

	password, err := secrets.Load(secrets.Source{
		Name: "smtp password",
		File: config.SMTP.PasswordFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set smtp.password-file or SMTP_PASSWORD_FILE)", err)
	}

	port := config.SMTP.Port
	if port == 0 {
		port = 587
	}

	sender := outreach.NewSMTPSender(config.SMTP.Host, port, config.SMTP.User, password,
		time.Duration(config.SMTP.TimeoutSeconds)*time.Second)

	return outreach.NewDispatcher(sender, st, prof, logger), nil
}
