package cmd

import (
	"log"

	"jobscout/internal/profile"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "jobscout"
)

type Config struct {
	Store      *StoreConfig      `mapstructure:"store"`
	Ingest     *IngestConfig     `mapstructure:"ingest"`
	Classifier *ClassifierConfig `mapstructure:"classifier"`
	Fetch      *FetchConfig      `mapstructure:"fetch"`
	AI         *AIConfig         `mapstructure:"ai"`
	SMTP       *SMTPConfig       `mapstructure:"smtp"`
	Profile    *profile.Config   `mapstructure:"profile"`
	Autofill   *AutofillConfig   `mapstructure:"autofill"`
	Schedule   string            `mapstructure:"schedule"`
}

type StoreConfig struct {
	// DSN is a postgres connection string. Empty means the in-process
	// store, which only deduplicates within a single run.
	DSN string `mapstructure:"dsn"`
}

type IngestConfig struct {
	ChatFile string `mapstructure:"chat-file"`
}

type ClassifierConfig struct {
	Keywords    []string `mapstructure:"keywords"`
	ContactCues []string `mapstructure:"contact-cues"`
}

type FetchConfig struct {
	MaxChars       int      `mapstructure:"max-chars"`
	TimeoutSeconds int      `mapstructure:"timeout-seconds"`
	Blocked        []string `mapstructure:"blocked-domains"`
	Placeholders   []string `mapstructure:"placeholder-patterns"`
	// Strategies orders the fetch chain. Valid entries are "extraction"
	// and "direct"; empty means extraction first, then direct.
	Strategies []string         `mapstructure:"strategies"`
	Extraction *FirecrawlConfig `mapstructure:"firecrawl"`
}

type FirecrawlConfig struct {
	BaseURL    string `mapstructure:"base-url"`
	APIKeyFile string `mapstructure:"api-key-file"`
}

type AIConfig struct {
	Gemini *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	// TimeoutSeconds bounds each generation call. Zero means the
	// composer's default.
	TimeoutSeconds int `mapstructure:"timeout-seconds"`
}

type SMTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	PasswordFile string `mapstructure:"password-file"`
	// TimeoutSeconds bounds the whole SMTP exchange. Zero means the
	// sender's default.
	TimeoutSeconds int `mapstructure:"timeout-seconds"`
}

type AutofillConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobscout turns chat job postings into sent applications",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("store.dsn", "DATABASE_URL"); err != nil {
		log.Fatalf("binding DATABASE_URL environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("smtp.password-file", "SMTP_PASSWORD_FILE"); err != nil {
		log.Fatalf("binding SMTP_PASSWORD_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("fetch.firecrawl.api-key-file", "FIRECRAWL_API_KEY_FILE"); err != nil {
		log.Fatalf("binding FIRECRAWL_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobscout.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for run command now. If there is no config, we can skip initialization
	if runCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
