package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-bookkeeping-service/cmd/bookkeeper/config"
	"golang-bookkeeping-service/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bookkeeper",
	Short: "Bank transaction categorization and booking",
	Long: `Bookkeeper categorizes imported bank transactions and books them as
balanced double-entry journal entries. Each transaction runs through invoice
matching, learned rules, known relations, a vendor table and optional web
search plus LLM enrichment. Confident results are booked automatically and
the rest is kept as a suggestion for review.

Provider keys may be set in a .env file. Without keys the enrichment stage
uses a local simulation.

Examples:
  bookkeeper import statement.csv
  bookkeeper batch --all --output-format json
  bookkeeper resolve <transaction-id>
  bookkeeper book <transaction-id> --account 4310
  bookkeeper settle <transaction-id> --invoice <invoice-id>`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	cc.Init(&cc.Config{
		RootCmd:  rootCmd,
		Headings: cc.HiCyan + cc.Bold + cc.Underline,
		Commands: cc.HiYellow + cc.Bold,
		Example:  cc.Italic,
		ExecName: cc.Bold,
		Flags:    cc.Bold,
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (toml, yaml or json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("db", "", "database file (overrides database.path)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
}

// initConfig loads .env, the optional config file and BOOKKEEPER_ variables.
func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix("BOOKKEEPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the application config and installs the global logger
func loadConfig() (*config.AppConfig, logger.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewLogger(cfg.LoggerConfig(viper.GetBool("verbose")))
	if err != nil {
		return nil, nil, err
	}
	logger.SetGlobalLogger(log)
	return cfg, log, nil
}

// withServices runs fn with the fully wired pipeline and closes it after
func withServices(ctx context.Context, fn func(ctx context.Context, svc *config.Services) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := config.NewServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bookkeeper %s\n", getVersionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
