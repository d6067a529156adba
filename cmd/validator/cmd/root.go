package cmd

import (
	"fmt"
	"os"
	"strings"

	"booking-validation-service/cmd/validator/config"
	"booking-validation-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
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
	Use:   "validator",
	Short: "Airline manifest booking validation tool",
	Long: `Validator reconciles airline-issued passenger manifests against the
agency's booking records. Every manifest row is matched by airline reference
or by flight, departure day and fuzzy passenger name; confirmed bookings are
marked validated and a report with one result per row is stored.

Settings can come from flags, a config file (--config) or VALIDATOR_*
environment variables, including a local .env file.

Examples:
  validator validate --file manifest.csv --user auditor --bookings bookings.json
  validator validate --file manifest.xlsx --user auditor --store postgres --dsn "$DATABASE_URL" --output-format json
  validator report --id 3f0c... --store sqlite --dsn validation.db
  validator migrate --store sqlite --dsn validation.db --bookings bookings.json`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("store", config.StoreMemory, "booking and report store: memory, postgres, sqlite")
	flags.String("dsn", "", "database connection string for the postgres and sqlite stores")
	flags.String("bookings", "", "JSON file of bookings to load into the memory store, or to seed with migrate")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address while the command runs, e.g. :9090")
	flags.String("log-format", string(logger.TextFormat), "log format: text, json")

	for _, name := range []string{"verbose", "store", "dsn", "bookings", "metrics-addr", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	// a missing .env file is fine
	_ = godotenv.Load()

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

	viper.SetEnvPrefix("VALIDATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupLogging(cmd *cobra.Command, args []string) error {
	logConfig := logger.DefaultConfig()
	logConfig.Level = logger.WarnLevel
	if viper.GetBool("verbose") {
		logConfig = logger.DebugConfig()
	}
	logConfig.Format = logger.Format(viper.GetString("log-format"))

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return fmt.Errorf("invalid logging settings: %w", err)
	}
	logger.SetGlobalLogger(log)
	return nil
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
