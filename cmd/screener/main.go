// Command screener retrieves stock screener results from the command line
// (run) or over HTTP (serve).
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/screener-client/internal/config"
	"github.com/Sternrassler/screener-client/pkg/logging"
)

var (
	cfgFile string
	verbose bool

	// cfg is loaded once by the root PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Stock screener retrieval client",
	Long: `Stock screener retrieval client.

Configuration is read from config.yaml (or --config), then SCREENER_*
environment variables. A .env file in the working directory is loaded first.

Commands:
    run      retrieve one screening request and export it
    serve    expose retrievals over HTTP with /health and /metrics
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file or directory (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
}

func initConfig() error {
	// .env is optional; the environment may already carry everything.
	envErr := godotenv.Load()

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		loaded.Log.Level = string(logging.LevelDebug)
	}
	cfg = loaded

	logging.Setup(cfg.Logging())
	if envErr != nil {
		log.Debug().Msg("No .env file loaded")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
