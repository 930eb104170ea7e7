// Package cli implements the command-line interface for promptlane.
package cli

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/promptlane/promptlane/internal/config"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global config instance
	cfg *config.Config

	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "promptlane",
	Short: "Priority-lane request batching front-end for LLM generation",
	Long: `Promptlane groups concurrently-arriving generation requests of the same
priority into one combined upstream LLM call, parses the structured
multi-answer reply, and streams each answer back to the client that
submitted it. Per-call latency and quota cost are amortized across many
small requests while per-request identity and per-priority latency
targets are preserved.

Example:
  promptlane serve --addr :8000
  promptlane bench --url http://localhost:8000 --high 6`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initConfig()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: promptlane.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Register subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(exportCmd)
}

func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	setupLogging(cfg.Logging)
	return nil
}

// setupLogging configures the global zerolog logger from config; --verbose
// forces debug level.
func setupLogging(lc config.LoggingConfig) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(lc.Level)); err == nil && lc.Level != "" {
		level = parsed
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if lc.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("promptlane %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}
