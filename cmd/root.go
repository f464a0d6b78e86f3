package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/deploymenttheory/go-bootstage/internal/config"
	"github.com/deploymenttheory/go-bootstage/internal/types"
)

var (
	// Global output flags only
	verbose    bool
	quiet      bool
	configFile string

	// Loaded configuration and logger, shared by the subcommands.
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bootstage",
	Short: "Two-stage boot handoff rehearsal tool",
	Long: `bootstage rehearses a two-stage firmware boot against simulated
hardware: a stage loader pulls a kernel image off a boot medium, places
it in a simulated RAM arena, exits boot services, and hands control to a
kernel entry shim that establishes the kernel's first execution context.

Media are either directory trees or GPT disk images carrying a boot
catalog on their EFI system partition.

Commands:
  inspect     Inspect a kernel image's executable format
  medium      Show a boot medium's partitions, catalog, and images
  extract     Extract a boot image from a medium to a local file
  boot        Rehearse the full boot pipeline against an image`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			zcfg.Encoding = "console"
			zcfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		}
		if quiet {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.LoadConfigFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit code. Boot outcomes
// carry their own codes; everything else exits 1.
func exitCode(err error) int {
	var outcomeErr *types.OutcomeError
	if errors.As(err, &outcomeErr) {
		return outcomeErr.Outcome.ExitCode()
	}
	return 1
}

func init() {
	// Only global output control flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default searches for bootstage.yaml)")
}
