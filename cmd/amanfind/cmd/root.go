// Package cmd provides the CLI commands for amanfind.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/config"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/logging"
	"github.com/Aman-CERP/amanfind/internal/profiling"
	"github.com/Aman-CERP/amanfind/pkg/version"
)

// skipConfig marks commands that must work without a valid project config.
const skipConfig = "skip-config"

var (
	debugMode      bool
	projectDir     string
	loadedConfig   *config.Config
	loggingCleanup func()
	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the amanfind CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amanfind",
		Short: "Local semantic file search",
		Long: `amanfind indexes the files under a directory into a local vector store
and answers natural-language queries against it.

Text files are embedded into a 384-dimension space, images into a
512-dimension space shared with text, so you can search photos by
description or find files similar to one you already have.

Everything runs locally; the index lives in .amanfind/index.db.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("amanfind version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.amanfind/logs/")
	cmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "Project directory (config and default index location)")
	cmd.PersistentFlags().StringVar(&profileOpts.CPUPath, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profileOpts.HeapPath, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.TracePath, "profile-trace", "", "Write an execution trace to this file")
	_ = cmd.PersistentFlags().MarkHidden("profile-trace")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newVisualCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newModelCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error to stderr, as JSON
// when the command was run with --json.
func Execute() error {
	c, err := NewRootCmd().ExecuteC()
	stopProfiling()
	if err == nil {
		return nil
	}
	if jsonRequested(c) {
		_, _ = fmt.Fprintln(os.Stderr, amerrors.FormatJSON(err))
	} else {
		printError(os.Stderr, err)
	}
	return err
}

// jsonRequested reports whether the failed command was asked for JSON output.
func jsonRequested(c *cobra.Command) bool {
	if c == nil {
		return false
	}
	f := c.Flags().Lookup("json")
	return f != nil && f.Value.String() == "true"
}

// printError renders structured errors with their hint and code.
func printError(w io.Writer, err error) {
	var ae *amerrors.Error
	if errors.As(err, &ae) {
		_, _ = fmt.Fprint(w, amerrors.FormatForCLI(err))
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}

// startLogging loads the project configuration and installs the file logger.
func startLogging(cmd *cobra.Command, _ []string) error {
	loadedConfig = nil
	if profileOpts.Enabled() {
		session, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = session
	}
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	cfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}
	loadedConfig = cfg

	logger, cleanup, err := logging.Setup(loggingConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("logging_started",
		slog.String("command", cmd.Name()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	stopProfiling()
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func stopProfiling() {
	if profileSession == nil {
		return
	}
	if err := profileSession.Stop(); err != nil {
		slog.Warn("profiling_stop_failed", slog.String("error", err.Error()))
	}
	profileSession = nil
}

func loggingConfig(cfg *config.Config) logging.Config {
	lc := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.Stderr,
	}
	if lc.FilePath == "" {
		lc.FilePath = logging.DefaultLogPath()
	}
	if debugMode {
		lc.Level = "debug"
	}
	return lc
}

// currentConfig returns the configuration loaded for this invocation.
func currentConfig() (*config.Config, error) {
	if loadedConfig != nil {
		return loadedConfig, nil
	}
	return config.Load(projectDir)
}
