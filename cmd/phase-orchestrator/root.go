package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corpusforge/phase-orchestrator/internal/config"
	"github.com/corpusforge/phase-orchestrator/pkg/log"
)

var (
	logLevel   string
	phasesFile string
)

var rootCmd = &cobra.Command{
	Use:           "phase-orchestrator",
	Short:         "Orchestrates the extraction phases of a course corpus",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(planCmd)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides ORCHESTRATOR_LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&phasesFile, "phases", "", "Path to the phase profile file, overrides ORCHESTRATOR_PHASES_FILE")
}

// setup loads the configuration and installs the global logger. The returned
// func restores the previous logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Service.LogLevel = logLevel
	}
	if phasesFile != "" {
		cfg.Service.PhasesFile = phasesFile
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel), cfg.Service.LogFormat)
	undo := zap.ReplaceGlobals(logger)
	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
