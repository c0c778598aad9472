package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/scorelink/internal/config"
)

// configureLogger creates a logger for cfg, letting --log-level and
// --verbose override the configured level, with --log-level taking
// precedence. Without either, the config's level applies, which defaults to
// silent.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level := cfg.LogLevel

	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		level = s
	} else if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}

	if _, err := config.ParseLevel(level); err != nil {
		return nil, err
	}
	cfg.LogLevel = level
	return cfg.NewLogger(), nil
}
