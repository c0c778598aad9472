package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/scorelink/internal/app"
	"github.com/srg/scorelink/internal/config"
	"github.com/srg/scorelink/internal/radio"
	"github.com/srg/scorelink/internal/store"
)

// env is what a command runs against.
type env struct {
	cfg     *config.Config
	logger  *logrus.Logger
	store   store.Store
	service *app.Service

	closers []func() error
}

// loadConfig reads the config file named by --config (or the default one)
// and applies the global override flags, then tweaks.
func loadConfig(cmd *cobra.Command, tweaks ...func(*config.Config)) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Store.Path = v
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Radio.Backend = v
	}
	if v, _ := cmd.Flags().GetString("adapter"); v != "" {
		cfg.Radio.Adapter = v
	}
	for _, tweak := range tweaks {
		tweak(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openEnv builds the environment for cmd. withRadio selects whether the
// platform radio is opened; device table commands run without it.
func openEnv(cmd *cobra.Command, withRadio bool, tweaks ...func(*config.Config)) (*env, error) {
	cfg, err := loadConfig(cmd, tweaks...)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, st.Close)

	var adapter radio.Adapter
	if withRadio {
		a, release, err := adapterFactory(cfg, logger)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		adapter = a
		if release != nil {
			e.closers = append(e.closers, release)
		}
	}

	e.service = app.New(adapter, radio.AllowAll, st, app.Options{
		Discovery:  cfg.DiscoveryOptions(),
		Connection: cfg.ConnectionOptions(),
	}, logger)
	return e, nil
}

// Close shuts the service down and releases resources in reverse order of
// acquisition.
func (e *env) Close() error {
	if e.service != nil {
		e.service.Close()
	}
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
