package main

import (
	"fmt"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/binder"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/config"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/query"
)

// loadConfig loads the .env file and then the configuration.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.Env); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg, err := config.Load(opts.configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// parseQueries builds the query registry. Invalid definitions are
// returned alongside the registry of the valid ones.
func parseQueries(cfg *config.Config) (*query.Registry, []error) {
	return query.ParseAll(cfg.QueryDefinitions(), query.WithTemplateCheck(binder.Validate))
}
