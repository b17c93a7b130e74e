// Package commands implements the stupifyd CLI commands.
package commands

import (
	"database/sql"
	"os"

	"github.com/spf13/cobra"

	"github.com/mdnaeem95/stupify-extension/analytics"
	"github.com/mdnaeem95/stupify-extension/auth"
	"github.com/mdnaeem95/stupify-extension/cache"
	"github.com/mdnaeem95/stupify-extension/config"
	"github.com/mdnaeem95/stupify-extension/connectivity"
	"github.com/mdnaeem95/stupify-extension/db"
	"github.com/mdnaeem95/stupify-extension/errors"
	"github.com/mdnaeem95/stupify-extension/gateway"
	"github.com/mdnaeem95/stupify-extension/logger"
	"github.com/mdnaeem95/stupify-extension/queue"
	"github.com/mdnaeem95/stupify-extension/syncer"
)

// components is the assembled offline stack shared by all commands.
type components struct {
	cfg      *config.Config
	database *sql.DB
	monitor  *connectivity.Monitor
	queue    *queue.Queue
	cache    *cache.Cache
	buffer   *analytics.Buffer
	tokens   *auth.TokenStore
	gateway  *gateway.Gateway
	engine   *syncer.Engine
}

// openComponents loads configuration, opens the database, and wires the
// offline stack together. The caller owns cleanup via close().
func openComponents(cmd *cobra.Command) (*components, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	dbPath := cfg.Database.Path
	if flagPath, _ := cmd.Flags().GetString("db-path"); flagPath != "" {
		dbPath = flagPath
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	monitor := connectivity.NewMonitor(connectivity.Options{
		ProbeURL:      cfg.Connectivity.ProbeURL,
		ProbeInterval: cfg.Connectivity.ProbeInterval(),
		ProbeTimeout:  cfg.Connectivity.ProbeTimeout(),
	}, logger.Logger)

	q := queue.New(database, cfg.Queue.Capacity, logger.Logger)
	expCache := cache.New(cache.NewStore(database), cache.Options{
		Capacity:       cfg.Cache.Capacity,
		ExpiryWindow:   cfg.Cache.ExpiryWindow(),
		FuzzyThreshold: cfg.Cache.FuzzyThreshold,
	}, logger.Logger)
	buffer := analytics.NewBuffer(database, logger.Logger)
	tokens := auth.NewTokenStore(logger.Logger)

	if token := os.Getenv("STUPIFY_API_TOKEN"); token != "" {
		tokens.SetToken(token)
	}

	gw := gateway.New(monitor, q, expCache, gateway.NewResponseCache(database, cfg.Cache.ResponseTTL()),
		buffer, tokens, gateway.Options{
			BaseURL:     cfg.Backend.BaseURL,
			Timeout:     cfg.Backend.Timeout(),
			ResponseTTL: cfg.Cache.ResponseTTL(),
			UsageLimit:  cfg.Backend.RequestsPerMinute,
		}, logger.Logger)

	engine := syncer.New(q, buffer, monitor, gw.Deliver, gw.SendAnalytics, syncer.Options{
		MaxRetries: cfg.Queue.MaxRetries,
		Backoff:    cfg.Sync.BackoffSchedule(),
		Interval:   cfg.Sync.Interval(),
	}, logger.Logger)
	gw.BindEngine(engine)

	return &components{
		cfg:      cfg,
		database: database,
		monitor:  monitor,
		queue:    q,
		cache:    expCache,
		buffer:   buffer,
		tokens:   tokens,
		gateway:  gw,
		engine:   engine,
	}, nil
}

func (c *components) close() {
	if c.database != nil {
		c.database.Close()
	}
}
