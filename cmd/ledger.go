package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fieldstock/internal/config"
	"github.com/sells-group/fieldstock/internal/fetcher"
	"github.com/sells-group/fieldstock/internal/reconcile"
	"github.com/sells-group/fieldstock/internal/store"
)

// initLedger opens the configured ledger and applies its migration.
func initLedger(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Ledger.Driver {
	case "sqlite":
		dsn := c.Ledger.DatabaseURL
		if dsn == "" {
			dsn = "fieldstock.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Ledger.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Ledger.Pool.MaxConns,
			MinConns: c.Ledger.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported ledger driver: %s", c.Ledger.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// newEngine builds a reconciliation engine from configuration.
func newEngine(led reconcile.Ledger, c *config.Config) (*reconcile.Engine, error) {
	engCfg := reconcile.Config{
		FuzzyThreshold: c.Reconcile.FuzzyThreshold,
		CommitNote:     c.Commit.Note,
		CommitRate:     c.Commit.MaxPerSecond,
	}
	if c.Reconcile.KeywordsFile != "" {
		kw, err := reconcile.LoadKeywords(c.Reconcile.KeywordsFile)
		if err != nil {
			return nil, err
		}
		engCfg.Keywords = kw
	}
	return reconcile.NewEngine(led, engCfg), nil
}

func newLoader(c *config.Config) *fetcher.Loader {
	timeout := time.Duration(c.Fetch.TimeoutSecs) * time.Second
	return fetcher.NewLoader(
		fetcher.HTTPOptions{
			UserAgent:  c.Fetch.UserAgent,
			Timeout:    timeout,
			MaxRetries: c.Fetch.MaxRetries,
		},
		fetcher.FTPOptions{
			Timeout: timeout,
			Retry:   fetcher.RetryPolicy{MaxAttempts: c.Fetch.MaxRetries},
		},
	)
}
