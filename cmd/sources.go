package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ezekaj/auto-scouter-sub000/internal/utils"
	"github.com/ezekaj/auto-scouter-sub000/pkg/pipeline"
	"github.com/ezekaj/auto-scouter-sub000/pkg/scheduler"
	"github.com/ezekaj/auto-scouter-sub000/pkg/sources"
	"github.com/ezekaj/auto-scouter-sub000/pkg/sources/autoscout"
	"github.com/ezekaj/auto-scouter-sub000/pkg/sources/carmarket"
	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
	"github.com/ezekaj/auto-scouter-sub000/pkg/whttp"
)

// configuredSources builds one scheduler entry per source enabled in the
// config file. The DB, notifier and logger fields are filled in by the
// caller; only scraper wiring happens here.
func configuredSources(proxy string) ([]scheduler.Entry, error) {
	minDelay := time.Duration(viper.GetInt("scrape.min_delay_ms")) * time.Millisecond
	maxCycle := time.Duration(viper.GetInt("scrape.max_cycle_minutes")) * time.Minute
	concurrency := viper.GetInt("scrape.concurrency")

	client, err := whttp.NewClient(30*time.Second, 3, proxy)
	if err != nil {
		return nil, fmt.Errorf("could not build HTTP client: %w", err)
	}
	limiter := whttp.NewRateLimiter(minDelay)

	var entries []scheduler.Entry

	if viper.GetBool("sources.autoscout24.enabled") {
		scraper := autoscout.New(client, limiter, viper.GetString("sources.autoscout24.query"))
		entries = append(entries, scheduler.Entry{
			Config: pipeline.SourceConfig{
				Scraper: scraper,
				Options: sources.FetchOptions{
					MaxPages:    viper.GetInt("sources.autoscout24.max_pages"),
					DetailFetch: viper.GetBool("sources.autoscout24.detail_fetch"),
				},
				Auth:        sources.AuthConfig{Proxy: proxy},
				Concurrency: concurrency,
				Log:         utils.Log,
			},
			Interval:         time.Duration(viper.GetInt("sources.autoscout24.interval_minutes")) * time.Minute,
			MaxCycleDuration: maxCycle,
		})
	}

	if viper.GetBool("sources.carmarket.enabled") {
		email := viper.GetString("sources.carmarket.email")
		password := viper.GetString("sources.carmarket.password")
		if email == "" || password == "" {
			utils.Log.Info("Skipping carmarket: email or password not found in config.")
		} else {
			scraper := carmarket.New(client, limiter)
			entries = append(entries, scheduler.Entry{
				Config: pipeline.SourceConfig{
					Scraper: scraper,
					Options: sources.FetchOptions{
						MaxPages: viper.GetInt("sources.carmarket.max_pages"),
					},
					Auth:        sources.AuthConfig{Email: email, Password: password, Proxy: proxy},
					Concurrency: concurrency,
					Log:         utils.Log,
				},
				Interval:         time.Duration(viper.GetInt("sources.carmarket.interval_minutes")) * time.Minute,
				MaxCycleDuration: maxCycle,
			})
		}
	}

	return entries, nil
}

// openDatabase resolves the db path, makes sure the directory exists and
// opens the SQLite database.
func openDatabase(cmd *cobra.Command) (*storage.DB, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, err
	}
	return storage.Open(absPath)
}

// lockDatabase takes the cross-process write lock for commands that mutate
// the database.
func lockDatabase(cmd *cobra.Command) (*utils.DBLock, error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	lock, err := utils.NewDBLock(dbPath)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	return lock, nil
}
