package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ezekaj/auto-scouter-sub000/internal/utils"
	"github.com/ezekaj/auto-scouter-sub000/pkg/notify"
	"github.com/ezekaj/auto-scouter-sub000/pkg/pipeline"
	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

// scrapeCmd implements: autoscouter scrape
//
// Runs one scrape cycle per enabled source and exits. The watch command is
// the long-running variant of the same flow.
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape cycle for the configured marketplaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'autoscouter scrape --help'", args[0])
		}

		proxy, _ := cmd.Flags().GetString("proxy")
		sourceFilter, _ := cmd.Flags().GetString("source")

		entries, err := configuredSources(proxy)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			utils.Log.Info("No sources to scrape. Enable at least one in ~/.autoscouter.yaml")
			return nil
		}

		lock, err := lockDatabase(cmd)
		if err != nil {
			return err
		}
		defer lock.Unlock()

		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		deliverers := []notify.Deliverer{&notify.LogDeliverer{Log: utils.Log}}
		if url := viper.GetString("webhook.url"); url != "" {
			deliverers = append(deliverers, notify.NewWebhookDeliverer(url, 15*time.Second))
		}
		notifier := notify.New(db, utils.Log, deliverers...)

		ran := 0
		for _, entry := range entries {
			name := entry.Config.Scraper.Name()
			if sourceFilter != "" && sourceFilter != "all" && sourceFilter != name {
				continue
			}
			ran++

			cfg := entry.Config
			cfg.DB = db
			cfg.Notifier = notifier
			cfg.StaleAfter = entry.MaxCycleDuration

			res, err := pipeline.RunCycle(cmd.Context(), cfg)
			if errors.Is(err, storage.ErrSessionRunning) {
				utils.Log.Warnf("A scrape for %s is already running, skipping.", name)
				continue
			}
			if err != nil {
				utils.Log.Errorf("Scrape for %s failed: %v", name, err)
				continue
			}
			fmt.Printf("%s: %d found, %d new, %d updated, %d reactivated, %d deactivated, %d notifications\n",
				name, res.Found, res.New, res.Updated, res.Reactivated, res.Deactivated, res.NotificationsCreated)
		}

		if ran == 0 {
			return fmt.Errorf("no enabled source matches '%s'", sourceFilter)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.Flags().String("source", "all", "Source to scrape (autoscout24, carmarket, all)")
}
