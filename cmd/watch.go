package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ezekaj/auto-scouter-sub000/internal/server"
	"github.com/ezekaj/auto-scouter-sub000/internal/utils"
	"github.com/ezekaj/auto-scouter-sub000/pkg/notify"
	"github.com/ezekaj/auto-scouter-sub000/pkg/scheduler"
)

// watchCmd implements: autoscouter watch
//
// The daemon mode: periodic scrape cycles per source, daily digest flush,
// and the HTTP API with live notification events.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scrape the marketplaces on a schedule and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		proxy, _ := cmd.Flags().GetString("proxy")

		entries, err := configuredSources(proxy)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			utils.Log.Info("No sources to watch. Enable at least one in ~/.autoscouter.yaml")
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

		events := server.NewBroadcaster()
		deliverers := []notify.Deliverer{&notify.LogDeliverer{Log: utils.Log}, events}
		if url := viper.GetString("webhook.url"); url != "" {
			deliverers = append(deliverers, notify.NewWebhookDeliverer(url, 15*time.Second))
		}
		notifier := notify.New(db, utils.Log, deliverers...)

		for i := range entries {
			entries[i].Config.DB = db
			entries[i].Config.Notifier = notifier
		}

		sched := scheduler.New(entries, notifier, viper.GetString("digest.time"), utils.Log)
		sched.Start(cmd.Context())

		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = viper.GetString("server.listen")
		}
		user := viper.GetString("server.username")
		pass := viper.GetString("server.password")
		return server.New(db, sched, events, user, pass).Start(listen)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("listen", "", "HTTP listen address (default from config, :8087)")
}
