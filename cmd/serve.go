package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ezekaj/auto-scouter-sub000/internal/server"
)

// serveCmd implements: autoscouter serve
//
// API-only mode: serves the query endpoints over an existing database
// without running any scrape schedule. POST /api/scrape answers 503.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API without scraping",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = viper.GetString("server.listen")
		}
		user := viper.GetString("server.username")
		pass := viper.GetString("server.password")
		return server.New(db, nil, server.NewBroadcaster(), user, pass).Start(listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (default from config, :8087)")
}
