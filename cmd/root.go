package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ezekaj/auto-scouter-sub000/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	              _                           _
	  __ _ _   _| |_ ___  ___  ___ ___  _   _| |_ ___ _ __
	 / _' | | | | __/ _ \/ __|/ __/ _ \| | | | __/ _ \ '__|
	| (_| | |_| | || (_) \__ \ (_| (_) | |_| | ||  __/ |
	 \__,_|\__,_|\__\___/|___/\___\___/ \__,_|\__\___|_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "autoscouter",
	Short: "A vehicle marketplace watcher with alerts.",
	Long: LOGO + `autoscouter scrapes used-car marketplaces on a schedule, keeps a local
database of listings with price history, and notifies you when a new or
changed listing matches one of your saved alerts.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.autoscouter.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/autoscouter/autoscouter.sqlite)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".autoscouter")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.autoscouter.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default values for all keys
	viper.SetDefault("sources.autoscout24.enabled", true)
	viper.SetDefault("sources.autoscout24.query", "")
	viper.SetDefault("sources.autoscout24.max_pages", 5)
	viper.SetDefault("sources.autoscout24.detail_fetch", false)
	viper.SetDefault("sources.autoscout24.interval_minutes", 30)
	viper.SetDefault("sources.carmarket.enabled", false)
	viper.SetDefault("sources.carmarket.email", "")
	viper.SetDefault("sources.carmarket.password", "")
	viper.SetDefault("sources.carmarket.max_pages", 3)
	viper.SetDefault("sources.carmarket.interval_minutes", 60)
	viper.SetDefault("scrape.concurrency", 3)
	viper.SetDefault("scrape.min_delay_ms", 1500)
	viper.SetDefault("scrape.max_cycle_minutes", 20)
	viper.SetDefault("digest.time", "08:00")
	viper.SetDefault("webhook.url", "")
	viper.SetDefault("server.listen", ":8087")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
