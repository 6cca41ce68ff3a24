package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "netmap",
	Short: "A clustering and filtering engine for location network maps",
	Long: `netmap serves clustered, filterable views of large location networks.

It loads the locations of a region from a store, filters them by network,
subnetwork, city, zip and county, and clusters what remains per network for
the current zoom level.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	rootCmd.PersistentFlags().String("store", "sqlite", "Location store (sqlite, postgres, overpass, snapshot)")
	rootCmd.PersistentFlags().String("dsn", "", "Database DSN for the sql stores (default netmap.db for sqlite)")
	rootCmd.PersistentFlags().String("snapshot-dir", "snapshots", "Directory of region snapshots")
	rootCmd.PersistentFlags().String("overpass-endpoint", "", "Overpass API endpoint (default public instance)")
	rootCmd.PersistentFlags().String("amenity", "", "Overpass amenity tag to load (default all network-tagged nodes)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"env_file", "env-file"},
		{"verbose", "verbose"},
		{"log_format", "log-format"},
		{"store.driver", "store"},
		{"store.dsn", "dsn"},
		{"store.snapshot_dir", "snapshot-dir"},
		{"store.overpass_endpoint", "overpass-endpoint"},
		{"store.amenity", "amenity"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, rootCmd.PersistentFlags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(viper.GetString("env_file")); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Failed to load env file:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("NETMAP")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
