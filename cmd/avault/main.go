package main

import (
	"fmt"
	"os"

	"github.com/franz/asset-vault/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "avault",
		Short: "Asset Vault - metadata database for game assets",
		Long: `avault manages a single-file SQLite database of game asset metadata.
It stores assets with their import settings and quality metrics, tracks
dependencies between assets without cycles, groups assets into collections,
searches by name, tags, type, path, size and date, records usage, and keeps
the file healthy with optimize, backup, restore and health checks.`,
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
		},
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/avault.yaml)")
	rootCmd.PersistentFlags().String("db", "vault.db", "asset database file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().Bool("no-fts", false, "disable the full-text search index")
	rootCmd.PersistentFlags().Bool("no-analytics", false, "do not record usage events")
	rootCmd.PersistentFlags().Int("pool-size", 0, "number of pooled connections (default 4)")
	rootCmd.PersistentFlags().Int("busy-timeout", 0, "milliseconds to wait for a lock or connection (default 30000)")
	rootCmd.PersistentFlags().String("event-log", "", "directory for JSONL audit events (disabled when empty)")

	// Bind flags to viper
	for _, name := range []string{"db", "verbose", "quiet", "no-fts", "no-analytics", "pool-size", "busy-timeout", "event-log"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("avault")
		viper.SetConfigType("yaml")
	}

	// Read in environment variables that match
	viper.SetEnvPrefix("AVAULT")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
