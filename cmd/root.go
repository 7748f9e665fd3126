package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/togglecache/togglecache/pkg/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "togglecache",
	Short: "Local evaluation cache for boolean feature toggles",
	Long: `togglecache keeps a feature toggle manifest in memory, refreshes it in
the background and serves boolean flag evaluations over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.togglecache.yaml)")
	rootCmd.PersistentFlags().String(config.LogLevelKey, "info", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String(config.LogFormatKey, "text", "log format: text or json")

	_ = viper.BindPFlag(config.LogLevelKey, rootCmd.PersistentFlags().Lookup(config.LogLevelKey))
	_ = viper.BindPFlag(config.LogFormatKey, rootCmd.PersistentFlags().Lookup(config.LogFormatKey))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".togglecache")
	}

	viper.SetEnvPrefix("TOGGLECACHE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
