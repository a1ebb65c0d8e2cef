package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "oretrack",
	Short: "oretrack is the field client for the stockpile record service",
	Long: `oretrack searches and edits stockpile records from the field.

Edits are applied to a local cache first and pushed to the server when it is
reachable. Anything the server could not take stays queued until the next
sync.

Common workflows:

  Pull the server's records into the local cache:
    oretrack refresh

  Find a stockpile:
    oretrack search BB.D --status BUILDING

  Change a record:
    oretrack edit 3 SHIFT NIGHT

  Push queued edits:
    oretrack sync

Configuration:
  Flags, environment variables and $HOME/.oretrack.yaml are read in that order:
    ORETRACK_URL       API endpoint (default: http://localhost:8080)
    ORETRACK_CACHE     offline cache file (default: $HOME/.oretrack/cache.db)
    ORETRACK_TIMEOUT   request timeout (default: 10s)`,
	SilenceUsage: true,
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".oretrack")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("ORETRACK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.oretrack.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "oretrack API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().String("cache", "", "offline cache file (default is $HOME/.oretrack/cache.db)")
	viper.BindPFlag("cache", rootCmd.PersistentFlags().Lookup("cache"))

	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "API request timeout")
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))

	rootCmd.PersistentFlags().String("log-level", "warn", "log level for background messages")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func cachePath() string {
	if p := viper.GetString("cache"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".oretrack", "cache.db")
	}
	return filepath.Join(home, ".oretrack", "cache.db")
}
