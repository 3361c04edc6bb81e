package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Terminal client for the Parley chat API.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	viper.SetDefault("api-url", "http://localhost:8080")
	viper.SetDefault("state-dir", defaultStateDir())
	viper.SetDefault("log-level", "warn")

	rootCmd.PersistentFlags().String("api-url", "http://localhost:8080", "base URL of the Parley API")
	rootCmd.PersistentFlags().String("state-dir", defaultStateDir(), "directory holding the token and typed-title state")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level for client diagnostics")

	for _, key := range []string{"api-url", "state-dir", "log-level"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("parley")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newRegisterCmd(),
		newLoginCmd(),
		newMeCmd(),
		newConversationsCmd(),
		newMessagesCmd(),
		newChatCmd(),
	)
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(dir, "parley")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
