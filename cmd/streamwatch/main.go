// streamwatch keeps the shelfstream activity feeds live in a terminal
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/anonto42/shelfstream/internal/apiclient"
	"github.com/anonto42/shelfstream/pkg/config"
)

// Flag variables.
var (
	serverURL, tokenFile, logFile, logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "streamwatch",
	Short: "Watch the shelfstream activity feeds as they change.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLog(logFile, logLevel)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Store the bearer token used for personal and shelf feeds.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := viewerFromToken(args[0]); err != nil {
			return err
		}
		if err := apiclient.NewFileTokenStore(tokenFile).Save(args[0]); err != nil {
			return err
		}
		jww.INFO.Printf("Saved token to %s", tokenFile)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return apiclient.NewFileTokenStore(tokenFile).Clear()
	},
}

func init() {
	tokenPath := "shelfstream-token"
	if dir, err := os.UserConfigDir(); err == nil {
		tokenPath = filepath.Join(dir, "shelfstream", "token")
	}
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080",
		"Base URL of the stream service.")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", tokenPath,
		"Where the bearer token is stored.")
	rootCmd.PersistentFlags().StringVarP(&logFile, "log", "l", "-",
		"Log output path. By default, logs are printed to stdout. "+
			"To disable logging, set this to empty (\"\").")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "logLevel", "v", "warn",
		"Log level: trace, debug, info, warn or error.")

	rootCmd.AddCommand(watchCmd, bookCmd, inboxCmd, loginCmd, logoutCmd)
}

// initLog sends jww output to logPath at the given level. An empty path
// disables logging.
func initLog(logPath, level string) error {
	if logPath == "" {
		jww.SetStdoutOutput(io.Discard)
		jww.SetLogOutput(io.Discard)
		return nil
	}
	if logPath != "-" {
		jww.SetStdoutOutput(io.Discard)
		logOutput, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		jww.SetLogOutput(logOutput)
		jww.SetLogThreshold(config.ParseLevel(level))
		return nil
	}
	config.SetupLogging(level)
	return nil
}
