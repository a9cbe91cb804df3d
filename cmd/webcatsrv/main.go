package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/web-cat/core/internal/coresrv/webcommon"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "webcatsrv [command] [flags]",
	Short: "Web-CAT core server - course management and submission portal backend",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	webcommon.InitLogger()
	rootCmd.PersistentFlags().StringVar(&configFile, "config", webcommon.DefaultConfigFile, "path to configuration file")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Web-CAT Core Server %s (api %s)\n", webcommon.ServerVersion, webcommon.ApiVersion)
		},
	}
}
