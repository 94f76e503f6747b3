// Command msl-gateway is the demo ingress for the MSL receive pipeline: it
// wires internal/config, internal/crypto, internal/store, internal/audit and
// internal/metrics into an internal/msl.Context and exposes it over HTTP via
// internal/api, plus a handful of operational subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is injected at build time.
	Version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "msl-gateway",
	Short: "MSL receive-pipeline demo ingress",
	Long: `msl-gateway runs the Message Security Layer receive-side pipeline
behind a small HTTP ingress, for demo and integration-testing purposes.

Use "msl-gateway [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to config file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("MSL")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(archiveNowCmd)
	rootCmd.AddCommand(rotateKeysCmd)
	rootCmd.AddCommand(benchCmd)
}

// configPath resolves the config file path, letting MSL_CONFIG override the
// --config flag default the way viper.AutomaticEnv is set up to.
func configPath() string {
	if v := viper.GetString("config"); v != "" {
		return v
	}
	return cfgFile
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
