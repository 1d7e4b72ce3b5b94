package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faithtech/sitewalk/internal/logging"
)

var version = "0.1.0"

// envPrefix scopes environment overrides, e.g. SITEWALK_HOST.
const envPrefix = "SITEWALK"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "sitewalk",
	Short:   "Simulated visitors for a marketing website",
	Version: version,
	Long: `sitewalk drives simulated visitors against a marketing website.

Each visitor repeatedly picks a page (/, /features, /pricing, /about,
/contact) by weight, requests it, checks the response for a 200 status and
a response time under 500ms, then thinks for 1 to 3 seconds. Failed checks
are collected and summarised at the end of the run.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return RootCmd.Execute()
}

// newViper returns a viper instance reading SITEWALK_* environment
// variables, with dashes in flag names mapped to underscores.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func init() {
	RootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	RootCmd.PersistentFlags().String("log-format", logging.EncodingConsole, "Log format: console, json")

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(demoCmd)
	RootCmd.AddCommand(versionCmd)
}
