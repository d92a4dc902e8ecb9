// Package main provides the nmdcbot CLI application.
//
// nmdcbot is a Direct Connect (NMDC) hub client: it can run as a
// long-lived chat bot, list a hub's users, search a hub and manage the
// bot's stored chat responses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	askPass    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "nmdcbot",
		Short: "Direct Connect hub client and chat bot",
		Long: `nmdcbot connects to an NMDC (Direct Connect) hub.

It runs a chat bot that answers stored responses, greets users and
posts announcements, and offers one-shot commands to list a hub's
users or search its shares.

Configuration is read from ./config.yaml or ~/.config/nmdcbot/config.yaml,
then overridden by NMDCBOT_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&opts.askPass, "ask-pass", false, "prompt for the hub password")

	rootCmd.AddCommand(
		runCmd(opts),
		usersCmd(opts),
		searchCmd(opts),
		keyCmd(),
		responsesCmd(opts),
		configCmd(opts),
		versionCmd(),
	)

	return rootCmd
}
