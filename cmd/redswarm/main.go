package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"redswarm/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// cli holds flags shared by every subcommand.
type cli struct {
	configFile string
	logLevel   string
	debug      bool
}

func (c *cli) loadConfig() (config.Config, config.Metadata, error) {
	overrides := map[string]any{}
	if c.logLevel != "" {
		overrides["observability.logging.level"] = c.logLevel
	}
	if c.debug {
		overrides["observability.logging.level"] = "debug"
	}
	opts := []config.Option{config.WithOverrides(overrides)}
	if c.configFile != "" {
		opts = append(opts, config.WithConfigFile(c.configFile))
	}
	return config.Load(opts...)
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "redswarm",
		Short: "Multi-agent red-team swarm console",
		Long: fmt.Sprintf(`%s

Drives a remote multi-agent execution graph, streams every agent message
and tool result to connected clients, and records each session for replay.

%s
  redswarm serve                 # Start the API and websocket server
  redswarm sessions              # List recorded sessions
  redswarm replay 20240501_1200  # Print a recorded session`,
			bold("redswarm "+version),
			bold("EXAMPLES:")),
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&c.debug, "debug", "d", false, "Debug logging")

	root.AddCommand(newServeCommand(c))
	root.AddCommand(newSessionsCommand(c))
	root.AddCommand(newReplayCommand(c))
	root.AddCommand(newConfigCommand(c))
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "redswarm %s\n", version)
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+err.Error()))
		os.Exit(1)
	}
}
