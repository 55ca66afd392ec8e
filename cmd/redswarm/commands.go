package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"redswarm/internal/agents"
	"redswarm/internal/config"
	"redswarm/internal/logging"
	"redswarm/internal/replay"
	"redswarm/internal/sessionlog"
)

func openStore(cfg config.Config) *sessionlog.Store {
	return sessionlog.NewStore(cfg.SessionLog.Dir,
		sessionlog.WithListLimit(cfg.SessionLog.ListLimit),
		sessionlog.WithSummaryCache(cfg.SessionLog.CacheSize),
		sessionlog.WithStoreLogger(logging.Nop()),
	)
}

func newSessionsCommand(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"history"},
		Short:   "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			summaries, err := openStore(cfg).List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), summaries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum sessions to list (0 uses the configured limit)")
	return cmd
}

func printSummaries(out io.Writer, summaries []sessionlog.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, gray("No recorded sessions"))
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tEVENTS\tMODEL\tPREVIEW")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.StartTime.Time.Format("2006-01-02 15:04:05"), s.EventCount, s.Model, s.Preview)
	}
	_ = w.Flush()
}

func newReplayCommand(c *cli) *cobra.Command {
	var markdown bool
	var plain bool
	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Print a recorded session the way it was shown live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			profiles := agents.DefaultTable()
			if cfg.Agents.ProfilesFile != "" {
				if profiles, err = agents.LoadTable(cfg.Agents.ProfilesFile); err != nil {
					return err
				}
			}

			engine := replay.NewEngine(openStore(cfg), replay.WithLogger(logging.Nop()))
			outcome := engine.ReplaySession(cmd.Context(), args[0])
			if !outcome.Success {
				return errors.New(outcome.Message)
			}

			plain = plain || !isTTY()
			printer, err := newReplayPrinter(cmd.OutOrStdout(), profiles, markdown, plain)
			if err != nil {
				return err
			}
			printer.Print(outcome.Result)
			fmt.Fprintln(cmd.OutOrStdout(), green(outcome.Message))
			return nil
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render agent messages as markdown")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable colors and borders")
	return cmd
}

func newConfigCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration and where each override came from",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, meta, err := c.loadConfig()
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg, meta)
		},
	})
	return cmd
}

func printConfig(out io.Writer, cfg config.Config, meta config.Metadata) error {
	if cfg.Graph.APIKey != "" {
		cfg.Graph.APIKey = "********"
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if file := meta.File(); file != "" {
		fmt.Fprintf(out, "# file: %s\n", file)
	}
	for _, key := range meta.Keys() {
		fmt.Fprintf(out, "# %s: %s\n", key, meta.Source(key))
	}
	_, err = out.Write(raw)
	return err
}
