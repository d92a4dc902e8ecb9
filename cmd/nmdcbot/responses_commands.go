package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/applegrew/jdcbot-sub001/pkg/config"
	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/responses"
)

func responsesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Manage canned chat responses",
		Long: `Add, list, delete and import the responses the bot uses to
answer chat. The database path comes from storage.db_path or
NMDCBOT_DB.`,
	}

	cmd.AddCommand(
		responsesAddCmd(opts),
		responsesListCmd(opts),
		responsesDeleteCmd(opts),
		responsesImportCmd(opts),
	)

	return cmd
}

func responsesAddCmd(opts *globalOptions) *cobra.Command {
	var mode, scope string

	cmd := &cobra.Command{
		Use:   "add <trigger> <reply>",
		Short: "Add a response",
		Example: `  nmdcbot responses add +rules "Be nice, {nick}."
  nmdcbot responses add hello "hi {nick}" --mode prefix --scope public`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(store responses.Store) error {
				r := &responses.Response{
					Trigger: args[0],
					Reply:   args[1],
					Mode:    responses.Mode(mode),
					Scope:   responses.Scope(scope),
				}
				if err := store.Add(r); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added response %d (%s)\n", r.ID, r.Trigger)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(responses.ModeExact), "match mode (exact, prefix, contains)")
	cmd.Flags().StringVarP(&scope, "scope", "s", string(responses.ScopeAll), "where to answer (all, public, private)")

	return cmd
}

func responsesListCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List responses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q (want table or json)", format)
			}
			return withStore(opts, func(store responses.Store) error {
				list, err := store.List()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if format == "json" {
					if list == nil {
						list = []*responses.Response{}
					}
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(list)
				}

				if len(list) == 0 {
					fmt.Fprintln(out, "No responses")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTRIGGER\tMODE\tSCOPE\tREPLY")
				for _, r := range list {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Trigger, r.Mode, r.Scope, r.Reply)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json)")

	return cmd
}

func responsesDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid response id %q", args[0])
			}
			return withStore(opts, func(store responses.Store) error {
				if err := store.Delete(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted response %d\n", id)
				return nil
			})
		},
	}
}

func responsesImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import responses from a YAML file",
		Long: `Import responses from a YAML file of the form

  responses:
    - trigger: +rules
      reply: Be nice, {nick}.
      mode: exact
      scope: all

Existing triggers are updated in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(store responses.Store) error {
				n, err := store.Import(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d responses\n", n)
				return nil
			})
		},
	}
}

// withStore opens the responses database for fn. Only the storage and
// logging sections are needed, so the rest of the configuration is not
// validated.
func withStore(opts *globalOptions, fn func(responses.Store) error) error {
	cfg, err := config.NewLoader(opts.configPath).Resolve()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Noop()
	if cfg.Logging.Level == "debug" {
		log = newLogger(cfg)
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}
