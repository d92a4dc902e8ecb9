package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/applegrew/jdcbot-sub001/pkg/config"
)

const maskedPassword = "********"

func configCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the configuration file",
	}

	cmd.AddCommand(configShowCmd(opts), configPathCmd(opts), configInitCmd())

	return cmd
}

func configShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and
environment variables are merged. The password is masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(opts.configPath).Resolve()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Identity.Password != "" {
				cfg.Identity.Password = maskedPassword
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func configPathCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show where the configuration is read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			active := config.NewLoader(opts.configPath).Path()
			if active == "" {
				active = "(none, using defaults)"
			}

			fmt.Fprintf(out, "Active:  %s\n", active)
			fmt.Fprintln(out, "Search:  ./config.yaml")
			fmt.Fprintf(out, "         %s\n", config.DefaultPath())
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = config.DefaultPath()
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			cfg := config.Default()
			cfg.Hub.Address = "localhost:411"
			cfg.Identity.Nick = "nmdcbot"
			cfg.Identity.Description = "nmdcbot"

			if err := config.Save(cfg, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default: "+config.DefaultPath()+")")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}
