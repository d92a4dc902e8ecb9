package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/applegrew/jdcbot-sub001/pkg/config"
	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
)

const defaultWait = 3 * time.Second

// errBothSizeLimits is returned when a search names a minimum and a maximum.
var errBothSizeLimits = errors.New("--min-size and --max-size cannot be combined")

func usersCmd(opts *globalOptions) *cobra.Command {
	var (
		format  string
		compact bool
		wait    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List the users of the hub",
		Long: `Log in to the hub, collect the user list and print it.

The command waits for --wait after the handshake so that $MyINFO
replies can arrive before the list is printed.

Examples:
  nmdcbot users
  nmdcbot users --format json --wait 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			f, err := newFormatter(cfg, format, compact)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dir := roster.New()
			if err := collect(ctx, cfg, dir, newLogger(cfg), wait, nil); err != nil {
				return err
			}
			return f.FormatUsers(cmd.OutOrStdout(), dir.All())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "output format (table, json, simple)")
	cmd.Flags().BoolVar(&compact, "compact", false, "compact output")
	cmd.Flags().DurationVarP(&wait, "wait", "w", defaultWait, "how long to collect user info")

	return cmd
}

func searchCmd(opts *globalOptions) *cobra.Command {
	var (
		format   string
		compact  bool
		wait     time.Duration
		dataType string
		minSize  string
		maxSize  string
	)

	cmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Search the hub and print the results",
		Long: `Log in to the hub, send one search and print the results that
arrive within --wait.

Active mode (active.enabled) receives results over UDP; otherwise
they are relayed by the hub.

Examples:
  nmdcbot search "ubuntu iso" --type compressed --min-size 500M
  nmdcbot search TTH:LWPNACQDBZRYXW3VHJVCJ64QBZNGHOHHHZWCLNQ --type tth`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(args[0], dataType, minSize, maxSize)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			f, err := newFormatter(cfg, format, compact)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var results []nmdc.SearchResult
			err = collect(ctx, cfg, roster.New(), newLogger(cfg), wait, func(sess *nmdc.Session, ev nmdc.Event) {
				if sess != nil {
					if err := sess.Search(q); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "search failed: %v\n", err)
					}
					return
				}
				if r, ok := ev.(nmdc.SearchResultReceived); ok {
					results = append(results, r.Result)
				}
			})
			if err != nil {
				return err
			}
			return f.FormatResults(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "output format (table, json, simple)")
	cmd.Flags().BoolVar(&compact, "compact", false, "compact output")
	cmd.Flags().DurationVarP(&wait, "wait", "w", defaultWait, "how long to collect results")
	cmd.Flags().StringVarP(&dataType, "type", "t", "any", "data type (any, audio, compressed, document, executable, picture, video, directory, tth)")
	cmd.Flags().StringVar(&minSize, "min-size", "", "minimum size, e.g. 700M")
	cmd.Flags().StringVar(&maxSize, "max-size", "", "maximum size, e.g. 4G")

	return cmd
}

func keyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key <lock>",
		Short: "Compute the key for a hub lock",
		Long: `Print the $Key answer for a $Lock challenge, with the
reserved bytes escaped the way hubs expect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), nmdc.ComputeKeyString(args[0]))
			return nil
		},
	}
}

// collect logs in, calls onEvent(sess, nil) once after the handshake and
// then onEvent(nil, ev) for every event until wait elapses or the hub
// drops the connection.
func collect(ctx context.Context, cfg *config.Config, dir *roster.Directory, log logger.Logger, wait time.Duration, onEvent func(*nmdc.Session, nmdc.Event)) error {
	sess, err := nmdc.NewSession(cfg.SessionConfig(), dir, log.With("component", "session"))
	if err != nil {
		return err
	}
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Close()

	if onEvent != nil {
		onEvent(sess, nil)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			return nil
		case ev, ok := <-sess.Events():
			if !ok {
				return nil
			}
			if d, isDisc := ev.(nmdc.Disconnected); isDisc {
				return d.Err
			}
			if onEvent != nil {
				onEvent(nil, ev)
			}
		}
	}
}

// buildQuery turns the search flags into a query. Only one size limit is
// allowed because the wire format carries a single restriction.
func buildQuery(pattern, dataType, minSize, maxSize string) (nmdc.SearchQuery, error) {
	t, ok := nmdc.ParseDataType(dataType)
	if !ok {
		return nmdc.SearchQuery{}, fmt.Errorf("unknown data type %q", dataType)
	}
	q := nmdc.SearchQuery{Pattern: pattern, Type: t, SizeMode: nmdc.SizeAny, Unit: nmdc.Byte}

	switch {
	case minSize != "" && maxSize != "":
		return nmdc.SearchQuery{}, errBothSizeLimits
	case minSize != "":
		q.SizeMode = nmdc.SizeAtLeast
		q.Size, q.Unit, ok = parseSize(minSize)
	case maxSize != "":
		q.SizeMode = nmdc.SizeAtMost
		q.Size, q.Unit, ok = parseSize(maxSize)
	}
	if !ok {
		return nmdc.SearchQuery{}, fmt.Errorf("invalid size %q", minSize+maxSize)
	}
	return q, nil
}

// parseSize reads a whole count with an optional B, K, M or G suffix,
// such as "512", "700K" or "4G".
func parseSize(s string) (int64, nmdc.Unit, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false
	}

	unit := nmdc.Byte
	switch s[len(s)-1] {
	case 'k', 'K':
		unit = nmdc.Kilobyte
	case 'm', 'M':
		unit = nmdc.Megabyte
	case 'g', 'G':
		unit = nmdc.Gigabyte
	case 'b', 'B':
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, unit, err == nil && n >= 0
	}

	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n < 0 {
		return 0, 0, false
	}
	return n, unit, true
}
