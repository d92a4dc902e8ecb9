package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/applegrew/jdcbot-sub001/pkg/config"
	"github.com/applegrew/jdcbot-sub001/pkg/display"
	"github.com/applegrew/jdcbot-sub001/pkg/logger"
	"github.com/applegrew/jdcbot-sub001/pkg/responses"
)

// loadConfig loads and validates the configuration, prompting for the
// password when --ask-pass is set.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	loader := config.NewLoader(opts.configPath)

	cfg, err := loader.Resolve()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.askPass {
		pass, err := readPassword(os.Stdin, os.Stderr, "Hub password: ")
		if err != nil {
			return nil, err
		}
		cfg.Identity.Password = pass
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// readPassword reads a line without echo when in is a terminal.
func readPassword(in *os.File, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	defer fmt.Fprintln(prompt)

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// newLogger builds the logger from the logging section.
func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// openStore opens the responses database.
func openStore(cfg *config.Config, log logger.Logger) (responses.Store, error) {
	store, err := responses.New(responses.Config{DBPath: cfg.Storage.DBPath}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open responses database: %w", err)
	}
	return store, nil
}

// newFormatter resolves the --format flag against the configured default.
func newFormatter(cfg *config.Config, format string, compact bool) (display.Formatter, error) {
	if format == "" {
		format = cfg.Display.Format
	}
	f, ok := display.ParseFormat(format)
	if !ok {
		return nil, fmt.Errorf("invalid format: %s (must be table, json, or simple)", format)
	}

	return display.New(display.Config{
		Format:          f,
		ShowPercentiles: true,
		Compact:         compact || cfg.Display.Compact,
	}), nil
}
