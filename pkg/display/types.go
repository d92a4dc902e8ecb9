// Package display formats roster listings, share statistics and search
// results for the terminal.
//
// It supports multiple output formats (table, JSON, simple text).
package display

import (
	"io"

	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
	"github.com/applegrew/jdcbot-sub001/pkg/stats"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays data in aligned columns.
	FormatTable Format = "table"

	// FormatJSON displays data as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays one line per item.
	FormatSimple Format = "simple"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, bool) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatSimple:
		return f, true
	default:
		return "", false
	}
}

// Formatter writes hub data in one output format.
type Formatter interface {
	// FormatUsers formats a roster listing.
	FormatUsers(w io.Writer, users []roster.User) error

	// FormatStats formats roster share statistics.
	FormatStats(w io.Writer, s stats.Statistics) error

	// FormatResults formats search results.
	FormatResults(w io.Writer, results []nmdc.SearchResult) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// ShowPercentiles enables share percentile rows.
	ShowPercentiles bool

	// Compact enables compact output (less whitespace).
	Compact bool
}
