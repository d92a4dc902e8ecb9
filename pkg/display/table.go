package display

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
	"github.com/applegrew/jdcbot-sub001/pkg/stats"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatUsers implements Formatter.FormatUsers.
func (f *tableFormatter) FormatUsers(w io.Writer, users []roster.User) error {
	if err := writeHeader(w, fmt.Sprintf("Users (%d)", len(users)), f.config.Compact); err != nil {
		return err
	}

	header := []string{"Nick", "Share", "Connection", "Tag", "Description"}

	rows := make([][]string, len(users))
	for i, u := range users {
		share := "-"
		if u.HasInfo {
			share = formatBytes(u.ShareSize)
		}
		rows[i] = []string{u.Nick, share, u.Connection, u.Tag, u.Description}
	}

	return f.writeTable(w, header, rows)
}

// FormatStats implements Formatter.FormatStats.
func (f *tableFormatter) FormatStats(w io.Writer, s stats.Statistics) error {
	if err := writeHeader(w, "Hub Share Statistics", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Users", formatNumber(int64(s.Users))},
		{"With Info", formatNumber(int64(s.WithInfo))},
		{"Total Share", formatBytes(s.TotalShare)},
		{"Average Share", formatBytes(int64(s.AvgShare))},
		{"Max Share", formatBytes(s.MaxShare)},
	}

	if f.config.ShowPercentiles {
		rows = append(rows,
			[]string{"P50 Share", formatBytes(s.P50Share)},
			[]string{"P95 Share", formatBytes(s.P95Share)},
		)
	}

	if err := f.writeTable(w, []string{"Metric", "Value"}, rows); err != nil {
		return err
	}

	if len(s.ByConnection) == 0 {
		return nil
	}

	if err := writeHeader(w, "Connections", f.config.Compact); err != nil {
		return err
	}

	conns := make([]string, 0, len(s.ByConnection))
	for c := range s.ByConnection {
		conns = append(conns, c)
	}
	sort.Strings(conns)

	connRows := make([][]string, len(conns))
	for i, c := range conns {
		connRows[i] = []string{c, formatNumber(int64(s.ByConnection[c]))}
	}

	return f.writeTable(w, []string{"Connection", "Users"}, connRows)
}

// FormatResults implements Formatter.FormatResults.
func (f *tableFormatter) FormatResults(w io.Writer, results []nmdc.SearchResult) error {
	if err := writeHeader(w, fmt.Sprintf("Search Results (%d)", len(results)), f.config.Compact); err != nil {
		return err
	}

	header := []string{"Nick", "Path", "Size", "Slots", "Hub"}

	rows := make([][]string, len(results))
	for i, r := range results {
		size := formatBytes(r.Size)
		if r.IsDir {
			size = "<dir>"
		}
		hub := r.HubName
		if hub == "" {
			hub = r.HubAddr
		}
		rows[i] = []string{
			r.Nick,
			r.Path,
			size,
			fmt.Sprintf("%d/%d", r.FreeSlots, r.TotalSlots),
			hub,
		}
	}

	return f.writeTable(w, header, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row. The last column is not padded.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	gap := "  "
	if f.config.Compact {
		gap = " "
	}

	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString(gap)
		}
		if i == len(cells)-1 {
			b.WriteString(cell)
			continue
		}
		fmt.Fprintf(&b, "%-*s", widths[i], cell)
	}

	_, err := fmt.Fprintln(w, b.String())
	return err
}
