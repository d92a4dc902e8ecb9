package display

import (
	"fmt"
	"io"

	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
	"github.com/applegrew/jdcbot-sub001/pkg/stats"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatUsers implements Formatter.FormatUsers.
func (f *simpleFormatter) FormatUsers(w io.Writer, users []roster.User) error {
	for _, u := range users {
		var err error
		if u.HasInfo {
			_, err = fmt.Fprintf(w, "%s (%s, %s)\n", u.Nick, formatBytes(u.ShareSize), u.Connection)
		} else {
			_, err = fmt.Fprintln(w, u.Nick)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// FormatStats implements Formatter.FormatStats.
func (f *simpleFormatter) FormatStats(w io.Writer, s stats.Statistics) error {
	_, err := fmt.Fprintf(w, "Users: %d | With info: %d | Total: %s | Avg: %s | Max: %s\n",
		s.Users,
		s.WithInfo,
		formatBytes(s.TotalShare),
		formatBytes(int64(s.AvgShare)),
		formatBytes(s.MaxShare))
	return err
}

// FormatResults implements Formatter.FormatResults.
func (f *simpleFormatter) FormatResults(w io.Writer, results []nmdc.SearchResult) error {
	for _, r := range results {
		size := formatBytes(r.Size)
		if r.IsDir {
			size = "dir"
		}
		if _, err := fmt.Fprintf(w, "%s: %s (%s, %d/%d slots)\n",
			r.Nick, r.Path, size, r.FreeSlots, r.TotalSlots); err != nil {
			return err
		}
	}

	return nil
}
