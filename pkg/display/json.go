package display

import (
	"encoding/json"
	"io"

	"github.com/applegrew/jdcbot-sub001/pkg/nmdc"
	"github.com/applegrew/jdcbot-sub001/pkg/roster"
	"github.com/applegrew/jdcbot-sub001/pkg/stats"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// FormatUsers implements Formatter.FormatUsers.
func (f *jsonFormatter) FormatUsers(w io.Writer, users []roster.User) error {
	if users == nil {
		users = []roster.User{}
	}
	return f.encode(w, users)
}

// FormatStats implements Formatter.FormatStats.
func (f *jsonFormatter) FormatStats(w io.Writer, s stats.Statistics) error {
	if !f.config.ShowPercentiles {
		s.P50Share, s.P95Share = 0, 0
	}
	return f.encode(w, s)
}

// FormatResults implements Formatter.FormatResults.
func (f *jsonFormatter) FormatResults(w io.Writer, results []nmdc.SearchResult) error {
	if results == nil {
		results = []nmdc.SearchResult{}
	}
	return f.encode(w, results)
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(v)
}
