// Package stats aggregates share statistics over the hub roster.
//
// Example usage:
//
//	agg := stats.New(stats.Config{TrackPercentiles: true})
//	for _, u := range session.Directory().All() {
//	    agg.Add(u)
//	}
//
//	s := agg.Stats()
//	fmt.Printf("Users: %d, shared: %d bytes\n", s.Users, s.TotalShare)
//	for _, u := range agg.TopSharers(5) {
//	    fmt.Println(u.Nick, u.ShareSize)
//	}
package stats

import "github.com/applegrew/jdcbot-sub001/pkg/roster"

// Aggregator computes roster statistics.
type Aggregator interface {
	// Add adds one user to the aggregate.
	Add(u roster.User)

	// Stats returns overall statistics.
	Stats() Statistics

	// TopSharers returns the n users with the largest shares, largest
	// first. n <= 0 returns all users.
	TopSharers(n int) []roster.User

	// Reset clears all aggregated data.
	Reset()
}

// Statistics contains aggregated roster statistics.
type Statistics struct {
	// Users is the number of users added.
	Users int `json:"users"`

	// WithInfo is the number of users whose $MyINFO has been seen.
	WithInfo int `json:"with_info"`

	// TotalShare is the sum of all declared shares in bytes.
	TotalShare int64 `json:"total_share"`

	// AvgShare is the average share over users with info.
	AvgShare float64 `json:"avg_share"`

	// MaxShare is the largest declared share.
	MaxShare int64 `json:"max_share"`

	// P50Share is the median share over users with info.
	P50Share int64 `json:"p50_share"`

	// P95Share is the 95th percentile share over users with info.
	P95Share int64 `json:"p95_share"`

	// ByConnection counts users with info per connection type.
	ByConnection map[string]int `json:"by_connection"`
}

// Config contains aggregator configuration.
type Config struct {
	// TrackPercentiles enables share percentiles. It keeps every share
	// size in memory.
	TrackPercentiles bool
}
