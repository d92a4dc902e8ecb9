package stats

import (
	"sort"
	"sync"

	"github.com/applegrew/jdcbot-sub001/pkg/roster"
)

// unknownConnection groups users whose connection type is blank.
const unknownConnection = "unknown"

// aggregator implements the Aggregator interface.
type aggregator struct {
	config Config

	mu     sync.RWMutex
	shares []int64 // share sizes of users with info, for percentiles
	stats  Statistics
	users  []roster.User
}

// New creates a new aggregator.
func New(cfg Config) Aggregator {
	return &aggregator{
		config: cfg,
		stats:  Statistics{ByConnection: make(map[string]int)},
	}
}

// FromUsers aggregates a roster snapshot in one call.
func FromUsers(users []roster.User) Aggregator {
	agg := New(Config{TrackPercentiles: true})
	for _, u := range users {
		agg.Add(u)
	}
	return agg
}

// Add implements Aggregator.Add.
func (a *aggregator) Add(u roster.User) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.Users++
	a.users = append(a.users, u)

	if !u.HasInfo {
		return
	}

	a.stats.WithInfo++
	a.stats.TotalShare += u.ShareSize
	if u.ShareSize > a.stats.MaxShare {
		a.stats.MaxShare = u.ShareSize
	}

	conn := u.Connection
	if conn == "" {
		conn = unknownConnection
	}
	a.stats.ByConnection[conn]++

	if a.config.TrackPercentiles {
		a.shares = append(a.shares, u.ShareSize)
	}
}

// Stats implements Aggregator.Stats.
func (a *aggregator) Stats() Statistics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	stats.ByConnection = make(map[string]int, len(a.stats.ByConnection))
	for k, v := range a.stats.ByConnection {
		stats.ByConnection[k] = v
	}

	if stats.WithInfo > 0 {
		stats.AvgShare = float64(stats.TotalShare) / float64(stats.WithInfo)
	}

	if a.config.TrackPercentiles && len(a.shares) > 0 {
		sorted := make([]int64, len(a.shares))
		copy(sorted, a.shares)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		stats.P50Share = percentile(sorted, 50)
		stats.P95Share = percentile(sorted, 95)
	}

	return stats
}

// TopSharers implements Aggregator.TopSharers.
func (a *aggregator) TopSharers(n int) []roster.User {
	a.mu.RLock()
	result := make([]roster.User, len(a.users))
	copy(result, a.users)
	a.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ShareSize != result[j].ShareSize {
			return result[i].ShareSize > result[j].ShareSize
		}
		return result[i].Nick < result[j].Nick
	})

	if n > 0 && n < len(result) {
		result = result[:n]
	}
	return result
}

// Reset implements Aggregator.Reset.
func (a *aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.shares = nil
	a.users = nil
	a.stats = Statistics{ByConnection: make(map[string]int)}
}

// percentile calculates the pth percentile of a sorted slice.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between closest ranks.
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[lower]
	}

	fraction := rank - float64(lower)
	return int64(float64(sorted[lower])*(1-fraction) + float64(sorted[upper])*fraction)
}
