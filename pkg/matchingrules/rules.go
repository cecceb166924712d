// Package matchingrules tracks the pair-indexed (fromOffset -> tickSize)
// schedule that determines the price quantization applied to orders
// arriving at a given log offset.
package matchingrules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lumenex/matcher/pkg/asset"
)

// Rule is a single (fromOffset, tickSize) record.
type Rule struct {
	FromOffset int64
	TickSize   uint64
}

// Schedule is an ordered, immutable-between-restarts list of rules for
// one pair.
type Schedule []Rule

// ActiveTick returns the tick size in effect at offset: the rule with
// the largest FromOffset <= offset. Schedules are sorted ascending by
// FromOffset at load time, so this is a binary search.
func (s Schedule) ActiveTick(offset int64) (uint64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	idx := sort.Search(len(s), func(i int) bool { return s[i].FromOffset > offset })
	if idx == 0 {
		return 0, false
	}
	return s[idx-1].TickSize, true
}

// Registry holds the per-pair schedules configured for the matcher.
// Rules can be updated by configuration between restarts; within a
// running process they are treated as immutable, matching the source
// behavior.
type Registry struct {
	mu        sync.RWMutex
	schedules map[asset.Pair]Schedule
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{schedules: make(map[asset.Pair]Schedule)}
}

// Set installs the schedule for a pair, sorting it by FromOffset
// ascending and validating there are no duplicate offsets.
func (r *Registry) Set(pair asset.Pair, rules []Rule) error {
	sorted := append([]Rule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FromOffset < sorted[j].FromOffset })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].FromOffset == sorted[i-1].FromOffset {
			return fmt.Errorf("matchingrules: duplicate fromOffset %d for pair %s", sorted[i].FromOffset, pair)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[pair] = sorted
	return nil
}

// ActiveTick returns the tick size active for pair at offset.
func (r *Registry) ActiveTick(pair asset.Pair, offset int64) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schedules[pair].ActiveTick(offset)
}

// Pairs lists every pair with a configured schedule.
func (r *Registry) Pairs() []asset.Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pairs := make([]asset.Pair, 0, len(r.schedules))
	for p := range r.schedules {
		pairs = append(pairs, p)
	}
	return pairs
}

// DefaultTick is used when a pair has no configured schedule at all.
const DefaultTick uint64 = 1
