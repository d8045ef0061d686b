// Package warpsched implements the three interchangeable warp selection
// policies — Loose Round-Robin (LRR), Greedy-Then-Oldest (GTO), and
// Two-Level — operating over the per-subpartition roster of warps resident
// on one SM.
package warpsched

import (
	"sort"

	"github.com/dimenwarper/gpusim/warp"
)

// Scheduler orders the warps in one subpartition by priority. The caller
// issues the first Ready warp in the returned order, then calls
// RecordIssued with its id so the scheduler can update its internal state.
type Scheduler interface {
	// OrderWarps returns warp ids, highest priority first.
	OrderWarps(warps []*warp.Warp) []int
	RecordIssued(warpID int)
	Name() string
}

// ---------------------------------------------------------------------------
// Loose Round-Robin
// ---------------------------------------------------------------------------

// LRR rotates through all warps in order, giving each equal priority.
type LRR struct {
	lastIssued int
	seen       bool
}

// NewLRR returns a fresh LRR scheduler with no issue history.
func NewLRR() *LRR { return &LRR{} }

func (s *LRR) OrderWarps(warps []*warp.Warp) []int {
	n := len(warps)
	if n == 0 {
		return nil
	}
	startPos := 0
	if s.seen {
		for i, w := range warps {
			if w.ID == s.lastIssued {
				startPos = i
				break
			}
		}
	}
	ordered := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		ordered = append(ordered, warps[(startPos+i)%n].ID)
	}
	return ordered
}

func (s *LRR) RecordIssued(warpID int) {
	s.lastIssued = warpID
	s.seen = true
}

func (s *LRR) Name() string { return "LRR" }

// ---------------------------------------------------------------------------
// Greedy-Then-Oldest
// ---------------------------------------------------------------------------

// GTO sticks with the same warp until it stalls, then falls back to the
// Ready warp with the smallest age (ties broken by warp id).
type GTO struct {
	lastIssued int
	have       bool
}

// NewGTO returns a fresh GTO scheduler with no issue history.
func NewGTO() *GTO { return &GTO{} }

func (s *GTO) OrderWarps(warps []*warp.Warp) []int {
	ordered := make([]int, 0, len(warps))
	rest := make([]*warp.Warp, 0, len(warps))

	for _, w := range warps {
		if s.have && w.ID == s.lastIssued {
			ordered = append(ordered, w.ID)
			continue
		}
		rest = append(rest, w)
	}

	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Age != rest[j].Age {
			return rest[i].Age < rest[j].Age
		}
		return rest[i].ID < rest[j].ID
	})
	for _, w := range rest {
		ordered = append(ordered, w.ID)
	}
	return ordered
}

func (s *GTO) RecordIssued(warpID int) {
	s.lastIssued = warpID
	s.have = true
}

func (s *GTO) Name() string { return "GTO" }

// ---------------------------------------------------------------------------
// Two-Level Active Warp Scheduler
// ---------------------------------------------------------------------------

// TwoLevel maintains a fixed-size active set scheduled LRR internally; the
// rest of the warps sit in a pending pool. Promotion from the pending pool
// only happens once every warp in the active set is Stalled.
type TwoLevel struct {
	activeSetSize int
	activeSet     []int // warp ids, insertion order
	lastIssuedPos int
	initialized   bool
}

// NewTwoLevel returns a fresh Two-Level scheduler with the given active-set size.
func NewTwoLevel(activeSetSize int) *TwoLevel {
	if activeSetSize < 1 {
		activeSetSize = 1
	}
	return &TwoLevel{activeSetSize: activeSetSize}
}

func (s *TwoLevel) inActiveSet(id int) bool {
	for _, a := range s.activeSet {
		if a == id {
			return true
		}
	}
	return false
}

func (s *TwoLevel) allStalled(warps []*warp.Warp) bool {
	byID := make(map[int]*warp.Warp, len(warps))
	for _, w := range warps {
		byID[w.ID] = w
	}
	if len(s.activeSet) == 0 {
		return false
	}
	for _, id := range s.activeSet {
		w, ok := byID[id]
		if !ok {
			continue
		}
		if w.State != warp.Stalled {
			return false
		}
	}
	return true
}

// fillActiveSet tops up the active set from the pending pool (warps not
// already active, in roster order) until it reaches activeSetSize or the
// pending pool is exhausted. Used on first use and whenever a warp leaves
// the roster (block retirement) shrinks the active set below target.
func (s *TwoLevel) fillActiveSet(warps []*warp.Warp) {
	for _, w := range warps {
		if len(s.activeSet) >= s.activeSetSize {
			return
		}
		if !s.inActiveSet(w.ID) {
			s.activeSet = append(s.activeSet, w.ID)
		}
	}
}

// evictAndPromote implements the Two-Level policy's core cache-replacement
// step: when every warp in the active set is Stalled, the longest-stalled
// one (largest RemainingCycles) is evicted to the pending pool and the
// oldest Ready warp waiting in the pending pool takes its slot. If the
// pending pool holds no Ready warp, the active set is left untouched — there
// is nothing better to promote in.
func (s *TwoLevel) evictAndPromote(warps []*warp.Warp, byID map[int]*warp.Warp) {
	longestIdx := -1
	longestRemaining := -1
	for i, id := range s.activeSet {
		w, ok := byID[id]
		if !ok {
			continue
		}
		if w.RemainingCycles > longestRemaining {
			longestRemaining = w.RemainingCycles
			longestIdx = i
		}
	}
	if longestIdx < 0 {
		return
	}

	active := make(map[int]bool, len(s.activeSet))
	for _, id := range s.activeSet {
		active[id] = true
	}

	var promotee *warp.Warp
	for _, w := range warps {
		if active[w.ID] || w.State != warp.Ready {
			continue
		}
		if promotee == nil || w.Age < promotee.Age || (w.Age == promotee.Age && w.ID < promotee.ID) {
			promotee = w
		}
	}
	if promotee == nil {
		return
	}
	s.activeSet[longestIdx] = promotee.ID
}

// OrderWarps first drops active-set ids that are no longer in the roster.
// On first use it fills the active set from the pending pool; afterwards,
// once every warp in the active set is Stalled it swaps the longest-stalled
// one for the oldest Ready pending warp (evictAndPromote), and otherwise it
// tops up an active set that has shrunk below its target size. It then
// returns the active set in LRR order followed by the remaining pending
// warps as a fallback.
func (s *TwoLevel) OrderWarps(warps []*warp.Warp) []int {
	// Drop ids that no longer exist in the roster (block retired, etc.)
	filtered := s.activeSet[:0:0]
	byID := make(map[int]*warp.Warp, len(warps))
	for _, w := range warps {
		byID[w.ID] = w
	}
	for _, id := range s.activeSet {
		if _, ok := byID[id]; ok {
			filtered = append(filtered, id)
		}
	}
	s.activeSet = filtered

	switch {
	case !s.initialized:
		s.initialized = true
		s.fillActiveSet(warps)
	case s.allStalled(warps):
		s.evictAndPromote(warps, byID)
	case len(s.activeSet) < s.activeSetSize:
		s.fillActiveSet(warps)
	}

	active := make(map[int]bool, len(s.activeSet))
	for _, id := range s.activeSet {
		active[id] = true
	}

	n := len(s.activeSet)
	ordered := make([]int, 0, len(warps))
	if n > 0 {
		start := s.lastIssuedPos % n
		for i := 1; i <= n; i++ {
			ordered = append(ordered, s.activeSet[(start+i)%n])
		}
	}
	for _, w := range warps {
		if !active[w.ID] {
			ordered = append(ordered, w.ID)
		}
	}
	return ordered
}

func (s *TwoLevel) RecordIssued(warpID int) {
	for i, id := range s.activeSet {
		if id == warpID {
			s.lastIssuedPos = i
			return
		}
	}
}

func (s *TwoLevel) Name() string { return "TwoLevel" }

// ---------------------------------------------------------------------------
// Policy selector
// ---------------------------------------------------------------------------

// Kind identifies which scheduling policy a Policy builds.
type Kind int

const (
	PolicyLRR Kind = iota
	PolicyGTO
	PolicyTwoLevel
)

// Policy is the tagged-variant configuration the GPU launch API accepts.
type Policy struct {
	Kind Kind
	// ActiveSetSize is only meaningful when Kind == PolicyTwoLevel.
	ActiveSetSize int
}

// LRRPolicy returns the Loose Round-Robin policy.
func LRRPolicy() Policy { return Policy{Kind: PolicyLRR} }

// GTOPolicy returns the Greedy-Then-Oldest policy.
func GTOPolicy() Policy { return Policy{Kind: PolicyGTO} }

// TwoLevelPolicy returns the Two-Level policy with the given active-set size.
func TwoLevelPolicy(activeSetSize int) Policy {
	return Policy{Kind: PolicyTwoLevel, ActiveSetSize: activeSetSize}
}

// Build instantiates a fresh Scheduler for the policy.
func (p Policy) Build() Scheduler {
	switch p.Kind {
	case PolicyGTO:
		return NewGTO()
	case PolicyTwoLevel:
		return NewTwoLevel(p.ActiveSetSize)
	default:
		return NewLRR()
	}
}

// Label returns the human-readable policy name used in KernelStats and
// metrics snapshots.
func (p Policy) Label() string {
	switch p.Kind {
	case PolicyGTO:
		return "GTO"
	case PolicyTwoLevel:
		return "TwoLevel"
	default:
		return "LRR"
	}
}

// ---------------------------------------------------------------------------
// Stall injection (test/demo helper)
// ---------------------------------------------------------------------------

// StallInjector decides, on every second tick, that the warp a subpartition
// has just issued is to be Stalled for one tick; the caller applies the
// stall. It gives the three scheduling policies a common synthetic input on
// which to diverge — the kernel bodies this simulator executes never stall
// on their own.
type StallInjector struct {
	tick int
}

// NextTick reports whether the upcoming tick should stall the issued warp,
// and advances the internal tick counter.
func (s *StallInjector) NextTick() bool {
	s.tick++
	return s.tick%2 == 0
}
