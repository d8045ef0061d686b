// Package sm models the Streaming Multiprocessor: its live resource
// counters, block admission/release, and the headroom ranking the block
// scheduler uses to pick which SM gets the next block.
package sm

import (
	"fmt"

	"github.com/google/btree"

	"github.com/dimenwarper/gpusim/occupancy"
	"github.com/dimenwarper/gpusim/warp"
)

// demand is the per-block resource cost, fixed for the duration of one
// kernel launch since every block in a grid shares the same LaunchConfig.
type demand struct {
	threads uint32
	warps   uint32
	regs    uint32
	smem    uint32
}

// residentBlock tracks the warp roster of one block admitted onto an SM.
type residentBlock struct {
	warps []*warp.Warp
}

// SM is one Streaming Multiprocessor: its hardware configuration, its live
// remaining-capacity counters, and the blocks currently resident on it.
type SM struct {
	ID  int
	cfg occupancy.SmConfig

	maxBlocksThisLaunch uint32
	demand              demand

	remBlocks  uint32
	remThreads uint32
	remWarps   uint32
	remRegs    uint32
	remSmem    uint32

	resident []string // admitted block ids, in admission order
	rosters  map[string]*residentBlock

	lastScore float64
	indexed   bool
}

func newSM(id int, cfg occupancy.SmConfig) *SM {
	s := &SM{ID: id, cfg: cfg, rosters: make(map[string]*residentBlock)}
	s.resetCounters()
	return s
}

func (s *SM) resetCounters() {
	s.remBlocks = s.cfg.MaxBlocksPerSM
	s.remThreads = s.cfg.MaxThreadsPerSM
	s.remWarps = s.cfg.MaxWarpsPerSM
	s.remRegs = s.cfg.RegsPerSM
	s.remSmem = s.cfg.SmemPerSM
}

// BeginLaunch resets the SM's counters and records the per-block demand and
// the occupancy-derived cap for the upcoming kernel launch.
func (s *SM) BeginLaunch(k occupancy.KernelResources, maxBlocksPerSM uint32) {
	s.resetCounters()
	s.maxBlocksThisLaunch = maxBlocksPerSM
	if s.maxBlocksThisLaunch < s.remBlocks {
		s.remBlocks = s.maxBlocksThisLaunch
	}
	s.demand = demand{
		threads: k.ThreadsPerBlock,
		warps:   k.WarpsPerBlock(),
		regs:    regDemand(k, s.cfg),
		smem:    smemDemand(k, s.cfg),
	}
	s.resident = s.resident[:0]
	s.rosters = make(map[string]*residentBlock)
}

func regDemand(k occupancy.KernelResources, cfg occupancy.SmConfig) uint32 {
	if k.RegsPerThread == 0 {
		return 0
	}
	raw := k.RegsPerThread * k.ThreadsPerBlock
	return roundUp(raw, cfg.RegAllocGran)
}

func smemDemand(k occupancy.KernelResources, cfg occupancy.SmConfig) uint32 {
	if k.SmemBytes == 0 {
		return 0
	}
	return roundUp(k.SmemBytes, cfg.SmemAllocGran)
}

func roundUp(val, gran uint32) uint32 {
	if gran == 0 {
		return val
	}
	return ((val + gran - 1) / gran) * gran
}

// TryAdmit attempts to admit blockID with the given warp roster. It
// succeeds only if every counter can accommodate the block's demand and
// the resident block count is below the launch's occupancy cap; on success
// every counter is decremented atomically.
func (s *SM) TryAdmit(blockID string, warps []*warp.Warp) bool {
	if uint32(len(s.resident)) >= s.maxBlocksThisLaunch {
		return false
	}
	if s.remBlocks == 0 || s.remThreads < s.demand.threads || s.remWarps < s.demand.warps ||
		s.remRegs < s.demand.regs || s.remSmem < s.demand.smem {
		return false
	}

	s.remBlocks--
	s.remThreads -= s.demand.threads
	s.remWarps -= s.demand.warps
	s.remRegs -= s.demand.regs
	s.remSmem -= s.demand.smem

	s.resident = append(s.resident, blockID)
	s.rosters[blockID] = &residentBlock{warps: warps}
	return true
}

// Release restores exactly the counters consumed when blockID was admitted,
// and drops its roster. Releasing an unknown block id panics — it is a
// programmer error, per the launch-boundary error policy.
func (s *SM) Release(blockID string) {
	if _, ok := s.rosters[blockID]; !ok {
		panic(fmt.Sprintf("sm %d: release of unknown block %q", s.ID, blockID))
	}
	delete(s.rosters, blockID)
	for i, id := range s.resident {
		if id == blockID {
			s.resident = append(s.resident[:i], s.resident[i+1:]...)
			break
		}
	}

	s.remBlocks++
	s.remThreads += s.demand.threads
	s.remWarps += s.demand.warps
	s.remRegs += s.demand.regs
	s.remSmem += s.demand.smem
}

// Roster returns the warp roster for a resident block.
func (s *SM) Roster(blockID string) []*warp.Warp {
	rb, ok := s.rosters[blockID]
	if !ok {
		return nil
	}
	return rb.warps
}

// ResidentBlockIDs returns the blocks currently resident, in admission order.
func (s *SM) ResidentBlockIDs() []string { return s.resident }

// Idle reports whether the SM has no resident blocks.
func (s *SM) Idle() bool { return len(s.resident) == 0 }

// HeadroomScore is the minimum of the four fractional-remaining-capacity
// ratios (threads, warps, regs, smem). It deliberately excludes the block
// count — an SM pinned at its block cap but otherwise empty still reports
// high headroom, and TryAdmit is what actually enforces the block cap.
func (s *SM) HeadroomScore() float64 {
	ratio := func(rem, max uint32) float64 {
		if max == 0 {
			return 0
		}
		return float64(rem) / float64(max)
	}
	scores := [4]float64{
		ratio(s.remThreads, s.cfg.MaxThreadsPerSM),
		ratio(s.remWarps, s.cfg.MaxWarpsPerSM),
		ratio(s.remRegs, s.cfg.RegsPerSM),
		ratio(s.remSmem, s.cfg.SmemPerSM),
	}
	min := scores[0]
	for _, v := range scores[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// ---------------------------------------------------------------------------
// Pool: all SMs on a GPU, ranked by headroom in a btree for O(log n) "best
// SM" queries instead of an O(n) scan on every block admission attempt.
// ---------------------------------------------------------------------------

type rankItem struct {
	score float64
	id    int
}

// Less orders rankItem so that btree.Max returns the highest score, with
// ties broken in favour of the lowest SM id.
func (a rankItem) Less(than btree.Item) bool {
	b := than.(rankItem)
	if a.score != b.score {
		return a.score < b.score
	}
	return a.id > b.id
}

// Pool owns every SM on a GPU and keeps a btree index of their headroom
// scores so the block scheduler's "highest headroom" query is a Max lookup.
type Pool struct {
	sms  []*SM
	tree *btree.BTree
}

// NewPool creates a Pool of numSMs SMs, all configured identically.
func NewPool(cfg occupancy.SmConfig) *Pool {
	n := cfg.NumSMs
	p := &Pool{sms: make([]*SM, n), tree: btree.New(32)}
	for i := 0; i < n; i++ {
		p.sms[i] = newSM(i, cfg)
	}
	return p
}

// Len returns the number of SMs in the pool.
func (p *Pool) Len() int { return len(p.sms) }

// SM returns the SM at the given index.
func (p *Pool) SM(id int) *SM { return p.sms[id] }

// All returns every SM in index order.
func (p *Pool) All() []*SM { return p.sms }

// BeginLaunch resets every SM's counters for a new kernel launch and
// rebuilds the headroom index from scratch.
func (p *Pool) BeginLaunch(k occupancy.KernelResources, maxBlocksPerSM uint32) {
	p.tree = btree.New(32)
	for _, s := range p.sms {
		s.BeginLaunch(k, maxBlocksPerSM)
		s.indexed = false
		p.reindex(s)
	}
}

func (p *Pool) reindex(s *SM) {
	if s.indexed {
		p.tree.Delete(rankItem{score: s.lastScore, id: s.ID})
	}
	s.lastScore = s.HeadroomScore()
	s.indexed = true
	p.tree.ReplaceOrInsert(rankItem{score: s.lastScore, id: s.ID})
}

// Best returns the SM with the highest headroom score, ties broken by
// lowest SM id. Returns nil if the pool is empty.
func (p *Pool) Best() *SM {
	item := p.tree.Max()
	if item == nil {
		return nil
	}
	return p.sms[item.(rankItem).id]
}

// Admit attempts to admit blockID onto the SM with the highest headroom
// score. Returns the admitting SM and true on success.
func (p *Pool) Admit(blockID string, warps []*warp.Warp) (*SM, bool) {
	best := p.Best()
	if best == nil {
		return nil, false
	}
	if !best.TryAdmit(blockID, warps) {
		return nil, false
	}
	p.reindex(best)
	return best, true
}

// Release releases blockID from the given SM and re-ranks it.
func (p *Pool) Release(s *SM, blockID string) {
	s.Release(blockID)
	p.reindex(s)
}

// AllIdle reports whether every SM in the pool has no resident blocks.
func (p *Pool) AllIdle() bool {
	for _, s := range p.sms {
		if !s.Idle() {
			return false
		}
	}
	return true
}

// ActiveFlags returns a per-SM boolean slice, true where the SM has at
// least one resident block — the live-metrics "sm_active" field.
func (p *Pool) ActiveFlags() []bool {
	flags := make([]bool, len(p.sms))
	for i, s := range p.sms {
		flags[i] = !s.Idle()
	}
	return flags
}
