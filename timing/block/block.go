// Package block implements the GigaThread-style block scheduler and the
// per-tick executor that drives warp issue across every SM until a kernel's
// entire grid has retired.
package block

import (
	"fmt"
	"sort"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/dimenwarper/gpusim/kernel"
	"github.com/dimenwarper/gpusim/memory"
	"github.com/dimenwarper/gpusim/metrics"
	"github.com/dimenwarper/gpusim/occupancy"
	"github.com/dimenwarper/gpusim/sm"
	"github.com/dimenwarper/gpusim/tensorcore"
	"github.com/dimenwarper/gpusim/timing/warpsched"
	"github.com/dimenwarper/gpusim/warp"
)

// NumSubpartitions is the fixed number of warp-scheduler subpartitions per SM.
const NumSubpartitions = 4

// KernelStats summarizes one completed launch for the caller and for the
// final metrics snapshot.
type KernelStats struct {
	Kernel               string
	PolicyLabel          string
	BlocksTotal          uint32
	Warps                uint32
	Threads              uint32
	TheoreticalOccupancy float64
	Limiter              occupancy.Limiter
	Ticks                uint64
}

// residentBlock is the executor's live view of one admitted block: its warp
// roster, the SM it lives on, and its private shared memory.
type residentBlock struct {
	uid   string
	coord kernel.BlockCoord
	smID  int
	warps []*warp.Warp
	smem  *memory.SMEM
	seq   int // admission order, for deterministic warp ordering across blocks
}

// Executor owns the SM pool, the per-subpartition warp schedulers, and the
// pending-block queue for one kernel launch. A fresh Executor is created per
// launch; it is not reused across launches.
type Executor struct {
	pool   *sm.Pool
	bus    *metrics.Bus
	logger *zap.Logger

	policy warpsched.Policy
	scheds map[int][NumSubpartitions]warpsched.Scheduler

	resident   map[string]*residentBlock
	nextWarpID int
	nextSeq    int

	tensor *tensorcore.Core
}

// NewExecutor builds an Executor over the given SM pool, publishing progress
// to bus (may be nil) and logging through logger (may be nil).
func NewExecutor(pool *sm.Pool, bus *metrics.Bus, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		pool:     pool,
		bus:      bus,
		logger:   logger,
		scheds:   make(map[int][NumSubpartitions]warpsched.Scheduler),
		resident: make(map[string]*residentBlock),
		tensor:   tensorcore.New(),
	}
}

func (e *Executor) schedulersFor(smID int) [NumSubpartitions]warpsched.Scheduler {
	s, ok := e.scheds[smID]
	if !ok {
		for i := range s {
			s[i] = e.policy.Build()
		}
		e.scheds[smID] = s
	}
	return s
}

// Run drives kernel k to completion under config cfg and scheduling policy
// policy, writing thread output into gmem. It returns KernelStats describing
// the launch, or an error if the geometry is invalid or the kernel cannot
// fit on the device at all.
func (e *Executor) Run(k *kernel.Kernel, cfg kernel.LaunchConfig, policy warpsched.Policy, cfgSM occupancy.SmConfig, gmem *memory.HBM) (KernelStats, error) {
	if err := cfg.Validate(); err != nil {
		if le, ok := err.(*kernel.LaunchError); ok {
			le.Kernel = k.Name
			return KernelStats{}, le
		}
		return KernelStats{}, err
	}

	resources := cfg.Resources()
	maxBlocks, limiter := occupancy.MaxBlocksPerSM(resources, cfgSM)
	if maxBlocks == 0 {
		return KernelStats{}, &kernel.LaunchError{
			Kind:    kernel.UnlaunchableKernel,
			Kernel:  k.Name,
			Message: fmt.Sprintf("zero blocks fit per SM (limited by %s)", limiter),
		}
	}

	e.policy = policy
	e.pool.BeginLaunch(resources, maxBlocks)
	e.scheds = make(map[int][NumSubpartitions]warpsched.Scheduler)
	e.resident = make(map[string]*residentBlock)
	e.nextWarpID = 0
	e.nextSeq = 0

	coords := kernel.EnumerateBlocks(cfg.Grid)
	blocksTotal := uint32(len(coords))
	warpsPerBlock := resources.WarpsPerBlock()

	stats := KernelStats{
		Kernel:               k.Name,
		PolicyLabel:          policy.Label(),
		BlocksTotal:          blocksTotal,
		Warps:                warpsPerBlock,
		Threads:              resources.ThreadsPerBlock,
		TheoreticalOccupancy: occupancy.TheoreticalOccupancy(maxBlocks, warpsPerBlock, cfgSM.MaxWarpsPerSM),
		Limiter:              limiter,
	}

	e.logger.Info("launch begin",
		zap.String("kernel", k.Name),
		zap.String("policy", policy.Label()),
		zap.Uint32("blocks_total", blocksTotal),
		zap.String("limiter", limiter.String()))

	pendingIdx := 0
	var blocksDone uint32
	var tick uint64

	publish := func(status metrics.Status) {
		if e.bus == nil {
			return
		}
		e.bus.Publish(metrics.Snapshot{
			Kernel:      k.Name,
			Policy:      policy.Label(),
			Status:      status,
			Grid:        [3]uint32{cfg.Grid.X, cfg.Grid.Y, cfg.Grid.Z},
			Block:       [3]uint32{cfg.Block.X, cfg.Block.Y, cfg.Block.Z},
			BlocksDone:  blocksDone,
			BlocksTotal: blocksTotal,
			Warps:       warpsPerBlock,
			Threads:     resources.ThreadsPerBlock,
			Occupancy:   stats.TheoreticalOccupancy,
			Limiter:     limiter.String(),
			SMActive:    e.pool.ActiveFlags(),
		})
		e.logger.Debug("metrics published", zap.String("status", string(status)), zap.Uint32("blocks_done", blocksDone))
	}

	for blocksDone < blocksTotal {
		for pendingIdx < len(coords) {
			coord := coords[pendingIdx]
			uid := xid.New().String()
			warps := e.newWarpRoster(warpsPerBlock, resources.ThreadsPerBlock, tick, uid)
			s, ok := e.pool.Admit(uid, warps)
			if !ok {
				break
			}
			rb := &residentBlock{uid: uid, coord: coord, smID: s.ID, warps: warps, smem: memory.NewSMEM(cfg.SmemBytes), seq: e.nextSeq}
			e.nextSeq++
			e.resident[uid] = rb
			pendingIdx++
			e.logger.Debug("block admitted", zap.String("block", uid), zap.Int("sm", s.ID))
		}

		progressed := e.tickAll(k, cfg, gmem)
		tick++

		for uid, rb := range e.resident {
			if allRetired(rb.warps) {
				s := e.pool.SM(rb.smID)
				e.pool.Release(s, uid)
				delete(e.resident, uid)
				blocksDone++
				e.logger.Debug("block retired", zap.String("block", uid), zap.Int("sm", rb.smID))
			}
		}

		publish(metrics.StatusRunning)

		if !progressed && pendingIdx >= len(coords) && len(e.resident) == 0 {
			break
		}
	}

	stats.Ticks = tick
	publish(metrics.StatusComplete)

	e.logger.Info("launch complete",
		zap.String("kernel", k.Name),
		zap.Uint32("blocks_done", blocksDone),
		zap.Uint64("ticks", tick))

	if blocksDone != blocksTotal {
		return stats, fmt.Errorf("block: launch stalled with %d/%d blocks completed", blocksDone, blocksTotal)
	}
	return stats, nil
}

// tickAll issues one instruction per eligible subpartition across every SM
// with resident work, then ages every stalled warp by one cycle. It returns
// true if any warp was issued this tick.
func (e *Executor) tickAll(k *kernel.Kernel, cfg kernel.LaunchConfig, gmem *memory.HBM) bool {
	progressed := false

	bySM := make(map[int][]*residentBlock)
	for _, rb := range e.resident {
		bySM[rb.smID] = append(bySM[rb.smID], rb)
	}

	for smID, blocks := range bySM {
		sort.Slice(blocks, func(i, j int) bool { return blocks[i].seq < blocks[j].seq })

		scheds := e.schedulersFor(smID)
		bySub := make(map[int][]*warp.Warp)
		smemOf := make(map[int]*memory.SMEM)
		for _, rb := range blocks {
			for _, w := range rb.warps {
				bySub[w.Subpartition] = append(bySub[w.Subpartition], w)
				smemOf[w.ID] = rb.smem
			}
		}

		for sub := 0; sub < NumSubpartitions; sub++ {
			warps := bySub[sub]
			if len(warps) == 0 {
				continue
			}
			order := scheds[sub].OrderWarps(warps)
			for _, id := range order {
				w := findWarp(warps, id)
				if w == nil || !w.Eligible() {
					continue
				}
				e.issue(k, cfg, w, smemOf[w.ID], gmem)
				scheds[sub].RecordIssued(w.ID)
				progressed = true
				break
			}
		}

		for _, w := range warps(blocks) {
			w.Tick()
		}
	}
	return progressed
}

func (e *Executor) issue(k *kernel.Kernel, cfg kernel.LaunchConfig, w *warp.Warp, smem *memory.SMEM, gmem *memory.HBM) {
	for lane := 0; lane < w.LaneCount; lane++ {
		flat := uint32(w.FirstLane + lane)
		ctx := &kernel.ThreadCtx{
			ThreadIdx: kernel.FlatToDim3(flat, cfg.Block),
			BlockIdx:  blockCoordFromUID(w.BlockID, e.resident).ToDim3(),
			BlockDim:  cfg.Block,
			GridDim:   cfg.Grid,
			Gmem:      gmem,
			Smem:      smem,
			Tensor:    e.tensor,
		}
		k.Body(ctx)
	}
	w.Advance()
}

func blockCoordFromUID(uid string, resident map[string]*residentBlock) kernel.BlockCoord {
	if rb, ok := resident[uid]; ok {
		return rb.coord
	}
	return kernel.BlockCoord{}
}

// newWarpRoster builds one block's warps with launch-wide unique ids — warps
// from different blocks can share an SM and a subpartition, so per-block ids
// would collide once pooled for scheduling. The last warp may be partial: its
// lane count is clamped to the threads actually remaining in the block, so
// masked lanes never get a ThreadIdx and never invoke the kernel body.
func (e *Executor) newWarpRoster(warpsPerBlock, threadsPerBlock uint32, age uint64, blockUID string) []*warp.Warp {
	roster := make([]*warp.Warp, 0, warpsPerBlock)
	for i := uint32(0); i < warpsPerBlock; i++ {
		firstLane := int(i) * warp.WarpSize
		laneCount := warp.WarpSize
		if remaining := int(threadsPerBlock) - firstLane; remaining < laneCount {
			laneCount = remaining
		}
		roster = append(roster, warp.NewWarp(e.nextWarpID, blockUID, age, firstLane, laneCount))
		e.nextWarpID++
	}
	return roster
}

func findWarp(warps []*warp.Warp, id int) *warp.Warp {
	for _, w := range warps {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func allRetired(warps []*warp.Warp) bool {
	for _, w := range warps {
		if w.State != warp.Retired {
			return false
		}
	}
	return true
}

func warps(blocks []*residentBlock) []*warp.Warp {
	var out []*warp.Warp
	for _, rb := range blocks {
		out = append(out, rb.warps...)
	}
	return out
}
