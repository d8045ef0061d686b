// Package occupancy implements the five-limiter calculation that determines
// how many thread blocks can co-reside on a streaming multiprocessor, and
// identifies the bottleneck resource.
package occupancy

import (
	"math"

	pkgmath "github.com/pkg/math"
)

// infinity stands in for "this limiter does not apply" when a kernel
// declares zero register or shared-memory demand.
const infinity = uint32(math.MaxUint32)

// Limiter names the resource whose exhaustion bounds MaxBlocksPerSM.
type Limiter int

const (
	// ThreadSlots means per-SM thread capacity is the binding constraint.
	ThreadSlots Limiter = iota
	// WarpSlots means per-SM warp-slot capacity is the binding constraint.
	WarpSlots
	// RegisterFile means the register file is the binding constraint.
	RegisterFile
	// SharedMemory means SMEM capacity is the binding constraint.
	SharedMemory
	// HardwareBlockCap means the SM's hard block-count cap is the binding constraint.
	HardwareBlockCap
)

func (l Limiter) String() string {
	switch l {
	case ThreadSlots:
		return "thread slots"
	case WarpSlots:
		return "warp slots"
	case RegisterFile:
		return "register file"
	case SharedMemory:
		return "shared memory"
	case HardwareBlockCap:
		return "hardware block cap"
	default:
		return "unknown"
	}
}

// WarpSize is the fixed CUDA-style warp width.
const WarpSize = 32

// SmConfig carries the hardware parameters of one SM class.
type SmConfig struct {
	Name string

	MaxBlocksPerSM  uint32
	MaxThreadsPerSM uint32
	MaxWarpsPerSM   uint32

	RegsPerSM       uint32
	RegAllocGran    uint32
	SmemPerSM       uint32
	SmemAllocGran   uint32
	NumSMs          int
}

// H100 returns the Hopper (CC 9.0) SM configuration.
func H100() SmConfig {
	return SmConfig{
		Name:            "h100",
		MaxBlocksPerSM:  32,
		MaxThreadsPerSM: 2048,
		MaxWarpsPerSM:   64,
		RegsPerSM:       65536,
		RegAllocGran:    256,
		SmemPerSM:       228 * 1024,
		SmemAllocGran:   128,
		NumSMs:          132,
	}
}

// A100 returns the Ampere (CC 8.0) SM configuration.
func A100() SmConfig {
	cfg := H100()
	cfg.Name = "a100"
	cfg.SmemPerSM = 164 * 1024
	cfg.NumSMs = 108
	return cfg
}

// KernelResources carries the resource demand a kernel declares at launch.
type KernelResources struct {
	ThreadsPerBlock uint32
	RegsPerThread   uint32 // 0 = untracked, no register pressure
	SmemBytes       uint32 // 0 = none
}

// WarpsPerBlock returns the number of (possibly partial) warps a block of
// this size spans.
func (k KernelResources) WarpsPerBlock() uint32 {
	return divCeil(max1(k.ThreadsPerBlock), WarpSize)
}

func max1(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

func divCeil(a, b uint32) uint32 {
	return (a + b - 1) / b
}

func roundUp(val, granularity uint32) uint32 {
	if granularity == 0 {
		return val
	}
	return divCeil(val, granularity) * granularity
}

// MaxBlocksPerSM computes the maximum number of thread blocks that can
// simultaneously reside on a single SM, and identifies the limiting
// resource. It is the minimum across five independent constraints: thread
// slots, warp slots, register file, shared memory, and the SM's hardware
// block cap.
//
// Ties are broken by testing in the order hardware cap, shared memory,
// register file, warp slots, thread slots and reporting the first resource
// whose bound equals the minimum — this matches the reference calculator's
// behaviour when several limiters coincide (e.g. a block that simultaneously
// saturates thread, warp, and register capacity is reported as
// register-file-bound, not thread-bound).
func MaxBlocksPerSM(k KernelResources, s SmConfig) (uint32, Limiter) {
	warpsPerBlock := k.WarpsPerBlock()

	byThreads := s.MaxThreadsPerSM / max1(k.ThreadsPerBlock)
	byWarps := s.MaxWarpsPerSM / warpsPerBlock

	byRegs := infinity
	if k.RegsPerThread != 0 {
		perBlock := roundUp(k.RegsPerThread*k.ThreadsPerBlock, s.RegAllocGran)
		if perBlock != 0 {
			byRegs = s.RegsPerSM / perBlock
		}
	}

	bySmem := infinity
	if k.SmemBytes != 0 {
		perBlock := roundUp(k.SmemBytes, s.SmemAllocGran)
		if perBlock != 0 {
			bySmem = s.SmemPerSM / perBlock
		}
	}

	byHW := s.MaxBlocksPerSM

	max := pkgmath.MinUint32(byHW, pkgmath.MinUint32(bySmem, pkgmath.MinUint32(byRegs, pkgmath.MinUint32(byWarps, byThreads))))

	var limiter Limiter
	switch {
	case max == byHW:
		limiter = HardwareBlockCap
	case max == bySmem:
		limiter = SharedMemory
	case max == byRegs:
		limiter = RegisterFile
	case max == byWarps:
		limiter = WarpSlots
	default:
		limiter = ThreadSlots
	}

	return max, limiter
}

// TheoreticalOccupancy returns (resident warps) / (max warps per SM), clamped to [0, 1].
func TheoreticalOccupancy(maxBlocks, warpsPerBlock, maxWarpsPerSM uint32) float64 {
	if maxWarpsPerSM == 0 {
		return 0
	}
	occ := float64(maxBlocks*warpsPerBlock) / float64(maxWarpsPerSM)
	if occ < 0 {
		return 0
	}
	if occ > 1 {
		return 1
	}
	return occ
}
