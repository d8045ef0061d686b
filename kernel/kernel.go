// Package kernel defines the grid/block geometry and the kernel contract:
// the opaque per-thread callable a caller supplies, and the context it
// executes under.
package kernel

import (
	"fmt"

	"github.com/dimenwarper/gpusim/memory"
	"github.com/dimenwarper/gpusim/occupancy"
	"github.com/dimenwarper/gpusim/tensorcore"
)

// Dim3 is an ordered triple of positive integers representing either a grid
// or block dimension.
type Dim3 struct {
	X, Y, Z uint32
}

// NewDim3 builds a Dim3 from the three axes exactly as given; an axis passed
// as 0 stays 0 (Validate rejects such a launch geometry).
func NewDim3(x, y, z uint32) Dim3 { return Dim3{X: x, Y: y, Z: z} }

// Dim1 builds a 1-D Dim3 with y = z = 1.
func Dim1(x uint32) Dim3 { return Dim3{X: x, Y: 1, Z: 1} }

// Size returns the product of the three axes.
func (d Dim3) Size() uint64 { return uint64(d.X) * uint64(d.Y) * uint64(d.Z) }

// Valid reports whether every axis is at least 1.
func (d Dim3) Valid() bool { return d.X >= 1 && d.Y >= 1 && d.Z >= 1 }

func (d Dim3) String() string { return fmt.Sprintf("(%d,%d,%d)", d.X, d.Y, d.Z) }

// MaxThreadsPerBlock is CUDA's hard per-block thread cap.
const MaxThreadsPerBlock = 1024

// LaunchConfig pairs a grid Dim3 and a block Dim3, plus optional per-thread
// register and per-block shared-memory hints used by the occupancy
// calculator.
type LaunchConfig struct {
	Grid  Dim3
	Block Dim3

	RegsPerThread uint32
	SmemBytes     uint32
}

// NewLaunchConfig builds a LaunchConfig with no declared register/SMEM demand.
func NewLaunchConfig(grid, block Dim3) LaunchConfig {
	return LaunchConfig{Grid: grid, Block: block}
}

// WithResources returns a copy of the config carrying the given per-thread
// register count and per-block shared-memory byte count.
func (c LaunchConfig) WithResources(regsPerThread, smemBytes uint32) LaunchConfig {
	c.RegsPerThread = regsPerThread
	c.SmemBytes = smemBytes
	return c
}

// Validate checks the invariant geometry rules from the occupancy and
// block-scheduling contract: every axis must be positive, and a block may
// not exceed the hardware's per-block thread cap.
func (c LaunchConfig) Validate() error {
	if !c.Grid.Valid() {
		return &LaunchError{Kind: InvalidGeometry, Message: fmt.Sprintf("invalid grid dimension %s: all axes must be >= 1", c.Grid)}
	}
	if !c.Block.Valid() {
		return &LaunchError{Kind: InvalidGeometry, Message: fmt.Sprintf("invalid block dimension %s: all axes must be >= 1", c.Block)}
	}
	if c.Block.Size() > MaxThreadsPerBlock {
		return &LaunchError{Kind: InvalidGeometry, Message: fmt.Sprintf("block %s has %d threads, exceeds max of %d", c.Block, c.Block.Size(), MaxThreadsPerBlock)}
	}
	return nil
}

// Resources converts the config's resource hints into an occupancy.KernelResources.
func (c LaunchConfig) Resources() occupancy.KernelResources {
	return occupancy.KernelResources{
		ThreadsPerBlock: uint32(c.Block.Size()),
		RegsPerThread:   c.RegsPerThread,
		SmemBytes:       c.SmemBytes,
	}
}

// ThreadCtx is the per-thread context passed to a kernel body. It is valid
// only for the duration of one invocation.
type ThreadCtx struct {
	ThreadIdx Dim3
	BlockIdx  Dim3
	BlockDim  Dim3
	GridDim   Dim3

	Gmem   *memory.HBM
	Smem   *memory.SMEM
	Tensor *tensorcore.Core
}

// GlobalID returns the flattened global thread coordinate:
// blockIdx.x*blockDim.x + threadIdx.x (extended with y/z for multi-D grids).
func (t ThreadCtx) GlobalID() uint64 {
	bx := uint64(t.BlockIdx.X)*uint64(t.BlockDim.X) + uint64(t.ThreadIdx.X)
	by := uint64(t.BlockIdx.Y)*uint64(t.BlockDim.Y) + uint64(t.ThreadIdx.Y)
	bz := uint64(t.BlockIdx.Z)*uint64(t.BlockDim.Z) + uint64(t.ThreadIdx.Z)
	gridThreadsX := uint64(t.GridDim.X) * uint64(t.BlockDim.X)
	gridThreadsY := uint64(t.GridDim.Y) * uint64(t.BlockDim.Y)
	return bz*gridThreadsY*gridThreadsX + by*gridThreadsX + bx
}

// Body is the opaque per-thread callable a kernel executes once per lane.
type Body func(ctx *ThreadCtx)

// Kernel is a named function executed by every thread in the launch grid.
type Kernel struct {
	Name string
	Body Body
}

// New builds a Kernel with the given name and body.
func New(name string, body Body) *Kernel {
	return &Kernel{Name: name, Body: body}
}

// FlatToDim3 converts a flat lane index into Dim3 coordinates within block.
func FlatToDim3(flat uint32, block Dim3) Dim3 {
	x := flat % block.X
	y := (flat / block.X) % block.Y
	z := flat / (block.X * block.Y)
	return Dim3{X: x, Y: y, Z: z}
}

// LaunchErrorKind classifies why a launch was rejected.
type LaunchErrorKind int

const (
	// InvalidGeometry means the grid/block dimensions themselves are malformed.
	InvalidGeometry LaunchErrorKind = iota
	// UnlaunchableKernel means the geometry is valid but no block of it fits
	// on a single SM under the declared register/shared-memory demand.
	UnlaunchableKernel
	// InvalidDevice means the launch target does not exist in the cluster.
	InvalidDevice
)

func (k LaunchErrorKind) String() string {
	switch k {
	case InvalidGeometry:
		return "invalid geometry"
	case UnlaunchableKernel:
		return "unlaunchable kernel"
	case InvalidDevice:
		return "invalid device"
	default:
		return "unknown"
	}
}

// LaunchError is returned by LaunchKernel and LaunchKernelOn instead of a
// plain error whenever the caller might want to branch on why a launch was
// rejected.
type LaunchError struct {
	Kind    LaunchErrorKind
	Kernel  string
	Message string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("kernel %q: %s: %s", e.Kernel, e.Kind, e.Message)
}

// BlockCoord is the (bx, by, bz) grid coordinate of one block.
type BlockCoord struct {
	BX, BY, BZ uint32
}

func (c BlockCoord) ToDim3() Dim3 { return Dim3{X: c.BX, Y: c.BY, Z: c.BZ} }

// EnumerateBlocks returns every block coordinate in a grid, in row-major
// order over (bz, by, bx) — the order the block scheduler must admit them in.
func EnumerateBlocks(grid Dim3) []BlockCoord {
	coords := make([]BlockCoord, 0, grid.Size())
	for bz := uint32(0); bz < grid.Z; bz++ {
		for by := uint32(0); by < grid.Y; by++ {
			for bx := uint32(0); bx < grid.X; bx++ {
				coords = append(coords, BlockCoord{BX: bx, BY: by, BZ: bz})
			}
		}
	}
	return coords
}
