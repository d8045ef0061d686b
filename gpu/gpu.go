// Package gpu assembles one device's SM pool, memory tiers, and block
// executor behind a single LaunchKernel entry point.
package gpu

import (
	"go.uber.org/zap"

	"github.com/dimenwarper/gpusim/kernel"
	"github.com/dimenwarper/gpusim/memory"
	"github.com/dimenwarper/gpusim/metrics"
	"github.com/dimenwarper/gpusim/occupancy"
	"github.com/dimenwarper/gpusim/sm"
	"github.com/dimenwarper/gpusim/timing/block"
	"github.com/dimenwarper/gpusim/timing/warpsched"
)

// GPU is one simulated device: an SM pool sized by its SmConfig, HBM/L2
// memory tiers, and the executor that drives kernel launches over them.
type GPU struct {
	Name string
	Cfg  occupancy.SmConfig

	Pool *sm.Pool
	HBM  *memory.HBM
	L2   *memory.L2Cache

	Bus    *metrics.Bus
	logger *zap.Logger
}

// New builds a GPU from an SmConfig with the given HBM capacity.
func New(cfg occupancy.SmConfig, hbmBytes uint64, bus *metrics.Bus, logger *zap.Logger) *GPU {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GPU{
		Name:   cfg.Name,
		Cfg:    cfg,
		Pool:   sm.NewPool(cfg),
		HBM:    memory.NewHBM(hbmBytes),
		L2:     memory.NewL2Cache(40 * 1024 * 1024),
		Bus:    bus,
		logger: logger,
	}
}

// H100 builds an 80GB H100 SXM GPU.
func H100(bus *metrics.Bus, logger *zap.Logger) *GPU {
	return New(occupancy.H100(), 80*1024*1024*1024, bus, logger)
}

// A100 builds an 80GB A100 SXM GPU.
func A100(bus *metrics.Bus, logger *zap.Logger) *GPU {
	return New(occupancy.A100(), 80*1024*1024*1024, bus, logger)
}

// LaunchKernel runs k to completion under config cfg and scheduling policy
// policy, and returns the resulting KernelStats. The GPU's SM pool is reused
// across launches but fully reset at the start of each one.
func (g *GPU) LaunchKernel(k *kernel.Kernel, cfg kernel.LaunchConfig, policy warpsched.Policy) (block.KernelStats, error) {
	exec := block.NewExecutor(g.Pool, g.Bus, g.logger)
	return exec.Run(k, cfg, policy, g.Cfg, g.HBM)
}
