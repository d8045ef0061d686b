// Package cluster extends the single-GPU model to a multi-node, multi-GPU
// topology: a grid of devices addressed by DeviceId, routed point-to-point
// transfers, and analytic collective-communication timing. Kernel launches
// are dispatched to a single named device; collectives never execute kernel
// bodies, they are scored by the interconnect cost model alone.
package cluster

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dimenwarper/gpusim/gpu"
	"github.com/dimenwarper/gpusim/interconnect"
	"github.com/dimenwarper/gpusim/kernel"
	"github.com/dimenwarper/gpusim/metrics"
	"github.com/dimenwarper/gpusim/occupancy"
	"github.com/dimenwarper/gpusim/timing/block"
	"github.com/dimenwarper/gpusim/timing/warpsched"
)

// DeviceId identifies one GPU within a cluster by its node and its index
// within that node.
type DeviceId struct {
	Node int
	GPU  int
}

func (d DeviceId) String() string { return fmt.Sprintf("node%d:gpu%d", d.Node, d.GPU) }

// Cluster is a collection of nodes, each hosting the same number of
// identically-configured GPUs, connected intra-node by NVLink and
// inter-node by InfiniBand.
type Cluster struct {
	nodes       int
	gpusPerNode int

	devices [][]*gpu.GPU

	nvlink interconnect.NVLink
	ib     interconnect.InfiniBand

	bus    *metrics.Bus
	logger *zap.Logger
}

// New builds a Cluster of nodes x gpusPerNode GPUs, each an smCfg device
// with hbmBytes of HBM, connected by the given NVLink and InfiniBand
// parameters. Every device shares the same metrics bus and logger.
func New(nodes, gpusPerNode int, smCfg occupancy.SmConfig, hbmBytes uint64, nvlink interconnect.NVLink, ib interconnect.InfiniBand, bus *metrics.Bus, logger *zap.Logger) *Cluster {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cluster{
		nodes:       nodes,
		gpusPerNode: gpusPerNode,
		devices:     make([][]*gpu.GPU, nodes),
		nvlink:      nvlink,
		ib:          ib,
		bus:         bus,
		logger:      logger,
	}
	for n := 0; n < nodes; n++ {
		c.devices[n] = make([]*gpu.GPU, gpusPerNode)
		for g := 0; g < gpusPerNode; g++ {
			c.devices[n][g] = gpu.New(smCfg, hbmBytes, bus, logger)
		}
	}
	return c
}

// H100DGX builds an n-node cluster of 8-GPU-per-node H100 DGX boxes:
// NVLink 4.0 (900 GB/s, 1us) intra-node and NDR InfiniBand (50 GB/s, 2us)
// inter-node, matching a real DGX H100 SuperPOD rack.
func H100DGX(nodes int, bus *metrics.Bus, logger *zap.Logger) *Cluster {
	return New(nodes, 8, occupancy.H100(), 80*1024*1024*1024,
		interconnect.NVLinkH100(), interconnect.InfiniBandNDR(), bus, logger)
}

// A100DGX builds an n-node cluster of 8-GPU-per-node A100 DGX boxes:
// NVLink 3.0 (600 GB/s, 1us) intra-node and NDR InfiniBand inter-node.
func A100DGX(nodes int, bus *metrics.Bus, logger *zap.Logger) *Cluster {
	return New(nodes, 8, occupancy.A100(), 80*1024*1024*1024,
		interconnect.NVLinkA100(), interconnect.InfiniBandNDR(), bus, logger)
}

// NumNodes returns the number of nodes in the cluster.
func (c *Cluster) NumNodes() int { return c.nodes }

// GPUsPerNode returns the number of GPUs hosted by each node.
func (c *Cluster) GPUsPerNode() int { return c.gpusPerNode }

// NumDevices returns the total GPU count across the cluster.
func (c *Cluster) NumDevices() int { return c.nodes * c.gpusPerNode }

// Device returns the GPU at id, or an InvalidDevice LaunchError if id is
// outside the cluster's bounds.
func (c *Cluster) Device(id DeviceId) (*gpu.GPU, error) {
	if id.Node < 0 || id.Node >= c.nodes || id.GPU < 0 || id.GPU >= c.gpusPerNode {
		return nil, &kernel.LaunchError{
			Kind:    kernel.InvalidDevice,
			Message: fmt.Sprintf("device %s out of bounds for %d node(s) x %d gpu(s)", id, c.nodes, c.gpusPerNode),
		}
	}
	return c.devices[id.Node][id.GPU], nil
}

// LaunchKernelOn runs k to completion on the given device, exactly as
// GPU.LaunchKernel would, surfacing InvalidDevice if the device does not
// exist in this cluster.
func (c *Cluster) LaunchKernelOn(id DeviceId, k *kernel.Kernel, cfg kernel.LaunchConfig, policy warpsched.Policy) (block.KernelStats, error) {
	dev, err := c.Device(id)
	if err != nil {
		return block.KernelStats{}, err
	}
	return dev.LaunchKernel(k, cfg, policy)
}

// Transfer routes a point-to-point transfer of bytes from src to dst.
// Same-node transfers use NVLink directly; cross-node transfers route
// through both endpoints' NVLink fabric ports and the InfiniBand hop
// between them, per the interconnect package's RoutedTransfer.
func (c *Cluster) Transfer(src, dst DeviceId, bytes uint64) (interconnect.TransferStats, error) {
	if _, err := c.Device(src); err != nil {
		return interconnect.TransferStats{}, err
	}
	if _, err := c.Device(dst); err != nil {
		return interconnect.TransferStats{}, err
	}

	if src.Node == dst.Node {
		return interconnect.P2P(bytes, c.nvlink.BandwidthGBps, c.nvlink.LatencyUs, interconnect.ChannelNVLink), nil
	}
	return interconnect.RoutedTransfer(bytes, c.nvlink, c.ib), nil
}

// bottleneckLink returns the link whose bandwidth/latency bound a
// cluster-wide collective: NVLink when every participant is on a single
// node, InfiniBand otherwise. The inter-node hop dominates total time by
// 1-2 orders of magnitude for any realistic node count, so a mixed-topology
// collective is costed against its single slowest tier rather than a sum
// of per-tier formulae.
func (c *Cluster) bottleneckLink() (bandwidthGBps, latencyUs float64) {
	if c.nodes <= 1 {
		return c.nvlink.BandwidthGBps, c.nvlink.LatencyUs
	}
	return c.ib.BandwidthGBps, c.ib.LatencyUs
}

// AllReduce scores an AllReduce collective over every device in the
// cluster using the named algorithm. bytes is the per-GPU message size
// fed directly into the interconnect package's formulae, which already
// divide by participant count where the algorithm calls for it (Ring) —
// it is not an aggregate to be pre-divided by NumDevices.
func (c *Cluster) AllReduce(bytes uint64, algo interconnect.Algorithm) interconnect.CollectiveStats {
	bw, lat := c.bottleneckLink()
	return interconnect.AllReduce(algo, c.NumDevices(), bytes, bw, lat)
}

// AllGather scores a Ring AllGather collective over every device in the
// cluster.
func (c *Cluster) AllGather(bytesPerGPU uint64) interconnect.CollectiveStats {
	bw, lat := c.bottleneckLink()
	return interconnect.AllGather(c.NumDevices(), bytesPerGPU, bw, lat)
}

// Broadcast scores a Tree broadcast collective over every device in the
// cluster.
func (c *Cluster) Broadcast(bytes uint64) interconnect.CollectiveStats {
	bw, lat := c.bottleneckLink()
	return interconnect.Broadcast(c.NumDevices(), bytes, bw, lat)
}
