// Package interconnect implements the analytic timing model for
// point-to-point transfers and for the Ring, Tree, and Direct collective
// algorithms used by multi-GPU clusters.
package interconnect

import "math"

// NVLink is the intra-node, all-to-all interconnect reached via NVSwitch.
type NVLink struct {
	BandwidthGBps float64
	LatencyUs     float64
}

// NVLinkH100 returns H100 SXM's NVLink 4.0 configuration: 900 GB/s, 1us latency.
func NVLinkH100() NVLink { return NVLink{BandwidthGBps: 900, LatencyUs: 1} }

// NVLinkA100 returns A100 SXM's NVLink 3.0 configuration: 600 GB/s, 1us latency.
func NVLinkA100() NVLink { return NVLink{BandwidthGBps: 600, LatencyUs: 1} }

// InfiniBand is the inter-node fabric.
type InfiniBand struct {
	BandwidthGBps float64
	LatencyUs     float64
}

// InfiniBandNDR returns NDR InfiniBand: 400 Gb/s = 50 GB/s, 2us latency.
func InfiniBandNDR() InfiniBand { return InfiniBand{BandwidthGBps: 50, LatencyUs: 2} }

// InfiniBandHDR returns HDR InfiniBand: 200 Gb/s = 25 GB/s, 2us latency.
func InfiniBandHDR() InfiniBand { return InfiniBand{BandwidthGBps: 25, LatencyUs: 2} }

// Channel is the physical path a transfer used.
type Channel string

const (
	SameDevice Channel = "same-device"
	ChannelNVLink    Channel = "NVLink"
	ChannelInfiniBand Channel = "InfiniBand"
)

// TransferStats is the result of a simulated point-to-point transfer.
type TransferStats struct {
	Bytes                 uint64
	TimeUs                float64
	EffectiveBandwidthGBs float64
	Efficiency            float64
	Channel               Channel
}

// TransferTimeUs computes the transfer time in microseconds:
// latency_us + bytes / (bandwidth_GBps * 1e9) * 1e6.
func TransferTimeUs(bytes uint64, bandwidthGBps, latencyUs float64) float64 {
	if bytes == 0 {
		return 0
	}
	bandwidthBytesPerUs := bandwidthGBps * 1_000.0
	return latencyUs + float64(bytes)/bandwidthBytesPerUs
}

// EffectiveBandwidthGBs computes effective bandwidth from bytes and time.
func EffectiveBandwidthGBs(bytes uint64, timeUs float64) float64 {
	if timeUs == 0 {
		return math.Inf(1)
	}
	return float64(bytes) / timeUs / 1_000.0
}

// P2P computes a point-to-point transfer over a single link of the given
// peak bandwidth and latency.
func P2P(bytes uint64, peakBandwidthGBps, latencyUs float64, channel Channel) TransferStats {
	if bytes == 0 {
		return TransferStats{Channel: SameDevice, EffectiveBandwidthGBs: math.Inf(1), Efficiency: 1}
	}
	t := TransferTimeUs(bytes, peakBandwidthGBps, latencyUs)
	eff := EffectiveBandwidthGBs(bytes, t)
	return TransferStats{
		Bytes:                 bytes,
		TimeUs:                t,
		EffectiveBandwidthGBs: eff,
		Efficiency:            clamp01(eff / peakBandwidthGBps),
		Channel:               channel,
	}
}

// RoutedTransfer computes a cross-node transfer: NVLink egress from the
// source GPU to its node's fabric port, the InfiniBand hop itself, then
// NVLink ingress into the destination GPU. Latencies sum across the three
// stages; bandwidth is the minimum across them (the fabric dominates in
// practice, but the model takes the true minimum).
func RoutedTransfer(bytes uint64, nvlink NVLink, ib InfiniBand) TransferStats {
	latency := nvlink.LatencyUs + ib.LatencyUs + nvlink.LatencyUs
	bandwidth := math.Min(nvlink.BandwidthGBps, math.Min(ib.BandwidthGBps, nvlink.BandwidthGBps))
	if bytes == 0 {
		return TransferStats{Channel: SameDevice, EffectiveBandwidthGBs: math.Inf(1), Efficiency: 1}
	}
	t := latency + float64(bytes)/(bandwidth*1_000.0)
	eff := EffectiveBandwidthGBs(bytes, t)
	return TransferStats{
		Bytes:                 bytes,
		TimeUs:                t,
		EffectiveBandwidthGBs: eff,
		Efficiency:            clamp01(eff / bandwidth),
		Channel:               ChannelInfiniBand,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ---------------------------------------------------------------------------
// Collective algorithms
// ---------------------------------------------------------------------------

// Algorithm selects which collective timing formula to use.
type Algorithm string

const (
	Ring   Algorithm = "Ring"
	Tree   Algorithm = "Tree"
	Direct Algorithm = "Direct"
)

// CollectiveStats is the result of a simulated collective operation.
type CollectiveStats struct {
	Operation      string
	Algorithm      string
	NumGPUs        int
	BytesPerGPU    uint64
	TimeUs         float64
	BusBandwidthGBs float64
	Efficiency     float64
}

func bwBytesPerUs(bandwidthGBps float64) float64 { return bandwidthGBps * 1_000.0 }

func log2Ceil(n int) float64 {
	if n <= 1 {
		return 0
	}
	return math.Ceil(math.Log2(float64(n)))
}

// AllReduceTime returns the AllReduce completion time in microseconds for
// the given algorithm, participant count, payload per participant, and the
// single bottleneck link's bandwidth/latency.
func AllReduceTime(algo Algorithm, n int, bytesPerGPU uint64, bandwidthGBps, latencyUs float64) float64 {
	bw := bwBytesPerUs(bandwidthGBps)
	b := float64(bytesPerGPU)
	nf := float64(n)

	switch algo {
	case Tree:
		return 2 * log2Ceil(n) * (latencyUs + b/bw)
	case Direct:
		return (nf - 1) * (latencyUs + b/bw)
	default: // Ring
		return 2*(nf-1)*(b/nf)/bw + 2*(nf-1)*latencyUs
	}
}

// AllReduceLowerBoundTime is the bandwidth-optimal lower bound used to
// compute AllReduce efficiency, regardless of which algorithm actually ran.
func AllReduceLowerBoundTime(n int, bytesPerGPU uint64, bandwidthGBps float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2 * (float64(n) - 1) / float64(n) * float64(bytesPerGPU) / bwBytesPerUs(bandwidthGBps)
}

// AllReduce simulates an AllReduce collective and fills in its stats,
// including bus-bandwidth and efficiency against the theoretical lower
// bound 2*(N-1)/N * bytes/bandwidth.
func AllReduce(algo Algorithm, n int, bytesPerGPU uint64, bandwidthGBps, latencyUs float64) CollectiveStats {
	t := AllReduceTime(algo, n, bytesPerGPU, bandwidthGBps, latencyUs)
	lowerBound := AllReduceLowerBoundTime(n, bytesPerGPU, bandwidthGBps)

	busBW := 0.0
	if t > 0 {
		nf := float64(n)
		busBW = 2 * (nf - 1) / nf * float64(bytesPerGPU) / (t * 1_000.0)
	}
	eff := 0.0
	if t > 0 {
		eff = clamp01(lowerBound / t)
	}

	return CollectiveStats{
		Operation:       "AllReduce",
		Algorithm:       string(algo),
		NumGPUs:         n,
		BytesPerGPU:     bytesPerGPU,
		TimeUs:          t,
		BusBandwidthGBs: busBW,
		Efficiency:      eff,
	}
}

// AllGather simulates a Ring AllGather: (N-1) * (bytes/bandwidth + latency).
func AllGather(n int, bytesPerGPU uint64, bandwidthGBps, latencyUs float64) CollectiveStats {
	bw := bwBytesPerUs(bandwidthGBps)
	nf := float64(n)
	t := (nf - 1) * (float64(bytesPerGPU)/bw + latencyUs)

	totalBytes := bytesPerGPU * uint64(n)
	busBW := EffectiveBandwidthGBs(totalBytes, t)
	eff := 0.0
	if t > 0 {
		eff = clamp01(busBW / bandwidthGBps)
	}

	return CollectiveStats{
		Operation:       "AllGather",
		Algorithm:       string(Ring),
		NumGPUs:         n,
		BytesPerGPU:     bytesPerGPU,
		TimeUs:          t,
		BusBandwidthGBs: busBW,
		Efficiency:      eff,
	}
}

// Broadcast simulates a Tree broadcast: ceil(log2(N)) * (latency + bytes/bandwidth).
func Broadcast(n int, bytes uint64, bandwidthGBps, latencyUs float64) CollectiveStats {
	bw := bwBytesPerUs(bandwidthGBps)
	t := log2Ceil(n) * (latencyUs + float64(bytes)/bw)

	busBW := EffectiveBandwidthGBs(bytes, t)
	eff := 0.0
	if t > 0 {
		eff = clamp01(busBW / bandwidthGBps)
	}

	return CollectiveStats{
		Operation:       "Broadcast",
		Algorithm:       string(Tree),
		NumGPUs:         n,
		BytesPerGPU:     bytes,
		TimeUs:          t,
		BusBandwidthGBs: busBW,
		Efficiency:      eff,
	}
}
