package interconnect_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dimenwarper/gpusim/interconnect"
)

var _ = Describe("P2P transfer", func() {
	It("S4: a 1GiB NVLink H100 transfer takes about 1193us at about 899GB/s effective", func() {
		nvlink := interconnect.NVLinkH100()
		stats := interconnect.P2P(1<<30, nvlink.BandwidthGBps, nvlink.LatencyUs, "NVLink")
		Expect(stats.TimeUs).To(BeNumerically("~", 1193, 5))
		Expect(stats.EffectiveBandwidthGBs).To(BeNumerically("~", 899, 5))
	})

	It("returns a zero-time, full-efficiency result for a zero-byte transfer", func() {
		nvlink := interconnect.NVLinkH100()
		stats := interconnect.P2P(0, nvlink.BandwidthGBps, nvlink.LatencyUs, "NVLink")
		Expect(stats.TimeUs).To(BeZero())
		Expect(stats.Efficiency).To(Equal(1.0))
	})

	It("never reports efficiency above 1 even at tiny payloads where latency dominates", func() {
		nvlink := interconnect.NVLinkH100()
		stats := interconnect.P2P(1, nvlink.BandwidthGBps, nvlink.LatencyUs, "NVLink")
		Expect(stats.Efficiency).To(BeNumerically("<=", 1))
	})

	It("S5: a cross-node RoutedTransfer of 1GiB over NVLink+NDR IB takes about 21480us at about 50GB/s", func() {
		stats := interconnect.RoutedTransfer(1<<30, interconnect.NVLinkH100(), interconnect.InfiniBandNDR())
		Expect(stats.TimeUs).To(BeNumerically("~", 21480, 50))
		Expect(stats.EffectiveBandwidthGBs).To(BeNumerically("~", 50, 2))
		Expect(stats.Channel).To(Equal(interconnect.ChannelInfiniBand))
	})

	It("is monotonically increasing in time as payload size grows", func() {
		nvlink := interconnect.NVLinkH100()
		small := interconnect.P2P(1024, nvlink.BandwidthGBps, nvlink.LatencyUs, "NVLink")
		big := interconnect.P2P(1024*1024, nvlink.BandwidthGBps, nvlink.LatencyUs, "NVLink")
		Expect(big.TimeUs).To(BeNumerically(">", small.TimeUs))
	})
})

var _ = Describe("AllReduce", func() {
	It("S6: Ring AllReduce of 1GiB over 16 H100s routed through NDR InfiniBand takes about 40330us", func() {
		stats := interconnect.AllReduce(interconnect.Ring, 16, 1<<30, 50, 2)
		Expect(stats.TimeUs).To(BeNumerically("~", 40330, 100))
		Expect(stats.Algorithm).To(Equal("Ring"))
	})

	It("never reports efficiency above 1 for any algorithm", func() {
		for _, algo := range []interconnect.Algorithm{interconnect.Ring, interconnect.Tree, interconnect.Direct} {
			stats := interconnect.AllReduce(algo, 8, 1<<20, 900, 1)
			Expect(stats.Efficiency).To(BeNumerically("<=", 1), "algo %s", algo)
			Expect(stats.Efficiency).To(BeNumerically(">=", 0), "algo %s", algo)
		}
	})

	It("Ring AllReduce time grows with participant count for a fixed payload", func() {
		small := interconnect.AllReduceTime(interconnect.Ring, 4, 1<<20, 50, 2)
		big := interconnect.AllReduceTime(interconnect.Ring, 64, 1<<20, 50, 2)
		Expect(big).To(BeNumerically(">", small))
	})

	It("reports zero time for a single participant under Direct", func() {
		t := interconnect.AllReduceTime(interconnect.Direct, 1, 1<<20, 50, 2)
		Expect(t).To(BeZero())
	})
})

var _ = Describe("AllGather and Broadcast", func() {
	It("AllGather time is zero for a single participant", func() {
		stats := interconnect.AllGather(1, 1<<20, 50, 2)
		Expect(stats.TimeUs).To(BeZero())
	})

	It("Broadcast time grows logarithmically, not linearly, with participant count", func() {
		at8 := interconnect.Broadcast(8, 1<<20, 50, 2)
		at64 := interconnect.Broadcast(64, 1<<20, 50, 2)
		// log2(64)/log2(8) == 2, so time should roughly double, not 8x.
		Expect(at64.TimeUs).To(BeNumerically("<", at8.TimeUs*3))
		Expect(at64.TimeUs).To(BeNumerically(">", at8.TimeUs))
	})

	It("keeps AllGather efficiency within [0, 1]", func() {
		stats := interconnect.AllGather(16, 1<<20, 50, 2)
		Expect(stats.Efficiency).To(BeNumerically(">=", 0))
		Expect(stats.Efficiency).To(BeNumerically("<=", 1))
	})
})
