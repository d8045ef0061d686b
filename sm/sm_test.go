package sm_test

import (
	"fmt"
	"testing"

	"github.com/dimenwarper/gpusim/occupancy"
	"github.com/dimenwarper/gpusim/sm"
	"github.com/dimenwarper/gpusim/warp"
)

func roster(n int) []*warp.Warp {
	out := make([]*warp.Warp, n)
	for i := range out {
		out[i] = warp.NewWarp(i, "b", 0, i*32, 32)
	}
	return out
}

func TestAdmitReleaseRestoresCounters(t *testing.T) {
	cfg := occupancy.H100()
	pool := sm.NewPool(cfg)
	res := occupancy.KernelResources{ThreadsPerBlock: 128, RegsPerThread: 32, SmemBytes: 4096}
	pool.BeginLaunch(res, 16)

	s := pool.SM(0)
	before := s.HeadroomScore()

	ok := s.TryAdmit("blk-0", roster(4))
	if !ok {
		t.Fatal("expected first admit to succeed")
	}
	mid := s.HeadroomScore()
	if mid >= before {
		t.Fatalf("headroom should drop after admit: before=%f mid=%f", before, mid)
	}

	s.Release("blk-0")
	after := s.HeadroomScore()
	if after != before {
		t.Fatalf("headroom after release = %f, want exactly %f (restored)", after, before)
	}
}

func TestAdmitFailsPastMaxBlocksThisLaunch(t *testing.T) {
	cfg := occupancy.H100()
	pool := sm.NewPool(cfg)
	res := occupancy.KernelResources{ThreadsPerBlock: 32}
	pool.BeginLaunch(res, 1) // occupancy caps this launch to 1 block/SM

	s := pool.SM(0)
	if !s.TryAdmit("a", roster(1)) {
		t.Fatal("first admit within cap should succeed")
	}
	if s.TryAdmit("b", roster(1)) {
		t.Fatal("second admit should fail: occupancy cap is 1 block/SM for this launch")
	}
}

func TestReleaseOfUnknownBlockPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Release of an unknown block id to panic")
		}
	}()
	cfg := occupancy.H100()
	pool := sm.NewPool(cfg)
	pool.BeginLaunch(occupancy.KernelResources{ThreadsPerBlock: 32}, 16)
	pool.SM(0).Release("nonexistent")
}

// TestPoolSpreadsAdmissionsAcrossSMs exercises the btree-backed "highest
// headroom" ranking: since Admit always picks the least-loaded SM and
// reindexes after every admission, repeated admissions across identically
// configured SMs should balance out near-evenly rather than piling onto SM 0.
func TestPoolSpreadsAdmissionsAcrossSMs(t *testing.T) {
	cfg := occupancy.H100()
	cfg.NumSMs = 4
	pool := sm.NewPool(cfg)
	pool.BeginLaunch(occupancy.KernelResources{ThreadsPerBlock: 128}, 16)

	counts := make(map[int]int)
	for i := 0; i < 16; i++ {
		admitted, ok := pool.Admit(idOf("blk", i), roster(4))
		if !ok {
			t.Fatalf("admit %d unexpectedly failed", i)
		}
		counts[admitted.ID]++
	}
	for id, c := range counts {
		if c != 4 {
			t.Fatalf("sm %d admitted %d blocks, want exactly 4 (even spread across 4 SMs)", id, c)
		}
	}
	if len(counts) != 4 {
		t.Fatalf("expected all 4 SMs to receive blocks, got %d distinct SMs", len(counts))
	}
}

func idOf(prefix string, i int) string {
	return fmt.Sprintf("%s-%d", prefix, i)
}

func TestActiveFlagsReflectResidency(t *testing.T) {
	cfg := occupancy.H100()
	cfg.NumSMs = 2
	pool := sm.NewPool(cfg)
	pool.BeginLaunch(occupancy.KernelResources{ThreadsPerBlock: 32}, 16)

	flags := pool.ActiveFlags()
	for i, f := range flags {
		if f {
			t.Fatalf("sm %d should start idle", i)
		}
	}

	admitted, ok := pool.Admit("blk", roster(1))
	if !ok {
		t.Fatal("admit should succeed")
	}
	flags = pool.ActiveFlags()
	if !flags[admitted.ID] {
		t.Fatalf("sm %d should be active after admit", admitted.ID)
	}
}
