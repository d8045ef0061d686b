// Command bench sweeps a range of AllReduce message sizes across the Ring,
// Tree, and Direct collective algorithms on a preset cluster, and reports
// the mean and standard deviation of bandwidth efficiency achieved across
// the sweep for each algorithm.
package main

import (
	"flag"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/dimenwarper/gpusim/cluster"
	"github.com/dimenwarper/gpusim/interconnect"
)

var (
	nodes   = flag.Int("nodes", 2, "number of nodes in the H100 DGX cluster")
	minExp  = flag.Int("min-exp", 20, "sweep start: 2^min-exp bytes")
	maxExp  = flag.Int("max-exp", 30, "sweep end: 2^max-exp bytes")
)

func main() {
	flag.Parse()

	c := cluster.H100DGX(*nodes, nil, nil)

	algos := []interconnect.Algorithm{interconnect.Ring, interconnect.Tree, interconnect.Direct}

	fmt.Printf("AllReduce efficiency sweep over %d devices (%d nodes), 2^%d..2^%d bytes\n",
		c.NumDevices(), *nodes, *minExp, *maxExp)

	for _, algo := range algos {
		effs := make([]float64, 0, *maxExp-*minExp+1)
		for exp := *minExp; exp <= *maxExp; exp++ {
			bytes := uint64(1) << uint(exp)
			result := c.AllReduce(bytes, algo)
			effs = append(effs, result.Efficiency)
		}
		mean, std := stat.MeanStdDev(effs, nil)
		fmt.Printf("  %-8s mean_efficiency=%.4f stddev=%.4f samples=%d\n", algo, mean, std, len(effs))
	}
}
