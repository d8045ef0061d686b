// Command gpusim-viz attaches to a running simulation's live metrics file
// and prints each new snapshot as it arrives. It never starts or owns a
// simulation — it is a pure consumer of the §4.8 file bus and can attach at
// any point in a launch's lifetime. It exits 0 when the user quits (typing
// "q" then Enter, or Ctrl+C).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tebeka/atexit"

	"github.com/dimenwarper/gpusim/metrics"
)

var (
	path = flag.String("path", metrics.DefaultPath, "metrics file path to poll")
	poll = flag.Duration("poll", 200*time.Millisecond, "poll cadence")
)

func main() {
	flag.Parse()

	quit := make(chan struct{})
	go watchQuit(quit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	reader := metrics.NewReader(*path)
	ticker := time.NewTicker(*poll)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			color.Yellow("quit")
			atexit.Exit(0)
			return
		case <-sigCh:
			color.Yellow("interrupted")
			atexit.Exit(0)
			return
		case <-ticker.C:
			snap, fresh, err := reader.Poll()
			if err != nil {
				color.Red("discarded partial read: %v", err)
				continue
			}
			if !fresh {
				continue
			}
			render(snap)
		}
	}
}

func watchQuit(quit chan<- struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "q" {
			close(quit)
			return
		}
	}
}

func render(s *metrics.Snapshot) {
	bar := color.CyanString("[seq %d]", s.Seq)
	fmt.Printf("%s %-10s policy=%-8s blocks=%d/%d warps=%d threads=%d occ=%.2f limiter=%q\n",
		bar, s.Status, s.Policy, s.BlocksDone, s.BlocksTotal, s.Warps, s.Threads, s.Occupancy, s.Limiter)
	if s.Status == metrics.StatusComplete {
		color.Green("launch complete")
	}
}
