// Package metrics implements the live-metrics publication contract: an
// atomic temp-file-then-rename file bus that lets an external visualizer
// attach to a running simulation at any time, plus an optional read-only
// HTTP mirror of the same snapshot.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultPath is the advertised metrics file location.
const DefaultPath = "/tmp/gpusim_live.json"

// Status is the lifecycle state of the launch a snapshot describes.
type Status string

const (
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
)

// Snapshot is one immutable view of a running launch, in the metrics file's
// JSON schema.
type Snapshot struct {
	Seq         int64    `json:"seq"`
	Kernel      string   `json:"kernel"`
	Policy      string   `json:"policy"`
	Status      Status   `json:"status"`
	Grid        [3]uint32 `json:"grid"`
	Block       [3]uint32 `json:"block"`
	BlocksDone  uint32   `json:"blocks_done"`
	BlocksTotal uint32   `json:"blocks_total"`
	Warps       uint32   `json:"warps"`
	Threads     uint32   `json:"threads"`
	Occupancy   float64  `json:"occupancy"`
	Limiter     string   `json:"limiter"`
	SMActive    []bool   `json:"sm_active"`
}

// Validate reports a schema failure — used by readers to discard a
// partially-written snapshot caught mid-rename. A valid snapshot always has
// a positive sequence number and a status of Running or Complete.
func (s Snapshot) Validate() error {
	if s.Seq <= 0 {
		return fmt.Errorf("metrics: invalid seq %d", s.Seq)
	}
	if s.Status != StatusRunning && s.Status != StatusComplete {
		return fmt.Errorf("metrics: invalid status %q", s.Status)
	}
	return nil
}

// Bus is the producer side of the live-metrics contract: it owns the
// monotonic sequence counter and writes each snapshot atomically.
type Bus struct {
	path   string
	seq    int64
	logger *zap.Logger

	mu     sync.RWMutex
	latest *Snapshot
}

// NewBus creates a Bus writing to path. A nil logger disables logging.
func NewBus(path string, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{path: path, logger: logger}
}

// Publish assigns the next sequence number to the snapshot and writes it
// atomically (temp file + rename on the same filesystem). Write failures
// are logged and otherwise ignored — metrics I/O failure is non-fatal to
// the simulation.
func (b *Bus) Publish(s Snapshot) {
	s.Seq = atomic.AddInt64(&b.seq, 1)

	b.mu.Lock()
	b.latest = &s
	b.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		b.logger.Warn("metrics: marshal failed", zap.Error(err))
		return
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		b.logger.Warn("metrics: write failed", zap.String("path", tmp), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, b.path); err != nil {
		b.logger.Warn("metrics: rename failed", zap.String("path", b.path), zap.Error(err))
	}
}

// Latest returns the most recently published snapshot, or nil if none has
// been published yet. Used by the HTTP mirror to avoid re-reading the file.
func (b *Bus) Latest() *Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest
}

// ServeHTTP starts a read-only HTTP mirror of the bus's latest snapshot on
// addr (e.g. ":7871"), returning once the listener is accepting connections
// or an error if it never could. It runs until the process exits; it is
// never the system of record — the file bus remains authoritative.
func (b *Bus) ServeHTTP(addr string) error {
	router := mux.NewRouter()
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		snap := b.Latest()
		if snap == nil {
			http.Error(w, "no snapshot published yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	ln, err := newListener(addr)
	if err != nil {
		return err
	}
	go func() {
		if err := http.Serve(ln, router); err != nil {
			b.logger.Warn("metrics: http mirror stopped", zap.Error(err))
		}
	}()
	return nil
}

// Reader is the consumer side of the live-metrics contract: it polls the
// file at the advertised path and re-reads it whenever the sequence number
// increases, discarding anything that fails schema validation.
type Reader struct {
	path    string
	lastSeq int64
}

// NewReader creates a Reader for path with no prior observed sequence.
func NewReader(path string) *Reader { return &Reader{path: path} }

// Poll reads the current snapshot. It returns (nil, false, nil) if the
// file is absent or unreadable, or if its seq is not strictly greater than
// the last one observed: nothing new to show. It returns (nil, false, err)
// if the contents fail to parse or fail schema validation, as a partial
// read does; that snapshot is discarded and the high-water mark is left
// unchanged. A true second return value means the returned snapshot is new
// and the Reader's high-water mark has advanced.
func (r *Reader) Poll() (*Snapshot, bool, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, false, nil
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("metrics: partial read discarded: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, false, err
	}
	if s.Seq <= r.lastSeq {
		return nil, false, nil
	}
	r.lastSeq = s.Seq
	return &s, true, nil
}
