// Package memory implements the sparse, page-backed byte stores that model
// GPU memory tiers: high-bandwidth memory (HBM), the shared L2 cache, and
// per-block shared memory (SMEM). None of the tiers model cache-line,
// coherence, or latency behaviour — that is out of scope for this simulator.
package memory

const pageSize = 4096

// Store is a sparse byte-addressable memory region. Reads of addresses that
// were never written return zero bytes; writes materialize pages on demand,
// so a Store never allocates its full nominal capacity up front.
type Store struct {
	name     string
	capacity uint64
	pages    map[uint64][]byte
}

// NewStore creates a Store advertising the given capacity in bytes. Capacity
// is informational only — the backing map never pre-allocates it.
func NewStore(name string, capacity uint64) *Store {
	return &Store{name: name, capacity: capacity, pages: make(map[uint64][]byte)}
}

// Name returns the store's label, e.g. "hbm" or "l2".
func (s *Store) Name() string { return s.name }

// Capacity returns the store's advertised capacity in bytes.
func (s *Store) Capacity() uint64 { return s.capacity }

func pageOf(addr uint64) (page uint64, offset uint64) {
	page = (addr / pageSize) * pageSize
	offset = addr - page
	return
}

// Read returns len bytes starting at offset. Unmapped bytes read as zero.
func (s *Store) Read(offset uint64, length int) []byte {
	out := make([]byte, length)
	for i := 0; i < length; {
		addr := offset + uint64(i)
		page, pageOff := pageOf(addr)
		buf, ok := s.pages[page]
		if !ok {
			// Skip to the end of this unmapped page.
			skip := pageSize - pageOff
			if uint64(i)+skip > uint64(length) {
				skip = uint64(length) - uint64(i)
			}
			i += int(skip)
			continue
		}
		n := copy(out[i:], buf[pageOff:])
		i += n
	}
	return out
}

// Write stores data starting at offset, materializing pages on demand.
func (s *Store) Write(offset uint64, data []byte) {
	for i := 0; i < len(data); {
		addr := offset + uint64(i)
		page, pageOff := pageOf(addr)
		buf, ok := s.pages[page]
		if !ok {
			buf = make([]byte, pageSize)
			s.pages[page] = buf
		}
		n := copy(buf[pageOff:], data[i:])
		i += n
	}
}

// ResidentBytes returns the number of bytes materialized into pages so far —
// useful for reporting actual host memory consumption of a sparse store.
func (s *Store) ResidentBytes() int {
	return len(s.pages) * pageSize
}

// HBM is the GPU's main, high-bandwidth memory.
type HBM struct {
	*Store
	BandwidthBytesPerSec uint64
}

// NewHBM creates an HBM store of the given nominal capacity.
func NewHBM(capacityBytes uint64) *HBM {
	return &HBM{Store: NewStore("hbm", capacityBytes), BandwidthBytesPerSec: 3_400_000_000_000}
}

// L2Cache is the GPU-wide cache shared by all SMs.
type L2Cache struct {
	*Store
}

// NewL2Cache creates an L2 store of the given nominal capacity.
func NewL2Cache(capacityBytes uint64) *L2Cache {
	return &L2Cache{Store: NewStore("l2", capacityBytes)}
}

// SMEM is per-SM scratch memory, scoped to one resident block at a time.
// Two SMEM handles for different blocks never alias each other, even on the
// same SM, because each resident block gets its own backing Store.
type SMEM struct {
	*Store
}

// NewSMEM creates an SMEM region sized for a single block's declared demand.
func NewSMEM(bytes uint32) *SMEM {
	if bytes == 0 {
		bytes = 1
	}
	return &SMEM{Store: NewStore("smem", uint64(bytes))}
}
