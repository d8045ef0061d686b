// Package tensorcore models the dedicated matrix multiply-accumulate (MMA)
// units present in each SM subpartition on NVIDIA architectures since
// Volta. Tensor cores are a compute primitive a kernel body may invoke
// through ThreadCtx; they do not participate in occupancy or warp-
// scheduling accounting and carry no cycle-accurate timing model.
package tensorcore

import "fmt"

// Precision is the numeric format a tensor core operates on.
type Precision int

const (
	FP8 Precision = iota
	FP16
	BF16
	TF32
	FP64
)

func (p Precision) String() string {
	switch p {
	case FP8:
		return "fp8"
	case FP16:
		return "fp16"
	case BF16:
		return "bf16"
	case TF32:
		return "tf32"
	case FP64:
		return "fp64"
	default:
		return "unknown"
	}
}

// Core is one tensor core unit, fixed to a single precision for its
// lifetime — matching real hardware, where precision is selected per
// instruction encoding rather than per unit, but this simulator only needs
// one active precision per invocation site.
type Core struct {
	Precision Precision
}

// New returns a tensor core defaulted to BF16, the common training precision.
func New() *Core {
	return &Core{Precision: BF16}
}

// MMA computes D = A*B + C for row-major matrices of the given dimensions.
// A is m×k, B is k×n, C and D are m×n.
func (c *Core) MMA(a, b, cIn []float32, m, n, k int) ([]float32, error) {
	if len(a) != m*k {
		return nil, fmt.Errorf("tensorcore: A has %d elements, want %d", len(a), m*k)
	}
	if len(b) != k*n {
		return nil, fmt.Errorf("tensorcore: B has %d elements, want %d", len(b), k*n)
	}
	if len(cIn) != m*n {
		return nil, fmt.Errorf("tensorcore: C has %d elements, want %d", len(cIn), m*n)
	}

	d := make([]float32, m*n)
	copy(d, cIn)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc float32
			for l := 0; l < k; l++ {
				acc += a[i*k+l] * b[l*n+j]
			}
			d[i*n+j] += acc
		}
	}
	return d, nil
}
