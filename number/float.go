package number

import (
	"math"

	"github.com/chewxy/math32"
)

// DescribeF32 decodes the raw bits of an f32.const immediate into its
// float32 value for display. The engine itself never executes f32
// arithmetic (see Non-goals); this exists solely so introspection tooling
// can render a module's non-i32 globals and constants meaningfully instead
// of printing raw bit patterns.
func DescribeF32(bits uint32) float32 {
	return math32.Float32frombits(bits)
}

// IsF32NaN reports whether bits encode a NaN payload.
func IsF32NaN(bits uint32) bool {
	return math32.IsNaN(DescribeF32(bits))
}

// DescribeF64 decodes the raw bits of an f64.const immediate into its
// float64 value for display, for the same introspection-only purpose as
// DescribeF32. float64 falls outside math32's scope, so this uses the
// standard library directly.
func DescribeF64(bits uint64) float64 {
	return math.Float64frombits(bits)
}

// IsF64NaN reports whether bits encode a NaN payload.
func IsF64NaN(bits uint64) bool {
	return math.IsNaN(DescribeF64(bits))
}
