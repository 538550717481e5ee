// Package lane provides the W-wide math kernel used by the narrow phase and
// the constraint solver. All types are structure-of-arrays: one [Width]float64
// per component, so a single value holds W independent problems.
//
// Bulk arithmetic runs through github.com/ajroetker/go-highway/hwy, which
// dispatches to the best available SIMD instructions at runtime. The hwy
// vector width is independent of Width; ProcessWithTail covers the mismatch.
//
// Scalar results are obtained by replicating across lanes (Splat) or by the
// mask reductions Any and All in mask.go.
package lane

import (
	"math"

	"github.com/ajroetker/go-highway/hwy"
)

// Float is one lane-wide scalar: Width independent float64 values.
type Float [Width]float64

// Mask is a lane-wide boolean.
type Mask [Width]bool

// Splat broadcasts a scalar to all lanes.
func Splat(s float64) Float {
	var out Float
	for i := range out {
		out[i] = s
	}
	return out
}

// apply2 runs a two-operand hwy op across the Width lanes.
func apply2(a, b, out *Float, op func(x, y hwy.Vec[float64]) hwy.Vec[float64]) {
	hwy.ProcessWithTail[float64](Width,
		func(offset int) {
			hwy.Store(op(hwy.Load(a[offset:]), hwy.Load(b[offset:])), out[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			va := hwy.MaskLoad(mask, a[offset:])
			vb := hwy.MaskLoad(mask, b[offset:])
			hwy.MaskStore(mask, op(va, vb), out[offset:])
		},
	)
}

// Add writes a + b into out.
func Add(a, b, out *Float) {
	apply2(a, b, out, hwy.Add[float64])
}

// Sub writes a - b into out.
func Sub(a, b, out *Float) {
	apply2(a, b, out, hwy.Sub[float64])
}

// Mul writes a * b into out.
func Mul(a, b, out *Float) {
	apply2(a, b, out, hwy.Mul[float64])
}

// MulAdd writes a*b + acc into out. out may alias acc.
func MulAdd(a, b, acc, out *Float) {
	hwy.ProcessWithTail[float64](Width,
		func(offset int) {
			va := hwy.Load(a[offset:])
			vb := hwy.Load(b[offset:])
			vacc := hwy.Load(acc[offset:])
			hwy.Store(hwy.FMA(va, vb, vacc), out[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			va := hwy.MaskLoad(mask, a[offset:])
			vb := hwy.MaskLoad(mask, b[offset:])
			vacc := hwy.MaskLoad(mask, acc[offset:])
			hwy.MaskStore(mask, hwy.FMA(va, vb, vacc), out[offset:])
		},
	)
}

// Scale writes v * s (s broadcast) into out.
func Scale(v *Float, s float64, out *Float) {
	hwy.ProcessWithTail[float64](Width,
		func(offset int) {
			hwy.Store(hwy.Mul(hwy.Load(v[offset:]), hwy.Set(s)), out[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			hwy.MaskStore(mask, hwy.Mul(hwy.MaskLoad(mask, v[offset:]), hwy.Set(s)), out[offset:])
		},
	)
}

// Neg writes -v into out.
func Neg(v, out *Float) {
	Scale(v, -1, out)
}

// The remaining per-lane operations have no counterpart in the hwy surface
// used by this module (no compare/blend/sqrt ops); they are plain lane loops.

// Select writes a where mask is set, b elsewhere.
func Select(mask *Mask, a, b, out *Float) {
	for i := range out {
		if mask[i] {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
}

// Min writes the per-lane minimum of a and b into out.
func Min(a, b, out *Float) {
	for i := range out {
		out[i] = math.Min(a[i], b[i])
	}
}

// Max writes the per-lane maximum of a and b into out.
func Max(a, b, out *Float) {
	for i := range out {
		out[i] = math.Max(a[i], b[i])
	}
}

// Clamp writes v clamped to [lo, hi] into out.
func Clamp(v *Float, lo, hi float64, out *Float) {
	for i := range out {
		out[i] = math.Min(math.Max(v[i], lo), hi)
	}
}

// Sqrt writes the per-lane square root into out.
func Sqrt(v, out *Float) {
	for i := range out {
		out[i] = math.Sqrt(v[i])
	}
}

// Rcp writes an approximate reciprocal refined by one Newton step.
// x1 = x0 * (2 - v*x0); with x0 = 1/v the step is exact up to rounding,
// which keeps lanes deterministic across hardware for a fixed Width.
func Rcp(v, out *Float) {
	for i := range out {
		x := 1.0 / v[i]
		out[i] = x * (2 - v[i]*x)
	}
}

// RSqrt writes an approximate reciprocal square root refined by one
// Newton step: x1 = x0 * (1.5 - 0.5*v*x0*x0).
func RSqrt(v, out *Float) {
	for i := range out {
		x := 1.0 / math.Sqrt(v[i])
		out[i] = x * (1.5 - 0.5*v[i]*x*x)
	}
}

// Less writes a < b into out.
func Less(a, b *Float, out *Mask) {
	for i := range out {
		out[i] = a[i] < b[i]
	}
}

// LessOrEqual writes a <= b into out.
func LessOrEqual(a, b *Float, out *Mask) {
	for i := range out {
		out[i] = a[i] <= b[i]
	}
}

// Greater writes a > b into out.
func Greater(a, b *Float, out *Mask) {
	for i := range out {
		out[i] = a[i] > b[i]
	}
}
