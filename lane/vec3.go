package lane

import (
	"math"

	"github.com/ajroetker/go-highway/hwy"
	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is a lane-wide 3-vector in structure-of-arrays layout.
type Vec3 struct {
	X, Y, Z Float
}

// SplatVec3 broadcasts a scalar vector to all lanes.
func SplatVec3(v mgl64.Vec3) Vec3 {
	return Vec3{X: Splat(v.X()), Y: Splat(v.Y()), Z: Splat(v.Z())}
}

// Lane extracts one lane as a scalar vector.
func (v *Vec3) Lane(i int) mgl64.Vec3 {
	return mgl64.Vec3{v.X[i], v.Y[i], v.Z[i]}
}

// SetLane writes a scalar vector into one lane.
func (v *Vec3) SetLane(i int, s mgl64.Vec3) {
	v.X[i] = s.X()
	v.Y[i] = s.Y()
	v.Z[i] = s.Z()
}

// Vec3Add writes a + b into out.
func Vec3Add(a, b, out *Vec3) {
	Add(&a.X, &b.X, &out.X)
	Add(&a.Y, &b.Y, &out.Y)
	Add(&a.Z, &b.Z, &out.Z)
}

// Vec3Sub writes a - b into out.
func Vec3Sub(a, b, out *Vec3) {
	Sub(&a.X, &b.X, &out.X)
	Sub(&a.Y, &b.Y, &out.Y)
	Sub(&a.Z, &b.Z, &out.Z)
}

// Vec3Neg writes -v into out.
func Vec3Neg(v, out *Vec3) {
	Neg(&v.X, &out.X)
	Neg(&v.Y, &out.Y)
	Neg(&v.Z, &out.Z)
}

// Vec3Mul writes the componentwise product a*b into out.
func Vec3Mul(a, b, out *Vec3) {
	Mul(&a.X, &b.X, &out.X)
	Mul(&a.Y, &b.Y, &out.Y)
	Mul(&a.Z, &b.Z, &out.Z)
}

// Vec3ScaleWide writes v * s (per-lane scale) into out.
func Vec3ScaleWide(v *Vec3, s *Float, out *Vec3) {
	Mul(&v.X, s, &out.X)
	Mul(&v.Y, s, &out.Y)
	Mul(&v.Z, s, &out.Z)
}

// Vec3Scale writes v * s (broadcast scale) into out.
func Vec3Scale(v *Vec3, s float64, out *Vec3) {
	Scale(&v.X, s, &out.X)
	Scale(&v.Y, s, &out.Y)
	Scale(&v.Z, s, &out.Z)
}

// Vec3MulAdd writes v*s + acc into out. out may alias acc.
func Vec3MulAdd(v *Vec3, s *Float, acc, out *Vec3) {
	MulAdd(&v.X, s, &acc.X, &out.X)
	MulAdd(&v.Y, s, &acc.Y, &out.Y)
	MulAdd(&v.Z, s, &acc.Z, &out.Z)
}

// Vec3Dot writes dot(a, b) into out using fused multiply-adds.
func Vec3Dot(a, b *Vec3, out *Float) {
	hwy.ProcessWithTail[float64](Width,
		func(offset int) {
			sum := hwy.Mul(hwy.Load(a.X[offset:]), hwy.Load(b.X[offset:]))
			sum = hwy.FMA(hwy.Load(a.Y[offset:]), hwy.Load(b.Y[offset:]), sum)
			sum = hwy.FMA(hwy.Load(a.Z[offset:]), hwy.Load(b.Z[offset:]), sum)
			hwy.Store(sum, out[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			sum := hwy.Mul(hwy.MaskLoad(mask, a.X[offset:]), hwy.MaskLoad(mask, b.X[offset:]))
			sum = hwy.FMA(hwy.MaskLoad(mask, a.Y[offset:]), hwy.MaskLoad(mask, b.Y[offset:]), sum)
			sum = hwy.FMA(hwy.MaskLoad(mask, a.Z[offset:]), hwy.MaskLoad(mask, b.Z[offset:]), sum)
			hwy.MaskStore(mask, sum, out[offset:])
		},
	)
}

// Vec3Cross writes cross(a, b) into out. out must not alias a or b.
//
// cx = ay*bz - az*by
// cy = az*bx - ax*bz
// cz = ax*by - ay*bx
func Vec3Cross(a, b, out *Vec3) {
	hwy.ProcessWithTail[float64](Width,
		func(offset int) {
			ax := hwy.Load(a.X[offset:])
			ay := hwy.Load(a.Y[offset:])
			az := hwy.Load(a.Z[offset:])
			bx := hwy.Load(b.X[offset:])
			by := hwy.Load(b.Y[offset:])
			bz := hwy.Load(b.Z[offset:])

			hwy.Store(hwy.Sub(hwy.Mul(ay, bz), hwy.Mul(az, by)), out.X[offset:])
			hwy.Store(hwy.Sub(hwy.Mul(az, bx), hwy.Mul(ax, bz)), out.Y[offset:])
			hwy.Store(hwy.Sub(hwy.Mul(ax, by), hwy.Mul(ay, bx)), out.Z[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			ax := hwy.MaskLoad(mask, a.X[offset:])
			ay := hwy.MaskLoad(mask, a.Y[offset:])
			az := hwy.MaskLoad(mask, a.Z[offset:])
			bx := hwy.MaskLoad(mask, b.X[offset:])
			by := hwy.MaskLoad(mask, b.Y[offset:])
			bz := hwy.MaskLoad(mask, b.Z[offset:])

			hwy.MaskStore(mask, hwy.Sub(hwy.Mul(ay, bz), hwy.Mul(az, by)), out.X[offset:])
			hwy.MaskStore(mask, hwy.Sub(hwy.Mul(az, bx), hwy.Mul(ax, bz)), out.Y[offset:])
			hwy.MaskStore(mask, hwy.Sub(hwy.Mul(ax, by), hwy.Mul(ay, bx)), out.Z[offset:])
		},
	)
}

// Vec3LengthSquared writes dot(v, v) into out.
func Vec3LengthSquared(v *Vec3, out *Float) {
	Vec3Dot(v, v, out)
}

// Vec3Length writes |v| into out.
func Vec3Length(v *Vec3, out *Float) {
	var sq Float
	Vec3Dot(v, v, &sq)
	Sqrt(&sq, out)
}

// Vec3Normalize writes v/|v| into out. Lanes with squared length below
// epsilon are left as the zero vector rather than producing NaN.
func Vec3Normalize(v *Vec3, epsilon float64, out *Vec3) {
	var sq Float
	Vec3Dot(v, v, &sq)
	for i := 0; i < Width; i++ {
		if sq[i] < epsilon {
			out.X[i], out.Y[i], out.Z[i] = 0, 0, 0
			continue
		}
		inv := 1 / math.Sqrt(sq[i])
		out.X[i] = v.X[i] * inv
		out.Y[i] = v.Y[i] * inv
		out.Z[i] = v.Z[i] * inv
	}
}

// Vec3Select writes a where mask is set, b elsewhere.
func Vec3Select(mask *Mask, a, b, out *Vec3) {
	Select(mask, &a.X, &b.X, &out.X)
	Select(mask, &a.Y, &b.Y, &out.Y)
	Select(mask, &a.Z, &b.Z, &out.Z)
}

// Vec3DistanceSquared writes |a - b|² into out.
func Vec3DistanceSquared(a, b *Vec3, out *Float) {
	var d Vec3
	Vec3Sub(a, b, &d)
	Vec3Dot(&d, &d, out)
}
