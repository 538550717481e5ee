package lane

import (
	"github.com/ajroetker/go-highway/hwy"
	"github.com/go-gl/mathgl/mgl64"
)

// Mat3 is a lane-wide row-major 3×3 matrix. Inverse inertia tensors are
// symmetric, but the full nine entries are kept so gathered world-space
// tensors need no special casing.
type Mat3 struct {
	XX, XY, XZ Float
	YX, YY, YZ Float
	ZX, ZY, ZZ Float
}

// SetLane writes a scalar matrix into one lane. mgl64.Mat3 is column-major.
func (m *Mat3) SetLane(i int, s mgl64.Mat3) {
	m.XX[i], m.XY[i], m.XZ[i] = s.At(0, 0), s.At(0, 1), s.At(0, 2)
	m.YX[i], m.YY[i], m.YZ[i] = s.At(1, 0), s.At(1, 1), s.At(1, 2)
	m.ZX[i], m.ZY[i], m.ZZ[i] = s.At(2, 0), s.At(2, 1), s.At(2, 2)
}

// Mat3Transform writes m * v into out using fused multiply-adds, one row at
// a time:
//
//	out.x = xx*vx + xy*vy + xz*vz
//	out.y = yx*vx + yy*vy + yz*vz
//	out.z = zx*vx + zy*vy + zz*vz
func Mat3Transform(m *Mat3, v *Vec3, out *Vec3) {
	hwy.ProcessWithTail[float64](Width,
		func(offset int) {
			x := hwy.Load(v.X[offset:])
			y := hwy.Load(v.Y[offset:])
			z := hwy.Load(v.Z[offset:])

			rx := hwy.Mul(x, hwy.Load(m.XX[offset:]))
			rx = hwy.FMA(y, hwy.Load(m.XY[offset:]), rx)
			rx = hwy.FMA(z, hwy.Load(m.XZ[offset:]), rx)

			ry := hwy.Mul(x, hwy.Load(m.YX[offset:]))
			ry = hwy.FMA(y, hwy.Load(m.YY[offset:]), ry)
			ry = hwy.FMA(z, hwy.Load(m.YZ[offset:]), ry)

			rz := hwy.Mul(x, hwy.Load(m.ZX[offset:]))
			rz = hwy.FMA(y, hwy.Load(m.ZY[offset:]), rz)
			rz = hwy.FMA(z, hwy.Load(m.ZZ[offset:]), rz)

			hwy.Store(rx, out.X[offset:])
			hwy.Store(ry, out.Y[offset:])
			hwy.Store(rz, out.Z[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float64](count)
			x := hwy.MaskLoad(mask, v.X[offset:])
			y := hwy.MaskLoad(mask, v.Y[offset:])
			z := hwy.MaskLoad(mask, v.Z[offset:])

			rx := hwy.Mul(x, hwy.MaskLoad(mask, m.XX[offset:]))
			rx = hwy.FMA(y, hwy.MaskLoad(mask, m.XY[offset:]), rx)
			rx = hwy.FMA(z, hwy.MaskLoad(mask, m.XZ[offset:]), rx)

			ry := hwy.Mul(x, hwy.MaskLoad(mask, m.YX[offset:]))
			ry = hwy.FMA(y, hwy.MaskLoad(mask, m.YY[offset:]), ry)
			ry = hwy.FMA(z, hwy.MaskLoad(mask, m.YZ[offset:]), ry)

			rz := hwy.Mul(x, hwy.MaskLoad(mask, m.ZX[offset:]))
			rz = hwy.FMA(y, hwy.MaskLoad(mask, m.ZY[offset:]), rz)
			rz = hwy.FMA(z, hwy.MaskLoad(mask, m.ZZ[offset:]), rz)

			hwy.MaskStore(mask, rx, out.X[offset:])
			hwy.MaskStore(mask, ry, out.Y[offset:])
			hwy.MaskStore(mask, rz, out.Z[offset:])
		},
	)
}
