package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeType identifies a shape table. The narrow phase and the collision
// batcher dispatch purely on this id.
type ShapeType uint8

const (
	ShapeSphere ShapeType = iota
	ShapeBox
	ShapeCompound

	shapeTypeCount
)

// ShapeIndex is a typed index into shape storage.
type ShapeIndex struct {
	Type  ShapeType
	Index int32
}

// Convex is the interface implemented by all convex primitives. Shapes are
// immutable once registered; bounds are computed per query so instances can
// be shared between collidables.
type Convex interface {
	ShapeType() ShapeType
	// Support returns the farthest point of the shape along direction,
	// in the shape's local space.
	Support(direction mgl64.Vec3) mgl64.Vec3
	// ComputeBounds calculates the world-space axis-aligned bounding box
	// for the shape at the given transform.
	ComputeBounds(transform Transform) AABB
	// ComputeMass calculates mass for the shape given a density
	ComputeMass(density float64) float64
	ComputeInertia(mass float64) mgl64.Mat3
	// ContactFeature returns the vertices of the face (or edge, or vertex)
	// most aligned with direction, in local space. Used for manifold clipping.
	ContactFeature(direction mgl64.Vec3) []mgl64.Vec3
}

// Sphere is a spherical collision shape.
type Sphere struct {
	Radius float64
}

func (s Sphere) ShapeType() ShapeType { return ShapeSphere }

func (s Sphere) Support(direction mgl64.Vec3) mgl64.Vec3 {
	length := direction.Len()
	if length < 1e-12 {
		return mgl64.Vec3{s.Radius, 0, 0}
	}
	return direction.Mul(s.Radius / length)
}

// ComputeBounds: a sphere's AABB is unaffected by rotation.
func (s Sphere) ComputeBounds(transform Transform) AABB {
	radiusVec := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{
		Min: transform.Position.Sub(radiusVec),
		Max: transform.Position.Add(radiusVec),
	}
}

// ComputeMass: volume of a sphere = (4/3) * π * r³
func (s Sphere) ComputeMass(density float64) float64 {
	volume := (4.0 / 3.0) * math.Pi * math.Pow(s.Radius, 3)
	return density * volume
}

// ComputeInertia: I = (2/5) * m * r², identical on all axes.
func (s Sphere) ComputeInertia(mass float64) mgl64.Mat3 {
	i := (2.0 / 5.0) * mass * s.Radius * s.Radius
	return mgl64.Mat3{
		i, 0, 0,
		0, i, 0,
		0, 0, i,
	}
}

func (s Sphere) ContactFeature(direction mgl64.Vec3) []mgl64.Vec3 {
	return []mgl64.Vec3{s.Support(direction)}
}

// Box is an oriented box defined by its half-extents.
type Box struct {
	HalfExtents mgl64.Vec3
}

func (b Box) ShapeType() ShapeType { return ShapeBox }

func (b Box) Support(direction mgl64.Vec3) mgl64.Vec3 {
	hx, hy, hz := b.HalfExtents.X(), b.HalfExtents.Y(), b.HalfExtents.Z()

	if direction.X() < 0 {
		hx = -hx
	}
	if direction.Y() < 0 {
		hy = -hy
	}
	if direction.Z() < 0 {
		hz = -hz
	}

	return mgl64.Vec3{hx, hy, hz}
}

func (b Box) ComputeBounds(transform Transform) AABB {
	// The rotated extent along each world axis is |R| * halfExtents.
	r := transform.Rotation.Mat4().Mat3()
	extent := mgl64.Vec3{
		math.Abs(r.At(0, 0))*b.HalfExtents.X() + math.Abs(r.At(0, 1))*b.HalfExtents.Y() + math.Abs(r.At(0, 2))*b.HalfExtents.Z(),
		math.Abs(r.At(1, 0))*b.HalfExtents.X() + math.Abs(r.At(1, 1))*b.HalfExtents.Y() + math.Abs(r.At(1, 2))*b.HalfExtents.Z(),
		math.Abs(r.At(2, 0))*b.HalfExtents.X() + math.Abs(r.At(2, 1))*b.HalfExtents.Y() + math.Abs(r.At(2, 2))*b.HalfExtents.Z(),
	}
	return AABB{
		Min: transform.Position.Sub(extent),
		Max: transform.Position.Add(extent),
	}
}

// ComputeMass: volume = 8 * hx * hy * hz (full dimensions are 2*halfExtents)
func (b Box) ComputeMass(density float64) float64 {
	volume := 8.0 * b.HalfExtents.X() * b.HalfExtents.Y() * b.HalfExtents.Z()
	return density * volume
}

// ComputeInertia: I = (m/12) * (dimension1² + dimension2²) per axis.
func (b Box) ComputeInertia(mass float64) mgl64.Mat3 {
	x := b.HalfExtents.X() * 2
	y := b.HalfExtents.Y() * 2
	z := b.HalfExtents.Z() * 2

	factor := mass / 12.0
	ix := factor * (y*y + z*z)
	iy := factor * (x*x + z*z)
	iz := factor * (x*x + y*y)

	return mgl64.Mat3{
		ix, 0, 0,
		0, iy, 0,
		0, 0, iz,
	}
}

// ContactFeature returns the face whose normal is most aligned with direction.
func (b Box) ContactFeature(direction mgl64.Vec3) []mgl64.Vec3 {
	hx := b.HalfExtents.X()
	hy := b.HalfExtents.Y()
	hz := b.HalfExtents.Z()

	ax, ay, az := math.Abs(direction.X()), math.Abs(direction.Y()), math.Abs(direction.Z())

	switch {
	case ax >= ay && ax >= az:
		sign := math.Copysign(1, direction.X())
		return []mgl64.Vec3{
			{sign * hx, -hy, -hz},
			{sign * hx, -hy, hz},
			{sign * hx, hy, hz},
			{sign * hx, hy, -hz},
		}
	case ay >= az:
		sign := math.Copysign(1, direction.Y())
		return []mgl64.Vec3{
			{-hx, sign * hy, -hz},
			{-hx, sign * hy, hz},
			{hx, sign * hy, hz},
			{hx, sign * hy, -hz},
		}
	default:
		sign := math.Copysign(1, direction.Z())
		return []mgl64.Vec3{
			{-hx, -hy, sign * hz},
			{-hx, hy, sign * hz},
			{hx, hy, sign * hz},
			{hx, -hy, sign * hz},
		}
	}
}

// TangentBasis generates two unit tangents perpendicular to normal.
func TangentBasis(normal mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	var tangent1 mgl64.Vec3
	if math.Abs(normal.X()) > 0.9 {
		tangent1 = mgl64.Vec3{0, 1, 0}
	} else {
		tangent1 = mgl64.Vec3{1, 0, 0}
	}

	tangent1 = tangent1.Sub(normal.Mul(tangent1.Dot(normal))).Normalize()
	tangent2 := normal.Cross(tangent1).Normalize()

	return tangent1, tangent2
}
