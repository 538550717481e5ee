// Package support provides lane-wide directional support queries: per-shape
// farthest-point mappings and the Minkowski-difference sampler consumed by
// the depth refiner. One bundle carries Width independent pair instances of
// the same shape-type pair; lanes never interact.
package support

import (
	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/lane"
)

// Points is a lane-wide support mapping in the shape's local space.
type Points interface {
	// Support writes the farthest point along direction for each lane.
	// Directions need not be normalized; zero directions produce an
	// arbitrary surface point rather than NaN.
	Support(direction *lane.Vec3, out *lane.Vec3)
}

// SphereBundle carries Width spheres.
type SphereBundle struct {
	Radius lane.Float
}

// Gather loads one sphere into a lane.
func (s *SphereBundle) Gather(i int, sphere actor.Sphere) {
	s.Radius[i] = sphere.Radius
}

func (s *SphereBundle) Support(direction *lane.Vec3, out *lane.Vec3) {
	var unit lane.Vec3
	lane.Vec3Normalize(direction, 1e-24, &unit)
	// A zero direction normalized to zero still needs a surface point.
	for i := 0; i < lane.Width; i++ {
		if unit.X[i] == 0 && unit.Y[i] == 0 && unit.Z[i] == 0 {
			unit.X[i] = 1
		}
	}
	lane.Vec3ScaleWide(&unit, &s.Radius, out)
}

// BoxBundle carries Width boxes.
type BoxBundle struct {
	HalfWidth  lane.Float
	HalfHeight lane.Float
	HalfLength lane.Float
}

// Gather loads one box into a lane.
func (b *BoxBundle) Gather(i int, box actor.Box) {
	b.HalfWidth[i] = box.HalfExtents.X()
	b.HalfHeight[i] = box.HalfExtents.Y()
	b.HalfLength[i] = box.HalfExtents.Z()
}

func (b *BoxBundle) Support(direction *lane.Vec3, out *lane.Vec3) {
	var negWidth, negHeight, negLength lane.Float
	lane.Neg(&b.HalfWidth, &negWidth)
	lane.Neg(&b.HalfHeight, &negHeight)
	lane.Neg(&b.HalfLength, &negLength)

	// Zero components pick the positive face, matching the scalar mapping.
	var zero lane.Float
	var positive lane.Mask
	lane.LessOrEqual(&zero, &direction.X, &positive)
	lane.Select(&positive, &b.HalfWidth, &negWidth, &out.X)
	lane.LessOrEqual(&zero, &direction.Y, &positive)
	lane.Select(&positive, &b.HalfHeight, &negHeight, &out.Y)
	lane.LessOrEqual(&zero, &direction.Z, &positive)
	lane.Select(&positive, &b.HalfLength, &negLength, &out.Z)
}

// PairPoses expresses B's pose in A's local frame, one pair per lane.
type PairPoses struct {
	OrientationB lane.Quat
	OffsetB      lane.Vec3
}

// Gather loads one pair's world poses into a lane, localizing B to A's frame.
func (p *PairPoses) Gather(i int, poseA, poseB actor.Transform) {
	local := poseA.LocalTo(poseB)
	p.OrientationB.SetLane(i, local.Rotation)
	p.OffsetB.SetLane(i, local.Position)
}

// Minkowski samples the Minkowski difference A − B in A's local frame:
//
//	support_A(d) − (R_{B→A}·support_B(−R_{A→B}·d) + offset_{B in A})
type Minkowski struct {
	A     Points
	B     Points
	Poses *PairPoses
}

// Sample writes the Minkowski-difference support along direction into out.
func (m *Minkowski) Sample(direction *lane.Vec3, out *lane.Vec3) {
	var supportA lane.Vec3
	m.A.Support(direction, &supportA)

	var negated, localDirection lane.Vec3
	lane.Vec3Neg(direction, &negated)
	lane.QuatRotateInverse(&m.Poses.OrientationB, &negated, &localDirection)

	var supportB, supportBInA lane.Vec3
	m.B.Support(&localDirection, &supportB)
	lane.QuatRotate(&m.Poses.OrientationB, &supportB, &supportBInA)
	lane.Vec3Add(&supportBInA, &m.Poses.OffsetB, &supportBInA)

	lane.Vec3Sub(&supportA, &supportBInA, out)
}
