package constraint

import (
	"math"
	"testing"

	"github.com/akmonengine/talon/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// regularTetrahedron returns four dynamic bodies at the vertices of a
// regular tetrahedron with unit side length.
func regularTetrahedron(bodies *actor.Bodies, shapes *actor.Shapes) [4]actor.Handle {
	vertices := [4]mgl64.Vec3{
		{0, 0, 0},
		{1, 0, 0},
		{0.5, math.Sqrt(3) / 2, 0},
		{0.5, math.Sqrt(3) / 6, math.Sqrt(2.0 / 3.0)},
	}
	var handles [4]actor.Handle
	for i, vertex := range vertices {
		handles[i] = addSphereBody(bodies, shapes, vertex, mgl64.Vec3{}, actor.MobilityDynamic)
	}
	return handles
}

func TestVolumeConstraintAtRest(t *testing.T) {
	bodies, shapes := newTestWorld(t)
	handles := regularTetrahedron(bodies, shapes)

	// Scaled volume is six times the geometric volume; a unit regular
	// tetrahedron encloses sqrt(2)/12.
	target := 6 * (math.Sqrt(2) / 12)

	solver := NewSolver(bodies, 8)
	handle := solver.AddVolume(&VolumeDescription{
		BodyA:              handles[0],
		BodyB:              handles[1],
		BodyC:              handles[2],
		BodyD:              handles[3],
		TargetScaledVolume: target,
		Springs:            SpringSettings{Frequency: 10, DampingRatio: 1},
	})

	solver.Solve(testTimestep, 8, nil)

	// At rest at the target volume: zero bias, zero velocity, so the
	// accumulated impulse must stay at zero.
	if impulse := solver.VolumeImpulse(handle); math.Abs(impulse) > 1e-9 {
		t.Errorf("expected zero accumulated impulse at rest, got %v", impulse)
	}
	for i, bodyHandle := range handles {
		if velocity := bodies.Lookup(bodyHandle).Velocity; velocity.Len() > 1e-9 {
			t.Errorf("body %d gained velocity at rest: %v", i, velocity)
		}
	}
}

func TestVolumeConstraintRestoresVolume(t *testing.T) {
	bodies, shapes := newTestWorld(t)
	handles := regularTetrahedron(bodies, shapes)

	// Demand a larger volume than the tetrahedron currently spans: the
	// solver must push the vertices outward.
	target := 6 * (math.Sqrt(2) / 12) * 1.5

	solver := NewSolver(bodies, 8)
	solver.AddVolume(&VolumeDescription{
		BodyA:              handles[0],
		BodyB:              handles[1],
		BodyC:              handles[2],
		BodyD:              handles[3],
		TargetScaledVolume: target,
		Springs:            SpringSettings{Frequency: 10, DampingRatio: 1},
	})

	solver.Solve(testTimestep, 8, nil)

	// The scaled-volume velocity d/dt[(ab×ac)·ad] must be positive.
	positions := [4]mgl64.Vec3{}
	velocities := [4]mgl64.Vec3{}
	for i, bodyHandle := range handles {
		positions[i] = bodies.Lookup(bodyHandle).Pose.Position
		velocities[i] = bodies.Lookup(bodyHandle).Velocity
	}
	ab := positions[1].Sub(positions[0])
	ac := positions[2].Sub(positions[0])
	ad := positions[3].Sub(positions[0])
	jacobianB := ac.Cross(ad)
	jacobianC := ad.Cross(ab)
	jacobianD := ab.Cross(ac)
	jacobianA := jacobianB.Add(jacobianC).Add(jacobianD).Mul(-1)

	rate := jacobianA.Dot(velocities[0]) + jacobianB.Dot(velocities[1]) +
		jacobianC.Dot(velocities[2]) + jacobianD.Dot(velocities[3])
	if rate <= 0 {
		t.Errorf("expected growing volume, got rate %v", rate)
	}
}
