package support

import (
	"math"
	"testing"

	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/lane"
	"github.com/go-gl/mathgl/mgl64"
)

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestSphereBundleSupport(t *testing.T) {
	var bundle SphereBundle
	for i := 0; i < lane.Width; i++ {
		bundle.Gather(i, actor.Sphere{Radius: float64(i + 1)})
	}

	direction := lane.SplatVec3(mgl64.Vec3{0, 0, 2})
	var out lane.Vec3
	bundle.Support(&direction, &out)

	for i := 0; i < lane.Width; i++ {
		if !approxEqual(out.Z[i], float64(i+1), 1e-12) {
			t.Errorf("lane %d: expected z = %v, got %v", i, i+1, out.Z[i])
		}
	}
}

func TestBoxBundleSupport(t *testing.T) {
	box := actor.Box{HalfExtents: mgl64.Vec3{1, 2, 3}}
	var bundle BoxBundle
	for i := 0; i < lane.Width; i++ {
		bundle.Gather(i, box)
	}

	direction := lane.SplatVec3(mgl64.Vec3{0.5, -1, 2})
	var out lane.Vec3
	bundle.Support(&direction, &out)

	for i := 0; i < lane.Width; i++ {
		got := out.Lane(i)
		want := box.Support(mgl64.Vec3{0.5, -1, 2})
		if got != want {
			t.Errorf("lane %d: expected %v, got %v", i, want, got)
		}
	}
}

// The support of A−B must be extremal: dot(sample, d) equals the maximum of
// dot(q, d) over the Minkowski difference, within floating epsilon.
func TestMinkowskiSampleIsExtremal(t *testing.T) {
	sphereA := actor.Sphere{Radius: 1}
	sphereB := actor.Sphere{Radius: 0.5}
	poseA := actor.NewTransformAt(mgl64.Vec3{0, 0, 0}, mgl64.QuatIdent())
	poseB := actor.NewTransformAt(mgl64.Vec3{1.2, 0.3, -0.4}, mgl64.QuatRotate(0.7, mgl64.Vec3{0, 1, 0}))

	var bundleA, bundleB SphereBundle
	var poses PairPoses
	for i := 0; i < lane.Width; i++ {
		bundleA.Gather(i, sphereA)
		bundleB.Gather(i, sphereB)
		poses.Gather(i, poseA, poseB)
	}
	minkowski := Minkowski{A: &bundleA, B: &bundleB, Poses: &poses}

	directions := []mgl64.Vec3{
		{1, 0, 0}, {0, -1, 0}, {0.6, 0.8, 0}, {-0.3, 0.5, 0.8},
	}
	for _, scalarDirection := range directions {
		direction := lane.SplatVec3(scalarDirection)
		var sample lane.Vec3
		minkowski.Sample(&direction, &sample)

		// For two spheres the extremum is analytic:
		// max dot = dot(centerA − centerB, d) + (rA + rB)·|d|
		offset := poseA.Position.Sub(poseB.Position)
		want := offset.Dot(scalarDirection) + (sphereA.Radius+sphereB.Radius)*scalarDirection.Len()

		for i := 0; i < lane.Width; i++ {
			got := sample.Lane(i).Dot(scalarDirection)
			if !approxEqual(got, want, 1e-9) {
				t.Errorf("lane %d, direction %v: expected extremal dot %v, got %v",
					i, scalarDirection, want, got)
			}
		}
	}
}

func TestMinkowskiMixedLanes(t *testing.T) {
	// A single bundle may carry different pair instances of the same type.
	var bundleA, bundleB SphereBundle
	var poses PairPoses
	for i := 0; i < lane.Width; i++ {
		bundleA.Gather(i, actor.Sphere{Radius: 1})
		bundleB.Gather(i, actor.Sphere{Radius: 1})
		separation := 1.5 + float64(i)
		poses.Gather(i,
			actor.NewTransform(),
			actor.NewTransformAt(mgl64.Vec3{separation, 0, 0}, mgl64.QuatIdent()),
		)
	}
	minkowski := Minkowski{A: &bundleA, B: &bundleB, Poses: &poses}

	direction := lane.SplatVec3(mgl64.Vec3{1, 0, 0})
	var sample lane.Vec3
	minkowski.Sample(&direction, &sample)

	for i := 0; i < lane.Width; i++ {
		want := 2.0 - (1.5 + float64(i))
		if !approxEqual(sample.X[i], want, 1e-12) {
			t.Errorf("lane %d: expected %v, got %v", i, want, sample.X[i])
		}
	}
}
