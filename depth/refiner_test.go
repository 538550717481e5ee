package depth

import (
	"math"
	"testing"

	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/lane"
	"github.com/akmonengine/talon/support"
	"github.com/go-gl/mathgl/mgl64"
)

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// spherePairSampler builds a Width-wide sphere-sphere Minkowski sampler with
// identical pairs in every lane.
func spherePairSampler(radiusA, radiusB float64, poseA, poseB actor.Transform) (*support.Minkowski, lane.Vec3) {
	var bundleA, bundleB support.SphereBundle
	poses := &support.PairPoses{}
	for i := 0; i < lane.Width; i++ {
		bundleA.Gather(i, actor.Sphere{Radius: radiusA})
		bundleB.Gather(i, actor.Sphere{Radius: radiusB})
		poses.Gather(i, poseA, poseB)
	}
	return &support.Minkowski{A: &bundleA, B: &bundleB, Poses: poses}, poses.OffsetB
}

func TestRefineUnitSpheres(t *testing.T) {
	// Two unit spheres with centers 1.9 apart overlap by 0.1 along x.
	poseA := actor.NewTransform()
	poseB := actor.NewTransformAt(mgl64.Vec3{1.9, 0, 0}, mgl64.QuatIdent())
	sampler, offsetB := spherePairSampler(1, 1, poseA, poseB)

	guessNormal := lane.SplatVec3(mgl64.Vec3{1, 0, 0})
	guessDepth := lane.Splat(math.Inf(1))
	var inactive lane.Mask
	var result Result

	Refine(sampler, &offsetB, &guessNormal, &guessDepth, &inactive, DefaultConfig(), &result)

	for i := 0; i < lane.Width; i++ {
		if !approxEqual(result.Depth[i], 0.1, 1e-4) {
			t.Errorf("lane %d: expected depth 0.1, got %v", i, result.Depth[i])
		}
		normal := result.Normal.Lane(i)
		if !approxEqual(normal.X(), 1, 1e-4) || !approxEqual(normal.Y(), 0, 1e-4) {
			t.Errorf("lane %d: expected normal (1, 0, 0), got %v", i, normal)
		}
	}
}

func TestRefineRecoversFromBadGuess(t *testing.T) {
	poseA := actor.NewTransform()
	poseB := actor.NewTransformAt(mgl64.Vec3{1.9, 0, 0}, mgl64.QuatIdent())
	sampler, offsetB := spherePairSampler(1, 1, poseA, poseB)

	// Perpendicular guess: the search has to discover the x axis itself.
	guessNormal := lane.SplatVec3(mgl64.Vec3{0, 1, 0})
	guessDepth := lane.Splat(math.Inf(1))
	var inactive lane.Mask
	var result Result

	Refine(sampler, &offsetB, &guessNormal, &guessDepth, &inactive, DefaultConfig(), &result)

	for i := 0; i < lane.Width; i++ {
		if !approxEqual(result.Depth[i], 0.1, 1e-3) {
			t.Errorf("lane %d: expected depth 0.1, got %v", i, result.Depth[i])
		}
		normal := result.Normal.Lane(i)
		if !approxEqual(normal.X(), 1, 1e-3) {
			t.Errorf("lane %d: expected normal along +x, got %v", i, normal)
		}
	}
}

func TestRefineSphereOnGroundBox(t *testing.T) {
	// A thin 10×0.1×10 ground slab whose top face sits at y = -0.05, with a
	// unit sphere centered at (0, 0.9, 0): the sphere's lowest point reaches
	// y = -0.1, overlapping the slab by 0.05 straight up.
	ground := actor.Box{HalfExtents: mgl64.Vec3{5, 0.05, 5}}
	groundPose := actor.NewTransformAt(mgl64.Vec3{0, -0.1, 0}, mgl64.QuatIdent())
	spherePose := actor.NewTransformAt(mgl64.Vec3{0, 0.9, 0}, mgl64.QuatIdent())

	var boxBundle support.BoxBundle
	var sphereBundle support.SphereBundle
	poses := &support.PairPoses{}
	for i := 0; i < lane.Width; i++ {
		boxBundle.Gather(i, ground)
		sphereBundle.Gather(i, actor.Sphere{Radius: 1})
		poses.Gather(i, groundPose, spherePose)
	}
	sampler := &support.Minkowski{A: &boxBundle, B: &sphereBundle, Poses: poses}

	guessNormal := lane.SplatVec3(mgl64.Vec3{0, 1, 0})
	guessDepth := lane.Splat(math.Inf(1))
	var inactive lane.Mask
	var result Result

	Refine(sampler, &poses.OffsetB, &guessNormal, &guessDepth, &inactive, DefaultConfig(), &result)

	for i := 0; i < lane.Width; i++ {
		if !approxEqual(result.Depth[i], 0.05, 1e-4) {
			t.Errorf("lane %d: expected depth 0.05, got %v", i, result.Depth[i])
		}
		normal := result.Normal.Lane(i)
		if !approxEqual(normal.Y(), 1, 1e-3) {
			t.Errorf("lane %d: expected normal (0, 1, 0), got %v", i, normal)
		}
	}
}

func TestRefineSeparatedSpheres(t *testing.T) {
	// Centers 2.5 apart: separated by 0.5, so depth must come back negative.
	poseA := actor.NewTransform()
	poseB := actor.NewTransformAt(mgl64.Vec3{2.5, 0, 0}, mgl64.QuatIdent())
	sampler, offsetB := spherePairSampler(1, 1, poseA, poseB)

	guessNormal := lane.SplatVec3(mgl64.Vec3{1, 0, 0})
	guessDepth := lane.Splat(math.Inf(1))
	var inactive lane.Mask
	var result Result

	config := DefaultConfig()
	config.MinimumDepthThreshold = -10
	Refine(sampler, &offsetB, &guessNormal, &guessDepth, &inactive, config, &result)

	for i := 0; i < lane.Width; i++ {
		if !approxEqual(result.Depth[i], -0.5, 1e-3) {
			t.Errorf("lane %d: expected depth -0.5, got %v", i, result.Depth[i])
		}
	}
}

func TestRefineInvariants(t *testing.T) {
	poseA := actor.NewTransform()
	poseB := actor.NewTransformAt(mgl64.Vec3{1.2, 0.7, 0.3}, mgl64.QuatIdent())
	sampler, offsetB := spherePairSampler(1, 1, poseA, poseB)

	guessNormal := lane.SplatVec3(mgl64.Vec3{0, 0, 1})
	guessDepth := lane.Splat(math.Inf(1))
	var inactive lane.Mask
	var result Result

	previousDepth := lane.Splat(math.Inf(1))
	config := DefaultConfig()
	config.Observer = func(iteration int, simplex *Simplex, bestDepth *lane.Float) {
		for i := 0; i < lane.Width; i++ {
			// At least one simplex slot must be occupied after every iteration.
			if !simplex.A.Exists[i] && !simplex.B.Exists[i] && !simplex.C.Exists[i] {
				t.Errorf("iteration %d lane %d: empty simplex", iteration, i)
			}
			// Best depth never increases.
			if bestDepth[i] > previousDepth[i]+1e-12 {
				t.Errorf("iteration %d lane %d: best depth rose from %v to %v",
					iteration, i, previousDepth[i], bestDepth[i])
			}
			previousDepth[i] = bestDepth[i]
		}
	}

	Refine(sampler, &offsetB, &guessNormal, &guessDepth, &inactive, config, &result)
}

func TestRefineInactiveLanesUntouched(t *testing.T) {
	poseA := actor.NewTransform()
	poseB := actor.NewTransformAt(mgl64.Vec3{1.9, 0, 0}, mgl64.QuatIdent())
	sampler, offsetB := spherePairSampler(1, 1, poseA, poseB)

	guessNormal := lane.SplatVec3(mgl64.Vec3{1, 0, 0})
	guessDepth := lane.Splat(123.0)
	var inactive lane.Mask
	inactive[lane.Width-1] = true
	var result Result

	Refine(sampler, &offsetB, &guessNormal, &guessDepth, &inactive, DefaultConfig(), &result)

	if result.Depth[lane.Width-1] != 123.0 {
		t.Errorf("inactive lane depth must keep the caller's estimate, got %v",
			result.Depth[lane.Width-1])
	}
	if !approxEqual(result.Depth[0], 0.1, 1e-4) {
		t.Errorf("active lane 0: expected depth 0.1, got %v", result.Depth[0])
	}
}
