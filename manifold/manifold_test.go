package manifold

import (
	"math"
	"testing"

	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/depth"
	"github.com/go-gl/mathgl/mgl64"
)

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestSphereSphereManifold(t *testing.T) {
	pair := Pair{
		ShapeA: actor.Sphere{Radius: 1},
		ShapeB: actor.Sphere{Radius: 1},
		PoseA:  actor.NewTransform(),
		PoseB:  actor.NewTransformAt(mgl64.Vec3{1.9, 0, 0}, mgl64.QuatIdent()),
	}

	var out [1]Manifold
	Generate([]Pair{pair}, 1, depth.DefaultConfig(), out[:])

	manifold := out[0]
	if manifold.Count != 1 {
		t.Fatalf("expected 1 contact, got %d", manifold.Count)
	}
	if !approxEqual(manifold.Points[0].Depth, 0.1, 1e-9) {
		t.Errorf("expected depth 0.1, got %v", manifold.Points[0].Depth)
	}
	if !approxEqual(manifold.Normal.X(), 1, 1e-9) {
		t.Errorf("expected normal (1, 0, 0), got %v", manifold.Normal)
	}
	// Contact lies on the center line between the surfaces.
	if !approxEqual(manifold.Points[0].OffsetA.X(), 0.95, 1e-9) {
		t.Errorf("expected contact at x = 0.95 from A, got %v", manifold.Points[0].OffsetA)
	}
}

func TestSphereSphereSeparatedBeyondMargin(t *testing.T) {
	pair := Pair{
		ShapeA: actor.Sphere{Radius: 1},
		ShapeB: actor.Sphere{Radius: 1},
		PoseA:  actor.NewTransform(),
		PoseB:  actor.NewTransformAt(mgl64.Vec3{3, 0, 0}, mgl64.QuatIdent()),
	}

	var out [1]Manifold
	Generate([]Pair{pair}, 1, depth.DefaultConfig(), out[:])

	if out[0].Count != 0 {
		t.Errorf("expected empty manifold, got %d contacts", out[0].Count)
	}
}

func TestSphereSphereSpeculativeContact(t *testing.T) {
	pair := Pair{
		ShapeA:            actor.Sphere{Radius: 1},
		ShapeB:            actor.Sphere{Radius: 1},
		PoseA:             actor.NewTransform(),
		PoseB:             actor.NewTransformAt(mgl64.Vec3{2.05, 0, 0}, mgl64.QuatIdent()),
		SpeculativeMargin: 0.1,
	}

	var out [1]Manifold
	Generate([]Pair{pair}, 1, depth.DefaultConfig(), out[:])

	if out[0].Count != 1 {
		t.Fatalf("expected speculative contact, got %d contacts", out[0].Count)
	}
	if out[0].Points[0].Depth >= 0 {
		t.Errorf("expected negative depth, got %v", out[0].Points[0].Depth)
	}
}

func TestBoxOnBoxManifold(t *testing.T) {
	// A unit cube resting 0.05 deep on a large slab: face contact, so the
	// clipped manifold should carry four contacts sharing the up normal.
	slab := Pair{
		ShapeA: actor.Box{HalfExtents: mgl64.Vec3{5, 0.5, 5}},
		ShapeB: actor.Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}},
		PoseA:  actor.NewTransformAt(mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent()),
		PoseB:  actor.NewTransformAt(mgl64.Vec3{0, 0.45, 0}, mgl64.QuatIdent()),
	}

	var out [1]Manifold
	Generate([]Pair{slab}, 1, depth.DefaultConfig(), out[:])

	manifold := out[0]
	if manifold.Count != 4 {
		t.Fatalf("expected 4 contacts for a face-face stack, got %d", manifold.Count)
	}
	if !approxEqual(manifold.Normal.Y(), 1, 1e-3) {
		t.Errorf("expected normal (0, 1, 0), got %v", manifold.Normal)
	}
	for i := 0; i < manifold.Count; i++ {
		if !approxEqual(manifold.Points[i].Depth, 0.05, 1e-3) {
			t.Errorf("contact %d: expected depth 0.05, got %v", i, manifold.Points[i].Depth)
		}
	}

	t.Run("feature ids are stable across frames", func(t *testing.T) {
		var again [1]Manifold
		Generate([]Pair{slab}, 1, depth.DefaultConfig(), again[:])
		for i := 0; i < manifold.Count; i++ {
			if again[0].Points[i].Feature != manifold.Points[i].Feature {
				t.Errorf("contact %d: feature id changed between identical frames", i)
			}
		}
	})
}

func TestExpandCompound(t *testing.T) {
	shapes := actor.NewShapes()
	sphereIndex := shapes.AddSphere(actor.Sphere{Radius: 0.5})
	compoundIndex, err := shapes.AddCompound([]actor.CompoundChild{
		{LocalPose: actor.NewTransformAt(mgl64.Vec3{-5, 0, 0}, mgl64.QuatIdent()), Shape: sphereIndex},
		{LocalPose: actor.NewTransformAt(mgl64.Vec3{5, 0, 0}, mgl64.QuatIdent()), Shape: sphereIndex},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	compound, _ := shapes.Compound(compoundIndex)

	// Query bounds overlapping only the +x child.
	otherBounds := actor.AABB{Min: mgl64.Vec3{4, -1, -1}, Max: mgl64.Vec3{6, 1, 1}}

	var spawned []ChildPair
	ExpandCompound(shapes, compound, actor.NewTransform(), otherBounds, func(child ChildPair) {
		spawned = append(spawned, child)
	})

	if len(spawned) != 1 {
		t.Fatalf("expected 1 spawned sub-pair, got %d", len(spawned))
	}
	if spawned[0].Child != 1 {
		t.Errorf("expected child 1, got %d", spawned[0].Child)
	}
	if !approxEqual(spawned[0].Pose.Position.X(), 5, 1e-12) {
		t.Errorf("expected child pose at x = 5, got %v", spawned[0].Pose.Position)
	}
}
