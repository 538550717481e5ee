package manifold

import (
	"github.com/akmonengine/talon/actor"
)

// ChildPair is one convex sub-pair spawned by compound expansion. Shape and
// pose describe the compound child in world space; Child is its index, used
// to keep feature ids distinct between children of the same compound.
type ChildPair struct {
	Shape actor.ShapeIndex
	Pose  actor.Transform
	Child int32
}

// ExpandCompound walks the compound's bounding tree against the other
// collidable's bounds (expressed in the compound's local space) and calls
// spawn for each overlapping child. The spawned sub-pairs re-enter the
// collision batcher as ordinary convex pairs.
func ExpandCompound(shapes *actor.Shapes, compound actor.Compound, compoundPose actor.Transform, otherBounds actor.AABB, spawn func(ChildPair)) {
	// Localize the query bounds: conservative re-box of the world AABB
	// corners in compound space.
	corners := [8][3]int{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}, {0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1}}
	var local actor.AABB
	for cornerIndex, corner := range corners {
		world := otherBounds.Min
		if corner[0] == 1 {
			world[0] = otherBounds.Max.X()
		}
		if corner[1] == 1 {
			world[1] = otherBounds.Max.Y()
		}
		if corner[2] == 1 {
			world[2] = otherBounds.Max.Z()
		}
		point := compoundPose.InverseRotation.Rotate(world.Sub(compoundPose.Position))
		if cornerIndex == 0 {
			local = actor.AABB{Min: point, Max: point}
			continue
		}
		local = local.Merge(actor.AABB{Min: point, Max: point})
	}

	for _, childIndex := range compound.OverlappingChildren(local, nil) {
		child := compound.Children[childIndex]
		spawn(ChildPair{
			Shape: child.Shape,
			Pose:  compoundPose.Apply(child.LocalPose),
			Child: childIndex,
		})
	}
}
