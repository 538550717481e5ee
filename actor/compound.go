package actor

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// CompoundChild is one convex member of a compound shape.
type CompoundChild struct {
	LocalPose Transform
	Shape     ShapeIndex
}

// Compound groups convex children under local poses. Children must reference
// convex shapes only; nesting compounds is rejected at construction.
type Compound struct {
	Children []CompoundChild
	tree     []compoundNode
}

// compoundNode is one node of the child bounding-volume tree. Leaves carry a
// child index; internal nodes carry the merged bounds of their subtree.
// Bounds are in the compound's local space.
type compoundNode struct {
	Bounds AABB
	Left   int32
	Right  int32
	Child  int32 // >= 0 for leaves
}

// NewCompound validates the child list and builds the bounding tree.
// The shapes store resolves child references; children must exist and be convex.
func NewCompound(children []CompoundChild, shapes *Shapes) (Compound, error) {
	if len(children) == 0 {
		return Compound{}, fmt.Errorf("compound requires at least one child")
	}
	bounds := make([]AABB, len(children))
	for i, child := range children {
		if child.Shape.Type == ShapeCompound {
			return Compound{}, fmt.Errorf("compound child %d references a compound; children must be convex", i)
		}
		convex, ok := shapes.Convex(child.Shape)
		if !ok {
			return Compound{}, fmt.Errorf("compound child %d references unknown shape %v", i, child.Shape)
		}
		bounds[i] = convex.ComputeBounds(child.LocalPose)
	}

	compound := Compound{Children: children}
	compound.tree = buildCompoundTree(bounds)
	return compound, nil
}

// buildCompoundTree builds a median-split tree over the child bounds.
func buildCompoundTree(bounds []AABB) []compoundNode {
	indices := make([]int32, len(bounds))
	for i := range indices {
		indices[i] = int32(i)
	}
	nodes := make([]compoundNode, 0, 2*len(bounds))
	buildCompoundSubtree(bounds, indices, &nodes)
	return nodes
}

func buildCompoundSubtree(bounds []AABB, indices []int32, nodes *[]compoundNode) int32 {
	if len(indices) == 1 {
		*nodes = append(*nodes, compoundNode{
			Bounds: bounds[indices[0]],
			Left:   -1,
			Right:  -1,
			Child:  indices[0],
		})
		return int32(len(*nodes) - 1)
	}

	merged := bounds[indices[0]]
	for _, index := range indices[1:] {
		merged = merged.Merge(bounds[index])
	}

	// Split on the widest axis at the median child center.
	size := merged.Max.Sub(merged.Min)
	axis := 0
	if size.Y() > size.X() {
		axis = 1
	}
	if size.Z() > size[axis] {
		axis = 2
	}
	sort.Slice(indices, func(i, j int) bool {
		return bounds[indices[i]].Center()[axis] < bounds[indices[j]].Center()[axis]
	})

	mid := len(indices) / 2
	// Reserve this node before recursing so the root lands at a stable index.
	*nodes = append(*nodes, compoundNode{Bounds: merged, Child: -1})
	self := int32(len(*nodes) - 1)
	left := buildCompoundSubtree(bounds, indices[:mid], nodes)
	right := buildCompoundSubtree(bounds, indices[mid:], nodes)
	(*nodes)[self].Left = left
	(*nodes)[self].Right = right
	return self
}

func (c Compound) ShapeType() ShapeType { return ShapeCompound }

// ComputeBounds transforms the root node bounds into world space.
func (c Compound) ComputeBounds(transform Transform) AABB {
	if len(c.tree) == 0 {
		return AABB{Min: transform.Position, Max: transform.Position}
	}
	local := c.tree[0].Bounds
	corners := [8]mgl64.Vec3{
		{local.Min.X(), local.Min.Y(), local.Min.Z()},
		{local.Max.X(), local.Min.Y(), local.Min.Z()},
		{local.Min.X(), local.Max.Y(), local.Min.Z()},
		{local.Max.X(), local.Max.Y(), local.Min.Z()},
		{local.Min.X(), local.Min.Y(), local.Max.Z()},
		{local.Max.X(), local.Min.Y(), local.Max.Z()},
		{local.Min.X(), local.Max.Y(), local.Max.Z()},
		{local.Max.X(), local.Max.Y(), local.Max.Z()},
	}
	world := transform.Rotation.Rotate(corners[0]).Add(transform.Position)
	result := AABB{Min: world, Max: world}
	for _, corner := range corners[1:] {
		world = transform.Rotation.Rotate(corner).Add(transform.Position)
		result = result.Merge(AABB{Min: world, Max: world})
	}
	return result
}

// ComputeMass sums child masses. Children are resolved lazily by the caller;
// here the compound only reports a zero so bodies built directly from a
// compound use explicit mass. World.AddBody resolves child masses instead.
func (c Compound) ComputeMass(density float64) float64 {
	return 0
}

func (c Compound) ComputeInertia(mass float64) mgl64.Mat3 {
	return mgl64.Mat3{}
}

// OverlappingChildren appends the indices of children whose local-space
// bounds overlap query to out, walking the bounding tree.
func (c Compound) OverlappingChildren(query AABB, out []int32) []int32 {
	if len(c.tree) == 0 {
		return out
	}
	var stack [64]int32
	depth := 0
	stack[depth] = 0
	depth++
	for depth > 0 {
		depth--
		node := c.tree[stack[depth]]
		if !node.Bounds.Overlaps(query) {
			continue
		}
		if node.Child >= 0 {
			out = append(out, node.Child)
			continue
		}
		stack[depth] = node.Left
		depth++
		stack[depth] = node.Right
		depth++
	}
	return out
}
