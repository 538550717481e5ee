package actor

import "sync"

// Shapes is the shared shape storage: one table per shape type, addressed by
// ShapeIndex. Reads dominate the hot path; writes happen only during scene
// mutation, so access goes through a reader/writer lock with scoped
// acquisition on every path.
type Shapes struct {
	mu        sync.RWMutex
	spheres   []Sphere
	boxes     []Box
	compounds []Compound
}

// NewShapes creates empty shape storage.
func NewShapes() *Shapes {
	return &Shapes{}
}

// AddSphere registers a sphere and returns its typed index.
func (s *Shapes) AddSphere(sphere Sphere) ShapeIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spheres = append(s.spheres, sphere)
	return ShapeIndex{Type: ShapeSphere, Index: int32(len(s.spheres) - 1)}
}

// AddBox registers a box and returns its typed index.
func (s *Shapes) AddBox(box Box) ShapeIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes = append(s.boxes, box)
	return ShapeIndex{Type: ShapeBox, Index: int32(len(s.boxes) - 1)}
}

// AddCompound validates and registers a compound, returning its typed index.
func (s *Shapes) AddCompound(children []CompoundChild) (ShapeIndex, error) {
	compound, err := NewCompound(children, s)
	if err != nil {
		return ShapeIndex{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compounds = append(s.compounds, compound)
	return ShapeIndex{Type: ShapeCompound, Index: int32(len(s.compounds) - 1)}, nil
}

// Convex resolves a convex shape reference. Returns false for compounds and
// out-of-range indices.
func (s *Shapes) Convex(index ShapeIndex) (Convex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch index.Type {
	case ShapeSphere:
		if int(index.Index) < len(s.spheres) {
			return s.spheres[index.Index], true
		}
	case ShapeBox:
		if int(index.Index) < len(s.boxes) {
			return s.boxes[index.Index], true
		}
	}
	return nil, false
}

// Compound resolves a compound shape reference.
func (s *Shapes) Compound(index ShapeIndex) (Compound, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index.Type != ShapeCompound || int(index.Index) >= len(s.compounds) {
		return Compound{}, false
	}
	return s.compounds[index.Index], true
}

// Bounds computes the world bounds of any shape reference at a transform.
func (s *Shapes) Bounds(index ShapeIndex, transform Transform) AABB {
	if index.Type == ShapeCompound {
		compound, ok := s.Compound(index)
		if !ok {
			return AABB{Min: transform.Position, Max: transform.Position}
		}
		return compound.ComputeBounds(transform)
	}
	convex, ok := s.Convex(index)
	if !ok {
		return AABB{Min: transform.Position, Max: transform.Position}
	}
	return convex.ComputeBounds(transform)
}

// MassProperties computes mass and local inertia for any shape reference.
// Compounds sum child contributions; child offsets feed the parallel-axis
// terms on the diagonal.
func (s *Shapes) MassProperties(index ShapeIndex, density float64) (mass float64, inertia [3]float64) {
	if index.Type != ShapeCompound {
		convex, ok := s.Convex(index)
		if !ok {
			return 0, [3]float64{}
		}
		mass = convex.ComputeMass(density)
		tensor := convex.ComputeInertia(mass)
		return mass, [3]float64{tensor.At(0, 0), tensor.At(1, 1), tensor.At(2, 2)}
	}

	compound, ok := s.Compound(index)
	if !ok {
		return 0, [3]float64{}
	}
	for _, child := range compound.Children {
		convex, ok := s.Convex(child.Shape)
		if !ok {
			continue
		}
		childMass := convex.ComputeMass(density)
		tensor := convex.ComputeInertia(childMass)
		offset := child.LocalPose.Position
		offsetSq := offset.Dot(offset)
		mass += childMass
		inertia[0] += tensor.At(0, 0) + childMass*(offsetSq-offset.X()*offset.X())
		inertia[1] += tensor.At(1, 1) + childMass*(offsetSq-offset.Y()*offset.Y())
		inertia[2] += tensor.At(2, 2) + childMass*(offsetSq-offset.Z()*offset.Z())
	}
	return mass, inertia
}
