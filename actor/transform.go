package actor

import "github.com/go-gl/mathgl/mgl64"

// Transform represents a pose in 3D space
type Transform struct {
	Position        mgl64.Vec3
	Rotation        mgl64.Quat
	InverseRotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position:        mgl64.Vec3{0, 0, 0},
		Rotation:        mgl64.QuatIdent(),
		InverseRotation: mgl64.QuatIdent(),
	}
}

// NewTransformAt creates a transform at the given position with the given rotation
func NewTransformAt(position mgl64.Vec3, rotation mgl64.Quat) Transform {
	rotation = rotation.Normalize()
	return Transform{
		Position:        position,
		Rotation:        rotation,
		InverseRotation: rotation.Inverse(),
	}
}

// LocalTo expresses other in t's frame.
func (t Transform) LocalTo(other Transform) Transform {
	relativeRotation := t.InverseRotation.Mul(other.Rotation).Normalize()
	return Transform{
		Position:        t.InverseRotation.Rotate(other.Position.Sub(t.Position)),
		Rotation:        relativeRotation,
		InverseRotation: relativeRotation.Inverse(),
	}
}

// Apply composes t with a local child pose, returning the child pose in t's parent frame.
func (t Transform) Apply(local Transform) Transform {
	rotation := t.Rotation.Mul(local.Rotation).Normalize()
	return Transform{
		Position:        t.Position.Add(t.Rotation.Rotate(local.Position)),
		Rotation:        rotation,
		InverseRotation: rotation.Inverse(),
	}
}
