package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Mobility classifies how a body participates in the simulation.
type Mobility uint8

const (
	// MobilityDynamic bodies are affected by forces, gravity, and collisions
	MobilityDynamic Mobility = iota
	// MobilityKinematic bodies move with infinite mass under caller control
	MobilityKinematic
	// MobilityStatic bodies never move (e.g., ground, walls)
	MobilityStatic
)

// ContinuityMode selects the continuous collision detection features of a
// collidable. InnerSphere and Substepping are represented and combined but
// currently resolved as Discrete; the narrow phase reports the downgrade
// through the diagnostics hook.
type ContinuityMode uint8

const (
	ContinuityDiscrete ContinuityMode = iota
	ContinuityInnerSphere
	ContinuitySubstepping
	ContinuityInnerSphereSubstepping
)

// Combine ORs the feature bits of two continuity modes.
func (m ContinuityMode) Combine(other ContinuityMode) ContinuityMode {
	return m | other
}

// Collidable describes how a body collides: which shape, how continuity is
// handled, and how far beyond the shape surface speculative contacts reach.
type Collidable struct {
	Shape             ShapeIndex
	Continuity        ContinuityMode
	SpeculativeMargin float64
}

type Material struct {
	Restitution float64 // 0 = no rebound, 1 = perfect restitution

	StaticFriction  float64
	DynamicFriction float64
	LinearDamping   float64 // 0.0 - 1.0, typical: 0.01
	AngularDamping  float64 // 0.0 - 1.0, typical: 0.05
}

// Handle is a stable body identifier, valid until the body is removed.
type Handle int32

// Location places a body: set 0 is active, other sets are sleeping islands.
type Location struct {
	Set  int32
	Slot int32
}

// Body is one slot of a body set.
type Body struct {
	Handle Handle

	Pose Transform

	PresolveVelocity        mgl64.Vec3
	Velocity                mgl64.Vec3 // Linear velocity (m/s)
	PresolveAngularVelocity mgl64.Vec3
	AngularVelocity         mgl64.Vec3 // rad/s

	InverseMass         float64
	InverseInertiaLocal mgl64.Mat3

	Material   Material
	Mobility   Mobility
	Collidable Collidable

	SleepTimer float64
}

// InverseInertiaWorld returns R * I_local⁻¹ * Rᵀ, or zero for non-dynamic bodies.
func (b *Body) InverseInertiaWorld() mgl64.Mat3 {
	if b.Mobility != MobilityDynamic {
		return mgl64.Mat3{}
	}
	r := b.Pose.Rotation.Mat4().Mat3()
	return r.Mul3(b.InverseInertiaLocal).Mul3(r.Transpose())
}

// IntegrateVelocity advances velocity by gravity and damping, and captures
// the presolve velocities used by restitution.
func (b *Body) IntegrateVelocity(dt float64, gravity mgl64.Vec3) {
	if b.Mobility == MobilityDynamic {
		b.Velocity = b.Velocity.Add(gravity.Mul(dt))
		b.Velocity = b.Velocity.Mul(math.Exp(-b.Material.LinearDamping * dt))
		b.AngularVelocity = b.AngularVelocity.Mul(math.Exp(-b.Material.AngularDamping * dt))
	}
	b.PresolveVelocity = b.Velocity
	b.PresolveAngularVelocity = b.AngularVelocity
}

// IntegratePose advances the pose from the solved velocities:
// pos += v·dt, orientation = normalize(orientation + 0.5·(ω·dt)·orientation).
func (b *Body) IntegratePose(dt float64) {
	if b.Mobility == MobilityStatic {
		return
	}
	b.Pose.Position = b.Pose.Position.Add(b.Velocity.Mul(dt))

	omega := mgl64.Quat{W: 0, V: b.AngularVelocity.Mul(dt)}
	delta := omega.Mul(b.Pose.Rotation).Scale(0.5)
	b.Pose.Rotation = b.Pose.Rotation.Add(delta).Normalize()
	b.Pose.InverseRotation = b.Pose.Rotation.Inverse()
}

// SupportWorld evaluates the body's convex support mapping in world space.
func (b *Body) SupportWorld(shape Convex, direction mgl64.Vec3) mgl64.Vec3 {
	localDirection := b.Pose.InverseRotation.Rotate(direction)
	localSupport := shape.Support(localDirection)
	return b.Pose.Position.Add(b.Pose.Rotation.Rotate(localSupport))
}

// Set is one body set: index 0 holds awake bodies, higher sets sleeping islands.
type Set struct {
	Bodies []Body
}

// Bodies is the body storage: stable handles resolving to (set, slot).
type Bodies struct {
	Sets        []Set
	locations   []Location
	freeHandles []Handle
}

// NewBodies creates storage with an empty active set.
func NewBodies() *Bodies {
	return &Bodies{Sets: []Set{{}}}
}

// Description configures a new body.
type Description struct {
	Pose       Transform
	Velocity   mgl64.Vec3
	Angular    mgl64.Vec3
	Mobility   Mobility
	Density    float64
	Material   Material
	Collidable Collidable
}

// Add inserts a body into the active set and returns its handle.
// Mass properties come from the shape and density; non-dynamic bodies get
// infinite mass (zero inverse).
func (bs *Bodies) Add(description Description, shapes *Shapes) Handle {
	var handle Handle
	if n := len(bs.freeHandles); n > 0 {
		handle = bs.freeHandles[n-1]
		bs.freeHandles = bs.freeHandles[:n-1]
	} else {
		handle = Handle(len(bs.locations))
		bs.locations = append(bs.locations, Location{})
	}

	body := Body{
		Handle:          handle,
		Pose:            description.Pose,
		Velocity:        description.Velocity,
		AngularVelocity: description.Angular,
		Material:        description.Material,
		Mobility:        description.Mobility,
		Collidable:      description.Collidable,
	}
	if description.Mobility == MobilityDynamic {
		mass, inertia := shapes.MassProperties(description.Collidable.Shape, description.Density)
		if mass > 0 {
			body.InverseMass = 1 / mass
		}
		var inverse mgl64.Mat3
		for axis := 0; axis < 3; axis++ {
			if inertia[axis] > 0 {
				inverse[axis*3+axis] = 1 / inertia[axis]
			}
		}
		// mgl64.Mat3 is column-major but a diagonal is layout-agnostic.
		body.InverseInertiaLocal = inverse
	}

	slot := int32(len(bs.Sets[0].Bodies))
	bs.Sets[0].Bodies = append(bs.Sets[0].Bodies, body)
	bs.locations[handle] = Location{Set: 0, Slot: slot}
	return handle
}

// Remove deletes a body, backfilling its slot from the end of its set.
func (bs *Bodies) Remove(handle Handle) {
	location := bs.locations[handle]
	set := &bs.Sets[location.Set]
	last := int32(len(set.Bodies) - 1)
	if location.Slot != last {
		set.Bodies[location.Slot] = set.Bodies[last]
		bs.locations[set.Bodies[location.Slot].Handle] = location
	}
	set.Bodies = set.Bodies[:last]
	bs.locations[handle] = Location{Set: -1, Slot: -1}
	bs.freeHandles = append(bs.freeHandles, handle)
}

// Location returns where a handle currently lives.
func (bs *Bodies) Location(handle Handle) Location {
	return bs.locations[handle]
}

// Lookup resolves a handle to its body slot.
func (bs *Bodies) Lookup(handle Handle) *Body {
	location := bs.locations[handle]
	return &bs.Sets[location.Set].Bodies[location.Slot]
}

// Active returns the awake body set.
func (bs *Bodies) Active() *Set {
	return &bs.Sets[0]
}

// Sleep moves an active body into its own sleeping set.
func (bs *Bodies) Sleep(handle Handle) {
	location := bs.locations[handle]
	if location.Set != 0 {
		return
	}
	body := *bs.Lookup(handle)
	body.Velocity = mgl64.Vec3{}
	body.AngularVelocity = mgl64.Vec3{}

	// Reuse an empty sleeping set if one exists.
	target := -1
	for i := 1; i < len(bs.Sets); i++ {
		if len(bs.Sets[i].Bodies) == 0 {
			target = i
			break
		}
	}
	if target == -1 {
		bs.Sets = append(bs.Sets, Set{})
		target = len(bs.Sets) - 1
	}

	bs.removeFromSlot(location)
	bs.Sets[target].Bodies = append(bs.Sets[target].Bodies, body)
	bs.locations[handle] = Location{Set: int32(target), Slot: int32(len(bs.Sets[target].Bodies) - 1)}
}

// Wake moves a sleeping body back to the active set.
func (bs *Bodies) Wake(handle Handle) {
	location := bs.locations[handle]
	if location.Set == 0 {
		return
	}
	body := *bs.Lookup(handle)
	body.SleepTimer = 0

	bs.removeFromSlot(location)
	bs.Sets[0].Bodies = append(bs.Sets[0].Bodies, body)
	bs.locations[handle] = Location{Set: 0, Slot: int32(len(bs.Sets[0].Bodies) - 1)}
}

func (bs *Bodies) removeFromSlot(location Location) {
	set := &bs.Sets[location.Set]
	last := int32(len(set.Bodies) - 1)
	if location.Slot != last {
		set.Bodies[location.Slot] = set.Bodies[last]
		bs.locations[set.Bodies[location.Slot].Handle] = Location{Set: location.Set, Slot: location.Slot}
	}
	set.Bodies = set.Bodies[:last]
}
