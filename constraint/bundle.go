package constraint

import (
	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/lane"
	"github.com/go-gl/mathgl/mgl64"
)

// BodyVelocities is the gathered velocity state of one body slot across a
// bundle's lanes.
type BodyVelocities struct {
	Linear  lane.Vec3
	Angular lane.Vec3
}

// BodyInertias is the gathered inverse mass state of one body slot across a
// bundle's lanes. The inverse inertia tensor is in world space.
type BodyInertias struct {
	InverseMass    lane.Float
	InverseInertia lane.Mat3
}

// VelocityAccess abstracts how solve kernels read and write body velocities.
// The colored batches write straight through to body storage; the fallback
// batch accumulates deltas for a Jacobi-averaged reduction instead.
type VelocityAccess interface {
	GatherVelocities(handles *[lane.Width]actor.Handle, count int, out *BodyVelocities)
	ScatterVelocities(handles *[lane.Width]actor.Handle, count int, velocities *BodyVelocities)
}

// DirectAccess reads and writes body storage in place. Race freedom comes
// from the batch coloring invariant: within a batch each body appears in at
// most one constraint.
type DirectAccess struct {
	Bodies *actor.Bodies
}

func (d DirectAccess) GatherVelocities(handles *[lane.Width]actor.Handle, count int, out *BodyVelocities) {
	for i := 0; i < count; i++ {
		body := d.Bodies.Lookup(handles[i])
		out.Linear.SetLane(i, body.Velocity)
		out.Angular.SetLane(i, body.AngularVelocity)
	}
}

func (d DirectAccess) ScatterVelocities(handles *[lane.Width]actor.Handle, count int, velocities *BodyVelocities) {
	for i := 0; i < count; i++ {
		body := d.Bodies.Lookup(handles[i])
		body.Velocity = velocities.Linear.Lane(i)
		body.AngularVelocity = velocities.Angular.Lane(i)
	}
}

// GatherInertias loads inverse mass state for one body slot of a bundle.
func GatherInertias(bodies *actor.Bodies, handles *[lane.Width]actor.Handle, count int, out *BodyInertias) {
	for i := 0; i < count; i++ {
		body := bodies.Lookup(handles[i])
		out.InverseMass[i] = body.InverseMass
		out.InverseInertia.SetLane(i, body.InverseInertiaWorld())
	}
}

// JacobiAccess reads the frozen pre-iteration velocities and accumulates
// writes as per-body deltas. ApplyAveraged divides each body's total delta
// by its constraint degree, which keeps the overflow batch stable without a
// coloring guarantee and is order-insensitive.
type JacobiAccess struct {
	Bodies       *actor.Bodies
	deltaLinear  map[actor.Handle]mgl64.Vec3
	deltaAngular map[actor.Handle]mgl64.Vec3
	degree       map[actor.Handle]float64
}

// NewJacobiAccess creates an empty delta accumulator over body storage.
func NewJacobiAccess(bodies *actor.Bodies) *JacobiAccess {
	return &JacobiAccess{
		Bodies:       bodies,
		deltaLinear:  make(map[actor.Handle]mgl64.Vec3),
		deltaAngular: make(map[actor.Handle]mgl64.Vec3),
		degree:       make(map[actor.Handle]float64),
	}
}

func (j *JacobiAccess) GatherVelocities(handles *[lane.Width]actor.Handle, count int, out *BodyVelocities) {
	for i := 0; i < count; i++ {
		body := j.Bodies.Lookup(handles[i])
		out.Linear.SetLane(i, body.Velocity)
		out.Angular.SetLane(i, body.AngularVelocity)
	}
}

func (j *JacobiAccess) ScatterVelocities(handles *[lane.Width]actor.Handle, count int, velocities *BodyVelocities) {
	for i := 0; i < count; i++ {
		body := j.Bodies.Lookup(handles[i])
		handle := handles[i]
		j.deltaLinear[handle] = j.deltaLinear[handle].Add(velocities.Linear.Lane(i).Sub(body.Velocity))
		j.deltaAngular[handle] = j.deltaAngular[handle].Add(velocities.Angular.Lane(i).Sub(body.AngularVelocity))
		j.degree[handle]++
	}
}

// ApplyAveraged commits the averaged deltas and clears the accumulator.
func (j *JacobiAccess) ApplyAveraged() {
	for handle, delta := range j.deltaLinear {
		body := j.Bodies.Lookup(handle)
		scale := 1 / j.degree[handle]
		body.Velocity = body.Velocity.Add(delta.Mul(scale))
		body.AngularVelocity = body.AngularVelocity.Add(j.deltaAngular[handle].Mul(scale))
		delete(j.deltaLinear, handle)
		delete(j.deltaAngular, handle)
		delete(j.degree, handle)
	}
}
