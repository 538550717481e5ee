package constraint

import (
	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/lane"
	"github.com/go-gl/mathgl/mgl64"
)

// VolumeDescription constrains the scaled volume of the tetrahedron spanned
// by four bodies: (ab × ac) · ad = TargetScaledVolume, where ab = B−A and so
// on. The scaled volume is six times the geometric volume.
type VolumeDescription struct {
	BodyA, BodyB, BodyC, BodyD actor.Handle
	TargetScaledVolume         float64
	Springs                    SpringSettings
}

// volumeBundle is one lane-wide record of volume constraints.
type volumeBundle struct {
	count int

	handles [lane.Width]Handle
	bodies  [4][lane.Width]actor.Handle

	targetScaledVolume lane.Float
	springs            [lane.Width]SpringSettings

	// Prestep products. Linear Jacobians only; angular terms are zero:
	// jB = ac × ad, jC = ad × ab, jD = ab × ac, jA = −(jB + jC + jD).
	inertias      [4]BodyInertias
	jacobians     [4]lane.Vec3
	effectiveMass lane.Float
	bias          lane.Float
	impulseScale  lane.Float

	accumulated lane.Float
}

// VolumeBatch is the volume constraint type batch.
type VolumeBatch struct {
	bundles []volumeBundle
}

func (b *VolumeBatch) TypeID() TypeID { return VolumeTypeID }

func (b *VolumeBatch) ConstraintCount() int {
	if len(b.bundles) == 0 {
		return 0
	}
	return (len(b.bundles)-1)*lane.Width + b.bundles[len(b.bundles)-1].count
}

func (b *VolumeBatch) BundleCount() int { return len(b.bundles) }

func (b *VolumeBatch) HandleAt(slot int) Handle {
	return b.bundles[slot/lane.Width].handles[slot%lane.Width]
}

func (b *VolumeBatch) BodyHandles(slot int) []actor.Handle {
	bundle := &b.bundles[slot/lane.Width]
	i := slot % lane.Width
	return []actor.Handle{
		bundle.bodies[0][i], bundle.bodies[1][i], bundle.bodies[2][i], bundle.bodies[3][i],
	}
}

// Add appends a constraint with a zeroed accumulated impulse.
func (b *VolumeBatch) Add(handle Handle, description *VolumeDescription) int {
	if len(b.bundles) == 0 || b.bundles[len(b.bundles)-1].count == lane.Width {
		b.bundles = append(b.bundles, volumeBundle{})
	}
	bundle := &b.bundles[len(b.bundles)-1]
	i := bundle.count
	bundle.count++

	bundle.handles[i] = handle
	bundle.bodies[0][i] = description.BodyA
	bundle.bodies[1][i] = description.BodyB
	bundle.bodies[2][i] = description.BodyC
	bundle.bodies[3][i] = description.BodyD
	bundle.targetScaledVolume[i] = description.TargetScaledVolume
	bundle.springs[i] = description.Springs
	bundle.accumulated[i] = 0
	return (len(b.bundles)-1)*lane.Width + i
}

// AccumulatedImpulse reads a slot's accumulated impulse.
func (b *VolumeBatch) AccumulatedImpulse(slot int) float64 {
	return b.bundles[slot/lane.Width].accumulated[slot%lane.Width]
}

func (b *VolumeBatch) RemoveSlot(slot int) Handle {
	lastBundle := len(b.bundles) - 1
	lastLane := b.bundles[lastBundle].count - 1
	bundleIndex, laneIndex := slot/lane.Width, slot%lane.Width

	moved := InvalidHandle
	if bundleIndex != lastBundle || laneIndex != lastLane {
		src := &b.bundles[lastBundle]
		dst := &b.bundles[bundleIndex]
		moved = src.handles[lastLane]
		dst.handles[laneIndex] = src.handles[lastLane]
		for body := 0; body < 4; body++ {
			dst.bodies[body][laneIndex] = src.bodies[body][lastLane]
		}
		dst.targetScaledVolume[laneIndex] = src.targetScaledVolume[lastLane]
		dst.springs[laneIndex] = src.springs[lastLane]
		dst.accumulated[laneIndex] = src.accumulated[lastLane]
	}
	b.bundles[lastBundle].count--
	if b.bundles[lastBundle].count == 0 {
		b.bundles = b.bundles[:lastBundle]
	}
	return moved
}

// Prestep evaluates the tetrahedron edges from current poses, builds the
// linear Jacobians, the softened effective mass over the four inverse
// masses, and the bias from the scaled-volume error.
func (b *VolumeBatch) Prestep(bodies *actor.Bodies, dt float64, bundleStart, bundleEnd int) {
	for bundleIndex := bundleStart; bundleIndex < bundleEnd; bundleIndex++ {
		bundle := &b.bundles[bundleIndex]
		for body := 0; body < 4; body++ {
			GatherInertias(bodies, &bundle.bodies[body], bundle.count, &bundle.inertias[body])
		}

		var positions [4]lane.Vec3
		for body := 0; body < 4; body++ {
			for i := 0; i < bundle.count; i++ {
				positions[body].SetLane(i, bodies.Lookup(bundle.bodies[body][i]).Pose.Position)
			}
		}

		var ab, ac, ad lane.Vec3
		lane.Vec3Sub(&positions[1], &positions[0], &ab)
		lane.Vec3Sub(&positions[2], &positions[0], &ac)
		lane.Vec3Sub(&positions[3], &positions[0], &ad)

		lane.Vec3Cross(&ac, &ad, &bundle.jacobians[1])
		lane.Vec3Cross(&ad, &ab, &bundle.jacobians[2])
		lane.Vec3Cross(&ab, &ac, &bundle.jacobians[3])

		var sum lane.Vec3
		lane.Vec3Add(&bundle.jacobians[1], &bundle.jacobians[2], &sum)
		lane.Vec3Add(&sum, &bundle.jacobians[3], &sum)
		lane.Vec3Neg(&sum, &bundle.jacobians[0])

		var scaledVolume lane.Float
		lane.Vec3Dot(&bundle.jacobians[3], &ad, &scaledVolume)

		var inverseEffectiveMass lane.Float
		for body := 0; body < 4; body++ {
			var jacobianLengthSq, contribution lane.Float
			lane.Vec3Dot(&bundle.jacobians[body], &bundle.jacobians[body], &jacobianLengthSq)
			lane.Mul(&jacobianLengthSq, &bundle.inertias[body].InverseMass, &contribution)
			lane.Add(&inverseEffectiveMass, &contribution, &inverseEffectiveMass)
		}

		for i := 0; i < bundle.count; i++ {
			softness := bundle.springs[i].Compute(dt)
			bundle.impulseScale[i] = softness.ImpulseScale
			if inverseEffectiveMass[i] < 1e-12 {
				bundle.effectiveMass[i] = 0
				bundle.bias[i] = 0
				continue
			}
			bundle.effectiveMass[i] = softness.EffectiveMassCFMScale / inverseEffectiveMass[i]
			// Volume error drives a proportional corrective velocity.
			bundle.bias[i] = -softness.PositionErrorToVelocity *
				(scaledVolume[i] - bundle.targetScaledVolume[i])
		}
	}
}

// WarmStart re-applies the accumulated impulse through the fresh Jacobians.
func (b *VolumeBatch) WarmStart(bodies *actor.Bodies, access VelocityAccess, bundleStart, bundleEnd int) {
	for bundleIndex := bundleStart; bundleIndex < bundleEnd; bundleIndex++ {
		bundle := &b.bundles[bundleIndex]
		b.applyImpulse(bundle, access, &bundle.accumulated)
	}
}

// SolveIteration computes Jv = Σ J_i·v_i and the constraint-space impulse
// csi = effectiveMass·(bias − Jv) − impulseScale·accumulated. Equality
// constraint: no clamp.
func (b *VolumeBatch) SolveIteration(access VelocityAccess, bundleStart, bundleEnd int) {
	for bundleIndex := bundleStart; bundleIndex < bundleEnd; bundleIndex++ {
		bundle := &b.bundles[bundleIndex]

		var velocities [4]BodyVelocities
		for body := 0; body < 4; body++ {
			access.GatherVelocities(&bundle.bodies[body], bundle.count, &velocities[body])
		}

		var constraintVelocity lane.Float
		for body := 0; body < 4; body++ {
			var along lane.Float
			lane.Vec3Dot(&bundle.jacobians[body], &velocities[body].Linear, &along)
			lane.Add(&constraintVelocity, &along, &constraintVelocity)
		}

		var delta lane.Float
		for i := 0; i < bundle.count; i++ {
			impulse := bundle.effectiveMass[i]*(bundle.bias[i]-constraintVelocity[i]) -
				bundle.impulseScale[i]*bundle.accumulated[i]
			bundle.accumulated[i] += impulse
			delta[i] = impulse
		}

		for body := 0; body < 4; body++ {
			var scale lane.Float
			lane.Mul(&delta, &bundle.inertias[body].InverseMass, &scale)
			lane.Vec3MulAdd(&bundle.jacobians[body], &scale, &velocities[body].Linear, &velocities[body].Linear)
			access.ScatterVelocities(&bundle.bodies[body], bundle.count, &velocities[body])
		}
	}
}

// applyImpulse adds magnitude·J_i·invMass_i to each body's linear velocity.
func (b *VolumeBatch) applyImpulse(bundle *volumeBundle, access VelocityAccess, magnitude *lane.Float) {
	for body := 0; body < 4; body++ {
		var velocities BodyVelocities
		access.GatherVelocities(&bundle.bodies[body], bundle.count, &velocities)

		var scale lane.Float
		lane.Mul(magnitude, &bundle.inertias[body].InverseMass, &scale)
		lane.Vec3MulAdd(&bundle.jacobians[body], &scale, &velocities.Linear, &velocities.Linear)

		access.ScatterVelocities(&bundle.bodies[body], bundle.count, &velocities)
	}
}

var _ TypeBatch = (*VolumeBatch)(nil)
var _ TypeBatch = (*ContactBatch)(nil)
