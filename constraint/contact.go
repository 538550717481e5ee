package constraint

import (
	"math"

	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/lane"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxContactsPerManifold bounds one constraint's contact count.
	MaxContactsPerManifold = 4

	// maxRecoveryVelocity caps how fast penetration is pushed out, keeping
	// deep overlaps from exploding.
	maxRecoveryVelocity = 4.0

	// restitutionThreshold is the approach speed below which restitution
	// is ignored; resting contacts must not bounce.
	restitutionThreshold = 1.0
)

// ContactPoint is one contact of a constraint description. Offsets are
// world-space vectors from each body's position to the contact.
type ContactPoint struct {
	OffsetA mgl64.Vec3
	OffsetB mgl64.Vec3
	Depth   float64
	Feature uint32
}

// ContactDescription creates or updates a contact constraint. Normal points
// from A toward B in world space.
type ContactDescription struct {
	BodyA  actor.Handle
	BodyB  actor.Handle
	Normal mgl64.Vec3
	Count  int
	Points [MaxContactsPerManifold]ContactPoint

	Friction    float64
	Restitution float64
	Springs     SpringSettings
}

// ContactImpulses is the accumulated impulse state of one contact
// constraint, keyed by feature ids for cross-frame redistribution. OffsetA
// lets unmatched features fall back to the nearest surviving contact.
type ContactImpulses struct {
	Count    int
	Normal   [MaxContactsPerManifold]float64
	Features [MaxContactsPerManifold]uint32
	OffsetA  [MaxContactsPerManifold]mgl64.Vec3
	Tangent  [2]float64
}

// contactBundle is one lane-wide record: Width independent contact
// constraints in structure-of-arrays layout.
type contactBundle struct {
	count int

	handles [lane.Width]Handle
	bodyA   [lane.Width]actor.Handle
	bodyB   [lane.Width]actor.Handle

	normal       lane.Vec3
	contactCount [lane.Width]uint8
	offsetA      [MaxContactsPerManifold]lane.Vec3
	offsetB      [MaxContactsPerManifold]lane.Vec3
	depth        [MaxContactsPerManifold]lane.Float
	features     [MaxContactsPerManifold][lane.Width]uint32

	friction    lane.Float
	restitution lane.Float
	springs     [lane.Width]SpringSettings

	// Prestep products, valid for the rest of the step.
	inertiaA      BodyInertias
	inertiaB      BodyInertias
	angularA      [MaxContactsPerManifold]lane.Vec3 // rA × n
	angularB      [MaxContactsPerManifold]lane.Vec3 // rB × n
	effectiveMass [MaxContactsPerManifold]lane.Float
	bias          [MaxContactsPerManifold]lane.Float
	impulseScale  lane.Float

	tangent1        lane.Vec3
	tangent2        lane.Vec3
	frictionOffsetA lane.Vec3
	frictionOffsetB lane.Vec3
	tangentMass1    lane.Float
	tangentMass2    lane.Float

	// Accumulated impulses: zeroed on creation, preserved across frames.
	normalImpulse   [MaxContactsPerManifold]lane.Float
	tangentImpulse1 lane.Float
	tangentImpulse2 lane.Float
}

// ContactBatch is the contact constraint type batch.
type ContactBatch struct {
	bundles []contactBundle
}

func (b *ContactBatch) TypeID() TypeID { return ContactTypeID }

func (b *ContactBatch) ConstraintCount() int {
	if len(b.bundles) == 0 {
		return 0
	}
	return (len(b.bundles)-1)*lane.Width + b.bundles[len(b.bundles)-1].count
}

func (b *ContactBatch) BundleCount() int { return len(b.bundles) }

func (b *ContactBatch) HandleAt(slot int) Handle {
	return b.bundles[slot/lane.Width].handles[slot%lane.Width]
}

func (b *ContactBatch) BodyHandles(slot int) []actor.Handle {
	bundle := &b.bundles[slot/lane.Width]
	i := slot % lane.Width
	return []actor.Handle{bundle.bodyA[i], bundle.bodyB[i]}
}

// Add appends a constraint with zeroed accumulated impulses and returns its
// slot.
func (b *ContactBatch) Add(handle Handle, description *ContactDescription) int {
	if len(b.bundles) == 0 || b.bundles[len(b.bundles)-1].count == lane.Width {
		b.bundles = append(b.bundles, contactBundle{})
	}
	bundle := &b.bundles[len(b.bundles)-1]
	i := bundle.count
	bundle.count++

	bundle.handles[i] = handle
	b.write(bundle, i, description)
	bundle.tangentImpulse1[i] = 0
	bundle.tangentImpulse2[i] = 0
	for point := 0; point < MaxContactsPerManifold; point++ {
		bundle.normalImpulse[point][i] = 0
	}
	return (len(b.bundles)-1)*lane.Width + i
}

// Update rewrites a slot's geometry from a fresh manifold, leaving the
// accumulated impulses alone.
func (b *ContactBatch) Update(slot int, description *ContactDescription) {
	bundle := &b.bundles[slot/lane.Width]
	b.write(bundle, slot%lane.Width, description)
}

func (b *ContactBatch) write(bundle *contactBundle, i int, description *ContactDescription) {
	bundle.bodyA[i] = description.BodyA
	bundle.bodyB[i] = description.BodyB
	bundle.normal.SetLane(i, description.Normal)
	bundle.contactCount[i] = uint8(description.Count)
	for point := 0; point < description.Count; point++ {
		bundle.offsetA[point].SetLane(i, description.Points[point].OffsetA)
		bundle.offsetB[point].SetLane(i, description.Points[point].OffsetB)
		bundle.depth[point][i] = description.Points[point].Depth
		bundle.features[point][i] = description.Points[point].Feature
	}
	bundle.friction[i] = description.Friction
	bundle.restitution[i] = description.Restitution
	bundle.springs[i] = description.Springs
}

// Impulses reads a slot's accumulated impulse state.
func (b *ContactBatch) Impulses(slot int) ContactImpulses {
	bundle := &b.bundles[slot/lane.Width]
	i := slot % lane.Width
	impulses := ContactImpulses{
		Count:   int(bundle.contactCount[i]),
		Tangent: [2]float64{bundle.tangentImpulse1[i], bundle.tangentImpulse2[i]},
	}
	for point := 0; point < impulses.Count; point++ {
		impulses.Normal[point] = bundle.normalImpulse[point][i]
		impulses.Features[point] = bundle.features[point][i]
		impulses.OffsetA[point] = bundle.offsetA[point].Lane(i)
	}
	return impulses
}

// SetImpulses overwrites a slot's accumulated impulses, used when contact
// counts change and old impulses are redistributed onto surviving contacts.
func (b *ContactBatch) SetImpulses(slot int, impulses *ContactImpulses) {
	bundle := &b.bundles[slot/lane.Width]
	i := slot % lane.Width
	for point := 0; point < MaxContactsPerManifold; point++ {
		bundle.normalImpulse[point][i] = impulses.Normal[point]
	}
	bundle.tangentImpulse1[i] = impulses.Tangent[0]
	bundle.tangentImpulse2[i] = impulses.Tangent[1]
}

func (b *ContactBatch) RemoveSlot(slot int) Handle {
	lastBundle := len(b.bundles) - 1
	lastLane := b.bundles[lastBundle].count - 1
	bundleIndex, laneIndex := slot/lane.Width, slot%lane.Width

	moved := InvalidHandle
	if bundleIndex != lastBundle || laneIndex != lastLane {
		moved = b.bundles[lastBundle].handles[lastLane]
		copyContactLane(&b.bundles[bundleIndex], laneIndex, &b.bundles[lastBundle], lastLane)
	}
	b.bundles[lastBundle].count--
	if b.bundles[lastBundle].count == 0 {
		b.bundles = b.bundles[:lastBundle]
	}
	return moved
}

func copyContactLane(dst *contactBundle, di int, src *contactBundle, si int) {
	dst.handles[di] = src.handles[si]
	dst.bodyA[di] = src.bodyA[si]
	dst.bodyB[di] = src.bodyB[si]
	dst.normal.SetLane(di, src.normal.Lane(si))
	dst.contactCount[di] = src.contactCount[si]
	for point := 0; point < MaxContactsPerManifold; point++ {
		dst.offsetA[point].SetLane(di, src.offsetA[point].Lane(si))
		dst.offsetB[point].SetLane(di, src.offsetB[point].Lane(si))
		dst.depth[point][di] = src.depth[point][si]
		dst.features[point][di] = src.features[point][si]
		dst.normalImpulse[point][di] = src.normalImpulse[point][si]
	}
	dst.friction[di] = src.friction[si]
	dst.restitution[di] = src.restitution[si]
	dst.springs[di] = src.springs[si]
	dst.tangentImpulse1[di] = src.tangentImpulse1[si]
	dst.tangentImpulse2[di] = src.tangentImpulse2[si]
}

// Prestep computes, per contact: the angular Jacobians rA×n and rB×n, the
// softened effective mass 1/(J·M⁻¹·Jᵀ), the bias velocity from position
// error (or the speculative approach limit for negative depth), and the
// restitution target from presolve velocities. Friction gets a central
// tangent basis and decoupled tangent effective masses.
func (b *ContactBatch) Prestep(bodies *actor.Bodies, dt float64, bundleStart, bundleEnd int) {
	for bundleIndex := bundleStart; bundleIndex < bundleEnd; bundleIndex++ {
		bundle := &b.bundles[bundleIndex]
		GatherInertias(bodies, &bundle.bodyA, bundle.count, &bundle.inertiaA)
		GatherInertias(bodies, &bundle.bodyB, bundle.count, &bundle.inertiaB)

		for i := 0; i < bundle.count; i++ {
			softness := bundle.springs[i].Compute(dt)
			bundle.impulseScale[i] = softness.ImpulseScale
		}

		var inverseMassSum lane.Float
		lane.Add(&bundle.inertiaA.InverseMass, &bundle.inertiaB.InverseMass, &inverseMassSum)

		for point := 0; point < MaxContactsPerManifold; point++ {
			lane.Vec3Cross(&bundle.offsetA[point], &bundle.normal, &bundle.angularA[point])
			lane.Vec3Cross(&bundle.offsetB[point], &bundle.normal, &bundle.angularB[point])

			var rotatedA, rotatedB lane.Vec3
			lane.Mat3Transform(&bundle.inertiaA.InverseInertia, &bundle.angularA[point], &rotatedA)
			lane.Mat3Transform(&bundle.inertiaB.InverseInertia, &bundle.angularB[point], &rotatedB)

			var angularContributionA, angularContributionB lane.Float
			lane.Vec3Dot(&rotatedA, &bundle.angularA[point], &angularContributionA)
			lane.Vec3Dot(&rotatedB, &bundle.angularB[point], &angularContributionB)

			var inverseEffectiveMass lane.Float
			lane.Add(&inverseMassSum, &angularContributionA, &inverseEffectiveMass)
			lane.Add(&inverseEffectiveMass, &angularContributionB, &inverseEffectiveMass)

			for i := 0; i < bundle.count; i++ {
				if point >= int(bundle.contactCount[i]) || inverseEffectiveMass[i] < 1e-10 {
					bundle.effectiveMass[point][i] = 0
					bundle.bias[point][i] = 0
					continue
				}
				softness := bundle.springs[i].Compute(dt)
				bundle.effectiveMass[point][i] = softness.EffectiveMassCFMScale / inverseEffectiveMass[i]

				depth := bundle.depth[point][i]
				var bias float64
				if depth >= 0 {
					bias = math.Min(depth*softness.PositionErrorToVelocity, maxRecoveryVelocity)
				} else {
					// Speculative contact: allow closing the gap within the
					// step, but no faster.
					bias = depth / dt
				}

				// Restitution targets the presolve approach speed.
				bodyA := bodies.Lookup(bundle.bodyA[i])
				bodyB := bodies.Lookup(bundle.bodyB[i])
				relativePresolve := bodyB.PresolveVelocity.
					Add(bodyB.PresolveAngularVelocity.Cross(bundle.offsetB[point].Lane(i))).
					Sub(bodyA.PresolveVelocity).
					Sub(bodyA.PresolveAngularVelocity.Cross(bundle.offsetA[point].Lane(i))).
					Dot(bundle.normal.Lane(i))
				if relativePresolve < -restitutionThreshold {
					bias = math.Max(bias, -bundle.restitution[i]*relativePresolve)
				}
				bundle.bias[point][i] = bias
			}
		}

		b.prestepFriction(bundle)
	}
}

// prestepFriction builds the central friction frame: one tangent pair and
// effective masses at the manifold's weighted center.
func (b *ContactBatch) prestepFriction(bundle *contactBundle) {
	for i := 0; i < bundle.count; i++ {
		tangent1, tangent2 := actor.TangentBasis(bundle.normal.Lane(i))
		bundle.tangent1.SetLane(i, tangent1)
		bundle.tangent2.SetLane(i, tangent2)

		count := int(bundle.contactCount[i])
		var centerA, centerB mgl64.Vec3
		for point := 0; point < count; point++ {
			centerA = centerA.Add(bundle.offsetA[point].Lane(i))
			centerB = centerB.Add(bundle.offsetB[point].Lane(i))
		}
		if count > 0 {
			scale := 1 / float64(count)
			centerA = centerA.Mul(scale)
			centerB = centerB.Mul(scale)
		}
		bundle.frictionOffsetA.SetLane(i, centerA)
		bundle.frictionOffsetB.SetLane(i, centerB)
	}

	for axis := 0; axis < 2; axis++ {
		tangent := &bundle.tangent1
		target := &bundle.tangentMass1
		if axis == 1 {
			tangent = &bundle.tangent2
			target = &bundle.tangentMass2
		}

		var crossA, crossB, rotatedA, rotatedB lane.Vec3
		lane.Vec3Cross(&bundle.frictionOffsetA, tangent, &crossA)
		lane.Vec3Cross(&bundle.frictionOffsetB, tangent, &crossB)
		lane.Mat3Transform(&bundle.inertiaA.InverseInertia, &crossA, &rotatedA)
		lane.Mat3Transform(&bundle.inertiaB.InverseInertia, &crossB, &rotatedB)

		var contributionA, contributionB, inverse lane.Float
		lane.Vec3Dot(&rotatedA, &crossA, &contributionA)
		lane.Vec3Dot(&rotatedB, &crossB, &contributionB)
		lane.Add(&bundle.inertiaA.InverseMass, &bundle.inertiaB.InverseMass, &inverse)
		lane.Add(&inverse, &contributionA, &inverse)
		lane.Add(&inverse, &contributionB, &inverse)

		for i := 0; i < bundle.count; i++ {
			if inverse[i] < 1e-10 {
				target[i] = 0
				continue
			}
			target[i] = 1 / inverse[i]
		}
	}
}

// WarmStart applies last frame's accumulated impulses once. A zero-impulse
// constraint leaves velocities untouched.
func (b *ContactBatch) WarmStart(bodies *actor.Bodies, access VelocityAccess, bundleStart, bundleEnd int) {
	for bundleIndex := bundleStart; bundleIndex < bundleEnd; bundleIndex++ {
		bundle := &b.bundles[bundleIndex]
		var velocityA, velocityB BodyVelocities
		access.GatherVelocities(&bundle.bodyA, bundle.count, &velocityA)
		access.GatherVelocities(&bundle.bodyB, bundle.count, &velocityB)

		for point := 0; point < MaxContactsPerManifold; point++ {
			applyNormalImpulse(bundle, point, &bundle.normalImpulse[point], &velocityA, &velocityB)
		}
		applyFrictionImpulse(bundle, &bundle.tangentImpulse1, &bundle.tangentImpulse2, &velocityA, &velocityB)

		access.ScatterVelocities(&bundle.bodyA, bundle.count, &velocityA)
		access.ScatterVelocities(&bundle.bodyB, bundle.count, &velocityB)
	}
}

// SolveIteration runs one projected-impulse pass: normal impulses clamped
// non-negative, then central friction clamped to the Coulomb disc scaled by
// the manifold's total normal impulse.
func (b *ContactBatch) SolveIteration(access VelocityAccess, bundleStart, bundleEnd int) {
	for bundleIndex := bundleStart; bundleIndex < bundleEnd; bundleIndex++ {
		bundle := &b.bundles[bundleIndex]
		var velocityA, velocityB BodyVelocities
		access.GatherVelocities(&bundle.bodyA, bundle.count, &velocityA)
		access.GatherVelocities(&bundle.bodyB, bundle.count, &velocityB)

		var totalNormal lane.Float
		for point := 0; point < MaxContactsPerManifold; point++ {
			solveNormalContact(bundle, point, &velocityA, &velocityB)
			lane.Add(&totalNormal, &bundle.normalImpulse[point], &totalNormal)
		}
		solveFriction(bundle, &totalNormal, &velocityA, &velocityB)

		access.ScatterVelocities(&bundle.bodyA, bundle.count, &velocityA)
		access.ScatterVelocities(&bundle.bodyB, bundle.count, &velocityB)
	}
}

// solveNormalContact computes the constraint-space impulse for one contact:
// csi = effectiveMass·(bias − Jv) − impulseScale·accumulated, accumulates
// with a non-negativity clamp, and applies the delta through J·M⁻¹.
func solveNormalContact(bundle *contactBundle, point int, velocityA, velocityB *BodyVelocities) {
	for i := 0; i < bundle.count; i++ {
		if point >= int(bundle.contactCount[i]) {
			continue
		}
		normal := bundle.normal.Lane(i)
		contactVelocityA := velocityA.Linear.Lane(i).Add(velocityA.Angular.Lane(i).Cross(bundle.offsetA[point].Lane(i)))
		contactVelocityB := velocityB.Linear.Lane(i).Add(velocityB.Angular.Lane(i).Cross(bundle.offsetB[point].Lane(i)))
		separation := contactVelocityB.Sub(contactVelocityA).Dot(normal)

		impulse := bundle.effectiveMass[point][i]*(bundle.bias[point][i]-separation) -
			bundle.impulseScale[i]*bundle.normalImpulse[point][i]

		accumulated := bundle.normalImpulse[point][i] + impulse
		if accumulated < 0 {
			accumulated = 0
		}
		delta := accumulated - bundle.normalImpulse[point][i]
		bundle.normalImpulse[point][i] = accumulated

		applyImpulseLane(bundle, point, i, normal.Mul(delta), velocityA, velocityB)
	}
}

// solveFriction cancels tangential velocity at the friction center, clamping
// the accumulated tangent impulse to the disc of radius μ·Σ normal impulse.
func solveFriction(bundle *contactBundle, totalNormal *lane.Float, velocityA, velocityB *BodyVelocities) {
	for i := 0; i < bundle.count; i++ {
		if bundle.contactCount[i] == 0 {
			continue
		}
		tangent1 := bundle.tangent1.Lane(i)
		tangent2 := bundle.tangent2.Lane(i)
		offsetA := bundle.frictionOffsetA.Lane(i)
		offsetB := bundle.frictionOffsetB.Lane(i)

		relative := velocityB.Linear.Lane(i).Add(velocityB.Angular.Lane(i).Cross(offsetB)).
			Sub(velocityA.Linear.Lane(i)).Sub(velocityA.Angular.Lane(i).Cross(offsetA))

		impulse1 := -relative.Dot(tangent1) * bundle.tangentMass1[i]
		impulse2 := -relative.Dot(tangent2) * bundle.tangentMass2[i]

		accumulated1 := bundle.tangentImpulse1[i] + impulse1
		accumulated2 := bundle.tangentImpulse2[i] + impulse2

		maximum := bundle.friction[i] * totalNormal[i]
		lengthSq := accumulated1*accumulated1 + accumulated2*accumulated2
		if lengthSq > maximum*maximum {
			scale := 0.0
			if lengthSq > 0 {
				scale = maximum / math.Sqrt(lengthSq)
			}
			accumulated1 *= scale
			accumulated2 *= scale
		}

		delta1 := accumulated1 - bundle.tangentImpulse1[i]
		delta2 := accumulated2 - bundle.tangentImpulse2[i]
		bundle.tangentImpulse1[i] = accumulated1
		bundle.tangentImpulse2[i] = accumulated2

		impulse := tangent1.Mul(delta1).Add(tangent2.Mul(delta2))
		applyCenterImpulseLane(bundle, i, impulse, velocityA, velocityB)
	}
}

// applyNormalImpulse applies an already-accumulated impulse along the normal
// at one contact, per lane (warm start path).
func applyNormalImpulse(bundle *contactBundle, point int, magnitude *lane.Float, velocityA, velocityB *BodyVelocities) {
	for i := 0; i < bundle.count; i++ {
		if point >= int(bundle.contactCount[i]) || magnitude[i] == 0 {
			continue
		}
		applyImpulseLane(bundle, point, i, bundle.normal.Lane(i).Mul(magnitude[i]), velocityA, velocityB)
	}
}

func applyFrictionImpulse(bundle *contactBundle, magnitude1, magnitude2 *lane.Float, velocityA, velocityB *BodyVelocities) {
	for i := 0; i < bundle.count; i++ {
		if bundle.contactCount[i] == 0 || (magnitude1[i] == 0 && magnitude2[i] == 0) {
			continue
		}
		impulse := bundle.tangent1.Lane(i).Mul(magnitude1[i]).
			Add(bundle.tangent2.Lane(i).Mul(magnitude2[i]))
		applyCenterImpulseLane(bundle, i, impulse, velocityA, velocityB)
	}
}

// applyImpulseLane pushes B by +impulse and A by −impulse at a contact.
func applyImpulseLane(bundle *contactBundle, point, i int, impulse mgl64.Vec3, velocityA, velocityB *BodyVelocities) {
	velocityA.Linear.SetLane(i, velocityA.Linear.Lane(i).Sub(impulse.Mul(bundle.inertiaA.InverseMass[i])))
	velocityB.Linear.SetLane(i, velocityB.Linear.Lane(i).Add(impulse.Mul(bundle.inertiaB.InverseMass[i])))

	torqueA := bundle.offsetA[point].Lane(i).Cross(impulse.Mul(-1))
	torqueB := bundle.offsetB[point].Lane(i).Cross(impulse)
	velocityA.Angular.SetLane(i, velocityA.Angular.Lane(i).Add(applyInertiaLane(&bundle.inertiaA, i, torqueA)))
	velocityB.Angular.SetLane(i, velocityB.Angular.Lane(i).Add(applyInertiaLane(&bundle.inertiaB, i, torqueB)))
}

func applyCenterImpulseLane(bundle *contactBundle, i int, impulse mgl64.Vec3, velocityA, velocityB *BodyVelocities) {
	velocityA.Linear.SetLane(i, velocityA.Linear.Lane(i).Sub(impulse.Mul(bundle.inertiaA.InverseMass[i])))
	velocityB.Linear.SetLane(i, velocityB.Linear.Lane(i).Add(impulse.Mul(bundle.inertiaB.InverseMass[i])))

	torqueA := bundle.frictionOffsetA.Lane(i).Cross(impulse.Mul(-1))
	torqueB := bundle.frictionOffsetB.Lane(i).Cross(impulse)
	velocityA.Angular.SetLane(i, velocityA.Angular.Lane(i).Add(applyInertiaLane(&bundle.inertiaA, i, torqueA)))
	velocityB.Angular.SetLane(i, velocityB.Angular.Lane(i).Add(applyInertiaLane(&bundle.inertiaB, i, torqueB)))
}

// applyInertiaLane multiplies one lane of a wide inverse inertia tensor by a
// scalar torque.
func applyInertiaLane(inertia *BodyInertias, i int, torque mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{
		inertia.InverseInertia.XX[i]*torque.X() + inertia.InverseInertia.XY[i]*torque.Y() + inertia.InverseInertia.XZ[i]*torque.Z(),
		inertia.InverseInertia.YX[i]*torque.X() + inertia.InverseInertia.YY[i]*torque.Y() + inertia.InverseInertia.YZ[i]*torque.Z(),
		inertia.InverseInertia.ZX[i]*torque.X() + inertia.InverseInertia.ZY[i]*torque.Y() + inertia.InverseInertia.ZZ[i]*torque.Z(),
	}
}
