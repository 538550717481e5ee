package constraint

import "math"

// SpringSettings parameterize the implicit damped spring behind every soft
// constraint: how fast position error converts to corrective velocity and
// how much accumulated impulse leaks per iteration.
type SpringSettings struct {
	// Frequency is the undamped oscillation frequency in Hz.
	Frequency float64
	// DampingRatio: 1 is critical damping, below oscillates, above creeps.
	DampingRatio float64
}

// DefaultContactSprings is the stiffness used for contact constraints.
var DefaultContactSprings = SpringSettings{Frequency: 30, DampingRatio: 1}

// Softness is the per-timestep form of the spring settings consumed by the
// prestep and solve kernels.
type Softness struct {
	// PositionErrorToVelocity converts penetration into bias velocity.
	PositionErrorToVelocity float64
	// EffectiveMassCFMScale softens the effective mass: the solved system
	// is J·M⁻¹·Jᵀ + CFM rather than the rigid J·M⁻¹·Jᵀ.
	EffectiveMassCFMScale float64
	// ImpulseScale leaks a fraction of the accumulated impulse each
	// iteration, implementing the spring's damping implicitly.
	ImpulseScale float64
}

// Compute derives the softness terms for a timestep from the standard
// implicit damped-spring formulation:
//
//	ω  = 2π·frequency
//	γ  = 2·dampingRatio
//	positionErrorToVelocity = ω / (γ + ω·dt)
//	extra = 1 / (ω·dt·(γ + ω·dt))
//	effectiveMassCFMScale = 1 / (1 + extra)
//	impulseScale = extra · effectiveMassCFMScale
func (s SpringSettings) Compute(dt float64) Softness {
	angularFrequency := 2 * math.Pi * s.Frequency
	twoTimesDamping := 2 * s.DampingRatio
	scaledFrequency := angularFrequency * dt

	extra := 1 / (scaledFrequency * (twoTimesDamping + scaledFrequency))
	cfmScale := 1 / (1 + extra)
	return Softness{
		PositionErrorToVelocity: angularFrequency / (twoTimesDamping + scaledFrequency),
		EffectiveMassCFMScale:   cfmScale,
		ImpulseScale:            extra * cfmScale,
	}
}
