package constraint

import (
	"math"
	"testing"
)

func TestSpringSoftness(t *testing.T) {
	settings := SpringSettings{Frequency: 30, DampingRatio: 1}
	softness := settings.Compute(1.0 / 60.0)

	t.Run("all terms positive and bounded", func(t *testing.T) {
		if softness.PositionErrorToVelocity <= 0 {
			t.Errorf("expected positive position error scale, got %v", softness.PositionErrorToVelocity)
		}
		if softness.EffectiveMassCFMScale <= 0 || softness.EffectiveMassCFMScale > 1 {
			t.Errorf("expected cfm scale in (0, 1], got %v", softness.EffectiveMassCFMScale)
		}
		if softness.ImpulseScale < 0 || softness.ImpulseScale >= 1 {
			t.Errorf("expected impulse scale in [0, 1), got %v", softness.ImpulseScale)
		}
	})

	t.Run("stiffer springs correct faster", func(t *testing.T) {
		soft := SpringSettings{Frequency: 5, DampingRatio: 1}.Compute(1.0 / 60.0)
		stiff := SpringSettings{Frequency: 60, DampingRatio: 1}.Compute(1.0 / 60.0)
		if stiff.PositionErrorToVelocity <= soft.PositionErrorToVelocity {
			t.Errorf("expected stiffer spring to convert more error to velocity: %v vs %v",
				stiff.PositionErrorToVelocity, soft.PositionErrorToVelocity)
		}
	})

	t.Run("matches the closed form", func(t *testing.T) {
		dt := 1.0 / 60.0
		omega := 2 * math.Pi * settings.Frequency
		gamma := 2 * settings.DampingRatio
		extra := 1 / (omega * dt * (gamma + omega*dt))

		wantPositionScale := omega / (gamma + omega*dt)
		wantCFM := 1 / (1 + extra)
		if math.Abs(softness.PositionErrorToVelocity-wantPositionScale) > 1e-12 {
			t.Errorf("position error scale: expected %v, got %v", wantPositionScale, softness.PositionErrorToVelocity)
		}
		if math.Abs(softness.EffectiveMassCFMScale-wantCFM) > 1e-12 {
			t.Errorf("cfm scale: expected %v, got %v", wantCFM, softness.EffectiveMassCFMScale)
		}
		if math.Abs(softness.ImpulseScale-extra*wantCFM) > 1e-12 {
			t.Errorf("impulse scale: expected %v, got %v", extra*wantCFM, softness.ImpulseScale)
		}
	})
}
