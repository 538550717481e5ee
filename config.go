package talon

import (
	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/depth"
	"github.com/akmonengine/talon/lane"
	"github.com/go-gl/mathgl/mgl64"
)

// Config enumerates the tuning knobs of the pipeline. Zero values of the
// numeric knobs are replaced by DefaultConfig values in NewWorld; Gravity
// is used as given.
type Config struct {
	// Workers sizes the fork/join pool. Determinism on replay holds for a
	// fixed worker count and lane width.
	Workers int

	// VelocityIterationCount is the solver iteration count per step.
	VelocityIterationCount int

	// FallbackBatchThreshold caps colored batches; constraints conflicting
	// with every colored batch overflow into the Jacobi fallback batch.
	FallbackBatchThreshold int

	// DepthRefinerMaxIterations caps the penetration search per pair.
	DepthRefinerMaxIterations int

	// ConvergenceThreshold is the refiner's distance tolerance.
	ConvergenceThreshold float64

	// MinimumDepthThreshold is the refiner's separated-depth floor,
	// typically slightly negative.
	MinimumDepthThreshold float64

	Gravity mgl64.Vec3
}

// DefaultConfig returns the tuning used by the demo scenes.
func DefaultConfig() Config {
	refiner := depth.DefaultConfig()
	return Config{
		Workers:                   1,
		VelocityIterationCount:    6,
		FallbackBatchThreshold:    16,
		DepthRefinerMaxIterations: refiner.MaxIterations,
		ConvergenceThreshold:      refiner.ConvergenceThreshold,
		MinimumDepthThreshold:     refiner.MinimumDepthThreshold,
		Gravity:                   mgl64.Vec3{0, -9.81, 0},
	}
}

// LaneWidth reports the compiled lane width W.
func LaneWidth() int {
	return lane.Width
}

func (c Config) refinerConfig() depth.Config {
	return depth.Config{
		MaxIterations:         c.DepthRefinerMaxIterations,
		ConvergenceThreshold:  c.ConvergenceThreshold,
		MinimumDepthThreshold: c.MinimumDepthThreshold,
	}
}

// Diagnostics receives non-fatal observations from the hot path. All
// methods may be called from worker goroutines.
type Diagnostics interface {
	// RefinerExhausted reports lanes that hit the iteration cap and
	// returned best-so-far results.
	RefinerExhausted(lanes int)
	// ContinuityDowngraded reports a pair whose requested continuity mode
	// is not supported and was resolved as discrete.
	ContinuityDowngraded(mode actor.ContinuityMode)
}
