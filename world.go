package talon

import (
	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/constraint"
	"github.com/akmonengine/talon/pair"
)

const (
	sleepVelocityThreshold = 0.05
	sleepTimeThreshold     = 0.5
)

// World wires body storage, the broad phase, the narrow phase, and the
// constraint solver into one stepped simulation.
type World struct {
	Bodies      *actor.Bodies
	Shapes      *actor.Shapes
	Solver      *constraint.Solver
	Cache       *pair.Cache
	NarrowPhase *NarrowPhase
	SpatialGrid *SpatialGrid
	Events      Events
	Config      Config

	pairsBuffer []BodyPair
}

// NewWorld builds a world from the configuration; zero-valued knobs take
// their defaults. diagnostics may be nil.
func NewWorld(config Config, diagnostics Diagnostics) *World {
	defaults := DefaultConfig()
	if config.Workers < 1 {
		config.Workers = defaults.Workers
	}
	if config.VelocityIterationCount < 1 {
		config.VelocityIterationCount = defaults.VelocityIterationCount
	}
	if config.FallbackBatchThreshold < 1 {
		config.FallbackBatchThreshold = defaults.FallbackBatchThreshold
	}
	if config.DepthRefinerMaxIterations < 1 {
		config.DepthRefinerMaxIterations = defaults.DepthRefinerMaxIterations
	}
	if config.ConvergenceThreshold <= 0 {
		config.ConvergenceThreshold = defaults.ConvergenceThreshold
	}
	if config.MinimumDepthThreshold == 0 {
		config.MinimumDepthThreshold = defaults.MinimumDepthThreshold
	}

	bodies := actor.NewBodies()
	shapes := actor.NewShapes()
	solver := constraint.NewSolver(bodies, config.FallbackBatchThreshold)
	cache := pair.NewCache(config.Workers)

	return &World{
		Bodies:      bodies,
		Shapes:      shapes,
		Solver:      solver,
		Cache:       cache,
		NarrowPhase: NewNarrowPhase(bodies, shapes, solver, cache, config, diagnostics),
		SpatialGrid: NewSpatialGrid(2.0, 1024),
		Events:      NewEvents(),
		Config:      config,
	}
}

// AddBody adds a body to the active set.
func (w *World) AddBody(description actor.Description) actor.Handle {
	return w.Bodies.Add(description, w.Shapes)
}

// RemoveBody destroys a body, its constraints, and its cached pairs.
func (w *World) RemoveBody(handle actor.Handle) {
	for _, constraintHandle := range append([]constraint.Handle(nil), w.Solver.ConstraintsOfBody(handle)...) {
		w.Solver.Remove(constraintHandle)
	}
	w.Cache.DropIf(func(id pair.ID) bool {
		return id.First().Handle() == handle || id.Second().Handle() == handle
	})
	w.Bodies.Remove(handle)
}

// Wake moves a sleeping body back into the active set.
func (w *World) Wake(handle actor.Handle) {
	if w.Bodies.Location(handle).Set == 0 {
		return
	}
	w.Bodies.Wake(handle)
	w.Events.emitWake(handle)
}

// Step advances the simulation: integrate velocities, broad phase, narrow
// phase over worker batchers, pair-cache flush, the iterative velocity
// solve, pose integration, removal flush, sleeping.
func (w *World) Step(dt float64) {
	workers := max(1, w.Config.Workers)
	active := w.Bodies.Active()

	// Gravity and damping; presolve velocities captured for restitution.
	taskRange(workers, len(active.Bodies), func(_, i int) {
		active.Bodies[i].IntegrateVelocity(dt, w.Config.Gravity)
	})

	// Broad phase: candidate overlap pairs from inflated bounds.
	w.SpatialGrid.Update(w.Bodies, w.Shapes)
	w.pairsBuffer = w.SpatialGrid.CollectPairs(w.pairsBuffer[:0])

	// Narrow phase: embarrassingly parallel over top-level pairs, then a
	// per-worker flush draining partial bundles and reconciling manifolds.
	w.NarrowPhase.BeginFrame()
	taskWorkers(workers, w.pairsBuffer, func(workerIndex int, p BodyPair) {
		_ = w.NarrowPhase.HandleOverlap(workerIndex, p.A, p.B)
	})
	taskRange(workers, workers, func(_, workerIndex int) {
		w.NarrowPhase.FlushWorker(workerIndex)
	})

	// Single-threaded synchronization point: deferred adds, cache merge,
	// stale detection, events.
	removed := w.NarrowPhase.Flush(&w.Events, func(handle actor.Handle) {
		w.Bodies.Wake(handle)
		w.Events.emitWake(handle)
	})

	// Iterative velocity solve.
	w.Solver.Solve(dt, w.Config.VelocityIterationCount, func(items int, fn func(workerIndex, item int)) {
		taskRange(workers, items, fn)
	})

	// Advance poses from the solved velocities.
	taskRange(workers, len(active.Bodies), func(_, i int) {
		active.Bodies[i].IntegratePose(dt)
	})

	// Stale constraints solved their last (clamped, separated) iteration
	// above; their storage is reclaimed by the parallel removal drain.
	w.flushRemovals(removed)

	w.trySleep(dt)
	w.Events.flush()
}

// trySleep moves slow constraint-free bodies into sleeping sets. Bodies
// participating in constraints stay active; a full island analysis would
// sleep them together, which this engine does not attempt.
func (w *World) trySleep(dt float64) {
	active := w.Bodies.Active().Bodies
	var sleepers []actor.Handle
	for slot := range active {
		body := &active[slot]
		if body.Mobility != actor.MobilityDynamic {
			continue
		}
		if body.Velocity.Len() > sleepVelocityThreshold ||
			body.AngularVelocity.Len() > sleepVelocityThreshold {
			body.SleepTimer = 0
			continue
		}
		body.SleepTimer += dt
		if body.SleepTimer >= sleepTimeThreshold && len(w.Solver.ConstraintsOfBody(body.Handle)) == 0 {
			sleepers = append(sleepers, body.Handle)
		}
	}
	for _, handle := range sleepers {
		w.Bodies.Sleep(handle)
		w.Events.emitSleep(handle)
	}
}
