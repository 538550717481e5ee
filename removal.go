package talon

import (
	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/constraint"
)

// removalGroup keys independent remove-from-type-batch jobs: every job
// owns one type batch, so swap-removal and location repair never cross
// job boundaries.
type removalGroup struct {
	Batch int32
	Type  constraint.TypeID
}

// flushRemovals destroys the constraints returned by the pair cache flush.
// The work decomposes into the removal job kinds: remove-from-body-lists,
// remove-from-batch-referenced-handles, and one remove-from-type-batch job
// per affected type batch; these touch disjoint resources and drain in
// parallel. Handle return runs after the drain because slot compaction
// repairs locations the return invalidates.
func (w *World) flushRemovals(removed []constraint.Handle) {
	if len(removed) == 0 {
		return
	}

	// Capture bodies and locations up front so no job reads state another
	// job is compacting.
	bodies := make([][]actor.Handle, len(removed))
	locations := make([]constraint.Location, len(removed))
	groups := make(map[removalGroup][]constraint.Handle)
	for i, handle := range removed {
		bodies[i] = w.Solver.BodyHandlesOf(handle)
		locations[i] = w.Solver.LocationOf(handle)
		key := removalGroup{Batch: locations[i].Batch, Type: locations[i].Type}
		groups[key] = append(groups[key], handle)
	}

	jobs := make([]func(), 0, len(groups)+2)
	jobs = append(jobs, func() {
		for i, handle := range removed {
			w.Solver.RemoveFromBodyLists(handle, bodies[i])
		}
	})
	jobs = append(jobs, func() {
		for i := range removed {
			w.Solver.UnreferenceLocation(locations[i], bodies[i])
		}
	})
	for _, handles := range groups {
		handles := handles
		jobs = append(jobs, func() {
			for _, handle := range handles {
				w.Solver.RemoveFromTypeBatch(handle)
			}
		})
	}

	workers := max(1, w.Config.Workers)
	task(workers, jobs, func(job func()) { job() })

	for _, handle := range removed {
		w.Solver.ReturnHandle(handle)
	}
}
