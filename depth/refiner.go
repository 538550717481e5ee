// Package depth implements the iterative minimum-penetration search of the
// narrow phase. Given two convex shapes and an initial normal guess, the
// refiner walks a portal (an up-to-3-vertex simplex of Minkowski-difference
// supports) toward the surface point closest to the search target, producing
// a refined separating normal and signed depth (depth > 0 means penetration).
//
// All state is lane-wide: one call refines Width independent pairs, with a
// per-lane termination mask. Lanes that converge stop updating; the loop
// runs until every lane terminated or the iteration cap is reached, in which
// case the best normal and depth seen so far are returned (never worse than
// the initial guess).
//
// References:
//   - Snethen: "XenoCollide: Complex Collision Made Simple" (Game
//     Programming Gems 7), the portal-refinement family this search
//     belongs to.
//   - Van den Bergen: "Collision Detection in Interactive 3D Environments"
//     (2003)
package depth

import (
	"math"

	"github.com/akmonengine/talon/lane"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// degenerateNormalRatio classifies a simplex whose triangle normal is
	// vanishing relative to its edges: length²(normal) ≤ ratio·maxEdge².
	degenerateNormalRatio = 1e-10

	// vertexEdgeThreshold sub-classifies a degenerate simplex as a single
	// vertex when even its longest edge has collapsed.
	vertexEdgeThreshold = 1e-14
)

// Sampler supplies lane-wide Minkowski-difference support samples.
// support.Minkowski satisfies it.
type Sampler interface {
	Sample(direction *lane.Vec3, out *lane.Vec3)
}

// Config bounds the search.
type Config struct {
	// MaxIterations caps refinement; on exhaustion the best-so-far result
	// is returned. Non-convergence is a tuning signal, not an error.
	MaxIterations int
	// ConvergenceThreshold is the absolute distance tolerance in the
	// penetrating regime; separated lanes widen it by their separation.
	ConvergenceThreshold float64
	// MinimumDepthThreshold is the caller-supplied floor below which
	// further refinement of a separated lane is not worthwhile.
	// Typically a small negative number.
	MinimumDepthThreshold float64

	// Observer, if set, is called after every iteration with the live
	// simplex and best depth. Diagnostics only.
	Observer func(iteration int, simplex *Simplex, bestDepth *lane.Float)
}

// DefaultConfig returns the tuning used by the narrow phase.
func DefaultConfig() Config {
	return Config{
		MaxIterations:         50,
		ConvergenceThreshold:  1e-6,
		MinimumDepthThreshold: -0.5,
	}
}

// Vertex is one lane-wide simplex slot: a Minkowski-difference support point
// and a per-lane occupancy flag. A slot whose Exists lane is clear may still
// hold stale data; it is overwritten before use.
type Vertex struct {
	Point  lane.Vec3
	Exists lane.Mask
}

// Simplex is the up-to-3-vertex portal.
type Simplex struct {
	A, B, C Vertex
}

// Result carries the refined normal and signed depth per lane. Converged is
// clear for lanes that hit the iteration cap and returned best-so-far.
type Result struct {
	Normal    lane.Vec3
	Depth     lane.Float
	Converged lane.Mask
}

// Refine runs the depth search for one bundle.
//
// localOffsetB is the offset from A's origin to B's origin in A's frame,
// used to calibrate triangle normals outward. guessNormal must be unit
// length per lane; guessDepth is the caller's overlap estimate (use +Inf
// when unknown). inactive masks lanes that should not run at all (partial
// bundles); their result lanes are the initial guess.
func Refine(sampler Sampler, localOffsetB, guessNormal *lane.Vec3, guessDepth *lane.Float, inactive *lane.Mask, config Config, out *Result) {
	bestNormal := *guessNormal
	terminated := *inactive

	// Seed: sample along the guess and take the tighter of the sampled
	// depth and the caller's estimate.
	var sample lane.Vec3
	sampler.Sample(&bestNormal, &sample)
	var bestDepth lane.Float
	lane.Vec3Dot(&sample, &bestNormal, &bestDepth)
	lane.Min(&bestDepth, guessDepth, &bestDepth)
	for i := 0; i < lane.Width; i++ {
		if terminated[i] {
			bestDepth[i] = (*guessDepth)[i]
		}
	}

	var simplex Simplex
	var direction lane.Vec3

	for iteration := 0; iteration < config.MaxIterations && !lane.All(&terminated); iteration++ {
		refineStep(sampler, &simplex, &sample, localOffsetB, &bestNormal, &bestDepth, &terminated, &direction, &config)
		if config.Observer != nil {
			config.Observer(iteration, &simplex, &bestDepth)
		}
	}

	out.Normal = bestNormal
	out.Depth = bestDepth
	out.Converged = terminated
}

// refineStep performs one contract iteration across all active lanes.
func refineStep(sampler Sampler, simplex *Simplex, incoming, localOffsetB, bestNormal *lane.Vec3, bestDepth *lane.Float, terminated *lane.Mask, direction *lane.Vec3, config *Config) {
	// Search target: the origin while separated, otherwise the closest
	// point to the origin on the best supporting plane so far.
	var target lane.Vec3
	for i := 0; i < lane.Width; i++ {
		scale := 0.0
		if (*bestDepth)[i] > 0 {
			scale = (*bestDepth)[i]
		}
		target.X[i] = bestNormal.X[i] * scale
		target.Y[i] = bestNormal.Y[i] * scale
		target.Z[i] = bestNormal.Z[i] * scale
	}

	foldSample(simplex, incoming, &target, terminated)

	// Logically empty slots duplicate their neighbor so degenerate
	// simplices take the same code path as healthy ones.
	lane.Vec3Select(&simplex.B.Exists, &simplex.B.Point, &simplex.A.Point, &simplex.B.Point)
	lane.Vec3Select(&simplex.C.Exists, &simplex.C.Point, &simplex.B.Point, &simplex.C.Point)

	a, b, c := &simplex.A.Point, &simplex.B.Point, &simplex.C.Point

	var ab, bc, ca, ac lane.Vec3
	lane.Vec3Sub(b, a, &ab)
	lane.Vec3Sub(c, b, &bc)
	lane.Vec3Sub(a, c, &ca)
	lane.Vec3Sub(c, a, &ac)

	var normal lane.Vec3
	lane.Vec3Cross(&ab, &ac, &normal)
	var normalLengthSq lane.Float
	lane.Vec3Dot(&normal, &normal, &normalLengthSq)

	var abLengthSq, bcLengthSq, caLengthSq lane.Float
	lane.Vec3Dot(&ab, &ab, &abLengthSq)
	lane.Vec3Dot(&bc, &bc, &bcLengthSq)
	lane.Vec3Dot(&ca, &ca, &caLengthSq)

	// Calibrate the triangle normal outward from the other body.
	var calibration lane.Float
	lane.Vec3Dot(&normal, localOffsetB, &calibration)
	for i := 0; i < lane.Width; i++ {
		if calibration[i] < 0 {
			normal.X[i] = -normal.X[i]
			normal.Y[i] = -normal.Y[i]
			normal.Z[i] = -normal.Z[i]
		}
	}

	// Barycentric-sign edge-plane tests: T is outside an edge when it lies
	// on the opposite side of the edge line from the third vertex. Signs
	// only; no divisions by length².
	violatedAB := edgeViolations(&ab, &normal, &target, a, c)
	violatedBC := edgeViolations(&bc, &normal, &target, b, a)
	violatedCA := edgeViolations(&ca, &normal, &target, c, b)

	var closest lane.Vec3
	var featureVertex, featureEdge lane.Mask
	var keptEdge [lane.Width]uint8 // 0 = AB, 1 = BC, 2 = CA

	for i := 0; i < lane.Width; i++ {
		if (*terminated)[i] {
			continue
		}
		maxEdgeSq := math.Max(abLengthSq[i], math.Max(bcLengthSq[i], caLengthSq[i]))
		degenerate := normalLengthSq[i] <= degenerateNormalRatio*maxEdgeSq
		vertexCase := degenerate && maxEdgeSq < vertexEdgeThreshold
		edgeDegenerate := degenerate && !vertexCase

		switch {
		case vertexCase:
			featureVertex[i] = true
			closest.X[i] = simplex.A.Point.X[i]
			closest.Y[i] = simplex.A.Point.Y[i]
			closest.Z[i] = simplex.A.Point.Z[i]

		case edgeDegenerate || violatedAB[i] || violatedBC[i] || violatedCA[i]:
			featureEdge[i] = true
			switch {
			case violatedAB[i]:
				keptEdge[i] = 0
			case violatedBC[i]:
				keptEdge[i] = 1
			case violatedCA[i]:
				keptEdge[i] = 2
			default:
				// Degenerate but not a vertex: project on the longest edge.
				keptEdge[i] = longestEdge(abLengthSq[i], bcLengthSq[i], caLengthSq[i])
			}
			start, edge := edgeLane(simplex, &ab, &bc, &ca, keptEdge[i], i)
			edgeSq := edge.Dot(edge)
			t := 0.0
			if edgeSq > 0 {
				ts := target.Lane(i).Sub(start).Dot(edge) / edgeSq
				t = math.Min(math.Max(ts, 0), 1)
			}
			point := start.Add(edge.Mul(t))
			closest.X[i], closest.Y[i], closest.Z[i] = point.X(), point.Y(), point.Z()

		default:
			// T is inside all edge planes: the face is the closest
			// feature and the closest-point direction is the calibrated
			// triangle normal.
			inverseLength := 1 / math.Sqrt(normalLengthSq[i])
			nx := normal.X[i] * inverseLength
			ny := normal.Y[i] * inverseLength
			nz := normal.Z[i] * inverseLength
			distance := (target.X[i]-simplex.A.Point.X[i])*nx +
				(target.Y[i]-simplex.A.Point.Y[i])*ny +
				(target.Z[i]-simplex.A.Point.Z[i])*nz
			closest.X[i] = target.X[i] - nx*distance
			closest.Y[i] = target.Y[i] - ny*distance
			closest.Z[i] = target.Z[i] - nz*distance
		}
	}

	// Early termination: squared distance from T to its projection under
	// the regime-dependent tolerance. Separated lanes widen the absolute
	// tolerance as depth grows more negative.
	var distanceSq lane.Float
	lane.Vec3DistanceSquared(&target, &closest, &distanceSq)
	for i := 0; i < lane.Width; i++ {
		if (*terminated)[i] {
			continue
		}
		epsilon := config.ConvergenceThreshold
		if (*bestDepth)[i] < 0 {
			epsilon = config.ConvergenceThreshold - (*bestDepth)[i]
		}
		if distanceSq[i] < epsilon*epsilon {
			(*terminated)[i] = true
		}
	}

	// Next search direction: from the closest feature toward T, tilted
	// away from the surface when T is strictly inside the face in the
	// penetrating regime. The tilt breaks stall-cycles near convergence
	// without touching separated-case behavior.
	for i := 0; i < lane.Width; i++ {
		if (*terminated)[i] {
			continue
		}
		dx := target.X[i] - closest.X[i]
		dy := target.Y[i] - closest.Y[i]
		dz := target.Z[i] - closest.Z[i]
		insideFace := !featureVertex[i] && !featureEdge[i]
		if insideFace && (*bestDepth)[i] > 0 {
			dx = target.X[i] + 4*dx
			dy = target.Y[i] + 4*dy
			dz = target.Z[i] + 4*dz
		}
		lengthSq := dx*dx + dy*dy + dz*dz
		if lengthSq < 1e-24 {
			// Converged to the target; keep probing along the best normal.
			direction.X[i] = bestNormal.X[i]
			direction.Y[i] = bestNormal.Y[i]
			direction.Z[i] = bestNormal.Z[i]
			continue
		}
		inverseLength := 1 / math.Sqrt(lengthSq)
		direction.X[i] = dx * inverseLength
		direction.Y[i] = dy * inverseLength
		direction.Z[i] = dz * inverseLength
	}

	// Shrink the simplex to exactly the vertices supporting the feature.
	shrinkToFeature(simplex, &featureVertex, &featureEdge, &keptEdge, terminated)

	// Sample along the new direction; a strictly better depth updates the
	// best plane.
	sampler.Sample(direction, incoming)
	var sampledDepth lane.Float
	lane.Vec3Dot(incoming, direction, &sampledDepth)
	for i := 0; i < lane.Width; i++ {
		if (*terminated)[i] {
			continue
		}
		if sampledDepth[i] < (*bestDepth)[i] {
			(*bestDepth)[i] = sampledDepth[i]
			bestNormal.X[i] = direction.X[i]
			bestNormal.Y[i] = direction.Y[i]
			bestNormal.Z[i] = direction.Z[i]
		}
		if (*bestDepth)[i] <= config.MinimumDepthThreshold {
			(*terminated)[i] = true
		}
	}
}

// foldSample merges the previous iteration's support sample into the simplex:
// the first empty slot takes it; a full simplex keeps the sub-triangle
// containing the direction from the new sample toward the target.
func foldSample(simplex *Simplex, sample *lane.Vec3, target *lane.Vec3, terminated *lane.Mask) {
	// Sub-triangle selection for full lanes, computed before any slot
	// assignment mutates the triangle.
	var ab, ac, normal lane.Vec3
	lane.Vec3Sub(&simplex.B.Point, &simplex.A.Point, &ab)
	lane.Vec3Sub(&simplex.C.Point, &simplex.A.Point, &ac)
	lane.Vec3Cross(&ab, &ac, &normal)

	for i := 0; i < lane.Width; i++ {
		if (*terminated)[i] {
			continue
		}
		switch {
		case !simplex.A.Exists[i]:
			simplex.A.Point.SetLane(i, sample.Lane(i))
			simplex.A.Exists[i] = true
		case !simplex.B.Exists[i]:
			simplex.B.Point.SetLane(i, sample.Lane(i))
			simplex.B.Exists[i] = true
		case !simplex.C.Exists[i]:
			simplex.C.Point.SetLane(i, sample.Lane(i))
			simplex.C.Exists[i] = true
		default:
			d := sample.Lane(i)
			toTarget := target.Lane(i).Sub(d)
			n := normal.Lane(i)
			planeA := simplex.A.Point.Lane(i).Sub(d).Cross(n).Dot(toTarget)
			planeB := simplex.B.Point.Lane(i).Sub(d).Cross(n).Dot(toTarget)
			planeC := simplex.C.Point.Lane(i).Sub(d).Cross(n).Dot(toTarget)
			switch {
			case planeB >= 0 && planeC < 0:
				// Sub-triangle BCD: drop A.
				simplex.A.Point.SetLane(i, d)
			case planeC >= 0 && planeA < 0:
				// Sub-triangle CAD: drop B.
				simplex.B.Point.SetLane(i, d)
			default:
				// Sub-triangle ABD, and the fallback when no wedge
				// qualifies (the best-normal shift invalidated the
				// portal, which only happens when best depth strictly
				// improved this iteration, so progress is guaranteed).
				simplex.C.Point.SetLane(i, d)
			}
		}
	}
}

// edgeViolations tests, per lane, whether T lies outside the edge plane:
// on the opposite side of the edge line (in the triangle plane) from the
// remaining vertex.
func edgeViolations(edge, normal, target, start, opposite *lane.Vec3) lane.Mask {
	var plane lane.Vec3
	lane.Vec3Cross(edge, normal, &plane)

	var toTarget, toOpposite lane.Vec3
	lane.Vec3Sub(target, start, &toTarget)
	lane.Vec3Sub(opposite, start, &toOpposite)

	var targetSide, oppositeSide lane.Float
	lane.Vec3Dot(&plane, &toTarget, &targetSide)
	lane.Vec3Dot(&plane, &toOpposite, &oppositeSide)

	var violated lane.Mask
	for i := 0; i < lane.Width; i++ {
		violated[i] = targetSide[i]*oppositeSide[i] < 0
	}
	return violated
}

func longestEdge(abSq, bcSq, caSq float64) uint8 {
	if abSq >= bcSq && abSq >= caSq {
		return 0
	}
	if bcSq >= caSq {
		return 1
	}
	return 2
}

// edgeLane extracts one lane's selected edge as scalar start/offset.
func edgeLane(simplex *Simplex, ab, bc, ca *lane.Vec3, which uint8, i int) (start, edge mgl64.Vec3) {
	switch which {
	case 0:
		return simplex.A.Point.Lane(i), ab.Lane(i)
	case 1:
		return simplex.B.Point.Lane(i), bc.Lane(i)
	default:
		return simplex.C.Point.Lane(i), ca.Lane(i)
	}
}

// shrinkToFeature rewrites the simplex so exactly the vertices supporting
// the selected feature remain. Kept vertices are packed into the low slots.
func shrinkToFeature(simplex *Simplex, featureVertex, featureEdge *lane.Mask, keptEdge *[lane.Width]uint8, terminated *lane.Mask) {
	for i := 0; i < lane.Width; i++ {
		if (*terminated)[i] {
			continue
		}
		switch {
		case (*featureVertex)[i]:
			simplex.A.Exists[i] = true
			simplex.B.Exists[i] = false
			simplex.C.Exists[i] = false
		case (*featureEdge)[i]:
			switch keptEdge[i] {
			case 1: // BC
				simplex.A.Point.SetLane(i, simplex.B.Point.Lane(i))
				simplex.B.Point.SetLane(i, simplex.C.Point.Lane(i))
			case 2: // CA
				second := simplex.A.Point.Lane(i)
				simplex.A.Point.SetLane(i, simplex.C.Point.Lane(i))
				simplex.B.Point.SetLane(i, second)
			}
			simplex.A.Exists[i] = true
			simplex.B.Exists[i] = true
			simplex.C.Exists[i] = false
		default:
			simplex.A.Exists[i] = true
			simplex.B.Exists[i] = true
			simplex.C.Exists[i] = true
		}
	}
}
