// Package manifold produces contact manifolds for convex shape pairs: up to
// four contact points with stable feature ids and one shared surface normal.
// Pair-type generators run over lane-wide bundles; the generic convex path
// gets its normal and depth from the depth refiner and builds the point set
// by Sutherland-Hodgman clipping of the aligned contact features.
package manifold

import (
	"math"

	"github.com/akmonengine/talon/actor"
	"github.com/akmonengine/talon/depth"
	"github.com/akmonengine/talon/lane"
	"github.com/akmonengine/talon/support"
	"github.com/go-gl/mathgl/mgl64"
)

// Contact is one point of a manifold. Offsets are world-space vectors from
// each body's position to the contact point. Feature ids are stable per
// generator so frame-to-frame contact correspondence is possible.
type Contact struct {
	OffsetA mgl64.Vec3
	OffsetB mgl64.Vec3
	Depth   float64
	Feature uint32
}

// Manifold is the contact set of one pair. Normal points from A toward B in
// world space and is shared by all points (convex-convex).
type Manifold struct {
	Points [4]Contact
	Count  int
	Normal mgl64.Vec3
}

// Pair is one lane's input: resolved convex shapes and world poses.
// GuessNormal, when set, seeds the depth refiner with the previous frame's
// local-space normal instead of the center-offset default.
type Pair struct {
	ShapeA            actor.Convex
	ShapeB            actor.Convex
	PoseA             actor.Transform
	PoseB             actor.Transform
	SpeculativeMargin float64
	GuessNormal       mgl64.Vec3
	HasGuess          bool
}

// Generate fills out[:count] with manifolds for count pairs of identical
// shape types. count must not exceed lane.Width. Pairs whose depth falls
// below the combined speculative margin produce an empty manifold. Returns
// the number of lanes whose depth search hit the iteration cap and fell
// back to best-so-far.
func Generate(pairs []Pair, count int, config depth.Config, out []Manifold) int {
	if count == 0 {
		return 0
	}
	if _, ok := pairs[0].ShapeA.(actor.Sphere); ok {
		if _, ok := pairs[0].ShapeB.(actor.Sphere); ok {
			for i := 0; i < count; i++ {
				out[i] = sphereSphere(&pairs[i])
			}
			return 0
		}
	}
	return generateConvex(pairs, count, config, out)
}

// sphereSphere is the analytic sphere-sphere generator: one contact on the
// center line.
func sphereSphere(pair *Pair) Manifold {
	radiusA := pair.ShapeA.(actor.Sphere).Radius
	radiusB := pair.ShapeB.(actor.Sphere).Radius

	offset := pair.PoseB.Position.Sub(pair.PoseA.Position)
	distance := offset.Len()

	var normal mgl64.Vec3
	if distance > 1e-12 {
		normal = offset.Mul(1 / distance)
	} else {
		normal = mgl64.Vec3{0, 1, 0}
	}
	penetration := radiusA + radiusB - distance
	if penetration < -pair.SpeculativeMargin {
		return Manifold{}
	}

	surfaceA := normal.Mul(radiusA)
	surfaceB := normal.Mul(-radiusB)
	midpoint := pair.PoseA.Position.Add(surfaceA).
		Add(pair.PoseB.Position.Add(surfaceB)).Mul(0.5)

	var manifold Manifold
	manifold.Normal = normal
	manifold.Count = 1
	manifold.Points[0] = Contact{
		OffsetA: midpoint.Sub(pair.PoseA.Position),
		OffsetB: midpoint.Sub(pair.PoseB.Position),
		Depth:   penetration,
		Feature: 0,
	}
	return manifold
}

// generateConvex runs the wide depth refiner over the bundle, then clips
// contact features per lane.
func generateConvex(pairs []Pair, count int, config depth.Config, out []Manifold) int {
	samplerA := bundleFor(pairs[0].ShapeA)
	samplerB := bundleFor(pairs[0].ShapeB)
	poses := &support.PairPoses{}

	var inactive lane.Mask
	var guessNormal lane.Vec3
	for i := 0; i < lane.Width; i++ {
		if i >= count {
			inactive[i] = true
			continue
		}
		gatherShape(samplerA, i, pairs[i].ShapeA)
		gatherShape(samplerB, i, pairs[i].ShapeB)
		poses.Gather(i, pairs[i].PoseA, pairs[i].PoseB)

		// Warm-started pairs resume from last frame's normal; otherwise
		// start the search toward the other body, like the scalar simplex
		// searches do. Degenerate offsets fall back to +x.
		var guess mgl64.Vec3
		if pairs[i].HasGuess {
			guess = pairs[i].GuessNormal
		} else {
			guess = poses.OffsetB.Lane(i)
		}
		if guess.LenSqr() < 1e-12 {
			guess = mgl64.Vec3{1, 0, 0}
		} else {
			guess = guess.Normalize()
		}
		guessNormal.SetLane(i, guess)
	}

	sampler := &support.Minkowski{A: samplerA, B: samplerB, Poses: poses}
	guessDepth := lane.Splat(math.Inf(1))
	var result depth.Result
	depth.Refine(sampler, &poses.OffsetB, &guessNormal, &guessDepth, &inactive, config, &result)

	exhausted := 0
	for i := 0; i < count; i++ {
		if !result.Converged[i] {
			exhausted++
		}
		pair := &pairs[i]
		penetration := result.Depth[i]
		if penetration < -pair.SpeculativeMargin {
			out[i] = Manifold{}
			continue
		}
		// The refined normal lives in A's local frame.
		worldNormal := pair.PoseA.Rotation.Rotate(result.Normal.Lane(i))
		out[i] = clipFeatures(pair, worldNormal, penetration)
	}
	return exhausted
}

func bundleFor(shape actor.Convex) support.Points {
	switch shape.(type) {
	case actor.Sphere:
		return &support.SphereBundle{}
	case actor.Box:
		return &support.BoxBundle{}
	default:
		return nil
	}
}

func gatherShape(bundle support.Points, i int, shape actor.Convex) {
	switch b := bundle.(type) {
	case *support.SphereBundle:
		b.Gather(i, shape.(actor.Sphere))
	case *support.BoxBundle:
		b.Gather(i, shape.(actor.Box))
	}
}

// clipFeatures builds up to four contacts by clipping the incident feature
// (fewer vertices) against the reference feature's side planes.
func clipFeatures(pair *Pair, normal mgl64.Vec3, penetration float64) Manifold {
	localNormalA := pair.PoseA.InverseRotation.Rotate(normal)
	localNormalB := pair.PoseB.InverseRotation.Rotate(normal.Mul(-1))

	featureA := transformFeature(pair.ShapeA.ContactFeature(localNormalA), pair.PoseA)
	featureB := transformFeature(pair.ShapeB.ContactFeature(localNormalB), pair.PoseB)

	incident, reference := featureB, featureA
	if len(featureA) < len(featureB) {
		incident, reference = featureA, featureB
	}

	var manifold Manifold
	manifold.Normal = normal

	if len(incident) == 1 {
		appendContact(&manifold, pair, incident[0], penetration, 0)
		return manifold
	}

	clipped := clipIncidentAgainstReference(incident, reference, normal)
	if len(clipped) > len(manifold.Points) {
		reduceContacts(&manifold, pair, clipped, penetration, normal)
		return manifold
	}
	for _, point := range clipped {
		appendContact(&manifold, pair, point.position, penetration, point.feature)
	}

	// Clipping can empty out on near-edge configurations; fall back to the
	// deepest point of B.
	if manifold.Count == 0 {
		deepest := supportWorld(pair.ShapeB, pair.PoseB, normal.Mul(-1))
		appendContact(&manifold, pair, deepest, penetration, fallbackFeature)
	}
	return manifold
}

const fallbackFeature = 0xFFFF

// clipPoint tracks a polygon vertex and the stable feature id of its origin:
// original incident vertices keep their index; intersection points combine
// the clipped edge with the reference edge that cut it.
type clipPoint struct {
	position mgl64.Vec3
	feature  uint32
}

func clipIncidentAgainstReference(incident, reference []mgl64.Vec3, normal mgl64.Vec3) []clipPoint {
	output := make([]clipPoint, len(incident))
	for i, point := range incident {
		output[i] = clipPoint{position: point, feature: uint32(i)}
	}
	if len(reference) < 2 {
		return output
	}

	center := computeCenter(reference)
	for edgeIndex := 0; edgeIndex < len(reference); edgeIndex++ {
		if len(output) == 0 {
			break
		}
		v1 := reference[edgeIndex]
		v2 := reference[(edgeIndex+1)%len(reference)]

		edge := v2.Sub(v1)
		clipNormal := edge.Cross(normal)
		if clipNormal.Len() < 1e-12 {
			continue
		}
		clipNormal = clipNormal.Normalize()
		if center.Sub(v1).Dot(clipNormal) < 0 {
			clipNormal = clipNormal.Mul(-1)
		}

		output = clipPolygonAgainstPlane(output, v1, clipNormal, uint32(edgeIndex))
	}
	return output
}

// clipPolygonAgainstPlane implements Sutherland-Hodgman for a single plane.
func clipPolygonAgainstPlane(polygon []clipPoint, planePoint, planeNormal mgl64.Vec3, referenceEdge uint32) []clipPoint {
	if len(polygon) == 0 {
		return polygon
	}

	const tolerance = 1e-6
	output := make([]clipPoint, 0, len(polygon)+1)
	for i := 0; i < len(polygon); i++ {
		current := polygon[i]
		next := polygon[(i+1)%len(polygon)]

		currentDistance := current.position.Sub(planePoint).Dot(planeNormal)
		nextDistance := next.position.Sub(planePoint).Dot(planeNormal)

		if currentDistance >= -tolerance {
			output = append(output, current)
			if nextDistance < -tolerance {
				output = append(output, clipPoint{
					position: lineIntersectPlane(current.position, next.position, planePoint, planeNormal),
					feature:  intersectionFeature(current.feature, referenceEdge),
				})
			}
		} else if nextDistance >= -tolerance {
			output = append(output, clipPoint{
				position: lineIntersectPlane(current.position, next.position, planePoint, planeNormal),
				feature:  intersectionFeature(current.feature, referenceEdge),
			})
		}
	}
	return output
}

// intersectionFeature derives a stable id for a clipped vertex from the
// incident edge it came from and the reference edge that cut it.
func intersectionFeature(incidentFeature, referenceEdge uint32) uint32 {
	return 0x100 | incidentFeature<<4 | referenceEdge
}

func lineIntersectPlane(p1, p2, planePoint, planeNormal mgl64.Vec3) mgl64.Vec3 {
	direction := p2.Sub(p1)
	distance := p1.Sub(planePoint).Dot(planeNormal)
	denominator := direction.Dot(planeNormal)

	if math.Abs(denominator) < 1e-10 {
		return p1
	}

	t := -distance / denominator
	t = math.Max(0, math.Min(1, t))
	return p1.Add(direction.Mul(t))
}

func computeCenter(points []mgl64.Vec3) mgl64.Vec3 {
	sum := mgl64.Vec3{}
	for _, point := range points {
		sum = sum.Add(point)
	}
	return sum.Mul(1.0 / float64(len(points)))
}

func transformFeature(feature []mgl64.Vec3, transform actor.Transform) []mgl64.Vec3 {
	result := make([]mgl64.Vec3, len(feature))
	for i, point := range feature {
		result[i] = transform.Position.Add(transform.Rotation.Rotate(point))
	}
	return result
}

func supportWorld(shape actor.Convex, pose actor.Transform, direction mgl64.Vec3) mgl64.Vec3 {
	local := pose.InverseRotation.Rotate(direction)
	return pose.Position.Add(pose.Rotation.Rotate(shape.Support(local)))
}

func appendContact(manifold *Manifold, pair *Pair, position mgl64.Vec3, penetration float64, feature uint32) {
	manifold.Points[manifold.Count] = Contact{
		OffsetA: position.Sub(pair.PoseA.Position),
		OffsetB: position.Sub(pair.PoseB.Position),
		Depth:   penetration,
		Feature: feature,
	}
	manifold.Count++
}

// reduceContacts keeps the four extremal points in the contact tangent plane
// when clipping produced more than four.
func reduceContacts(manifold *Manifold, pair *Pair, points []clipPoint, penetration float64, normal mgl64.Vec3) {
	tangent1, tangent2 := actor.TangentBasis(normal)

	minX, maxX, minY, maxY := 0, 0, 0, 0
	minXValue, maxXValue := math.Inf(1), math.Inf(-1)
	minYValue, maxYValue := math.Inf(1), math.Inf(-1)
	for i, point := range points {
		x := point.position.Dot(tangent1)
		y := point.position.Dot(tangent2)
		if x < minXValue {
			minXValue, minX = x, i
		}
		if x > maxXValue {
			maxXValue, maxX = x, i
		}
		if y < minYValue {
			minYValue, minY = y, i
		}
		if y > maxYValue {
			maxYValue, maxY = y, i
		}
	}

	manifold.Count = 0
	kept := map[int]bool{minX: true, maxX: true, minY: true, maxY: true}
	for index := range points {
		if kept[index] && manifold.Count < len(manifold.Points) {
			appendContact(manifold, pair, points[index].position, penetration, points[index].feature)
		}
	}
}
