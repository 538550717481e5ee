package lane

import "github.com/go-gl/mathgl/mgl64"

// Quat is a lane-wide unit quaternion in structure-of-arrays layout.
type Quat struct {
	X, Y, Z, W Float
}

// SplatQuat broadcasts a scalar quaternion to all lanes.
func SplatQuat(q mgl64.Quat) Quat {
	return Quat{X: Splat(q.X()), Y: Splat(q.Y()), Z: Splat(q.Z()), W: Splat(q.W)}
}

// SetLane writes a scalar quaternion into one lane.
func (q *Quat) SetLane(i int, s mgl64.Quat) {
	q.X[i] = s.X()
	q.Y[i] = s.Y()
	q.Z[i] = s.Z()
	q.W[i] = s.W
}

// Lane extracts one lane as a scalar quaternion.
func (q *Quat) Lane(i int) mgl64.Quat {
	return mgl64.Quat{W: q.W[i], V: mgl64.Vec3{q.X[i], q.Y[i], q.Z[i]}}
}

// QuatConjugate writes the conjugate of q into out.
func QuatConjugate(q, out *Quat) {
	Neg(&q.X, &out.X)
	Neg(&q.Y, &out.Y)
	Neg(&q.Z, &out.Z)
	out.W = q.W
}

// QuatRotate rotates v by q and writes the result into out.
// Uses t = 2 * cross(q.xyz, v); v' = v + w*t + cross(q.xyz, t),
// which needs two cross products instead of two quaternion products.
func QuatRotate(q *Quat, v *Vec3, out *Vec3) {
	axis := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	var t Vec3
	Vec3Cross(&axis, v, &t)
	Vec3Scale(&t, 2, &t)

	var wt Vec3
	Vec3ScaleWide(&t, &q.W, &wt)

	var ct Vec3
	Vec3Cross(&axis, &t, &ct)

	var sum Vec3
	Vec3Add(v, &wt, &sum)
	Vec3Add(&sum, &ct, out)
}

// QuatRotateInverse rotates v by the conjugate of q and writes into out.
func QuatRotateInverse(q *Quat, v *Vec3, out *Vec3) {
	var conj Quat
	QuatConjugate(q, &conj)
	QuatRotate(&conj, v, out)
}
