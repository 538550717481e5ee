package constraint

import (
	"math"

	"github.com/akmonengine/talon/actor"
)

// CombineRestitution averages the pair's restitution coefficients.
func CombineRestitution(matA, matB actor.Material) float64 {
	return (matA.Restitution + matB.Restitution) / 2.0
}

// CombineFriction uses the geometric mean of the dynamic coefficients.
func CombineFriction(matA, matB actor.Material) float64 {
	return math.Sqrt(matA.DynamicFriction * matB.DynamicFriction)
}
