package particle

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a translate-rotate-scale transform: a point p maps to
// Translation + Orientation·(Scale⊙p). Orientation is a unit quaternion.
type Transform struct {
	Translation r3.Vec
	Scale       r3.Vec
	Orientation quat.Number
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		Scale:       r3.Vec{X: 1, Y: 1, Z: 1},
		Orientation: quat.Number{Real: 1},
	}
}

// Translate returns an identity transform moved to t.
func Translate(t r3.Vec) Transform {
	tr := Identity()
	tr.Translation = t
	return tr
}

// AxisAngle returns the unit quaternion rotating by angle radians about axis.
// A zero axis yields the identity rotation.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	n := r3.Norm(axis)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	s := math.Sin(angle/2) / n
	return quat.Number{
		Real: math.Cos(angle / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	}
}

// Rotate rotates v by the unit quaternion q.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

func mulElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

func invElem(a r3.Vec) r3.Vec {
	inv := func(x float64) float64 {
		if x == 0 {
			return 0
		}
		return 1 / x
	}
	return r3.Vec{X: inv(a.X), Y: inv(a.Y), Z: inv(a.Z)}
}

// Apply maps a point.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(t.Translation, Rotate(t.Orientation, mulElem(t.Scale, p)))
}

// ApplyVector maps a direction; translation is ignored.
func (t Transform) ApplyVector(v r3.Vec) r3.Vec {
	return Rotate(t.Orientation, mulElem(t.Scale, v))
}

// Compose returns the transform applying child first, then parent.
// Non-uniform parent scale combined with child rotation is approximated.
func Compose(parent, child Transform) Transform {
	return Transform{
		Translation: parent.Apply(child.Translation),
		Scale:       mulElem(parent.Scale, child.Scale),
		Orientation: normalize(quat.Mul(parent.Orientation, child.Orientation)),
	}
}

// Inverse returns the inverse transform. It is exact for uniform scale.
func (t Transform) Inverse() Transform {
	invRot := quat.Conj(t.Orientation)
	invScale := invElem(t.Scale)
	return Transform{
		Translation: r3.Scale(-1, mulElem(invScale, Rotate(invRot, t.Translation))),
		Scale:       invScale,
		Orientation: invRot,
	}
}

// RelativeTo expresses the absolute transform abs in the space whose
// absolute transform is space.
func RelativeTo(space, abs Transform) Transform {
	return Compose(space.Inverse(), abs)
}

// LerpTransform blends a toward b: translation and scale linearly,
// orientation by normalized quaternion lerp along the shorter arc.
func LerpTransform(a, b Transform, t float64) Transform {
	qb := b.Orientation
	dot := a.Orientation.Real*qb.Real + a.Orientation.Imag*qb.Imag +
		a.Orientation.Jmag*qb.Jmag + a.Orientation.Kmag*qb.Kmag
	if dot < 0 {
		qb = quat.Scale(-1, qb)
	}
	return Transform{
		Translation: lerpVec(a.Translation, b.Translation, t),
		Scale:       lerpVec(a.Scale, b.Scale, t),
		Orientation: normalize(quat.Add(quat.Scale(1-t, a.Orientation), quat.Scale(t, qb))),
	}
}

func lerpVec(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}
