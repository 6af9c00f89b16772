package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestQuaternion(t *testing.T) {
	const eps = 0.00001

	{
		q := NewIdentityQuaternion()
		v1 := NewVector3(1, 2, 3)
		v2 := q.ApplyTo(v1)
		if v2.Sub(v1).Len() > eps {
			t.Error("v1 != v2: ", v1, v2)
		}
	}

	{
		q := NewQuaternionFromAxisAngle(NewVector3(1, 0, 0), 2*math.Pi)
		v1 := NewVector3(1, 2, 3)
		v2 := q.ApplyTo(v1)
		if v2.Sub(v1).Len() > 0.00001 {
			t.Error("v1 != v2: ", v1, v2)
		}
	}

	{
		q := NewQuaternionFromAxisAngle(NewVector3(1, 0, 0), math.Pi)
		q = q.Mul(q)
		v1 := NewVector3(1, 2, 3)
		v2 := q.ApplyTo(v1)
		if v2.Sub(v1).Len() > 0.00001 {
			t.Error("v1 != v2: ", v1, v2)
		}
	}

	{
		q := NewQuaternionFromAxisAngle(NewVector3(1, 2, 3), 1.2)
		q = q.Mul(q.Conjugate())
		v1 := NewVector3(1, 2, 3)
		v2 := q.ApplyTo(v1)
		if v2.Sub(v1).Len() > eps {
			t.Error("v1 != v2: ", v1, v2)
		}
	}
}

func TestQuaternionApplyTo(t *testing.T) {
	q := NewQuaternionFromAxisAngle(NewVector3(0, 0, 1), math.Pi/2)
	v := q.ApplyTo(NewVector3(1, 0, 0))
	if !NearlyEqual(v, NewVector3(0, 1, 0), 0.00001) {
		t.Error("rotate X by 90deg around Z: ", v)
	}

	// compare with mathgl
	axis := NewVector3(0.3, -1, 2).Normalize()
	q = NewQuaternionFromAxisAngle(axis, 0.7)
	mq := mgl32.QuatRotate(0.7, mgl32.Vec3{axis.X, axis.Y, axis.Z})
	src := NewVector3(4, 5, -6)
	expected := mq.Rotate(mgl32.Vec3{src.X, src.Y, src.Z})
	if !NearlyEqual(q.ApplyTo(src), NewVector3(expected[0], expected[1], expected[2]), 0.0001) {
		t.Error("ApplyTo differs from mathgl: ", q.ApplyTo(src), expected)
	}
}

func TestQuaternionMul(t *testing.T) {
	a := NewQuaternionFromAxisAngle(NewVector3(1, 0, 0), 0.5)
	b := NewQuaternionFromAxisAngle(NewVector3(0, 1, 0), -1.1)
	ma := mgl32.QuatRotate(0.5, mgl32.Vec3{1, 0, 0})
	mb := mgl32.QuatRotate(-1.1, mgl32.Vec3{0, 1, 0})
	expected := ma.Mul(mb)
	q := a.Mul(b)
	if !SameRotation(q, NewQuaternion(expected.V[0], expected.V[1], expected.V[2], expected.W), 0.00001) {
		t.Error("Mul differs from mathgl: ", q, expected)
	}

	// (a*b) v == a (b v)
	v := NewVector3(1, 2, 3)
	if !NearlyEqual(q.ApplyTo(v), a.ApplyTo(b.ApplyTo(v)), 0.0001) {
		t.Error("composition order")
	}
}
