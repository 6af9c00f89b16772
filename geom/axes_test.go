package geom

import "testing"

func TestAxisConversion(t *testing.T) {
	trs := TRS{
		Translation: Vector3{1, 2, 3},
		Rotation:    *NewQuaternionFromAxisAngle(NewVector3(1, 1, 0), 0.8),
		Scale:       Vector3{1, 2, 3},
	}
	z := YUpToZUpTRS(trs)
	if !NearlyEqual(&z.Translation, NewVector3(1, -3, 2), 0) {
		t.Error("location: ", z.Translation)
	}
	if !NearlyEqual(&z.Scale, NewVector3(1, 3, 2), 0) {
		t.Error("scale: ", z.Scale)
	}

	back := ZUpToYUpTRS(z)
	if back != trs {
		t.Error("round trip: ", trs, back)
	}

	// rotations must agree with the basis change on vectors
	v := NewVector3(0.3, -0.7, 2)
	rotated := YUpToZUpLocation(trs.Rotation.ApplyTo(v))
	converted := z.Rotation.ApplyTo(YUpToZUpLocation(v))
	if !NearlyEqual(rotated, converted, 0.00001) {
		t.Error("rotation conversion: ", rotated, converted)
	}

	m := YUpToZUpMatrix()
	if !NearlyEqual(m.ApplyTo(v), YUpToZUpLocation(v), 0) {
		t.Error("matrix conversion: ", m.ApplyTo(v))
	}
}
