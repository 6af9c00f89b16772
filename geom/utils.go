package geom

func Abs(v Element) Element {
	if v < 0 {
		return -v
	}
	return v
}

// NearlyEqual compares two vectors component-wise.
func NearlyEqual(a, b *Vector3, eps Element) bool {
	return Abs(a.X-b.X) <= eps && Abs(a.Y-b.Y) <= eps && Abs(a.Z-b.Z) <= eps
}

// SameRotation reports whether q1 and q2 describe the same rotation.
// q and -q are the same rotation.
func SameRotation(q1, q2 *Quaternion, eps Element) bool {
	return Abs(Abs(q1.Dot(q2))-1) <= eps
}
