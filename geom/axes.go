package geom

import "math"

// glTF is Y-up. Hosts that are Z-up see X,Y,Z as X,-Z,Y.

func YUpToZUpLocation(v *Vector3) *Vector3 {
	return &Vector3{X: v.X, Y: -v.Z, Z: v.Y}
}

func YUpToZUpRotation(q *Quaternion) *Quaternion {
	return &Quaternion{X: q.X, Y: -q.Z, Z: q.Y, W: q.W}
}

func YUpToZUpScale(v *Vector3) *Vector3 {
	return &Vector3{X: v.X, Y: v.Z, Z: v.Y}
}

func ZUpToYUpLocation(v *Vector3) *Vector3 {
	return &Vector3{X: v.X, Y: v.Z, Z: -v.Y}
}

func ZUpToYUpRotation(q *Quaternion) *Quaternion {
	return &Quaternion{X: q.X, Y: q.Z, Z: -q.Y, W: q.W}
}

func ZUpToYUpScale(v *Vector3) *Vector3 {
	return &Vector3{X: v.X, Y: v.Z, Z: v.Y}
}

func YUpToZUpTRS(t TRS) TRS {
	return TRS{
		Translation: *YUpToZUpLocation(&t.Translation),
		Rotation:    *YUpToZUpRotation(&t.Rotation),
		Scale:       *YUpToZUpScale(&t.Scale),
	}
}

func ZUpToYUpTRS(t TRS) TRS {
	return TRS{
		Translation: *ZUpToYUpLocation(&t.Translation),
		Rotation:    *ZUpToYUpRotation(&t.Rotation),
		Scale:       *ZUpToYUpScale(&t.Scale),
	}
}

// YUpToZUpMatrix is the basis change applied to world matrices (Z-up = M * Y-up).
func YUpToZUpMatrix() *Matrix4 {
	return &Matrix4{
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, -1, 0, 0,
		0, 0, 0, 1,
	}
}

// CameraCorrection rotates a glTF camera or light (looking down -Z, up +Y) after
// the Y-up to Z-up conversion so that it keeps looking the same way in the host.
func CameraCorrection() *Quaternion {
	return NewQuaternionFromAxisAngle(&Vector3{1, 0, 0}, math.Pi/2)
}
