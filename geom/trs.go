package geom

// TRS is a local transform split into translation, rotation and scale.
type TRS struct {
	Translation Vector3
	Rotation    Quaternion
	Scale       Vector3
}

func NewIdentityTRS() TRS {
	return TRS{Rotation: Quaternion{W: 1}, Scale: Vector3{1, 1, 1}}
}

func NewTRSFromMatrix(m *Matrix4) TRS {
	t, r, s := m.Decompose()
	return TRS{Translation: *t, Rotation: *r, Scale: *s}
}

func (t *TRS) Matrix() *Matrix4 {
	return NewTRSMatrix4(&t.Translation, &t.Rotation, &t.Scale)
}

// RigidMatrix returns T * R, ignoring scale.
func (t *TRS) RigidMatrix() *Matrix4 {
	return NewTRSMatrix4(&t.Translation, &t.Rotation, &Vector3{1, 1, 1})
}

func (t *TRS) IsIdentity(eps Element) bool {
	return t.Translation.Len() <= eps &&
		SameRotation(&t.Rotation, NewIdentityQuaternion(), eps) &&
		NearlyEqual(&t.Scale, &Vector3{1, 1, 1}, eps)
}
