package vnode

import (
	"math"

	"github.com/binzume/gltfrig/geom"
)

// Heuristic selects how edit bones are oriented.
type Heuristic int

const (
	// HeuristicNone uses the node rotation as is. Bones point along the node's +Y.
	HeuristicNone Heuristic = iota
	// HeuristicTemperance turns each uniformly scaled bone by a multiple of 90 degrees
	// so that +Y points roughly at its children.
	HeuristicTemperance
)

// DefaultBoneLength is used for bones without a child bone to point at.
const DefaultBoneLength float32 = 1

const boneEpsilon = 1e-5

// axisRotation returns the rotation taking +Y to the signed axis closest to dir.
func axisRotation(dir *geom.Vector3) *geom.Quaternion {
	ax, ay, az := geom.Abs(dir.X), geom.Abs(dir.Y), geom.Abs(dir.Z)
	switch {
	case ax >= ay && ax >= az:
		if dir.X > 0 {
			return geom.NewQuaternionFromAxisAngle(&geom.Vector3{Z: 1}, -math.Pi/2)
		}
		return geom.NewQuaternionFromAxisAngle(&geom.Vector3{Z: 1}, math.Pi/2)
	case az >= ay:
		if dir.Z > 0 {
			return geom.NewQuaternionFromAxisAngle(&geom.Vector3{X: 1}, math.Pi/2)
		}
		return geom.NewQuaternionFromAxisAngle(&geom.Vector3{X: 1}, -math.Pi/2)
	case dir.Y < 0:
		return geom.NewQuaternionFromAxisAngle(&geom.Vector3{Z: 1}, math.Pi)
	}
	return geom.NewIdentityQuaternion()
}

func (b *builder) applyBoneHeuristic() error {
	if b.opts.BoneHeuristic != HeuristicTemperance {
		return nil
	}
	for _, arma := range b.g.Armatures() {
		for _, id := range b.g.Bones(arma) {
			v := b.g.Nodes[id]
			if !v.BaseTRS.Scale.IsUniform(boneEpsilon) {
				continue
			}
			var dir geom.Vector3
			n := 0
			for _, c := range v.Children {
				child := b.g.Nodes[c]
				if child.Type != Bone || child.BaseTRS.Translation.Len() <= boneEpsilon {
					continue
				}
				t := child.BaseTRS.Translation
				dir = *dir.Add(t.Normalize())
				n++
			}
			if n == 0 || dir.Len() <= boneEpsilon {
				continue
			}
			q := axisRotation(&dir)
			if geom.SameRotation(q, geom.NewIdentityQuaternion(), boneEpsilon) {
				continue
			}
			b.rotateAfter(v, q)
		}
	}
	return nil
}

// calcBoneMatrices computes the rest frame of every bone in armature space and its
// length. BindArmaMat is the unmodified node transform in armature space. Parents come before children in Bones order.
func (b *builder) calcBoneMatrices() error {
	one := &geom.Vector3{X: 1, Y: 1, Z: 1}
	for _, arma := range b.g.Armatures() {
		bones := b.g.Bones(arma)
		for _, id := range bones {
			v := b.g.Nodes[id]
			trs := v.TRS()
			v.EditBoneTrans = trs.Translation
			v.EditBoneRot = trs.Rotation
			local := geom.NewTRSMatrix4(&v.EditBoneTrans, &v.EditBoneRot, one)
			bind := v.BaseTRS.Matrix()
			parent := b.g.Nodes[v.Parent]
			if parent.Type == Bone {
				v.EditBoneArmaMat = parent.EditBoneArmaMat.Mul(local)
				v.BindArmaMat = parent.BindArmaMat.Mul(bind)
			} else {
				v.EditBoneArmaMat = local
				v.BindArmaMat = bind
			}
		}
		for _, id := range bones {
			v := b.g.Nodes[id]
			length := float32(math.Inf(1))
			for _, c := range v.Children {
				child := b.g.Nodes[c]
				if child.Type != Bone {
					continue
				}
				if d := child.EditBoneTrans.Len(); d > boneEpsilon && d < length {
					length = d
				}
			}
			if math.IsInf(float64(length), 1) {
				length = b.opts.DefaultBoneLength
			}
			v.BoneLength = length
		}
	}
	return nil
}

// EditBonePose converts a local TRS of a bone into the pose-bone TRS relative to its
// rest frame: t' = conj(er)(t-et), r' = conj(er)r, s' = s.
func (v *VNode) EditBonePose(trs *geom.TRS) geom.TRS {
	inv := v.EditBoneRot.Conjugate()
	return geom.TRS{
		Translation: *inv.ApplyTo(trs.Translation.Sub(&v.EditBoneTrans)),
		Rotation:    *inv.Mul(&trs.Rotation),
		Scale:       trs.Scale,
	}
}
