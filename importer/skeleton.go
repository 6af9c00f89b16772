package importer

import (
	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/gltfutil"
	"github.com/binzume/gltfrig/native"
	"github.com/binzume/gltfrig/vnode"
	"github.com/pkg/errors"
)

// EditSkeletonBuilder creates the edit bones of an armature. Build freezes them
// into the rest skeleton.
type EditSkeletonBuilder struct {
	arma *native.Armature
	used map[string]bool
}

func NewEditSkeletonBuilder(arma *native.Armature) *EditSkeletonBuilder {
	return &EditSkeletonBuilder{arma: arma, used: map[string]bool{}}
}

// AddBone adds a bone whose frame in armature space is mat. The bone runs along +Y
// of mat. Returns the bone name actually used.
func (b *EditSkeletonBuilder) AddBone(name, parent string, mat *geom.Matrix4, length float32) (*native.EditBone, error) {
	eb, err := b.arma.NewEditBone(gltfutil.UniqueName(b.used, name))
	if err != nil {
		return nil, err
	}
	eb.Parent = parent
	eb.Matrix = mat.Clone()
	eb.Length = length
	return eb, nil
}

func (b *EditSkeletonBuilder) Build() (*native.Rest, error) {
	return b.arma.Build()
}

// PoseCorrector sets pose bones so that rest * pose reproduces the node transform.
type PoseCorrector struct {
	arma *native.Armature
}

func NewPoseCorrector(arma *native.Armature) *PoseCorrector {
	return &PoseCorrector{arma: arma}
}

func (c *PoseCorrector) Apply(name string, v *vnode.VNode) (*native.PoseBone, error) {
	p, err := c.arma.PoseBone(name)
	if err != nil {
		return nil, err
	}
	trs := v.TRS()
	pose := v.EditBonePose(&trs)
	p.Location = pose.Translation
	p.Rotation = pose.Rotation
	p.Scale = pose.Scale
	return p, nil
}

func (im *Importer) createBones(armaNode *vnode.VNode) error {
	arma := im.objects[armaNode.ID].Armature()
	bones := im.graph.Bones(armaNode.ID)

	builder := NewEditSkeletonBuilder(arma)
	for _, id := range bones {
		v := im.graph.Get(id)
		parent := ""
		if p := im.graph.Get(v.Parent); p.Type == vnode.Bone {
			parent = im.boneNames[p.ID]
		}
		if v.EditBoneArmaMat == nil {
			return errors.Errorf("bone %v has no rest matrix", v)
		}
		eb, err := builder.AddBone(v.DisplayName(), parent, v.EditBoneArmaMat, v.BoneLength)
		if err != nil {
			return err
		}
		eb.Extras = im.sourceExtras(v)
		im.boneNames[id] = eb.Name
	}
	if _, err := builder.Build(); err != nil {
		return err
	}

	corrector := NewPoseCorrector(arma)
	for _, id := range bones {
		v := im.graph.Get(id)
		p, err := corrector.Apply(im.boneNames[id], v)
		if err != nil {
			return err
		}
		p.Extras = im.sourceExtras(v)
	}
	return nil
}
