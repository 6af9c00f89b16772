package importer

import (
	"fmt"

	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/gltfutil"
	"github.com/binzume/gltfrig/native"
	"github.com/binzume/gltfrig/vnode"
	"github.com/pkg/errors"
)

// meshKey identifies instances that can share one native mesh. Shape key values
// live on the mesh, so instances with different weights can not share it.
type meshKey struct {
	mesh    int
	skin    int
	weights string
}

func (im *Importer) resolveMesh(v *vnode.VNode) (*native.Mesh, error) {
	p := v.Mesh()
	node := im.doc.Nodes[p.Node]
	names := im.shapeKeyNames[p.Mesh]

	key := meshKey{mesh: p.Mesh, skin: -1}
	if p.Skin != nil {
		key.skin = *p.Skin
	}
	cacheable := true
	if len(names) > 0 {
		if im.weightAnimated[p.Node] {
			cacheable = false
		} else {
			key.weights = fmt.Sprint(node.Weights)
		}
	}
	if cacheable {
		if m, ok := im.meshCache[key]; ok {
			return m, nil
		}
	}

	req := &MeshRequest{Mesh: p.Mesh, Skin: p.Skin, ShapeKeyNames: names, YUpToZUp: im.yUpToZUp}
	if p.Skin != nil {
		mats, err := im.jointMatrices(*p.Skin)
		if err != nil {
			if im.OnSkinError == AbortOnSkinError {
				return nil, err
			}
			im.Logger.Printf("skip skinning of mesh %d: %v", p.Mesh, err)
		}
		req.JointMatrices = mats
	}
	mesh, err := im.MeshBuilder.BuildMesh(im.doc, req)
	if err != nil {
		return nil, errors.Wrapf(err, "mesh %d", p.Mesh)
	}
	mesh.Name = gltfutil.UniqueName(im.meshNames, mesh.Name)
	im.Logger.Printf("create mesh: %s", mesh.Name)
	if cacheable {
		im.meshCache[key] = mesh
	}
	return mesh, nil
}

// jointMatrices returns bind * inverseBind for every joint of a skin, in host axes.
func (im *Importer) jointMatrices(skin int) ([]*geom.Matrix4, error) {
	s := im.doc.Skins[skin]
	ibms, err := gltfutil.ReadInverseBindMatrices(im.doc, s)
	if err != nil {
		return nil, errors.Wrapf(err, "skin %d", skin)
	}
	basis := geom.YUpToZUpMatrix()
	mats := make([]*geom.Matrix4, len(s.Joints))
	for i, j := range s.Joints {
		v := im.graph.Get(vnode.ID(j))
		if v == nil || v.Type != vnode.Bone || v.BindArmaMat == nil {
			return nil, errors.Errorf("skin %d: joint %d is not a bone", skin, j)
		}
		inv := geom.NewMatrix4()
		if i < len(ibms) {
			for k := range inv {
				inv[k] = ibms[i][k/4][k%4]
			}
			if im.yUpToZUp {
				inv = basis.Mul(inv).Mul(basis.Inverse())
			}
		}
		mats[i] = v.BindArmaMat.Mul(inv)
	}
	return mats, nil
}

// setMorphWeights applies node weights, or the mesh default weights, to the shape keys.
func (im *Importer) setMorphWeights(obj *native.Object, p *vnode.MeshPayload) {
	names := im.shapeKeyNames[p.Mesh]
	if len(names) == 0 {
		return
	}
	weights := im.doc.Nodes[p.Node].Weights
	if len(weights) == 0 {
		weights = im.doc.Meshes[p.Mesh].Weights
	}
	mesh := obj.Mesh()
	for i, w := range weights {
		if i >= len(names) || names[i] == "" {
			continue
		}
		if k := mesh.ShapeKey(names[i]); k != nil {
			k.Value = w
		}
	}
}

// bindSkin adds one vertex group per joint and an armature modifier targeting the
// armature of the first joint.
func (im *Importer) bindSkin(v *vnode.VNode) error {
	p := v.Mesh()
	obj := im.objects[v.ID]
	skin := im.doc.Skins[*p.Skin]
	if len(skin.Joints) == 0 {
		return errors.Wrapf(ErrEmptySkinJointList, "bind skin %d to %s", *p.Skin, obj.Name)
	}

	var groups []string
	for _, j := range skin.Joints {
		name := im.boneNames[j]
		if name == "" {
			return errors.Errorf("bind skin %d to %s: joint %d is not a bone", *p.Skin, obj.Name, j)
		}
		groups = append(groups, name)
	}
	first := im.graph.Get(vnode.ID(skin.Joints[0]))
	armaObj := im.objects[first.BoneArma]

	obj.VertexGroups = append(obj.VertexGroups, groups...)
	obj.AddModifier("Armature", native.ModifierArmature, armaObj)
	return nil
}
