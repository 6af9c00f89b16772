// Package vnode resolves glTF nodes and skins into a tree of typed virtual nodes:
// plain objects, bones grouped under synthesized armatures, and a synthesized scene
// root. The tree is built once per conversion and only read afterwards.
package vnode

import (
	"fmt"

	"github.com/binzume/gltfrig/geom"
)

// ID addresses a VNode in a Graph. glTF node i always has ID i; synthesized nodes
// follow the glTF nodes.
type ID int

// None is the ID of no node.
const None ID = -1

// Type is the role a VNode plays in the native scene.
type Type int

const (
	Object Type = iota
	Bone
	DummyRoot
)

func (t Type) String() string {
	switch t {
	case Object:
		return "Object"
	case Bone:
		return "Bone"
	case DummyRoot:
		return "DummyRoot"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Payload is the data a node carries besides its transform.
// Implemented by MeshPayload, CameraPayload and LightPayload.
type Payload interface {
	// SourceNode is the glTF node that supplies the payload data.
	SourceNode() int
}

// MeshPayload references a glTF mesh and, for skinned meshes, its skin.
type MeshPayload struct {
	Node int
	Mesh int
	Skin *int
}

// CameraPayload references a glTF camera.
type CameraPayload struct {
	Node   int
	Camera int
}

// LightPayload references a KHR_lights_punctual light.
type LightPayload struct {
	Node  int
	Light int
}

func (p *MeshPayload) SourceNode() int   { return p.Node }
func (p *CameraPayload) SourceNode() int { return p.Node }
func (p *LightPayload) SourceNode() int  { return p.Node }

// VNode is one resolved node of the tree.
type VNode struct {
	ID     ID
	Source int // glTF node index, -1 if synthesized
	Type   Type

	Name        string
	DefaultName string

	Parent   ID
	Children []ID

	BaseTRS        geom.TRS
	RotationBefore geom.Quaternion
	RotationAfter  geom.Quaternion

	Payload Payload

	IsArma   bool
	ArmaName string

	BoneArma        ID
	BoneLength      float32
	EditBoneArmaMat *geom.Matrix4
	EditBoneTrans   geom.Vector3
	EditBoneRot     geom.Quaternion
	BindArmaMat     *geom.Matrix4
}

func newVNode(id ID, source int, typ Type) *VNode {
	return &VNode{
		ID:             id,
		Source:         source,
		Type:           typ,
		Parent:         None,
		BaseTRS:        geom.NewIdentityTRS(),
		RotationBefore: geom.Quaternion{W: 1},
		RotationAfter:  geom.Quaternion{W: 1},
		BoneArma:       None,
		EditBoneRot:    geom.Quaternion{W: 1},
	}
}

// IsSynthesized reports whether the node has no glTF source node.
func (v *VNode) IsSynthesized() bool {
	return v.Source < 0
}

// DisplayName returns Name, or DefaultName when the source has none.
func (v *VNode) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.DefaultName
}

// TRS returns the local transform with the rotation corrections applied:
// (rb*t, rb*r*ra, s).
func (v *VNode) TRS() geom.TRS {
	rb := &v.RotationBefore
	return geom.TRS{
		Translation: *rb.ApplyTo(&v.BaseTRS.Translation),
		Rotation:    *rb.Mul(&v.BaseTRS.Rotation).Mul(&v.RotationAfter),
		Scale:       v.BaseTRS.Scale,
	}
}

// Mesh returns the mesh payload, or nil.
func (v *VNode) Mesh() *MeshPayload {
	p, _ := v.Payload.(*MeshPayload)
	return p
}

func (v *VNode) Camera() *CameraPayload {
	p, _ := v.Payload.(*CameraPayload)
	return p
}

func (v *VNode) Light() *LightPayload {
	p, _ := v.Payload.(*LightPayload)
	return p
}

// IsSkinnedMesh reports whether the node carries a mesh bound to a skin.
func (v *VNode) IsSkinnedMesh() bool {
	m := v.Mesh()
	return m != nil && m.Skin != nil
}

func (v *VNode) String() string {
	return fmt.Sprintf("%s#%d(%s)", v.Type, v.ID, v.DisplayName())
}
