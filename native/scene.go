// Package native is an in-memory scene graph in the style of a DCC host: objects
// carrying data blocks, armatures with an edit phase and a pose phase, meshes with
// shape keys and vertex groups.
package native

import (
	"github.com/binzume/gltfrig/geom"
)

type ParentType int

const (
	ParentObject ParentType = iota
	ParentBone
)

func (t ParentType) String() string {
	if t == ParentBone {
		return "BONE"
	}
	return "OBJECT"
}

// Data is the data block an object instantiates.
// Implemented by *Mesh, *Camera, *Light and *Armature.
type Data interface {
	DataName() string
}

type Scene struct {
	Name       string
	Collection *Collection
	// Names of the animation tracks, in document order.
	Tracks []string
	Extras map[string]interface{}
}

func NewScene(name string) *Scene {
	return &Scene{Name: name, Collection: &Collection{Name: "Scene Collection"}}
}

// Objects returns all objects linked to the scene collection.
func (s *Scene) Objects() []*Object {
	return s.Collection.Objects
}

// Object finds an object by name.
func (s *Scene) Object(name string) *Object {
	for _, o := range s.Collection.Objects {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Roots returns the objects without parent, in link order.
func (s *Scene) Roots() []*Object {
	var roots []*Object
	for _, o := range s.Collection.Objects {
		if o.Parent == nil {
			roots = append(roots, o)
		}
	}
	return roots
}

type Collection struct {
	Name    string
	Objects []*Object
}

func (c *Collection) Link(o *Object) {
	c.Objects = append(c.Objects, o)
}

type Modifier struct {
	Name   string
	Type   string
	Object *Object
}

const ModifierArmature = "ARMATURE"

type Object struct {
	Name string
	Data Data

	Location geom.Vector3
	Rotation geom.Quaternion
	Scale    geom.Vector3

	Parent     *Object
	ParentType ParentType
	ParentBone string
	Children   []*Object

	VertexGroups []string
	Modifiers    []*Modifier
	Extras       map[string]interface{}
}

func NewObject(name string, data Data) *Object {
	return &Object{
		Name:     name,
		Data:     data,
		Rotation: geom.Quaternion{W: 1},
		Scale:    geom.Vector3{X: 1, Y: 1, Z: 1},
	}
}

func (o *Object) SetParent(parent *Object) {
	o.SetParentBone(parent, "")
}

// SetParentBone parents o to a bone of the armature object parent. An empty bone
// name parents to the object itself.
func (o *Object) SetParentBone(parent *Object, bone string) {
	if o.Parent != nil {
		siblings := o.Parent.Children
		for i, c := range siblings {
			if c == o {
				o.Parent.Children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	o.Parent = parent
	o.ParentBone = bone
	o.ParentType = ParentObject
	if bone != "" {
		o.ParentType = ParentBone
	}
	if parent != nil {
		parent.Children = append(parent.Children, o)
	}
}

func (o *Object) Mesh() *Mesh {
	m, _ := o.Data.(*Mesh)
	return m
}

func (o *Object) Armature() *Armature {
	a, _ := o.Data.(*Armature)
	return a
}

func (o *Object) Camera() *Camera {
	c, _ := o.Data.(*Camera)
	return c
}

func (o *Object) Light() *Light {
	l, _ := o.Data.(*Light)
	return l
}

// VertexGroup returns the index of a vertex group, or -1.
func (o *Object) VertexGroup(name string) int {
	for i, g := range o.VertexGroups {
		if g == name {
			return i
		}
	}
	return -1
}

func (o *Object) AddModifier(name, typ string, target *Object) *Modifier {
	m := &Modifier{Name: name, Type: typ, Object: target}
	o.Modifiers = append(o.Modifiers, m)
	return m
}

func (o *Object) LocalMatrix() *geom.Matrix4 {
	return geom.NewTRSMatrix4(&o.Location, &o.Rotation, &o.Scale)
}

// WorldMatrix composes the parent chain. Objects parented to a bone hang from the
// tail of the posed bone.
func (o *Object) WorldMatrix() *geom.Matrix4 {
	local := o.LocalMatrix()
	if o.Parent == nil {
		return local
	}
	parent := o.Parent.WorldMatrix()
	if o.ParentType == ParentBone {
		if arma := o.Parent.Armature(); arma != nil {
			if pose := arma.PoseMatrix(o.ParentBone); pose != nil {
				length := arma.Rest().Bone(o.ParentBone).Length
				parent = parent.Mul(pose).Mul(geom.NewTranslateMatrix4(0, length, 0))
			}
		}
	}
	return parent.Mul(local)
}

type ShapeKey struct {
	Name  string
	Value float32
}

type Mesh struct {
	Name      string
	Positions [][3]float32
	ShapeKeys []*ShapeKey
	Extras    map[string]interface{}
}

func (m *Mesh) DataName() string { return m.Name }

func (m *Mesh) ShapeKey(name string) *ShapeKey {
	for _, k := range m.ShapeKeys {
		if k.Name == name {
			return k
		}
	}
	return nil
}

type CameraType string

const (
	CameraPerspective  CameraType = "PERSP"
	CameraOrthographic CameraType = "ORTHO"
)

type Camera struct {
	Name        string
	Type        CameraType
	Yfov        float32
	AspectRatio float32
	Xmag, Ymag  float32
	Znear       float32
	Zfar        float32 // 0 for infinite
}

func (c *Camera) DataName() string { return c.Name }

type LightType string

const (
	LightPoint LightType = "POINT"
	LightSun   LightType = "SUN"
	LightSpot  LightType = "SPOT"
)

type Light struct {
	Name      string
	Type      LightType
	Color     [3]float32
	Intensity float32
	Range     float32 // 0 for infinite
	SpotSize  float32
	SpotBlend float32
}

func (l *Light) DataName() string { return l.Name }
