package native

import (
	"github.com/binzume/gltfrig/geom"
	"github.com/pkg/errors"
)

var (
	ErrRestSkeletonBuilt = errors.New("rest skeleton already built")
	ErrNoRestSkeleton    = errors.New("rest skeleton not built")
	ErrUnknownBone       = errors.New("unknown bone")
	ErrDuplicateBone     = errors.New("duplicate bone name")
)

// EditBone is a bone during the edit phase. Matrix is the bone frame in armature
// space: +Y runs from head to tail.
type EditBone struct {
	Name   string
	Parent string
	Matrix *geom.Matrix4
	Length float32
	Extras map[string]interface{}
}

func (b *EditBone) Head() *geom.Vector3 {
	return b.Matrix.ApplyTo(&geom.Vector3{})
}

func (b *EditBone) Tail() *geom.Vector3 {
	return b.Matrix.ApplyTo(&geom.Vector3{Y: b.Length})
}

// RestBone is an immutable bone of a built skeleton.
type RestBone struct {
	Name   string
	Parent string
	Head   geom.Vector3
	Tail   geom.Vector3
	// Roll axis: +Z of the bone frame, in armature space.
	ZAxis  geom.Vector3
	Length float32
	matrix geom.Matrix4
	extras map[string]interface{}
}

func (b *RestBone) Matrix() *geom.Matrix4 {
	return b.matrix.Clone()
}

func (b *RestBone) Extras() map[string]interface{} {
	return b.extras
}

// Rest is the skeleton produced by the edit phase.
type Rest struct {
	bones  []*RestBone
	byName map[string]int
}

// Bones returns the bones in creation order. Parents come before children.
func (r *Rest) Bones() []*RestBone {
	return append([]*RestBone{}, r.bones...)
}

func (r *Rest) Bone(name string) *RestBone {
	if i, ok := r.byName[name]; ok {
		return r.bones[i]
	}
	return nil
}

func (r *Rest) Children(name string) []*RestBone {
	var children []*RestBone
	for _, b := range r.bones {
		if b.Parent == name {
			children = append(children, b)
		}
	}
	return children
}

type PoseBone struct {
	Name     string
	Location geom.Vector3
	Rotation geom.Quaternion
	Scale    geom.Vector3
	Extras   map[string]interface{}
}

func (p *PoseBone) Matrix() *geom.Matrix4 {
	return geom.NewTRSMatrix4(&p.Location, &p.Rotation, &p.Scale)
}

// Armature holds edit bones until Build is called, and pose bones afterwards.
type Armature struct {
	Name string

	editBones []*EditBone
	rest      *Rest
	pose      map[string]*PoseBone
}

func NewArmature(name string) *Armature {
	return &Armature{Name: name}
}

func (a *Armature) DataName() string { return a.Name }

func (a *Armature) NewEditBone(name string) (*EditBone, error) {
	if a.rest != nil {
		return nil, errors.Wrapf(ErrRestSkeletonBuilt, "armature %s: new bone %s", a.Name, name)
	}
	if a.EditBone(name) != nil {
		return nil, errors.Wrapf(ErrDuplicateBone, "armature %s: %s", a.Name, name)
	}
	b := &EditBone{Name: name, Matrix: geom.NewMatrix4(), Length: 1}
	a.editBones = append(a.editBones, b)
	return b, nil
}

func (a *Armature) EditBone(name string) *EditBone {
	for _, b := range a.editBones {
		if b.Name == name {
			return b
		}
	}
	return nil
}

func (a *Armature) EditBones() []*EditBone {
	return a.editBones
}

// Build freezes the edit bones into the rest skeleton and creates identity pose
// bones. Edit bones can not be added afterwards.
func (a *Armature) Build() (*Rest, error) {
	if a.rest != nil {
		return nil, errors.Wrapf(ErrRestSkeletonBuilt, "armature %s", a.Name)
	}
	rest := &Rest{byName: map[string]int{}}
	for _, eb := range a.editBones {
		if eb.Parent != "" {
			if _, ok := rest.byName[eb.Parent]; !ok {
				return nil, errors.Wrapf(ErrUnknownBone, "armature %s: parent %q of %q", a.Name, eb.Parent, eb.Name)
			}
		}
		rb := &RestBone{
			Name:   eb.Name,
			Parent: eb.Parent,
			Head:   *eb.Head(),
			Tail:   *eb.Tail(),
			ZAxis:  *eb.Matrix.ApplyTo(&geom.Vector3{Z: 1}).Sub(eb.Head()),
			Length: eb.Length,
			matrix: *eb.Matrix.Clone(),
			extras: eb.Extras,
		}
		rest.byName[eb.Name] = len(rest.bones)
		rest.bones = append(rest.bones, rb)
	}
	a.rest = rest
	a.editBones = nil
	a.pose = map[string]*PoseBone{}
	for _, b := range rest.bones {
		a.pose[b.Name] = &PoseBone{Name: b.Name, Rotation: geom.Quaternion{W: 1}, Scale: geom.Vector3{X: 1, Y: 1, Z: 1}}
	}
	return rest, nil
}

// Rest returns nil until Build is called.
func (a *Armature) Rest() *Rest {
	return a.rest
}

func (a *Armature) PoseBone(name string) (*PoseBone, error) {
	if a.rest == nil {
		return nil, errors.Wrapf(ErrNoRestSkeleton, "armature %s: pose bone %s", a.Name, name)
	}
	p, ok := a.pose[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBone, "armature %s: %s", a.Name, name)
	}
	return p, nil
}

// PoseMatrix returns the posed bone frame in armature space, or nil for an unknown
// bone. Each bone inherits its parent's pose including scale.
func (a *Armature) PoseMatrix(name string) *geom.Matrix4 {
	if a.rest == nil {
		return nil
	}
	b := a.rest.Bone(name)
	if b == nil {
		return nil
	}
	basis := a.pose[name].Matrix()
	if b.Parent == "" {
		return b.matrix.Mul(basis)
	}
	parentRest := a.rest.Bone(b.Parent)
	local := parentRest.matrix.Inverse().Mul(&b.matrix)
	return a.PoseMatrix(b.Parent).Mul(local).Mul(basis)
}
