package native

import (
	"io"

	"gopkg.in/yaml.v2"
)

type yamlScene struct {
	Name    string                 `yaml:"name"`
	Tracks  []string               `yaml:"tracks,omitempty"`
	Objects []*yamlObject          `yaml:"objects"`
	Extras  map[string]interface{} `yaml:"extras,omitempty"`
}

type yamlObject struct {
	Name         string                 `yaml:"name"`
	Type         string                 `yaml:"type"`
	Data         string                 `yaml:"data,omitempty"`
	Location     [3]float32             `yaml:"location,flow"`
	Rotation     [4]float32             `yaml:"rotation,flow"`
	Scale        [3]float32             `yaml:"scale,flow"`
	ParentBone   string                 `yaml:"parent_bone,omitempty"`
	VertexGroups []string               `yaml:"vertex_groups,omitempty,flow"`
	Modifiers    []string               `yaml:"modifiers,omitempty,flow"`
	ShapeKeys    map[string]float32     `yaml:"shape_keys,omitempty"`
	Bones        []*yamlBone            `yaml:"bones,omitempty"`
	Extras       map[string]interface{} `yaml:"extras,omitempty"`
	Children     []*yamlObject          `yaml:"children,omitempty"`
}

type yamlBone struct {
	Name     string     `yaml:"name"`
	Parent   string     `yaml:"parent,omitempty"`
	Head     [3]float32 `yaml:"head,flow"`
	Tail     [3]float32 `yaml:"tail,flow"`
	Location [3]float32 `yaml:"location,flow"`
	Rotation [4]float32 `yaml:"rotation,flow"`
	Scale    [3]float32 `yaml:"scale,flow"`
}

func objectType(o *Object) string {
	switch o.Data.(type) {
	case *Mesh:
		return "MESH"
	case *Armature:
		return "ARMATURE"
	case *Camera:
		return "CAMERA"
	case *Light:
		return "LIGHT"
	}
	return "EMPTY"
}

func toYAMLObject(o *Object) *yamlObject {
	y := &yamlObject{
		Name:         o.Name,
		Type:         objectType(o),
		Location:     o.Location.Array(),
		Rotation:     o.Rotation.Array(),
		Scale:        o.Scale.Array(),
		ParentBone:   o.ParentBone,
		VertexGroups: o.VertexGroups,
		Extras:       o.Extras,
	}
	if o.Data != nil {
		y.Data = o.Data.DataName()
	}
	for _, m := range o.Modifiers {
		target := ""
		if m.Object != nil {
			target = m.Object.Name
		}
		y.Modifiers = append(y.Modifiers, m.Name+":"+m.Type+":"+target)
	}
	if mesh := o.Mesh(); mesh != nil && len(mesh.ShapeKeys) > 0 {
		y.ShapeKeys = map[string]float32{}
		for _, k := range mesh.ShapeKeys {
			y.ShapeKeys[k.Name] = k.Value
		}
	}
	if arma := o.Armature(); arma != nil && arma.Rest() != nil {
		for _, b := range arma.Rest().Bones() {
			p, _ := arma.PoseBone(b.Name)
			y.Bones = append(y.Bones, &yamlBone{
				Name:     b.Name,
				Parent:   b.Parent,
				Head:     b.Head.Array(),
				Tail:     b.Tail.Array(),
				Location: p.Location.Array(),
				Rotation: p.Rotation.Array(),
				Scale:    p.Scale.Array(),
			})
		}
	}
	for _, c := range o.Children {
		y.Children = append(y.Children, toYAMLObject(c))
	}
	return y
}

// WriteYAML writes the object hierarchy of the scene.
func (s *Scene) WriteYAML(w io.Writer) error {
	y := &yamlScene{Name: s.Name, Tracks: s.Tracks, Extras: s.Extras}
	for _, o := range s.Roots() {
		y.Objects = append(y.Objects, toYAMLObject(o))
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(y)
}
