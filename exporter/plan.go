// Package exporter converts native scenes back to glTF documents.
package exporter

import (
	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/native"
	"github.com/qmuntal/gltf"
)

// Node is a gathered glTF node. Nodes reference each other by pointer until Write
// flattens them into index arrays.
type Node struct {
	Name        string
	Translation [3]float32
	Rotation    [4]float32
	Scale       [3]float32
	Children    []*Node

	Mesh   *Mesh
	Camera *native.Camera
	Light  *native.Light
	Skin   *Skin
	Extras map[string]interface{}
}

func (n *Node) setTRS(trs *geom.TRS) {
	n.Translation = trs.Translation.Array()
	n.Rotation = trs.Rotation.Array()
	n.Scale = trs.Scale.Array()
}

// Find returns the first node named name in the subtree, depth first.
func (n *Node) Find(name string) *Node {
	stack := []*Node{n}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c.Name == name {
			return c
		}
		for i := len(c.Children) - 1; i >= 0; i-- {
			stack = append(stack, c.Children[i])
		}
	}
	return nil
}

type Mesh struct {
	Name      string
	Positions [][3]float32
	ShapeKeys []string
	Weights   []float32
	Extras    map[string]interface{}
}

type Skin struct {
	Name                string
	Joints              []*Node
	InverseBindMatrices [][4][4]float32
	Skeleton            *Node
}

type Scene struct {
	Name   string
	Nodes  []*Node
	Extras map[string]interface{}
}

func (s *Scene) Find(name string) *Node {
	for _, n := range s.Nodes {
		if f := n.Find(name); f != nil {
			return f
		}
	}
	return nil
}

// Channel animates one property of a node. Exactly one of the value slices is used,
// matching Path.
type Channel struct {
	Target       *Node
	Path         gltf.TRSProperty
	Times        []float32
	Translations [][3]float32
	Rotations    [][4]float32
	Scales       [][3]float32
	Weights      []float32
}

type Animation struct {
	Name     string
	Channels []*Channel
}

// Plan is what the export hook sees. Its content after the hook is what gets written.
type Plan struct {
	ActiveScene int
	Scenes      []*Scene
	Animations  []*Animation
}

type ExportHook interface {
	GatherPlan(plan *Plan) error
}

// Bounds accumulates the bounding box of exported vertices. The zero value is the
// empty box at the origin, so the result always contains the origin.
type Bounds struct {
	Min geom.Vector3
	Max geom.Vector3
}

func (b *Bounds) Add(v *geom.Vector3) {
	b.Min.X = min32(b.Min.X, v.X)
	b.Min.Y = min32(b.Min.Y, v.Y)
	b.Min.Z = min32(b.Min.Z, v.Z)
	b.Max.X = max32(b.Max.X, v.X)
	b.Max.Y = max32(b.Max.Y, v.Y)
	b.Max.Z = max32(b.Max.Z, v.Z)
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
