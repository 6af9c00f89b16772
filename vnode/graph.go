package vnode

// FlagKind classifies a Flag.
type FlagKind int

const (
	// FlagSplitPayload: a joint node also carried a mesh, camera or light; the payload
	// moved to a synthesized child object.
	FlagSplitPayload FlagKind = iota
	// FlagSplitMultiPayload: a node carried a mesh and a camera or light.
	FlagSplitMultiPayload
	// FlagReparentedSkinnedMesh: a skinned mesh under a bone was moved under the armature.
	FlagReparentedSkinnedMesh
)

// Flag records a non-fatal decision taken while resolving the graph.
type Flag struct {
	Kind FlagKind
	Node ID
	Msg  string
}

// Graph is an arena of VNodes addressed by ID.
type Graph struct {
	Nodes []*VNode
	Root  ID
	Flags []Flag

	// Number of glTF nodes. IDs below this are glTF node indices.
	SourceCount int
}

// Len returns the number of nodes, synthesized ones included.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// Get returns the node with the given ID, or nil.
func (g *Graph) Get(id ID) *VNode {
	if id < 0 || int(id) >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[id]
}

func (g *Graph) add(source int, typ Type) *VNode {
	v := newVNode(ID(len(g.Nodes)), source, typ)
	g.Nodes = append(g.Nodes, v)
	return v
}

func (g *Graph) flag(kind FlagKind, node ID, msg string) {
	g.Flags = append(g.Flags, Flag{Kind: kind, Node: node, Msg: msg})
}

// Walk visits the tree from the root in depth-first pre-order. Children are visited
// in order. Returning an error stops the walk.
func (g *Graph) Walk(fn func(v *VNode) error) error {
	return g.WalkFrom(g.Root, fn)
}

// WalkFrom is Walk starting at start instead of the root.
func (g *Graph) WalkFrom(start ID, fn func(v *VNode) error) error {
	stack := []ID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v := g.Nodes[id]
		if err := fn(v); err != nil {
			return err
		}
		for i := len(v.Children) - 1; i >= 0; i-- {
			stack = append(stack, v.Children[i])
		}
	}
	return nil
}

// Bones returns the bones of an armature in depth-first order. The walk only descends
// through bones.
func (g *Graph) Bones(arma ID) []ID {
	var bones []ID
	var stack []ID
	pushBones := func(children []ID) {
		for i := len(children) - 1; i >= 0; i-- {
			if g.Nodes[children[i]].Type == Bone {
				stack = append(stack, children[i])
			}
		}
	}
	pushBones(g.Nodes[arma].Children)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		bones = append(bones, id)
		pushBones(g.Nodes[id].Children)
	}
	return bones
}

// Armatures returns all synthesized armature nodes in pre-order.
func (g *Graph) Armatures() []ID {
	var armas []ID
	_ = g.Walk(func(v *VNode) error {
		if v.IsArma {
			armas = append(armas, v.ID)
		}
		return nil
	})
	return armas
}

// ArmatureOf returns the armature owning a joint node.
func (g *Graph) ArmatureOf(joint ID) ID {
	v := g.Get(joint)
	if v == nil || v.Type != Bone {
		return None
	}
	return v.BoneArma
}

func (g *Graph) removeChild(parent, child ID) int {
	p := g.Nodes[parent]
	for i, c := range p.Children {
		if c == child {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			return i
		}
	}
	return -1
}

func (g *Graph) insertChild(parent, child ID, pos int) {
	p := g.Nodes[parent]
	if pos < 0 || pos > len(p.Children) {
		pos = len(p.Children)
	}
	p.Children = append(p.Children, None)
	copy(p.Children[pos+1:], p.Children[pos:])
	p.Children[pos] = child
	g.Nodes[child].Parent = parent
}

// Validate checks the structural invariants of a resolved graph.
func (g *Graph) Validate() error {
	seen := make([]bool, len(g.Nodes))
	count := 0
	err := g.Walk(func(v *VNode) error {
		if seen[v.ID] {
			return nodeError(v.ID, ErrCyclicParentChain, "visited twice")
		}
		seen[v.ID] = true
		count++
		for _, c := range v.Children {
			if g.Nodes[c].Parent != v.ID {
				return nodeError(c, ErrMultipleParents, "parent link does not match children of %d", v.ID)
			}
		}
		if v.Type == Bone {
			arma := g.Get(v.BoneArma)
			if arma == nil || !arma.IsArma || arma.Type != Object {
				return nodeError(v.ID, ErrAmbiguousNodeRole, "bone without armature")
			}
			if v.Payload != nil {
				return nodeError(v.ID, ErrAmbiguousNodeRole, "bone carries a payload")
			}
		}
		if v.IsArma && v.Payload != nil {
			return nodeError(v.ID, ErrAmbiguousNodeRole, "armature carries a payload")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if count != len(g.Nodes) {
		for id, ok := range seen {
			if !ok {
				return nodeError(ID(id), ErrCyclicParentChain, "unreachable from the scene root")
			}
		}
	}
	return nil
}
