package vnode

import (
	"fmt"
	"log"

	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/gltfutil"
	"github.com/qmuntal/gltf"
)

// SkinnedMeshPolicy decides what happens to a skinned mesh whose parent is a bone.
type SkinnedMeshPolicy int

const (
	// ReparentToArmature moves the mesh under the bone's armature and records a Flag.
	ReparentToArmature SkinnedMeshPolicy = iota
	// RejectSkinnedMeshUnderBone fails with ErrAmbiguousNodeRole.
	RejectSkinnedMeshUnderBone
)

// Options controls graph resolution. The zero value is usable.
type Options struct {
	YUpToZUp             bool
	BoneHeuristic        Heuristic
	DefaultBoneLength    float32 // Default: DefaultBoneLength
	SkinnedMeshUnderBone SkinnedMeshPolicy
	Logger               *log.Logger
}

type builder struct {
	doc  *gltf.Document
	opts *Options
	g    *Graph

	extraPayloads map[ID][]Payload
}

// Build resolves the glTF node and skin arrays into a Graph. Nothing is created on
// the host side; any error here leaves no partial scene behind.
func Build(doc *gltf.Document, options *Options) (*Graph, error) {
	opts := Options{}
	if options != nil {
		opts = *options
	}
	if opts.DefaultBoneLength <= 0 {
		opts.DefaultBoneLength = DefaultBoneLength
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	b := &builder{
		doc:           doc,
		opts:          &opts,
		g:             &Graph{Root: None, SourceCount: len(doc.Nodes)},
		extraPayloads: map[ID][]Payload{},
	}

	steps := []func() error{
		b.initNodes,
		b.linkParents,
		b.checkCycles,
		b.addRoot,
		b.splitMultiPayloads,
		b.markBones,
		b.splitJointPayloads,
		b.insertArmatures,
		b.moveSkinnedMeshes,
		b.correctCamerasAndLights,
		b.applyBoneHeuristic,
		b.calcBoneMatrices,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	if err := b.g.Validate(); err != nil {
		return nil, err
	}
	return b.g, nil
}

func nodeTRS(n *gltf.Node) geom.TRS {
	if m := n.MatrixOrDefault(); m != gltf.DefaultMatrix {
		return geom.NewTRSFromMatrix(geom.NewMatrix4FromSlice(m[:]))
	}
	return geom.TRS{
		Translation: *geom.NewVector3FromArray(n.Translation),
		Rotation:    *geom.NewQuaternionFromArray(n.RotationOrDefault()),
		Scale:       *geom.NewVector3FromArray(n.ScaleOrDefault()),
	}
}

func (b *builder) initNodes() error {
	for i, node := range b.doc.Nodes {
		v := b.g.add(i, Object)
		v.Name = node.Name
		v.DefaultName = fmt.Sprintf("Node_%d", i)
		v.BaseTRS = nodeTRS(node)
		if b.opts.YUpToZUp {
			v.BaseTRS = geom.YUpToZUpTRS(v.BaseTRS)
		}

		payloads, err := b.nodePayloads(i, node)
		if err != nil {
			return err
		}
		if len(payloads) > 0 {
			v.Payload = payloads[0]
			if len(payloads) > 1 {
				b.extraPayloads[v.ID] = payloads[1:]
			}
		}
	}
	return nil
}

// nodePayloads returns the payloads of a glTF node, mesh first.
func (b *builder) nodePayloads(i int, node *gltf.Node) ([]Payload, error) {
	var payloads []Payload
	if node.Mesh != nil {
		if int(*node.Mesh) >= len(b.doc.Meshes) {
			return nil, nodeError(ID(i), ErrMalformedNodeReference, "mesh %d out of range", *node.Mesh)
		}
		p := &MeshPayload{Node: i, Mesh: int(*node.Mesh)}
		if node.Skin != nil {
			if int(*node.Skin) >= len(b.doc.Skins) {
				return nil, nodeError(ID(i), ErrMalformedSkinReference, "skin %d out of range", *node.Skin)
			}
			skin := int(*node.Skin)
			p.Skin = &skin
		}
		payloads = append(payloads, p)
	}
	if node.Camera != nil {
		if int(*node.Camera) >= len(b.doc.Cameras) {
			return nil, nodeError(ID(i), ErrMalformedNodeReference, "camera %d out of range", *node.Camera)
		}
		payloads = append(payloads, &CameraPayload{Node: i, Camera: int(*node.Camera)})
	}
	if light, ok := gltfutil.NodeLight(node); ok {
		payloads = append(payloads, &LightPayload{Node: i, Light: light})
	}
	return payloads, nil
}

func (b *builder) linkParents() error {
	n := len(b.doc.Nodes)
	for i, node := range b.doc.Nodes {
		for _, c := range node.Children {
			child := int(c)
			if child >= n {
				return nodeError(ID(i), ErrMalformedNodeReference, "child %d out of range", child)
			}
			if child == i {
				return nodeError(ID(i), ErrCyclicParentChain, "node is its own child")
			}
			cv := b.g.Nodes[child]
			if cv.Parent != None {
				return nodeError(cv.ID, ErrMultipleParents, "children of both %d and %d", cv.Parent, i)
			}
			cv.Parent = ID(i)
			b.g.Nodes[i].Children = append(b.g.Nodes[i].Children, cv.ID)
		}
	}
	return nil
}

func (b *builder) checkCycles() error {
	const (
		unknown = iota
		visiting
		done
	)
	state := make([]int, len(b.g.Nodes))
	for i := range b.g.Nodes {
		var path []ID
		id := ID(i)
		for id != None && state[id] == unknown {
			state[id] = visiting
			path = append(path, id)
			id = b.g.Nodes[id].Parent
		}
		if id != None && state[id] == visiting {
			return nodeError(id, ErrCyclicParentChain, "parent chain from node %d does not terminate", i)
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

func (b *builder) addRoot() error {
	root := b.g.add(-1, DummyRoot)
	root.DefaultName = "Root"
	b.g.Root = root.ID
	for _, v := range b.g.Nodes[:b.g.SourceCount] {
		if v.Parent == None {
			root.Children = append(root.Children, v.ID)
			v.Parent = root.ID
		}
	}
	return nil
}

// addPayloadCarrier moves a payload into a new Object child placed first under v.
func (b *builder) addPayloadCarrier(v *VNode, p Payload) *VNode {
	c := b.g.add(-1, Object)
	c.Name = v.Name
	c.DefaultName = v.DefaultName
	c.Payload = p
	b.g.insertChild(v.ID, c.ID, 0)
	return c
}

func (b *builder) splitMultiPayloads() error {
	for id := ID(0); int(id) < b.g.SourceCount; id++ {
		extra := b.extraPayloads[id]
		v := b.g.Nodes[id]
		for i := len(extra) - 1; i >= 0; i-- {
			c := b.addPayloadCarrier(v, extra[i])
			b.g.flag(FlagSplitMultiPayload, v.ID, fmt.Sprintf("extra payload moved to node %d", c.ID))
		}
	}
	return nil
}

func (b *builder) isAncestorOrSelf(ancestor, id ID) bool {
	for ; id != None; id = b.g.Nodes[id].Parent {
		if id == ancestor {
			return true
		}
	}
	return false
}

func (b *builder) commonAncestor(ids []ID) ID {
	for cand := ids[0]; cand != None; cand = b.g.Nodes[cand].Parent {
		ok := true
		for _, other := range ids[1:] {
			if !b.isAncestorOrSelf(cand, other) {
				ok = false
				break
			}
		}
		if ok {
			return cand
		}
	}
	return b.g.Root
}

// markBones turns every joint and the skin's skeleton into a bone, plus every node
// between them and their common ancestor (exclusive), so that one skin never spans
// two armatures.
func (b *builder) markBones() error {
	n := len(b.doc.Nodes)
	for si, skin := range b.doc.Skins {
		var joints []ID
		for _, j := range skin.Joints {
			if int(j) >= n {
				return nodeError(None, ErrMalformedSkinReference, "skin %d: joint %d out of range (%d nodes)", si, j, n)
			}
			joints = append(joints, ID(j))
		}
		if len(joints) == 0 {
			continue
		}
		members := joints
		if skin.Skeleton != nil {
			if int(*skin.Skeleton) >= n {
				return nodeError(None, ErrMalformedSkinReference, "skin %d: skeleton %d out of range", si, *skin.Skeleton)
			}
			members = append(append([]ID{}, joints...), ID(*skin.Skeleton))
		}
		lca := b.commonAncestor(members)
		for _, j := range members {
			b.g.Nodes[j].Type = Bone
			if j == lca {
				continue
			}
			for id := b.g.Nodes[j].Parent; id != lca && id != b.g.Root; id = b.g.Nodes[id].Parent {
				b.g.Nodes[id].Type = Bone
			}
		}
	}
	return nil
}

func (b *builder) splitJointPayloads() error {
	for id := ID(0); int(id) < b.g.SourceCount; id++ {
		v := b.g.Nodes[id]
		if v.Type != Bone || v.Payload == nil {
			continue
		}
		c := b.addPayloadCarrier(v, v.Payload)
		v.Payload = nil
		b.g.flag(FlagSplitPayload, v.ID, fmt.Sprintf("joint payload moved to node %d", c.ID))
	}
	return nil
}

func (b *builder) insertArmatures() error {
	type group struct {
		parent ID
		bones  []ID
	}
	var groups []*group
	byParent := map[ID]*group{}
	_ = b.g.Walk(func(v *VNode) error {
		if v.Type == Bone && b.g.Nodes[v.Parent].Type != Bone {
			grp := byParent[v.Parent]
			if grp == nil {
				grp = &group{parent: v.Parent}
				byParent[v.Parent] = grp
				groups = append(groups, grp)
			}
			grp.bones = append(grp.bones, v.ID)
		}
		return nil
	})

	names := map[string]bool{}
	for _, grp := range groups {
		arma := b.g.add(-1, Object)
		arma.IsArma = true
		arma.ArmaName = gltfutil.UniqueName(names, "Armature")
		arma.DefaultName = arma.ArmaName

		pos := -1
		for _, bone := range grp.bones {
			if i := b.g.removeChild(grp.parent, bone); pos < 0 {
				pos = i
			}
		}
		b.g.insertChild(grp.parent, arma.ID, pos)
		for _, bone := range grp.bones {
			b.g.insertChild(arma.ID, bone, -1)
		}
		for _, bone := range b.g.Bones(arma.ID) {
			b.g.Nodes[bone].BoneArma = arma.ID
		}
	}
	return nil
}

func (b *builder) moveSkinnedMeshes() error {
	var moves []ID
	_ = b.g.Walk(func(v *VNode) error {
		if v.IsSkinnedMesh() && b.g.Nodes[v.Parent].Type == Bone {
			moves = append(moves, v.ID)
		}
		return nil
	})
	for _, id := range moves {
		v := b.g.Nodes[id]
		parent := b.g.Nodes[v.Parent]
		if b.opts.SkinnedMeshUnderBone == RejectSkinnedMeshUnderBone {
			return nodeError(ID(v.Mesh().Node), ErrAmbiguousNodeRole,
				"skinned mesh %q is a child of bone %q", v.DisplayName(), parent.DisplayName())
		}
		b.g.removeChild(parent.ID, id)
		b.g.insertChild(parent.BoneArma, id, -1)
		msg := fmt.Sprintf("skinned mesh %q moved from bone %q to its armature", v.DisplayName(), parent.DisplayName())
		b.g.flag(FlagReparentedSkinnedMesh, id, msg)
		b.opts.Logger.Print(msg)
	}
	return nil
}

// rotateAfter rotates the frame of v by q without moving its children.
func (b *builder) rotateAfter(v *VNode, q *geom.Quaternion) {
	v.RotationAfter = *v.RotationAfter.Mul(q)
	inv := q.Conjugate()
	for _, c := range v.Children {
		child := b.g.Nodes[c]
		child.RotationBefore = *inv.Mul(&child.RotationBefore)
	}
}

func (b *builder) correctCamerasAndLights() error {
	if !b.opts.YUpToZUp {
		return nil
	}
	correction := geom.CameraCorrection()
	for _, v := range b.g.Nodes {
		if v.Camera() != nil || v.Light() != nil {
			b.rotateAfter(v, correction)
		}
	}
	return nil
}
