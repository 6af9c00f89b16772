package exporter

import (
	"fmt"
	"log"
	"strings"

	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/native"
	"github.com/pkg/errors"
)

var ErrNoScene = errors.New("no scene to export")

type Options struct {
	// YUp converts the Z-up host scene to glTF's Y-up axes.
	YUp  bool
	Hook ExportHook
	// AsoboExtensions writes ASOBO_asset_optimized bounds and the DirectX normal map
	// convention on the asset.
	AsoboExtensions bool
	Logger          *log.Logger
}

type Exporter struct {
	Options
}

func NewExporter(options *Options) *Exporter {
	var opts Options
	if options != nil {
		opts = *options
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Exporter{Options: opts}
}

type boneKey struct {
	arma *native.Object
	bone string
}

type gatherer struct {
	*Exporter
	bounds  *Bounds
	objects map[*native.Object]*Node
	bones   map[boneKey]*Node
	meshes  map[*native.Mesh]*Mesh
	skinned []*native.Object
}

// Gather converts the native scenes to a plan. Bounds cover the mesh vertices of
// every scene in output axes.
func (e *Exporter) Gather(scenes []*native.Scene, active int) (*Plan, *Bounds, error) {
	if len(scenes) == 0 {
		return nil, nil, ErrNoScene
	}
	if active < 0 || active >= len(scenes) {
		return nil, nil, errors.Errorf("active scene %d out of range", active)
	}
	g := &gatherer{
		Exporter: e,
		bounds:   &Bounds{},
		meshes:   map[*native.Mesh]*Mesh{},
	}
	plan := &Plan{ActiveScene: active}
	for _, s := range scenes {
		scene, err := g.gatherScene(s)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "scene %s", s.Name)
		}
		plan.Scenes = append(plan.Scenes, scene)
		for _, t := range s.Tracks {
			plan.Animations = append(plan.Animations, &Animation{Name: t})
		}
	}
	return plan, g.bounds, nil
}

func (g *gatherer) gatherScene(s *native.Scene) (*Scene, error) {
	g.objects = map[*native.Object]*Node{}
	g.bones = map[boneKey]*Node{}
	g.skinned = nil

	scene := &Scene{Name: s.Name, Extras: s.Extras}
	for _, o := range s.Roots() {
		n, err := g.gatherObject(o, nil)
		if err != nil {
			return nil, err
		}
		scene.Nodes = append(scene.Nodes, n)
	}
	if err := g.gatherSkins(s); err != nil {
		return nil, err
	}
	g.addBounds(s)
	return scene, nil
}

func (g *gatherer) axes(trs geom.TRS) geom.TRS {
	if g.YUp {
		return geom.ZUpToYUpTRS(trs)
	}
	return trs
}

// correction returns the rotation applied to cameras and lights when they were
// brought into the Z-up host, or nil.
func (g *gatherer) correction(o *native.Object) *geom.Quaternion {
	if g.YUp && (o.Camera() != nil || o.Light() != nil) {
		return geom.CameraCorrection()
	}
	return nil
}

// gatherObject converts o and its subtree. parentCorr is the correction of the
// parent camera or light, undone on the child's transform.
func (g *gatherer) gatherObject(o *native.Object, parentCorr *geom.Quaternion) (*Node, error) {
	trs := geom.TRS{Translation: o.Location, Rotation: o.Rotation, Scale: o.Scale}
	if o.ParentType == native.ParentBone {
		if b := boneOf(o.Parent, o.ParentBone); b != nil {
			trs.Translation.Y += b.Length
		}
	}
	if parentCorr != nil {
		trs.Translation = *parentCorr.ApplyTo(&trs.Translation)
		trs.Rotation = *parentCorr.Mul(&trs.Rotation)
	}
	corr := g.correction(o)
	if corr != nil {
		trs.Rotation = *trs.Rotation.Mul(corr.Conjugate())
	}
	trs = g.axes(trs)

	node := &Node{Name: o.Name, Extras: o.Extras}
	node.setTRS(&trs)
	g.objects[o] = node

	switch data := o.Data.(type) {
	case *native.Mesh:
		node.Mesh = g.gatherMesh(data)
		if armatureModifier(o) != nil {
			g.skinned = append(g.skinned, o)
		}
	case *native.Camera:
		node.Camera = data
	case *native.Light:
		node.Light = data
	case *native.Armature:
		if data.Rest() == nil {
			return nil, errors.Wrapf(native.ErrNoRestSkeleton, "object %s", o.Name)
		}
		for _, b := range data.Rest().Children("") {
			j, err := g.gatherBone(o, data, b)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, j)
		}
	}

	for _, c := range o.Children {
		cn, err := g.gatherObject(c, corr)
		if err != nil {
			return nil, err
		}
		if c.ParentType == native.ParentBone {
			joint, ok := g.bones[boneKey{o, c.ParentBone}]
			if !ok {
				return nil, errors.Wrapf(native.ErrUnknownBone, "parent of %s: %s", c.Name, c.ParentBone)
			}
			joint.Children = append(joint.Children, cn)
			continue
		}
		node.Children = append(node.Children, cn)
	}
	return node, nil
}

func boneOf(arma *native.Object, name string) *native.RestBone {
	if arma == nil || arma.Armature() == nil || arma.Armature().Rest() == nil {
		return nil
	}
	return arma.Armature().Rest().Bone(name)
}

// gatherBone emits a joint node whose local transform is the rest offset from the
// parent bone followed by the pose.
func (g *gatherer) gatherBone(armaObj *native.Object, arma *native.Armature, b *native.RestBone) (*Node, error) {
	local := b.Matrix()
	if b.Parent != "" {
		local = arma.Rest().Bone(b.Parent).Matrix().Inverse().Mul(local)
	}
	et, er, _ := local.Decompose()
	pose, err := arma.PoseBone(b.Name)
	if err != nil {
		return nil, err
	}
	trs := geom.TRS{
		Translation: *et.Add(er.ApplyTo(&pose.Location)),
		Rotation:    *er.Mul(&pose.Rotation),
		Scale:       pose.Scale,
	}
	trs = g.axes(trs)

	node := &Node{Name: b.Name, Extras: mergeExtras(b.Extras(), pose.Extras)}
	node.setTRS(&trs)
	g.bones[boneKey{armaObj, b.Name}] = node
	for _, c := range arma.Rest().Children(b.Name) {
		cn, err := g.gatherBone(armaObj, arma, c)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, cn)
	}
	return node, nil
}

func mergeExtras(a, b map[string]interface{}) map[string]interface{} {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	m := map[string]interface{}{}
	for k, v := range a {
		m[k] = v
	}
	for k, v := range b {
		m[k] = v
	}
	return m
}

func (g *gatherer) gatherMesh(m *native.Mesh) *Mesh {
	if gm, ok := g.meshes[m]; ok {
		return gm
	}
	gm := &Mesh{Name: m.Name, Extras: m.Extras}
	for _, p := range m.Positions {
		if g.YUp {
			p = [3]float32{p[0], p[2], -p[1]}
		}
		gm.Positions = append(gm.Positions, p)
	}
	for _, k := range m.ShapeKeys {
		gm.ShapeKeys = append(gm.ShapeKeys, k.Name)
		gm.Weights = append(gm.Weights, k.Value)
	}
	g.meshes[m] = gm
	return gm
}

func armatureModifier(o *native.Object) *native.Modifier {
	for _, m := range o.Modifiers {
		if m.Type == native.ModifierArmature && m.Object != nil && m.Object.Armature() != nil {
			return m
		}
	}
	return nil
}

// gatherSkins creates one skin per skinned mesh object. Joints are the armature
// bones, depth first, that the object has a vertex group for, and the skeleton is
// the first of them.
func (g *gatherer) gatherSkins(s *native.Scene) error {
	for _, o := range g.skinned {
		armaObj := armatureModifier(o).Object
		if _, ok := g.objects[armaObj]; !ok {
			g.Logger.Printf("skip skin of %s: armature %s is not in scene %s", o.Name, armaObj.Name, s.Name)
			continue
		}
		arma := armaObj.Armature()
		armaWorld := g.world(armaObj.WorldMatrix())

		skin := &Skin{Name: skinName(s, armaObj, o)}
		var walk func(b *native.RestBone)
		walk = func(b *native.RestBone) {
			if o.VertexGroup(b.Name) >= 0 {
				skin.Joints = append(skin.Joints, g.bones[boneKey{armaObj, b.Name}])
				bind := armaWorld.Mul(g.world(b.Matrix()))
				skin.InverseBindMatrices = append(skin.InverseBindMatrices, toColumns(bind.Inverse()))
			}
			for _, c := range arma.Rest().Children(b.Name) {
				walk(c)
			}
		}
		for _, b := range arma.Rest().Children("") {
			walk(b)
		}
		if len(skin.Joints) == 0 {
			g.Logger.Printf("skip skin of %s: no vertex group matches a bone of %s", o.Name, armaObj.Name)
			continue
		}
		// The first joint is the topmost one; it is already a bone when read back.
		skin.Skeleton = skin.Joints[0]
		g.objects[o].Skin = skin
	}
	return nil
}

// world converts a host matrix to output axes.
func (g *gatherer) world(m *geom.Matrix4) *geom.Matrix4 {
	if !g.YUp {
		return m
	}
	b := geom.YUpToZUpMatrix()
	return b.Inverse().Mul(m).Mul(b)
}

func toColumns(m *geom.Matrix4) [4][4]float32 {
	var c [4][4]float32
	for i := 0; i < 16; i++ {
		c[i/4][i%4] = m[i]
	}
	return c
}

// skinName numbers armatures in scene order. Meshes of one armature that use
// different vertex group sets get a second number.
func skinName(s *native.Scene, armaObj *native.Object, mesh *native.Object) string {
	armaIndex := 0
	for _, o := range s.Objects() {
		if o == armaObj {
			break
		}
		if o.Armature() != nil {
			armaIndex++
		}
	}
	var groupSets []string
	sub := 0
	for _, o := range s.Objects() {
		m := armatureModifier(o)
		if m == nil || m.Object != armaObj {
			continue
		}
		key := strings.Join(o.VertexGroups, "\x00")
		idx := -1
		for i, k := range groupSets {
			if k == key {
				idx = i
			}
		}
		if idx < 0 {
			idx = len(groupSets)
			groupSets = append(groupSets, key)
		}
		if o == mesh {
			sub = idx
		}
	}
	if sub == 0 {
		return fmt.Sprintf("skeleton #%d", armaIndex)
	}
	return fmt.Sprintf("skeleton #%d_%d", armaIndex, sub)
}

func (g *gatherer) addBounds(s *native.Scene) {
	for _, o := range s.Objects() {
		m := o.Mesh()
		if m == nil {
			continue
		}
		world := o.WorldMatrix()
		for _, p := range m.Positions {
			v := world.ApplyTo(geom.NewVector3FromArray(p))
			if g.YUp {
				v = geom.ZUpToYUpLocation(v)
			}
			g.bounds.Add(v)
		}
	}
}
