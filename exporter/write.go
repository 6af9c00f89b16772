package exporter

import (
	"math"

	"github.com/binzume/gltfrig/gltfutil"
	"github.com/binzume/gltfrig/native"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/lightspuntual"
	"github.com/qmuntal/gltf/modeler"
)

const (
	AsoboAssetOptimized      = "ASOBO_asset_optimized"
	AsoboNormalMapConvention = "ASOBO_normal_map_convention"
	asoboMajorVersion        = 4
	asoboMinorVersion        = 2
	asoboTangentSpaceDirectX = "DirectX"
	extrasTargetNames        = "targetNames"
	attributePosition        = "POSITION"
)

// writer flattens the plan. Every pointer is appended once and referenced by index.
type writer struct {
	*Exporter
	doc       *gltf.Document
	nodes     map[*Node]uint32
	order     []*Node
	meshes    map[*Mesh]uint32
	skins     map[*Skin]uint32
	cameras   map[*native.Camera]uint32
	lights    map[*native.Light]uint32
	lightList lightspuntual.Lights
}

// Write builds the glTF document for a plan.
func (e *Exporter) Write(plan *Plan, bounds *Bounds) (*gltf.Document, error) {
	doc := gltf.NewDocument()
	doc.Scenes = nil
	doc.Scene = nil
	w := &writer{
		Exporter: e,
		doc:      doc,
		nodes:    map[*Node]uint32{},
		meshes:   map[*Mesh]uint32{},
		skins:    map[*Skin]uint32{},
		cameras:  map[*native.Camera]uint32{},
		lights:   map[*native.Light]uint32{},
	}

	for i, s := range plan.Scenes {
		gs := &gltf.Scene{Name: s.Name, Extras: extras(s.Extras)}
		for _, n := range s.Nodes {
			gs.Nodes = append(gs.Nodes, w.node(n))
		}
		doc.Scenes = append(doc.Scenes, gs)
		if i == plan.ActiveScene {
			doc.Scene = gltf.Index(uint32(i))
		}
	}

	// Payloads refer to nodes, so they are written once every node has an index.
	for _, n := range w.order {
		gn := doc.Nodes[w.nodes[n]]
		if n.Mesh != nil {
			gn.Mesh = gltf.Index(w.mesh(n.Mesh))
		}
		if n.Skin != nil {
			idx, err := w.skin(n.Skin)
			if err != nil {
				return nil, errors.Wrapf(err, "node %s", n.Name)
			}
			gn.Skin = gltf.Index(idx)
		}
		if n.Camera != nil {
			gn.Camera = gltf.Index(w.camera(n.Camera))
		}
		if n.Light != nil {
			if gn.Extensions == nil {
				gn.Extensions = gltf.Extensions{}
			}
			gn.Extensions[lightspuntual.ExtensionName] = lightspuntual.LightIndex(w.light(n.Light))
		}
	}
	if len(w.lightList) > 0 {
		w.useExtension(lightspuntual.ExtensionName, false)
		if doc.Extensions == nil {
			doc.Extensions = gltf.Extensions{}
		}
		doc.Extensions[lightspuntual.ExtensionName] = w.lightList
	}

	for _, a := range plan.Animations {
		if err := w.animation(a); err != nil {
			return nil, errors.Wrapf(err, "animation %s", a.Name)
		}
	}

	if e.AsoboExtensions {
		w.asobo(bounds)
	}
	return doc, nil
}

// Export gathers the scenes, runs the hook on the plan and writes it.
func (e *Exporter) Export(scenes []*native.Scene, active int) (*gltf.Document, error) {
	plan, bounds, err := e.Gather(scenes, active)
	if err != nil {
		return nil, err
	}
	if e.Hook != nil {
		if err := e.Hook.GatherPlan(plan); err != nil {
			return nil, errors.Wrap(err, "export hook")
		}
	}
	return e.Write(plan, bounds)
}

func Export(scenes []*native.Scene, active int, options *Options) (*gltf.Document, error) {
	return NewExporter(options).Export(scenes, active)
}

func extras(m map[string]interface{}) interface{} {
	if len(m) == 0 {
		return nil
	}
	return m
}

func (w *writer) useExtension(name string, required bool) {
	for _, e := range w.doc.ExtensionsUsed {
		if e == name {
			return
		}
	}
	w.doc.ExtensionsUsed = append(w.doc.ExtensionsUsed, name)
	if required {
		w.doc.ExtensionsRequired = append(w.doc.ExtensionsRequired, name)
	}
}

func (w *writer) node(n *Node) uint32 {
	if idx, ok := w.nodes[n]; ok {
		return idx
	}
	idx := uint32(len(w.doc.Nodes))
	w.doc.Nodes = append(w.doc.Nodes, &gltf.Node{
		Name:        n.Name,
		Translation: n.Translation,
		Rotation:    n.Rotation,
		Scale:       n.Scale,
		Extras:      extras(n.Extras),
	})
	w.nodes[n] = idx
	w.order = append(w.order, n)
	var children []uint32
	for _, c := range n.Children {
		children = append(children, w.node(c))
	}
	w.doc.Nodes[idx].Children = children
	return idx
}

func (w *writer) mesh(m *Mesh) uint32 {
	if idx, ok := w.meshes[m]; ok {
		return idx
	}
	gm := &gltf.Mesh{Name: m.Name}
	ex := map[string]interface{}{}
	for k, v := range m.Extras {
		ex[k] = v
	}
	if len(m.Positions) > 0 {
		prim := &gltf.Primitive{
			Attributes: map[string]uint32{attributePosition: modeler.WritePosition(w.doc, m.Positions)},
		}
		if len(m.ShapeKeys) > 0 {
			// Shape key geometry is not carried; every target is a zero offset.
			zero := modeler.WritePosition(w.doc, make([][3]float32, len(m.Positions)))
			for range m.ShapeKeys {
				prim.Targets = append(prim.Targets, map[string]uint32{attributePosition: zero})
			}
			gm.Weights = append(gm.Weights, m.Weights...)
			names := make([]interface{}, len(m.ShapeKeys))
			for i, k := range m.ShapeKeys {
				names[i] = k
			}
			ex[extrasTargetNames] = names
		}
		gm.Primitives = append(gm.Primitives, prim)
	}
	gm.Extras = extras(ex)
	idx := uint32(len(w.doc.Meshes))
	w.doc.Meshes = append(w.doc.Meshes, gm)
	w.meshes[m] = idx
	return idx
}

func (w *writer) skin(s *Skin) (uint32, error) {
	if idx, ok := w.skins[s]; ok {
		return idx, nil
	}
	if len(s.InverseBindMatrices) != len(s.Joints) {
		return 0, errors.Errorf("skin %s: %d joints, %d inverse bind matrices", s.Name, len(s.Joints), len(s.InverseBindMatrices))
	}
	gs := &gltf.Skin{Name: s.Name}
	for _, j := range s.Joints {
		idx, ok := w.nodes[j]
		if !ok {
			return 0, errors.Errorf("skin %s: joint %s is not in any scene", s.Name, j.Name)
		}
		gs.Joints = append(gs.Joints, idx)
	}
	if s.Skeleton != nil {
		if idx, ok := w.nodes[s.Skeleton]; ok {
			gs.Skeleton = gltf.Index(idx)
		}
	}
	gs.InverseBindMatrices = gltf.Index(gltfutil.WriteInverseBindMatrices(w.doc, s.InverseBindMatrices))
	idx := uint32(len(w.doc.Skins))
	w.doc.Skins = append(w.doc.Skins, gs)
	w.skins[s] = idx
	return idx, nil
}

func (w *writer) camera(c *native.Camera) uint32 {
	if idx, ok := w.cameras[c]; ok {
		return idx
	}
	gc := &gltf.Camera{Name: c.Name}
	if c.Type == native.CameraOrthographic {
		gc.Orthographic = &gltf.Orthographic{Xmag: c.Xmag, Ymag: c.Ymag, Znear: c.Znear, Zfar: c.Zfar}
	} else {
		p := &gltf.Perspective{Yfov: c.Yfov, Znear: c.Znear}
		if c.Zfar > 0 {
			p.Zfar = gltf.Float(c.Zfar)
		}
		if c.AspectRatio > 0 {
			p.AspectRatio = gltf.Float(c.AspectRatio)
		}
		gc.Perspective = p
	}
	idx := uint32(len(w.doc.Cameras))
	w.doc.Cameras = append(w.doc.Cameras, gc)
	w.cameras[c] = idx
	return idx
}

func (w *writer) light(l *native.Light) uint32 {
	if idx, ok := w.lights[l]; ok {
		return idx
	}
	color := l.Color
	intensity := l.Intensity
	gl := &lightspuntual.Light{Name: l.Name, Color: &color, Intensity: &intensity}
	if l.Range > 0 {
		gl.Range = gltf.Float(l.Range)
	}
	switch l.Type {
	case native.LightSun:
		gl.Type = lightspuntual.TypeDirectional
	case native.LightSpot:
		gl.Type = lightspuntual.TypeSpot
		outer := l.SpotSize / 2
		gl.Spot = &lightspuntual.Spot{
			InnerConeAngle: outer * (1 - l.SpotBlend),
			OuterConeAngle: gltf.Float(outer),
		}
	default:
		gl.Type = lightspuntual.TypePoint
	}
	idx := uint32(len(w.lightList))
	w.lightList = append(w.lightList, gl)
	w.lights[l] = idx
	return idx
}

// animation writes channels with shared key accessors. Animations without channels
// carry only a name and are skipped.
func (w *writer) animation(a *Animation) error {
	if len(a.Channels) == 0 {
		w.Logger.Printf("skip animation %s: no channels", a.Name)
		return nil
	}
	ga := &gltf.Animation{Name: a.Name}
	var prevTimes []float32
	var prevKeysAcc uint32
	for _, ch := range a.Channels {
		node, ok := w.nodes[ch.Target]
		if !ok || ch.Target == nil {
			return errors.Errorf("channel target is not in any scene")
		}
		if len(ch.Times) == 0 {
			continue
		}
		var keysAcc uint32
		if prevTimes != nil && floatsEqual(ch.Times, prevTimes) {
			keysAcc = prevKeysAcc
		} else {
			keysAcc = modeler.WriteAccessor(w.doc, gltf.TargetNone, ch.Times)
			prevTimes, prevKeysAcc = ch.Times, keysAcc
		}

		var samplesAcc uint32
		var count int
		switch ch.Path {
		case gltf.TRSTranslation:
			samplesAcc, count = modeler.WritePosition(w.doc, w.locations(ch.Translations)), len(ch.Translations)
		case gltf.TRSRotation:
			samplesAcc, count = modeler.WriteTangent(w.doc, w.rotations(ch.Rotations)), len(ch.Rotations)
		case gltf.TRSScale:
			samplesAcc, count = modeler.WritePosition(w.doc, w.scales(ch.Scales)), len(ch.Scales)
		case gltf.TRSWeights:
			samplesAcc, count = modeler.WriteAccessor(w.doc, gltf.TargetNone, ch.Weights), len(ch.Weights)
			count /= maxInt(w.targetCount(ch.Target), 1)
		default:
			return errors.Errorf("channel of %s: unsupported path %v", ch.Target.Name, ch.Path)
		}
		if count != len(ch.Times) {
			return errors.Errorf("channel of %s: %d keys, %d samples", ch.Target.Name, len(ch.Times), count)
		}
		ga.Samplers = append(ga.Samplers, &gltf.AnimationSampler{
			Input:         gltf.Index(keysAcc),
			Output:        gltf.Index(samplesAcc),
			Interpolation: gltf.InterpolationLinear,
		})
		ga.Channels = append(ga.Channels, &gltf.Channel{
			Sampler: gltf.Index(uint32(len(ga.Samplers) - 1)),
			Target: gltf.ChannelTarget{
				Node: gltf.Index(node),
				Path: ch.Path,
			},
		})
	}
	w.doc.Animations = append(w.doc.Animations, ga)
	return nil
}

func (w *writer) targetCount(n *Node) int {
	if n.Mesh == nil {
		return 0
	}
	return len(n.Mesh.ShapeKeys)
}

func (w *writer) locations(v [][3]float32) [][3]float32 {
	if !w.YUp {
		return v
	}
	out := make([][3]float32, len(v))
	for i, p := range v {
		out[i] = [3]float32{p[0], p[2], -p[1]}
	}
	return out
}

func (w *writer) rotations(v [][4]float32) [][4]float32 {
	if !w.YUp {
		return v
	}
	out := make([][4]float32, len(v))
	for i, q := range v {
		out[i] = [4]float32{q[0], q[2], -q[1], q[3]}
	}
	return out
}

func (w *writer) scales(v [][3]float32) [][3]float32 {
	if !w.YUp {
		return v
	}
	out := make([][3]float32, len(v))
	for i, s := range v {
		out[i] = [3]float32{s[0], s[2], s[1]}
	}
	return out
}

func floatsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// asobo writes the bounding box and normal map convention used by the MSFS
// asset pipeline.
func (w *writer) asobo(bounds *Bounds) {
	if bounds == nil {
		bounds = &Bounds{}
	}
	if w.doc.Asset.Extensions == nil {
		w.doc.Asset.Extensions = gltf.Extensions{}
	}
	w.doc.Asset.Extensions[AsoboAssetOptimized] = map[string]interface{}{
		"BoundingBoxMax": []float32{round6(bounds.Max.X), round6(bounds.Max.Y), round6(bounds.Max.Z)},
		"BoundingBoxMin": []float32{round6(bounds.Min.X), round6(bounds.Min.Y), round6(bounds.Min.Z)},
		"MajorVersion":   asoboMajorVersion,
		"MinorVersion":   asoboMinorVersion,
	}
	w.doc.Asset.Extensions[AsoboNormalMapConvention] = map[string]interface{}{
		"tangent_space_convention": asoboTangentSpaceDirectX,
	}
	w.useExtension(AsoboAssetOptimized, false)
	w.useExtension(AsoboNormalMapConvention, false)
}

func round6(v float32) float32 {
	return float32(math.Round(float64(v)*1e6) / 1e6)
}
