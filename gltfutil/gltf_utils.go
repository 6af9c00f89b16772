package gltfutil

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/binzume/gltfrig/geom"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/binary"
	"github.com/qmuntal/gltf/ext/lightspuntual"
	"github.com/qmuntal/gltf/modeler"
)

func Load(path string) (*gltf.Document, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return doc, nil
}

// Save writes .glb files as binary glTF and anything else as JSON glTF.
func Save(doc *gltf.Document, path string) error {
	if strings.ToLower(filepath.Ext(path)) == ".glb" {
		return gltf.SaveBinary(doc, path)
	}
	return gltf.Save(doc, path)
}

// Scale multiplies node translations, vertex positions and inverse bind matrix
// translations by scale. Rotations are unchanged.
func Scale(doc *gltf.Document, scale float32) error {
	if scale == 1 || scale == 0 {
		return nil
	}
	scaleMat := geom.NewScaleMatrix4(scale, scale, scale)

	accs := map[uint32]bool{}
	for _, m := range doc.Meshes {
		for _, p := range m.Primitives {
			if a, ok := p.Attributes["POSITION"]; ok {
				accs[a] = true
			}
			for _, t := range p.Targets {
				if a, ok := t["POSITION"]; ok {
					accs[a] = true
				}
			}
		}
	}
	for a := range accs {
		acr := doc.Accessors[a]
		if acr.BufferView == nil {
			continue
		}
		if acr.Sparse != nil {
			return errors.Errorf("accessor %d: sparse accessors are not supported", a)
		}
		pos, err := modeler.ReadPosition(doc, acr, nil)
		if err != nil {
			return errors.Wrapf(err, "read accessor %d", a)
		}
		acr.Min = []float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
		acr.Max = []float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
		for i := range pos {
			scaleMat.ApplyTo(geom.NewVector3FromArray(pos[i])).ToArray(pos[i][:])
			for t, v := range pos[i] {
				acr.Min[t] = float32(math.Min(float64(acr.Min[t]), float64(v)))
				acr.Max[t] = float32(math.Max(float64(acr.Max[t]), float64(v)))
			}
		}
		if err := writeAccessor(doc, acr, pos); err != nil {
			return err
		}
	}

	for _, node := range doc.Nodes {
		if m := node.MatrixOrDefault(); m != gltf.DefaultMatrix {
			m[12] *= scale
			m[13] *= scale
			m[14] *= scale
			node.Matrix = m
		}
		scaleMat.ApplyTo(geom.NewVector3FromArray(node.Translation)).ToArray(node.Translation[:])
	}

	for i, skin := range doc.Skins {
		mats, err := ReadInverseBindMatrices(doc, skin)
		if err != nil {
			return errors.Wrapf(err, "skin %d", i)
		}
		if mats == nil {
			continue
		}
		for j := range mats {
			mats[j][3][0] *= scale
			mats[j][3][1] *= scale
			mats[j][3][2] *= scale
		}
		if err := writeAccessor(doc, doc.Accessors[*skin.InverseBindMatrices], mats); err != nil {
			return err
		}
	}
	return nil
}

func writeAccessor(doc *gltf.Document, acr *gltf.Accessor, data interface{}) error {
	bufferView := doc.BufferViews[*acr.BufferView]
	buffer := doc.Buffers[bufferView.Buffer]
	if err := binary.Write(buffer.Data[bufferView.ByteOffset+acr.ByteOffset:], bufferView.ByteStride, data); err != nil {
		return errors.Wrap(err, "write accessor")
	}
	return nil
}

// ReadInverseBindMatrices returns nil when the skin has no inverse bind matrices.
func ReadInverseBindMatrices(doc *gltf.Document, skin *gltf.Skin) ([][4][4]float32, error) {
	if skin.InverseBindMatrices == nil {
		return nil, nil
	}
	if int(*skin.InverseBindMatrices) >= len(doc.Accessors) {
		return nil, errors.Errorf("accessor %d out of range", *skin.InverseBindMatrices)
	}
	acr := doc.Accessors[*skin.InverseBindMatrices]
	if acr.Type != gltf.AccessorMat4 || acr.ComponentType != gltf.ComponentFloat {
		return nil, errors.Errorf("accessor %d is not a float mat4", *skin.InverseBindMatrices)
	}
	data, err := modeler.ReadAccessor(doc, acr, nil)
	if err != nil {
		return nil, err
	}
	mats, ok := data.([][4][4]float32)
	if !ok {
		return nil, errors.Errorf("unexpected accessor data %T", data)
	}
	return mats, nil
}

// WriteInverseBindMatrices adds a mat4 accessor and returns its index.
func WriteInverseBindMatrices(doc *gltf.Document, mats [][4][4]float32) uint32 {
	a := make([][4]float32, len(mats)*4)
	for i, m := range mats {
		a[i*4+0] = m[0]
		a[i*4+1] = m[1]
		a[i*4+2] = m[2]
		a[i*4+3] = m[3]
	}
	acc := modeler.WriteTangent(doc, a)
	doc.Accessors[acc].Type = gltf.AccessorMat4
	doc.Accessors[acc].Count /= 4
	doc.BufferViews[*doc.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

// NodeLight returns the KHR_lights_punctual light index of a node.
func NodeLight(node *gltf.Node) (int, bool) {
	if node.Extensions == nil {
		return 0, false
	}
	switch v := node.Extensions[lightspuntual.ExtensionName].(type) {
	case lightspuntual.LightIndex:
		return int(v), true
	case *lightspuntual.LightIndex:
		if v != nil {
			return int(*v), true
		}
	}
	return 0, false
}

// Lights returns the document level light list.
func Lights(doc *gltf.Document) lightspuntual.Lights {
	if doc.Extensions == nil {
		return nil
	}
	lights, _ := doc.Extensions[lightspuntual.ExtensionName].(lightspuntual.Lights)
	return lights
}

// WeightAnimatedNodes returns the nodes whose morph weights are animated.
func WeightAnimatedNodes(doc *gltf.Document) map[int]bool {
	nodes := map[int]bool{}
	for _, anim := range doc.Animations {
		for _, ch := range anim.Channels {
			if ch.Target.Path == gltf.TRSWeights && ch.Target.Node != nil {
				nodes[int(*ch.Target.Node)] = true
			}
		}
	}
	return nodes
}

// TrackNames returns a unique name for every animation.
func TrackNames(doc *gltf.Document) []string {
	used := map[string]bool{}
	names := make([]string, len(doc.Animations))
	for i, anim := range doc.Animations {
		name := anim.Name
		if name == "" {
			name = fmt.Sprintf("Anim_%d", i)
		}
		names[i] = UniqueName(used, name)
	}
	return names
}

// ShapeKeyNames returns the morph target names of a mesh, taken from
// extras.targetNames, then from the target POSITION accessor name, then "target_N".
// Targets without POSITION get an empty name.
func ShapeKeyNames(doc *gltf.Document, meshIndex int) []string {
	mesh := doc.Meshes[meshIndex]
	if len(mesh.Primitives) == 0 || len(mesh.Primitives[0].Targets) == 0 {
		return nil
	}

	var extraNames []interface{}
	if extras, ok := mesh.Extras.(map[string]interface{}); ok {
		extraNames, _ = extras["targetNames"].([]interface{})
	}

	used := map[string]bool{}
	var names []string
	for i, target := range mesh.Primitives[0].Targets {
		a, ok := target["POSITION"]
		if !ok {
			names = append(names, "")
			continue
		}
		name := ""
		if i < len(extraNames) {
			name, _ = extraNames[i].(string)
		}
		if name == "" && int(a) < len(doc.Accessors) {
			name = doc.Accessors[a].Name
		}
		if name == "" {
			name = fmt.Sprintf("target_%d", i)
		}
		names = append(names, UniqueName(used, name))
	}
	return names
}
