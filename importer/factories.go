package importer

import (
	"fmt"
	"math"

	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/gltfutil"
	"github.com/binzume/gltfrig/native"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/lightspuntual"
	"github.com/qmuntal/gltf/modeler"
)

type MeshRequest struct {
	Mesh          int
	Skin          *int
	ShapeKeyNames []string // "" for targets without shape key
	// YUpToZUp is set when node transforms are converted, so positions must be too.
	YUpToZUp bool
	// JointMatrices move skinned vertices from bind space into armature space, one
	// per skin joint. Nil for unskinned meshes.
	JointMatrices []*geom.Matrix4
}

type MeshBuilder interface {
	BuildMesh(doc *gltf.Document, req *MeshRequest) (*native.Mesh, error)
}

type CameraFactory interface {
	CreateCamera(doc *gltf.Document, camera int) (*native.Camera, error)
}

type LightFactory interface {
	CreateLight(doc *gltf.Document, light int) (*native.Light, error)
}

type ExtrasSetter interface {
	Extras(src interface{}) map[string]interface{}
}

// DefaultMeshBuilder reads vertex positions and creates empty shape keys.
type DefaultMeshBuilder struct{}

func (b *DefaultMeshBuilder) BuildMesh(doc *gltf.Document, req *MeshRequest) (*native.Mesh, error) {
	gm := doc.Meshes[req.Mesh]
	mesh := &native.Mesh{Name: gm.Name}
	if mesh.Name == "" {
		mesh.Name = fmt.Sprintf("Mesh_%d", req.Mesh)
	}
	if extras, ok := gm.Extras.(map[string]interface{}); ok {
		mesh.Extras = extras
	}
	for _, p := range gm.Primitives {
		a, ok := p.Attributes["POSITION"]
		if !ok {
			continue
		}
		if int(a) >= len(doc.Accessors) {
			return nil, errors.Errorf("accessor %d out of range", a)
		}
		acr := doc.Accessors[a]
		if acr.BufferView == nil {
			continue
		}
		pos, err := modeler.ReadPosition(doc, acr, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "read positions of %s", mesh.Name)
		}
		if req.YUpToZUp {
			for i, v := range pos {
				pos[i] = [3]float32{v[0], -v[2], v[1]}
			}
		}
		if len(req.JointMatrices) > 0 {
			if pos, err = skinPositions(doc, p, pos, req.JointMatrices); err != nil {
				return nil, errors.Wrapf(err, "skin positions of %s", mesh.Name)
			}
		}
		mesh.Positions = append(mesh.Positions, pos...)
	}
	for _, name := range req.ShapeKeyNames {
		if name != "" {
			mesh.ShapeKeys = append(mesh.ShapeKeys, &native.ShapeKey{Name: name})
		}
	}
	return mesh, nil
}

// skinPositions blends each vertex by its JOINTS_0/WEIGHTS_0 influences. Vertices
// without weights are left in place.
func skinPositions(doc *gltf.Document, p *gltf.Primitive, pos [][3]float32, mats []*geom.Matrix4) ([][3]float32, error) {
	ja, ok := p.Attributes["JOINTS_0"]
	if !ok {
		return pos, nil
	}
	wa, ok := p.Attributes["WEIGHTS_0"]
	if !ok {
		return pos, nil
	}
	if int(ja) >= len(doc.Accessors) || int(wa) >= len(doc.Accessors) {
		return nil, errors.New("joint or weight accessor out of range")
	}
	joints, err := modeler.ReadJoints(doc, doc.Accessors[ja], nil)
	if err != nil {
		return nil, err
	}
	weights, err := modeler.ReadWeights(doc, doc.Accessors[wa], nil)
	if err != nil {
		return nil, err
	}
	if len(joints) != len(pos) || len(weights) != len(pos) {
		return nil, errors.Errorf("%d positions, %d joints, %d weights", len(pos), len(joints), len(weights))
	}
	out := make([][3]float32, len(pos))
	for i, v := range pos {
		src := geom.NewVector3FromArray(v)
		var acc geom.Vector3
		var sum float32
		for k := 0; k < 4; k++ {
			w := weights[i][k]
			if w == 0 {
				continue
			}
			j := int(joints[i][k])
			if j >= len(mats) {
				return nil, errors.Errorf("vertex %d: joint %d out of range", i, j)
			}
			acc = *acc.Add(mats[j].ApplyTo(src).Scale(w))
			sum += w
		}
		if sum == 0 {
			out[i] = v
			continue
		}
		out[i] = acc.Scale(1 / sum).Array()
	}
	return out, nil
}

type DefaultCameraFactory struct{}

func (f *DefaultCameraFactory) CreateCamera(doc *gltf.Document, camera int) (*native.Camera, error) {
	if camera < 0 || camera >= len(doc.Cameras) {
		return nil, errors.Errorf("camera %d out of range", camera)
	}
	gc := doc.Cameras[camera]
	cam := &native.Camera{Name: gc.Name}
	if cam.Name == "" {
		cam.Name = "Camera"
	}
	if gc.Perspective != nil {
		cam.Type = native.CameraPerspective
		cam.Yfov = gc.Perspective.Yfov
		cam.Znear = gc.Perspective.Znear
		if gc.Perspective.Zfar != nil {
			cam.Zfar = *gc.Perspective.Zfar
		}
		if gc.Perspective.AspectRatio != nil {
			cam.AspectRatio = *gc.Perspective.AspectRatio
		}
	} else if gc.Orthographic != nil {
		cam.Type = native.CameraOrthographic
		cam.Xmag = gc.Orthographic.Xmag
		cam.Ymag = gc.Orthographic.Ymag
		cam.Znear = gc.Orthographic.Znear
		cam.Zfar = gc.Orthographic.Zfar
	} else {
		return nil, errors.Errorf("camera %d has no projection", camera)
	}
	return cam, nil
}

type DefaultLightFactory struct{}

func (f *DefaultLightFactory) CreateLight(doc *gltf.Document, light int) (*native.Light, error) {
	lights := gltfutil.Lights(doc)
	if light < 0 || light >= len(lights) {
		return nil, errors.Errorf("light %d out of range", light)
	}
	gl := lights[light]
	l := &native.Light{
		Name:      gl.Name,
		Color:     gl.ColorOrDefault(),
		Intensity: gl.IntensityOrDefault(),
	}
	if l.Name == "" {
		l.Name = "Light"
	}
	if gl.Range != nil && !math.IsInf(float64(*gl.Range), 0) {
		l.Range = *gl.Range
	}
	switch gl.Type {
	case lightspuntual.TypeDirectional:
		l.Type = native.LightSun
	case lightspuntual.TypeSpot:
		l.Type = native.LightSpot
		outer := float32(math.Pi / 4)
		inner := float32(0)
		if gl.Spot != nil {
			outer = gl.Spot.OuterConeAngleOrDefault()
			inner = gl.Spot.InnerConeAngle
		}
		l.SpotSize = outer * 2
		if outer > 0 {
			l.SpotBlend = 1 - inner/outer
		}
	default:
		l.Type = native.LightPoint
	}
	return l, nil
}

// DefaultExtrasSetter copies JSON object extras. Other extras are dropped.
type DefaultExtrasSetter struct{}

func (s *DefaultExtrasSetter) Extras(src interface{}) map[string]interface{} {
	m, ok := src.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}
	dst := make(map[string]interface{}, len(m))
	for k, v := range m {
		dst[k] = v
	}
	return dst
}
