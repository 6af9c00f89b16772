package importer

import (
	"bytes"
	"log"
	"math"
	"strings"
	"testing"

	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/gltfutil"
	"github.com/binzume/gltfrig/native"
	"github.com/binzume/gltfrig/vnode"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/ext/lightspuntual"
	"github.com/qmuntal/gltf/modeler"
)

const eps = 1e-4

// Body(mesh, skin) and Hips -> Spine -> Head, Hat(mesh) hangs from Head.
func skinnedDoc() *gltf.Document {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {0, 1, 0}, {0, 2, 0}})
	doc.Meshes = []*gltf.Mesh{
		{Name: "Body", Primitives: []*gltf.Primitive{{Attributes: map[string]uint32{"POSITION": pos}}}},
		{Name: "Hat", Primitives: []*gltf.Primitive{{Attributes: map[string]uint32{"POSITION": pos}}}},
	}
	doc.Nodes = []*gltf.Node{
		{Name: "Body", Mesh: gltf.Index(0), Skin: gltf.Index(0), Translation: [3]float32{5, 0, 0}},
		{Name: "Hips", Translation: [3]float32{0, 1, 0}, Children: []uint32{2}, Extras: map[string]interface{}{"tag": "hips"}},
		{Name: "Spine", Translation: [3]float32{0, 0.5, 0}, Children: []uint32{3}},
		{Name: "Head", Translation: [3]float32{0.1, 0.25, 0}, Children: []uint32{4}},
		{Name: "Hat", Mesh: gltf.Index(1), Translation: [3]float32{0, 0.1, 0.05}},
	}
	doc.Nodes[2].Rotation = geom.NewQuaternionFromAxisAngle(&geom.Vector3{Z: 1}, 0.3).Array()
	doc.Nodes[3].Scale = [3]float32{2, 2, 2}
	doc.Skins = []*gltf.Skin{{Joints: []uint32{1, 2, 3}}}
	doc.Scenes = []*gltf.Scene{{Name: "Main", Nodes: []uint32{0, 1}}}
	doc.Scene = gltf.Index(0)
	return doc
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func mustImport(t *testing.T, doc *gltf.Document, opts *Options) *native.Scene {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	scene, err := Import(doc, opts)
	if err != nil {
		t.Fatal(err)
	}
	return scene
}

func gltfWorld(doc *gltf.Document, node int) *geom.Matrix4 {
	parents := map[int]int{}
	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			parents[int(c)] = i
		}
	}
	m := geom.NewMatrix4()
	for i, ok := node, true; ok; i, ok = parents[i] {
		n := doc.Nodes[i]
		local := geom.NewTRSMatrix4(geom.NewVector3FromArray(n.Translation),
			geom.NewQuaternionFromArray(n.RotationOrDefault()), geom.NewVector3FromArray(n.ScaleOrDefault()))
		m = local.Mul(m)
	}
	return m
}

func TestImportSkinned(t *testing.T) {
	scene := mustImport(t, skinnedDoc(), nil)
	if scene.Name != "Main" {
		t.Error("scene name", scene.Name)
	}

	body := scene.Object("Body")
	armaObj := scene.Object("Armature")
	if body == nil || armaObj == nil || armaObj.Armature() == nil {
		t.Fatal("objects not created", spew.Sdump(scene.Roots()))
	}
	if body.Location != (geom.Vector3{}) || body.Rotation != (geom.Quaternion{W: 1}) {
		t.Error("skinned mesh should have identity location and rotation", body.Location, body.Rotation)
	}
	if len(body.Mesh().Positions) != 3 {
		t.Error("positions", body.Mesh().Positions)
	}
	expected := []string{"Hips", "Spine", "Head"}
	if len(body.VertexGroups) != len(expected) {
		t.Fatal("vertex groups", body.VertexGroups)
	}
	for i, name := range expected {
		if body.VertexGroups[i] != name {
			t.Error("vertex group", i, body.VertexGroups[i])
		}
	}
	if len(body.Modifiers) != 1 || body.Modifiers[0].Type != native.ModifierArmature || body.Modifiers[0].Object != armaObj {
		t.Error("armature modifier", spew.Sdump(body.Modifiers))
	}

	rest := armaObj.Armature().Rest()
	if rest == nil || len(rest.Bones()) != 3 || rest.Bone("Spine").Parent != "Hips" {
		t.Fatal("rest skeleton", rest)
	}
	if rest.Bone("Hips").Extras()["tag"] != "hips" {
		t.Error("bone extras", rest.Bone("Hips").Extras())
	}
	if l := rest.Bone("Hips").Length; geom.Abs(l-0.5) > eps {
		t.Error("hips length", l)
	}
}

func TestBoneWorldMatrices(t *testing.T) {
	for _, opts := range []*vnode.Options{
		{},
		{BoneHeuristic: vnode.HeuristicTemperance},
		{YUpToZUp: true},
		{YUpToZUp: true, BoneHeuristic: vnode.HeuristicTemperance},
	} {
		doc := skinnedDoc()
		scene := mustImport(t, doc, &Options{Graph: opts})
		basis := geom.NewMatrix4()
		if opts.YUpToZUp {
			basis = geom.YUpToZUpMatrix()
		}
		armaObj := scene.Object("Armature")
		arma := armaObj.Armature()
		for i, name := range []string{"Hips", "Spine", "Head"} {
			got := armaObj.WorldMatrix().Mul(arma.PoseMatrix(name)).Translation()
			want := basis.Mul(gltfWorld(doc, i+1)).Translation()
			if !geom.NearlyEqual(got, want, eps) {
				t.Errorf("%+v: bone %s at %v, node at %v", *opts, name, got, want)
			}
		}
		hat := scene.Object("Hat")
		if hat.ParentType != native.ParentBone || hat.ParentBone != "Head" || hat.Parent != armaObj {
			t.Fatal("hat should be parented to the head bone", hat.Parent, hat.ParentBone)
		}
		got := hat.WorldMatrix().Translation()
		want := basis.Mul(gltfWorld(doc, 4)).Translation()
		if !geom.NearlyEqual(got, want, eps) {
			t.Errorf("%+v: hat at %v, node at %v", *opts, got, want)
		}
	}
}

func TestRestPoseIsIdentity(t *testing.T) {
	scene := mustImport(t, skinnedDoc(), nil)
	arma := scene.Object("Armature").Armature()
	for _, b := range arma.Rest().Bones() {
		p, err := arma.PoseBone(b.Name)
		if err != nil {
			t.Fatal(err)
		}
		if !geom.NearlyEqual(&p.Location, &geom.Vector3{}, eps) || !geom.SameRotation(&p.Rotation, geom.NewIdentityQuaternion(), eps) {
			t.Error("pose of", b.Name, spew.Sdump(p))
		}
	}
	head, _ := arma.PoseBone("Head")
	if head.Scale != (geom.Vector3{X: 2, Y: 2, Z: 2}) {
		t.Error("pose scale", head.Scale)
	}
}

func morphDoc() *gltf.Document {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	target := modeler.WritePosition(doc, [][3]float32{{0, 0, 1}, {0, 0, 0}, {0, 0, 0}})
	doc.Meshes = []*gltf.Mesh{
		{Name: "Plain", Primitives: []*gltf.Primitive{{Attributes: map[string]uint32{"POSITION": pos}}}},
		{
			Name: "Face",
			Primitives: []*gltf.Primitive{{
				Attributes: map[string]uint32{"POSITION": pos},
				Targets:    []map[string]uint32{{"POSITION": target}},
			}},
			Weights: []float32{0.25},
			Extras:  map[string]interface{}{"targetNames": []interface{}{"Smile"}},
		},
	}
	doc.Nodes = []*gltf.Node{
		{Name: "P1", Mesh: gltf.Index(0)},
		{Name: "P2", Mesh: gltf.Index(0)},
		{Name: "F1", Mesh: gltf.Index(1)},
		{Name: "F2", Mesh: gltf.Index(1)},
		{Name: "F3", Mesh: gltf.Index(1), Weights: []float32{1}},
		{Name: "F4", Mesh: gltf.Index(1)},
		{Name: "F5", Mesh: gltf.Index(1)},
	}
	doc.Animations = []*gltf.Animation{{
		Channels: []*gltf.Channel{
			{Target: gltf.ChannelTarget{Node: gltf.Index(5), Path: gltf.TRSWeights}},
			{Target: gltf.ChannelTarget{Node: gltf.Index(6), Path: gltf.TRSWeights}},
		},
	}}
	return doc
}

func TestMeshCache(t *testing.T) {
	scene := mustImport(t, morphDoc(), nil)
	mesh := func(name string) *native.Mesh {
		return scene.Object(name).Mesh()
	}
	if mesh("P1") != mesh("P2") {
		t.Error("plain instances should share the mesh")
	}
	if mesh("F1") != mesh("F2") {
		t.Error("instances with the same weights should share the mesh")
	}
	if mesh("F1") == mesh("F3") {
		t.Error("instances with different weights should not share the mesh")
	}
	if mesh("F4") == mesh("F5") || mesh("F4") == mesh("F1") {
		t.Error("weight animated instances should not share the mesh")
	}
	if mesh("F1").Name == mesh("F3").Name {
		t.Error("mesh names should be unique", mesh("F1").Name)
	}
	if len(scene.Tracks) != 1 || scene.Tracks[0] != "Anim_0" {
		t.Error("tracks", scene.Tracks)
	}
}

func TestMorphWeights(t *testing.T) {
	scene := mustImport(t, morphDoc(), nil)
	if k := scene.Object("F1").Mesh().ShapeKey("Smile"); k == nil || k.Value != 0.25 {
		t.Error("mesh default weight", k)
	}
	if k := scene.Object("F3").Mesh().ShapeKey("Smile"); k == nil || k.Value != 1 {
		t.Error("node weight", k)
	}
}

type testHook struct {
	plan *Plan
}

func (h *testHook) ImportPlan(plan *Plan) error {
	h.plan = plan
	plan.Scenes = []*gltf.Scene{{Name: "Renamed"}}
	plan.ActiveScene = 0
	plan.Animations = plan.Animations[:0]
	plan.Graph.Get(1).Name = "Pelvis"
	return nil
}

func TestImportHook(t *testing.T) {
	hook := &testHook{}
	doc := skinnedDoc()
	doc.Animations = []*gltf.Animation{{Name: "Walk"}}
	scene := mustImport(t, doc, &Options{Hook: hook})
	if hook.plan == nil || hook.plan.Graph == nil {
		t.Fatal("hook not called")
	}
	if scene.Name != "Renamed" || len(scene.Tracks) != 0 {
		t.Error("hook changes not applied", scene.Name, scene.Tracks)
	}
	if rest := scene.Object("Armature").Armature().Rest(); rest.Bone("Pelvis") == nil {
		t.Error("renamed bone not found")
	}
	if scene.Object("Body").VertexGroups[0] != "Pelvis" {
		t.Error("vertex group should follow the bone name", scene.Object("Body").VertexGroups)
	}
}

type failingHook struct{}

func (failingHook) ImportPlan(plan *Plan) error { return errors.New("nope") }

func TestImportHookError(t *testing.T) {
	if _, err := Import(skinnedDoc(), &Options{Hook: failingHook{}, Logger: quietLogger()}); err == nil {
		t.Error("hook error should abort the import")
	}
}

func TestEmptySkin(t *testing.T) {
	doc := skinnedDoc()
	doc.Skins = append(doc.Skins, &gltf.Skin{})
	doc.Nodes[4].Skin = gltf.Index(1)

	_, err := Import(doc, &Options{Logger: quietLogger()})
	if !errors.Is(err, ErrEmptySkinJointList) {
		t.Fatal("expected empty joint list", err)
	}
	if vnode.ErrorNode(err) != 4 || !strings.HasPrefix(err.Error(), "node 4: ") {
		t.Error("error should name the Hat node", err)
	}

	scene := mustImport(t, doc, &Options{OnSkinError: SkipSkinOnError})
	hat := scene.Object("Hat")
	if len(hat.Modifiers) != 0 || len(hat.VertexGroups) != 0 {
		t.Error("mesh should stay unskinned", spew.Sdump(hat))
	}
	if len(scene.Object("Body").Modifiers) != 1 {
		t.Error("other meshes are still skinned")
	}
}

func TestResolutionErrorCreatesNothing(t *testing.T) {
	doc := skinnedDoc()
	doc.Skins[0].Joints = append(doc.Skins[0].Joints, 99)
	scene, err := Import(doc, &Options{Logger: quietLogger()})
	if scene != nil || !errors.Is(err, vnode.ErrMalformedSkinReference) {
		t.Error("expected malformed skin reference", err)
	}
}

func TestCameraAndLight(t *testing.T) {
	doc := gltf.NewDocument()
	zfar := float32(100)
	doc.Cameras = []*gltf.Camera{{Name: "Cam", Perspective: &gltf.Perspective{Yfov: 0.8, Znear: 0.1, Zfar: &zfar}}}
	doc.Extensions = gltf.Extensions{lightspuntual.ExtensionName: lightspuntual.Lights{
		{Type: lightspuntual.TypeDirectional, Name: "Sun"},
	}}
	doc.Nodes = []*gltf.Node{
		{Name: "CamNode", Camera: gltf.Index(0)},
		{Extensions: gltf.Extensions{lightspuntual.ExtensionName: lightspuntual.LightIndex(0)}},
		{Name: "Empty", Children: []uint32{0}},
	}
	scene := mustImport(t, doc, &Options{Graph: &vnode.Options{YUpToZUp: true}})

	cam := scene.Object("CamNode")
	if cam.Camera() == nil || cam.Camera().Zfar != 100 || cam.Camera().Type != native.CameraPerspective {
		t.Fatal("camera", spew.Sdump(cam))
	}
	if cam.Parent != scene.Object("Empty") {
		t.Error("camera parent", cam.Parent)
	}
	sun := scene.Object("Sun")
	if sun == nil || sun.Light() == nil || sun.Light().Type != native.LightSun || sun.Light().Intensity != 1 {
		t.Fatal("light", spew.Sdump(scene.Roots()))
	}
	// glTF lights shine down -Z, host lights too after the correction: -Z maps to +Y.
	dir := sun.Rotation.ApplyTo(&geom.Vector3{Z: -1})
	if !geom.NearlyEqual(dir, &geom.Vector3{Y: 1}, eps) {
		t.Error("light direction", dir)
	}
	if math.Abs(float64(cam.Rotation.W)-math.Sqrt2/2) > eps {
		t.Error("camera correction", cam.Rotation)
	}
}

func TestUniqueObjectNames(t *testing.T) {
	doc := gltf.NewDocument()
	doc.Nodes = []*gltf.Node{{Name: "A"}, {Name: "A"}, {Name: "Armature"}}
	doc.Skins = []*gltf.Skin{{Joints: []uint32{2}}}
	scene := mustImport(t, doc, nil)
	names := map[string]bool{}
	for _, o := range scene.Objects() {
		if names[o.Name] {
			t.Error("duplicate object name", o.Name)
		}
		names[o.Name] = true
	}
	if !names["A.001"] {
		t.Error("expected A.001", names)
	}
}

func TestSkinnedPositions(t *testing.T) {
	for _, yup := range []bool{false, true} {
		doc := gltf.NewDocument()
		pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {0, 0, 0}, {1, 0, 0}})
		joints := modeler.WriteJoints(doc, [][4]uint16{{0, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 0, 0}})
		weights := modeler.WriteWeights(doc, [][4]float32{{1, 0, 0, 0}, {0.5, 0.5, 0, 0}, {0, 0, 0, 0}})
		doc.Meshes = []*gltf.Mesh{{Name: "Body", Primitives: []*gltf.Primitive{{
			Attributes: map[string]uint32{"POSITION": pos, "JOINTS_0": joints, "WEIGHTS_0": weights},
		}}}}
		doc.Nodes = []*gltf.Node{
			{Name: "Body", Mesh: gltf.Index(0), Skin: gltf.Index(0)},
			{Name: "Hips", Translation: [3]float32{0, 1, 0}, Children: []uint32{2}},
			{Name: "Spine", Translation: [3]float32{0, 0.5, 0}},
		}
		// Bound at the origin: the joints' rest transforms move the vertices.
		doc.Skins = []*gltf.Skin{{Joints: []uint32{1, 2}}}
		doc.Scenes = []*gltf.Scene{{Nodes: []uint32{0, 1}}}

		scene := mustImport(t, doc, &Options{Graph: &vnode.Options{YUpToZUp: yup}})
		got := scene.Object("Body").Mesh().Positions
		want := [][3]float32{{0, 1, 0}, {0, 1.25, 0}, {1, 0, 0}}
		for i, w := range want {
			if yup {
				w = [3]float32{w[0], -w[2], w[1]}
			}
			if !geom.NearlyEqual(geom.NewVector3FromArray(got[i]), geom.NewVector3FromArray(w), eps) {
				t.Errorf("yup=%v vertex %d: %v, want %v", yup, i, got[i], w)
			}
		}
	}
}

func TestSkinnedPositionsWithInverseBind(t *testing.T) {
	doc := skinnedDoc()
	joints := modeler.WriteJoints(doc, [][4]uint16{{0, 0, 0, 0}, {1, 0, 0, 0}, {2, 0, 0, 0}})
	weights := modeler.WriteWeights(doc, [][4]float32{{1, 0, 0, 0}, {1, 0, 0, 0}, {1, 0, 0, 0}})
	prim := doc.Meshes[0].Primitives[0]
	prim.Attributes["JOINTS_0"] = joints
	prim.Attributes["WEIGHTS_0"] = weights

	// Inverse bind matrices matching the node transforms leave vertices unchanged.
	var ibms [][4][4]float32
	for _, j := range doc.Skins[0].Joints {
		m := gltfWorld(doc, int(j)).Inverse()
		var c [4][4]float32
		for k := range m {
			c[k/4][k%4] = m[k]
		}
		ibms = append(ibms, c)
	}
	doc.Skins[0].InverseBindMatrices = gltf.Index(gltfutil.WriteInverseBindMatrices(doc, ibms))

	scene := mustImport(t, doc, &Options{Graph: &vnode.Options{BoneHeuristic: vnode.HeuristicTemperance}})
	got := scene.Object("Body").Mesh().Positions
	want := [][3]float32{{0, 0, 0}, {0, 1, 0}, {0, 2, 0}}
	for i, w := range want {
		if !geom.NearlyEqual(geom.NewVector3FromArray(got[i]), geom.NewVector3FromArray(w), eps) {
			t.Errorf("vertex %d: %v, want %v", i, got[i], w)
		}
	}
	if hat := scene.Object("Hat").Mesh().Positions; hat[2] != [3]float32{0, 2, 0} {
		t.Errorf("unskinned mesh changed: %v", hat)
	}
}
