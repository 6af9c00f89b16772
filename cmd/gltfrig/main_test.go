package main

import (
	"bytes"
	"flag"
	"io/ioutil"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/gltfutil"
	"github.com/binzume/gltfrig/importer"
	"github.com/binzume/gltfrig/vnode"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

func TestParseArgs(t *testing.T) {
	dir := t.TempDir()
	confFile := filepath.Join(dir, "rig.yaml")
	conf := "bone_heuristic: temperance\nscale: 2\nasobo: true\n"
	if err := ioutil.WriteFile(confFile, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := parseArgs(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-config", confFile, "-scale", "0.5", "-yup=false", "in.glb"})
	if err != nil {
		t.Fatal(err)
	}
	if c.BoneHeuristic != "temperance" || !c.Asobo {
		t.Errorf("config file not applied: %+v", c)
	}
	if c.Scale != 0.5 || c.YUp {
		t.Errorf("flags should override config: %+v", c)
	}
	if c.DefaultBoneLength != vnode.DefaultBoneLength || c.SkinnedMeshUnderBone != "reparent" {
		t.Errorf("defaults: %+v", c)
	}

	if err := ioutil.WriteFile(confFile, []byte("bogus: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := parseArgs(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-config", confFile}); err == nil {
		t.Error("unknown config key should fail")
	}
}

func TestImportOptions(t *testing.T) {
	c := DefaultConfig()
	c.BoneHeuristic = "temperance"
	c.SkinnedMeshUnderBone = "reject"
	c.SkipSkinErrors = true
	opts, err := c.ImportOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Graph.BoneHeuristic != vnode.HeuristicTemperance || opts.Graph.SkinnedMeshUnderBone != vnode.RejectSkinnedMeshUnderBone ||
		!opts.Graph.YUpToZUp || opts.OnSkinError != importer.SkipSkinOnError {
		t.Errorf("options: %+v %+v", opts, opts.Graph)
	}

	c.BoneHeuristic = "sideways"
	if _, err := c.ImportOptions(nil); err == nil {
		t.Error("unknown heuristic should fail")
	}
}

// Body skinned to Hips -> Spine.
func testDoc() *gltf.Document {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {0, 1, 0}})
	doc.Meshes = []*gltf.Mesh{{Name: "Body", Primitives: []*gltf.Primitive{{Attributes: map[string]uint32{"POSITION": pos}}}}}
	doc.Nodes = []*gltf.Node{
		{Name: "Body", Mesh: gltf.Index(0), Skin: gltf.Index(0)},
		{Name: "Hips", Translation: [3]float32{0, 1, 0}, Children: []uint32{2}},
		{Name: "Spine", Translation: [3]float32{0, 0.5, 0}},
	}
	doc.Skins = []*gltf.Skin{{Joints: []uint32{1, 2}}}
	doc.Scenes = []*gltf.Scene{{Name: "Main", Nodes: []uint32{0, 1}}}
	return doc
}

func TestConvert(t *testing.T) {
	doc := testDoc()
	dir := t.TempDir()
	input := filepath.Join(dir, "in.glb")
	if err := gltf.SaveBinary(doc, input); err != nil {
		t.Fatal(err)
	}
	logger := log.New(&bytes.Buffer{}, "", 0)

	conf := DefaultConfig()
	yamlOut := filepath.Join(dir, "out.yaml")
	if err := convert(input, yamlOut, conf, logger); err != nil {
		t.Fatal(err)
	}
	data, err := ioutil.ReadFile(yamlOut)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"Main", "Hips", "Spine", "Armature"} {
		if !strings.Contains(string(data), s) {
			t.Errorf("%s missing in yaml:\n%s", s, data)
		}
	}

	conf.Asobo = true
	conf.Scale = 2
	glbOut := filepath.Join(dir, "out.glb")
	if err := convert(input, glbOut, conf, logger); err != nil {
		t.Fatal(err)
	}
	out, err := gltfutil.Load(glbOut)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Skins) != 1 || len(out.Skins[0].Joints) != 2 {
		t.Errorf("skins: %v", out.Skins)
	}
	for _, n := range out.Nodes {
		if n.Name == "Hips" && !geom.NearlyEqual(geom.NewVector3FromArray(n.Translation), &geom.Vector3{Y: 2}, 1e-5) {
			t.Errorf("scaled Hips: %v", n.Translation)
		}
	}

	if err := convert(input, filepath.Join(dir, "out.fbx"), conf, logger); err == nil {
		t.Error("unsupported output should fail")
	}
}

func TestDefaultOutputFile(t *testing.T) {
	if f := defaultOutputFile("model.glb"); f != "model.yaml" {
		t.Errorf("default output: %s", f)
	}
}
