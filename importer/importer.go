// Package importer instantiates a resolved glTF node graph as a native scene.
package importer

import (
	"log"

	"github.com/binzume/gltfrig/geom"
	"github.com/binzume/gltfrig/gltfutil"
	"github.com/binzume/gltfrig/native"
	"github.com/binzume/gltfrig/vnode"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
)

var ErrEmptySkinJointList = errors.New("skin has no joints")

// SkinErrorPolicy decides what happens when a mesh can not be bound to its skin.
type SkinErrorPolicy int

const (
	AbortOnSkinError SkinErrorPolicy = iota
	// SkipSkinOnError leaves the mesh unskinned and logs the error.
	SkipSkinOnError
)

// Track is an animation of the document, under its unique track name.
type Track struct {
	Name      string
	Animation int
}

// Plan is what the import hook sees before anything is instantiated.
type Plan struct {
	ActiveScene int // -1 if the document has no scene
	Scenes      []*gltf.Scene
	Animations  []*Track
	Graph       *vnode.Graph
}

type ImportHook interface {
	ImportPlan(plan *Plan) error
}

type Options struct {
	Graph         *vnode.Options
	Hook          ImportHook
	MeshBuilder   MeshBuilder
	CameraFactory CameraFactory
	LightFactory  LightFactory
	Extras        ExtrasSetter
	OnSkinError   SkinErrorPolicy
	Logger        *log.Logger
}

type Importer struct {
	Options

	doc      *gltf.Document
	graph    *vnode.Graph
	yUpToZUp bool
	scene    *native.Scene

	objects     []*native.Object // by vnode.ID
	boneNames   []string         // by vnode.ID
	objectNames map[string]bool
	meshNames   map[string]bool
	meshCache   map[meshKey]*native.Mesh
	pendingSkin []vnode.ID

	weightAnimated map[int]bool
	shapeKeyNames  [][]string
}

func NewImporter(options *Options) *Importer {
	var opts Options
	if options != nil {
		opts = *options
	}
	if opts.MeshBuilder == nil {
		opts.MeshBuilder = &DefaultMeshBuilder{}
	}
	if opts.CameraFactory == nil {
		opts.CameraFactory = &DefaultCameraFactory{}
	}
	if opts.LightFactory == nil {
		opts.LightFactory = &DefaultLightFactory{}
	}
	if opts.Extras == nil {
		opts.Extras = &DefaultExtrasSetter{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Importer{Options: opts}
}

func Import(doc *gltf.Document, options *Options) (*native.Scene, error) {
	return NewImporter(options).Import(doc)
}

func (im *Importer) preCompute() []*Track {
	im.weightAnimated = gltfutil.WeightAnimatedNodes(im.doc)
	im.shapeKeyNames = make([][]string, len(im.doc.Meshes))
	for i := range im.doc.Meshes {
		im.shapeKeyNames[i] = gltfutil.ShapeKeyNames(im.doc, i)
	}
	var tracks []*Track
	for i, name := range gltfutil.TrackNames(im.doc) {
		tracks = append(tracks, &Track{Name: name, Animation: i})
	}
	return tracks
}

// Import resolves the node graph, runs the hook and creates the native scene.
// Nothing is instantiated when resolution fails.
func (im *Importer) Import(doc *gltf.Document) (*native.Scene, error) {
	im.doc = doc
	tracks := im.preCompute()

	graphOpts := vnode.Options{}
	if im.Graph != nil {
		graphOpts = *im.Graph
	}
	if graphOpts.Logger == nil {
		graphOpts.Logger = im.Logger
	}
	im.yUpToZUp = graphOpts.YUpToZUp
	graph, err := vnode.Build(doc, &graphOpts)
	if err != nil {
		return nil, err
	}

	plan := &Plan{ActiveScene: -1, Scenes: doc.Scenes, Animations: tracks, Graph: graph}
	if doc.Scene != nil {
		plan.ActiveScene = int(*doc.Scene)
	} else if len(doc.Scenes) > 0 {
		plan.ActiveScene = 0
	}
	if im.Hook != nil {
		if err := im.Hook.ImportPlan(plan); err != nil {
			return nil, errors.Wrap(err, "import hook")
		}
		if err := plan.Graph.Validate(); err != nil {
			return nil, errors.Wrap(err, "import hook")
		}
	}

	sceneName := "Scene"
	if plan.ActiveScene >= 0 && plan.ActiveScene < len(plan.Scenes) && plan.Scenes[plan.ActiveScene].Name != "" {
		sceneName = plan.Scenes[plan.ActiveScene].Name
	}
	im.scene = native.NewScene(sceneName)
	for _, t := range plan.Animations {
		im.scene.Tracks = append(im.scene.Tracks, t.Name)
	}

	im.graph = plan.Graph
	im.objects = make([]*native.Object, im.graph.Len())
	im.boneNames = make([]string, im.graph.Len())
	im.objectNames = map[string]bool{}
	im.meshNames = map[string]bool{}
	im.meshCache = map[meshKey]*native.Mesh{}
	im.pendingSkin = nil

	err = im.graph.Walk(func(v *vnode.VNode) error {
		if err := im.createVNode(v); err != nil {
			return vnode.WrapNode(errors.Wrapf(err, "create %v", v), v.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Armatures exist now, wherever they are in the tree.
	for _, id := range im.pendingSkin {
		if err := vnode.WrapNode(im.bindSkin(im.graph.Get(id)), id); err != nil {
			if im.OnSkinError == AbortOnSkinError {
				return nil, err
			}
			im.Logger.Printf("skip skinning: %v", err)
		}
	}
	return im.scene, nil
}

func (im *Importer) createVNode(v *vnode.VNode) error {
	switch v.Type {
	case vnode.Object:
		if err := im.createObject(v); err != nil {
			return err
		}
		if v.IsArma {
			return im.createBones(v)
		}
	case vnode.Bone:
		// created with the armature
	case vnode.DummyRoot:
	}
	return nil
}

func (im *Importer) sourceExtras(v *vnode.VNode) map[string]interface{} {
	if v.IsSynthesized() || v.Source >= len(im.doc.Nodes) {
		return nil
	}
	return im.Extras.Extras(im.doc.Nodes[v.Source].Extras)
}

func (im *Importer) createObject(v *vnode.VNode) error {
	var data native.Data
	name := v.Name
	switch {
	case v.Mesh() != nil:
		mesh, err := im.resolveMesh(v)
		if err != nil {
			return err
		}
		data = mesh
		if name == "" {
			name = mesh.Name
		}
	case v.Camera() != nil:
		cam, err := im.CameraFactory.CreateCamera(im.doc, v.Camera().Camera)
		if err != nil {
			return err
		}
		data = cam
		if name == "" {
			name = cam.Name
		}
	case v.Light() != nil:
		light, err := im.LightFactory.CreateLight(im.doc, v.Light().Light)
		if err != nil {
			return err
		}
		data = light
		if name == "" {
			name = light.Name
		}
	case v.IsArma:
		arma := native.NewArmature(v.ArmaName)
		data = arma
		if name == "" {
			name = arma.Name
		}
	default:
		name = v.DisplayName()
	}

	obj := native.NewObject(gltfutil.UniqueName(im.objectNames, name), data)
	obj.Extras = im.sourceExtras(v)
	im.objects[v.ID] = obj

	trs := v.TRS()
	parent := im.graph.Get(v.Parent)
	if v.IsSkinnedMesh() && parent.Type != vnode.Bone {
		// The skin places the mesh; only scale is kept.
		obj.Location = geom.Vector3{}
		obj.Rotation = geom.Quaternion{W: 1}
	} else {
		obj.Location = trs.Translation
		obj.Rotation = trs.Rotation
	}
	obj.Scale = trs.Scale

	switch parent.Type {
	case vnode.Object:
		obj.SetParent(im.objects[parent.ID])
	case vnode.Bone:
		// Children of a bone hang from its tail; move them back to the head.
		obj.SetParentBone(im.objects[parent.BoneArma], im.boneNames[parent.ID])
		obj.Location.Y -= parent.BoneLength
	}

	if mesh := obj.Mesh(); mesh != nil {
		im.setMorphWeights(obj, v.Mesh())
		if v.IsSkinnedMesh() {
			im.pendingSkin = append(im.pendingSkin, v.ID)
		}
	}

	im.scene.Collection.Link(obj)
	return nil
}
