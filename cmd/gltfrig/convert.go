package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/gltfrig/exporter"
	"github.com/binzume/gltfrig/gltfutil"
	"github.com/binzume/gltfrig/importer"
	"github.com/binzume/gltfrig/native"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
)

// debugHook dumps the plans without changing them.
type debugHook struct {
	w io.Writer
}

var dumper = spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}

func (h *debugHook) ImportPlan(plan *importer.Plan) error {
	for _, v := range plan.Graph.Nodes {
		dumper.Fprintf(h.w, "%v parent=%v children=%v trs=%+v\n", v, v.Parent, v.Children, v.TRS())
	}
	return nil
}

func (h *debugHook) GatherPlan(plan *exporter.Plan) error {
	dumper.Fdump(h.w, plan)
	return nil
}

func importScene(doc *gltf.Document, conf *Config, logger *log.Logger) (*native.Scene, error) {
	if err := gltfutil.Scale(doc, conf.Scale); err != nil {
		return nil, err
	}
	opts, err := conf.ImportOptions(logger)
	if err != nil {
		return nil, err
	}
	if conf.Debug {
		opts.Hook = &debugHook{w: os.Stderr}
	}
	scene, err := importer.Import(doc, opts)
	if err != nil {
		return nil, err
	}
	logger.Printf("scene: %s, %d objects", scene.Name, len(scene.Objects()))
	return scene, nil
}

func exportScene(scene *native.Scene, conf *Config, logger *log.Logger) (*gltf.Document, error) {
	opts := conf.ExportOptions(logger)
	if conf.Debug {
		opts.Hook = &debugHook{w: os.Stderr}
	}
	return exporter.Export([]*native.Scene{scene}, 0, opts)
}

func convert(input, output string, conf *Config, logger *log.Logger) error {
	doc, err := gltfutil.Load(input)
	if err != nil {
		return err
	}
	scene, err := importScene(doc, conf, logger)
	if err != nil {
		return errors.Wrapf(err, "import %s", input)
	}

	switch ext := strings.ToLower(filepath.Ext(output)); ext {
	case ".yaml", ".yml":
		w, err := os.Create(output)
		if err != nil {
			return err
		}
		defer w.Close()
		return scene.WriteYAML(w)
	case ".glb", ".gltf":
		out, err := exportScene(scene, conf, logger)
		if err != nil {
			return errors.Wrapf(err, "export %s", output)
		}
		return gltfutil.Save(out, output)
	default:
		return errors.Errorf("unsupported output type: %v", ext)
	}
}
