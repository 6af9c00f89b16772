package main

import (
	"flag"
	"io/ioutil"
	"log"

	"github.com/binzume/gltfrig/exporter"
	"github.com/binzume/gltfrig/importer"
	"github.com/binzume/gltfrig/vnode"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	YUp                  bool    `yaml:"yup"`
	BoneHeuristic        string  `yaml:"bone_heuristic"`
	DefaultBoneLength    float32 `yaml:"default_bone_length"`
	SkinnedMeshUnderBone string  `yaml:"skinned_mesh_under_bone"`
	SkipSkinErrors       bool    `yaml:"skip_skin_errors"`
	Scale                float32 `yaml:"scale"`
	Asobo                bool    `yaml:"asobo"`
	Debug                bool    `yaml:"debug"`
	Watch                bool    `yaml:"watch"`
	Serve                string  `yaml:"serve"`
}

func DefaultConfig() *Config {
	return &Config{
		YUp:                  true,
		BoneHeuristic:        "none",
		DefaultBoneLength:    vnode.DefaultBoneLength,
		SkinnedMeshUnderBone: "reparent",
		Scale:                1,
	}
}

func LoadConfig(path string, conf *Config) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "config")
	}
	if err := yaml.UnmarshalStrict(data, conf); err != nil {
		return errors.Wrapf(err, "config %s", path)
	}
	return nil
}

// parseArgs reads the config file given by -config, then applies the flags that
// were set explicitly on top of it.
func parseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	def := DefaultConfig()
	confFile := fs.String("config", "", "YAML config file")
	yup := fs.Bool("yup", def.YUp, "convert glTF Y-up to Z-up and back")
	heuristic := fs.String("heuristic", def.BoneHeuristic, "bone orientation heuristic: none, temperance")
	boneLen := fs.Float64("bonelen", float64(def.DefaultBoneLength), "length of bones without child bones")
	skinned := fs.String("skinned", def.SkinnedMeshUnderBone, "skinned mesh under a bone: reparent, reject")
	skipSkin := fs.Bool("skipskinerrors", false, "leave meshes unskinned when binding fails")
	scale := fs.Float64("scale", float64(def.Scale), "scale the input document")
	asobo := fs.Bool("asobo", false, "write ASOBO extensions (.glb/.gltf)")
	debug := fs.Bool("debug", false, "dump import and export plans")
	watchInput := fs.Bool("watch", false, "convert again whenever the input changes")
	serveAddr := fs.String("serve", "", "serve POST /convert/{yaml,glb} on this address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	conf := DefaultConfig()
	if *confFile != "" {
		if err := LoadConfig(*confFile, conf); err != nil {
			return nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "yup":
			conf.YUp = *yup
		case "heuristic":
			conf.BoneHeuristic = *heuristic
		case "bonelen":
			conf.DefaultBoneLength = float32(*boneLen)
		case "skinned":
			conf.SkinnedMeshUnderBone = *skinned
		case "skipskinerrors":
			conf.SkipSkinErrors = *skipSkin
		case "scale":
			conf.Scale = float32(*scale)
		case "asobo":
			conf.Asobo = *asobo
		case "debug":
			conf.Debug = *debug
		case "watch":
			conf.Watch = *watchInput
		case "serve":
			conf.Serve = *serveAddr
		}
	})
	return conf, nil
}

func (c *Config) ImportOptions(logger *log.Logger) (*importer.Options, error) {
	graph := &vnode.Options{YUpToZUp: c.YUp, DefaultBoneLength: c.DefaultBoneLength, Logger: logger}
	switch c.BoneHeuristic {
	case "", "none":
		graph.BoneHeuristic = vnode.HeuristicNone
	case "temperance":
		graph.BoneHeuristic = vnode.HeuristicTemperance
	default:
		return nil, errors.Errorf("unknown bone heuristic: %s", c.BoneHeuristic)
	}
	switch c.SkinnedMeshUnderBone {
	case "", "reparent":
		graph.SkinnedMeshUnderBone = vnode.ReparentToArmature
	case "reject":
		graph.SkinnedMeshUnderBone = vnode.RejectSkinnedMeshUnderBone
	default:
		return nil, errors.Errorf("unknown skinned mesh policy: %s", c.SkinnedMeshUnderBone)
	}
	opts := &importer.Options{Graph: graph, Logger: logger}
	if c.SkipSkinErrors {
		opts.OnSkinError = importer.SkipSkinOnError
	}
	return opts, nil
}

func (c *Config) ExportOptions(logger *log.Logger) *exporter.Options {
	return &exporter.Options{YUp: c.YUp, AsoboExtensions: c.Asobo, Logger: logger}
}
