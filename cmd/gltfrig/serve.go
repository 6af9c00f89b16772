package main

import (
	"bytes"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/qmuntal/gltf"
)

type server struct {
	conf   *Config
	logger *log.Logger
}

func newRouter(conf *Config, logger *log.Logger) http.Handler {
	s := &server{conf: conf, logger: logger}
	r := mux.NewRouter()
	r.HandleFunc("/convert/{format}", s.handleConvert).Methods(http.MethodPost)
	return handlers.RecoveryHandler()(r)
}

func serve(addr string, conf *Config, logger *log.Logger) error {
	h := handlers.LoggingHandler(logger.Writer(), newRouter(conf, logger))
	logger.Printf("listening on %v", addr)
	return http.ListenAndServe(addr, h)
}

// handleConvert reads a glTF or GLB body and responds with the native scene as
// YAML, or re-exported as GLB.
func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]
	if format != "yaml" && format != "glb" {
		http.Error(w, "unsupported format: "+format, http.StatusNotFound)
		return
	}
	doc := &gltf.Document{}
	if err := gltf.NewDecoder(r.Body).Decode(doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	scene, err := importScene(doc, s.conf, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	var buf bytes.Buffer
	switch format {
	case "yaml":
		w.Header().Set("Content-Type", "application/yaml")
		err = scene.WriteYAML(&buf)
	case "glb":
		w.Header().Set("Content-Type", "model/gltf-binary")
		var out *gltf.Document
		if out, err = exportScene(scene, s.conf, s.logger); err == nil {
			enc := gltf.NewEncoder(&buf)
			enc.AsBinary = true
			err = enc.Encode(out)
		}
	}
	if err != nil {
		s.logger.Print(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(buf.Bytes())
}
