package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

func defaultOutputFile(input string) string {
	ext := filepath.Ext(input)
	return input[0:len(input)-len(ext)] + ".yaml"
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s input.glb [output.yaml|output.glb|output.gltf]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -serve :8080\n", os.Args[0])
		fs.PrintDefaults()
	}
	conf, err := parseArgs(fs, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if conf.Serve != "" {
		log.Fatal(serve(conf.Serve, conf, log.Default()))
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return
	}
	input := fs.Arg(0)
	output := defaultOutputFile(input)
	if fs.NArg() > 1 {
		output = fs.Arg(1)
	}
	inputExt := strings.ToLower(filepath.Ext(input))
	if inputExt != ".glb" && inputExt != ".gltf" {
		log.Fatalf("unsupported input type: %v", inputExt)
	}

	log.Print("out: ", output)
	if err := convert(input, output, conf, log.Default()); err != nil {
		if !conf.Watch {
			log.Fatal(err)
		}
		log.Print(err)
	}
	if conf.Watch {
		log.Print("watching ", input)
		err := watch(input, nil, log.Default(), func() error {
			log.Print("changed: ", input)
			return convert(input, output, conf, log.Default())
		})
		if err != nil {
			log.Fatal(err)
		}
	}
}
