// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// accelconv converts host graphs described in YAML to accelerator engines, and inspects or runs
// serialized engines.
//
// Examples:
//
//	# Convert a graph, print its layers and save the engine.
//	accelconv -graph=model.yaml -fp16 -info -save=model.accel
//
//	# Load a saved engine and run it on 4 concurrent streams, with dynamic axes set to 2.
//	accelconv -load=model.accel -run -streams=4 -dynamic_dim=2
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/plugin/plugins"
	"github.com/gomlx/accelconv/pkg/support/fsutil"
	"github.com/gomlx/accelconv/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"k8s.io/klog/v2"
)

var (
	flagGraph = flag.String("graph", "", "YAML file with the host graph to convert.")
	flagLoad  = flag.String("load", "", "Serialized engine to load, instead of converting a graph.")
	flagSave  = flag.String("save", "", "File where to save the serialized engine.")

	flagFP16     = flag.Bool("fp16", false, "Enable float16 in plugins that support it.")
	flagTestMode = flag.Bool("test_mode", false, "Mark every converted tensor as an output of the engine.")
	flagRetained = xslices.Flag("retained", nil,
		"Comma-separated list of retained tensors: operators none of whose outputs are listed are skipped. "+
			"It overrides the list in the graph file.",
		func(name string) (string, error) { return strings.TrimSpace(name), nil })
	flagMaxWorkspace = flag.String("max_workspace", "1GiB", "Maximum workspace any plugin can request, e.g. \"256MiB\".")

	flagInfo       = flag.Bool("info", false, "Print the inputs, outputs, layers and plugins of the engine.")
	flagRun        = flag.Bool("run", false, "Run the engine on inputs filled with -fill.")
	flagFill       = flag.Float64("fill", 1, "Value of every input element for -run.")
	flagDynamicDim = flag.Int("dynamic_dim", 0, "Dimension used for dynamic axes for -run. If 0, the maximum of the optimization profile is used.")
	flagStreams    = flag.Int("streams", 1, "Number of concurrent executions for -run, each on its own stream.")

	flagNoColor = flag.Bool("no_color", false, "Disable colors in the tables.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %q. See 'accelconv -help'.", flag.Args())
		os.Exit(1)
	}
	if (*flagGraph == "") == (*flagLoad == "") {
		klog.Errorf("Exactly one of -graph or -load must be given. See 'accelconv -help'.")
		os.Exit(1)
	}
	setColorProfile()

	var engine *accel.Engine
	if *flagGraph != "" {
		maxWorkspace, err := humanize.ParseBytes(*flagMaxWorkspace)
		if err != nil {
			klog.Fatalf("Invalid -max_workspace=%q: %+v", *flagMaxWorkspace, err)
		}
		engine = convertGraph(must.M1(fsutil.ReplaceTildeInDir(*flagGraph)), accel.BuildConfig{
			FP16:             *flagFP16,
			MaxWorkspaceSize: int(maxWorkspace),
		})
	} else {
		engine = loadEngine(must.M1(fsutil.ReplaceTildeInDir(*flagLoad)))
	}
	defer engine.Destroy()

	if *flagSave != "" {
		saveEngine(engine, must.M1(fsutil.ReplaceTildeInDir(*flagSave)))
	}
	if *flagInfo {
		printInfo(engine)
	}
	if *flagRun {
		runEngine(engine)
	}
}

// setColorProfile picks the color profile of the tables from the terminal, unless -no_color is set.
func setColorProfile() {
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
}

func loadEngine(path string) *accel.Engine {
	if !must.M1(fsutil.FileExists(path)) {
		klog.Fatalf("Engine file %q not found", path)
	}
	data := must.M1(os.ReadFile(path))
	engine, err := accel.Deserialize(data, plugins.NewRegistry())
	if err != nil {
		klog.Fatalf("Failed to load engine from %q: %+v", path, err)
	}
	klog.Infof("Loaded engine %s from %q (%s)", engine.ID(), path, humanize.Bytes(uint64(len(data))))
	return engine
}

func saveEngine(engine *accel.Engine, path string) {
	data, err := engine.Serialize()
	if err != nil {
		klog.Fatalf("Failed to serialize engine: %+v", err)
	}
	must.M(os.WriteFile(path, data, 0o644))
	klog.Infof("Saved engine %s to %q (%s)", engine.ID(), path, humanize.Bytes(uint64(len(data))))
}
