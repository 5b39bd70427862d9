// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/convert"
	"github.com/gomlx/accelconv/pkg/convert/converters"
	"github.com/gomlx/accelconv/pkg/ir"
	"github.com/gomlx/accelconv/pkg/plugin/plugins"
	"github.com/gomlx/accelconv/pkg/support/sets"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// convertGraph loads the graph and converts it to an engine, showing the progress.
func convertGraph(path string, config accel.BuildConfig) *accel.Engine {
	g, err := ir.LoadGraph(path)
	if err != nil {
		klog.Fatalf("%+v", err)
	}
	bar := progressbar.NewOptions(len(g.Ops),
		progressbar.OptionSetDescription("Converting "+g.Name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		progressbar.OptionClearOnFinish(),
	)
	options := convert.Options{
		FP16:          *flagFP16,
		TestMode:      *flagTestMode,
		OnOpConverted: func(*ir.OpDesc) { _ = bar.Add(1) },
	}
	if *flagRetained != nil {
		options.Retained = sets.MakeWith(*flagRetained...)
		klog.V(1).Infof("Retained tensors: %q", sets.Sorted(options.Retained))
	}

	b := convert.NewBuilder(g.Name, converters.NewRegistry(), plugins.NewRegistry(), g.Scope(), options)
	if err := b.ConvertGraph(g); err != nil {
		b.Discard()
		klog.Fatalf("Failed to convert %q: %+v", path, err)
	}
	_ = bar.Finish()
	engine, err := b.Build(config)
	if err != nil {
		klog.Fatalf("Failed to build engine for %q: %+v", path, err)
	}
	klog.Infof("Built engine %s for graph %q: %d operators, %d layers", engine.ID(), g.Name, len(g.Ops), engine.NumLayers())
	return engine
}
