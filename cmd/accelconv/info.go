// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/support/xslices"
)

// printInfo prints the summary, tensors, layers and plugins of the engine.
func printInfo(engine *accel.Engine) {
	layers := engine.Layers()
	var numPlugins int
	for _, info := range layers {
		if info.Plugin != nil {
			numPlugins++
		}
	}

	summary := newTable(lipgloss.Right, lipgloss.Left)
	summary.KeyValue("name", "%s", engine.Name())
	summary.KeyValue("id", "%s", engine.ID())
	summary.KeyValue("fp16", "%v", engine.FP16())
	summary.KeyValue("# layers", "%s", humanize.Comma(int64(len(layers))))
	summary.KeyValue("# plugins", "%s", humanize.Comma(int64(numPlugins)))
	summary.KeyValue("weights", "%s", humanize.Bytes(uint64(engine.WeightsBytes())))
	summary.KeyValue("workspace", "%s", humanize.Bytes(uint64(engine.WorkspaceSize())))
	summary.Print("Summary")

	tensors := newTable(lipgloss.Left).Headers("kind", "name", "shape", "dimensions", "min", "max")
	for _, info := range engine.Inputs() {
		tensors.Row(tensorRow("input", info)...)
	}
	for _, info := range engine.Outputs() {
		tensors.Row(tensorRow("output", info)...)
	}
	tensors.Print("Tensors")

	layersTable := newTable(lipgloss.Right, lipgloss.Left).Headers("#", "type", "name", "inputs", "outputs", "detail")
	for _, info := range layers {
		layersTable.Row(humanize.Comma(int64(info.Index)), info.Type.String(), info.Name,
			strings.Join(info.Inputs, ", "), strings.Join(info.Outputs, ", "), info.Detail)
	}
	layersTable.Print("Layers")

	if numPlugins == 0 {
		return
	}
	plugins := newTable(lipgloss.Left).Headers("layer", "type", "version", "namespace", "state", "serialized", "formats")
	for _, info := range layers {
		p := info.Plugin
		if p == nil {
			continue
		}
		descs := xslices.Map(p.Descs, func(d plugin.TensorDesc) string { return d.String() })
		plugins.FlaggedRow(p.State != plugin.StateInitialized,
			info.Name, p.Type, p.Version, p.Namespace, p.State.String(),
			humanize.Bytes(uint64(p.SerializedBytes)), strings.Join(descs, " "))
	}
	plugins.Print("Plugins")
}

func tensorRow(kind string, info accel.TensorInfo) []string {
	bound := func(dims []int) string {
		if dims == nil {
			return "-"
		}
		return fmt.Sprintf("%v", dims)
	}
	return []string{kind, info.Name, info.Shape.String(), info.Dims.String(), bound(info.Min), bound(info.Max)}
}
