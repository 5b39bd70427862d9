// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/accelconv/pkg/accel"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/support/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// runInputs creates the inputs of the engine filled with -fill.
//
// Dynamic axes take -dynamic_dim, or the maximum of the optimization profile if it is 0.
func runInputs(engine *accel.Engine) map[string]*accel.Buffer {
	inputs := make(map[string]*accel.Buffer)
	for _, info := range engine.Inputs() {
		dims := make([]int, info.Shape.Rank())
		for axis, dim := range info.Shape.Dimensions {
			switch {
			case dim >= 0:
				dims[axis] = dim
			case *flagDynamicDim > 0:
				dims[axis] = *flagDynamicDim
			default:
				dims[axis] = info.Max[axis]
			}
		}
		inputs[info.Name] = filledBuffer(info.Shape.DType, dims, float32(*flagFill))
	}
	return inputs
}

// filledBuffer returns a buffer of the given dtype and dimensions with every element set to value.
func filledBuffer(dtype dtypes.DType, dims []int, value float32) *accel.Buffer {
	size := 1
	for _, dim := range dims {
		size *= dim
	}
	if dtype == dtypes.Float16 {
		values := make([]float16.Float16, size)
		half := float16.Fromfloat32(value)
		for ii := range values {
			values[ii] = half
		}
		return accel.NewBuffer(dims, values)
	}
	values := make([]float32, size)
	for ii := range values {
		values[ii] = value
	}
	return accel.NewBuffer(dims, values)
}

// runEngine executes the engine on -streams concurrent streams and prints the outputs of the first.
func runEngine(engine *accel.Engine) {
	if *flagStreams < 1 {
		klog.Fatalf("-streams must be >= 1, got %d", *flagStreams)
	}
	inputs := runInputs(engine)
	results := make([]map[string]*accel.Buffer, *flagStreams)
	var g errgroup.Group
	start := time.Now()
	for stream := range *flagStreams {
		g.Go(func() error {
			outputs, err := engine.Execute(plugin.Stream(stream), inputs)
			if err != nil {
				return err
			}
			results[stream] = outputs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		klog.Fatalf("Failed to execute engine: %+v", err)
	}
	elapsed := time.Since(start)
	klog.V(1).Infof("Executed %d streams in %s", *flagStreams, elapsed)

	table := newTable(lipgloss.Left, lipgloss.Left, lipgloss.Right).Headers("name", "dimensions", "size", "min", "max", "mean")
	for _, info := range engine.Outputs() {
		buf := results[0][info.Name]
		values := buf.Float32s()
		lo, hi, mean, finite := summarize(values)
		table.FlaggedRow(!finite, info.Name, fmt.Sprintf("%v", buf.Dims), humanize.Comma(int64(len(values))),
			fmt.Sprintf("%g", lo), fmt.Sprintf("%g", hi), fmt.Sprintf("%g", mean))
	}
	table.Print(fmt.Sprintf("Outputs (%d streams in %s)", *flagStreams, elapsed))
}

// summarize returns the min, max and mean of values, and whether they are all finite.
func summarize(values []float32) (lo, hi, mean float64, finite bool) {
	if len(values) == 0 {
		return 0, 0, 0, true
	}
	f64 := xslices.Map(values, func(v float32) float64 { return float64(v) })
	lo, hi = math.Inf(1), math.Inf(-1)
	finite = true
	for _, v := range f64 {
		lo, hi = min(lo, v), max(hi, v)
		mean += v
		if math.IsNaN(v) || math.IsInf(v, 0) {
			finite = false
		}
	}
	mean /= float64(len(f64))
	return
}
