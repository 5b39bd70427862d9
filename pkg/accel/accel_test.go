// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package accel

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/core/shapes"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/plugin/plugins"
	"github.com/gomlx/accelconv/pkg/weights"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func stage(t *testing.T, store *weights.Store, name string, values ...float32) *weights.Weights {
	w, err := store.Stage(name, dtypes.Float32, values)
	require.NoError(t, err)
	return w
}

func execute(t *testing.T, e *Engine, inputs map[string]*Buffer) map[string]*Buffer {
	outputs, err := e.Execute(0, inputs)
	require.NoError(t, err)
	return outputs
}

func TestShuffle(t *testing.T) {
	n := NewNetwork("shuffle")
	x := n.AddInput("x", shapes.Make(dtypes.Float32, shapes.Dynamic, 6), []int{1, 6}, []int{4, 6})
	split := n.AddShuffle(x, []int{0, 2, 3}).Output(0)
	require.Equal(t, "[in0[0], 2, 3]", split.Dims().String())
	require.Equal(t, []int{1, 2, 3}, split.Min())
	require.Equal(t, []int{4, 2, 3}, split.Max())

	flat := n.AddShuffle(split, []int{-1}).Output(0)
	require.Equal(t, []int{6}, flat.Min())
	require.Equal(t, []int{24}, flat.Max())
	flat.SetName("flat")
	n.MarkOutput(flat)

	require.Panics(t, func() { n.AddShuffle(x, []int{-1, -1}) })
	require.Panics(t, func() { n.AddShuffle(x, []int{0, 4}) })
	require.Panics(t, func() { n.AddShuffle(x, []int{0, 0, 0}) })

	e := must.M1(n.Build(BuildConfig{}))
	defer e.Destroy()
	values := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	outputs := execute(t, e, map[string]*Buffer{"x": NewBuffer([]int{2, 6}, values)})
	require.Equal(t, []int{12}, outputs["flat"].Dims)
	require.Equal(t, values, outputs["flat"].Float32s())
}

func TestShuffleDims(t *testing.T) {
	n := NewNetwork("shuffle_dims")
	x := n.AddInput("x", shapes.Make(dtypes.Float32, shapes.Dynamic, shapes.Dynamic), []int{1, 1}, []int{3, 4})
	one := dimexpr.Const(1)
	dims := x.Dims()
	moved := n.AddShuffleDims(x, dimexpr.Dims{one, dims[0], dims[1], one}).Output(0)
	require.Equal(t, "[1, in0[0], in0[1], 1]", moved.Dims().String())
	require.Equal(t, []int{1, 1, 1, 1}, moved.Min())
	require.Equal(t, []int{1, 3, 4, 1}, moved.Max())
	moved.SetName("moved")
	n.MarkOutput(moved)

	static := n.AddInput("static", shapes.Make(dtypes.Float32, 2, 3), nil, nil)
	require.Panics(t, func() { n.AddShuffleDims(static, dimexpr.Dims{one, dimexpr.Const(5)}) })
	require.Panics(t, func() { n.AddShuffleDims(static, dimexpr.Dims{dimexpr.Const(6), nil}) })
	n.MarkOutput(n.AddShuffleDims(static, dimexpr.Dims{dimexpr.Const(3), dimexpr.Const(2)}).Output(0))

	e := must.M1(n.Build(BuildConfig{}))
	defer e.Destroy()
	values := []float32{1, 2, 3, 4, 5, 6}
	outputs := execute(t, e, map[string]*Buffer{
		"x":      NewBuffer([]int{2, 3}, values),
		"static": NewBuffer([]int{2, 3}, values),
	})
	require.Equal(t, []int{1, 2, 3, 1}, outputs["moved"].Dims)
	require.Equal(t, values, outputs["moved"].Float32s())
}

func TestScale(t *testing.T) {
	store := weights.NewStore()
	n := NewNetwork("scale")
	x := n.AddInput("x", shapes.Make(dtypes.Float32, 1, 2, 1, 2), nil, nil)
	channel := n.AddScale(x, ScaleChannel, stage(t, store, "shift", 1, 2), stage(t, store, "scale", 10, 100), nil).Output(0)
	channel.SetName("channel")
	n.MarkOutput(channel)
	squared := n.AddScale(x, ScaleUniform, nil, nil, stage(t, store, "power", 2)).Output(0)
	squared.SetName("squared")
	n.MarkOutput(squared)
	elementwise := n.AddScale(x, ScaleElementwise, stage(t, store, "offsets", 1, 2, 3, 4), nil, nil).Output(0)
	elementwise.SetName("elementwise")
	n.MarkOutput(elementwise)

	// Invalid weight counts and ranks.
	require.Panics(t, func() { n.AddScale(x, ScaleChannel, stage(t, store, "bad", 1, 2, 3), nil, nil) })
	rank3 := n.AddInput("rank3", shapes.Make(dtypes.Float32, 1, 2, 3), nil, nil)
	require.Panics(t, func() { n.AddScale(rank3, ScaleUniform, nil, nil, nil) })

	e := must.M1(n.Build(BuildConfig{}))
	defer e.Destroy()
	store.Release()

	outputs := execute(t, e, map[string]*Buffer{
		"x":     NewBuffer([]int{1, 2, 1, 2}, []float32{1, 2, 3, 4}),
		"rank3": NewBuffer([]int{1, 2, 3}, make([]float32, 6)),
	})
	assert.Equal(t, []float32{11, 21, 302, 402}, outputs["channel"].Float32s())
	assert.Equal(t, []float32{1, 4, 9, 16}, outputs["squared"].Float32s())
	assert.Equal(t, []float32{2, 4, 6, 8}, outputs["elementwise"].Float32s())
	assert.Equal(t, 4*(2+2+1+4), e.WeightsBytes())
}

func TestElementWiseAndActivation(t *testing.T) {
	n := NewNetwork("elementwise")
	a := n.AddInput("a", shapes.Make(dtypes.Float32, 2, 3), nil, nil)
	b := n.AddInput("b", shapes.Make(dtypes.Float32, 1, 3), nil, nil)
	sum := n.AddElementWise(a, b, ElementWiseSum).Output(0)
	require.Equal(t, []int{2, 3}, sum.Shape().Dimensions)
	sub := n.AddElementWise(a, b, ElementWiseSub).Output(0)
	relu := n.AddActivation(sub, ActivationReLU).Output(0)
	sum.SetName("sum")
	relu.SetName("relu")
	n.MarkOutput(sum)
	n.MarkOutput(relu)

	c := n.AddInput("c", shapes.Make(dtypes.Float32, 2, 2), nil, nil)
	require.Panics(t, func() { n.AddElementWise(a, c, ElementWiseSum) })

	e := must.M1(n.Build(BuildConfig{}))
	defer e.Destroy()
	outputs := execute(t, e, map[string]*Buffer{
		"a": NewBuffer([]int{2, 3}, []float32{1, 2, 3, 40, 50, 60}),
		"b": NewBuffer([]int{1, 3}, []float32{10, 20, 30}),
		"c": NewBuffer([]int{2, 2}, make([]float32, 4)),
	})
	assert.Equal(t, []float32{11, 22, 33, 50, 70, 90}, outputs["sum"].Float32s())
	assert.Equal(t, []float32{0, 0, 0, 30, 30, 30}, outputs["relu"].Float32s())
}

// newStackNetwork stacks two dynamic-batch inputs along axis 1.
func newStackNetwork(t *testing.T, registry *plugin.Registry) (*Network, *plugin.Instance) {
	n := NewNetwork("stack")
	shape := shapes.Make(dtypes.Float32, shapes.Dynamic, 2)
	a := n.AddInput("a", shape, []int{1, 2}, []int{3, 2})
	b := n.AddInput("b", shape, []int{1, 2}, []int{3, 2})
	instance, err := registry.Create(plugins.StackType, plugins.StackVersion, plugins.StackFields(1, 2))
	require.NoError(t, err)
	instance.SetNamespace("test")
	l := n.AddPlugin([]*Tensor{a, b}, instance)
	require.Equal(t, "stack_plugin_0", l.Name())
	out := l.Output(0)
	require.Equal(t, "stack_plugin_0_out0", out.Name())
	require.Equal(t, "[in0[0], 2, 2]", out.Dims().String())
	n.MarkOutput(out)
	return n, instance
}

func TestStackPlugin(t *testing.T) {
	n, instance := newStackNetwork(t, plugins.NewRegistry())
	require.Panics(t, func() { n.AddPlugin(n.Inputs(), instance) })

	e := must.M1(n.Build(BuildConfig{}))
	require.Equal(t, plugin.StateInitialized, instance.State())
	require.Equal(t, 2*8, e.WorkspaceSize())

	outputs := execute(t, e, map[string]*Buffer{
		"a": NewBuffer([]int{2, 2}, []float32{1, 2, 3, 4}),
		"b": NewBuffer([]int{2, 2}, []float32{5, 6, 7, 8}),
	})
	out := outputs["stack_plugin_0_out0"]
	require.Equal(t, []int{2, 2, 2}, out.Dims)
	require.Equal(t, []float32{1, 2, 5, 6, 3, 4, 7, 8}, out.Float32s())

	// Outside the optimization profile.
	_, err := e.Execute(0, map[string]*Buffer{
		"a": NewBuffer([]int{4, 2}, make([]float32, 8)),
		"b": NewBuffer([]int{4, 2}, make([]float32, 8)),
	})
	require.Error(t, err)

	// Missing, unknown and mistyped inputs.
	_, err = e.Execute(0, map[string]*Buffer{"a": NewBuffer([]int{1, 2}, []float32{1, 2})})
	require.ErrorContains(t, err, "missing input")
	_, err = e.Execute(0, map[string]*Buffer{
		"a": NewBuffer([]int{1, 2}, []float32{1, 2}),
		"b": NewBuffer([]int{1, 2}, []float32{1, 2}),
		"c": NewBuffer([]int{1, 2}, []float32{1, 2}),
	})
	require.ErrorContains(t, err, "unknown input")
	_, err = e.Execute(0, map[string]*Buffer{
		"a": NewBuffer([]int{1, 2}, []float32{1, 2}),
		"b": NewBuffer([]int{1, 2}, []float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(2)}),
	})
	require.Error(t, err)

	e.Destroy()
	require.Equal(t, plugin.StateDestroyed, instance.State())
	_, err = e.Execute(0, nil)
	require.Error(t, err)
	e.Destroy()
}

func TestSwishPrecision(t *testing.T) {
	registry := plugins.NewRegistry()
	values := []float32{-1, 0, 1, 2}
	want := []float32{-0.2689414, 0, 0.7310586, 1.7615942}
	testCases := []struct {
		withFP16, preferFP16 bool
		negotiated           dtypes.DType
	}{
		{false, false, dtypes.Float32},
		{true, false, dtypes.Float32},
		{false, true, dtypes.Float32},
		{true, true, dtypes.Float16},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("with_fp16=%v,fp16=%v", tc.withFP16, tc.preferFP16), func(t *testing.T) {
			n := NewNetwork("swish")
			x := n.AddInput("x", shapes.Make(dtypes.Float32, 4), nil, nil)
			instance := must.M1(registry.Create(plugins.SwishType, plugins.SwishVersion, plugins.SwishFields(1, tc.withFP16)))
			y := n.AddPlugin([]*Tensor{x}, instance).Output(0)
			y.SetName("y")
			n.MarkOutput(y)
			e := must.M1(n.Build(BuildConfig{FP16: tc.preferFP16}))
			defer e.Destroy()

			info := e.Layers()[0].Plugin
			require.NotNil(t, info)
			require.Equal(t, tc.negotiated, info.Descs[0].DType)
			require.Equal(t, tc.negotiated, info.Descs[1].DType)

			outputs := execute(t, e, map[string]*Buffer{"x": NewBuffer([]int{4}, values)})
			require.Equal(t, dtypes.Float32, outputs["y"].DType)
			delta := 1e-5
			if tc.negotiated == dtypes.Float16 {
				delta = 2e-3
			}
			require.InDeltaSlice(t, want, outputs["y"].Float32s(), delta)
		})
	}
}

func TestBuildFailures(t *testing.T) {
	t.Run("workspace", func(t *testing.T) {
		n, instance := newStackNetwork(t, plugins.NewRegistry())
		_, err := n.Build(BuildConfig{MaxWorkspaceSize: 8})
		require.ErrorContains(t, err, "workspace")
		require.Equal(t, plugin.StateDestroyed, instance.State())
		_, err = n.Build(BuildConfig{})
		require.Error(t, err)
	})

	t.Run("released weights", func(t *testing.T) {
		store := weights.NewStore()
		n := NewNetwork("released")
		x := n.AddInput("x", shapes.Make(dtypes.Float32, 1, 1, 1, 1), nil, nil)
		n.MarkOutput(n.AddScale(x, ScaleUniform, stage(t, store, "shift", 1), nil, nil).Output(0))
		store.Release()
		_, err := n.Build(BuildConfig{})
		require.Error(t, err)
	})

	t.Run("no outputs", func(t *testing.T) {
		n := NewNetwork("empty")
		n.AddInput("x", shapes.Make(dtypes.Float32, 1), nil, nil)
		_, err := n.Build(BuildConfig{})
		require.Error(t, err)
	})
}

func TestNetworkChecks(t *testing.T) {
	n1 := NewNetwork("n1")
	n2 := NewNetwork("n2")
	x1 := n1.AddInput("x", shapes.Make(dtypes.Float32, 2), nil, nil)
	require.Panics(t, func() { n2.AddActivation(x1, ActivationTanh) })
	require.Panics(t, func() { n1.AddInput("x", shapes.Make(dtypes.Float32, 2), nil, nil) })
	require.Panics(t, func() { n1.AddInput("dynamic", shapes.Make(dtypes.Float32, shapes.Dynamic), nil, nil) })
	require.Panics(t, func() { n1.AddInput("bad", shapes.Make(dtypes.Float32, shapes.Dynamic), []int{3}, []int{2}) })

	n1.MarkOutput(n1.AddActivation(x1, ActivationSigmoid).Output(0))
	e := must.M1(n1.Build(BuildConfig{}))
	defer e.Destroy()
	require.Panics(t, func() { n1.AddActivation(x1, ActivationTanh) })
	require.Panics(t, func() { x1.SetName("y") })
}

func TestSerialize(t *testing.T) {
	registry := plugins.NewRegistry()
	store := weights.NewStore()
	n := NewNetwork("serialize")
	x := n.AddInput("x", shapes.Make(dtypes.Float32, shapes.Dynamic, 2, 1, 1), []int{1, 2, 1, 1}, []int{8, 2, 1, 1})
	scaled := n.AddScale(x, ScaleChannel, stage(t, store, "shift", 1, -1), stage(t, store, "scale", 2, 3), nil).Output(0)
	swish := must.M1(registry.Create(plugins.SwishType, plugins.SwishVersion, plugins.SwishFields(2, true)))
	swish.SetNamespace("custom")
	activated := n.AddPlugin([]*Tensor{scaled}, swish).Output(0)
	flat := n.AddShuffle(activated, []int{0, -1}).Output(0)
	stack := must.M1(registry.Create(plugins.StackType, plugins.StackVersion, plugins.StackFields(0, 2)))
	stacked := n.AddPlugin([]*Tensor{flat, flat}, stack).Output(0)
	stacked.SetName("stacked")
	n.MarkOutput(stacked)

	e := must.M1(n.Build(BuildConfig{FP16: true}))
	defer e.Destroy()
	store.Release()

	data := must.M1(e.Serialize())
	loaded := must.M1(Deserialize(data, registry))
	defer loaded.Destroy()
	require.Equal(t, e.ID(), loaded.ID())
	require.Equal(t, e.Name(), loaded.Name())
	require.Equal(t, e.WorkspaceSize(), loaded.WorkspaceSize())
	require.Equal(t, e.NumLayers(), loaded.NumLayers())
	require.Equal(t, e.Outputs(), loaded.Outputs())
	for ii, info := range loaded.Layers() {
		want := e.Layers()[ii]
		require.Equal(t, want.Name, info.Name)
		require.Equal(t, want.Detail, info.Detail)
		if info.Type == LayerPlugin {
			require.Equal(t, plugin.StateInitialized, info.Plugin.State)
			require.Equal(t, want.Plugin.Namespace, info.Plugin.Namespace)
			require.Equal(t, want.Plugin.Descs, info.Plugin.Descs)
		}
	}
	require.Equal(t, "custom", loaded.Layers()[1].Plugin.Namespace)

	inputs := map[string]*Buffer{"x": NewBuffer([]int{3, 2, 1, 1}, []float32{1, 2, 3, 4, 5, 6})}
	want := execute(t, e, inputs)
	got := execute(t, loaded, inputs)
	require.Equal(t, []int{2, 3, 2}, got["stacked"].Dims)
	require.Equal(t, want["stacked"].Float32s(), got["stacked"].Float32s())

	// Serialization is deterministic.
	require.Equal(t, data, must.M1(loaded.Serialize()))

	// Corrupted, truncated or unknown plugins.
	corrupted := append([]byte("X"), data[1:]...)
	_, err := Deserialize(corrupted, registry)
	require.Error(t, err)
	_, err = Deserialize(data[:len(data)/2], registry)
	require.Error(t, err)
	_, err = Deserialize(data, plugin.NewRegistry())
	require.ErrorIs(t, err, plugin.ErrUnknownCreator)

	// A length prefix far beyond the data is reported as an error, after magic and version.
	hugeLength := append(append([]byte(nil), data[:8]...), 0xff, 0xff, 0xff, 0x7f)
	_, err = Deserialize(hugeLength, registry)
	require.ErrorContains(t, err, "exceeds")
}

func TestConcurrentExecute(t *testing.T) {
	n, _ := newStackNetwork(t, plugins.NewRegistry())
	e := must.M1(n.Build(BuildConfig{}))
	defer e.Destroy()

	const numStreams = 8
	var wg sync.WaitGroup
	results := make([][]float32, numStreams)
	errs := make([]error, numStreams)
	for ii := range numStreams {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := float32(ii)
			outputs, err := e.Execute(plugin.Stream(ii), map[string]*Buffer{
				"a": NewBuffer([]int{1, 2}, []float32{v, v}),
				"b": NewBuffer([]int{1, 2}, []float32{-v, -v}),
			})
			errs[ii] = err
			if err == nil {
				results[ii] = outputs["stack_plugin_0_out0"].Float32s()
			}
		}()
	}
	wg.Wait()
	for ii := range numStreams {
		require.NoError(t, errs[ii])
		v := float32(ii)
		require.Equal(t, []float32{v, v, -v, -v}, results[ii])
	}
}
