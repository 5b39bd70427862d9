// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugins

import (
	"testing"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/core/formats"
	"github.com/gomlx/accelconv/pkg/plugin"
	"github.com/gomlx/accelconv/pkg/plugin/wire"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func desc(dtype dtypes.DType, dims ...int) plugin.TensorDesc {
	return plugin.TensorDesc{DType: dtype, Format: formats.FormatLinear, Dims: dims}
}

func dynamic(d plugin.TensorDesc) plugin.DynamicTensorDesc {
	return plugin.DynamicTensorDesc{Desc: d, Min: d.Dims, Max: d.Dims}
}

// configured returns p configured and initialized for the given descriptors.
func configured(t *testing.T, p *plugin.Instance, inputs []plugin.TensorDesc, output plugin.TensorDesc) *plugin.Instance {
	ins := make([]plugin.DynamicTensorDesc, len(inputs))
	for ii, in := range inputs {
		ins[ii] = dynamic(in)
	}
	p.Configure(ins, []plugin.DynamicTensorDesc{dynamic(output)})
	require.NoError(t, p.Initialize())
	return p
}

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, []plugin.Key{{SwishType, SwishVersion}, {StackType, StackVersion}}, r.Keys())
	require.Error(t, r.Register(StackCreator{}))
}

func TestSwish(t *testing.T) {
	r := NewRegistry()
	p := must.M1(r.Create(SwishType, SwishVersion, SwishFields(2, false)))
	x := desc(dtypes.Float32, 2, 2)
	configured(t, p, []plugin.TensorDesc{x}, x)

	input := []float32{0, 1, -1, 3}
	output := make([]float32, 4)
	require.NoError(t, p.Execute([]plugin.TensorDesc{x}, []plugin.TensorDesc{x}, []any{input}, []any{output}, nil, 0))
	assert.InDelta(t, 0, output[0], 1e-6)
	assert.InDelta(t, 0.880797, output[1], 1e-5)
	assert.InDelta(t, -0.119203, output[2], 1e-5)
	assert.InDelta(t, 2.992582, output[3], 1e-5)

	// Dimension mismatch at execution time is an error, not clamped.
	y := desc(dtypes.Float32, 4)
	require.Error(t, p.Execute([]plugin.TensorDesc{x}, []plugin.TensorDesc{y}, []any{input}, []any{output}, nil, 0))
	require.Error(t, p.Execute([]plugin.TensorDesc{x}, []plugin.TensorDesc{x}, []any{input[:3]}, []any{output}, nil, 0))

	// Unknown field.
	_, err := r.Create(SwishType, SwishVersion, append(SwishFields(1, false), plugin.Int32Field("axis", 0)))
	require.ErrorIs(t, err, plugin.ErrUnknownField)
}

func TestSwishFP16(t *testing.T) {
	r := NewRegistry()
	noFP16 := must.M1(r.Create(SwishType, SwishVersion, SwishFields(1, false)))
	x16 := desc(dtypes.Float16, 3)
	require.False(t, noFP16.SupportsFormat(0, []plugin.TensorDesc{x16}, 1))
	require.Panics(t, func() { noFP16.Configure([]plugin.DynamicTensorDesc{dynamic(x16)}, []plugin.DynamicTensorDesc{dynamic(x16)}) })

	p := must.M1(r.Create(SwishType, SwishVersion, SwishFields(1, true)))
	require.True(t, p.SupportsFormat(0, []plugin.TensorDesc{x16}, 1))
	configured(t, p, []plugin.TensorDesc{x16}, x16)
	input := []float16.Float16{float16.Fromfloat32(0), float16.Fromfloat32(2), float16.Fromfloat32(-2)}
	output := make([]float16.Float16, 3)
	require.NoError(t, p.Execute([]plugin.TensorDesc{x16}, []plugin.TensorDesc{x16}, []any{input}, []any{output}, nil, 0))
	assert.InDelta(t, 0, output[0].Float32(), 1e-3)
	assert.InDelta(t, 1.761594, output[1].Float32(), 1e-2)
	assert.InDelta(t, -0.238406, output[2].Float32(), 1e-2)
}

func TestStack(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(StackType, StackVersion, nil)
	require.Error(t, err, "num_stack is required")

	p := must.M1(r.Create(StackType, StackVersion, StackFields(1, 3)))
	dims := p.OutputDimensions(0, []dimexpr.Dims{
		dimexpr.ForInput(0, []int{-1, 2}),
		dimexpr.ForInput(1, []int{-1, 2}),
		dimexpr.ForInput(2, []int{-1, 2}),
	})
	require.Equal(t, "[in0[0], 3, 2]", dims.String())

	x := desc(dtypes.Float32, 2, 2)
	out := desc(dtypes.Float32, 2, 3, 2)
	inputs := []plugin.TensorDesc{x, x, x}
	configured(t, p, inputs, out)
	workspace := make([]byte, p.WorkspaceSize(inputs, []plugin.TensorDesc{out}))
	require.Len(t, workspace, 3*8)

	a := []float32{1, 2, 3, 4}
	b := []float32{5, 6, 7, 8}
	c := []float32{9, 10, 11, 12}
	output := make([]float32, 12)
	require.NoError(t, p.Execute(inputs, []plugin.TensorDesc{out}, []any{a, b, c}, []any{output}, workspace, 0))
	require.Equal(t, []float32{1, 2, 5, 6, 9, 10, 3, 4, 7, 8, 11, 12}, output)

	// The workspace holds the per-input offset table used by the copy.
	table := wire.NewReader(workspace)
	for ii := range 3 {
		require.Equal(t, int64(ii*2), wire.Get[int64](table))
	}

	// Workspace too small.
	require.Error(t, p.Execute(inputs, []plugin.TensorDesc{out}, []any{a, b, c}, []any{output}, workspace[:8], 0))

	// Inputs whose dimensions resolve differently.
	other := desc(dtypes.Float32, 1, 2)
	require.Error(t, p.Execute([]plugin.TensorDesc{x, other, x}, []plugin.TensorDesc{out}, []any{a, b[:2], c}, []any{output}, workspace, 0))
}

func TestStackNegativeAxis(t *testing.T) {
	s := &Stack{Axis: -1, NumStack: 2}
	dims := s.OutputDimensions(0, []dimexpr.Dims{{dimexpr.Const(4)}, {dimexpr.Const(4)}})
	require.Equal(t, dimexpr.Dims{dimexpr.Const(4), dimexpr.Const(2)}, dims)

	p := plugin.NewInstance(s, plugin.StateConstructed)
	x := desc(dtypes.Float16, 2)
	out := desc(dtypes.Float16, 2, 2)
	configured(t, p, []plugin.TensorDesc{x, x}, out)
	a := []float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(2)}
	b := []float16.Float16{float16.Fromfloat32(3), float16.Fromfloat32(4)}
	output := make([]float16.Float16, 4)
	workspace := make([]byte, 16)
	require.NoError(t, p.Execute([]plugin.TensorDesc{x, x}, []plugin.TensorDesc{out}, []any{a, b}, []any{output}, workspace, 0))
	got := make([]float32, 4)
	for ii, v := range output {
		got[ii] = v.Float32()
	}
	require.Equal(t, []float32{1, 3, 2, 4}, got)
}

// allInstances returns one instance of each kind, in a few configurations.
func allInstances(t *testing.T) []*plugin.Instance {
	r := NewRegistry()
	return []*plugin.Instance{
		must.M1(r.Create(SwishType, SwishVersion, SwishFields(1, false))),
		must.M1(r.Create(SwishType, SwishVersion, SwishFields(0.5, true))),
		must.M1(r.Create(StackType, StackVersion, StackFields(0, 2))),
		must.M1(r.Create(StackType, StackVersion, StackFields(-2, 5))),
	}
}

func TestSerializationRoundTrip(t *testing.T) {
	r := NewRegistry()
	candidates := []plugin.TensorDesc{
		desc(dtypes.Float32, 4), desc(dtypes.Float16, 4), desc(dtypes.Int32, 4),
		{DType: dtypes.Float32, Format: formats.FormatCHW4, Dims: []int{4}},
	}
	for _, p := range allInstances(t) {
		data := p.Serialize()
		require.Len(t, data, p.SerializationSize(), "serialization size law for %s", p)

		p2, err := r.Deserialize(p.Type(), p.Version(), data)
		require.NoError(t, err, "deserializing %s", p)
		require.Equal(t, data, p2.Serialize())
		require.Equal(t, p.Kernel(), p2.Kernel())

		numInputs := 1
		if p.Type() == StackType {
			numInputs = int(p.Kernel().(*Stack).NumStack)
		}
		inDims := make([]dimexpr.Dims, numInputs)
		for ii := range inDims {
			inDims[ii] = dimexpr.ForInput(ii, []int{-1, 3, 7})
		}
		require.Equal(t, p.OutputDimensions(0, inDims), p2.OutputDimensions(0, inDims))

		for _, first := range candidates {
			inOut := []plugin.TensorDesc{first, first}
			assert.Equal(t, p.SupportsFormat(0, inOut, numInputs), p2.SupportsFormat(0, inOut, numInputs))
		}
	}
}

func TestSupportsFormatRepeatable(t *testing.T) {
	candidates := []plugin.TensorDesc{
		desc(dtypes.Float32, 4), desc(dtypes.Float16, 4), desc(dtypes.Int64, 4), desc(dtypes.Bool, 4),
		{DType: dtypes.Float32, Format: formats.FormatHWC8, Dims: []int{4}},
	}
	for _, p := range allInstances(t) {
		for _, first := range candidates {
			for _, second := range candidates {
				inOut := []plugin.TensorDesc{first, second}
				for pos := range inOut {
					got1 := p.SupportsFormat(pos, inOut, 1)
					got2 := p.SupportsFormat(pos, inOut, 1)
					require.Equal(t, got1, got2, "%s pos=%d inOut=%v", p, pos, inOut)
				}
			}
		}
	}
}

func TestCloneIndependence(t *testing.T) {
	for _, p := range allInstances(t) {
		before := p.Serialize()
		clone := p.Clone()
		require.Equal(t, plugin.StateConstructed, clone.State())
		require.Equal(t, before, clone.Serialize())

		switch k := clone.Kernel().(type) {
		case *Swish:
			k.Beta = 100
			k.WithFP16 = !k.WithFP16
		case *Stack:
			k.Axis = 7
			k.NumStack = 11
		}
		require.Equal(t, before, p.Serialize(), "mutating the clone changed %s", p)
		require.NotEqual(t, before, clone.Serialize())
		clone.Destroy()
		require.Equal(t, before, p.Serialize())
	}
}
