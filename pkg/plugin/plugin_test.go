// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"testing"

	"github.com/gomlx/accelconv/pkg/core/dimexpr"
	"github.com/gomlx/accelconv/pkg/core/formats"
	"github.com/gomlx/accelconv/pkg/plugin/wire"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scaleKernel multiplies its float32 input by a factor.
type scaleKernel struct {
	factor      float32
	extraBytes  int // Bytes Serialize writes beyond SerializationSize, to test the size law.
	initialized *int
	terminated  *int
}

var scaleCaps = Capabilities{
	DTypes:  map[dtypes.DType]bool{dtypes.Float32: true},
	Formats: map[formats.Format]bool{formats.FormatLinear: true},
}

func (k *scaleKernel) Type() string    { return "scale_test" }
func (k *scaleKernel) Version() string { return "1" }
func (k *scaleKernel) NumOutputs() int { return 1 }
func (k *scaleKernel) OutputDataType(_ int, inputTypes []dtypes.DType) dtypes.DType {
	return inputTypes[0]
}
func (k *scaleKernel) OutputDimensions(_ int, inputs []dimexpr.Dims) dimexpr.Dims {
	return inputs[0].Clone()
}
func (k *scaleKernel) SupportsFormatCombination(pos int, inOut []TensorDesc, _ int) bool {
	return SupportsSameAsFirst(scaleCaps, pos, inOut)
}
func (k *scaleKernel) Configure(_, _ []DynamicTensorDesc) {}
func (k *scaleKernel) WorkspaceSize(_, _ []TensorDesc) int { return 0 }
func (k *scaleKernel) Enqueue(_, _ []TensorDesc, inputs, outputs []any, _ []byte, _ Stream) error {
	in, out := inputs[0].([]float32), outputs[0].([]float32)
	if len(in) != len(out) {
		return errors.Errorf("input has %d elements, output %d", len(in), len(out))
	}
	for ii, v := range in {
		out[ii] = v * k.factor
	}
	return nil
}
func (k *scaleKernel) SerializationSize() int { return wire.Size[float32]() }
func (k *scaleKernel) Serialize(w *wire.Writer) {
	wire.Put(w, k.factor)
	for range k.extraBytes {
		wire.Put(w, uint8(0))
	}
}
func (k *scaleKernel) Clone() Kernel {
	clone := *k
	return &clone
}
func (k *scaleKernel) Initialize() error {
	if k.initialized != nil {
		*k.initialized++
	}
	return nil
}
func (k *scaleKernel) Terminate() {
	if k.terminated != nil {
		*k.terminated++
	}
}

type scaleCreator struct{}

func (scaleCreator) Name() string    { return "scale_test" }
func (scaleCreator) Version() string { return "1" }
func (scaleCreator) Fields() []FieldSpec {
	return []FieldSpec{{Name: "factor", Type: FieldFloat32}}
}
func (scaleCreator) Create(fields Fields) (Kernel, error) {
	return &scaleKernel{factor: fields.Float32("factor", 1)}, nil
}
func (scaleCreator) Deserialize(r *wire.Reader) (Kernel, error) {
	return &scaleKernel{factor: wire.Get[float32](r)}, nil
}

func testRegistry(t *testing.T) *Registry {
	r := NewRegistry()
	require.NoError(t, r.Register(scaleCreator{}))
	return r
}

var (
	vectorDesc        = TensorDesc{DType: dtypes.Float32, Format: formats.FormatLinear, Dims: []int{3}}
	vectorDynamicDesc = DynamicTensorDesc{Desc: vectorDesc, Min: []int{3}, Max: []int{3}}
)

func TestRegistry(t *testing.T) {
	r := testRegistry(t)
	require.ErrorIs(t, r.Register(scaleCreator{}), ErrDuplicateCreator)
	require.Panics(t, func() { r.MustRegister(scaleCreator{}) })
	require.Equal(t, []Key{{"scale_test", "1"}}, r.Keys())

	_, found := r.Lookup("scale_test", "2")
	require.False(t, found)
	_, err := r.Create("scale_test", "2", nil)
	require.ErrorIs(t, err, ErrUnknownCreator)

	// Strict field schema.
	_, err = r.Create("scale_test", "1", Fields{Float32Field("factor", 2), Int32Field("axis", 1)})
	require.ErrorIs(t, err, ErrUnknownField)
	require.Contains(t, err.Error(), `"axis"`)
	_, err = r.Create("scale_test", "1", Fields{Int32Field("factor", 2)})
	require.ErrorIs(t, err, ErrFieldType)
	_, err = r.Create("scale_test", "1", Fields{{Name: "factor", Type: FieldFloat32, Data: []float64{2}}})
	require.ErrorIs(t, err, ErrFieldType)

	p, err := r.Create("scale_test", "1", Fields{Float32Field("factor", 2)})
	require.NoError(t, err)
	require.Equal(t, StateConstructed, p.State())
	require.Equal(t, float32(2), p.Kernel().(*scaleKernel).factor)

	// Defaults for missing fields.
	p, err = r.Create("scale_test", "1", nil)
	require.NoError(t, err)
	require.Equal(t, float32(1), p.Kernel().(*scaleKernel).factor)
}

func TestDeserialize(t *testing.T) {
	r := testRegistry(t)
	p, err := r.Create("scale_test", "1", Fields{Float32Field("factor", 3)})
	require.NoError(t, err)
	p.SetNamespace("ns")
	data := p.Serialize()
	require.Len(t, data, p.SerializationSize())

	p2, err := r.Deserialize("scale_test", "1", data)
	require.NoError(t, err)
	require.Equal(t, StateDeserialized, p2.State())
	require.Equal(t, "", p2.Namespace(), "namespace is not part of the configuration")
	require.Equal(t, data, p2.Serialize())

	_, err = r.Deserialize("scale_test", "1", data[:2])
	require.Error(t, err)
	_, err = r.Deserialize("scale_test", "1", append(data, 0))
	require.Error(t, err)
	require.Contains(t, err.Error(), "trailing")
}

func TestSerializationSizeLaw(t *testing.T) {
	p := NewInstance(&scaleKernel{factor: 1, extraBytes: 1}, StateConstructed)
	require.Panics(t, func() { _ = p.Serialize() })

	short := &shortKernel{scaleKernel{factor: 1}}
	p = NewInstance(short, StateConstructed)
	require.Panics(t, func() { _ = p.Serialize() })
}

// shortKernel claims a larger serialization size than what it writes.
type shortKernel struct{ scaleKernel }

func (k *shortKernel) SerializationSize() int { return 8 }

func TestLifecycle(t *testing.T) {
	var initialized, terminated int
	p := NewInstance(&scaleKernel{factor: 2, initialized: &initialized, terminated: &terminated}, StateConstructed)
	in := []float32{1, 2, 3}
	out := make([]float32, 3)
	descs := []TensorDesc{vectorDesc}

	// Terminate without Initialize is a no-op.
	p.Terminate()
	require.Equal(t, 0, terminated)
	require.Equal(t, StateConstructed, p.State())

	require.ErrorIs(t, p.Initialize(), ErrNotConfigured)
	err := p.Execute(descs, descs, []any{in}, []any{out}, nil, 0)
	require.ErrorIs(t, err, ErrNotInitialized)

	p.Configure([]DynamicTensorDesc{vectorDynamicDesc}, []DynamicTensorDesc{vectorDynamicDesc})
	require.Equal(t, StateConfigured, p.State())
	require.Panics(t, func() {
		p.Configure([]DynamicTensorDesc{vectorDynamicDesc}, []DynamicTensorDesc{vectorDynamicDesc})
	})

	require.NoError(t, p.Initialize())
	require.NoError(t, p.Initialize())
	require.Equal(t, 1, initialized)
	require.NoError(t, p.Execute(descs, descs, []any{in}, []any{out}, nil, 0))
	require.Equal(t, []float32{2, 4, 6}, out)

	// Initialize after Terminate.
	p.Terminate()
	require.Equal(t, StateTerminated, p.State())
	require.ErrorIs(t, p.Execute(descs, descs, []any{in}, []any{out}, nil, 0), ErrNotInitialized)
	require.NoError(t, p.Initialize())
	require.Equal(t, 2, initialized)

	p.Destroy()
	require.Equal(t, 2, terminated)
	require.Equal(t, StateDestroyed, p.State())
	require.Panics(t, func() { _ = p.Serialize() })
	require.Panics(t, func() { p.Terminate() })
}

func TestClone(t *testing.T) {
	p := NewInstance(&scaleKernel{factor: 2}, StateDeserialized)
	p.SetNamespace("ns")
	p.Configure([]DynamicTensorDesc{vectorDynamicDesc}, []DynamicTensorDesc{vectorDynamicDesc})
	require.NoError(t, p.Initialize())

	clone := p.Clone()
	assert.Equal(t, StateConstructed, clone.State())
	assert.Equal(t, "ns", clone.Namespace())
	assert.Equal(t, p.Serialize(), clone.Serialize())

	clone.Kernel().(*scaleKernel).factor = 5
	assert.Equal(t, float32(2), p.Kernel().(*scaleKernel).factor)

	// Destroying the clone doesn't affect the source.
	clone.Destroy()
	assert.Equal(t, StateInitialized, p.State())
}

func TestSupportsSameAsFirst(t *testing.T) {
	f16 := TensorDesc{DType: dtypes.Float16, Format: formats.FormatLinear}
	f32 := TensorDesc{DType: dtypes.Float32, Format: formats.FormatLinear}
	f32chw := TensorDesc{DType: dtypes.Float32, Format: formats.FormatCHW4}

	assert.True(t, SupportsSameAsFirst(scaleCaps, 0, []TensorDesc{f32}))
	assert.False(t, SupportsSameAsFirst(scaleCaps, 0, []TensorDesc{f16}))
	assert.False(t, SupportsSameAsFirst(scaleCaps, 0, []TensorDesc{f32chw}))
	assert.True(t, SupportsSameAsFirst(scaleCaps, 1, []TensorDesc{f32, f32}))
	assert.False(t, SupportsSameAsFirst(scaleCaps, 1, []TensorDesc{f32, f32chw}))
	assert.Panics(t, func() { SupportsSameAsFirst(scaleCaps, 2, []TensorDesc{f32, f32}) })

	clone := scaleCaps.Clone()
	clone.DTypes[dtypes.Float16] = true
	assert.True(t, clone.Supports(f16))
	assert.False(t, scaleCaps.Supports(f16))
}
