package gguf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeValueArrayOrdering(t *testing.T) {
	// Concrete scenario 5: ARRAY of UINT32 [10,20,30].
	path := buildMinimalGGUF(t, 1, 0,
		func(b *ggufBuilder) { b.writeKVUint32Array("nums", []uint32{10, 20, 30}) },
		nil, nil)

	ctx, err := OpenContext(path)
	require.NoError(t, err)
	defer ctx.Close()

	kh, ok, err := ctx.NextKey()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ValueTypeArray, kh.Type)

	var kinds []string
	var inArrays []int
	var prims []any
	v := &visitorFunc{
		onPrim: func(t ValueType, data any, inArray int) {
			kinds = append(kinds, "PRIM")
			inArrays = append(inArrays, inArray)
			prims = append(prims, data)
		},
		onStart: func(elemType ValueType, length uint64, inArray int) {
			kinds = append(kinds, "ARRAY_START")
			inArrays = append(inArrays, inArray)
		},
		onEnd: func(inArray int) {
			kinds = append(kinds, "ARRAY_END")
			inArrays = append(inArrays, inArray)
		},
	}
	require.NoError(t, ctx.ConsumeValue(kh.Type, v))

	assert.Equal(t, []string{"ARRAY_START", "PRIM", "PRIM", "PRIM", "ARRAY_END"}, kinds)
	assert.Equal(t, []int{0, 1, 2, 3, 0}, inArrays)
	assert.Equal(t, []any{uint32(10), uint32(20), uint32(30)}, prims)
}

func TestNextTensorPrecondition(t *testing.T) {
	path := buildMinimalGGUF(t, 1, 1,
		func(b *ggufBuilder) { b.writeKVString("general.architecture", "llama") },
		func(b *ggufBuilder) { b.writeTensorInfo("t", []uint64{1}, TensorTypeF32, 0) },
		make([]byte, 4))

	ctx, err := OpenContext(path)
	require.NoError(t, err)
	defer ctx.Close()

	// Precondition: LeftKV() == 0. Calling before consuming the kv must
	// return false, not error, and must not advance the cursor.
	_, ok, err := ctx.NextTensor()
	require.NoError(t, err)
	assert.False(t, ok)

	kh, ok, err := ctx.NextKey()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ctx.ConsumeValue(kh.Type, nil))
	assert.Equal(t, uint64(0), ctx.LeftKV())

	ti, ok, err := ctx.NextTensor()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t", ti.Name)

	_, ok, err = ctx.NextTensor()
	require.NoError(t, err)
	assert.False(t, ok) // exhausted
}

func TestFullIterationReachesDataOffset(t *testing.T) {
	// Invariant 1: after full iteration, cursor == data_offset and both
	// counters reach zero.
	path := buildMinimalGGUF(t, 1, 1,
		func(b *ggufBuilder) { b.writeKVString("general.architecture", "llama") },
		func(b *ggufBuilder) { b.writeTensorInfo("t", []uint64{4}, TensorTypeF32, 0) },
		make([]byte, 16))

	ctx, err := OpenContext(path)
	require.NoError(t, err)
	defer ctx.Close()

	require.NoError(t, ctx.SkipKV())
	for {
		_, ok, err := ctx.NextTensor()
		require.NoError(t, err)
		if !ok {
			break
		}
	}

	assert.Equal(t, uint64(0), ctx.LeftKV())
	assert.Equal(t, uint64(0), ctx.LeftTensors())
	assert.Equal(t, ctx.DataOffset(), ctx.Cursor())
}

func TestUnknownTensorTypeHaltsIteration(t *testing.T) {
	path := buildMinimalGGUF(t, 0, 1,
		nil,
		func(b *ggufBuilder) { b.writeTensorInfo("t", []uint64{1}, TensorType(9999), 0) },
		nil)

	ctx, err := OpenContext(path)
	require.NoError(t, err)
	defer ctx.Close()

	_, ok, err := ctx.NextTensor()
	require.NoError(t, err)
	assert.False(t, ok)
}

// visitorFunc adapts plain functions to the ValueVisitor interface.
type visitorFunc struct {
	onPrim  func(t ValueType, data any, inArray int)
	onStart func(elemType ValueType, length uint64, inArray int)
	onEnd   func(inArray int)
}

func (v *visitorFunc) OnPrimitive(t ValueType, data any, inArray int) {
	if v.onPrim != nil {
		v.onPrim(t, data, inArray)
	}
}
func (v *visitorFunc) OnArrayStart(elemType ValueType, length uint64, inArray int) {
	if v.onStart != nil {
		v.onStart(elemType, length, inArray)
	}
}
func (v *visitorFunc) OnArrayEnd(inArray int) {
	if v.onEnd != nil {
		v.onEnd(inArray)
	}
}
