package gguf

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterBuildOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gguf")

	w, err := Create(path, false)
	require.NoError(t, err)

	require.NoError(t, w.AppendKeyValue("general.architecture", StringValue("llama")))
	require.NoError(t, w.AppendKeyValue("general.alignment", Uint32Value(32)))

	require.NoError(t, w.AppendTensorInfo("weight", []uint64{4}, TensorTypeF32, 0))

	payload := make([]byte, 16)
	for i, v := range []float32{1, 2, 3, 4} {
		putLeUint32(payload[i*4:i*4+4], math.Float32bits(v))
	}
	require.NoError(t, w.AppendTensorData(payload))
	require.NoError(t, w.Close())

	f, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), f.Version)
	assert.Equal(t, "llama", f.Architecture())
	assert.Equal(t, uint64(32), f.Alignment)

	ti, ok := f.GetTensorInfo("weight")
	require.True(t, ok)
	assert.Equal(t, []uint64{4}, ti.Shape)

	reader, err := NewMMapReader(path, f)
	require.NoError(t, err)
	defer reader.Close()
	raw, _, err := reader.ReadTensorRaw("weight")
	require.NoError(t, err)
	got, err := TensorToFloat32(ti, raw)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got)
}

func TestWriterAlignmentOverrideSurvivesLaterAppends(t *testing.T) {
	// Regression test: general.alignment must stay in effect through
	// every later AppendKeyValue/AppendTensorInfo/AppendTensorData call,
	// not just the one that set it.
	path := filepath.Join(t.TempDir(), "aligned.gguf")

	w, err := Create(path, false)
	require.NoError(t, err)

	require.NoError(t, w.AppendKeyValue("general.alignment", Uint32Value(64)))
	require.NoError(t, w.AppendKeyValue("general.architecture", StringValue("llama")))
	assert.Equal(t, uint64(64), w.Alignment())

	require.NoError(t, w.AppendTensorInfo("a", []uint64{1}, TensorTypeF32, 0))
	require.NoError(t, w.AppendTensorData(make([]byte, 4)))
	assert.Equal(t, uint64(64), w.Alignment())
	require.NoError(t, w.Close())

	f, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), f.Alignment)
	assert.Equal(t, int64(0), f.DataOffset()%64)
}

func TestWriterArrayKeyValueRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arr.gguf")

	w, err := Create(path, false)
	require.NoError(t, err)

	require.NoError(t, w.AppendKeyValue("tokenizer.ggml.tokens", Value{data: []string{"a", "bb", "ccc"}}))
	require.NoError(t, w.AppendKeyValue("sizes", Value{data: []uint32{10, 20, 30}}))
	require.NoError(t, w.Close())

	f, err := Open(path)
	require.NoError(t, err)

	kv, ok := f.GetKeyValue("tokenizer.ggml.tokens")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "bb", "ccc"}, kv.Strings())

	kv2, ok := f.GetKeyValue("sizes")
	require.True(t, ok)
	assert.Equal(t, []uint64{10, 20, 30}, kv2.Uints())
}

func TestWriterRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gguf")

	w, err := Create(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Create(path, false)
	require.Error(t, err)
}

func TestWriterKVAfterTensorFailsWithOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gguf")

	w, err := Create(path, false)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AppendTensorInfo("weight", []uint64{1}, TensorTypeF32, 0))

	err = w.AppendKeyValue("late", StringValue("oops"))
	require.Error(t, err)
	assert.Equal(t, KindOrder, Kind(err))
}

func TestWriterExclusiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.gguf")

	w1, err := Create(path, false)
	require.NoError(t, err)
	defer w1.Close()

	_, err = Create(path, true)
	require.Error(t, err)
	assert.Equal(t, KindLocked, Kind(err))
}
