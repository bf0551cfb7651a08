package gguf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halfBits(f float32) uint16 { return F32ToHalf(f) }

func TestDequantQ8_0(t *testing.T) {
	// Concrete scenario 3: scale 0.5, q = [2,-4,0,...].
	block := make([]byte, 34)
	putLeUint16(block[0:2], halfBits(0.5))
	block[2] = byte(int8(2))
	block[3] = byte(int8(-4))
	block[4] = byte(int8(0))

	dst := make([]float32, 32)
	dequantQ8_0(block, dst, 32)
	assert.InDelta(t, 1.0, dst[0], 1e-2)
	assert.InDelta(t, -2.0, dst[1], 1e-2)
	assert.InDelta(t, 0.0, dst[2], 1e-2)
}

func TestDequantQ4_0(t *testing.T) {
	// Concrete scenario 4: scale 1.0, first nibble byte 0x87.
	block := make([]byte, 18)
	putLeUint16(block[0:2], halfBits(1.0))
	block[2] = 0x87 // low nibble 0x7, high nibble 0x8

	dst := make([]float32, 32)
	dequantQ4_0(block, dst, 32)
	assert.InDelta(t, -1.0, dst[0], 1e-2)  // (7-8)*1
	assert.InDelta(t, 0.0, dst[16], 1e-2) // (8-8)*1
}

func TestDequantBoundaryPartialBlock(t *testing.T) {
	// A tensor whose element count isn't a multiple of the block size
	// still produces exactly that many outputs.
	block := make([]byte, 18)
	putLeUint16(block[0:2], halfBits(1.0))
	for i := range block[2:] {
		block[2+i] = 0x88 // all nibbles = 8, decodes to 0
	}

	dst := make([]float32, 5)
	dequantQ4_0(block, dst, 5)
	for _, v := range dst {
		assert.Equal(t, float32(0), v)
	}
}

func TestGetDequantFuncUnsupportedTypes(t *testing.T) {
	for _, typ := range []TensorType{
		TensorTypeQ3_K, TensorTypeQ5_0, TensorTypeQ5_1, TensorTypeQ5_K,
		TensorTypeQ8_1, TensorTypeQ8_K, TensorTypeIQ2_XXS, TensorTypeI32, TensorTypeF64,
	} {
		_, err := GetDequantFunc(typ)
		require.Error(t, err)
		assert.Equal(t, KindUnsupportedType, Kind(err))
	}
}

func TestGetDequantFuncSupportedTypes(t *testing.T) {
	for _, typ := range []TensorType{
		TensorTypeQ8_0, TensorTypeQ4_0, TensorTypeQ4_1,
		TensorTypeQ2_K, TensorTypeQ4_K, TensorTypeQ6_K,
	} {
		_, err := GetDequantFunc(typ)
		assert.NoError(t, err)
	}
}

func TestDequantQ2_KAllZeroProducesMinOnly(t *testing.T) {
	block := make([]byte, 84)
	// scales byte 0: scale nibble 0, min nibble 1 -> all-zero quants decode to -min.
	block[0] = 0x10
	putLeUint16(block[80:82], halfBits(1.0)) // d
	putLeUint16(block[82:84], halfBits(2.0)) // dmin

	dst := make([]float32, 256)
	dequantQ2_K(block, dst, 256)
	assert.InDelta(t, -2.0, dst[0], 1e-2)
}

func TestDequantQ4_K(t *testing.T) {
	block := make([]byte, 144)
	putLeUint16(block[0:2], halfBits(1.0)) // sscale
	putLeUint16(block[2:4], halfBits(1.0)) // mscale
	block[4] = 2                           // scales[0]: sub-block 0 scale = 2
	block[8] = 1                           // scales[4]: sub-block 0 min = 1
	block[16] = 0x03                       // qs[0] low nibble = 3

	dst := make([]float32, 256)
	dequantQ4_K(block, dst, 256)
	// dst[0] = sscale*scale*nibble - mscale*min = 1*2*3 - 1*1 = 5.
	assert.InDelta(t, 5.0, dst[0], 1e-2)
}

func TestDequantQ6_KNegativeSubScale(t *testing.T) {
	// Regression test: the sub-scale is a signed int8, not a uint8. A
	// block whose first sub-scale has the high bit set must decode with
	// the sign applied, not as a large positive magnitude.
	block := make([]byte, 210)
	block[192] = 0xFF // scales[0] = -1 (int8)
	putLeUint16(block[208:210], halfBits(1.0)) // d
	// l[0] and h[0] left zero, so weight 0's 6-bit code is 0 -> q = -32.

	dst := make([]float32, 256)
	dequantQ6_K(block, dst, 256)
	// dst[0] = d * scale * q = 1 * (-1) * (-32) = 32.
	assert.InDelta(t, 32.0, dst[0], 1e-2)
}

func TestFacadeTensorToFloat32Native(t *testing.T) {
	ti := TensorInfo{Name: "t", Shape: []uint64{4}, Type: TensorTypeF32}
	raw := make([]byte, 16)
	for i, v := range []float32{1, 2, 3, 4} {
		putLeUint32Float(raw[i*4:i*4+4], v)
	}
	got, err := TensorToFloat32(ti, raw)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, got)
}

func putLeUint32Float(b []byte, v float32) {
	putLeUint32(b, math.Float32bits(v))
}

func TestFacadeUnsupportedType(t *testing.T) {
	ti := TensorInfo{Name: "t", Shape: []uint64{32}, Type: TensorTypeQ5_0}
	_, err := TensorToFloat32(ti, make([]byte, 22))
	require.Error(t, err)
	assert.Equal(t, KindUnsupportedType, Kind(err))
}
