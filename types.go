// Package gguf reads, inspects, and writes files in the GGUF container
// format used to package large-language-model weights with their
// metadata. It maps a file into memory, streams its typed key-value
// metadata section and tensor-descriptor section through a cursor, and
// decodes block-quantized tensor payloads back into dense F32/F16/BF16
// arrays. An append-only Writer constructs new GGUF files under the
// same invariants the reader enforces.
//
// Example, reading:
//
//	f, err := gguf.Open("model.gguf")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, ti := range f.TensorInfos {
//		fmt.Println(ti.Name, ti.Type, ti.NumElements())
//	}
//
// Example, writing:
//
//	w, err := gguf.Create("out.gguf", false)
//	...
//	w.AppendKeyValue("general.architecture", gguf.StringValue("llama"))
//	w.AppendTensorInfo("weight", []uint64{4}, gguf.TensorTypeF32, 0)
//	w.AppendTensorData(payload)
package gguf

import "fmt"

// ValueType is the tagged-union discriminator for a GGUF metadata value.
// The on-disk tags are 0..12; ValueTypeArrayStart/End are synthetic,
// reader-only tags used by ConsumeValue's visitor callbacks and never
// appear in a file.
type ValueType uint32

const (
	ValueTypeUint8   ValueType = 0
	ValueTypeInt8    ValueType = 1
	ValueTypeUint16  ValueType = 2
	ValueTypeInt16   ValueType = 3
	ValueTypeUint32  ValueType = 4
	ValueTypeInt32   ValueType = 5
	ValueTypeFloat32 ValueType = 6
	ValueTypeBool    ValueType = 7
	ValueTypeString  ValueType = 8
	ValueTypeArray   ValueType = 9
	ValueTypeUint64  ValueType = 10
	ValueTypeInt64   ValueType = 11
	ValueTypeFloat64 ValueType = 12

	// ValueTypeArrayStart and ValueTypeArrayEnd are synthetic: they are
	// reported to a ValueVisitor around an array's elements but never
	// appear as an on-disk type tag.
	ValueTypeArrayStart ValueType = 0xFFFFFFFE
	ValueTypeArrayEnd   ValueType = 0xFFFFFFFF
)

// valueTypeNames is the static, immutable name table for §4.2's type
// registry. Access with an out-of-range tag falls through to "unknown"
// rather than faulting.
var valueTypeNames = map[ValueType]string{
	ValueTypeUint8:   "UINT8",
	ValueTypeInt8:    "INT8",
	ValueTypeUint16:  "UINT16",
	ValueTypeInt16:   "INT16",
	ValueTypeUint32:  "UINT32",
	ValueTypeInt32:   "INT32",
	ValueTypeFloat32: "FLOAT32",
	ValueTypeBool:    "BOOL",
	ValueTypeString:  "STRING",
	ValueTypeArray:   "ARRAY",
	ValueTypeUint64:  "UINT64",
	ValueTypeInt64:   "INT64",
	ValueTypeFloat64: "FLOAT64",
}

// ValueTypeName returns the registry name for t, or "unknown" if t is
// not a recognized on-disk value type.
func ValueTypeName(t ValueType) string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// valueFixedWidths is the byte width of every fixed-size value type.
// STRING and ARRAY are deliberately absent: their width depends on
// their content (see ValueByteWidth).
var valueFixedWidths = map[ValueType]int{
	ValueTypeUint8:   1,
	ValueTypeInt8:    1,
	ValueTypeUint16:  2,
	ValueTypeInt16:   2,
	ValueTypeUint32:  4,
	ValueTypeInt32:   4,
	ValueTypeFloat32: 4,
	ValueTypeBool:    1,
	ValueTypeUint64:  8,
	ValueTypeInt64:   8,
	ValueTypeFloat64: 8,
}

// ValueByteWidth returns the on-disk width of a non-array value of type
// t, given the bytes starting at the value (only consulted for STRING,
// to read its length prefix). It returns (0, false) for ARRAY, whose
// width depends on recursively consuming its elements, and for any
// unrecognized type tag.
func ValueByteWidth(t ValueType, data []byte) (int, bool) {
	if w, ok := valueFixedWidths[t]; ok {
		return w, true
	}
	if t == ValueTypeString {
		if len(data) < 8 {
			return 0, false
		}
		n := leUint64(data)
		return 8 + int(n), true
	}
	return 0, false
}

// TensorType represents the data type or quantization format of a
// tensor in a GGUF file. Values match the upstream GGML numbering.
type TensorType uint32

const (
	TensorTypeF32  TensorType = 0
	TensorTypeF16  TensorType = 1
	TensorTypeQ4_0 TensorType = 2
	TensorTypeQ4_1 TensorType = 3
	// 4, 5 are deprecated/removed types.
	TensorTypeQ5_0    TensorType = 6
	TensorTypeQ5_1    TensorType = 7
	TensorTypeQ8_0    TensorType = 8
	TensorTypeQ8_1    TensorType = 9
	TensorTypeQ2_K    TensorType = 10
	TensorTypeQ3_K    TensorType = 11
	TensorTypeQ4_K    TensorType = 12
	TensorTypeQ5_K    TensorType = 13
	TensorTypeQ6_K    TensorType = 14
	TensorTypeQ8_K    TensorType = 15
	TensorTypeIQ2_XXS TensorType = 16
	TensorTypeIQ2_XS  TensorType = 17
	TensorTypeIQ3_XXS TensorType = 18
	TensorTypeIQ1_S   TensorType = 19
	TensorTypeIQ4_NL  TensorType = 20
	TensorTypeIQ3_S   TensorType = 21
	TensorTypeIQ2_S   TensorType = 22
	TensorTypeIQ4_XS  TensorType = 23
	TensorTypeI8      TensorType = 24
	TensorTypeI16     TensorType = 25
	TensorTypeI32     TensorType = 26
	TensorTypeI64     TensorType = 27
	TensorTypeF64     TensorType = 28
	TensorTypeIQ1_M   TensorType = 29
	TensorTypeBF16    TensorType = 30
	// 31-33 are unused.
	TensorTypeTQ1_0 TensorType = 34
	TensorTypeTQ2_0 TensorType = 35
	// 36-38 are unused.
	TensorTypeMXFP4 TensorType = 39
)

// tensorTypeFeatures is the static registry row for each tensor type:
// its name and its block geometry (items per block, bytes per block).
// A zero bytesPerBlock marks a type the registry recognizes by name but
// whose block size it does not record: NumBytes returns 0 for such a
// type, so its payload size is not computed.
type tensorTypeFeatures struct {
	name          string
	itemsPerBlock int
	bytesPerBlock int
}

var tensorTypeTable = map[TensorType]tensorTypeFeatures{
	TensorTypeF32:     {"F32", 1, 4},
	TensorTypeF16:     {"F16", 1, 2},
	TensorTypeQ4_0:    {"Q4_0", 32, 18},
	TensorTypeQ4_1:    {"Q4_1", 32, 20},
	TensorTypeQ5_0:    {"Q5_0", 32, 22},
	TensorTypeQ5_1:    {"Q5_1", 32, 24},
	TensorTypeQ8_0:    {"Q8_0", 32, 34},
	TensorTypeQ8_1:    {"Q8_1", 32, 36},
	TensorTypeQ2_K:    {"Q2_K", 256, 84},
	TensorTypeQ3_K:    {"Q3_K", 256, 110},
	TensorTypeQ4_K:    {"Q4_K", 256, 144},
	TensorTypeQ5_K:    {"Q5_K", 256, 176},
	TensorTypeQ6_K:    {"Q6_K", 256, 210},
	TensorTypeQ8_K:    {"Q8_K", 256, 292},
	TensorTypeIQ2_XXS: {"IQ2_XXS", 256, 0},
	TensorTypeIQ2_XS:  {"IQ2_XS", 256, 0},
	TensorTypeIQ3_XXS: {"IQ3_XXS", 256, 0},
	TensorTypeIQ1_S:   {"IQ1_S", 256, 0},
	TensorTypeIQ4_NL:  {"IQ4_NL", 32, 18},
	TensorTypeIQ3_S:   {"IQ3_S", 256, 0},
	TensorTypeIQ2_S:   {"IQ2_S", 256, 0},
	TensorTypeIQ4_XS:  {"IQ4_XS", 256, 0},
	TensorTypeI8:      {"I8", 1, 1},
	TensorTypeI16:     {"I16", 1, 2},
	TensorTypeI32:     {"I32", 1, 4},
	TensorTypeI64:     {"I64", 1, 8},
	TensorTypeF64:     {"F64", 1, 8},
	TensorTypeIQ1_M:   {"IQ1_M", 256, 0},
	TensorTypeBF16:    {"BF16", 1, 2},
	TensorTypeTQ1_0:   {"TQ1_0", 256, 0},
	TensorTypeTQ2_0:   {"TQ2_0", 256, 0},
	TensorTypeMXFP4:   {"MXFP4", 32, 0},
}

// String returns a human-readable name for the tensor type, or
// "unknown(N)" if t is not a recognized tag.
func (t TensorType) String() string {
	if f, ok := tensorTypeTable[t]; ok {
		return f.name
	}
	return fmt.Sprintf("unknown(%d)", uint32(t))
}

// BlockSize returns the number of weights packed into one block of this
// type, or 0 if t is not in the registry.
func (t TensorType) BlockSize() int {
	return tensorTypeTable[t].itemsPerBlock
}

// TypeSize returns the number of bytes one block of this type occupies
// on disk, or 0 if t is not in the registry or has no known geometry.
func (t TensorType) TypeSize() int {
	return tensorTypeTable[t].bytesPerBlock
}

// IsQuantized reports whether t requires dequantization before use as
// plain floating point data.
func (t TensorType) IsQuantized() bool {
	switch t {
	case TensorTypeF32, TensorTypeF16, TensorTypeBF16, TensorTypeF64,
		TensorTypeI8, TensorTypeI16, TensorTypeI32, TensorTypeI64:
		return false
	default:
		return true
	}
}

// known reports whether t has a registry row at all (as opposed to a
// tag the table has never heard of).
func (t TensorType) known() bool {
	_, ok := tensorTypeTable[t]
	return ok
}

// TensorInfo holds parsed information about a single tensor in a GGUF
// file. Offset is relative to the data section; see File/Context for
// the absolute offset.
type TensorInfo struct {
	Name   string
	Shape  []uint64 // Dimensions in GGUF native order (innermost first).
	Type   TensorType
	Offset uint64 // Byte offset within the tensor data section.
}

// NumElements returns the total number of weights in the tensor.
func (ti *TensorInfo) NumElements() uint64 {
	if len(ti.Shape) == 0 {
		return 0
	}
	n := uint64(1)
	for _, d := range ti.Shape {
		n *= d
	}
	return n
}

// NumBytes returns ceil(NumElements/itemsPerBlock)*bytesPerBlock, the
// payload size of this tensor on disk, per spec §3's sizing rule. It
// returns 0 if the type has no registry geometry.
func (ti *TensorInfo) NumBytes() int64 {
	bs := ti.Type.BlockSize()
	ts := ti.Type.TypeSize()
	if bs == 0 || ts == 0 {
		return 0
	}
	n := ti.NumElements()
	nBlocks := (n + uint64(bs) - 1) / uint64(bs)
	return int64(nBlocks) * int64(ts)
}
