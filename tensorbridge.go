package gguf

import (
	"fmt"
	"io"
	"slices"
	"unsafe"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"golang.org/x/exp/mmap"
)

// unsafeFloat32View reinterprets a byte slice as a float32 slice without
// copying. len(b) must be a multiple of 4.
func unsafeFloat32View(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// gomlxDType returns the GoMLX dtype for a tensor type. Native types map
// directly; quantized types report dtypes.Float32, the dequantization
// output type TensorAndName.Tensor is always materialized in.
func gomlxDType(t TensorType) dtypes.DType {
	switch t {
	case TensorTypeF32:
		return dtypes.Float32
	case TensorTypeF16:
		return dtypes.Float16
	case TensorTypeBF16:
		return dtypes.BFloat16
	case TensorTypeF64:
		return dtypes.Float64
	case TensorTypeI8:
		return dtypes.Int8
	case TensorTypeI16:
		return dtypes.Int16
	case TensorTypeI32:
		return dtypes.Int32
	case TensorTypeI64:
		return dtypes.Int64
	default:
		return dtypes.Float32
	}
}

// gomlxShape returns the GoMLX dtype and dimensions for a tensor. GGUF
// stores dimensions innermost-first; GoMLX (like HuggingFace) expects
// outermost-first, so the dims are reversed.
func gomlxShape(ti TensorInfo) (dtypes.DType, []int) {
	dims := make([]int, len(ti.Shape))
	for i, d := range ti.Shape {
		dims[i] = int(d)
	}
	slices.Reverse(dims)
	return gomlxDType(ti.Type), dims
}

// TensorAndName pairs a tensor name with its materialized GoMLX tensor.
type TensorAndName struct {
	Name   string
	Tensor *tensors.Tensor
}

// MMapReader provides read-only, zero-copy access to a GGUF file's
// tensor payloads, independent of the Context used to parse its
// metadata. It opens its own golang.org/x/exp/mmap.ReaderAt mapping
// rather than reusing File's (now-closed) read-write Context, since
// tensor reads never need to mutate the file.
type MMapReader struct {
	reader     *mmap.ReaderAt
	file       *File
	dataOffset int64
}

// NewMMapReader opens a read-only memory-mapped view of path for
// reading the tensors described by file.
func NewMMapReader(path string, file *File) (*MMapReader, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gguf: mmap %s: %w", path, err)
	}
	return &MMapReader{reader: reader, file: file, dataOffset: file.DataOffset()}, nil
}

// Close closes the underlying memory-mapped file.
func (mr *MMapReader) Close() error {
	return mr.reader.Close()
}

// ReadTensor reads a tensor by name into a GoMLX tensor, dequantizing if
// necessary. Native types (F32, F16, BF16, I8, ...) are copied directly.
func (mr *MMapReader) ReadTensor(tensorName string) (*tensors.Tensor, error) {
	info, ok := mr.file.GetTensorInfo(tensorName)
	if !ok {
		return nil, fmt.Errorf("gguf: tensor %q: %w", tensorName, ErrNotFound)
	}

	dtype, dims := gomlxShape(info)
	t := tensors.FromShape(shapes.Make(dtype, dims...))
	tensorOffset := mr.dataOffset + int64(info.Offset)

	if !info.Type.IsQuantized() {
		var readErr error
		t.MutableBytes(func(data []byte) {
			_, readErr = mr.reader.ReadAt(data, tensorOffset)
			if readErr == io.EOF {
				readErr = nil
			}
		})
		if readErr != nil {
			return nil, fmt.Errorf("gguf: read tensor %q: %w", tensorName, readErr)
		}
		return t, nil
	}

	raw, err := mr.readRawBytes(tensorOffset, info.NumBytes())
	if err != nil {
		return nil, fmt.Errorf("gguf: read raw tensor %q: %w", tensorName, err)
	}
	values, err := TensorToFloat32(info, raw)
	if err != nil {
		return nil, fmt.Errorf("gguf: dequant tensor %q: %w", tensorName, err)
	}

	var copyErr error
	t.MutableBytes(func(data []byte) {
		dst := unsafeFloat32View(data)
		if len(dst) != len(values) {
			copyErr = fmt.Errorf("tensor %q: expected %d float32 elements, got buffer for %d",
				tensorName, len(values), len(dst))
			return
		}
		copy(dst, values)
	})
	if copyErr != nil {
		return nil, copyErr
	}
	return t, nil
}

// ReadTensorRaw reads the raw, undecoded bytes for a tensor.
func (mr *MMapReader) ReadTensorRaw(tensorName string) ([]byte, *TensorInfo, error) {
	info, ok := mr.file.GetTensorInfo(tensorName)
	if !ok {
		return nil, nil, fmt.Errorf("gguf: tensor %q: %w", tensorName, ErrNotFound)
	}
	tensorOffset := mr.dataOffset + int64(info.Offset)
	buf, err := mr.readRawBytes(tensorOffset, info.NumBytes())
	if err != nil {
		return nil, nil, fmt.Errorf("gguf: read raw tensor %q: %w", tensorName, err)
	}
	return buf, &info, nil
}

func (mr *MMapReader) readRawBytes(offset, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := mr.reader.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// IterTensors returns an iterator over every tensor in file, read from
// path sequentially in offset order for friendlier I/O.
func IterTensors(path string, file *File) func(yield func(TensorAndName, error) bool) {
	return func(yield func(TensorAndName, error) bool) {
		reader, err := NewMMapReader(path, file)
		if err != nil {
			yield(TensorAndName{}, err)
			return
		}
		defer reader.Close()

		sorted := make([]TensorInfo, len(file.TensorInfos))
		copy(sorted, file.TensorInfos)
		slices.SortFunc(sorted, func(a, b TensorInfo) int {
			switch {
			case a.Offset < b.Offset:
				return -1
			case a.Offset > b.Offset:
				return 1
			default:
				return 0
			}
		})

		for _, info := range sorted {
			t, err := reader.ReadTensor(info.Name)
			if err != nil {
				yield(TensorAndName{}, err)
				return
			}
			if !yield(TensorAndName{Name: info.Name, Tensor: t}, nil) {
				return
			}
		}
	}
}
