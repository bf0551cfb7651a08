package gguf

import "fmt"

// File represents a fully parsed GGUF file: every key-value entry and
// tensor descriptor, indexed for lookup. Create one with Open. Reading
// tensor payloads goes through a separate MMapReader (see
// tensorbridge.go), since File itself only needs the metadata and
// tensor-info sections to stay open.
type File struct {
	// Version is the GGUF format version (only 3 is accepted by Open).
	Version uint32
	// Alignment is the byte alignment tensor data is padded to (default 32).
	Alignment uint64
	// KeyValues holds every metadata key-value pair from the file header.
	KeyValues []KeyValue
	// TensorInfos holds parsed information about every tensor in the file.
	TensorInfos []TensorInfo

	kvByKey      map[string]*KeyValue
	tensorByName map[string]*TensorInfo
	path         string
	dataOffset   int64
}

// Open opens and fully parses a GGUF file: it drives a Context through
// every key-value entry and tensor descriptor, then closes the Context
// (tensor payload access is a separate, lazier concern; see NewMMapReader).
func Open(path string) (*File, error) {
	ctx, err := OpenContext(path)
	if err != nil {
		return nil, err
	}
	defer ctx.Close()

	file := &File{
		path:      path,
		Version:   ctx.Version(),
		Alignment: ctx.Alignment(),
	}

	collector := &valueCollector{}
	file.KeyValues = make([]KeyValue, 0, ctx.KVCount())
	for {
		kh, ok, err := ctx.NextKey()
		if err != nil {
			return nil, fmt.Errorf("gguf: read key/value %d: %w", len(file.KeyValues), err)
		}
		if !ok {
			break
		}
		collector.reset()
		if err := ctx.ConsumeValue(kh.Type, collector); err != nil {
			return nil, fmt.Errorf("gguf: read value for %q: %w", kh.Name, err)
		}
		file.KeyValues = append(file.KeyValues, KeyValue{Key: kh.Name, Value: collector.result()})
	}
	// general.alignment may have been updated by NextKey's side effect
	// while iterating; pick up the final value before computing offsets.
	file.Alignment = ctx.Alignment()

	file.TensorInfos = make([]TensorInfo, 0, ctx.TensorCount())
	for {
		ti, ok, err := ctx.NextTensor()
		if err != nil {
			return nil, fmt.Errorf("gguf: read tensor info %d: %w", len(file.TensorInfos), err)
		}
		if !ok {
			break
		}
		file.TensorInfos = append(file.TensorInfos, ti)
	}
	file.dataOffset = ctx.DataOffset()

	file.kvByKey = make(map[string]*KeyValue, len(file.KeyValues))
	for i := range file.KeyValues {
		file.kvByKey[file.KeyValues[i].Key] = &file.KeyValues[i]
	}
	file.tensorByName = make(map[string]*TensorInfo, len(file.TensorInfos))
	for i := range file.TensorInfos {
		file.tensorByName[file.TensorInfos[i].Name] = &file.TensorInfos[i]
	}

	return file, nil
}

// Path returns the local file path of the GGUF file.
func (f *File) Path() string {
	return f.path
}

// DataOffset returns the absolute byte offset where tensor data begins
// in the file.
func (f *File) DataOffset() int64 {
	return f.dataOffset
}

// GetKeyValue looks up a metadata key-value pair by its key.
func (f *File) GetKeyValue(key string) (KeyValue, bool) {
	kv, ok := f.kvByKey[key]
	if !ok {
		return KeyValue{}, false
	}
	return *kv, true
}

// GetTensorInfo looks up a tensor by name.
func (f *File) GetTensorInfo(name string) (TensorInfo, bool) {
	ti, ok := f.tensorByName[name]
	if !ok {
		return TensorInfo{}, false
	}
	return *ti, true
}

// Architecture returns the model architecture string (e.g. "llama",
// "gemma"), or "" if general.architecture is absent.
func (f *File) Architecture() string {
	kv, ok := f.GetKeyValue("general.architecture")
	if !ok {
		return ""
	}
	return kv.String()
}

// ListTensorNames returns the names of all tensors in the file, in
// declaration order.
func (f *File) ListTensorNames() []string {
	names := make([]string, len(f.TensorInfos))
	for i, ti := range f.TensorInfos {
		names[i] = ti.Name
	}
	return names
}

// TotalParameters returns the sum of NumElements() across every tensor,
// the figure the show CLI command reports in billions.
func (f *File) TotalParameters() uint64 {
	var total uint64
	for i := range f.TensorInfos {
		total += f.TensorInfos[i].NumElements()
	}
	return total
}

// valueCollector implements ValueVisitor by assembling the traversed
// value into a Go value suitable for wrapping in a Value: a plain
// scalar for a top-level primitive, a concrete typed slice for a
// homogeneous array, or a []any for an array of arrays.
type valueCollector struct {
	stack []collectFrame
	top   any
}

type collectFrame struct {
	elemType ValueType
	vals     []any
}

func (c *valueCollector) reset() {
	c.stack = c.stack[:0]
	c.top = nil
}

func (c *valueCollector) result() Value {
	return Value{data: c.top}
}

func (c *valueCollector) OnPrimitive(t ValueType, data any, inArray int) {
	if len(c.stack) == 0 {
		c.top = data
		return
	}
	frame := &c.stack[len(c.stack)-1]
	frame.vals = append(frame.vals, data)
}

func (c *valueCollector) OnArrayStart(elemType ValueType, length uint64, inArray int) {
	c.stack = append(c.stack, collectFrame{elemType: elemType, vals: make([]any, 0, length)})
}

func (c *valueCollector) OnArrayEnd(inArray int) {
	frame := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	typed := buildTypedSlice(frame.elemType, frame.vals)

	if len(c.stack) == 0 {
		c.top = typed
		return
	}
	parent := &c.stack[len(c.stack)-1]
	parent.vals = append(parent.vals, typed)
}

// buildTypedSlice converts a []any of homogeneous elemType values into a
// concrete Go slice type, so Value's typed accessors (Ints, Floats, ...)
// work on arrays the same way they do on scalars. Nested arrays (whose
// elements are themselves slices, already converted by an inner
// OnArrayEnd) fall through to a plain []any.
func buildTypedSlice(elemType ValueType, vals []any) any {
	switch elemType {
	case ValueTypeUint8:
		out := make([]uint8, len(vals))
		for i, v := range vals {
			out[i] = v.(uint8)
		}
		return out
	case ValueTypeInt8:
		out := make([]int8, len(vals))
		for i, v := range vals {
			out[i] = v.(int8)
		}
		return out
	case ValueTypeUint16:
		out := make([]uint16, len(vals))
		for i, v := range vals {
			out[i] = v.(uint16)
		}
		return out
	case ValueTypeInt16:
		out := make([]int16, len(vals))
		for i, v := range vals {
			out[i] = v.(int16)
		}
		return out
	case ValueTypeUint32:
		out := make([]uint32, len(vals))
		for i, v := range vals {
			out[i] = v.(uint32)
		}
		return out
	case ValueTypeInt32:
		out := make([]int32, len(vals))
		for i, v := range vals {
			out[i] = v.(int32)
		}
		return out
	case ValueTypeFloat32:
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = v.(float32)
		}
		return out
	case ValueTypeUint64:
		out := make([]uint64, len(vals))
		for i, v := range vals {
			out[i] = v.(uint64)
		}
		return out
	case ValueTypeInt64:
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i] = v.(int64)
		}
		return out
	case ValueTypeFloat64:
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i] = v.(float64)
		}
		return out
	case ValueTypeBool:
		out := make([]bool, len(vals))
		for i, v := range vals {
			out[i] = v.(bool)
		}
		return out
	case ValueTypeString:
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = v.(string)
		}
		return out
	default:
		return vals
	}
}
