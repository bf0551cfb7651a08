package gguf

// KeyValue represents a metadata key-value pair from a GGUF file.
type KeyValue struct {
	Key string
	Value
}

// Value wraps a GGUF metadata value with typed accessors. Accessors
// return zero values when the underlying type doesn't match, rather
// than returning errors — mirroring the registry's "unknown tag, no
// fault" contract from spec §4.2.
type Value struct {
	data any
}

// StringValue wraps a string as a Value of type STRING.
func StringValue(s string) Value { return Value{data: s} }

// Uint32Value wraps a uint32 as a Value of type UINT32.
func Uint32Value(v uint32) Value { return Value{data: v} }

// BoolValue wraps a bool as a Value of type BOOL.
func BoolValue(v bool) Value { return Value{data: v} }

// Raw returns the underlying value without type conversion.
func (v Value) Raw() any {
	return v.data
}

// Type reports the ValueType this Value would serialize as.
func (v Value) Type() ValueType {
	switch v.data.(type) {
	case uint8:
		return ValueTypeUint8
	case int8:
		return ValueTypeInt8
	case uint16:
		return ValueTypeUint16
	case int16:
		return ValueTypeInt16
	case uint32:
		return ValueTypeUint32
	case int32:
		return ValueTypeInt32
	case float32:
		return ValueTypeFloat32
	case bool:
		return ValueTypeBool
	case string:
		return ValueTypeString
	case uint64:
		return ValueTypeUint64
	case int64:
		return ValueTypeInt64
	case float64:
		return ValueTypeFloat64
	default:
		return ValueTypeArray
	}
}

// String returns the value as a string, or "" if it is not a string.
func (v Value) String() string {
	s, _ := v.data.(string)
	return s
}

// Strings returns the value as a string slice, or nil if it is not one.
func (v Value) Strings() []string {
	if s, ok := v.data.([]string); ok {
		return s
	}
	return nil
}

// Int returns the value as an int64. Works for any signed or unsigned
// integer type. Returns 0 if the value is not an integer.
func (v Value) Int() int64 {
	switch n := v.data.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

// Uint returns the value as a uint64. Works for any unsigned or signed
// integer type. Returns 0 if the value is not an integer.
func (v Value) Uint() uint64 {
	switch n := v.data.(type) {
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case int8:
		return uint64(n)
	case int16:
		return uint64(n)
	case int32:
		return uint64(n)
	case int64:
		return uint64(n)
	default:
		return 0
	}
}

// Float returns the value as a float64. Works for float32 and float64.
// Returns 0 if the value is not a float.
func (v Value) Float() float64 {
	switch n := v.data.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// Floats returns the value as a float64 slice, or nil if it is not one.
func (v Value) Floats() []float64 {
	switch s := v.data.(type) {
	case []float64:
		return s
	case []float32:
		out := make([]float64, len(s))
		for i, f := range s {
			out[i] = float64(f)
		}
		return out
	default:
		return nil
	}
}

// Bool returns the value as a bool, or false if it is not a bool.
func (v Value) Bool() bool {
	b, _ := v.data.(bool)
	return b
}

// Ints returns the value as an int64 slice, or nil if it is not an
// integer array.
func (v Value) Ints() []int64 {
	switch s := v.data.(type) {
	case []int64:
		return s
	case []int32:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []int16:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []int8:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []uint64:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []uint32:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []uint16:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	case []uint8:
		out := make([]int64, len(s))
		for i, n := range s {
			out[i] = int64(n)
		}
		return out
	default:
		return nil
	}
}

// Uints returns the value as a uint64 slice, or nil if it is not an
// integer array.
func (v Value) Uints() []uint64 {
	switch s := v.data.(type) {
	case []uint64:
		return s
	case []uint32:
		out := make([]uint64, len(s))
		for i, n := range s {
			out[i] = uint64(n)
		}
		return out
	case []uint16:
		out := make([]uint64, len(s))
		for i, n := range s {
			out[i] = uint64(n)
		}
		return out
	case []uint8:
		out := make([]uint64, len(s))
		for i, n := range s {
			out[i] = uint64(n)
		}
		return out
	case []int64:
		out := make([]uint64, len(s))
		for i, n := range s {
			out[i] = uint64(n)
		}
		return out
	case []int32:
		out := make([]uint64, len(s))
		for i, n := range s {
			out[i] = uint64(n)
		}
		return out
	case []int16:
		out := make([]uint64, len(s))
		for i, n := range s {
			out[i] = uint64(n)
		}
		return out
	case []int8:
		out := make([]uint64, len(s))
		for i, n := range s {
			out[i] = uint64(n)
		}
		return out
	default:
		return nil
	}
}
