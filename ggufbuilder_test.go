package gguf

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ggufBuilder constructs a minimal valid GGUF binary for testing, byte
// by byte, the way a real writer would lay one out.
type ggufBuilder struct {
	buf []byte
}

func newGGUFBuilder() *ggufBuilder { return &ggufBuilder{} }

func (b *ggufBuilder) writeUint8(v uint8)    { b.buf = append(b.buf, v) }
func (b *ggufBuilder) writeUint16(v uint16)  { b.buf = appendUint16(b.buf, v) }
func (b *ggufBuilder) writeUint32(v uint32)  { b.buf = appendUint32(b.buf, v) }
func (b *ggufBuilder) writeUint64(v uint64)  { b.buf = appendUint64(b.buf, v) }
func (b *ggufBuilder) writeInt32(v int32)    { b.writeUint32(uint32(v)) }
func (b *ggufBuilder) writeFloat32(v float32) {
	b.writeUint32(math.Float32bits(v))
}

func (b *ggufBuilder) writeString(s string) {
	b.writeUint64(uint64(len(s)))
	b.buf = append(b.buf, s...)
}

func (b *ggufBuilder) writeKVString(key, value string) {
	b.writeString(key)
	b.writeUint32(uint32(ValueTypeString))
	b.writeString(value)
}

func (b *ggufBuilder) writeKVUint32(key string, value uint32) {
	b.writeString(key)
	b.writeUint32(uint32(ValueTypeUint32))
	b.writeUint32(value)
}

func (b *ggufBuilder) writeKVBool(key string, value bool) {
	b.writeString(key)
	b.writeUint32(uint32(ValueTypeBool))
	if value {
		b.writeUint8(1)
	} else {
		b.writeUint8(0)
	}
}

func (b *ggufBuilder) writeKVStringArray(key string, values []string) {
	b.writeString(key)
	b.writeUint32(uint32(ValueTypeArray))
	b.writeUint32(uint32(ValueTypeString))
	b.writeUint64(uint64(len(values)))
	for _, v := range values {
		b.writeString(v)
	}
}

func (b *ggufBuilder) writeKVUint32Array(key string, values []uint32) {
	b.writeString(key)
	b.writeUint32(uint32(ValueTypeArray))
	b.writeUint32(uint32(ValueTypeUint32))
	b.writeUint64(uint64(len(values)))
	for _, v := range values {
		b.writeUint32(v)
	}
}

func (b *ggufBuilder) writeTensorInfo(name string, shape []uint64, ttype TensorType, offset uint64) {
	b.writeString(name)
	b.writeUint32(uint32(len(shape)))
	for _, d := range shape {
		b.writeUint64(d)
	}
	b.writeUint32(uint32(ttype))
	b.writeUint64(offset)
}

func (b *ggufBuilder) bytes() []byte { return b.buf }

// buildMinimalGGUF assembles a minimal valid GGUF v3 file in a temp
// directory and returns its path.
func buildMinimalGGUF(t *testing.T, kvCount, tensorCount int, writeKVs, writeTensors func(*ggufBuilder), tensorData []byte) string {
	t.Helper()

	b := newGGUFBuilder()
	b.buf = append(b.buf, ggufMagic...)
	b.writeUint32(supportedVersion)
	b.writeUint64(uint64(tensorCount))
	b.writeUint64(uint64(kvCount))

	if writeKVs != nil {
		writeKVs(b)
	}
	if writeTensors != nil {
		writeTensors(b)
	}
	for len(b.buf)%defaultAlignment != 0 {
		b.buf = append(b.buf, 0)
	}
	if tensorData != nil {
		b.buf = append(b.buf, tensorData...)
	}

	path := filepath.Join(t.TempDir(), "test.gguf")
	require.NoError(t, os.WriteFile(path, b.bytes(), 0o644))
	return path
}
