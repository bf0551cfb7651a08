package gguf

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	ggufMagic        = "GGUF"
	headerSize       = 24
	supportedVersion = 3
	defaultAlignment = 64 >> 1 // 32
	maxArrayDepth    = 64
)

// ValueVisitor receives events from ConsumeValue in file order. OnArrayStart
// fires before any element of an array, OnArrayEnd after the last. inArray
// is 0 for a top-level value and for the start/end events themselves, and
// the 1-based position of the element within its immediately enclosing
// array otherwise — this is the "(NEW) visitor shape" the cursor exposes in
// place of a bare function-pointer callback.
type ValueVisitor interface {
	OnPrimitive(t ValueType, data any, inArray int)
	OnArrayStart(elemType ValueType, length uint64, inArray int)
	OnArrayEnd(inArray int)
}

// Context is a cursor over a memory-mapped GGUF file. It is the engine
// shared by File (read path) and Writer (write path); neither a Context
// nor the mapping behind it is safe for concurrent use by more than one
// goroutine, beyond read-only sharing when no method that can re-map the
// file is ever called.
type Context struct {
	path string
	file *os.File
	mm   mmap.MMap

	cursor       int64
	leftKV       uint64
	leftTensors  uint64
	kvCount      uint64
	tensorCount  uint64
	version      uint32
	alignment    uint64
	dataOffset   int64 // 0 until computed by NextTensor's first call.
	broken       bool
}

// OpenContext memory-maps path read-write and validates its header. The
// mapping is shared: a Writer built on the same Context can append and
// observe its own appends without a second open. Most callers want the
// higher-level File (see Open in gguf.go) instead; OpenContext is for
// code that needs the raw cursor, such as Writer or a custom inspector.
func OpenContext(path string) (*Context, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(ErrCannotOpen, err.Error())
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(ErrCannotOpen, err.Error())
	}
	if info.Size() < headerSize {
		f.Close()
		return nil, errors.Wrapf(ErrTruncated, "file is %d bytes, header needs %d", info.Size(), headerSize)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(ErrCannotOpen, err.Error())
	}

	c := &Context{path: path, file: f, mm: m, alignment: defaultAlignment}
	if err := c.readHeader(); err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}
	klog.V(2).Infof("gguf: opened %s: version=%d kv=%d tensors=%d", path, c.version, c.kvCount, c.tensorCount)
	return c, nil
}

// readHeader (re-)reads the fixed header fields and reseeds the cursor
// and counters from them. It deliberately leaves c.alignment untouched:
// alignment isn't a header field, it's derived from a general.alignment
// key-value seen in the metadata stream (or set directly by Writer), and
// neither NextKey's forward scan nor a Writer's own bookkeeping can be
// replayed by re-reading the fixed 24-byte header alone. OpenContext
// seeds the default before the first call; every later call (via
// Rewind) preserves whatever the alignment has been updated to since.
func (c *Context) readHeader() error {
	if string(c.mm[0:4]) != ggufMagic {
		return errors.Wrapf(ErrBadMagic, "got %q", c.mm[0:4])
	}
	c.version = leUint32(c.mm[4:8])
	if c.version != supportedVersion {
		return errors.Wrapf(ErrBadMagic, "unsupported version %d (only %d is supported)", c.version, supportedVersion)
	}
	c.tensorCount = leUint64(c.mm[8:16])
	c.kvCount = leUint64(c.mm[16:24])
	c.cursor = headerSize
	c.leftKV = c.kvCount
	c.leftTensors = c.tensorCount
	c.dataOffset = 0
	return nil
}

// Rewind resets the cursor to just past the header and re-seeds the
// counters and data-offset cache from the current header, which may
// have grown since Open via Writer appends. The alignment in effect is
// untouched (see readHeader).
func (c *Context) Rewind() error {
	if c.broken {
		return errors.New("gguf: context is broken, cannot rewind")
	}
	return c.readHeader()
}

// Version reports the GGUF format version of the mapped file.
func (c *Context) Version() uint32 { return c.version }

// Alignment reports the currently effective tensor-data alignment, which
// may have been updated by a general.alignment key-value entry.
func (c *Context) Alignment() uint64 { return c.alignment }

// KVCount and TensorCount report the header's declared counts.
func (c *Context) KVCount() uint64      { return c.kvCount }
func (c *Context) TensorCount() uint64  { return c.tensorCount }

// LeftKV and LeftTensors report how many entries remain to be consumed by
// NextKey / NextTensor in the current iteration pass.
func (c *Context) LeftKV() uint64      { return c.leftKV }
func (c *Context) LeftTensors() uint64 { return c.leftTensors }

// Cursor reports the current byte offset of the cursor into the mapping.
func (c *Context) Cursor() int64 { return c.cursor }

// DataOffset returns the absolute byte offset where the tensor payload
// section begins, or 0 if it has not yet been computed. NextTensor
// computes it on its first call made with no key-values left and at
// least one tensor remaining. See §4.3's one-shot data-offset computation.
func (c *Context) DataOffset() int64 { return c.dataOffset }

// AbsoluteOffset translates a tensor descriptor's relative offset into an
// absolute file offset, using the data offset computed by NextTensor's
// first call.
func (c *Context) AbsoluteOffset(ti TensorInfo) int64 {
	return c.dataOffset + int64(ti.Offset)
}

// Bytes returns a zero-copy borrow of length bytes at off within the
// mapping. The returned slice is valid only until the next append (see
// §5's re-map discipline).
func (c *Context) Bytes(off, length int64) ([]byte, error) {
	if err := c.checkBounds(off, length); err != nil {
		return nil, err
	}
	return c.mm[off : off+length], nil
}

// Close unmaps the file and closes its descriptor.
func (c *Context) Close() error {
	var err error
	if c.mm != nil {
		err = c.mm.Unmap()
		c.mm = nil
	}
	if c.file != nil {
		if cerr := c.file.Close(); err == nil {
			err = cerr
		}
		c.file = nil
	}
	return err
}

func (c *Context) checkBounds(off, length int64) error {
	if off < 0 || length < 0 || off+length > int64(len(c.mm)) {
		c.broken = true
		return errors.Wrapf(ErrTruncated, "offset %d length %d exceeds mapped size %d", off, length, len(c.mm))
	}
	return nil
}

func (c *Context) readString(off int64) (string, int64, error) {
	if err := c.checkBounds(off, 8); err != nil {
		return "", 0, err
	}
	n := leUint64(c.mm[off : off+8])
	strOff := off + 8
	if err := c.checkBounds(strOff, int64(n)); err != nil {
		return "", 0, err
	}
	s := string(c.mm[strOff : strOff+int64(n)])
	return s, strOff + int64(n), nil
}

// KeyHeader is the cursor's view of one key-value entry's header: the key
// name and declared type, with the cursor left positioned on the value
// bytes (not yet consumed — call ConsumeValue next).
type KeyHeader struct {
	Name string
	Type ValueType
}

// NextKey consumes one key-value entry's header at the cursor: it reads
// the name and type tag and advances the cursor to the start of the
// value, which it leaves unconsumed. Returns false once LeftKV reaches
// zero. If the entry is general.alignment of type UINT32, its value
// updates the context's alignment as a side effect, ahead of any tensor
// offset computation.
func (c *Context) NextKey() (KeyHeader, bool, error) {
	if c.broken {
		return KeyHeader{}, false, errors.New("gguf: context is broken")
	}
	if c.leftKV == 0 {
		return KeyHeader{}, false, nil
	}

	name, off, err := c.readString(c.cursor)
	if err != nil {
		return KeyHeader{}, false, err
	}
	if err := c.checkBounds(off, 4); err != nil {
		return KeyHeader{}, false, err
	}
	typeTag := ValueType(leUint32(c.mm[off : off+4]))
	c.cursor = off + 4
	c.leftKV--

	if name == "general.alignment" && typeTag == ValueTypeUint32 {
		if err := c.checkBounds(c.cursor, 4); err == nil {
			if v := leUint32(c.mm[c.cursor : c.cursor+4]); v > 0 {
				c.alignment = uint64(v)
			}
		}
	}

	return KeyHeader{Name: name, Type: typeTag}, true, nil
}

// ConsumeValue advances the cursor past one value of type t, invoking
// visitor for each primitive and array boundary encountered in file
// order. visitor may be nil to consume silently (used by SkipKV).
func (c *Context) ConsumeValue(t ValueType, visitor ValueVisitor) error {
	return c.consumeValue(t, visitor, 0, 0)
}

func (c *Context) consumeValue(t ValueType, visitor ValueVisitor, inArray, depth int) error {
	if c.broken {
		return errors.New("gguf: context is broken")
	}

	if t == ValueTypeArray {
		if depth >= maxArrayDepth {
			c.broken = true
			return fmt.Errorf("gguf: array nesting exceeds depth limit %d", maxArrayDepth)
		}
		if err := c.checkBounds(c.cursor, 12); err != nil {
			return err
		}
		elemType := ValueType(leUint32(c.mm[c.cursor : c.cursor+4]))
		length := leUint64(c.mm[c.cursor+4 : c.cursor+12])
		c.cursor += 12

		if visitor != nil {
			visitor.OnArrayStart(elemType, length, 0)
		}
		for i := uint64(1); i <= length; i++ {
			if err := c.consumeValue(elemType, visitor, int(i), depth+1); err != nil {
				return err
			}
		}
		if visitor != nil {
			visitor.OnArrayEnd(0)
		}
		return nil
	}

	data, width, err := c.readPrimitive(t, c.cursor)
	if err != nil {
		return err
	}
	if visitor != nil {
		visitor.OnPrimitive(t, data, inArray)
	}
	c.cursor += int64(width)
	return nil
}

func (c *Context) readPrimitive(t ValueType, off int64) (any, int, error) {
	if t == ValueTypeString {
		s, next, err := c.readString(off)
		if err != nil {
			return nil, 0, err
		}
		return s, int(next - off), nil
	}

	w, ok := valueFixedWidths[t]
	if !ok {
		c.broken = true
		return nil, 0, fmt.Errorf("gguf: unknown value type tag %d", uint32(t))
	}
	if err := c.checkBounds(off, int64(w)); err != nil {
		return nil, 0, err
	}
	b := c.mm[off : off+int64(w)]

	switch t {
	case ValueTypeUint8:
		return b[0], w, nil
	case ValueTypeInt8:
		return int8(b[0]), w, nil
	case ValueTypeUint16:
		return leUint16(b), w, nil
	case ValueTypeInt16:
		return int16(leUint16(b)), w, nil
	case ValueTypeUint32:
		return leUint32(b), w, nil
	case ValueTypeInt32:
		return int32(leUint32(b)), w, nil
	case ValueTypeFloat32:
		return leFloat32(b), w, nil
	case ValueTypeBool:
		return b[0] != 0, w, nil
	case ValueTypeUint64:
		return leUint64(b), w, nil
	case ValueTypeInt64:
		return int64(leUint64(b)), w, nil
	case ValueTypeFloat64:
		return leFloat64(b), w, nil
	default:
		c.broken = true
		return nil, 0, fmt.Errorf("gguf: unexpected primitive type tag %d", uint32(t))
	}
}

// SkipKV consumes every remaining key-value entry without collecting
// values, until LeftKV reaches zero.
func (c *Context) SkipKV() error {
	for c.leftKV > 0 {
		kh, ok, err := c.NextKey()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := c.ConsumeValue(kh.Type, nil); err != nil {
			return err
		}
	}
	return nil
}

// ensureDataOffset performs the one-shot forward scan described in §4.3:
// it walks every tensor descriptor without mutating the main cursor,
// computing the end of the tensor-info section and rounding up to the
// current alignment. Safe to call repeatedly; only the first call after
// Open/Rewind does any work.
func (c *Context) ensureDataOffset() error {
	if c.dataOffset != 0 {
		return nil
	}
	cursor := c.cursor
	for i := uint64(0); i < c.leftTensors; i++ {
		_, next, err := c.parseTensorDescriptor(cursor)
		if err != nil {
			c.broken = true
			return err
		}
		cursor = next
	}
	pad := (c.alignment - uint64(cursor)%c.alignment) % c.alignment
	c.dataOffset = cursor + int64(pad)
	return nil
}

func (c *Context) parseTensorDescriptor(off int64) (TensorInfo, int64, error) {
	name, off, err := c.readString(off)
	if err != nil {
		return TensorInfo{}, 0, err
	}
	if err := c.checkBounds(off, 4); err != nil {
		return TensorInfo{}, 0, err
	}
	ndim := leUint32(c.mm[off : off+4])
	off += 4
	if ndim < 1 || ndim > 4 {
		c.broken = true
		return TensorInfo{}, 0, errors.Wrapf(ErrTruncated, "tensor %q has illegal dimensionality %d", name, ndim)
	}

	shape := make([]uint64, ndim)
	for i := range shape {
		if err := c.checkBounds(off, 8); err != nil {
			return TensorInfo{}, 0, err
		}
		shape[i] = leUint64(c.mm[off : off+8])
		off += 8
	}

	if err := c.checkBounds(off, 4); err != nil {
		return TensorInfo{}, 0, err
	}
	ttype := TensorType(leUint32(c.mm[off : off+4]))
	off += 4

	if err := c.checkBounds(off, 8); err != nil {
		return TensorInfo{}, 0, err
	}
	relOffset := leUint64(c.mm[off : off+8])
	off += 8

	return TensorInfo{Name: name, Shape: shape, Type: ttype, Offset: relOffset}, off, nil
}

// NextTensor consumes one tensor descriptor. Its precondition is
// LeftKV() == 0; it returns false (with a zero TensorInfo) once tensors
// are exhausted, if key-values remain, or if the descriptor names a
// tensor type the registry has never heard of. The first successful call
// triggers the one-shot data-offset computation described on
// ensureDataOffset. Once the last descriptor is consumed, the cursor is
// moved to the data offset.
func (c *Context) NextTensor() (TensorInfo, bool, error) {
	if c.broken {
		return TensorInfo{}, false, errors.New("gguf: context is broken")
	}
	if c.leftKV != 0 || c.leftTensors == 0 {
		return TensorInfo{}, false, nil
	}
	if err := c.ensureDataOffset(); err != nil {
		return TensorInfo{}, false, err
	}

	ti, next, err := c.parseTensorDescriptor(c.cursor)
	if err != nil {
		return TensorInfo{}, false, err
	}
	c.cursor = next
	c.leftTensors--
	if c.leftTensors == 0 {
		c.cursor = c.dataOffset
	}
	if !ti.Type.known() {
		return TensorInfo{}, false, nil
	}
	return ti, true, nil
}
