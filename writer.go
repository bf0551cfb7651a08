package gguf

import (
	"io"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// writePhase tracks which section of the build protocol a Writer is in.
// The zero value, phaseKV, is where a freshly created file starts.
type writePhase int

const (
	phaseKV writePhase = iota
	phaseTensorInfo
	phaseTensorData
)

// Writer appends key-value entries, tensor descriptors, and tensor
// payloads to a new GGUF file, enforcing the build protocol from §4.4:
// all key-values before any tensor descriptor, all descriptors before
// any payload. Unlike the read-only concurrency model, a Writer takes
// an exclusive advisory lock on a sibling ".lock" file for its whole
// lifetime — this is the (NEW) exclusive-writer guard: rather than
// leaving concurrent writers undefined, a second Writer on the same
// path fails fast with ErrLocked instead of corrupting the file. The
// teacher's hub package used the same gofrs/flock primitive to
// coordinate concurrent downloaders polling for a lock; here a single
// TryLock failing immediately is the right contract, since two writers
// sharing one output file is a programmer error, not a transient
// condition worth retrying.
type Writer struct {
	*Context
	lock  *flock.Flock
	phase writePhase
}

// Create makes a new GGUF file at path with a fresh 24-byte header
// (version 3, both counts zero) and opens it for appending. It refuses
// to overwrite an existing file unless overwrite is true.
func Create(path string, overwrite bool) (*Writer, error) {
	lockPath := path + ".lock"
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(ErrCannotOpen, "locking %q: %v", lockPath, err)
	}
	if !locked {
		return nil, errors.Wrapf(ErrLocked, "%q is held by another writer", path)
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			fl.Unlock()
			return nil, errors.Wrapf(ErrCannotOpen, "%q already exists", path)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		fl.Unlock()
		return nil, errors.Wrap(ErrCannotOpen, err.Error())
	}
	header := make([]byte, 0, headerSize)
	header = append(header, ggufMagic...)
	header = appendUint32(header, supportedVersion)
	header = appendUint64(header, 0) // tensor count
	header = appendUint64(header, 0) // kv count
	if _, err := f.Write(header); err != nil {
		f.Close()
		fl.Unlock()
		return nil, errors.Wrap(ErrCannotOpen, err.Error())
	}
	if err := f.Close(); err != nil {
		fl.Unlock()
		return nil, errors.Wrap(ErrCannotOpen, err.Error())
	}

	ctx, err := OpenContext(path)
	if err != nil {
		fl.Unlock()
		return nil, err
	}
	klog.V(2).Infof("gguf: created %s", path)
	return &Writer{Context: ctx, lock: fl}, nil
}

// remap re-reads the file's current size and re-maps it, refreshing the
// Context's view after a write has grown the file. Every append that
// grows the file ends by calling this.
func (w *Writer) remap() error {
	size, err := w.file.Stat()
	if err != nil {
		return errors.Wrap(ErrCannotOpen, err.Error())
	}
	if err := w.mm.Unmap(); err != nil {
		return errors.Wrap(ErrCannotOpen, err.Error())
	}
	m, err := mmap.Map(w.file, mmap.RDWR, 0)
	if err != nil {
		return errors.Wrap(ErrCannotOpen, err.Error())
	}
	w.mm = m
	return w.Rewind()
}

// appendBytes grows the file by appending raw bytes at EOF, then
// re-maps. The mapping (and any borrows into it) held by the caller
// before this call are invalid afterward.
func (w *Writer) appendBytes(b []byte) error {
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(ErrCannotOpen, err.Error())
	}
	if _, err := w.file.Write(b); err != nil {
		return errors.Wrap(ErrCannotOpen, err.Error())
	}
	return w.remap()
}

func (w *Writer) bumpHeaderCount(fieldOffset int64) error {
	cur := leUint64(w.mm[fieldOffset : fieldOffset+8])
	putLeUint64(w.mm[fieldOffset:fieldOffset+8], cur+1)
	return w.Rewind()
}

// AppendKeyValue writes one key-value entry. Its precondition is that no
// tensor descriptor has been written yet; violating it fails with
// ErrOrder.
func (w *Writer) AppendKeyValue(key string, v Value) error {
	if w.phase != phaseKV {
		return errors.Wrap(ErrOrder, "AppendKeyValue called after AppendTensorInfo")
	}

	buf := make([]byte, 0, 16+len(key))
	buf = appendUint64(buf, uint64(len(key)))
	buf = append(buf, key...)
	buf = appendUint32(buf, uint32(v.Type()))
	buf = appendValueBytes(buf, v)

	if err := w.appendBytes(buf); err != nil {
		return err
	}
	if err := w.bumpHeaderCount(16); err != nil { // kv count field, offset 16 in the header
		return err
	}

	// Mirror NextKey's read-side side effect: a general.alignment entry
	// takes effect immediately, since Rewind otherwise has no way to
	// recover it without re-scanning every kv this Writer has emitted.
	if key == "general.alignment" {
		if u, ok := v.data.(uint32); ok && u > 0 {
			w.alignment = uint64(u)
		}
	}
	return nil
}

// appendValueBytes serializes v's payload (not its type tag, already
// written by the caller) in on-disk form. Array values write their
// element-type tag and length ahead of the packed elements, mirroring
// the layout ConsumeValue parses back.
func appendValueBytes(buf []byte, v Value) []byte {
	if elemType, vals, ok := arrayElements(v.data); ok {
		buf = appendUint32(buf, uint32(elemType))
		buf = appendUint64(buf, uint64(len(vals)))
		for _, elem := range vals {
			buf = appendScalarBytes(buf, elem)
		}
		return buf
	}
	return appendScalarBytes(buf, v.data)
}

// appendScalarBytes encodes a single primitive value (no type tag), the
// same payload shape whether it appears at top level or as one element
// of an array.
func appendScalarBytes(buf []byte, data any) []byte {
	switch d := data.(type) {
	case uint8:
		return append(buf, d)
	case int8:
		return append(buf, byte(d))
	case uint16:
		return appendUint16(buf, d)
	case int16:
		return appendUint16(buf, uint16(d))
	case uint32:
		return appendUint32(buf, d)
	case int32:
		return appendUint32(buf, uint32(d))
	case float32:
		return appendUint32(buf, math.Float32bits(d))
	case bool:
		if d {
			return append(buf, 1)
		}
		return append(buf, 0)
	case string:
		buf = appendUint64(buf, uint64(len(d)))
		return append(buf, d...)
	case uint64:
		return appendUint64(buf, d)
	case int64:
		return appendUint64(buf, uint64(d))
	case float64:
		return appendUint64(buf, math.Float64bits(d))
	default:
		return buf
	}
}

// arrayElements reports the element ValueType and a []any view of data's
// elements if data is one of the concrete slice types buildTypedSlice
// produces. ok is false for scalars and for []any (array-of-arrays,
// which AppendKeyValue does not support writing).
func arrayElements(data any) (ValueType, []any, bool) {
	switch s := data.(type) {
	case []uint8:
		return ValueTypeUint8, toAnySlice(s), true
	case []int8:
		return ValueTypeInt8, toAnySlice(s), true
	case []uint16:
		return ValueTypeUint16, toAnySlice(s), true
	case []int16:
		return ValueTypeInt16, toAnySlice(s), true
	case []uint32:
		return ValueTypeUint32, toAnySlice(s), true
	case []int32:
		return ValueTypeInt32, toAnySlice(s), true
	case []float32:
		return ValueTypeFloat32, toAnySlice(s), true
	case []uint64:
		return ValueTypeUint64, toAnySlice(s), true
	case []int64:
		return ValueTypeInt64, toAnySlice(s), true
	case []float64:
		return ValueTypeFloat64, toAnySlice(s), true
	case []bool:
		return ValueTypeBool, toAnySlice(s), true
	case []string:
		return ValueTypeString, toAnySlice(s), true
	default:
		return 0, nil, false
	}
}

func toAnySlice[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// AppendTensorInfo writes one tensor descriptor and increments the
// header's tensor count. relOffset must already account for the
// alignment-honouring layout of every tensor written before it — the
// writer does not compute offsets on the caller's behalf (§4.4's build
// protocol places that responsibility on the caller).
func (w *Writer) AppendTensorInfo(name string, shape []uint64, t TensorType, relOffset uint64) error {
	if w.phase == phaseTensorData {
		return errors.Wrap(ErrOrder, "AppendTensorInfo called after AppendTensorData")
	}
	w.phase = phaseTensorInfo

	buf := make([]byte, 0, 24+len(name)+8*len(shape))
	buf = appendUint64(buf, uint64(len(name)))
	buf = append(buf, name...)
	buf = appendUint32(buf, uint32(len(shape)))
	for _, d := range shape {
		buf = appendUint64(buf, d)
	}
	buf = appendUint32(buf, uint32(t))
	buf = appendUint64(buf, relOffset)

	if err := w.appendBytes(buf); err != nil {
		return err
	}
	return w.bumpHeaderCount(8) // tensor count field, offset 8 in the header
}

// AppendTensorData pads the file up to the next alignment multiple with
// zero bytes, then writes the payload. The caller is responsible for
// having placed this tensor's relative offset, in its matching
// AppendTensorInfo call, at that same padded position.
func (w *Writer) AppendTensorData(data []byte) error {
	w.phase = phaseTensorData

	size, err := w.file.Stat()
	if err != nil {
		return errors.Wrap(ErrCannotOpen, err.Error())
	}
	cur := uint64(size.Size())
	pad := (w.alignment - cur%w.alignment) % w.alignment
	if pad > 0 {
		if err := w.appendBytes(make([]byte, pad)); err != nil {
			return err
		}
	}
	return w.appendBytes(data)
}

// Close releases the writer's exclusive lock in addition to unmapping
// and closing the underlying file.
func (w *Writer) Close() error {
	err := w.Context.Close()
	if w.lock != nil {
		if uerr := w.lock.Unlock(); err == nil {
			err = uerr
		}
	}
	return err
}
