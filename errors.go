package gguf

import "errors"

// ErrorKind categorizes a gguf error the way a CLI maps to an exit code.
type ErrorKind int

const (
	// KindNone marks errors (or nil) that carry no specific kind.
	KindNone ErrorKind = iota
	KindIO
	KindBadMagic
	KindTruncated
	KindOrder
	KindUnsupportedType
	KindOutOfMemory
	KindNotFound
	KindLocked
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindBadMagic:
		return "BAD_MAGIC"
	case KindTruncated:
		return "TRUNCATED"
	case KindOrder:
		return "ORDER"
	case KindUnsupportedType:
		return "UNSUPPORTED_TYPE"
	case KindOutOfMemory:
		return "OOM"
	case KindNotFound:
		return "NOT_FOUND"
	case KindLocked:
		return "LOCKED"
	default:
		return "NONE"
	}
}

// kindError pairs a sentinel with its kind so Kind(err) can recover it
// through any number of pkg/errors wraps.
type kindError struct {
	kind ErrorKind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newKindError(kind ErrorKind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	// ErrCannotOpen signals an I/O failure opening or mapping a file.
	ErrCannotOpen = newKindError(KindIO, "gguf: cannot open file")
	// ErrBadMagic signals the header magic didn't match "GGUF".
	ErrBadMagic = newKindError(KindBadMagic, "gguf: bad magic")
	// ErrTruncated signals a field read ran past the mapped length.
	ErrTruncated = newKindError(KindTruncated, "gguf: truncated file")
	// ErrOrder signals a writer method was called in an illegal phase.
	ErrOrder = newKindError(KindOrder, "gguf: illegal write order")
	// ErrUnsupportedType signals a dequantization request for a type
	// with no decoder.
	ErrUnsupportedType = newKindError(KindUnsupportedType, "gguf: unsupported tensor type")
	// ErrOutOfMemory signals a dequantizer allocation failed.
	ErrOutOfMemory = newKindError(KindOutOfMemory, "gguf: out of memory")
	// ErrNotFound signals a caller-level lookup miss (key or tensor name).
	ErrNotFound = newKindError(KindNotFound, "gguf: not found")
	// ErrLocked signals a writer could not acquire the exclusive file lock.
	ErrLocked = newKindError(KindLocked, "gguf: file is locked by another writer")
)

// Kind extracts the ErrorKind of err, looking through any pkg/errors
// wrapping. Returns KindNone if err is nil or carries no known kind.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindNone
}
