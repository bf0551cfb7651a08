package gguf

import (
	"encoding/binary"
	"math"
)

// Little-endian helpers over mapped byte slices, built on encoding/binary
// the way the teacher's dequant.go and gguf_test.go do (binary.LittleEndian.Uint16,
// .PutUint16, ...). The container reader never uses binary.Read against an
// io.Reader (the teacher's approach for its eager, non-mmap File.Open)
// because every field here is read directly out of the mapping at a
// known cursor offset.

func leUint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func leUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func leUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func leFloat32(b []byte) float32 { return math.Float32frombits(leUint32(b)) }
func leFloat64(b []byte) float64 { return math.Float64frombits(leUint64(b)) }

func putLeUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putLeUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putLeUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func appendUint16(buf []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(buf, v) }
func appendUint32(buf []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(buf, v) }
func appendUint64(buf []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(buf, v) }
