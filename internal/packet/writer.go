package packet

import (
	"encoding/binary"
	"math"

	"github.com/gmp-go/core/internal/wire"
)

// Writer accumulates a little-endian, length-delimited frame. The zero
// value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer with a pre-sized backing buffer; size is a
// capacity hint, not a hard limit.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated frame.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteBool writes the single-byte bool encoding used for Optional values.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteU16 writes a little-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteI16 writes a little-endian int16.
func (w *Writer) WriteI16(v int16) {
	w.WriteU16(uint16(v))
}

// WriteU32 writes a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteI32 writes a little-endian int32.
func (w *Writer) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

// WriteF32 writes a little-endian float32.
func (w *Writer) WriteF32(v float32) {
	w.WriteU32(math.Float32bits(v))
}

// WritePlayerId writes a PlayerId as a u32.
func (w *Writer) WritePlayerId(id wire.PlayerId) {
	w.WriteU32(uint32(id))
}

// WriteVec3 writes three little-endian float32 values.
func (w *Writer) WriteVec3(v wire.Vec3) {
	w.WriteF32(v.X)
	w.WriteF32(v.Y)
	w.WriteF32(v.Z)
}

// WriteString writes a u32-length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBlob writes a u32-length-prefixed byte blob.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteOptionalPlayerId writes the "bool present; if present then PlayerId" encoding.
func (w *Writer) WriteOptionalPlayerId(o wire.Optional[wire.PlayerId]) {
	w.WriteBool(o.Present)
	if o.Present {
		w.WritePlayerId(o.Value)
	}
}
