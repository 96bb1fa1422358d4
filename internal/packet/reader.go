// Package packet provides the length-delimited, little-endian codec used
// to serialise and deserialise the wire types in internal/wire. Reader and
// Writer mirror each other's method set so every Write* has a matching
// Read* with the identical wire shape.
package packet

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gmp-go/core/internal/errs"
	"github.com/gmp-go/core/internal/wire"
)

// Reader reads typed values from a byte slice in little-endian order.
// All Read* methods fail cleanly with errs.ErrMalformedPacket-wrapped
// errors when the buffer underflows; no Read* ever panics on bad input.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data. The caller retains ownership of
// data; Reader never mutates it.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("%w: need %d bytes at pos %d, have %d", errs.ErrMalformedPacket, n, r.pos, len(r.data))
	}
	return nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBool reads the single-byte bool encoding used for Optional values.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadI16 reads a little-endian int16.
func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadI32 reads a little-endian int32.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadF32 reads a little-endian float32.
func (r *Reader) ReadF32() (float32, error) {
	bits, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadPlayerId reads a PlayerId (wire-encoded as u32).
func (r *Reader) ReadPlayerId() (wire.PlayerId, error) {
	v, err := r.ReadU32()
	return wire.PlayerId(v), err
}

// ReadVec3 reads three little-endian float32 values.
func (r *Reader) ReadVec3() (wire.Vec3, error) {
	x, err := r.ReadF32()
	if err != nil {
		return wire.Vec3{}, err
	}
	y, err := r.ReadF32()
	if err != nil {
		return wire.Vec3{}, err
	}
	z, err := r.ReadF32()
	if err != nil {
		return wire.Vec3{}, err
	}
	return wire.Vec3{X: x, Y: y, Z: z}, nil
}

// maxBlobLen bounds length-prefixed reads against a hostile or truncated
// length field; no legitimate frame on this protocol approaches it.
const maxBlobLen = 16 << 20

// ReadString reads a u32-length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if n > maxBlobLen {
		return "", fmt.Errorf("%w: string length %d exceeds sanity bound", errs.ErrMalformedPacket, n)
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadBlob reads a u32-length-prefixed byte blob. The returned slice is a
// copy; it does not alias the Reader's backing array.
func (r *Reader) ReadBlob() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if n > maxBlobLen {
		return nil, fmt.Errorf("%w: blob length %d exceeds sanity bound", errs.ErrMalformedPacket, n)
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// ReadOptionalPlayerId reads the "bool present; if present then PlayerId" encoding.
func (r *Reader) ReadOptionalPlayerId() (wire.Optional[wire.PlayerId], error) {
	present, err := r.ReadBool()
	if err != nil {
		return wire.Optional[wire.PlayerId]{}, err
	}
	if !present {
		return wire.None[wire.PlayerId](), nil
	}
	id, err := r.ReadPlayerId()
	if err != nil {
		return wire.Optional[wire.PlayerId]{}, err
	}
	return wire.Some(id), nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position returns the current read offset.
func (r *Reader) Position() int {
	return r.pos
}
