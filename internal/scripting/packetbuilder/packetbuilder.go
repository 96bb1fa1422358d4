// Package packetbuilder implements the scripting host's Packet value
// (§4.9.7): a bit-addressed buffer with typed read/write operations, plus
// send/sendToAll bound to a transport and player registry.
package packetbuilder

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gmp-go/core/internal/errs"
	"github.com/gmp-go/core/internal/registry"
	"github.com/gmp-go/core/internal/transport"
	"github.com/gmp-go/core/internal/wire"
)

// Packet is a growable bit-addressed buffer. Writers and readers of
// multi-byte values align to the next byte boundary first (§4.9.7); bool
// is the only value that may occupy a single bit.
type Packet struct {
	bytes   []byte
	bitPos  int // write cursor, in bits
	readPos int // read cursor, in bits
}

// New creates an empty Packet.
func New() *Packet {
	return &Packet{}
}

// FromBytes wraps existing bytes for reading (e.g. a received scripting
// envelope payload).
func FromBytes(data []byte) *Packet {
	return &Packet{bytes: append([]byte(nil), data...), bitPos: len(data) * 8}
}

// Bytes returns the packet's current byte contents (partial trailing bits
// are padded with zero).
func (p *Packet) Bytes() []byte {
	return append([]byte(nil), p.bytes...)
}

func (p *Packet) alignWrite() {
	if p.bitPos%8 != 0 {
		p.bitPos += 8 - (p.bitPos % 8)
		for len(p.bytes) < p.bitPos/8 {
			p.bytes = append(p.bytes, 0)
		}
	}
}

func (p *Packet) alignRead() {
	if p.readPos%8 != 0 {
		p.readPos += 8 - (p.readPos % 8)
	}
}

func (p *Packet) ensure(extraBytes int) {
	need := p.bitPos/8 + extraBytes
	for len(p.bytes) < need {
		p.bytes = append(p.bytes, 0)
	}
}

// WriteBool writes a single bit.
func (p *Packet) WriteBool(v bool) {
	p.ensure(1)
	byteIdx := p.bitPos / 8
	bitIdx := uint(p.bitPos % 8)
	if v {
		p.bytes[byteIdx] |= 1 << bitIdx
	}
	p.bitPos++
}

// ReadBool reads a single bit.
func (p *Packet) ReadBool() (bool, error) {
	if p.readPos/8 >= len(p.bytes) {
		return false, fmt.Errorf("%w: reading bool", errs.ErrTruncatedField)
	}
	byteIdx := p.readPos / 8
	bitIdx := uint(p.readPos % 8)
	v := p.bytes[byteIdx]&(1<<bitIdx) != 0
	p.readPos++
	return v, nil
}

// WriteU8 writes one byte, byte-aligning first.
func (p *Packet) WriteU8(v uint8) {
	p.alignWrite()
	p.ensure(1)
	p.bytes[p.bitPos/8] = v
	p.bitPos += 8
}

// ReadU8 reads one byte, byte-aligning first.
func (p *Packet) ReadU8() (uint8, error) {
	p.alignRead()
	if p.readPos/8 >= len(p.bytes) {
		return 0, fmt.Errorf("%w: reading u8", errs.ErrTruncatedField)
	}
	v := p.bytes[p.readPos/8]
	p.readPos += 8
	return v, nil
}

// WriteI8 writes one signed byte.
func (p *Packet) WriteI8(v int8) { p.WriteU8(uint8(v)) }

// ReadI8 reads one signed byte.
func (p *Packet) ReadI8() (int8, error) {
	v, err := p.ReadU8()
	return int8(v), err
}

// WriteU16 writes a little-endian u16, byte-aligning first.
func (p *Packet) WriteU16(v uint16) {
	p.alignWrite()
	p.ensure(2)
	binary.LittleEndian.PutUint16(p.bytes[p.bitPos/8:], v)
	p.bitPos += 16
}

// ReadU16 reads a little-endian u16, byte-aligning first.
func (p *Packet) ReadU16() (uint16, error) {
	p.alignRead()
	idx := p.readPos / 8
	if idx+2 > len(p.bytes) {
		return 0, fmt.Errorf("%w: reading u16", errs.ErrTruncatedField)
	}
	v := binary.LittleEndian.Uint16(p.bytes[idx:])
	p.readPos += 16
	return v, nil
}

// WriteI16 writes a little-endian i16.
func (p *Packet) WriteI16(v int16) { p.WriteU16(uint16(v)) }

// ReadI16 reads a little-endian i16.
func (p *Packet) ReadI16() (int16, error) {
	v, err := p.ReadU16()
	return int16(v), err
}

// WriteU32 writes a little-endian u32, byte-aligning first.
func (p *Packet) WriteU32(v uint32) {
	p.alignWrite()
	p.ensure(4)
	binary.LittleEndian.PutUint32(p.bytes[p.bitPos/8:], v)
	p.bitPos += 32
}

// ReadU32 reads a little-endian u32, byte-aligning first.
func (p *Packet) ReadU32() (uint32, error) {
	p.alignRead()
	idx := p.readPos / 8
	if idx+4 > len(p.bytes) {
		return 0, fmt.Errorf("%w: reading u32", errs.ErrTruncatedField)
	}
	v := binary.LittleEndian.Uint32(p.bytes[idx:])
	p.readPos += 32
	return v, nil
}

// WriteI32 writes a little-endian i32.
func (p *Packet) WriteI32(v int32) { p.WriteU32(uint32(v)) }

// ReadI32 reads a little-endian i32.
func (p *Packet) ReadI32() (int32, error) {
	v, err := p.ReadU32()
	return int32(v), err
}

// WriteF32 writes a little-endian IEEE-754 float32.
func (p *Packet) WriteF32(v float32) {
	p.WriteU32(math.Float32bits(v))
}

// ReadF32 reads a little-endian IEEE-754 float32.
func (p *Packet) ReadF32() (float32, error) {
	v, err := p.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// WriteString writes a u32-length-prefixed UTF-8 string.
func (p *Packet) WriteString(s string) {
	p.WriteU32(uint32(len(s)))
	p.alignWrite()
	p.ensure(len(s))
	copy(p.bytes[p.bitPos/8:], s)
	p.bitPos += len(s) * 8
}

// ReadString reads a u32-length-prefixed UTF-8 string.
func (p *Packet) ReadString() (string, error) {
	n, err := p.ReadU32()
	if err != nil {
		return "", err
	}
	p.alignRead()
	idx := p.readPos / 8
	end := idx + int(n)
	if end > len(p.bytes) {
		return "", fmt.Errorf("%w: reading string", errs.ErrTruncatedField)
	}
	s := string(p.bytes[idx:end])
	p.readPos += int(n) * 8
	return s, nil
}

// WriteBlob writes a u32-length-prefixed raw byte blob.
func (p *Packet) WriteBlob(b []byte) {
	p.WriteU32(uint32(len(b)))
	p.alignWrite()
	p.ensure(len(b))
	copy(p.bytes[p.bitPos/8:], b)
	p.bitPos += len(b) * 8
}

// ReadBlob reads a u32-length-prefixed raw byte blob.
func (p *Packet) ReadBlob() ([]byte, error) {
	n, err := p.ReadU32()
	if err != nil {
		return nil, err
	}
	p.alignRead()
	idx := p.readPos / 8
	end := idx + int(n)
	if end > len(p.bytes) {
		return nil, fmt.Errorf("%w: reading blob", errs.ErrTruncatedField)
	}
	out := append([]byte(nil), p.bytes[idx:end]...)
	p.readPos += int(n) * 8
	return out, nil
}

// Sender binds a Packet to a transport and registry so scripts can send
// without directly touching either.
type Sender struct {
	t   *transport.Transport
	reg *registry.Registry
}

// NewSender creates a Sender.
func NewSender(t *transport.Transport, reg *registry.Registry) *Sender {
	return &Sender{t: t, reg: reg}
}

// envelope prepends the scripting-envelope opcode if p's first byte isn't
// already it (§4.9.7).
func envelope(p *Packet) []byte {
	raw := p.Bytes()
	if len(raw) > 0 && raw[0] == byte(wire.OpScriptingEnvelope) {
		return raw
	}
	out := make([]byte, 0, len(raw)+1)
	out = append(out, byte(wire.OpScriptingEnvelope))
	out = append(out, raw...)
	return out
}

// Send forwards p to a single peer.
func (s *Sender) Send(p *Packet, peer wire.ConnectionHandle, priority transport.Priority, reliability transport.Reliability, channel byte) error {
	return s.t.Send(envelope(p), priority, reliability, channel, peer)
}

// SendToAll forwards p to every in-game peer.
func (s *Sender) SendToAll(p *Packet, priority transport.Priority, reliability transport.Reliability, channel byte) {
	data := envelope(p)
	s.reg.ForEachIngame(func(pl *registry.Player) {
		_ = s.t.Send(data, priority, reliability, channel, pl.Connection)
	})
}
