package packetbuilder_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/scripting/packetbuilder"
	"github.com/gmp-go/core/internal/wire"
)

func TestWriteReadRoundTripAllTypes(t *testing.T) {
	p := packetbuilder.New()
	p.WriteBool(true)
	p.WriteU8(200)
	p.WriteI16(-7)
	p.WriteU32(123456789)
	p.WriteF32(3.5)
	p.WriteString("hello")
	p.WriteBlob([]byte{1, 2, 3})

	r := packetbuilder.FromBytes(p.Bytes())

	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	u8, err := r.ReadU8()
	require.NoError(t, err)
	require.Equal(t, uint8(200), u8)

	i16, err := r.ReadI16()
	require.NoError(t, err)
	require.Equal(t, int16(-7), i16)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(123456789), u32)

	f32, err := r.ReadF32()
	require.NoError(t, err)
	require.InDelta(t, 3.5, f32, 0.0001)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	blob, err := r.ReadBlob()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, blob)
}

func TestMultiByteWritesAlignToByteBoundaryAfterBoolWrites(t *testing.T) {
	p := packetbuilder.New()
	p.WriteBool(true)
	p.WriteBool(false)
	p.WriteBool(true)
	p.WriteU16(0xABCD)

	r := packetbuilder.FromBytes(p.Bytes())
	_, err := r.ReadBool()
	require.NoError(t, err)
	_, err = r.ReadBool()
	require.NoError(t, err)
	_, err = r.ReadBool()
	require.NoError(t, err)

	v, err := r.ReadU16()
	require.NoError(t, err)
	require.Equal(t, uint16(0xABCD), v)
}

func TestReadPastEndReturnsTruncatedFieldError(t *testing.T) {
	p := packetbuilder.FromBytes([]byte{1})
	_, err := p.ReadU32()
	require.Error(t, err)
}

func TestFromBytesPreservesRawLength(t *testing.T) {
	raw := []byte{byte(wire.OpScriptingEnvelope), 9, 9}
	p := packetbuilder.FromBytes(raw)
	require.Equal(t, raw, p.Bytes())
}
