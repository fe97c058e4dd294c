package wire

import (
	"encoding/binary"
	"fmt"
)

// Flag bits (spec §4.1/§6).
const (
	FlagRequest    uint8 = 0x01
	FlagResponse   uint8 = 0x02
	FlagError      uint8 = 0x04
	FlagCompressed uint8 = 0x08
	FlagEncrypted  uint8 = 0x10
)

const (
	protocolVersion uint8  = 1
	headerSize      int    = 20
	headerLenField  uint16 = 20
)

// HeaderSize is the fixed on-wire header length in bytes.
const HeaderSize = headerSize

// Header is the 20-byte fixed DDARP packet header (spec §6).
type Header struct {
	Version   uint8
	Flags     uint8
	HeaderLen uint16
	TunnelID  uint32
	Sequence  uint32
	Timestamp uint32
	TLVLength uint32
}

// HasFlag reports whether the given bit is set in Flags.
func (h Header) HasFlag(bit uint8) bool {
	return h.Flags&bit != 0
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	buf[0] = h.Version
	buf[1] = h.Flags
	binary.BigEndian.PutUint16(buf[2:4], h.HeaderLen)
	binary.BigEndian.PutUint32(buf[4:8], h.TunnelID)
	binary.BigEndian.PutUint32(buf[8:12], h.Sequence)
	binary.BigEndian.PutUint32(buf[12:16], h.Timestamp)
	binary.BigEndian.PutUint32(buf[16:20], h.TLVLength)
	return buf
}

func decodeHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("%w: buffer too short for header (%d bytes)", ErrInvalidPacket, len(data))
	}

	h := Header{
		Version:   data[0],
		Flags:     data[1],
		HeaderLen: binary.BigEndian.Uint16(data[2:4]),
		TunnelID:  binary.BigEndian.Uint32(data[4:8]),
		Sequence:  binary.BigEndian.Uint32(data[8:12]),
		Timestamp: binary.BigEndian.Uint32(data[12:16]),
		TLVLength: binary.BigEndian.Uint32(data[16:20]),
	}

	if h.Version != protocolVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidPacket, h.Version)
	}
	if h.HeaderLen != headerLenField {
		return Header{}, fmt.Errorf("%w: header_len %d, expected %d", ErrInvalidPacket, h.HeaderLen, headerLenField)
	}

	available := len(data) - headerSize
	if uint64(h.TLVLength) > uint64(available) {
		return Header{}, fmt.Errorf("%w: tlv_length %d exceeds available %d bytes", ErrInvalidPacket, h.TLVLength, available)
	}

	return h, nil
}
