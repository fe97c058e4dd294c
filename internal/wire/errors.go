package wire

import "errors"

// Error taxonomy for the wire codec (spec §7). These are sentinel errors
// so callers can classify failures with errors.Is.
var (
	// ErrInvalidPacket covers short buffers, bad version, header_len
	// mismatches, and declared tlv_length exceeding the available bytes.
	ErrInvalidPacket = errors.New("wire: invalid packet")

	// ErrUnknownTLV is returned when a TLV in the 0x8000-0xFFFF critical
	// range is unrecognized. Non-critical unknown TLVs are skipped, not
	// errored (see Decode).
	ErrUnknownTLV = errors.New("wire: unknown critical TLV")

	// ErrCompressionNotConfigured is returned when a packet advertises the
	// COMPRESSED flag but the decoder has no compression support enabled.
	ErrCompressionNotConfigured = errors.New("wire: compressed payload but compression not configured")

	// ErrEncryptionNotConfigured is returned when a packet advertises the
	// ENCRYPTED flag; no cipher is implemented here (spec §1 Non-goals).
	ErrEncryptionNotConfigured = errors.New("wire: encrypted payload not supported")

	errKeepaliveNotEmpty = errors.New("wire: keepalive TLV must have zero length")
)
