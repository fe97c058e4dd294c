package wire

import (
	"fmt"

	"github.com/route-beacon/ddarp/internal/metrics"
)

// DecodedTLV is a TLV record after value decoding. Value holds whichever
// concrete type the Registry dispatched to (OwlMetricsValue,
// RoutingInfoValue, []string, map[string]any, string, or raw []byte for
// opaque/unknown-but-registered types).
type DecodedTLV struct {
	Type  uint16
	Value any
	Raw   []byte
}

// EncodeOptions controls optional framing behavior applied by Encode.
type EncodeOptions struct {
	// Compress requests zstd compression of the packed TLV section and
	// sets FlagCompressed on the header.
	Compress bool
}

// Encode packs a header plus a list of raw TLV records into an on-wire
// packet. Callers build rawTLV values with the package's encodeXxx
// helpers (or their own, for opaque vendor/experimental types) before
// calling Encode.
func Encode(h Header, tlvs []rawTLV, opts EncodeOptions) []byte {
	var body []byte
	for _, t := range tlvs {
		body = append(body, encodeTLV(t)...)
	}

	if opts.Compress {
		body = compressTLVs(body)
		h.Flags |= FlagCompressed
	}

	h.HeaderLen = headerLenField
	h.Version = protocolVersion
	h.TLVLength = uint32(len(body))

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, encodeHeader(h)...)
	out = append(out, body...)
	return out
}

// NewRequest builds a request-flagged header for the given tunnel and
// sequence number. Additional flags (e.g. FlagCompressed via
// EncodeOptions) are ORed in by Encode.
func NewRequest(tunnelID, sequence, timestamp uint32) Header {
	return Header{Flags: FlagRequest, TunnelID: tunnelID, Sequence: sequence, Timestamp: timestamp}
}

// NewResponse builds a response-flagged header.
func NewResponse(tunnelID, sequence, timestamp uint32) Header {
	return Header{Flags: FlagResponse, TunnelID: tunnelID, Sequence: sequence, Timestamp: timestamp}
}

// NewError builds an error-flagged header. Callers typically pair this
// with a single ERROR_INFO TLV carrying a human-readable message.
func NewError(tunnelID, sequence, timestamp uint32) Header {
	return Header{Flags: FlagError, TunnelID: tunnelID, Sequence: sequence, Timestamp: timestamp}
}

// DecodeOptions controls how Decode treats flags and unknown TLVs.
type DecodeOptions struct {
	// AllowCompressed must be true for Decode to accept a packet with
	// FlagCompressed set; otherwise it fails closed with
	// ErrCompressionNotConfigured (spec §5.1).
	AllowCompressed bool
}

// Decode parses a raw packet into its Header and decoded TLV records
// using reg to resolve known types. Unknown TLVs outside the critical
// range (0x8000-0xFFFF) are skipped and reported back with Raw set and a
// nil Value; unknown TLVs inside the critical range abort decoding with
// ErrUnknownTLV. A packet advertising FlagEncrypted always fails closed,
// since no cipher is implemented (spec §1 Non-goals). A per-TLV value
// decode failure never fails the whole packet: the offending TLV is
// returned with Raw set and a nil Value, a counter is incremented, and
// decoding continues with the remaining TLVs.
func Decode(data []byte, reg *Registry, opts DecodeOptions) (Header, []DecodedTLV, error) {
	h, err := decodeHeader(data)
	if err != nil {
		metrics.InvalidPacketTotal.WithLabelValues("header").Inc()
		return Header{}, nil, err
	}

	if h.HasFlag(FlagEncrypted) {
		metrics.InvalidPacketTotal.WithLabelValues("encrypted_unsupported").Inc()
		return Header{}, nil, ErrEncryptionNotConfigured
	}

	body := data[headerSize : headerSize+int(h.TLVLength)]

	if h.HasFlag(FlagCompressed) {
		if !opts.AllowCompressed {
			metrics.InvalidPacketTotal.WithLabelValues("compression_not_configured").Inc()
			return Header{}, nil, ErrCompressionNotConfigured
		}
		body, err = decompressTLVs(body)
		if err != nil {
			metrics.InvalidPacketTotal.WithLabelValues("zstd_inflate").Inc()
			return Header{}, nil, err
		}
	}

	raws, err := walkTLVs(body)
	if err != nil {
		metrics.InvalidPacketTotal.WithLabelValues("tlv_framing").Inc()
		return Header{}, nil, err
	}

	out := make([]DecodedTLV, 0, len(raws))
	for _, raw := range raws {
		if !reg.IsKnown(raw.Type) {
			if isCritical(raw.Type) {
				metrics.UnknownTLVTotal.WithLabelValues("rejected").Inc()
				return Header{}, nil, fmt.Errorf("%w: type 0x%04x", ErrUnknownTLV, raw.Type)
			}
			// Non-critical unknown TLV: tolerated, carried through as raw
			// bytes for the caller to log or ignore (spec §6).
			metrics.UnknownTLVTotal.WithLabelValues("tolerated").Inc()
			out = append(out, DecodedTLV{Type: raw.Type, Raw: raw.Value})
			continue
		}

		val, err := decodeValue(raw.Type, raw.Value)
		if err != nil {
			// Recoverable per-TLV failure: log and keep the raw bytes rather
			// than failing the whole packet (spec §4.1 parsing rule 3).
			metrics.UnknownTLVTotal.WithLabelValues("decode_error").Inc()
			out = append(out, DecodedTLV{Type: raw.Type, Raw: raw.Value})
			continue
		}
		out = append(out, DecodedTLV{Type: raw.Type, Value: val, Raw: raw.Value})
	}

	return h, out, nil
}

// Validate reports whether data parses as a structurally sound packet
// without attempting to decode TLV values or enforce critical-TLV
// knowledge. It is a cheap pre-filter for callers that just want to drop
// garbage before handing packets to Decode.
func Validate(data []byte) bool {
	h, err := decodeHeader(data)
	if err != nil {
		return false
	}
	body := data[headerSize : headerSize+int(h.TLVLength)]
	if h.HasFlag(FlagCompressed) {
		return true // body is opaque compressed bytes; nothing more to check here.
	}
	_, err = walkTLVs(body)
	return err == nil
}

// Summary is a lightweight, decode-free description of a packet used for
// logging and metrics without materializing TLV values.
type Summary struct {
	Header   Header
	TLVCount int
}

// PacketInfo returns a Summary for data, failing with ErrInvalidPacket if
// the header or TLV framing (but not TLV contents) is malformed.
func PacketInfo(data []byte) (Summary, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return Summary{}, err
	}
	if h.HasFlag(FlagCompressed) {
		return Summary{Header: h, TLVCount: -1}, nil
	}
	body := data[headerSize : headerSize+int(h.TLVLength)]
	raws, err := walkTLVs(body)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Header: h, TLVCount: len(raws)}, nil
}
