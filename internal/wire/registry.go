package wire

// Registry tracks which TLV types this codec understands and how to
// decode their values. It is passed explicitly to Decode rather than
// held as package-level state (spec §9 "avoid hidden process-wide
// mutable state").
type Registry struct {
	known map[uint16]struct{}
}

// NewRegistry returns a Registry pre-populated with the types in spec §6.
func NewRegistry() *Registry {
	r := &Registry{known: make(map[uint16]struct{})}
	for _, t := range []uint16{
		TLVT3Ternary,
		TLVOwlMetrics,
		TLVRoutingInfo,
		TLVNeighborList,
		TLVKeepalive,
		TLVErrorInfo,
		TLVCapabilities,
	} {
		r.known[t] = struct{}{}
	}
	return r
}

// Register adds an application-defined TLV type so Decode will attempt to
// walk it rather than treat it as unknown. The value is always returned
// as raw bytes for types this package has no built-in decoder for;
// callers interpret them at the application layer.
func (r *Registry) Register(t uint16) {
	r.known[t] = struct{}{}
}

// IsKnown reports whether t is a registered type, independent of the
// fixed critical/vendor/experimental ranges (spec §6).
func (r *Registry) IsKnown(t uint16) bool {
	_, ok := r.known[t]
	return ok
}

// decodeValue attempts to interpret a known TLV's raw bytes into a typed
// value. Types with no built-in codec (T3_TERNARY, vendor, experimental,
// and any caller-registered type without a decoder here) are returned as
// their raw bytes, unchanged — "validation is deferred to the application
// tag registered on that TLV type" (spec §9).
func decodeValue(t uint16, raw []byte) (any, error) {
	switch t {
	case TLVOwlMetrics:
		return decodeOwlMetrics(raw)
	case TLVRoutingInfo:
		return decodeRoutingInfo(raw)
	case TLVNeighborList:
		return decodeNeighborList(raw)
	case TLVKeepalive:
		if len(raw) != 0 {
			return nil, errKeepaliveNotEmpty
		}
		return nil, nil
	case TLVErrorInfo:
		return decodeErrorInfo(raw)
	case TLVCapabilities:
		return decodeCapabilities(raw)
	default:
		// T3_TERNARY and any opaque/unrecognized-but-known type.
		return raw, nil
	}
}
