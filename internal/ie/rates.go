package ie

// Rate is a supported-rate entry in units of 500kbit/s, as encoded on the
// wire; the top bit marks a "basic" (mandatory) rate.
type Rate uint8

const basicRateBit = 0x80

// Value returns the rate in 500kbit/s units with the basic-rate bit masked
// off.
func (r Rate) Value() uint8 { return uint8(r) &^ basicRateBit }

// IsBasic reports whether the BSS requires this rate to associate.
func (r Rate) IsBasic() bool { return uint8(r)&basicRateBit != 0 }

// ParseSupportedRates parses the data portion of a Supported Rates (tag 1)
// or Extended Supported Rates (tag 50) element into a Rate slice.
func ParseSupportedRates(b []byte) []Rate {
	out := make([]Rate, len(b))
	for i, v := range b {
		out[i] = Rate(v)
	}
	return out
}

// BuildSupportedRates encodes up to 8 rates into a Supported Rates element's
// data; callers with more than 8 rates must put the remainder in an
// Extended Supported Rates element via the same function.
func BuildSupportedRates(rates []Rate) []byte {
	out := make([]byte, len(rates))
	for i, r := range rates {
		out[i] = byte(r)
	}
	return out
}

// MergeRates combines a Supported Rates element and an optional Extended
// Supported Rates element into one rate set, mirroring how IWD's ap.c
// treats the two IEs as a single logical rate list during association
// acceptance checks (spec §4.7, SPEC_FULL §12).
func MergeRates(supported, extended []Rate) []Rate {
	out := make([]Rate, 0, len(supported)+len(extended))
	out = append(out, supported...)
	out = append(out, extended...)
	return out
}

// HasCommonBasicRate reports whether at least one of the AP's basic
// (mandatory) rates also appears in the peer's advertised rate set — the
// "at least one common basic rate" acceptance check of spec §4.7.
func HasCommonBasicRate(apRates, peerRates []Rate) bool {
	peerSet := make(map[uint8]bool, len(peerRates))
	for _, r := range peerRates {
		peerSet[r.Value()] = true
	}

	for _, r := range apRates {
		if r.IsBasic() && peerSet[r.Value()] {
			return true
		}
	}
	return false
}
