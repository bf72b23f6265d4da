package ie

import (
	"encoding/binary"
	"errors"
)

// ErrMDETooShort is returned when a Mobility Domain Element's data is not
// exactly its fixed 3-byte body (shorter or longer).
var ErrMDETooShort = errors.New("ie: MDE truncated")

// MDE capability flags, IEEE 802.11-2016 Figure 9-301.
const (
	MDCapFastBSSTransitionOverDS = 1 << 0
	MDCapResourceRequest         = 1 << 1
)

// MDE is the parsed Mobility Domain Element (IEEE 802.11-2016 §9.4.2.25):
// a 2-byte MDID plus a 1-byte FT capability/policy field.
type MDE struct {
	MDID         uint16
	Capabilities uint8
}

// ParseMDE parses the 3-byte data portion of a Mobility Domain Element.
func ParseMDE(b []byte) (*MDE, error) {
	if len(b) != 3 {
		return nil, ErrMDETooShort
	}
	return &MDE{
		MDID:         binary.LittleEndian.Uint16(b[0:2]),
		Capabilities: b[2],
	}, nil
}

// BuildMDE encodes m into its 3-byte element data.
func BuildMDE(m *MDE) []byte {
	out := make([]byte, 3)
	binary.LittleEndian.PutUint16(out[0:2], m.MDID)
	out[2] = m.Capabilities
	return out
}

// MDEBytesEqual reports whether two raw MDE data blobs are byte-identical, the
// comparison required by spec §8 property 4 (FT IE echo).
func MDEBytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
