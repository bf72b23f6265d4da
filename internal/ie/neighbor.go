package ie

import "errors"

// ErrNeighborReportTooShort is returned when a Neighbor Report element is
// shorter than its fixed body.
var ErrNeighborReportTooShort = errors.New("ie: neighbor report truncated")

// NeighborReport is the parsed fixed portion of an 802.11k Neighbor Report
// element (IEEE 802.11-2016 §9.4.2.36), used by the supplemented roaming-
// candidate selection path (SPEC_FULL §12): after an RSSI-low event the STA
// FSM ranks reported neighbors sharing the connection's mobility domain as
// RoamingCandidate events.
type NeighborReport struct {
	BSSID        [6]byte
	BSSIDInfo    uint32
	OperatingClass uint8
	Channel      uint8
	PHYType      uint8
}

// ParseNeighborReport parses the fixed 13-byte body of a Neighbor Report
// element; any trailing optional subelements are ignored.
func ParseNeighborReport(b []byte) (*NeighborReport, error) {
	if len(b) < 13 {
		return nil, ErrNeighborReportTooShort
	}

	nr := &NeighborReport{}
	copy(nr.BSSID[:], b[0:6])
	nr.BSSIDInfo = uint32(b[6]) | uint32(b[7])<<8 | uint32(b[8])<<16 | uint32(b[9])<<24
	nr.OperatingClass = b[10]
	nr.Channel = b[11]
	nr.PHYType = b[12]
	return nr, nil
}
