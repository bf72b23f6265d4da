package ie

import (
	"encoding/binary"
	"errors"
)

// ErrWSCTruncated is returned when a WSC TLV stream is too short for a
// declared length.
var ErrWSCTruncated = errors.New("ie: WSC TLV truncated")

// WSC (Wi-Fi Simple Configuration) attribute IDs used by the push-button
// enrollment flow. Values per the Wi-Fi Alliance WSC 2.0 specification.
const (
	wscAttrVersion        = 0x104a
	wscAttrVersion2       = 0x1044
	wscAttrWiFiProtSetup  = 0x1012 // Device Password ID
	wscAttrRequestType    = 0x103a
	wscAttrResponseType   = 0x103b
	wscAttrUUIDE          = 0x1047
	wscAttrSelRegistrar   = 0x1041
	wscAttrSelRegConfig   = 0x1053
	wscAttrSSID           = 0x1045
	wscAttrAuthTypeFlags  = 0x1004
	wscAttrEncrTypeFlags  = 0x1010
	wscAttrNetworkKey     = 0x1027
	wscAttrMACAddress     = 0x1020
	wscAttrRFBands        = 0x103c
)

// DevicePasswordID values, WSC 2.0 §12.
const (
	DevicePasswordIDDefault    = 0x0000
	DevicePasswordIDPushButton = 0x0004
)

// WSCProbeRequest is the subset of WSC TLV attributes carried in a Probe
// Request during PBC discovery.
type WSCProbeRequest struct {
	Version         uint8
	UUID            [16]byte
	DevicePasswordID uint16
	RequestType     uint8
}

// WSCSelectedRegistrar is the subset of WSC TLV attributes an AP advertises
// in Beacon/Probe Response/Association Response while a PBC session is
// active.
type WSCSelectedRegistrar struct {
	Version          uint8
	SelectedRegistrar bool
	DevicePasswordID  uint16
	SSID              string
	AuthTypeFlags     uint16
	EncrTypeFlags     uint16
	NetworkKey        []byte
}

// tlv is a single WSC attribute: 2-byte ID, 2-byte length, value.
type tlv struct {
	id   uint16
	data []byte
}

func parseTLVs(b []byte) ([]tlv, error) {
	var out []tlv
	pos := 0
	for pos < len(b) {
		if len(b)-pos < 4 {
			return nil, ErrWSCTruncated
		}
		id := binary.BigEndian.Uint16(b[pos : pos+2])
		l := int(binary.BigEndian.Uint16(b[pos+2 : pos+4]))
		pos += 4
		if len(b)-pos < l {
			return nil, ErrWSCTruncated
		}
		out = append(out, tlv{id: id, data: b[pos : pos+l]})
		pos += l
	}
	return out, nil
}

func buildTLV(id uint16, data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(out[0:2], id)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(data)))
	copy(out[4:], data)
	return out
}

// ParseWSCTLV parses the data portion of a vendor-specific WSC element
// (after the 00-50-F2-04 vendor OUI+type prefix has been stripped) into a
// WSCProbeRequest. Attributes this package doesn't model are skipped.
func ParseWSCTLV(b []byte) (*WSCProbeRequest, error) {
	tlvs, err := parseTLVs(b)
	if err != nil {
		return nil, err
	}

	pr := &WSCProbeRequest{}
	for _, t := range tlvs {
		switch t.id {
		case wscAttrVersion:
			if len(t.data) == 1 {
				pr.Version = t.data[0]
			}
		case wscAttrUUIDE:
			if len(t.data) == 16 {
				copy(pr.UUID[:], t.data)
			}
		case wscAttrWiFiProtSetup:
			if len(t.data) == 2 {
				pr.DevicePasswordID = binary.BigEndian.Uint16(t.data)
			}
		case wscAttrRequestType:
			if len(t.data) == 1 {
				pr.RequestType = t.data[0]
			}
		}
	}
	return pr, nil
}

// vendorWSCPrefix is the 4-byte Microsoft/WFA WSC vendor-specific element
// prefix (OUI 00-50-F2, vendor type 04).
var vendorWSCPrefix = []byte{0x00, 0x50, 0xf2, 0x04}

// BuildWSCProbeRequest builds the full vendor-specific IE (tag, length,
// vendor prefix, TLVs) advertising PBC push-button discovery.
func BuildWSCProbeRequest(pr *WSCProbeRequest) []byte {
	var body []byte
	body = append(body, buildTLV(wscAttrVersion, []byte{pr.Version})...)
	body = append(body, buildTLV(wscAttrRequestType, []byte{pr.RequestType})...)
	body = append(body, buildTLV(wscAttrUUIDE, pr.UUID[:])...)
	var dpid [2]byte
	binary.BigEndian.PutUint16(dpid[:], pr.DevicePasswordID)
	body = append(body, buildTLV(wscAttrWiFiProtSetup, dpid[:])...)

	data := append(append([]byte(nil), vendorWSCPrefix...), body...)
	return Build(TagVendorSpecific, data)
}

// BuildWSCBeacon builds the vendor-specific IE a soft-AP places in its
// Beacon/Probe Response tail while in active PBC mode, advertising the
// Selected Registrar and Device Password ID sub-elements (spec §4.7's
// "Beacon updates" paragraph).
func BuildWSCBeacon(sr *WSCSelectedRegistrar) []byte {
	var body []byte
	body = append(body, buildTLV(wscAttrVersion, []byte{sr.Version})...)

	selReg := byte(0)
	if sr.SelectedRegistrar {
		selReg = 1
	}
	body = append(body, buildTLV(wscAttrSelRegistrar, []byte{selReg})...)

	var dpid [2]byte
	binary.BigEndian.PutUint16(dpid[:], sr.DevicePasswordID)
	body = append(body, buildTLV(wscAttrWiFiProtSetup, dpid[:])...)

	data := append(append([]byte(nil), vendorWSCPrefix...), body...)
	return Build(TagVendorSpecific, data)
}

// BuildWSCAssociationResponse builds the vendor-specific IE carrying the
// network credential delivered to a PBC enrollee upon successful
// association (spec §4.7's WSC Push-Button mode paragraph).
func BuildWSCAssociationResponse(sr *WSCSelectedRegistrar) []byte {
	var body []byte
	body = append(body, buildTLV(wscAttrVersion, []byte{sr.Version})...)
	body = append(body, buildTLV(wscAttrSSID, []byte(sr.SSID))...)

	var auth, enc [2]byte
	binary.BigEndian.PutUint16(auth[:], sr.AuthTypeFlags)
	binary.BigEndian.PutUint16(enc[:], sr.EncrTypeFlags)
	body = append(body, buildTLV(wscAttrAuthTypeFlags, auth[:])...)
	body = append(body, buildTLV(wscAttrEncrTypeFlags, enc[:])...)
	body = append(body, buildTLV(wscAttrNetworkKey, sr.NetworkKey)...)

	data := append(append([]byte(nil), vendorWSCPrefix...), body...)
	return Build(TagVendorSpecific, data)
}

// IsWSCElement reports whether a raw vendor-specific element's data carries
// the WFA WSC vendor prefix, and if so returns the TLV body.
func IsWSCElement(data []byte) ([]byte, bool) {
	if len(data) < 4 {
		return nil, false
	}
	for i, b := range vendorWSCPrefix {
		if data[i] != b {
			return nil, false
		}
	}
	return data[4:], true
}
