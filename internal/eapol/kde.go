package eapol

import (
	"encoding/binary"
	"errors"
)

// ErrKDETruncated is returned when a Key Data Encapsulation sub-element (or
// the RSNE it wraps) is too short to parse.
var ErrKDETruncated = errors.New("eapol: key data element truncated")

// kdeOUI is the 00:0F:AC OUI prefix used by every standard KDE, per IEEE
// 802.11-2016 §12.7.2.
var kdeOUI = [3]byte{0x00, 0x0f, 0xac}

const (
	kdeDataTypeGTK  = 1
	kdeDataTypeMAC  = 3
	kdeDataTypePMKID = 4
	kdeDataTypeIGTK = 9

	elementIDVendorSpecific = 0xdd
	elementIDRSN            = 0x30
)

// KeyData is the decoded contents of an EAPoL-Key frame's Key Data field:
// the RSNE it carries (Msg2/Msg3; RSNE holds the element body with tag and
// length stripped) plus any GTK/IGTK KDEs (Msg3).
type KeyData struct {
	RSNE []byte
	GTK  *GTKKDE
	IGTK *IGTKKDE
}

// GTKKDE is a parsed GTK Key Data Encapsulation sub-element.
type GTKKDE struct {
	KeyID int
	Tx    bool
	Key   []byte
}

// IGTKKDE is a parsed IGTK Key Data Encapsulation sub-element.
type IGTKKDE struct {
	KeyID uint16
	IPN   [6]byte
	Key   []byte
}

// ParseKeyData walks the (possibly still AES-key-wrapped-and-already-
// unwrapped) Key Data field, extracting the RSNE and any GTK/IGTK KDEs it
// contains. Unknown vendor-specific sub-elements and non-RSN information
// elements are skipped, matching the teacher's tolerant IE-walking style.
func ParseKeyData(b []byte) (*KeyData, error) {
	kd := &KeyData{}

	for len(b) > 0 {
		if len(b) < 2 {
			return nil, ErrKDETruncated
		}
		id := b[0]
		length := int(b[1])
		if len(b) < 2+length {
			return nil, ErrKDETruncated
		}
		data := b[2 : 2+length]
		rest := b[2+length:]

		switch id {
		case elementIDRSN:
			kd.RSNE = append([]byte(nil), data...)
		case elementIDVendorSpecific:
			if len(data) < 4 || [3]byte{data[0], data[1], data[2]} != kdeOUI {
				break
			}
			dataType := data[3]
			payload := data[4:]
			switch dataType {
			case kdeDataTypeGTK:
				gtk, err := parseGTKKDE(payload)
				if err != nil {
					return nil, err
				}
				kd.GTK = gtk
			case kdeDataTypeIGTK:
				igtk, err := parseIGTKKDE(payload)
				if err != nil {
					return nil, err
				}
				kd.IGTK = igtk
			}
		}

		b = rest
	}

	return kd, nil
}

func parseGTKKDE(b []byte) (*GTKKDE, error) {
	if len(b) < 2 {
		return nil, ErrKDETruncated
	}
	return &GTKKDE{
		KeyID: int(b[0] & 0x03),
		Tx:    b[0]&0x04 != 0,
		Key:   append([]byte(nil), b[2:]...),
	}, nil
}

func parseIGTKKDE(b []byte) (*IGTKKDE, error) {
	if len(b) < 8 {
		return nil, ErrKDETruncated
	}
	igtk := &IGTKKDE{KeyID: binary.LittleEndian.Uint16(b[0:2])}
	copy(igtk.IPN[:], b[2:8])
	igtk.Key = append([]byte(nil), b[8:]...)
	return igtk, nil
}

// BuildGTKKDE encodes a GTK Key Data Encapsulation sub-element.
func BuildGTKKDE(keyID int, tx bool, key []byte) []byte {
	flags := byte(keyID & 0x03)
	if tx {
		flags |= 0x04
	}
	payload := append([]byte{flags, 0}, key...)
	return buildVendorKDE(kdeDataTypeGTK, payload)
}

// BuildIGTKKDE encodes an IGTK Key Data Encapsulation sub-element.
func BuildIGTKKDE(keyID uint16, ipn [6]byte, key []byte) []byte {
	payload := make([]byte, 0, 8+len(key))
	var idBuf [2]byte
	binary.LittleEndian.PutUint16(idBuf[:], keyID)
	payload = append(payload, idBuf[:]...)
	payload = append(payload, ipn[:]...)
	payload = append(payload, key...)
	return buildVendorKDE(kdeDataTypeIGTK, payload)
}

func buildVendorKDE(dataType byte, payload []byte) []byte {
	data := make([]byte, 0, 4+len(payload))
	data = append(data, kdeOUI[:]...)
	data = append(data, dataType)
	data = append(data, payload...)

	out := make([]byte, 0, 2+len(data))
	out = append(out, elementIDVendorSpecific, byte(len(data)))
	out = append(out, data...)
	return out
}

// BuildRSNInKeyData wraps a raw RSNE buffer (tag+length+body, as produced by
// ie.Build(ie.TagRSN, ...)) for inclusion in Key Data — it's already in the
// right wire form, so this is an identity helper kept for readability at
// call sites.
func BuildRSNInKeyData(rsne []byte) []byte {
	return append([]byte(nil), rsne...)
}
