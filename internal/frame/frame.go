// Package frame builds and parses 802.11 management MPDU headers and
// bodies: protocol version 0, type Management, the addressed subtype,
// followed by subtype-specific fixed fields and the IE section (spec §4.2).
package frame

import (
	"encoding/binary"
	"errors"
	"net"
)

// ErrTruncated is returned when a buffer is too short to hold a management
// frame header or a subtype's fixed fields.
var ErrTruncated = errors.New("frame: truncated management frame")

// Subtype identifies a management frame subtype, IEEE 802.11-2016 Table
// 9-1.
type Subtype uint8

const (
	SubtypeAssociationRequest    Subtype = 0x0
	SubtypeAssociationResponse   Subtype = 0x1
	SubtypeReassociationRequest  Subtype = 0x2
	SubtypeReassociationResponse Subtype = 0x3
	SubtypeProbeRequest          Subtype = 0x4
	SubtypeProbeResponse         Subtype = 0x5
	SubtypeBeacon                Subtype = 0x8
	SubtypeDisassociation        Subtype = 0xa
	SubtypeAuthentication        Subtype = 0xb
	SubtypeDeauthentication      Subtype = 0xc
	SubtypeAction                Subtype = 0xd
)

const (
	typeManagement = 0x0
	protoVersion   = 0x0
)

// Header is the common part of every management MPDU: frame control's
// type/subtype, duration (always 0; the driver computes it), the three
// addresses and a driver-filled sequence number.
type Header struct {
	Subtype Subtype
	DA      net.HardwareAddr
	SA      net.HardwareAddr
	BSSID   net.HardwareAddr
}

// BuildHeader encodes the 24-byte IEEE 802.11 management MAC header. The
// sequence-control field is left zero; the driver fills it in.
func BuildHeader(h Header) []byte {
	out := make([]byte, 24)

	fc := uint16(protoVersion) | uint16(typeManagement)<<2 | uint16(h.Subtype)<<4
	binary.LittleEndian.PutUint16(out[0:2], fc)
	// Duration left zero.
	copy(out[4:10], h.DA)
	copy(out[10:16], h.SA)
	copy(out[16:22], h.BSSID)
	// Sequence control left zero.

	return out
}

// ParseHeader parses the 24-byte management MAC header from b, returning
// the header and the remaining subtype-specific body.
func ParseHeader(b []byte) (Header, []byte, error) {
	if len(b) < 24 {
		return Header{}, nil, ErrTruncated
	}

	fc := binary.LittleEndian.Uint16(b[0:2])
	frameType := (fc >> 2) & 0x3
	if frameType != typeManagement {
		return Header{}, nil, ErrTruncated
	}

	h := Header{
		Subtype: Subtype((fc >> 4) & 0xf),
		DA:      net.HardwareAddr(append([]byte(nil), b[4:10]...)),
		SA:      net.HardwareAddr(append([]byte(nil), b[10:16]...)),
		BSSID:   net.HardwareAddr(append([]byte(nil), b[16:22]...)),
	}

	return h, b[24:], nil
}

// AuthAlgorithm identifies the authentication algorithm number carried in
// an Authentication frame's fixed fields, IEEE 802.11-2016 Table 9-40.
type AuthAlgorithm uint16

const (
	AuthAlgorithmOpenSystem AuthAlgorithm = 0
	AuthAlgorithmSharedKey  AuthAlgorithm = 1
	AuthAlgorithmFT         AuthAlgorithm = 2
)

// AuthFixed is the fixed-field portion of an Authentication frame: algorithm
// number, transaction sequence number, and status code (zero on a request).
type AuthFixed struct {
	Algorithm   AuthAlgorithm
	Transaction uint16
	Status      StatusCode
}

// BuildAuthFixed encodes the 6-byte Authentication frame fixed fields.
func BuildAuthFixed(f AuthFixed) []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint16(out[0:2], uint16(f.Algorithm))
	binary.LittleEndian.PutUint16(out[2:4], f.Transaction)
	binary.LittleEndian.PutUint16(out[4:6], uint16(f.Status))
	return out
}

// ParseAuthFixed parses the 6-byte Authentication frame fixed fields,
// returning the fields and the remaining IE section.
func ParseAuthFixed(b []byte) (AuthFixed, []byte, error) {
	if len(b) < 6 {
		return AuthFixed{}, nil, ErrTruncated
	}
	f := AuthFixed{
		Algorithm:   AuthAlgorithm(binary.LittleEndian.Uint16(b[0:2])),
		Transaction: binary.LittleEndian.Uint16(b[2:4]),
		Status:      StatusCode(binary.LittleEndian.Uint16(b[4:6])),
	}
	return f, b[6:], nil
}

// AssocReqFixed is the fixed-field portion of an (Re)Association Request.
type AssocReqFixed struct {
	Capability     uint16
	ListenInterval uint16
	// CurrentAPAddress is only present in a Reassociation Request.
	CurrentAPAddress net.HardwareAddr
}

// BuildAssocReqFixed encodes an Association Request's fixed fields when
// reassoc is false, or a Reassociation Request's when true.
func BuildAssocReqFixed(f AssocReqFixed, reassoc bool) []byte {
	size := 4
	if reassoc {
		size += 6
	}
	out := make([]byte, size)
	binary.LittleEndian.PutUint16(out[0:2], f.Capability)
	binary.LittleEndian.PutUint16(out[2:4], f.ListenInterval)
	if reassoc {
		copy(out[4:10], f.CurrentAPAddress)
	}
	return out
}

// ParseAssocReqFixed parses an (Re)Association Request's fixed fields.
func ParseAssocReqFixed(b []byte, reassoc bool) (AssocReqFixed, []byte, error) {
	size := 4
	if reassoc {
		size += 6
	}
	if len(b) < size {
		return AssocReqFixed{}, nil, ErrTruncated
	}

	f := AssocReqFixed{
		Capability:     binary.LittleEndian.Uint16(b[0:2]),
		ListenInterval: binary.LittleEndian.Uint16(b[2:4]),
	}
	if reassoc {
		f.CurrentAPAddress = net.HardwareAddr(append([]byte(nil), b[4:10]...))
	}
	return f, b[size:], nil
}

// AssocRespFixed is the fixed-field portion of an (Re)Association Response.
type AssocRespFixed struct {
	Capability uint16
	Status     StatusCode
	AID        uint16
}

// BuildAssocRespFixed encodes the 6-byte (Re)Association Response fixed
// fields. AID is sent with its two reserved high bits set, per IEEE
// 802.11-2016 §9.4.1.8.
func BuildAssocRespFixed(f AssocRespFixed) []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint16(out[0:2], f.Capability)
	binary.LittleEndian.PutUint16(out[2:4], uint16(f.Status))
	binary.LittleEndian.PutUint16(out[4:6], f.AID|0xc000)
	return out
}

// ParseAssocRespFixed parses the 6-byte (Re)Association Response fixed
// fields.
func ParseAssocRespFixed(b []byte) (AssocRespFixed, []byte, error) {
	if len(b) < 6 {
		return AssocRespFixed{}, nil, ErrTruncated
	}
	f := AssocRespFixed{
		Capability: binary.LittleEndian.Uint16(b[0:2]),
		Status:     StatusCode(binary.LittleEndian.Uint16(b[2:4])),
		AID:        binary.LittleEndian.Uint16(b[4:6]) &^ 0xc000,
	}
	return f, b[6:], nil
}

// DeauthFixed / DisassocFixed are the fixed-field portion of a
// Deauthentication/Disassociation frame: a single reason code.
type DeauthFixed struct{ Reason ReasonCode }

// BuildDeauthFixed encodes the 2-byte reason code fixed field shared by
// Deauthentication and Disassociation frames.
func BuildDeauthFixed(f DeauthFixed) []byte {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, uint16(f.Reason))
	return out
}

// ParseDeauthFixed parses the 2-byte reason code fixed field.
func ParseDeauthFixed(b []byte) (DeauthFixed, error) {
	if len(b) < 2 {
		return DeauthFixed{}, ErrTruncated
	}
	return DeauthFixed{Reason: ReasonCode(binary.LittleEndian.Uint16(b[0:2]))}, nil
}
