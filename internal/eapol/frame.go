// Package eapol implements the 802.1X EAPoL-Key frame codec and the
// 4-Way/Group Key Handshake state machines that ride on top of it (spec
// §4.5). It depends on internal/handshake for the key ladder and
// internal/ie for the RSNE comparisons required to validate Msg3.
package eapol

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned when a buffer is too short to hold a valid
// EAPoL-Key frame.
var ErrTruncated = errors.New("eapol: frame truncated")

// ErrNotEAPOLKey is returned when the 802.1X header's Type field isn't
// EAPoL-Key (3); this package only handles key frames.
var ErrNotEAPOLKey = errors.New("eapol: not an EAPoL-Key frame")

const (
	eapolVersion = 2
	eapolTypeKey = 3

	descriptorTypeRSN = 2

	fixedLen = 4 /* 802.1X header */ + 1 /* descriptor type */ + 2 /* key info */ +
		2 /* key length */ + 8 /* replay counter */ + 32 /* nonce */ + 16 /* IV */ +
		8 /* RSC */ + 8 /* reserved */ + 16 /* MIC */ + 2 /* key data length */
)

// KeyInfo is the Key Information bitfield (IEEE 802.11-2016 §12.7.2).
type KeyInfo uint16

const (
	KeyInfoDescriptorVersionMask KeyInfo = 0x0007
	KeyInfoDescriptorHMACMD5RC4  KeyInfo = 1
	KeyInfoDescriptorHMACSHA1AES KeyInfo = 2
	KeyInfoDescriptorAESCMAC     KeyInfo = 3

	KeyInfoKeyType         KeyInfo = 1 << 3 // set: pairwise, clear: group/SMK
	KeyInfoInstall         KeyInfo = 1 << 6
	KeyInfoKeyACK          KeyInfo = 1 << 7
	KeyInfoKeyMIC          KeyInfo = 1 << 8
	KeyInfoSecure          KeyInfo = 1 << 9
	KeyInfoError           KeyInfo = 1 << 10
	KeyInfoRequest         KeyInfo = 1 << 11
	KeyInfoEncryptedKeyData KeyInfo = 1 << 12
)

// DescriptorVersion returns the key descriptor version encoded in the low
// 3 bits of the Key Information field.
func (k KeyInfo) DescriptorVersion() KeyInfo { return k & KeyInfoDescriptorVersionMask }

// Frame is a decoded EAPoL-Key frame (descriptor type 2, RSN).
type Frame struct {
	KeyInfo       KeyInfo
	KeyLength     uint16
	ReplayCounter uint64
	Nonce         [32]byte
	IV            [16]byte
	RSC           [8]byte
	MIC           [16]byte
	KeyData       []byte
}

// Parse decodes an EAPoL-Key frame from its 802.1X-framed wire bytes.
func Parse(b []byte) (*Frame, error) {
	if len(b) < fixedLen {
		return nil, ErrTruncated
	}
	if b[1] != eapolTypeKey {
		return nil, ErrNotEAPOLKey
	}
	body := b[4:]
	if body[0] != descriptorTypeRSN {
		return nil, ErrNotEAPOLKey
	}

	f := &Frame{
		KeyInfo:       KeyInfo(binary.BigEndian.Uint16(body[1:3])),
		KeyLength:     binary.BigEndian.Uint16(body[3:5]),
		ReplayCounter: binary.BigEndian.Uint64(body[5:13]),
	}
	copy(f.Nonce[:], body[13:45])
	copy(f.IV[:], body[45:61])
	copy(f.RSC[:], body[61:69])
	// body[69:77] is reserved.
	copy(f.MIC[:], body[77:93])

	dataLen := binary.BigEndian.Uint16(body[93:95])
	rest := body[95:]
	if int(dataLen) > len(rest) {
		return nil, ErrTruncated
	}
	f.KeyData = append([]byte(nil), rest[:dataLen]...)

	return f, nil
}

// Build encodes f as an EAPoL-Key frame, with the MIC field set exactly as
// provided (callers compute it over this same encoding with MIC zeroed,
// via BuildForMIC, then re-encode with the real MIC).
func Build(f *Frame) []byte {
	body := make([]byte, fixedLen-4+len(f.KeyData))
	body[0] = descriptorTypeRSN
	binary.BigEndian.PutUint16(body[1:3], uint16(f.KeyInfo))
	binary.BigEndian.PutUint16(body[3:5], f.KeyLength)
	binary.BigEndian.PutUint64(body[5:13], f.ReplayCounter)
	copy(body[13:45], f.Nonce[:])
	copy(body[45:61], f.IV[:])
	copy(body[61:69], f.RSC[:])
	copy(body[77:93], f.MIC[:])
	binary.BigEndian.PutUint16(body[93:95], uint16(len(f.KeyData)))
	copy(body[95:], f.KeyData)

	out := make([]byte, 4+len(body))
	out[0] = eapolVersion
	out[1] = eapolTypeKey
	binary.BigEndian.PutUint16(out[2:4], uint16(len(body)))
	copy(out[4:], body)
	return out
}

// BuildForMIC encodes f with its MIC field zeroed, the exact bytes the Key
// MIC must be computed over (IEEE 802.11-2016 §12.7.2).
func BuildForMIC(f *Frame) []byte {
	zeroed := *f
	zeroed.MIC = [16]byte{}
	return Build(&zeroed)
}
