package ie

import (
	"encoding/binary"
	"errors"
)

// Cipher identifies a pairwise/group cipher suite selector's SMK/cipher
// type octet (the low byte of the 4-byte OUI+type suite selector).
type Cipher uint8

// Cipher suite types defined by IEEE 802.11-2016 Table 9-131, under the
// default 00-0F-AC OUI.
const (
	CipherNone        Cipher = 0
	CipherWEP40       Cipher = 1
	CipherTKIP        Cipher = 2
	CipherCCMP        Cipher = 4
	CipherWEP104      Cipher = 5
	CipherBIPCMAC128  Cipher = 6
	CipherGCMP128     Cipher = 8
	CipherGCMP256     Cipher = 9
	CipherCCMP256     Cipher = 10
	CipherBIPGMAC128  Cipher = 11
	CipherBIPGMAC256  Cipher = 12
	CipherBIPCMAC256  Cipher = 13
)

// CipherBit turns a Cipher into the corresponding bit of a pairwise-cipher
// bitmap, as used by RSNE.PairwiseBitmap.
func CipherBit(c Cipher) uint32 { return 1 << uint32(c) }

// AKM identifies a 802.1X/PSK key-management suite's type octet.
type AKM uint8

// AKM suite types defined by IEEE 802.11-2016 Table 9-133, under the
// default 00-0F-AC OUI.
const (
	AKMNone         AKM = 0
	AKM8021X        AKM = 1
	AKMPSK          AKM = 2
	AKMFT8021X      AKM = 3
	AKMFTPSK        AKM = 4
	AKM8021XSHA256  AKM = 5
	AKMPSKSHA256    AKM = 6
	AKMSAE          AKM = 8
	AKMFTSAE        AKM = 9
	AKMOWE          AKM = 18
)

var ouiDefault = [3]byte{0x00, 0x0f, 0xac}

var (
	ErrRSNTooShort       = errors.New("ie: RSNE truncated")
	ErrRSNTooLarge       = errors.New("ie: RSNE longer than an element may be")
	ErrRSNBadVersion     = errors.New("ie: RSNE has unsupported version")
	ErrRSNBadCount       = errors.New("ie: RSNE suite count runs past element")
)

// RSNE is the parsed form of an RSN Information Element (IEEE 802.11-2016
// §9.4.2.24). Cipher and AKM suites are recorded both as bitmaps (for
// subset/pop-count checks) and as ordered lists (because build must
// reproduce the exact advertised order for byte-compare with a peer).
type RSNE struct {
	Version uint16

	GroupCipher     Cipher
	PairwiseList    []Cipher
	PairwiseBitmap  uint32
	AKMList         []AKM
	AKMBitmap       uint32

	Capabilities uint16

	PMKIDs [][16]byte

	GroupMgmtCipher    Cipher
	HasGroupMgmtCipher bool
}

// RSN capability bits, IEEE 802.11-2016 Figure 9-257.
const (
	RSNCapPreAuth        = 1 << 0
	RSNCapNoPairwise     = 1 << 1
	RSNCapMFPRequired    = 1 << 6
	RSNCapMFPCapable     = 1 << 7
	RSNCapPeerKeyEnabled = 1 << 9
	RSNCapSPPAMSDUCap    = 1 << 10
	RSNCapSPPAMSDURequired = 1 << 11
)

// ParseRSNE parses the data portion (tag/length stripped) of an RSN element.
func ParseRSNE(b []byte) (*RSNE, error) {
	if len(b) > 253 {
		return nil, ErrRSNTooLarge
	}
	if len(b) < 8 {
		return nil, ErrRSNTooShort
	}

	r := &RSNE{}
	r.Version = binary.LittleEndian.Uint16(b[0:2])
	pos := 2

	gc, err := parseSuite(b[pos : pos+4])
	if err != nil {
		return nil, err
	}
	r.GroupCipher = Cipher(gc)
	pos += 4

	if len(b) < pos+2 {
		return nil, ErrRSNTooShort
	}
	pc := int(binary.LittleEndian.Uint16(b[pos : pos+2]))
	pos += 2
	if len(b) < pos+4*pc {
		return nil, ErrRSNBadCount
	}
	for i := 0; i < pc; i++ {
		c, err := parseSuite(b[pos : pos+4])
		if err != nil {
			return nil, err
		}
		r.PairwiseList = append(r.PairwiseList, Cipher(c))
		r.PairwiseBitmap |= CipherBit(Cipher(c))
		pos += 4
	}

	if len(b) < pos+2 {
		return r, nil
	}
	ac := int(binary.LittleEndian.Uint16(b[pos : pos+2]))
	pos += 2
	if len(b) < pos+4*ac {
		return nil, ErrRSNBadCount
	}
	for i := 0; i < ac; i++ {
		a, err := parseSuite(b[pos : pos+4])
		if err != nil {
			return nil, err
		}
		r.AKMList = append(r.AKMList, AKM(a))
		r.AKMBitmap |= 1 << uint32(a)
		pos += 4
	}

	if len(b) >= pos+2 {
		r.Capabilities = binary.LittleEndian.Uint16(b[pos : pos+2])
		pos += 2
	}

	if len(b) >= pos+2 {
		pc := int(binary.LittleEndian.Uint16(b[pos : pos+2]))
		pos += 2
		if len(b) < pos+16*pc {
			return nil, ErrRSNBadCount
		}
		for i := 0; i < pc; i++ {
			var id [16]byte
			copy(id[:], b[pos:pos+16])
			r.PMKIDs = append(r.PMKIDs, id)
			pos += 16
		}
	}

	if len(b) >= pos+4 {
		gm, err := parseSuite(b[pos : pos+4])
		if err == nil {
			r.GroupMgmtCipher = Cipher(gm)
			r.HasGroupMgmtCipher = true
		}
	}

	return r, nil
}

// parseSuite parses a 4-byte OUI+type suite selector, returning its type
// octet. Vendor (non 00-0F-AC) OUIs are accepted; the caller that cares about
// the distinction inspects the high bytes separately via raw re-parse.
func parseSuite(b []byte) (uint8, error) {
	if len(b) != 4 {
		return 0, ErrRSNTooShort
	}
	return b[3], nil
}

func buildSuite(oui [3]byte, typ uint8) []byte {
	return []byte{oui[0], oui[1], oui[2], typ}
}

// BuildRSNE produces the deterministic byte encoding of r, suitable for
// byte-compare against a peer-advertised RSNE (aside from any PMKID list,
// which callers that need tolerant compare should strip via IEsMatch).
func BuildRSNE(r *RSNE) []byte {
	out := make([]byte, 0, 32)
	var tmp [2]byte

	binary.LittleEndian.PutUint16(tmp[:], r.Version)
	out = append(out, tmp[:]...)

	out = append(out, buildSuite(ouiDefault, uint8(r.GroupCipher))...)

	binary.LittleEndian.PutUint16(tmp[:], uint16(len(r.PairwiseList)))
	out = append(out, tmp[:]...)
	for _, c := range r.PairwiseList {
		out = append(out, buildSuite(ouiDefault, uint8(c))...)
	}

	binary.LittleEndian.PutUint16(tmp[:], uint16(len(r.AKMList)))
	out = append(out, tmp[:]...)
	for _, a := range r.AKMList {
		out = append(out, buildSuite(ouiDefault, uint8(a))...)
	}

	binary.LittleEndian.PutUint16(tmp[:], r.Capabilities)
	out = append(out, tmp[:]...)

	if len(r.PMKIDs) > 0 || r.HasGroupMgmtCipher {
		binary.LittleEndian.PutUint16(tmp[:], uint16(len(r.PMKIDs)))
		out = append(out, tmp[:]...)
		for _, id := range r.PMKIDs {
			out = append(out, id[:]...)
		}
	}

	if r.HasGroupMgmtCipher {
		out = append(out, buildSuite(ouiDefault, uint8(r.GroupMgmtCipher))...)
	}

	return out
}

// MatchOptions controls the tolerance of IEsMatch.
type MatchOptions struct {
	// IgnorePMKIDs drops the PMKID list from both sides before comparing,
	// as required when the supplicant checks Msg3's RSNE against the
	// beacon RSNE (spec §4.5, §8 property 5).
	IgnorePMKIDs bool
}

// IEsMatch compares two raw RSNE byte blobs (data-only, tag/length
// stripped) for semantic equality, per the tolerance requested in opts.
// A parse failure on either side is never a match.
func IEsMatch(a, b []byte, opts MatchOptions) bool {
	ra, err := ParseRSNE(a)
	if err != nil {
		return false
	}
	rb, err := ParseRSNE(b)
	if err != nil {
		return false
	}

	if opts.IgnorePMKIDs {
		ra.PMKIDs = nil
		rb.PMKIDs = nil
	}

	return rsneEqual(ra, rb)
}

func rsneEqual(a, b *RSNE) bool {
	if a.Version != b.Version || a.GroupCipher != b.GroupCipher || a.Capabilities != b.Capabilities {
		return false
	}
	if a.HasGroupMgmtCipher != b.HasGroupMgmtCipher || a.GroupMgmtCipher != b.GroupMgmtCipher {
		return false
	}
	if !cipherListEqual(a.PairwiseList, b.PairwiseList) {
		return false
	}
	if !akmListEqual(a.AKMList, b.AKMList) {
		return false
	}
	if len(a.PMKIDs) != len(b.PMKIDs) {
		return false
	}
	for i := range a.PMKIDs {
		if a.PMKIDs[i] != b.PMKIDs[i] {
			return false
		}
	}
	return true
}

func cipherListEqual(a, b []Cipher) bool {
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

func akmListEqual(a, b []AKM) bool {
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

// PopCount returns the number of set bits in a pairwise-cipher bitmap, used
// by the AP FSM to require exactly one chosen pairwise cipher (spec §4.7).
func PopCount(bitmap uint32) int {
	n := 0
	for bitmap != 0 {
		bitmap &= bitmap - 1
		n++
	}
	return n
}

// SubsetOf reports whether every bit set in sub is also set in super.
func SubsetOf(sub, super uint32) bool {
	return sub&^super == 0
}
