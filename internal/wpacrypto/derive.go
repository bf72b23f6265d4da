// Package wpacrypto implements the key-derivation, MIC and key-wrap
// adapters the 4-Way Handshake and FT key hierarchy need (spec §4.4): PTK
// derivation from a PMK and nonces, the FT PMK-R0/PMK-R1 hierarchy, MIC
// compute/verify, and AES key-unwrap for GTK/IGTK delivered in Msg3's key
// data. Underlying primitives (AES, HMAC, SHA) are stdlib/x-crypto — per
// spec §1 these are assumed available and out of scope to reimplement.
package wpacrypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/mdlayher/wind/internal/ie"
)

// ErrUnsupportedAKM is returned when a derivation is requested for an AKM
// suite this package does not implement a KDF for (e.g. SAE, out of scope
// per spec §1's Non-goals).
var ErrUnsupportedAKM = errors.New("wpacrypto: unsupported AKM suite")

// prf implements the legacy IEEE 802.11-2016 §11.6.2 PRF-X construction
// used by the original (non-SHA256) AKM suites: a sequence of HMAC-SHA1
// blocks over "A || 0 || B || i" for i = 0, 1, ....
func prf(key, a, b []byte, bits int) []byte {
	out := make([]byte, 0, (bits+7)/8+sha1.Size)
	for i := 0; len(out)*8 < bits; i++ {
		h := hmac.New(sha1.New, key)
		h.Write(a)
		h.Write([]byte{0})
		h.Write(b)
		h.Write([]byte{byte(i)})
		out = append(out, h.Sum(nil)...)
	}
	return out[:bits/8]
}

// kdfSHA256 implements the NIST SP 800-108 counter-mode KDF used by the
// SHA256 AKM suites and the FT key hierarchy (IEEE 802.11-2016 §12.7.1.6.2):
// HMAC-SHA256 over "i || label || 0 || context || length" for counter i =
// 1, 2, ....
func kdfSHA256(key []byte, label string, context []byte, bits int) []byte {
	out := make([]byte, 0, (bits+7)/8+sha256.Size)
	var lengthBuf [2]byte
	binary.LittleEndian.PutUint16(lengthBuf[:], uint16(bits))

	for i := uint16(1); len(out)*8 < bits; i++ {
		h := hmac.New(sha256.New, key)
		var ctr [2]byte
		binary.LittleEndian.PutUint16(ctr[:], i)
		h.Write(ctr[:])
		h.Write([]byte(label))
		h.Write([]byte{0})
		h.Write(context)
		h.Write(lengthBuf[:])
		out = append(out, h.Sum(nil)...)
	}
	return out[:bits/8]
}

// usesSHA256KDF reports whether akm derives keys via the SP800-108 KDF
// (IEEE 802.11-2016 §11.6.1.7.2) rather than the legacy PRF.
func usesSHA256KDF(akm ie.AKM) bool {
	switch akm {
	case ie.AKM8021XSHA256, ie.AKMPSKSHA256, ie.AKMFT8021X, ie.AKMFTPSK:
		return true
	default:
		return false
	}
}

// PTK holds the derived Pairwise Transient Key, split into its KCK/KEK/TK
// roles (IEEE 802.11-2016 §12.7.1.3).
type PTK struct {
	KCK []byte // Key Confirmation Key, used for MIC.
	KEK []byte // Key Encryption Key, used to unwrap GTK/IGTK.
	TK  []byte // Temporal Key, installed as the pairwise cipher key.
}

// kckLen/kekLen are fixed at 16 bytes for every AKM this package supports;
// TK length depends on the negotiated pairwise cipher.
const kckLen, kekLen = 16, 16

// DerivePTK derives the PTK from pmk, the two station addresses, and the
// two nonces, per IEEE 802.11-2016 §12.7.1.3. The address and nonce order
// is normalized (min before max) as the standard requires, so callers don't
// need to pre-sort.
func DerivePTK(akm ie.AKM, pmk, aa, spa, anonce, snonce []byte, tkLen int) (*PTK, error) {
	minAddr, maxAddr := minMax(aa, spa)
	minNonce, maxNonce := minMax(anonce, snonce)

	b := make([]byte, 0, len(minAddr)+len(maxAddr)+len(minNonce)+len(maxNonce))
	b = append(b, minAddr...)
	b = append(b, maxAddr...)
	b = append(b, minNonce...)
	b = append(b, maxNonce...)

	total := (kckLen + kekLen + tkLen) * 8

	var raw []byte
	if usesSHA256KDF(akm) {
		raw = kdfSHA256(pmk, "Pairwise key expansion", b, total)
	} else {
		a := []byte("Pairwise key expansion")
		raw = prf(pmk, a, b, total)
	}

	return &PTK{
		KCK: raw[0:kckLen],
		KEK: raw[kckLen : kckLen+kekLen],
		TK:  raw[kckLen+kekLen : kckLen+kekLen+tkLen],
	}, nil
}

func minMax(a, b []byte) (lo, hi []byte) {
	if bytes.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}

// MIC computes the Key MIC over b using the KCK, selecting HMAC-SHA1-128 or
// HMAC-SHA256-128 to match the AKM's KDF, per IEEE 802.11-2016 §12.7.2.
func MIC(akm ie.AKM, kck, b []byte) []byte {
	var mac []byte
	if usesSHA256KDF(akm) {
		h := hmac.New(sha256.New, kck)
		h.Write(b)
		mac = h.Sum(nil)
	} else {
		h := hmac.New(sha1.New, kck)
		h.Write(b)
		mac = h.Sum(nil)
	}
	return mac[:16]
}

// VerifyMIC recomputes the MIC over b and reports whether it matches want,
// using a constant-time comparison.
func VerifyMIC(akm ie.AKM, kck, b, want []byte) bool {
	got := MIC(akm, kck, b)
	return hmac.Equal(got, want)
}

// DerivePMKR0 derives the FT first-level PMK and its name, per IEEE
// 802.11-2016 §12.7.1.6.3. ssid/mdid/r0khid/staAddr are the inputs to the
// KDF context; xxkey is the MSK (802.1X) or PSK (FT-PSK).
func DerivePMKR0(xxkey, ssid []byte, mdid uint16, r0khid, staAddr []byte) (pmkR0, pmkR0Name []byte) {
	var mdidBuf [2]byte
	binary.LittleEndian.PutUint16(mdidBuf[:], mdid)

	ctx := make([]byte, 0, len(ssid)+2+1+len(r0khid)+6)
	ctx = append(ctx, ssid...)
	ctx = append(ctx, mdidBuf[:]...)
	ctx = append(ctx, byte(len(r0khid)))
	ctx = append(ctx, r0khid...)
	ctx = append(ctx, staAddr...)

	pmkR0 = kdfSHA256(xxkey, "FT-R0", ctx, 256)

	nameCtx := append(append([]byte(nil), r0khid...), staAddr...)
	pmkR0Name = kdfSHA256(pmkR0, "FT-R0N", nameCtx, 128)
	return pmkR0, pmkR0Name
}

// DerivePMKR1 derives the FT second-level PMK and its name from a PMK-R0,
// per IEEE 802.11-2016 §12.7.1.6.4.
func DerivePMKR1(pmkR0, r1khid, s1khid []byte) (pmkR1, pmkR1Name []byte) {
	ctx := append(append([]byte(nil), r1khid...), s1khid...)
	pmkR1 = kdfSHA256(pmkR0, "FT-R1", ctx, 256)

	nameCtx := append(append([]byte(nil), r1khid...), s1khid...)
	pmkR1Name = kdfSHA256(pmkR1, "FT-R1N", nameCtx, 128)
	return pmkR1, pmkR1Name
}
