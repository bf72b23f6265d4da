package wpacrypto

import (
	"crypto/aes"
	"encoding/binary"
	"errors"
)

// ErrKeyWrapLength is returned when key-wrapped data isn't a multiple of
// the 8-byte RFC 3394 semi-block size, or is too short to contain even one
// block plus the integrity check value.
var ErrKeyWrapLength = errors.New("wpacrypto: key-wrap data has invalid length")

// ErrKeyWrapIntegrity is returned when AES key-unwrap's integrity check
// value doesn't match the expected default IV, indicating the wrong KEK or
// corrupted ciphertext.
var ErrKeyWrapIntegrity = errors.New("wpacrypto: key-unwrap integrity check failed")

// defaultIV is the RFC 3394 §2.2.3.1 default initial value.
var defaultIV = [8]byte{0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6}

// KeyUnwrap decrypts data wrapped with the AES Key Wrap algorithm (RFC
// 3394), as used to deliver the GTK and IGTK within Msg3's encrypted key
// data (spec §4.5). It returns ErrKeyWrapIntegrity if the unwrapped
// plaintext's integrity check value doesn't match the RFC 3394 default.
func KeyUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 16 || len(wrapped)%8 != 0 {
		return nil, ErrKeyWrapLength
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(wrapped)/8 - 1
	var a [8]byte
	copy(a[:], wrapped[:8])

	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], wrapped[8*(i+1):8*(i+2)])
	}

	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			var tBuf [8]byte
			binary.BigEndian.PutUint64(tBuf[:], t)

			var block64 [16]byte
			for k := range a {
				block64[k] = a[k] ^ tBuf[k]
			}
			copy(block64[8:], r[i-1][:])

			var dec [16]byte
			block.Decrypt(dec[:], block64[:])

			copy(a[:], dec[:8])
			copy(r[i-1][:], dec[8:])
		}
	}

	if a != defaultIV {
		return nil, ErrKeyWrapIntegrity
	}

	out := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}

// KeyWrap encrypts data (a multiple of 8 bytes) with the AES Key Wrap
// algorithm (RFC 3394), used when the authenticator delivers a freshly
// rotated GTK/IGTK in Msg3 or a Group-Key Msg1.
func KeyWrap(kek, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%8 != 0 {
		return nil, ErrKeyWrapLength
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(data) / 8
	a := defaultIV

	r := make([][8]byte, n)
	for i := 0; i < n; i++ {
		copy(r[i][:], data[8*i:8*(i+1)])
	}

	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			var block64 [16]byte
			copy(block64[:8], a[:])
			copy(block64[8:], r[i-1][:])

			var enc [16]byte
			block.Encrypt(enc[:], block64[:])

			t := uint64(n*j + i)
			var tBuf [8]byte
			binary.BigEndian.PutUint64(tBuf[:], t)

			for k := range a {
				a[k] = enc[k] ^ tBuf[k]
			}
			copy(r[i-1][:], enc[8:])
		}
	}

	out := make([]byte, 0, 8+n*8)
	out = append(out, a[:]...)
	for i := 0; i < n; i++ {
		out = append(out, r[i][:]...)
	}
	return out, nil
}
