package wpacrypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestKeyWrapRFC3394TestVector(t *testing.T) {
	// RFC 3394 §4.1: wrap 128 bits of key data with a 128-bit KEK.
	kek, _ := hex.DecodeString("000102030405060708090A0B0C0D0E0F")
	data, _ := hex.DecodeString("00112233445566778899AABBCCDDEEFF")
	want, _ := hex.DecodeString("1FA68B0A8112B447AEF34BD8FB5A7B829D3E862371D2CFE5")

	got, err := KeyWrap(kek, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("wrap mismatch:\n got: %x\nwant: %x", got, want)
	}
}

func TestKeyUnwrapRoundTrip(t *testing.T) {
	kek := bytes.Repeat([]byte{0x5a}, 16)
	gtk := bytes.Repeat([]byte{0x7e}, 16)

	wrapped, err := KeyWrap(kek, gtk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := KeyUnwrap(kek, wrapped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, gtk) {
		t.Fatalf("unwrap mismatch:\n got: %x\nwant: %x", got, gtk)
	}
}

func TestKeyUnwrapWrongKEKFailsIntegrity(t *testing.T) {
	kek := bytes.Repeat([]byte{0x5a}, 16)
	wrongKEK := bytes.Repeat([]byte{0x5b}, 16)
	gtk := bytes.Repeat([]byte{0x7e}, 16)

	wrapped, err := KeyWrap(kek, gtk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := KeyUnwrap(wrongKEK, wrapped); err != ErrKeyWrapIntegrity {
		t.Fatalf("expected ErrKeyWrapIntegrity, got %v", err)
	}
}

func TestKeyUnwrapBadLength(t *testing.T) {
	if _, err := KeyUnwrap(bytes.Repeat([]byte{1}, 16), []byte{1, 2, 3}); err != ErrKeyWrapLength {
		t.Fatalf("expected ErrKeyWrapLength, got %v", err)
	}
}
