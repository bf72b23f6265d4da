package wpacrypto

import (
	"crypto/sha1"

	"golang.org/x/crypto/pbkdf2"
)

// PSK derives a 32-byte PMK from a WPA passphrase and SSID using PBKDF2-
// HMAC-SHA1 with 4096 iterations, per IEEE 802.11-2016 §J.4. Generalized
// from the teacher's unexported wpaPassphrase so any Connection can derive
// a PMK, not just the single ConnectWPAPSK call site it originated from.
func PSK(ssid, passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(ssid), 4096, 32, sha1.New)
}

// Zero overwrites b with zeros in place. Used by every Handshake/Station
// teardown path to scrub PMK, PTK, GTK, IGTK and nonce buffers before
// release (spec §4.4, §9).
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
