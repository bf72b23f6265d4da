package eapol

import (
	"bytes"
	"testing"
)

func TestGTKKDERoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	b := BuildGTKKDE(2, true, key)

	kd, err := ParseKeyData(b)
	if err != nil {
		t.Fatalf("ParseKeyData: %v", err)
	}
	if kd.GTK == nil {
		t.Fatal("expected GTK KDE to be parsed")
	}
	if kd.GTK.KeyID != 2 || !kd.GTK.Tx {
		t.Fatalf("unexpected GTK KDE fields: %+v", kd.GTK)
	}
	if !bytes.Equal(kd.GTK.Key, key) {
		t.Fatalf("GTK key mismatch: got %x want %x", kd.GTK.Key, key)
	}
}

func TestIGTKKDERoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x77}, 16)
	ipn := [6]byte{1, 2, 3, 4, 5, 6}
	b := BuildIGTKKDE(9, ipn, key)

	kd, err := ParseKeyData(b)
	if err != nil {
		t.Fatalf("ParseKeyData: %v", err)
	}
	if kd.IGTK == nil {
		t.Fatal("expected IGTK KDE to be parsed")
	}
	if kd.IGTK.KeyID != 9 || kd.IGTK.IPN != ipn {
		t.Fatalf("unexpected IGTK KDE fields: %+v", kd.IGTK)
	}
	if !bytes.Equal(kd.IGTK.Key, key) {
		t.Fatalf("IGTK key mismatch: got %x want %x", kd.IGTK.Key, key)
	}
}

func TestParseKeyDataSkipsUnknownVendorSubelement(t *testing.T) {
	unknown := []byte{elementIDVendorSpecific, 5, 0xaa, 0xbb, 0xcc, 0x99, 0x00}
	gtk := BuildGTKKDE(0, false, bytes.Repeat([]byte{1}, 16))

	kd, err := ParseKeyData(append(unknown, gtk...))
	if err != nil {
		t.Fatalf("ParseKeyData: %v", err)
	}
	if kd.GTK == nil {
		t.Fatal("expected GTK KDE to still be found after skipping unknown sub-element")
	}
}

func TestParseKeyDataTruncated(t *testing.T) {
	if _, err := ParseKeyData([]byte{elementIDVendorSpecific, 10, 1, 2}); err != ErrKDETruncated {
		t.Fatalf("expected ErrKDETruncated, got %v", err)
	}
}
