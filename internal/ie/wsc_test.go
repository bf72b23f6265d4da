package ie

import "testing"

func TestWSCProbeRequestRoundTrip(t *testing.T) {
	want := &WSCProbeRequest{
		Version:          0x20,
		DevicePasswordID: DevicePasswordIDPushButton,
		RequestType:      1,
	}
	want.UUID[0] = 0xaa

	full := BuildWSCProbeRequest(want)
	el, _, rest, err := Next(full)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %d", len(rest))
	}
	if el.Tag != TagVendorSpecific {
		t.Fatalf("expected vendor-specific tag, got %v", el.Tag)
	}

	body, ok := IsWSCElement(el.Data)
	if !ok {
		t.Fatal("expected WSC vendor prefix to be recognized")
	}

	got, err := ParseWSCTLV(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Version != want.Version || got.DevicePasswordID != want.DevicePasswordID ||
		got.RequestType != want.RequestType || got.UUID != want.UUID {
		t.Fatalf("round trip mismatch: want %+v got %+v", want, got)
	}
}

func TestIsWSCElementRejectsOtherVendors(t *testing.T) {
	if _, ok := IsWSCElement([]byte{0x00, 0x17, 0xf2, 0x01}); ok {
		t.Fatal("expected non-WFA-WSC vendor element to be rejected")
	}
}

func TestBuildWSCAssociationResponseCarriesCredential(t *testing.T) {
	sr := &WSCSelectedRegistrar{
		Version:       0x20,
		SSID:          "Net",
		AuthTypeFlags: 0x0020,
		EncrTypeFlags: 0x0008,
		NetworkKey:    []byte("s3cr3t!!"),
	}
	el := BuildWSCAssociationResponse(sr)
	_, body, _ := cutElement(t, el)
	got, err := parseTLVs(body[4:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var foundKey bool
	for _, tv := range got {
		if tv.id == wscAttrNetworkKey {
			foundKey = true
			if string(tv.data) != "s3cr3t!!" {
				t.Fatalf("unexpected network key: %q", tv.data)
			}
		}
	}
	if !foundKey {
		t.Fatal("expected network key TLV in association response")
	}
}

func cutElement(t *testing.T, raw []byte) (Tag, []byte, []byte) {
	t.Helper()
	el, _, rest, err := Next(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return el.Tag, el.Data, rest
}
