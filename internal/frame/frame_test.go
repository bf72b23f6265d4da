package frame

import (
	"net"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	want := Header{
		Subtype: SubtypeAuthentication,
		DA:      net.HardwareAddr{1, 2, 3, 4, 5, 6},
		SA:      net.HardwareAddr{6, 5, 4, 3, 2, 1},
		BSSID:   net.HardwareAddr{1, 1, 1, 1, 1, 1},
	}

	raw := BuildHeader(want)
	got, rest, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no body, got %d bytes", len(rest))
	}
	if got.Subtype != want.Subtype {
		t.Fatalf("subtype mismatch: %v vs %v", got.Subtype, want.Subtype)
	}
	if got.DA.String() != want.DA.String() || got.SA.String() != want.SA.String() || got.BSSID.String() != want.BSSID.String() {
		t.Fatalf("address mismatch: %+v vs %+v", got, want)
	}
}

func TestParseHeaderTruncated(t *testing.T) {
	if _, _, err := ParseHeader(make([]byte, 10)); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestAuthFixedRoundTrip(t *testing.T) {
	want := AuthFixed{Algorithm: AuthAlgorithmFT, Transaction: 1, Status: StatusSuccess}
	got, rest, err := ParseAuthFixed(BuildAuthFixed(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("mismatch: %+v vs %+v", got, want)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %d", len(rest))
	}
}

func TestAssocRespFixedAIDReservedBits(t *testing.T) {
	want := AssocRespFixed{Capability: 0x0411, Status: StatusSuccess, AID: 5}
	raw := BuildAssocRespFixed(want)
	got, _, err := ParseAssocRespFixed(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AID != 5 {
		t.Fatalf("expected AID 5 with reserved bits masked, got %d", got.AID)
	}
}

func TestDeauthFixedRoundTrip(t *testing.T) {
	got, err := ParseDeauthFixed(BuildDeauthFixed(DeauthFixed{Reason: ReasonDeauthLeaving}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Reason != ReasonDeauthLeaving {
		t.Fatalf("unexpected reason: %v", got.Reason)
	}
}
