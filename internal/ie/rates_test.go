package ie

import "testing"

func TestHasCommonBasicRate(t *testing.T) {
	apRates := ParseSupportedRates([]byte{0x82, 0x84, 0x8b, 0x0c})
	peerRates := ParseSupportedRates([]byte{0x02, 0x04, 0x0b, 0x16})

	if !HasCommonBasicRate(apRates, peerRates) {
		t.Fatal("expected a common basic rate (1 Mbit/s)")
	}
}

func TestHasCommonBasicRateNoOverlap(t *testing.T) {
	apRates := ParseSupportedRates([]byte{0x82})
	peerRates := ParseSupportedRates([]byte{0x04})

	if HasCommonBasicRate(apRates, peerRates) {
		t.Fatal("expected no common basic rate")
	}
}

func TestMergeRates(t *testing.T) {
	sup := ParseSupportedRates([]byte{0x82, 0x84})
	ext := ParseSupportedRates([]byte{0x0c, 0x12})

	merged := MergeRates(sup, ext)
	if len(merged) != 4 {
		t.Fatalf("expected 4 merged rates, got %d", len(merged))
	}
}
