package ie

import "testing"

func ccmpPSKRSNE() *RSNE {
	return &RSNE{
		Version:      1,
		GroupCipher:  CipherCCMP,
		PairwiseList: []Cipher{CipherCCMP},
		AKMList:      []AKM{AKMPSK},
		Capabilities: 0,
	}
}

func TestRSNERoundTrip(t *testing.T) {
	want := ccmpPSKRSNE()
	want.PairwiseBitmap = CipherBit(CipherCCMP)
	want.AKMBitmap = 1 << uint32(AKMPSK)

	b := BuildRSNE(want)
	got, err := ParseRSNE(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !rsneEqual(want, got) {
		t.Fatalf("round trip mismatch: want %+v got %+v", want, got)
	}
}

func TestParseRSNETooShort(t *testing.T) {
	if _, err := ParseRSNE([]byte{1, 2, 3}); err != ErrRSNTooShort {
		t.Fatalf("expected ErrRSNTooShort, got %v", err)
	}
}

func TestIEsMatchIgnoresPMKIDs(t *testing.T) {
	a := ccmpPSKRSNE()
	b := ccmpPSKRSNE()
	b.PMKIDs = [][16]byte{{1, 2, 3}}

	ab := BuildRSNE(a)
	bb := BuildRSNE(b)

	if IEsMatch(ab, bb, MatchOptions{}) {
		t.Fatal("expected strict compare to differ on PMKID list")
	}
	if !IEsMatch(ab, bb, MatchOptions{IgnorePMKIDs: true}) {
		t.Fatal("expected tolerant compare to match despite PMKID list")
	}
}

func TestIEsMatchDetectsCipherMismatch(t *testing.T) {
	a := ccmpPSKRSNE()
	b := ccmpPSKRSNE()
	b.PairwiseList = []Cipher{CipherTKIP}

	if IEsMatch(BuildRSNE(a), BuildRSNE(b), MatchOptions{IgnorePMKIDs: true}) {
		t.Fatal("expected cipher mismatch to fail match")
	}
}

func TestPopCountAndSubsetOf(t *testing.T) {
	bitmap := CipherBit(CipherCCMP)
	if PopCount(bitmap) != 1 {
		t.Fatalf("expected pop count 1, got %d", PopCount(bitmap))
	}

	super := CipherBit(CipherCCMP) | CipherBit(CipherTKIP)
	if !SubsetOf(bitmap, super) {
		t.Fatal("expected CCMP bit to be a subset of CCMP|TKIP")
	}
	if SubsetOf(super, bitmap) {
		t.Fatal("did not expect CCMP|TKIP to be a subset of CCMP")
	}
}
