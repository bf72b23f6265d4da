package ie

import "testing"

func TestFTERoundTrip(t *testing.T) {
	want := &FTE{
		MICElementCount: 3,
		R0KHID:          []byte("r0khid"),
		R1KHID:          []byte{1, 2, 3, 4, 5, 6},
	}
	for i := range want.MIC {
		want.MIC[i] = byte(i)
	}
	for i := range want.ANonce {
		want.ANonce[i] = byte(i + 1)
	}
	for i := range want.SNonce {
		want.SNonce[i] = byte(i + 2)
	}

	b := BuildFTE(want)
	got, err := ParseFTE(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.MICElementCount != want.MICElementCount {
		t.Fatalf("MICElementCount mismatch: %d vs %d", got.MICElementCount, want.MICElementCount)
	}
	if got.MIC != want.MIC || got.ANonce != want.ANonce || got.SNonce != want.SNonce {
		t.Fatal("fixed-field mismatch after round trip")
	}
	if string(got.R0KHID) != string(want.R0KHID) {
		t.Fatalf("R0KHID mismatch: %q vs %q", got.R0KHID, want.R0KHID)
	}
	if string(got.R1KHID) != string(want.R1KHID) {
		t.Fatalf("R1KHID mismatch: %q vs %q", got.R1KHID, want.R1KHID)
	}
}

func TestFTEForMICZeroesMIC(t *testing.T) {
	f := &FTE{MICElementCount: 0}
	for i := range f.MIC {
		f.MIC[i] = 0xff
	}

	out := FTEForMIC(f)
	got, err := ParseFTE(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MIC != ([16]byte{}) {
		t.Fatalf("expected zeroed MIC, got %x", got.MIC)
	}
	// Original must not be mutated.
	if f.MIC == ([16]byte{}) {
		t.Fatal("FTEForMIC must not mutate its argument")
	}
}

func TestParseFTETooShort(t *testing.T) {
	if _, err := ParseFTE(make([]byte, 10)); err != ErrFTETooShort {
		t.Fatalf("expected ErrFTETooShort, got %v", err)
	}
}
