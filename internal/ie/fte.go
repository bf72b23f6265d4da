package ie

import (
	"errors"
)

var (
	ErrFTETooShort   = errors.New("ie: FTE truncated")
	ErrFTEBadSubelem = errors.New("ie: FTE subelement runs past element")
)

// FTE subelement IDs, IEEE 802.11-2016 Table 9-153.
const (
	subelemGTK   = 1
	subelemR0KHID = 3
	subelemR1KHID = 4
	subelemIGTK  = 9
)

// FTE is the parsed Fast BSS Transition element (IEEE 802.11-2016
// §9.4.2.48): a fixed 82-byte body (MIC control, MIC, ANonce, SNonce)
// followed by optional subelements.
type FTE struct {
	MICElementCount uint8
	MIC             [16]byte
	ANonce          [32]byte
	SNonce          [32]byte

	// R0KHID is 1..48 bytes when present.
	R0KHID []byte
	// R1KHID is exactly 6 bytes when present.
	R1KHID []byte

	// GTK, if present, carries the wrapped (still key-wrap-encrypted)
	// group key subelement payload: key-info(2) key-length(1) RSC(8)
	// key-wrap(1, reserved) wrapped-key.
	GTK []byte
	// IGTK, if present, carries the wrapped IGTK subelement payload:
	// key-id(2) ipn(6) key-length(1) wrapped-key.
	IGTK []byte
}

// ParseFTE parses the data portion of a Fast BSS Transition element.
func ParseFTE(b []byte) (*FTE, error) {
	if len(b) < 2+16+32+32 {
		return nil, ErrFTETooShort
	}

	f := &FTE{}
	f.MICElementCount = b[1]
	copy(f.MIC[:], b[2:18])
	copy(f.ANonce[:], b[18:50])
	copy(f.SNonce[:], b[50:82])

	pos := 82
	for pos < len(b) {
		if len(b)-pos < 2 {
			return nil, ErrFTEBadSubelem
		}
		id := b[pos]
		l := int(b[pos+1])
		pos += 2
		if len(b)-pos < l {
			return nil, ErrFTEBadSubelem
		}
		data := b[pos : pos+l]
		pos += l

		switch id {
		case subelemR0KHID:
			if l < 1 || l > 48 {
				return nil, ErrFTEBadSubelem
			}
			f.R0KHID = append([]byte(nil), data...)
		case subelemR1KHID:
			if l != 6 {
				return nil, ErrFTEBadSubelem
			}
			f.R1KHID = append([]byte(nil), data...)
		case subelemGTK:
			f.GTK = append([]byte(nil), data...)
		case subelemIGTK:
			f.IGTK = append([]byte(nil), data...)
		}
	}

	return f, nil
}

// BuildFTE encodes f into its element data.
func BuildFTE(f *FTE) []byte {
	out := make([]byte, 2, 2+16+32+32)
	out[0] = 0 // MIC Control reserved octet
	out[1] = f.MICElementCount
	out = append(out, f.MIC[:]...)
	out = append(out, f.ANonce[:]...)
	out = append(out, f.SNonce[:]...)

	if len(f.R0KHID) > 0 {
		out = append(out, byte(subelemR0KHID), byte(len(f.R0KHID)))
		out = append(out, f.R0KHID...)
	}
	if len(f.R1KHID) > 0 {
		out = append(out, byte(subelemR1KHID), byte(len(f.R1KHID)))
		out = append(out, f.R1KHID...)
	}
	if len(f.GTK) > 0 {
		out = append(out, byte(subelemGTK), byte(len(f.GTK)))
		out = append(out, f.GTK...)
	}
	if len(f.IGTK) > 0 {
		out = append(out, byte(subelemIGTK), byte(len(f.IGTK)))
		out = append(out, f.IGTK...)
	}

	return out
}

// FTEForMIC returns the encoding of f with the MIC field zeroed, as required
// before computing the FTE MIC over the Authentication/Reassociation frame's
// five specified elements (spec §4.6).
func FTEForMIC(f *FTE) []byte {
	cp := *f
	cp.MIC = [16]byte{}
	return BuildFTE(&cp)
}
