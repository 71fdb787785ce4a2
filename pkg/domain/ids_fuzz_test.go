//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseUnitID tests that parsing never panics on arbitrary input
// and that accepted values round-trip.
func FuzzParseUnitID(f *testing.F) {
	f.Add("")
	f.Add("UNIT1")
	f.Add("'; DROP TABLE units;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("UNIT1\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		unitID, err := ParseUnitID(input)
		if err == nil {
			roundTrip, err2 := ParseUnitID(unitID.String())
			if err2 != nil {
				t.Errorf("valid unit ID failed round-trip: %v", err2)
			}
			if roundTrip != unitID {
				t.Error("round-trip changed unit ID value")
			}
			if unitID.IsNil() {
				t.Error("accepted unit ID must not be nil")
			}
		}

		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseKeys ensures unit IDs and operator codes share one validation rule.
func FuzzParseKeys(f *testing.F) {
	f.Add("ADM001")
	f.Add("")
	f.Add("bad key")

	f.Fuzz(func(t *testing.T, input string) {
		_, errUnit := ParseUnitID(input)
		_, errCode := ParseOperatorCode(input)
		if (errUnit == nil) != (errCode == nil) {
			t.Error("inconsistent parsing across key types")
		}
	})
}
