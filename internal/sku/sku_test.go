package sku

import "testing"

func TestCategoryCode(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"T-Shirt", "TS"},
		{"hoodie", "HD"},
		{"Jacket", "JK"},
		{"Cargo", "CA"},
		{"kimono", "KI"},
		{"", "XX"},
		{"V", "VX"},
	}
	for _, c := range cases {
		if got := CategoryCode(c.name); got != c.want {
			t.Errorf("CategoryCode(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestPrefixAndFormat(t *testing.T) {
	prefix := Prefix("SU", "TS", "M", "RD", "M")
	if prefix != "GRK-SU-TS-M-RD-M-" {
		t.Fatalf("unexpected prefix %q", prefix)
	}
	if got := Format(prefix, 1); got != "GRK-SU-TS-M-RD-M-001" {
		t.Errorf("Format serial 1 = %q", got)
	}
	if got := Format(prefix, 42); got != "GRK-SU-TS-M-RD-M-042" {
		t.Errorf("Format serial 42 = %q", got)
	}
	if got := Format(prefix, 1000); got != "GRK-SU-TS-M-RD-M-1000" {
		t.Errorf("Format serial 1000 should widen, got %q", got)
	}
}

func TestParseSerial(t *testing.T) {
	prefix := Prefix("WI", "HD", "U", "BK", "L")
	n, ok := ParseSerial(prefix, Format(prefix, 17))
	if !ok || n != 17 {
		t.Fatalf("ParseSerial round trip = %d, %v", n, ok)
	}
	if _, ok := ParseSerial(prefix, "GRK-SU-TS-M-RD-M-001"); ok {
		t.Error("ParseSerial accepted a SKU from another prefix")
	}
	if _, ok := ParseSerial(prefix, prefix+"abc"); ok {
		t.Error("ParseSerial accepted a non-numeric tail")
	}
	if _, ok := ParseSerial(prefix, prefix); ok {
		t.Error("ParseSerial accepted an empty tail")
	}
}

func TestCodeValidation(t *testing.T) {
	if !ValidSeason("AY") || ValidSeason("ZZ") {
		t.Error("season validation wrong")
	}
	if !ValidGender("W") || ValidGender("X") {
		t.Error("gender validation wrong")
	}
	if !ValidColor("TL") || ValidColor("QQ") {
		t.Error("color validation wrong")
	}
	if !ValidSize("XXXL") || ValidSize("XXXXL") {
		t.Error("size validation wrong")
	}
}
