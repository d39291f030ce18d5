// Package sku builds and parses GrinkraWear product codes of the form
// GRK-SEASON-CATEGORY-GENDER-COLOR-SIZE-SERIAL, e.g. GRK-SU-TS-M-RD-M-001.
package sku

import (
	"fmt"
	"strconv"
	"strings"
)

const Brand = "GRK"

// categoryCodes maps well-known category names to their fixed two-letter
// code. Unknown categories fall back to the first two letters of the name.
var categoryCodes = map[string]string{
	"t-shirt": "TS",
	"hoodie":  "HD",
	"jacket":  "JK",
	"shirt":   "SH",
	"pants":   "PT",
	"shorts":  "SR",
	"sweater": "SW",
	"dress":   "DR",
	"skirt":   "SK",
	"coat":    "CT",
}

var (
	seasons = map[string]bool{"SU": true, "WI": true, "SP": true, "FA": true, "AY": true}
	genders = map[string]bool{"M": true, "W": true, "U": true}
	colors  = map[string]bool{
		"BK": true, "WH": true, "RD": true, "BL": true, "GR": true,
		"GY": true, "NV": true, "PN": true, "YL": true, "OR": true,
		"PR": true, "BR": true, "BG": true, "MR": true, "TL": true,
	}
	sizes = map[string]bool{
		"XS": true, "S": true, "M": true, "L": true,
		"XL": true, "XXL": true, "XXXL": true, "FS": true,
	}
)

const (
	DefaultSeason = "AY"
	DefaultGender = "U"
	DefaultColor  = "BK"
	DefaultSize   = "M"
)

func ValidSeason(code string) bool { return seasons[code] }
func ValidGender(code string) bool { return genders[code] }
func ValidColor(code string) bool  { return colors[code] }
func ValidSize(code string) bool   { return sizes[code] }

// CategoryCode resolves a category name to its code. Empty names get the
// "XX" placeholder.
func CategoryCode(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "XX"
	}
	if code, ok := categoryCodes[strings.ToLower(name)]; ok {
		return code
	}
	if len(name) == 1 {
		return strings.ToUpper(name) + "X"
	}
	return strings.ToUpper(name[:2])
}

// Prefix assembles everything before the serial, trailing dash included.
func Prefix(season, categoryCode, gender, color, size string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s-%s-", Brand, season, categoryCode, gender, color, size)
}

// Format appends the zero-padded serial to a prefix. Serials past 999 widen
// the field rather than fail.
func Format(prefix string, serial int) string {
	return fmt.Sprintf("%s%03d", prefix, serial)
}

// ParseSerial extracts the numeric serial from a SKU belonging to the given
// prefix. It returns false when the SKU does not match the prefix or the
// tail is not numeric.
func ParseSerial(prefix, code string) (int, bool) {
	tail, ok := strings.CutPrefix(code, prefix)
	if !ok || tail == "" {
		return 0, false
	}
	n, err := strconv.Atoi(tail)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
