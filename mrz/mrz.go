// Package mrz holds the small amount of machine-readable-zone handling the
// capture workflow does itself; everything protocol-level is delegated to
// the chip library.
package mrz

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatDate converts a 6-digit MRZ date (YYMMDD) into ISO YYYY-MM-DD.
// Two-digit years 00-30 map to 20YY and 31-99 to 19YY. The pivot is a
// fixed business rule inherited from the booking flow's mobile clients;
// it misreads documents issued before 1931, and changing it is a product
// decision. Anything other than six digits yields an empty string, never
// a partial date.
func FormatDate(mrzDate string) string {
	if len(mrzDate) != 6 {
		return ""
	}
	for i := 0; i < len(mrzDate); i++ {
		if mrzDate[i] < '0' || mrzDate[i] > '9' {
			return ""
		}
	}

	yy := mrzDate[:2]
	mm := mrzDate[2:4]
	dd := mrzDate[4:6]

	year, _ := strconv.Atoi(yy)

	century := "19"
	if year <= 30 {
		century = "20"
	}

	return fmt.Sprintf("%s%s-%s-%s", century, yy, mm, dd)
}

// FullName joins the MRZ primary identifier (surname) and secondary
// identifier (given names) the way the booking server expects them.
func FullName(primary, secondary string) string {
	return fmt.Sprintf("%s, %s", primary, secondary)
}

// PersonalNumber extracts the optional personal number from the TD3
// optional-data field. Filler characters mean "absent", which the submit
// contract encodes as null.
func PersonalNumber(optionalData string) *string {
	trimmed := strings.Trim(optionalData, "< ")
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

const td3LineLength = 44

// TextFromDG1 extracts the two raw 44-character MRZ lines from an EF.DG1
// file. DG1 wraps the MRZ text in two fixed TLV headers (tag 61, then tag
// 5F1F); the chip library parses the zone into fields but does not expose
// the raw lines the submit contract requires, so they are recovered here.
func TextFromDG1(raw []byte) (line1, line2 string, err error) {
	text, err := dg1Value(raw)
	if err != nil {
		return "", "", err
	}

	if len(text) != 2*td3LineLength {
		return "", "", fmt.Errorf("mrz: unexpected MRZ length %d, want %d", len(text), 2*td3LineLength)
	}

	return string(text[:td3LineLength]), string(text[td3LineLength:]), nil
}

func dg1Value(raw []byte) ([]byte, error) {
	body, err := tlvValue(raw, []byte{0x61})
	if err != nil {
		return nil, fmt.Errorf("mrz: bad DG1 envelope: %w", err)
	}

	value, err := tlvValue(body, []byte{0x5F, 0x1F})
	if err != nil {
		return nil, fmt.Errorf("mrz: bad MRZ element: %w", err)
	}

	return value, nil
}

// tlvValue reads a single BER-TLV element with the given tag and returns
// its value. Only the definite length forms used by DG1 are supported.
func tlvValue(data, tag []byte) ([]byte, error) {
	if len(data) < len(tag)+1 {
		return nil, fmt.Errorf("truncated element")
	}
	for i := range tag {
		if data[i] != tag[i] {
			return nil, fmt.Errorf("unexpected tag % X", data[:len(tag)])
		}
	}

	rest := data[len(tag):]
	length := int(rest[0])
	rest = rest[1:]

	// 0x80 is the BER indefinite form, which DG1 never uses.
	if length == 0x80 {
		return nil, fmt.Errorf("unsupported length encoding")
	}
	if length > 0x80 {
		numBytes := length & 0x7F
		if numBytes > 2 || len(rest) < numBytes {
			return nil, fmt.Errorf("unsupported length encoding")
		}
		length = 0
		for _, b := range rest[:numBytes] {
			length = length<<8 | int(b)
		}
		rest = rest[numBytes:]
	}

	if len(rest) < length {
		return nil, fmt.Errorf("value shorter than declared length")
	}
	return rest[:length], nil
}
