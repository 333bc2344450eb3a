package models

import (
	"fmt"
	"strings"
)

// PassportRecord is the normalized result of one chip read. Field names
// match the booking server's submit contract exactly.
type PassportRecord struct {
	FullName       string  `json:"full_name"`       // "SURNAME, GIVEN NAMES"
	PassportNumber string  `json:"passport_number"`
	Nationality    string  `json:"nationality"`
	DateOfBirth    string  `json:"date_of_birth"` // YYYY-MM-DD
	ExpiryDate     string  `json:"expiry_date"`   // YYYY-MM-DD
	Sex            string  `json:"sex"`
	IssuingCountry string  `json:"issuing_country"`
	PersonalNumber *string `json:"personal_number"`
	MrzLine1       string  `json:"mrz_line1"`
	MrzLine2       string  `json:"mrz_line2"`
	PhotoBase64    string  `json:"photo_base64,omitempty"`
}

var requiredRecordFields = []string{
	"full_name", "passport_number", "nationality",
	"date_of_birth", "expiry_date", "sex",
}

// MissingFields reports which required fields are empty, in the order the
// server lists them in its error message.
func (r *PassportRecord) MissingFields() []string {
	values := map[string]string{
		"full_name":       r.FullName,
		"passport_number": r.PassportNumber,
		"nationality":     r.Nationality,
		"date_of_birth":   r.DateOfBirth,
		"expiry_date":     r.ExpiryDate,
		"sex":             r.Sex,
	}

	var missing []string
	for _, field := range requiredRecordFields {
		if strings.TrimSpace(values[field]) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Validate returns an error naming the missing required fields, if any.
func (r *PassportRecord) Validate() error {
	missing := r.MissingFields()
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
}
