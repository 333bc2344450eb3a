package chip

import (
	"context"
	"log/slog"
	"time"

	"go-passport-capture/models"
)

// MockReader returns a fixed record without touching hardware. It exists
// for development on machines without NFC or a physical document, and for
// tests. Callers opt in explicitly; nothing ever substitutes it for
// TagReader.
type MockReader struct {
	// Delay simulates the time a real chip read takes.
	Delay time.Duration

	// Record overrides the default mock record when non-nil.
	Record *models.PassportRecord
}

func NewMockReader(delay time.Duration) *MockReader {
	return &MockReader{Delay: delay}
}

func (m *MockReader) Read(ctx context.Context, key AccessKey) (*models.PassportRecord, error) {
	slog.Warn("using mock chip reader, no hardware will be touched")

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	record := MockRecord()
	if m.Record != nil {
		record = *m.Record
	}
	return &record, nil
}

// MockRecord is the fixture the mobile clients have always used for
// development reads.
func MockRecord() models.PassportRecord {
	return models.PassportRecord{
		FullName:       "SMITH, JOHN MICHAEL",
		PassportNumber: "AA1234567",
		Nationality:    "USA",
		DateOfBirth:    "1990-01-15",
		ExpiryDate:     "2030-12-31",
		Sex:            "M",
		IssuingCountry: "USA",
		PersonalNumber: nil,
		MrzLine1:       "P<USASMITH<<JOHN<MICHAEL<<<<<<<<<<<<<<<<<<<<",
		MrzLine2:       "AA12345671USA9001155M3012319<<<<<<<<<<<<<<02",
	}
}
