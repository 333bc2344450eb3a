package chip

import (
	"context"
	"fmt"
	"log/slog"

	"go-passport-capture/models"
	"go-passport-capture/mrz"

	"github.com/gmrtd/gmrtd/document"
)

// TagReader reads a passport through a platform TagDevice and parses the
// result with the gmrtd document library. It reads DG1 only; that is all
// the submit contract needs.
type TagReader struct {
	device TagDevice
}

func NewTagReader(device TagDevice) *TagReader {
	return &TagReader{device: device}
}

func (r *TagReader) Read(ctx context.Context, key AccessKey) (*models.PassportRecord, error) {
	if r.device == nil || !r.device.Available() {
		return nil, ErrReaderUnavailable
	}

	if err := key.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("waiting for document", "document_number", key.DocumentNumber)
	session, err := r.device.Detect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close tag session", "error", err)
		}
	}()

	slog.Debug("document detected, performing access control")
	if err := session.Authenticate(ctx, key); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}

	slog.Debug("access control succeeded, reading DG1")
	raw, err := session.ReadDataGroup(ctx, "DG1")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("chip: read DG1: %w", err)
	}

	record, err := recordFromDG1(raw)
	if err != nil {
		return nil, err
	}

	slog.Info("passport read complete", "issuing_country", record.IssuingCountry)
	return record, nil
}

func recordFromDG1(raw []byte) (*models.PassportRecord, error) {
	dg1, err := document.NewDG1(raw)
	if err != nil {
		return nil, fmt.Errorf("chip: parse DG1: %w", err)
	}

	line1, line2, err := mrz.TextFromDG1(raw)
	if err != nil {
		return nil, err
	}

	zone := dg1.Mrz
	return &models.PassportRecord{
		FullName:       mrz.FullName(zone.NameOfHolder.Primary, zone.NameOfHolder.Secondary),
		PassportNumber: zone.DocumentNumber,
		Nationality:    zone.Nationality,
		DateOfBirth:    mrz.FormatDate(zone.DateOfBirth),
		ExpiryDate:     mrz.FormatDate(zone.DateOfExpiry),
		Sex:            zone.Sex,
		IssuingCountry: zone.IssuingState,
		PersonalNumber: mrz.PersonalNumber(zone.OptionalData),
		MrzLine1:       line1,
		MrzLine2:       line2,
	}, nil
}
