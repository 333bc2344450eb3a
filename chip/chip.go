// Package chip abstracts e-passport chip access behind a capability
// interface so the capture workflow never depends on NFC library
// internals. Two implementations exist: TagReader drives real hardware
// through a platform TagDevice, MockReader returns a fixed record for
// environments without a document or NFC chip.
package chip

import (
	"context"
	"errors"
	"fmt"

	"go-passport-capture/models"
)

var (
	// ErrReaderUnavailable means the device has no usable NFC capability.
	// It is returned before any hardware interaction.
	ErrReaderUnavailable = errors.New("chip: nfc reader unavailable")

	// ErrNoDocument means no chip was detected within the read session.
	ErrNoDocument = errors.New("chip: no document detected")

	// ErrAccessDenied means access control failed, usually because the
	// MRZ key material does not match the presented document.
	ErrAccessDenied = errors.New("chip: access control failed")
)

// AccessKey carries the MRZ fields the access-control key is derived
// from. The derivation itself happens inside the platform chip library
// and is opaque to this package.
type AccessKey struct {
	DocumentNumber string // alphanumeric, as printed in the MRZ
	DateOfBirth    string // YYMMDD
	DateOfExpiry   string // YYMMDD
}

func (k AccessKey) Validate() error {
	if k.DocumentNumber == "" {
		return fmt.Errorf("chip: access key missing document number")
	}
	if len(k.DateOfBirth) != 6 {
		return fmt.Errorf("chip: access key date of birth must be YYMMDD")
	}
	if len(k.DateOfExpiry) != 6 {
		return fmt.Errorf("chip: access key date of expiry must be YYMMDD")
	}
	return nil
}

// Reader produces a normalized passport record from a physically
// presented document, or fails with one of the sentinel errors above,
// a wrapped transport error, or the context's error on cancellation.
// Implementations must release any hardware session on every exit path.
type Reader interface {
	Read(ctx context.Context, key AccessKey) (*models.PassportRecord, error)
}

// TagSession is a single connected ISO 14443 session with a document
// chip. Implementations wrap the platform NFC stack (IsoDep, CoreNFC,
// a PC/SC reader). Close releases the radio session and must always be
// called, including on cancellation and error.
type TagSession interface {
	// Authenticate establishes chip access using the MRZ-derived key.
	Authenticate(ctx context.Context, key AccessKey) error

	// ReadDataGroup returns the raw bytes of an elementary file, e.g.
	// "DG1".
	ReadDataGroup(ctx context.Context, name string) ([]byte, error)

	Close() error
}

// TagDevice detects a presented document and opens a session with it.
type TagDevice interface {
	// Available reports whether the device can read tags at all. A
	// false result maps to ErrReaderUnavailable before any detection
	// is attempted.
	Available() bool

	// Detect blocks until a document is presented or the context ends.
	// It returns ErrNoDocument when the platform read session times
	// out without seeing a chip.
	Detect(ctx context.Context) (TagSession, error)
}
