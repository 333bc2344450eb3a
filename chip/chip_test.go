package chip

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testKey = AccessKey{
	DocumentNumber: "AA1234567",
	DateOfBirth:    "900115",
	DateOfExpiry:   "301231",
}

func TestAccessKeyValidate(t *testing.T) {
	require.NoError(t, testKey.Validate())

	bad := testKey
	bad.DocumentNumber = ""
	require.Error(t, bad.Validate())

	bad = testKey
	bad.DateOfBirth = "1990-01-15"
	require.Error(t, bad.Validate())

	bad = testKey
	bad.DateOfExpiry = "31"
	require.Error(t, bad.Validate())
}

func TestMockReaderReturnsFixedRecord(t *testing.T) {
	reader := NewMockReader(0)

	record, err := reader.Read(context.Background(), testKey)
	require.NoError(t, err)
	require.Equal(t, MockRecord(), *record)
}

func TestMockReaderHonorsCancellation(t *testing.T) {
	reader := NewMockReader(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := reader.Read(ctx, testKey)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("mock read did not observe cancellation")
	}
}

// fake device / session

type fakeSession struct {
	authErr error
	readErr error
	dg1     []byte
	closed  bool
}

func (s *fakeSession) Authenticate(ctx context.Context, key AccessKey) error { return s.authErr }

func (s *fakeSession) ReadDataGroup(ctx context.Context, name string) ([]byte, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.dg1, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDevice struct {
	available bool
	detectErr error
	session   *fakeSession
}

func (d *fakeDevice) Available() bool { return d.available }

func (d *fakeDevice) Detect(ctx context.Context) (TagSession, error) {
	if d.detectErr != nil {
		return nil, d.detectErr
	}
	return d.session, nil
}

// validDG1 wraps a TD3 zone with correct check digits in the DG1 TLV
// headers (tag 61, then 5F1F), the way it comes off a real chip.
func validDG1() []byte {
	mrzText := "P<USASMITH<<JOHN<MICHAEL<<<<<<<<<<<<<<<<<<<<" +
		"AA12345678USA9001158M3012316<<<<<<<<<<<<<<02"
	inner := append([]byte{0x5F, 0x1F, byte(len(mrzText))}, []byte(mrzText)...)
	return append([]byte{0x61, byte(len(inner))}, inner...)
}

func TestTagReaderReadsRecord(t *testing.T) {
	session := &fakeSession{dg1: validDG1()}
	device := &fakeDevice{available: true, session: session}

	record, err := NewTagReader(device).Read(context.Background(), testKey)
	require.NoError(t, err)
	require.True(t, session.closed, "session must be released after a successful read")

	require.Equal(t, "SMITH, JOHN MICHAEL", record.FullName)
	require.Equal(t, "AA1234567", record.PassportNumber)
	require.Equal(t, "USA", record.Nationality)
	require.Equal(t, "1990-01-15", record.DateOfBirth)
	require.Equal(t, "2030-12-31", record.ExpiryDate)
	require.Equal(t, "M", record.Sex)
	require.Equal(t, "USA", record.IssuingCountry)
	require.Nil(t, record.PersonalNumber)
	require.Equal(t, "P<USASMITH<<JOHN<MICHAEL<<<<<<<<<<<<<<<<<<<<", record.MrzLine1)
	require.Equal(t, "AA12345678USA9001158M3012316<<<<<<<<<<<<<<02", record.MrzLine2)
	require.NoError(t, record.Validate())
}

func TestTagReaderUnavailableDevice(t *testing.T) {
	_, err := NewTagReader(nil).Read(context.Background(), testKey)
	require.ErrorIs(t, err, ErrReaderUnavailable)

	_, err = NewTagReader(&fakeDevice{available: false}).Read(context.Background(), testKey)
	require.ErrorIs(t, err, ErrReaderUnavailable)
}

func TestTagReaderRejectsBadKey(t *testing.T) {
	device := &fakeDevice{available: true, session: &fakeSession{}}
	_, err := NewTagReader(device).Read(context.Background(), AccessKey{})
	require.Error(t, err)
}

func TestTagReaderNoDocument(t *testing.T) {
	device := &fakeDevice{available: true, detectErr: ErrNoDocument}
	_, err := NewTagReader(device).Read(context.Background(), testKey)
	require.ErrorIs(t, err, ErrNoDocument)
}

func TestTagReaderAccessControlFailure(t *testing.T) {
	session := &fakeSession{authErr: errors.New("BAC handshake rejected")}
	device := &fakeDevice{available: true, session: session}

	_, err := NewTagReader(device).Read(context.Background(), testKey)
	require.ErrorIs(t, err, ErrAccessDenied)
	require.True(t, session.closed, "session must be released on access failure")
}

func TestTagReaderTransportFailure(t *testing.T) {
	session := &fakeSession{readErr: errors.New("tag connection lost")}
	device := &fakeDevice{available: true, session: session}

	_, err := NewTagReader(device).Read(context.Background(), testKey)
	require.ErrorContains(t, err, "read DG1")
	require.True(t, session.closed, "session must be released on transport failure")
}

func TestTagReaderBadDG1(t *testing.T) {
	session := &fakeSession{dg1: []byte{0x00, 0x01}}
	device := &fakeDevice{available: true, session: session}

	_, err := NewTagReader(device).Read(context.Background(), testKey)
	require.Error(t, err)
	require.True(t, session.closed, "session must be released on parse failure")
}

func TestTagReaderCancelledDuringDetect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	device := &fakeDevice{available: true, detectErr: context.Canceled}
	_, err := NewTagReader(device).Read(ctx, testKey)
	require.ErrorIs(t, err, context.Canceled)
}
