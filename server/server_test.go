package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-passport-capture/models"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, store SessionStore) *httptest.Server {
	t.Helper()
	srv, err := NewServer(&State{Sessions: store}, Config{
		Host:      "localhost",
		Port:      0,
		PublicURL: "https://booking.example.com",
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func createSession(t *testing.T, ts *httptest.Server) models.SessionResponse {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/passport/nfc/session", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	require.NotEmpty(t, out.SessionToken)
	return out
}

func checkSession(t *testing.T, ts *httptest.Server, token string) models.StatusResponse {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/passport/nfc/check/" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func submitRecord(t *testing.T, ts *httptest.Server, token string, record models.PassportRecord) *http.Response {
	t.Helper()
	body, err := json.Marshal(models.SubmitRequest{Token: token, Data: record})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/passport/nfc/submit", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func completeRecord() models.PassportRecord {
	personal := "123456789"
	return models.PassportRecord{
		FullName:       "SMITH, JOHN MICHAEL",
		PassportNumber: "AA1234567",
		Nationality:    "USA",
		DateOfBirth:    "1990-01-15",
		ExpiryDate:     "2030-12-31",
		Sex:            "M",
		IssuingCountry: "USA",
		PersonalNumber: &personal,
		MrzLine1:       "P<USASMITH<<JOHN<MICHAEL<<<<<<<<<<<<<<<<<<<<",
		MrzLine2:       "AA12345671USA9001155M3012319<<<<<<<<<<<<<<02",
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	session := createSession(t, ts)
	require.Equal(t, 300, session.ExpiresIn)
	require.Equal(t,
		fmt.Sprintf("https://booking.example.com/mobile/nfc-scan?token=%s", session.SessionToken),
		session.QrURL)

	status := checkSession(t, ts, session.SessionToken)
	require.Equal(t, "waiting", status.Status)
	require.Nil(t, status.Data)

	resp, err := http.Post(ts.URL+"/api/passport/nfc/scanning/"+session.SessionToken, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status = checkSession(t, ts, session.SessionToken)
	require.Equal(t, "scanning", status.Status)

	resp = submitRecord(t, ts, session.SessionToken, completeRecord())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack models.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	require.True(t, ack.Success)

	status = checkSession(t, ts, session.SessionToken)
	require.Equal(t, "completed", status.Status)
	require.NotNil(t, status.Data)
	require.Equal(t, "SMITH, JOHN MICHAEL", status.Data.FullName)
	require.Equal(t, "AA1234567", status.Data.PassportNumber)

	// The record is handed over exactly once.
	status = checkSession(t, ts, session.SessionToken)
	require.Equal(t, "expired", status.Status)
}

func TestCheckUnknownTokenReportsExpired(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	status := checkSession(t, ts, "no-such-token")
	require.Equal(t, "expired", status.Status)
}

func TestScanningUnknownTokenReturns404(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	resp, err := http.Post(ts.URL+"/api/passport/nfc/scanning/no-such-token", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExpiredSessionReturns410(t *testing.T) {
	store := NewInMemorySessionStore()
	ts := newTestServer(t, store)

	session := createSession(t, ts)

	// Age the session past its deadline.
	stored, err := store.Get(t.Context(), session.SessionToken)
	require.NoError(t, err)
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Update(t.Context(), session.SessionToken, stored))

	resp, err := http.Post(ts.URL+"/api/passport/nfc/scanning/"+session.SessionToken, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusGone, resp.StatusCode)

	resp = submitRecord(t, ts, session.SessionToken, completeRecord())
	resp.Body.Close()
	require.Equal(t, http.StatusGone, resp.StatusCode)

	status := checkSession(t, ts, session.SessionToken)
	require.Equal(t, "expired", status.Status)
}

func TestSubmitMissingFields(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	session := createSession(t, ts)

	record := completeRecord()
	record.PassportNumber = ""
	record.Nationality = ""

	resp := submitRecord(t, ts, session.SessionToken, record)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var ack models.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	require.False(t, ack.Success)
	require.Contains(t, ack.Error, "passport_number")
	require.Contains(t, ack.Error, "nationality")

	// The failure is visible to the polling booking form too.
	status := checkSession(t, ts, session.SessionToken)
	require.Equal(t, "error", status.Status)
	require.Contains(t, status.Message, "passport_number")
}

func TestSubmitWithoutToken(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	body, err := json.Marshal(models.SubmitRequest{Data: completeRecord()})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/passport/nfc/submit", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitUnknownToken(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	resp := submitRecord(t, ts, "no-such-token", completeRecord())
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScanLandingPage(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	session := createSession(t, ts)

	resp, err := http.Get(ts.URL + "/mobile/nfc-scan?token=" + session.SessionToken)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "passportscanner://scan")
}

func TestScanLandingPageUnknownToken(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	resp, err := http.Get(ts.URL + "/mobile/nfc-scan?token=no-such-token")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusGone, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "expired")
}

func TestScanLandingPageMissingToken(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	resp, err := http.Get(ts.URL + "/mobile/nfc-scan")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, NewInMemorySessionStore())

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateSessionToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateSessionToken()
		require.NoError(t, err)
		require.NotEmpty(t, token)
		require.False(t, strings.ContainsAny(token, "+/="), "token must be url-safe: %q", token)
		require.False(t, seen[token], "token collision: %q", token)
		seen[token] = true
	}
}
