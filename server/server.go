// Package server implements the booking-server side of the NFC passport
// capture workflow: session creation, the polling endpoint the booking
// form uses, the scanning notification, and data submission.
package server

import (
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go-passport-capture/models"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const (
	ERR_MARSHAL           = "failed to marshal response message"
	ERR_SESSION_NOT_FOUND = "Session not found"
	ERR_SESSION_EXPIRED   = "Session expired"
	ERR_MISSING_TOKEN     = "Missing token"
	ERR_NO_DATA           = "No data provided"
)

// DefaultSessionTTL matches the five-minute QR validity of the booking
// flow.
const DefaultSessionTTL = 5 * time.Minute

type Config struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	UseTls         bool   `json:"use_tls,omitempty"`
	TlsPrivKeyPath string `json:"tls_priv_key_path,omitempty"`
	TlsCertPath    string `json:"tls_cert_path,omitempty"`

	// PublicURL prefixes the qr_url returned on session creation, so
	// the QR code resolves from a phone outside the host network.
	PublicURL string `json:"public_url,omitempty"`

	SessionTTLSeconds int `json:"session_ttl_seconds,omitempty"`
}

func (c Config) sessionTTL() time.Duration {
	if c.SessionTTLSeconds > 0 {
		return time.Duration(c.SessionTTLSeconds) * time.Second
	}
	return DefaultSessionTTL
}

// State holds the server's collaborators.
type State struct {
	Sessions SessionStore
}

type Server struct {
	server *http.Server
	config Config
	state  *State
}

func NewServer(state *State, config Config) (*Server, error) {
	if state == nil || state.Sessions == nil {
		return nil, fmt.Errorf("server: a session store is required")
	}

	slog.Info("Creating new server", "host", config.Host, "port", config.Port, "tls", config.UseTls)

	s := &Server{config: config, state: state}

	addr := fmt.Sprintf("%v:%v", config.Host, config.Port)
	s.server = &http.Server{
		Handler: s.Handler(),
		Addr:    addr,
		// Good practice: enforce timeouts for servers you create!
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return s, nil
}

// Handler builds the full route table. Exposed separately so tests can
// drive the server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		err := json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		if err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	})
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/api/passport/nfc/session", s.handleCreateSession).Methods(http.MethodPost)
	router.HandleFunc("/api/passport/nfc/check/{token}", s.handleCheckSession).Methods(http.MethodGet)
	router.HandleFunc("/api/passport/nfc/scanning/{token}", s.handleScanningStarted).Methods(http.MethodPost)
	router.HandleFunc("/api/passport/nfc/submit", s.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/mobile/nfc-scan", s.handleScanLandingPage).Methods(http.MethodGet)

	slog.Debug("Registered all API routes")

	// The booking form polls the check endpoint from the browser.
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(router)
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	}
	slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

// GenerateSessionToken returns a url-safe random token.
func GenerateSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// handlers -------------------------------------------------------------

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	slog.Info("Received request to create nfc scan session")

	token, err := GenerateSessionToken()
	if err != nil {
		respondWithAPIErr(w, http.StatusInternalServerError, "failed to create session", err)
		return
	}

	ttl := s.config.sessionTTL()
	if _, err := s.state.Sessions.Create(r.Context(), token, ttl); err != nil {
		respondWithAPIErr(w, http.StatusInternalServerError, "failed to create session", err)
		return
	}
	sessionsCreated.Inc()

	response := models.SessionResponse{
		Success:      true,
		SessionToken: token,
		ExpiresIn:    int(ttl.Seconds()),
		QrURL:        fmt.Sprintf("%s/mobile/nfc-scan?token=%s", s.config.PublicURL, token),
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		respondWithAPIErr(w, http.StatusInternalServerError, ERR_MARSHAL, err)
		return
	}
	slog.Info("Scan session created", "expires_in", response.ExpiresIn)
}

func (s *Server) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)
	token := mux.Vars(r)["token"]

	session, err := s.state.Sessions.Get(r.Context(), token)
	if errors.Is(err, ErrSessionNotFound) {
		writeJSON(w, http.StatusOK, models.StatusResponse{
			Status:  string(StatusExpired),
			Message: "Session not found or expired",
		})
		return
	}
	if err != nil {
		respondWithAPIErr(w, http.StatusInternalServerError, "failed to check session", err)
		return
	}

	if session.Expired(time.Now()) {
		writeJSON(w, http.StatusOK, models.StatusResponse{
			Status:  string(StatusExpired),
			Message: "Session has expired",
		})
		return
	}

	response := models.StatusResponse{Status: string(session.Status)}

	switch session.Status {
	case StatusCompleted:
		response.Data = session.Record
		// One-shot handover: the record is not kept after the booking
		// form has picked it up.
		if err := s.state.Sessions.Delete(r.Context(), token); err != nil {
			slog.Error("failed to clean up completed session", "error", err)
		}
	case StatusError:
		response.Message = session.Message
		if response.Message == "" {
			response.Message = "Unknown error"
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleScanningStarted(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)
	token := mux.Vars(r)["token"]

	slog.Info("Received scanning-started notification")

	session, ok := s.requireLiveSession(w, r, token)
	if !ok {
		return
	}

	session.Status = StatusScanning
	if err := s.state.Sessions.Update(r.Context(), token, session); err != nil {
		respondWithAPIErr(w, http.StatusInternalServerError, "failed to update session", err)
		return
	}
	scanningNotifications.Inc()

	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	slog.Info("Received passport data submission")

	var request models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		slog.Warn("Failed to decode submit request", "error", err)
		submissions.WithLabelValues("malformed").Inc()
		respondWithAPIErr(w, http.StatusBadRequest, ERR_MISSING_TOKEN, err)
		return
	}
	if request.Token == "" {
		submissions.WithLabelValues("malformed").Inc()
		respondWithAPIErr(w, http.StatusBadRequest, ERR_MISSING_TOKEN, nil)
		return
	}

	session, ok := s.requireLiveSession(w, r, request.Token)
	if !ok {
		submissions.WithLabelValues("rejected").Inc()
		return
	}

	if missing := request.Data.MissingFields(); len(missing) > 0 {
		msg := fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", "))
		session.Status = StatusError
		session.Message = msg
		if err := s.state.Sessions.Update(r.Context(), request.Token, session); err != nil {
			slog.Error("failed to record submission error", "error", err)
		}
		submissions.WithLabelValues("invalid").Inc()
		respondWithAPIErr(w, http.StatusBadRequest, msg, nil)
		return
	}

	session.Status = StatusCompleted
	session.Record = &request.Data
	session.Message = ""
	if err := s.state.Sessions.Update(r.Context(), request.Token, session); err != nil {
		submissions.WithLabelValues("error").Inc()
		respondWithAPIErr(w, http.StatusInternalServerError, "failed to store passport data", err)
		return
	}
	submissions.WithLabelValues("accepted").Inc()

	writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Passport data received successfully",
	})
	slog.Info("Passport data accepted", "issuing_country", request.Data.IssuingCountry)
}

//go:embed pages/nfc_scan.html
var scanLandingPage []byte

//go:embed pages/session_expired.html
var sessionExpiredPage []byte

func (s *Server) handleScanLandingPage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondWithAPIErr(w, http.StatusBadRequest, ERR_MISSING_TOKEN, nil)
		return
	}

	session, err := s.state.Sessions.Get(r.Context(), token)
	if errors.Is(err, ErrSessionNotFound) || (err == nil && session.Expired(time.Now())) {
		writeHTML(w, http.StatusGone, sessionExpiredPage)
		return
	}
	if err != nil {
		respondWithAPIErr(w, http.StatusInternalServerError, "failed to check session", err)
		return
	}

	writeHTML(w, http.StatusOK, scanLandingPage)
}

// requireLiveSession loads the session and answers 404/410 for unknown
// and expired tokens, mirroring the original API's status codes.
func (s *Server) requireLiveSession(w http.ResponseWriter, r *http.Request, token string) (*Session, bool) {
	session, err := s.state.Sessions.Get(r.Context(), token)
	if errors.Is(err, ErrSessionNotFound) {
		respondWithAPIErr(w, http.StatusNotFound, ERR_SESSION_NOT_FOUND, nil)
		return nil, false
	}
	if err != nil {
		respondWithAPIErr(w, http.StatusInternalServerError, "failed to retrieve session", err)
		return nil, false
	}
	if session.Expired(time.Now()) {
		respondWithAPIErr(w, http.StatusGone, ERR_SESSION_EXPIRED, nil)
		return nil, false
	}
	return session, true
}

// helpers --------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) error {
	slog.Debug("Writing JSON response", "status_code", status)
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(payload); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
	return nil
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	}
}

// respondWithAPIErr writes the standard failure envelope.
func respondWithAPIErr(w http.ResponseWriter, code int, message string, e error) {
	slog.Error(message, "error", e, "status_code", code)
	writeJSON(w, code, models.APIResponse{Success: false, Error: message})
}

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}
