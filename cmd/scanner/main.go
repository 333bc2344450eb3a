// Command scanner drives one passport capture attempt from the terminal.
// It stands in for the mobile app during development: paste the QR
// payload (or the bare token), provide the document details printed in
// the passport's machine readable zone, and the captured record is
// posted to the session API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-passport-capture/capture"
	"go-passport-capture/chip"
	"go-passport-capture/logging"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", envOr("NFC_API_URL", "http://localhost:8080"), "Base URL of the session API")
	qrPayload := flag.String("qr", "", "Raw text decoded from the QR code")
	token := flag.String("token", "", "Session token (manual fallback when no QR payload is available)")
	docNumber := flag.String("doc", "", "Passport document number")
	dateOfBirth := flag.String("dob", "", "Date of birth, YYMMDD")
	dateOfExpiry := flag.String("doe", "", "Date of expiry, YYMMDD")
	useMock := flag.Bool("mock", false, "Use the mock chip reader instead of real hardware")
	mockDelay := flag.Duration("mock-delay", 2*time.Second, "Simulated chip read duration in mock mode")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	logging.InitLogger(*logLevel, "text")

	if *qrPayload == "" && *token == "" {
		fmt.Fprintln(os.Stderr, "provide a session via -qr or -token")
		os.Exit(2)
	}

	var reader chip.Reader
	if *useMock {
		fmt.Println("MOCK MODE: the submitted record is test data, not a chip read")
		reader = chip.NewMockReader(*mockDelay)
	} else {
		// The chip package talks to NFC hardware through the TagDevice
		// interface; a real build wires in a platform implementation
		// (CoreNFC, android.nfc, PC/SC). None ships with this binary.
		fmt.Fprintln(os.Stderr, "no NFC hardware backend is built into this binary; use -mock")
		os.Exit(2)
	}

	workflow := capture.NewWorkflow(capture.NewClient(*apiURL), reader, printStatus)

	var err error
	if *qrPayload != "" {
		err = workflow.ProvideQR(*qrPayload)
	} else {
		err = workflow.ProvideToken(*token)
	}
	if err != nil {
		slog.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	key := chip.AccessKey{
		DocumentNumber: *docNumber,
		DateOfBirth:    *dateOfBirth,
		DateOfExpiry:   *dateOfExpiry,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workflow.Capture(ctx, key); err != nil {
		slog.Error("capture attempt failed", "error", err)
		os.Exit(1)
	}
}

func printStatus(s capture.Status) {
	prefix := "status"
	if s.Err {
		prefix = "error"
	}
	if s.Message != "" {
		fmt.Printf("[%s] %s: %s\n", prefix, s.State, s.Message)
	} else {
		fmt.Printf("[%s] %s\n", prefix, s.State)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
