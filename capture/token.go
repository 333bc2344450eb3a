package capture

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoToken means the QR payload carried no usable session token.
var ErrNoToken = errors.New("capture: no session token in payload")

// ExtractToken pulls the session token out of a decoded QR payload. The
// payload must be a URL whose query string carries token=<value>; the
// rest of the URL is ignored. The token is opaque, so beyond being
// non-empty its shape is not checked.
func ExtractToken(payload string) (string, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return "", ErrNoToken
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("capture: qr payload is not a url: %w", err)
	}

	token := u.Query().Get("token")
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
