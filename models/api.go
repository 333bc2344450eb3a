package models

// APIResponse is the generic envelope returned by the NFC session API.
// Success must be checked explicitly: a well-formed response with
// Success=false is a server-reported failure, not a transport error.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SessionResponse is returned when a new scan session is created.
type SessionResponse struct {
	Success      bool   `json:"success"`
	SessionToken string `json:"session_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	QrURL        string `json:"qr_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

// StatusResponse is returned by the polling endpoint.
type StatusResponse struct {
	Status  string          `json:"status"` // waiting|scanning|completed|expired|error
	Data    *PassportRecord `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// SubmitRequest is the body the capture client posts after a successful
// chip read. The full record is always sent, never a diff.
type SubmitRequest struct {
	Token string         `json:"token"`
	Data  PassportRecord `json:"data"`
}
