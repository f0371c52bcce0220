package linking

import (
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/felixgeelhaar/qrlink/internal/errors"
)

// Payload is the content of a link QR code.
type Payload struct {
	SessionID string `json:"session_id"`
}

var (
	errNotObject        = stderrors.New("payload is not a JSON object")
	errMissingSessionID = stderrors.New("payload has no session_id string")
)

// ParsePayload validates scanned text. Anything other than a JSON object
// with a non-empty string session_id is an InvalidQRPayload error.
func ParsePayload(raw string) (Payload, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return Payload{}, errors.InvalidQRPayload(errNotObject)
	}
	id, ok := fields["session_id"].(string)
	if !ok || id == "" {
		return Payload{}, errors.InvalidQRPayload(errMissingSessionID)
	}
	return Payload{SessionID: id}, nil
}

// EncodePayload renders the QR text for sessionID.
func EncodePayload(sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.ValidationFailed("Session ID is required")
	}
	raw, err := json.Marshal(Payload{SessionID: sessionID})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
