package realtime

import (
	"encoding/json"

	"github.com/felixgeelhaar/qrlink/internal/domain"
)

// FrameProfileUpdated is the only inbound frame type acted upon.
const FrameProfileUpdated = "profile_updated"

// Frame kinds used in logs and metrics.
const (
	kindProfileUpdated = "profile_updated"
	kindIgnored        = "ignored"
	kindMalformed      = "malformed"
)

// Update is a profile change pushed by the server. AccessToken is empty
// unless the server rotated the token.
type Update struct {
	User        domain.User
	AccessToken string
	// Epoch identifies the connection the frame arrived on.
	Epoch uint64
}

type frame struct {
	Type        string       `json:"type"`
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

// ParseFrame decodes one text frame. ok is false for anything other than a
// profile_updated frame carrying a user object; unknown types are expected.
func ParseFrame(data []byte) (update Update, kind string, ok bool) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Update{}, kindMalformed, false
	}
	if f.Type != FrameProfileUpdated || f.User == nil {
		return Update{}, kindIgnored, false
	}
	return Update{User: *f.User, AccessToken: f.AccessToken}, kindProfileUpdated, true
}
