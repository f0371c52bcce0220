package domain

import "time"

// Device is a read-only projection of a linked device as listed by the server.
// DeviceID is the only identity used locally, for revoke calls.
type Device struct {
	ID         int    `json:"id"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	CreatedAt  string `json:"created_at"`
	LastActive string `json:"last_active"`
	IsActive   bool   `json:"is_active"`
}

// DisplayName falls back to the device ID when the server has no name.
func (d Device) DisplayName() string {
	if d.DeviceName != "" {
		return d.DeviceName
	}
	return d.DeviceID
}

// LastSeen parses LastActive.
func (d Device) LastSeen() (time.Time, bool) {
	return ParseTimestamp(d.LastActive)
}

// Status returns "active" or "revoked".
func (d Device) Status() string {
	if d.IsActive {
		return "active"
	}
	return "revoked"
}
