package domain

import (
	"fmt"
	"strings"
	"time"
)

// User is an immutable snapshot of the account profile as the server reports
// it. Updates replace the whole value; fields are never patched one by one.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	IsActive  bool   `json:"is_active"`
}

// Validate checks the minimum a persisted user record must carry.
func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("user record has no username")
	}
	return nil
}

// String returns a short display form, e.g. "alice <alice@example.com>".
func (u User) String() string {
	if u.Email == "" {
		return u.Username
	}
	return fmt.Sprintf("%s <%s>", u.Username, u.Email)
}

// Created parses CreatedAt.
func (u User) Created() (time.Time, bool) {
	return ParseTimestamp(u.CreatedAt)
}

// timestampLayouts covers RFC 3339 and the zone-less ISO 8601 form that
// Python servers emit for naive datetimes.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a server timestamp. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
