package log

import (
	"encoding/hex"
	"log/slog"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a short, stable identifier for a bearer token.
// The raw token never appears in logs, audit records or status output.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}

// Token returns an attribute that carries the token's fingerprint.
func Token(key, token string) slog.Attr {
	if token == "" {
		return slog.String(key, "<none>")
	}
	return slog.String(key, "tok_"+Fingerprint(token))
}
