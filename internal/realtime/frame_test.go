package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantOK    bool
		wantKind  string
		wantToken string
	}{
		{"profile update with token", `{"type":"profile_updated","user":{"id":1,"username":"a"},"access_token":"t2"}`, true, kindProfileUpdated, "t2"},
		{"profile update without token", `{"type":"profile_updated","user":{"id":1,"username":"a"}}`, true, kindProfileUpdated, ""},
		{"missing user", `{"type":"profile_updated"}`, false, kindIgnored, ""},
		{"null user", `{"type":"profile_updated","user":null}`, false, kindIgnored, ""},
		{"unknown type", `{"type":"something_else"}`, false, kindIgnored, ""},
		{"no type", `{"user":{"id":1,"username":"a"}}`, false, kindIgnored, ""},
		{"not json", `hello`, false, kindMalformed, ""},
		{"array", `[1,2]`, false, kindMalformed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, kind, ok := ParseFrame([]byte(tt.frame))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantToken, update.AccessToken)
			if ok {
				assert.Equal(t, "a", update.User.Username)
			}
		})
	}
}
