package session

import (
	"time"

	"github.com/felixgeelhaar/qrlink/internal/domain"
)

// State is the session state.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Snapshot is an immutable view of the session published after every
// applied transition.
type Snapshot struct {
	State State
	Token string
	User  domain.User

	// Generation advances whenever the session identity changes: login,
	// logout, and token rotations that reopen the realtime channel.
	Generation uint64

	// ChannelOpen is true iff a realtime channel instance is live.
	ChannelOpen bool

	// ChannelStale is true when the live channel was opened with a token
	// that has since been rotated.
	ChannelStale bool

	// Cause is the transition event that produced the snapshot, one of the
	// Event* names, or empty for the initial snapshot.
	Cause string

	// At is when the snapshot was published.
	At time.Time
}

// IsAuthenticated reports whether the snapshot carries a session.
func (s Snapshot) IsAuthenticated() bool {
	return s.State == Authenticated
}
