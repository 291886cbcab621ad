package profile

import "time"

// Profile carries the durable per-user fields the chat views read: display
// name for the header, last_seen as the offline fallback, typing_in as the
// restart fallback for the typing signal.
type Profile struct {
	UserID        string     `json:"user_id"`
	DisplayName   string     `json:"display_name"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	Banned        bool       `json:"banned"`
	TypingIn      *string    `json:"typing_in,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
