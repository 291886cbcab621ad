package identity

import "errors"

var (
	ErrIdentityUnavailable = errors.New("identity not resolved")
	ErrNotAuthorized       = errors.New("not authorized")
)

// Identity describes the current actor as the rest of the system sees it.
type Identity struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Banned        bool   `json:"banned"`
}

// Gate rejects actors that may read but must not write. Unverified and banned
// identities are forbidden from requesting chats, sending, reacting and
// deleting.
func Gate(id Identity) error {
	if id.ID == "" {
		return ErrIdentityUnavailable
	}
	if !id.EmailVerified || id.Banned {
		return ErrNotAuthorized
	}
	return nil
}
