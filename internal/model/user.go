package model

import "time"

// AvailabilityScope controls who may open a meeting request toward a user.
type AvailabilityScope string

const (
	ScopePublic   AvailabilityScope = "PUBLIC"
	ScopeContacts AvailabilityScope = "CONTACTS"
	ScopePrivate  AvailabilityScope = "PRIVATE"
)

func (s AvailabilityScope) Valid() bool {
	switch s {
	case ScopePublic, ScopeContacts, ScopePrivate:
		return true
	}
	return false
}

// User is created on first request and never deleted; it is retained for
// audit even when all its requests are terminal.
type User struct {
	ID                  string            `json:"id"`
	DisplayName         string            `json:"display_name,omitempty"`
	AvailabilityScope   AvailabilityScope `json:"availability_scope"`
	PlatformPreferences []string          `json:"platform_preferences"`
	Contacts            []string          `json:"contacts,omitempty"`
	// PlatformHandles maps a platform id to the user's identity on that
	// platform (slack member id, telegram chat id, ...).
	PlatformHandles map[string]string `json:"platform_handles,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HasContact reports whether other is in the user's verified contact list.
func (u *User) HasContact(other string) bool {
	for _, c := range u.Contacts {
		if c == other {
			return true
		}
	}
	return false
}

// PreferenceRank returns the zero-based rank of platform in the user's
// ordered preferences, or -1 when the platform is not listed.
func (u *User) PreferenceRank(platform string) int {
	for i, p := range u.PlatformPreferences {
		if p == platform {
			return i
		}
	}
	return -1
}
