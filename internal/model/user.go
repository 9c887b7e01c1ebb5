// Package model defines domain entities for the application.
package model

import "time"

// Identity providers a user can be federated from.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// User is an account owning expenses. A user authenticates either with a
// password (PasswordHash set) or through an identity provider (Provider and
// ProviderSubject set), never both.
type User struct {
	ID              string    `json:"id"`
	FullName        string    `json:"full_name"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"`
	Provider        string    `json:"provider,omitempty"`
	ProviderSubject string    `json:"-"`
	Gender          string    `json:"gender,omitempty"`
	ProfilePic      string    `json:"profile_pic"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsFederated reports whether the user was provisioned by an identity provider.
func (u *User) IsFederated() bool {
	return u.Provider != ""
}
