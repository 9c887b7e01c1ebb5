package model

// AuthContext describes the authenticated caller of a request.
type AuthContext struct {
	UserID string
	// Source is "cookie" or "bearer".
	Source string
}
