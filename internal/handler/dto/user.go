package dto

import "github.com/cashtrack/cashtrack/internal/model"

// SignupRequest represents the request body for creating an account.
type SignupRequest struct {
	FullName        string `json:"fullName"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Gender          string `json:"gender,omitempty"`
}

// LoginRequest represents the request body for a password login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse is the public profile of a user.
type UserResponse struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic"`
}

// ToUserResponse converts a User model to its public profile.
func ToUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:         user.ID,
		FullName:   user.FullName,
		Username:   user.Username,
		ProfilePic: user.ProfilePic,
	}
}
