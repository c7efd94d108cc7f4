package auth

import (
	"time"

	"github.com/tinytulsi/mart-backend/internal/repository"
)

// RegisterRequest is the payload for POST /register
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Avatar   string `json:"avatar,omitempty"`
	OTP      string `json:"otp,omitempty"`
}

// SendOTPRequest is the payload for the OTP issue endpoints
type SendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// LoginRequest is the payload for POST /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"deviceId" validate:"required"`
}

// VerifyLoginOTPRequest is the payload for POST /login/verify-login-otp
type VerifyLoginOTPRequest struct {
	Email    string `json:"email" validate:"required,email"`
	OTP      string `json:"otp" validate:"required,len=6"`
	DeviceID string `json:"deviceId" validate:"required"`
}

// ForgotPasswordRequest is the payload for POST /password/forgot
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is the payload for PUT /password/reset/{token}
type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// UpdatePasswordRequest is the payload for PUT /me/update
type UpdatePasswordRequest struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// VerifyPasswordOTPRequest is the payload for POST /password/update/verify-otp
type VerifyPasswordOTPRequest struct {
	OTP             string `json:"otp" validate:"required,len=6"`
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

// UpdateProfileRequest is the payload for PUT /me/update-profile
type UpdateProfileRequest struct {
	Name   string `json:"name,omitempty" validate:"omitempty,max=100"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
	Avatar string `json:"avatar,omitempty"`
}

// UpdateRoleRequest is the payload for PUT /admin/users/{id}/role
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// UserResponse is the public shape of an account
type UserResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	AvatarURL  *string   `json:"avatarUrl,omitempty"`
	IsVerified bool      `json:"isVerified"`
	IsLocked   bool      `json:"isLocked"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewUserResponse maps a stored user to its public shape
func NewUserResponse(user *repository.User) UserResponse {
	return UserResponse{
		ID:         user.ID.String(),
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		AvatarURL:  user.AvatarURL,
		IsVerified: user.IsVerified,
		IsLocked:   user.IsLocked,
		CreatedAt:  user.CreatedAt,
	}
}

// LoginResponse is the payload for a completed or pending login
type LoginResponse struct {
	RequiresOTP bool          `json:"requiresOtp"`
	Token       string        `json:"token,omitempty"`
	User        *UserResponse `json:"user,omitempty"`
}
