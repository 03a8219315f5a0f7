package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SendOTPRequest asks for a login code to be mailed.
type SendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SendOTPResponse tells the client whether the email belongs to a known user.
type SendOTPResponse struct {
	UserExists bool      `json:"user_exists"`
	Role       UserRole  `json:"role,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// VerifyOTPRequest exchanges a code for an access token.
type VerifyOTPRequest struct {
	Email     string `json:"email" validate:"required,email"`
	OTP       string `json:"otp" validate:"required,numeric"`
	Name      string `json:"name" validate:"omitempty,max=120"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	NewUser     bool      `json:"new_user"`
	User        UserInfo  `json:"user"`
}

// CheckUserResponse describes the role a login would resolve to.
type CheckUserResponse struct {
	Exists      bool     `json:"exists"`
	Role        UserRole `json:"role,omitempty"`
	Name        string   `json:"name,omitempty"`
	DefaultRole UserRole `json:"default_role,omitempty"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Role       UserRole `json:"role"`
	Department string   `json:"department"`
}

// OTPRecord is the stored, hashed login code.
type OTPRecord struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
