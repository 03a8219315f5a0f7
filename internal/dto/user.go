package dto

import "github.com/noah-isme/aims-enrollment-api/internal/models"

// CreateUserRequest pre-provisions a user before their first login.
type CreateUserRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Name       string          `json:"name" validate:"required,max=120"`
	Role       models.UserRole `json:"role" validate:"required,oneof=student instructor advisor admin"`
	Department string          `json:"department" validate:"max=120"`
}

// UpdateUserRequest changes profile fields or the role.
type UpdateUserRequest struct {
	Name       *string          `json:"name" validate:"omitempty,max=120"`
	Role       *models.UserRole `json:"role" validate:"omitempty,oneof=student instructor advisor admin"`
	Department *string          `json:"department" validate:"omitempty,max=120"`
	Active     *bool            `json:"active"`
}

// UserQuery filters user listings.
type UserQuery struct {
	Role     string `form:"role"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}
