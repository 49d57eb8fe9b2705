package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user. Students sign in
// with their DNI, staff with their username.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// RegisterStudentRequest creates a student together with its login.
type RegisterStudentRequest struct {
	DNI         string `json:"dni" validate:"required"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	ParentName  string `json:"parent_name" validate:"required"`
	ParentPhone string `json:"parent_phone" validate:"required"`
	Password    string `json:"password" validate:"required,min=6"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Role      UserRole `json:"role"`
	FullName  string   `json:"full_name,omitempty"`
	RelatedID *string  `json:"related_id,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens. RelatedID carries
// the student or teacher row the login belongs to.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	RelatedID string   `json:"related_id,omitempty"`
	jwt.RegisteredClaims
}
