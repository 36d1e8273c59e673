package dto

import "github.com/golang-jwt/jwt/v5"

// ==================== Auth DTOs ====================

// AuthRequest Authentication request structure
type AuthRequest struct {
	Address   string `json:"address" binding:"required"`   // caller wallet address
	Message   string `json:"message" binding:"required"`   // signed challenge message
	Signature string `json:"signature" binding:"required"` // EIP-191 personal_sign signature
}

// AuthResponse Authentication response structure
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// JWTClaims JWT Claims structure
type JWTClaims struct {
	Address string `json:"address"` // checksummed wallet address
	jwt.RegisteredClaims
}
