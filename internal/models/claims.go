package models

import "github.com/golang-jwt/jwt/v5"

// Claims represents the JWT claims carried by caller tokens
type Claims struct {
	UserID string `json:"userId"`
	Admin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}
