package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// AccessTokenPayload is the input to MintAccessToken.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
	JTI    string
}

func (p AccessTokenPayload) validate() error {
	return validatePrincipal(p.UserID, p.Role)
}

// AccessTokenClaims is the JWT body presented by shoppers and operators.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email,omitempty"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *AccessTokenClaims) validate() error {
	return validatePrincipal(c.UserID, c.Role)
}

func validatePrincipal(id uuid.UUID, role enums.UserRole) error {
	if id == uuid.Nil {
		return errors.New("user id is required")
	}
	if !role.IsValid() {
		return fmt.Errorf("invalid user role %q", role)
	}
	return nil
}

// CurrentUser is the authenticated principal handed to services. Guests
// have no CurrentUser at all.
type CurrentUser struct {
	ID      uuid.UUID
	Email   string
	IsAdmin bool
}

func (c *AccessTokenClaims) User() CurrentUser {
	return CurrentUser{
		ID:      c.UserID,
		Email:   c.Email,
		IsAdmin: c.Role == enums.UserRoleAdmin,
	}
}
