package jwttoken

import (
	"touristid/pkg/platform/middleware/auth"
	"touristid/pkg/requestcontext"
)

func ToPrincipal(claims *Claims) requestcontext.Principal {
	return requestcontext.Principal{
		ID:      claims.Subject,
		Role:    claims.Role,
		Address: claims.Address,
	}
}

// JWTServiceAdapter satisfies auth.Validator.
type JWTServiceAdapter struct {
	service *JWTService
}

var _ auth.Validator = (*JWTServiceAdapter)(nil)

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (requestcontext.Principal, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return requestcontext.Principal{}, err
	}
	return ToPrincipal(claims), nil
}
