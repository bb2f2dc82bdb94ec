package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yukbelajar/tryout-backend/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TokenType distinguishes participant vs operator tokens.
type TokenType string

const (
	TokenTypeParticipant TokenType = "participant"
	TokenTypeOperator    TokenType = "operator"
)

// OperatorClaims extends JWT standard claims for locally issued operator tokens.
type OperatorClaims struct {
	jwt.RegisteredClaims
	TokenType  TokenType `json:"token_type"`
	OperatorID int       `json:"operator_id"`
}

// IdentityClaims are the claims this service trusts from the external
// identity provider's participant tokens. Subject carries the opaque
// external user id; an empty subject means unauthenticated.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// AuthService handles operator credentials and token validation for both
// token populations (locally issued operator tokens and identity-provider
// participant tokens).
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateOperatorToken creates a JWT for an operator.
func (s *AuthService) GenerateOperatorToken(operatorID int) (string, error) {
	now := time.Now()

	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(operatorID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType:  TokenTypeOperator,
		OperatorID: operatorID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.OperatorJWTSecret))
}

// ValidateOperatorToken parses and validates a locally issued operator JWT.
func (s *AuthService) ValidateOperatorToken(tokenStr string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.OperatorJWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TokenType != TokenTypeOperator {
		return nil, errors.New("not an operator token")
	}

	return claims, nil
}

// ValidateParticipantToken parses and validates a participant JWT issued by
// the external identity provider (HS256, shared secret).
func (s *AuthService) ValidateParticipantToken(tokenStr string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &IdentityClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.IdentityJWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}
