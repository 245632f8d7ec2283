package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims holds the session token payload.
type Claims struct {
	UserID              int64  `json:"userId"`
	Username            string `json:"username"`
	IsAdmin             bool   `json:"isAdmin"`
	IsOrganizer         bool   `json:"isOrganizer"`
	IsApprovedOrganizer bool   `json:"isApprovedOrganizer"`
	jwt.RegisteredClaims
}

// Identity returns the caller identity carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID:              c.UserID,
		Username:            c.Username,
		IsAdmin:             c.IsAdmin,
		IsOrganizer:         c.IsOrganizer,
		IsApprovedOrganizer: c.IsApprovedOrganizer,
	}
}

const resetPurpose = "password-reset"

// ResetClaims holds a password-reset token payload. ID is the reset request id.
type ResetClaims struct {
	Username string `json:"username"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expire      time.Duration
	resetExpire time.Duration
	now         func() time.Time
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours, resetExpireMinutes int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expire:      time.Duration(expireHours) * time.Hour,
		resetExpire: time.Duration(resetExpireMinutes) * time.Minute,
		now:         time.Now,
	}
}

// Generate signs a session token for id.
func (s *JWTService) Generate(id Identity) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:              id.UserID,
		Username:            id.Username,
		IsAdmin:             id.IsAdmin,
		IsOrganizer:         id.IsOrganizer,
		IsApprovedOrganizer: id.IsApprovedOrganizer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a session token.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	// Reset tokens carry no subject and must not authenticate requests.
	if claims.Username == "" || claims.Subject != claims.Username {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateReset signs a short-lived token for the reset request.
func (s *JWTService) GenerateReset(requestID uuid.UUID, username string) (string, error) {
	now := s.now()
	claims := ResetClaims{
		Username: username,
		Purpose:  resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        requestID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetExpire)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateReset parses a reset token. Expired tokens return ErrExpiredToken.
func (s *JWTService) ValidateReset(tokenString string) (uuid.UUID, string, error) {
	claims := &ResetClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return uuid.Nil, "", err
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil || claims.Username == "" || claims.Purpose != resetPurpose {
		return uuid.Nil, "", ErrInvalidToken
	}
	return id, claims.Username, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
