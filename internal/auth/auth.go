package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/config"
)

// TokenPair is the response returned after signup, login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims carries the user id in Subject. Refresh tokens also carry a
// random ID whose hash is stored on the user.
type Claims struct {
	jwt.RegisteredClaims
	Email string       `json:"email"`
	Role  ability.Role `json:"role"`
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Tokens signs and parses access and refresh tokens. The two kinds use
// different secrets so one can never stand in for the other.
type Tokens struct {
	cfg config.AuthConfig
}

func NewTokens(cfg config.AuthConfig) *Tokens {
	return &Tokens{cfg: cfg}
}

// Issue creates a fresh pair. The returned refresh ID must be stored
// hashed; Refresh compares against it.
func (t *Tokens) Issue(userID int64, email string, role ability.Role) (*TokenPair, string, error) {
	now := time.Now()
	sub := strconv.FormatInt(userID, 10)

	access, err := sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
		},
		Email: email,
		Role:  role,
	}, t.cfg.AccessSecret)
	if err != nil {
		return nil, "", fmt.Errorf("sign access token: %w", err)
	}

	refreshID := uuid.NewString()
	refresh, err := sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshID,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.RefreshTTL)),
		},
		Email: email,
		Role:  role,
	}, t.cfg.RefreshSecret)
	if err != nil {
		return nil, "", fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, refreshID, nil
}

func (t *Tokens) ParseAccess(token string) (*Claims, error) {
	return parse(token, t.cfg.AccessSecret)
}

func (t *Tokens) ParseRefresh(token string) (*Claims, error) {
	c, err := parse(token, t.cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, errors.New("refresh token without id")
	}
	return c, nil
}

func sign(c Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

func parse(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// HashPassword hashes a secret with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext secret against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
