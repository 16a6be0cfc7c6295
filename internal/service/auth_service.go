package service

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// JWT configuration
var (
	jwtSecret         []byte
	accessTokenExpiry time.Duration
	adminUsername     string
	adminPasswordHash string
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// InitAuthConfig initializes authentication configuration. The API has a
// single env-provisioned credential; there is no user table.
func InitAuthConfig(secret, username, passwordHash string) {
	jwtSecret = []byte(secret)
	adminUsername = username
	adminPasswordHash = passwordHash

	accessExp := os.Getenv("JWT_ACCESS_TOKEN_EXPIRY")
	if accessExp == "" {
		accessExp = "12h"
	}
	accessTokenExpiry, _ = time.ParseDuration(accessExp)
	if accessTokenExpiry <= 0 {
		accessTokenExpiry = 12 * time.Hour
	}
}

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticate validates the admin credential and issues an access token.
func Authenticate(username, password string) (string, error) {
	if adminPasswordHash == "" {
		return "", errors.New("ADMIN_PASSWORD_HASH is not configured")
	}
	if username != adminUsername {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(adminPasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateAccessToken parses and verifies a bearer token.
func ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
