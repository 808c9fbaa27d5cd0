package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token roles
const (
	RoleDevice     = "device"
	RoleDispatcher = "dispatcher"
)

const (
	deviceTokenTTL     = 24 * time.Hour
	dispatcherTokenTTL = 12 * time.Hour
)

// ErrInvalidCredentials is returned when a device secret does not match
var ErrInvalidCredentials = errors.New("invalid credentials")

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	DeviceID string `json:"device_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates tokens for front-end devices and dispatch consoles
type Issuer struct {
	secret       []byte
	deviceSecret []byte
	now          func() time.Time
}

// NewIssuer creates a token issuer. deviceSecret is the provisioning secret
// every front-end device presents when it authenticates.
func NewIssuer(secret, deviceSecret string) *Issuer {
	return &Issuer{
		secret:       []byte(secret),
		deviceSecret: []byte(deviceSecret),
		now:          time.Now,
	}
}

// AuthenticateDevice checks the device credentials and returns a device token
func (i *Issuer) AuthenticateDevice(deviceID, secret string) (string, time.Time, error) {
	if deviceID == "" || subtle.ConstantTimeCompare([]byte(secret), i.deviceSecret) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return i.generate(deviceID, RoleDevice, deviceTokenTTL)
}

// GenerateDispatcherToken generates a token for a dispatch console
func (i *Issuer) GenerateDispatcherToken(consoleID string) (string, time.Time, error) {
	return i.generate(consoleID, RoleDispatcher, dispatcherTokenTTL)
}

func (i *Issuer) generate(subject, role string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(ttl)
	claims := &JWTClaims{
		DeviceID: subject,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
