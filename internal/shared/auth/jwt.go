package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrTokenExpired also matches ErrInvalidToken.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrInvalidToken)
)

// DefaultTokenDuration matches the access_token cookie lifetime.
const DefaultTokenDuration = 24 * time.Hour

// JWTClaims are the session claims carried by an access token.
type JWTClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Session converts the claims into a request session.
func (c *JWTClaims) Session() Session {
	return Session{UserID: c.UserID, Email: c.Email}
}

type JWT struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret), duration: DefaultTokenDuration, now: time.Now}
}

// Generate signs an HS256 token for the given user.
func (j *JWT) Generate(userID, email string) (string, error) {
	now := j.now()
	claims := &JWTClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.duration)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns its claims when the signature and
// expiry check out.
func (j *JWT) Validate(token string) (*JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
