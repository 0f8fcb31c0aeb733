package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 72 * time.Hour

// Claims is the token payload.
type Claims struct {
	UserID     string `json:"user_id"`
	ExternalID int64  `json:"tg_id,omitempty"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator issues and verifies HS256 bearer tokens.
type JWTAuthenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWT returns an authenticator signing with secret. A zero ttl means 72h.
func NewJWT(secret string, ttl time.Duration) *JWTAuthenticator {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &JWTAuthenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for id.
func (j *JWTAuthenticator) Issue(id Identity) (string, error) {
	now := j.now()
	claims := Claims{
		UserID:     id.UserID,
		ExternalID: id.ExternalID,
		Role:       id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Authenticate reads "Authorization: Bearer <token>", or the access_token
// query parameter for EventSource and WebSocket clients that cannot set
// headers.
func (j *JWTAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	raw := bearer(r)
	if raw == "" {
		return nil, ErrNoCredential
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalid)
	}
	return &Identity{UserID: claims.UserID, ExternalID: claims.ExternalID, Role: claims.Role}, nil
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return r.URL.Query().Get("access_token")
}
