package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/config"
)

// Claims is the connector token payload.
type Claims struct {
	jwt.RegisteredClaims

	// Key is the configured secret key, serialized as "id".
	Key string `json:"id"`
}

// Keys signs and verifies tokens with an RSA key pair.
//
// Thread Safety: Keys is immutable after Load and safe for concurrent use.
type Keys struct {
	private   *rsa.PrivateKey
	public    *rsa.PublicKey
	secretKey string
	ttl       time.Duration
}

// Load reads the PEM key pair named in cfg.
//
// Parameters:
//   - cfg: JWT configuration; both key paths must be set
//
// Returns:
//   - *Keys: ready to issue and verify tokens
//   - error: ErrNotEnabled without key paths, or wrapped ErrKeyInvalid
func Load(cfg config.JWTConfig) (*Keys, error) {
	if !cfg.Enabled() {
		return nil, ErrNotEnabled
	}

	privPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	pubPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	return NewKeys(privPEM, pubPEM, cfg.SecretKey, time.Duration(cfg.TTL)*time.Minute)
}

// NewKeys parses a PEM-encoded key pair.
// A zero ttl issues tokens without an expiry.
func NewKeys(privatePEM, publicPEM []byte, secretKey string, ttl time.Duration) (*Keys, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %w", ErrKeyInvalid, err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %w", ErrKeyInvalid, err)
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, fmt.Errorf("%w: public key does not match private key", ErrKeyInvalid)
	}

	return &Keys{
		private:   priv,
		public:    pub,
		secretKey: secretKey,
		ttl:       ttl,
	}, nil
}

// Issue creates a signed RS256 token carrying the secret key.
func (k *Keys) Issue() (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
		Key: k.secretKey,
	}
	if k.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(k.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(k.private)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates the signature, expiry and id claim of tokenString.
func (k *Keys) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return k.public, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Key != k.secretKey {
		return nil, fmt.Errorf("%w: id claim mismatch", ErrTokenInvalid)
	}

	return claims, nil
}

// TokenFromHeader extracts the token from an Authorization header value.
// Both the bare token and the "Bearer <token>" form are accepted.
func TokenFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return header
}
